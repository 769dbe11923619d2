package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is the process-local Store implementation. All state is lost on
// restart; this is the documented fallback when PostgreSQL is not
// configured or becomes unreachable. A single mutex guards every
// structure, so multi-participant mutations are naturally atomic.
type Memory struct {
	mu sync.RWMutex

	participants map[int64]*Participant
	aliases      map[string]int64
	queue        []QueueEntry
	pairs        map[int64]pairRow
	reports      []*Report
	nextReportID int64
	bans         map[int64]BanRecord
}

type pairRow struct {
	partner int64
	chatID  string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		participants: make(map[int64]*Participant),
		aliases:      make(map[string]int64),
		pairs:        make(map[int64]pairRow),
		bans:         make(map[int64]BanRecord),
		nextReportID: 1,
	}
}

func (m *Memory) EnsureParticipant(_ context.Context, id int64) (*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.participants[id]; ok {
		cp := *p
		return &cp, nil
	}
	p := &Participant{ID: id, Status: StatusIdle}
	m.participants[id] = p
	cp := *p
	return &cp, nil
}

func (m *Memory) Participant(_ context.Context, id int64) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ParticipantByAlias(_ context.Context, alias string) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.aliases[alias]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.participants[id]
	return &cp, nil
}

func (m *Memory) SetAlias(_ context.Context, id int64, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return ErrNotFound
	}
	if holder, taken := m.aliases[alias]; taken && holder != id {
		return ErrAliasTaken
	}
	if p.Alias != "" {
		delete(m.aliases, p.Alias)
	}
	p.Alias = alias
	m.aliases[alias] = id
	return nil
}

func (m *Memory) SetStatus(_ context.Context, id int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

func (m *Memory) Enqueue(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.queue {
		if e.ParticipantID == id {
			return nil // already queued, keep original position
		}
	}
	m.queue = append(m.queue, QueueEntry{ParticipantID: id, EnqueuedAt: at})
	return nil
}

func (m *Memory) Dequeue(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dequeueLocked(id)
	return nil
}

func (m *Memory) dequeueLocked(id int64) {
	for i, e := range m.queue {
		if e.ParticipantID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

func (m *Memory) PeekEarliest(_ context.Context, exclude int64) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.queue {
		if e.ParticipantID != exclude {
			return e.ParticipantID, true, nil
		}
	}
	return 0, false, nil
}

func (m *Memory) QueueLen(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queue), nil
}

func (m *Memory) CreatePair(_ context.Context, a, b int64, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, paired := m.pairs[a]; paired {
		return ErrAlreadyPaired
	}
	if _, paired := m.pairs[b]; paired {
		return ErrAlreadyPaired
	}

	m.dequeueLocked(a)
	m.dequeueLocked(b)
	m.pairs[a] = pairRow{partner: b, chatID: chatID}
	m.pairs[b] = pairRow{partner: a, chatID: chatID}
	if p, ok := m.participants[a]; ok {
		p.Status = StatusChatting
	}
	if p, ok := m.participants[b]; ok {
		p.Status = StatusChatting
	}
	return nil
}

func (m *Memory) Partner(_ context.Context, id int64) (int64, string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.pairs[id]
	if !ok {
		return 0, "", false, nil
	}
	return row.partner, row.chatID, true, nil
}

func (m *Memory) BreakPair(_ context.Context, id int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.pairs[id]
	if !ok {
		return 0, false, nil
	}
	delete(m.pairs, id)
	delete(m.pairs, row.partner)
	if p, ok := m.participants[id]; ok {
		p.Status = StatusIdle
	}
	if p, ok := m.participants[row.partner]; ok {
		p.Status = StatusIdle
	}
	return row.partner, true, nil
}

func (m *Memory) AppendReport(_ context.Context, reporter, target int64, reason string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := &Report{
		ID:         m.nextReportID,
		ReporterID: reporter,
		TargetID:   target,
		Reason:     reason,
		CreatedAt:  at,
	}
	m.nextReportID++
	m.reports = append(m.reports, r)
	return r.ID, nil
}

func (m *Memory) OpenReports(_ context.Context) ([]Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Report
	for _, r := range m.reports {
		if !r.Resolved && !r.Ignored {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *Memory) IgnoreReport(_ context.Context, reportID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.reports {
		if r.ID == reportID {
			r.Ignored = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ResolveReportsAgainst(_ context.Context, target int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.reports {
		if r.TargetID == target {
			r.Resolved = true
		}
	}
	return nil
}

func (m *Memory) IncrementComplaints(_ context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return 0, ErrNotFound
	}
	p.Complaints++
	return p.Complaints, nil
}

func (m *Memory) ClearComplaints(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return ErrNotFound
	}
	p.Complaints = 0
	return nil
}

func (m *Memory) AddBan(_ context.Context, id int64, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return ErrNotFound
	}
	p.Banned = true
	p.Status = StatusBanned
	m.bans[id] = BanRecord{ParticipantID: id, Reason: reason, BannedAt: at}
	return nil
}

func (m *Memory) RemoveBan(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bans[id]; !ok {
		return ErrNotFound
	}
	delete(m.bans, id)
	if p, ok := m.participants[id]; ok {
		p.Banned = false
		p.Status = StatusIdle
	}
	return nil
}

func (m *Memory) Bans(_ context.Context) ([]BanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]BanRecord, 0, len(m.bans))
	for _, b := range m.bans {
		out = append(out, b)
	}
	// Oldest first, matching the PostgreSQL ordering.
	sort.Slice(out, func(i, j int) bool { return out[i].BannedAt.Before(out[j].BannedAt) })
	return out, nil
}

func (m *Memory) IsBanned(_ context.Context, id int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.bans[id]
	return ok, nil
}

func (m *Memory) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &Stats{
		Participants: len(m.participants),
		Queued:       len(m.queue),
		ActivePairs:  len(m.pairs) / 2,
	}
	for _, p := range m.participants {
		switch p.Status {
		case StatusIdle:
			st.Idle++
		case StatusWaiting:
			st.Waiting++
		case StatusChatting:
			st.Chatting++
		case StatusBanned:
			st.Banned++
		}
		st.Complaints += p.Complaints
	}
	for _, r := range m.reports {
		if !r.Resolved && !r.Ignored {
			st.OpenReports++
		}
	}
	return st, nil
}

func (m *Memory) Close() error { return nil }
