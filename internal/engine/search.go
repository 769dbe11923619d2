package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pairbot/chat-engine/internal/messaging"
	"github.com/pairbot/chat-engine/internal/metrics"
	"github.com/pairbot/chat-engine/internal/store"
)

// Search puts id on the wait queue and starts a bounded search. The
// search resolves in one of three ways: paired with the earliest
// compatible waiter, cancelled by the caller, or timed out after
// MaxPolls sweeps.
//
// Eligibility is checked under the same mutex that serializes bans and
// pairing, so a ban landing concurrently with a search can never admit a
// banned participant into the queue.
func (s *Service) Search(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	banned, err := s.store.IsBanned(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: search: %w", err)
	}
	if banned && !s.exempt(id) {
		return ErrBanned
	}
	if _, _, ok, err := s.store.Partner(ctx, id); err != nil {
		return fmt.Errorf("engine: search: %w", err)
	} else if ok {
		return ErrAlreadyChatting
	}
	if _, exists := s.waiters[id]; exists {
		return ErrAlreadySearching
	}

	w := &waiter{
		id:        id,
		startedAt: time.Now(),
		paired:    make(chan struct{}),
		cancel:    make(chan struct{}),
	}
	if err := s.store.Enqueue(ctx, id, w.startedAt); err != nil {
		return fmt.Errorf("engine: enqueue: %w", err)
	}
	if err := s.store.SetStatus(ctx, id, store.StatusWaiting); err != nil {
		s.store.Dequeue(ctx, id)
		return fmt.Errorf("engine: enqueue: %w", err)
	}
	s.waiters[id] = w
	s.updateQueueGauge(ctx)

	go s.runSearch(w)
	return nil
}

// CancelSearch withdraws an active search. Cancelling when no search is
// running, including after a match already landed, is a no-op.
func (s *Service) CancelSearch(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.abortWaiterLocked(ctx, id) {
		return nil
	}
	if err := s.store.SetStatus(ctx, id, store.StatusIdle); err != nil {
		return fmt.Errorf("engine: cancel search: %w", err)
	}
	return nil
}

// abortWaiterLocked removes id's waiter and queue entry. Returns false
// when no search was active. Caller holds s.mu.
func (s *Service) abortWaiterLocked(ctx context.Context, id int64) bool {
	w, ok := s.waiters[id]
	if !ok {
		return false
	}
	delete(s.waiters, id)
	if !w.cancelled {
		w.cancelled = true
		close(w.cancel)
	}
	if err := s.store.Dequeue(ctx, id); err != nil {
		log.Printf("[engine] dequeue %d: %v", id, err)
	}
	s.updateQueueGauge(ctx)
	return true
}

// runSearch drives one search to completion. It sweeps immediately,
// then once per PollInterval until paired, cancelled, or out of polls.
func (s *Service) runSearch(w *waiter) {
	ctx := context.Background()
	if s.tryMatch(ctx, w) {
		return
	}
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for polls := 1; polls < s.cfg.MaxPolls; polls++ {
		select {
		case <-w.paired:
			return
		case <-w.cancel:
			return
		case <-ticker.C:
			if s.tryMatch(ctx, w) {
				return
			}
		}
	}
	select {
	case <-w.paired:
		return
	case <-w.cancel:
		return
	case <-ticker.C:
	}
	s.finishTimeout(ctx, w)
}

func (s *Service) finishTimeout(ctx context.Context, w *waiter) {
	s.mu.Lock()
	if s.waiters[w.id] != w {
		// Paired or cancelled while we waited for the lock.
		s.mu.Unlock()
		return
	}
	delete(s.waiters, w.id)
	s.store.Dequeue(ctx, w.id)
	if err := s.store.SetStatus(ctx, w.id, store.StatusIdle); err != nil {
		log.Printf("[engine] timeout reset %d: %v", w.id, err)
	}
	s.updateQueueGauge(ctx)
	s.mu.Unlock()

	metrics.SearchTimeoutsTotal.Inc()
	s.publish(messaging.SubjectMatchTimeout, MatchTimeout{ParticipantID: w.id})
}

// tryMatch sweeps the queue for the earliest compatible waiter and pairs
// with it. Returns true when the caller's search is settled, whether by
// this sweep or concurrently.
func (s *Service) tryMatch(ctx context.Context, w *waiter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiters[w.id] != w {
		return true
	}
	// Skip stale queue rows left by a previous process run: a queued id
	// with no live waiter cannot be paired with.
	for attempt := 0; attempt < 8; attempt++ {
		candidate, ok, err := s.store.PeekEarliest(ctx, w.id)
		if err != nil {
			log.Printf("[engine] peek queue: %v", err)
			return false
		}
		if !ok {
			return false
		}
		cw, live := s.waiters[candidate]
		if !live {
			s.store.Dequeue(ctx, candidate)
			continue
		}
		s.pairLocked(ctx, w, cw)
		return true
	}
	return false
}

func (s *Service) pairLocked(ctx context.Context, a, b *waiter) {
	chatID := uuid.NewString()
	if err := s.store.CreatePair(ctx, a.id, b.id, chatID); err != nil {
		log.Printf("[engine] create pair %d/%d: %v", a.id, b.id, err)
		return
	}
	delete(s.waiters, a.id)
	delete(s.waiters, b.id)
	close(a.paired)
	close(b.paired)

	now := time.Now()
	metrics.MatchesTotal.Inc()
	metrics.ActivePairs.Inc()
	metrics.MatchDuration.Observe(now.Sub(a.startedAt).Seconds())
	metrics.MatchDuration.Observe(now.Sub(b.startedAt).Seconds())
	s.updateQueueGauge(ctx)

	s.publish(messaging.SubjectMatchFound, MatchFound{ChatID: chatID, A: a.id, B: b.id})
}

// Stop leaves whatever id is doing: an active search is withdrawn, an
// active chat is ended for both sides. Returns the former partner id
// and whether a chat was actually broken.
func (s *Service) Stop(ctx context.Context, id int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abortWaiterLocked(ctx, id) {
		if err := s.store.SetStatus(ctx, id, store.StatusIdle); err != nil {
			return 0, false, fmt.Errorf("engine: stop: %w", err)
		}
		return 0, false, nil
	}
	partner, ok, err := s.breakPairLocked(ctx, id, CausePartnerLeft)
	if err != nil {
		return 0, false, fmt.Errorf("engine: stop: %w", err)
	}
	return partner, ok, nil
}

// breakPairLocked tears down id's pair, if any, and notifies the former
// partner with the given cause. Caller holds s.mu.
func (s *Service) breakPairLocked(ctx context.Context, id int64, cause string) (int64, bool, error) {
	_, chatID, ok, err := s.store.Partner(ctx, id)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	partner, ok, err := s.store.BreakPair(ctx, id)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	delete(s.drafts, id)
	delete(s.drafts, partner)
	metrics.ActivePairs.Dec()
	s.publish(messaging.SubjectChatEnded, ChatEnded{ParticipantID: partner, ChatID: chatID, Cause: cause})
	return partner, true, nil
}
