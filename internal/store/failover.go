package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log"
	"net"
	"sync/atomic"
	"syscall"
	"time"
)

// Failover wraps a durable primary store and degrades to the in-memory
// fallback for the remainder of the process when the primary's connection
// is lost. The failed operation is replayed against the fallback, so a
// multi-row mutation is either fully applied on the primary or fully
// applied on the fallback, never split. Degradation is one-way: once
// flipped, the process stays on memory semantics until restart.
type Failover struct {
	primary  Store
	fallback *Memory
	degraded atomic.Bool
}

// NewFailover wraps primary with an in-memory fallback.
func NewFailover(primary Store, fallback *Memory) *Failover {
	return &Failover{primary: primary, fallback: fallback}
}

// Degraded reports whether the wrapper has switched to the fallback.
func (f *Failover) Degraded() bool { return f.degraded.Load() }

// run executes op against the active store, switching to the fallback on a
// connection-level failure.
func (f *Failover) run(op func(Store) error) error {
	if !f.degraded.Load() {
		err := op(f.primary)
		if !isConnErr(err) {
			return err
		}
		f.degrade(err)
	}
	return op(f.fallback)
}

func (f *Failover) degrade(cause error) {
	if f.degraded.CompareAndSwap(false, true) {
		log.Printf("[store] durable store unreachable, degrading to in-memory for the remainder of the process: %v", cause)
		f.primary.Close()
	}
}

// isConnErr reports whether err indicates a lost database connection as
// opposed to an application-level failure.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (f *Failover) EnsureParticipant(ctx context.Context, id int64) (*Participant, error) {
	var p *Participant
	err := f.run(func(s Store) error {
		var err error
		p, err = s.EnsureParticipant(ctx, id)
		return err
	})
	return p, err
}

func (f *Failover) Participant(ctx context.Context, id int64) (*Participant, error) {
	var p *Participant
	err := f.run(func(s Store) error {
		var err error
		p, err = s.Participant(ctx, id)
		return err
	})
	return p, err
}

func (f *Failover) ParticipantByAlias(ctx context.Context, alias string) (*Participant, error) {
	var p *Participant
	err := f.run(func(s Store) error {
		var err error
		p, err = s.ParticipantByAlias(ctx, alias)
		return err
	})
	return p, err
}

func (f *Failover) SetAlias(ctx context.Context, id int64, alias string) error {
	return f.run(func(s Store) error { return s.SetAlias(ctx, id, alias) })
}

func (f *Failover) SetStatus(ctx context.Context, id int64, status Status) error {
	return f.run(func(s Store) error { return s.SetStatus(ctx, id, status) })
}

func (f *Failover) Enqueue(ctx context.Context, id int64, at time.Time) error {
	return f.run(func(s Store) error { return s.Enqueue(ctx, id, at) })
}

func (f *Failover) Dequeue(ctx context.Context, id int64) error {
	return f.run(func(s Store) error { return s.Dequeue(ctx, id) })
}

func (f *Failover) PeekEarliest(ctx context.Context, exclude int64) (int64, bool, error) {
	var id int64
	var ok bool
	err := f.run(func(s Store) error {
		var err error
		id, ok, err = s.PeekEarliest(ctx, exclude)
		return err
	})
	return id, ok, err
}

func (f *Failover) QueueLen(ctx context.Context) (int, error) {
	var n int
	err := f.run(func(s Store) error {
		var err error
		n, err = s.QueueLen(ctx)
		return err
	})
	return n, err
}

func (f *Failover) CreatePair(ctx context.Context, a, b int64, chatID string) error {
	return f.run(func(s Store) error { return s.CreatePair(ctx, a, b, chatID) })
}

func (f *Failover) Partner(ctx context.Context, id int64) (int64, string, bool, error) {
	var partner int64
	var chatID string
	var ok bool
	err := f.run(func(s Store) error {
		var err error
		partner, chatID, ok, err = s.Partner(ctx, id)
		return err
	})
	return partner, chatID, ok, err
}

func (f *Failover) BreakPair(ctx context.Context, id int64) (int64, bool, error) {
	var partner int64
	var ok bool
	err := f.run(func(s Store) error {
		var err error
		partner, ok, err = s.BreakPair(ctx, id)
		return err
	})
	return partner, ok, err
}

func (f *Failover) AppendReport(ctx context.Context, reporter, target int64, reason string, at time.Time) (int64, error) {
	var id int64
	err := f.run(func(s Store) error {
		var err error
		id, err = s.AppendReport(ctx, reporter, target, reason, at)
		return err
	})
	return id, err
}

func (f *Failover) OpenReports(ctx context.Context) ([]Report, error) {
	var out []Report
	err := f.run(func(s Store) error {
		var err error
		out, err = s.OpenReports(ctx)
		return err
	})
	return out, err
}

func (f *Failover) IgnoreReport(ctx context.Context, reportID int64) error {
	return f.run(func(s Store) error { return s.IgnoreReport(ctx, reportID) })
}

func (f *Failover) ResolveReportsAgainst(ctx context.Context, target int64) error {
	return f.run(func(s Store) error { return s.ResolveReportsAgainst(ctx, target) })
}

func (f *Failover) IncrementComplaints(ctx context.Context, id int64) (int, error) {
	var n int
	err := f.run(func(s Store) error {
		var err error
		n, err = s.IncrementComplaints(ctx, id)
		return err
	})
	return n, err
}

func (f *Failover) ClearComplaints(ctx context.Context, id int64) error {
	return f.run(func(s Store) error { return s.ClearComplaints(ctx, id) })
}

func (f *Failover) AddBan(ctx context.Context, id int64, reason string, at time.Time) error {
	return f.run(func(s Store) error { return s.AddBan(ctx, id, reason, at) })
}

func (f *Failover) RemoveBan(ctx context.Context, id int64) error {
	return f.run(func(s Store) error { return s.RemoveBan(ctx, id) })
}

func (f *Failover) Bans(ctx context.Context) ([]BanRecord, error) {
	var out []BanRecord
	err := f.run(func(s Store) error {
		var err error
		out, err = s.Bans(ctx)
		return err
	})
	return out, err
}

func (f *Failover) IsBanned(ctx context.Context, id int64) (bool, error) {
	var banned bool
	err := f.run(func(s Store) error {
		var err error
		banned, err = s.IsBanned(ctx, id)
		return err
	})
	return banned, err
}

func (f *Failover) Stats(ctx context.Context) (*Stats, error) {
	var st *Stats
	err := f.run(func(s Store) error {
		var err error
		st, err = s.Stats(ctx)
		return err
	})
	return st, err
}

func (f *Failover) Close() error {
	if f.degraded.Load() {
		return f.fallback.Close()
	}
	return f.primary.Close()
}
