// Package engine implements the matchmaking and session lifecycle: the
// participant registry, the wait queue with bounded search, the pair
// table, relay, and moderation. All pairing and ban decisions are
// serialized through a single mutex so the invariants (a participant is
// queued or paired, never both; a banned participant is neither) hold
// without distributed coordination.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/pairbot/chat-engine/internal/alias"
	"github.com/pairbot/chat-engine/internal/content"
	"github.com/pairbot/chat-engine/internal/messaging"
	"github.com/pairbot/chat-engine/internal/metrics"
	"github.com/pairbot/chat-engine/internal/store"
)

// Sender delivers content to a participant. The transport adapter
// implements it; delivery failures surface as errors so the engine can
// tear the pair down.
type Sender interface {
	Send(ctx context.Context, to int64, c content.Content) error
}

// waiter tracks one active search. The paired channel closes when a
// match lands, cancel when the search is withdrawn; both are one-shot.
type waiter struct {
	id        int64
	startedAt time.Time
	paired    chan struct{}
	cancel    chan struct{}
	cancelled bool
}

// Service is the engine facade. One instance serves the whole process.
type Service struct {
	cfg    Config
	store  store.Store
	bus    messaging.Bus
	issuer *alias.Issuer

	mu      sync.Mutex
	sender  Sender
	waiters map[int64]*waiter
	// drafts maps reporter id to the partner id captured when the
	// report began, so the target survives the pair breaking.
	drafts map[int64]int64
}

// New builds a Service. The sender is wired later via SetSender because
// the transport adapter needs the service first.
func New(cfg Config, st store.Store, bus messaging.Bus) *Service {
	s := &Service{
		cfg:     cfg,
		store:   st,
		bus:     bus,
		issuer:  alias.NewIssuer(cfg.AliasLength),
		waiters: make(map[int64]*waiter),
		drafts:  make(map[int64]int64),
	}
	if stats, err := st.Stats(context.Background()); err == nil && stats != nil {
		metrics.ActivePairs.Set(float64(stats.ActivePairs))
		metrics.QueueSize.Set(float64(stats.Queued))
	}
	return s
}

// SetSender installs the delivery backend. Must be called before Relay.
func (s *Service) SetSender(snd Sender) {
	s.mu.Lock()
	s.sender = snd
	s.mu.Unlock()
}

// EnsureParticipant registers id if unknown and guarantees it has an
// alias, retrying on the rare collision.
func (s *Service) EnsureParticipant(ctx context.Context, id int64) (*store.Participant, error) {
	p, err := s.store.EnsureParticipant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("engine: ensure participant: %w", err)
	}
	if p.Alias != "" {
		return p, nil
	}
	for attempt := 0; attempt < 5; attempt++ {
		code, err := s.issuer.Generate()
		if err != nil {
			return nil, fmt.Errorf("engine: issue alias: %w", err)
		}
		if err := s.store.SetAlias(ctx, id, code); err != nil {
			if err == store.ErrAliasTaken {
				continue
			}
			return nil, fmt.Errorf("engine: assign alias: %w", err)
		}
		p.Alias = code
		return p, nil
	}
	return nil, fmt.Errorf("engine: assign alias: exhausted retries")
}

// Lookup resolves a participant by numeric id or alias.
func (s *Service) Lookup(ctx context.Context, ref string) (*store.Participant, error) {
	return s.resolveRef(ctx, ref)
}

func (s *Service) resolveRef(ctx context.Context, ref string) (*store.Participant, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		p, err := s.store.Participant(ctx, id)
		if err == nil {
			return p, nil
		}
		if err != store.ErrNotFound {
			return nil, fmt.Errorf("engine: lookup: %w", err)
		}
	}
	p, err := s.store.ParticipantByAlias(ctx, ref)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("engine: lookup: %w", err)
	}
	return p, nil
}

// Partner reports who id is currently chatting with, if anyone.
func (s *Service) Partner(ctx context.Context, id int64) (int64, string, bool, error) {
	return s.store.Partner(ctx, id)
}

// Stats returns a registry snapshot for the moderator panel.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) exempt(id int64) bool {
	return s.cfg.ModeratorExempt && s.cfg.ModeratorID != 0 && id == s.cfg.ModeratorID
}

// publish marshals an event and puts it on the bus. Bus failures are
// logged, never propagated: notifications are best effort.
func (s *Service) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[engine] marshal %s event: %v", subject, err)
		return
	}
	if err := s.bus.Publish(subject, data); err != nil {
		log.Printf("[engine] publish %s: %v", subject, err)
	}
}

func (s *Service) updateQueueGauge(ctx context.Context) {
	if n, err := s.store.QueueLen(ctx); err == nil {
		metrics.QueueSize.Set(float64(n))
	}
}
