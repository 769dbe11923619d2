package engine

import (
	"context"
	"fmt"

	"github.com/pairbot/chat-engine/internal/content"
	"github.com/pairbot/chat-engine/internal/metrics"
)

// Relay forwards c from id to its current partner. A delivery failure
// ends the chat: a pair with a dead endpoint must not linger.
//
// The partner is resolved under the mutex but the send runs outside it:
// a message in flight while the pair breaks may still reach the former
// partner. The mutex never spans a network call.
func (s *Service) Relay(ctx context.Context, id int64, c content.Content) error {
	s.mu.Lock()
	snd := s.sender
	partner, _, ok, err := s.store.Partner(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("engine: relay: %w", err)
	}
	if !ok {
		return ErrNotChatting
	}
	if snd == nil {
		return fmt.Errorf("engine: relay: no sender configured")
	}

	if err := snd.Send(ctx, partner, c); err != nil {
		metrics.RelayFailuresTotal.Inc()
		s.mu.Lock()
		s.breakPairLocked(ctx, id, CauseDeliveryFailed)
		s.mu.Unlock()
		return fmt.Errorf("engine: relay to %d: %w: %v", partner, ErrDeliveryFailed, err)
	}
	metrics.RelayedTotal.WithLabelValues(string(c.Kind)).Inc()
	return nil
}
