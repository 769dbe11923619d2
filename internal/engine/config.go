package engine

import (
	"time"

	"github.com/pairbot/chat-engine/internal/alias"
)

// Config holds the engine's tunables.
type Config struct {
	// PollInterval is the bounded-wait tick: how often a searching
	// participant re-attempts the queue lookup.
	PollInterval time.Duration

	// MaxPolls is the number of ticks before a search gives up and the
	// participant is returned to idle.
	MaxPolls int

	// AutoBanThreshold is the complaint count at which a participant is
	// banned without moderator action.
	AutoBanThreshold int

	// AliasLength is the length of issued identity codes.
	AliasLength int

	// ModeratorID is the participant id of the moderator, used for
	// moderator alerts and the optional eligibility exemption.
	ModeratorID int64

	// ModeratorExempt, when set, lets the moderator id bypass the ban
	// eligibility check on search. Policy, not mechanism: off by default.
	ModeratorExempt bool
}

// DefaultConfig returns the reference behavior: one lookup per second for
// up to 30 ticks, auto-ban at 5 complaints.
func DefaultConfig() Config {
	return Config{
		PollInterval:     time.Second,
		MaxPolls:         30,
		AutoBanThreshold: 5,
		AliasLength:      alias.DefaultLength,
	}
}
