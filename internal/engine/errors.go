package engine

import "errors"

// Validation errors: the requested action is not legal in the caller's
// current state. None of them mutate any state.
var (
	// ErrBanned rejects actions from a banned participant.
	ErrBanned = errors.New("engine: participant is banned")

	// ErrAlreadyChatting rejects a search while a conversation is active.
	ErrAlreadyChatting = errors.New("engine: already in a conversation")

	// ErrAlreadySearching rejects a second concurrent search request.
	ErrAlreadySearching = errors.New("engine: search already in progress")

	// ErrNotChatting rejects relay and report actions outside a
	// conversation.
	ErrNotChatting = errors.New("engine: not in a conversation")

	// ErrNoReportDraft rejects a report submission with no open draft.
	ErrNoReportDraft = errors.New("engine: no report draft open")

	// ErrAlreadyBanned rejects banning a participant twice.
	ErrAlreadyBanned = errors.New("engine: participant is already banned")

	// ErrNotBanned rejects unbanning a participant who is not banned.
	ErrNotBanned = errors.New("engine: participant is not banned")

	// ErrDeliveryFailed wraps a transport failure that broke the pair.
	ErrDeliveryFailed = errors.New("engine: delivery to partner failed")
)
