// Package store provides the persistence layer for the pairing engine:
// participant records, the wait queue, the symmetric pair table, abuse
// reports and ban records. Two implementations are provided, PostgreSQL
// (durable, survives restarts) and in-memory (process-local fallback),
// behind a single interface so the engine behaves identically against
// either. A failover wrapper degrades from PostgreSQL to memory when the
// database connection is lost mid-process.
package store

import (
	"context"
	"errors"
	"time"
)

// Participant status values. The engine owns the transition rules; the
// store only records the current state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusWaiting  Status = "waiting"
	StatusChatting Status = "chatting"
	StatusBanned   Status = "banned"
)

// Sentinel errors shared by all implementations.
var (
	// ErrNotFound is returned when a participant, report or ban record
	// does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAliasTaken is returned by SetAlias when the alias is already
	// issued to another participant.
	ErrAliasTaken = errors.New("store: alias already taken")

	// ErrAlreadyPaired is returned by CreatePair when either participant
	// already has a pair row.
	ErrAlreadyPaired = errors.New("store: participant already paired")
)

// Participant is one end user of the pairing system. The ID is assigned
// externally (the transport's numeric user id) and never changes.
type Participant struct {
	ID         int64
	Alias      string
	Status     Status
	Banned     bool
	Complaints int
}

// QueueEntry is a participant waiting for a partner.
type QueueEntry struct {
	ParticipantID int64
	EnqueuedAt    time.Time
}

// Report is one abuse complaint filed by a participant against their
// partner. Reports are append-only; only the resolution flags mutate.
type Report struct {
	ID         int64
	ReporterID int64
	TargetID   int64
	Reason     string
	CreatedAt  time.Time
	Resolved   bool
	Ignored    bool
}

// BanRecord marks a participant as banned. Its presence implies
// Participant.Banned and excludes the participant from the queue and the
// pair table.
type BanRecord struct {
	ParticipantID int64
	Reason        string
	BannedAt      time.Time
}

// Stats is a point-in-time snapshot for the moderator panel.
type Stats struct {
	Participants int
	Idle         int
	Waiting      int
	Chatting     int
	Banned       int
	Queued       int
	ActivePairs  int
	Complaints   int
	OpenReports  int
}

// Store is the persistence collaborator consumed by the engine. Mutations
// touching more than one participant (CreatePair, BreakPair) must be
// applied atomically: a transaction on PostgreSQL, a single critical
// section in memory. The engine additionally serializes all pairing
// decisions through a single-writer path, so implementations may assume no
// two multi-participant mutations for the same participant run
// concurrently.
type Store interface {
	// EnsureParticipant creates an idle participant record on first
	// contact and returns the current record either way.
	EnsureParticipant(ctx context.Context, id int64) (*Participant, error)

	// Participant returns the record for id, or ErrNotFound.
	Participant(ctx context.Context, id int64) (*Participant, error)

	// ParticipantByAlias resolves a participant by its issued alias, or
	// ErrNotFound.
	ParticipantByAlias(ctx context.Context, alias string) (*Participant, error)

	// SetAlias assigns an alias to a participant. Returns ErrAliasTaken
	// when another participant already holds it.
	SetAlias(ctx context.Context, id int64, alias string) error

	// SetStatus records a participant's lifecycle state.
	SetStatus(ctx context.Context, id int64, status Status) error

	// Enqueue adds a participant to the wait queue. Enqueuing a
	// participant that is already queued is a no-op, preserving the
	// original position.
	Enqueue(ctx context.Context, id int64, at time.Time) error

	// Dequeue removes a participant from the wait queue. Removing an
	// absent participant is a no-op.
	Dequeue(ctx context.Context, id int64) error

	// PeekEarliest returns the earliest-enqueued participant other than
	// exclude, or ok=false when the queue holds no other entry.
	PeekEarliest(ctx context.Context, exclude int64) (id int64, ok bool, err error)

	// QueueLen returns the number of queued participants.
	QueueLen(ctx context.Context) (int, error)

	// CreatePair atomically removes both participants from the queue,
	// inserts the symmetric pair rows tagged with chatID and flips both
	// statuses to chatting.
	CreatePair(ctx context.Context, a, b int64, chatID string) error

	// Partner returns the current partner and chat id for a participant,
	// or ok=false when unpaired.
	Partner(ctx context.Context, id int64) (partner int64, chatID string, ok bool, err error)

	// BreakPair atomically removes both directed pair rows and flips both
	// statuses back to idle. Returns the former partner. Breaking an
	// unpaired participant is a no-op with ok=false.
	BreakPair(ctx context.Context, id int64) (partner int64, ok bool, err error)

	// AppendReport stores a new unresolved report and returns its id.
	AppendReport(ctx context.Context, reporter, target int64, reason string, at time.Time) (int64, error)

	// OpenReports lists reports that are neither resolved nor ignored,
	// oldest first.
	OpenReports(ctx context.Context) ([]Report, error)

	// IgnoreReport hides a report from the open list while retaining it
	// for statistics. Returns ErrNotFound for an unknown id.
	IgnoreReport(ctx context.Context, reportID int64) error

	// ResolveReportsAgainst marks every report targeting the participant
	// as resolved.
	ResolveReportsAgainst(ctx context.Context, target int64) error

	// IncrementComplaints bumps the participant's complaint counter by one
	// and returns the new value.
	IncrementComplaints(ctx context.Context, id int64) (int, error)

	// ClearComplaints resets the participant's complaint counter to zero.
	ClearComplaints(ctx context.Context, id int64) error

	// AddBan records a ban and marks the participant banned.
	AddBan(ctx context.Context, id int64, reason string, at time.Time) error

	// RemoveBan deletes the ban record and returns the participant to
	// idle. Returns ErrNotFound when no ban exists.
	RemoveBan(ctx context.Context, id int64) error

	// Bans lists all active ban records, oldest first.
	Bans(ctx context.Context) ([]BanRecord, error)

	// IsBanned reports whether the participant is currently banned.
	IsBanned(ctx context.Context, id int64) (bool, error)

	// Stats returns a snapshot of participant, queue, pair, complaint and
	// report counts.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the underlying resources.
	Close() error
}
