package store

import (
	"context"
	"os"
	"testing"
	"time"
)

// newTestPostgres connects to the database named by TEST_DATABASE_URL and
// wipes the engine tables before returning. Tests that call this helper
// skip when no test database is configured.
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	p, err := Open(dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	ctx := context.Background()
	for _, table := range []string{"bans", "reports", "pairs", "queue", "participants"} {
		if _, err := p.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("wipe %s: %v", table, err)
		}
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPostgres_PairRoundTrip(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()

	for _, id := range []int64{11, 12} {
		if _, err := p.EnsureParticipant(ctx, id); err != nil {
			t.Fatalf("EnsureParticipant(%d): %v", id, err)
		}
		if err := p.Enqueue(ctx, id, time.Now()); err != nil {
			t.Fatalf("Enqueue(%d): %v", id, err)
		}
	}

	if err := p.CreatePair(ctx, 11, 12, "11111111-2222-3333-4444-555555555555"); err != nil {
		t.Fatalf("CreatePair(): %v", err)
	}

	if n, _ := p.QueueLen(ctx); n != 0 {
		t.Errorf("expected empty queue after pairing, got %d", n)
	}
	partner, _, ok, err := p.Partner(ctx, 11)
	if err != nil || !ok || partner != 12 {
		t.Fatalf("Partner(11) = (%d, %v, %v), want (12, true, nil)", partner, ok, err)
	}
	partner, _, ok, _ = p.Partner(ctx, 12)
	if !ok || partner != 11 {
		t.Fatalf("Partner(12) = (%d, %v), want (11, true)", partner, ok)
	}

	former, ok, err := p.BreakPair(ctx, 12)
	if err != nil || !ok || former != 11 {
		t.Fatalf("BreakPair(12) = (%d, %v, %v), want (11, true, nil)", former, ok, err)
	}
	for _, id := range []int64{11, 12} {
		got, _ := p.Participant(ctx, id)
		if got.Status != StatusIdle {
			t.Errorf("participant %d: expected idle after break, got %s", id, got.Status)
		}
	}
}

func TestPostgres_ModerationRoundTrip(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()

	for _, id := range []int64{21, 22} {
		p.EnsureParticipant(ctx, id)
	}

	rid, err := p.AppendReport(ctx, 21, 22, "spam", time.Now())
	if err != nil {
		t.Fatalf("AppendReport(): %v", err)
	}
	if n, err := p.IncrementComplaints(ctx, 22); err != nil || n != 1 {
		t.Fatalf("IncrementComplaints() = (%d, %v), want (1, nil)", n, err)
	}

	open, err := p.OpenReports(ctx)
	if err != nil || len(open) != 1 || open[0].ID != rid {
		t.Fatalf("OpenReports() = (%+v, %v), want one report %d", open, err, rid)
	}

	if err := p.AddBan(ctx, 22, "threshold", time.Now()); err != nil {
		t.Fatalf("AddBan(): %v", err)
	}
	if banned, _ := p.IsBanned(ctx, 22); !banned {
		t.Fatal("expected banned=true")
	}

	if err := p.RemoveBan(ctx, 22); err != nil {
		t.Fatalf("RemoveBan(): %v", err)
	}
	if err := p.ClearComplaints(ctx, 22); err != nil {
		t.Fatalf("ClearComplaints(): %v", err)
	}
	if err := p.ResolveReportsAgainst(ctx, 22); err != nil {
		t.Fatalf("ResolveReportsAgainst(): %v", err)
	}

	got, _ := p.Participant(ctx, 22)
	if got.Banned || got.Status != StatusIdle || got.Complaints != 0 {
		t.Errorf("expected clean participant after unban, got %+v", got)
	}
	open, _ = p.OpenReports(ctx)
	if len(open) != 0 {
		t.Errorf("expected no open reports after resolve, got %d", len(open))
	}
}

func TestPostgres_AliasUnique(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()
	p.EnsureParticipant(ctx, 31)
	p.EnsureParticipant(ctx, 32)

	if err := p.SetAlias(ctx, 31, "QQ11WW"); err != nil {
		t.Fatalf("SetAlias(): %v", err)
	}
	if err := p.SetAlias(ctx, 32, "QQ11WW"); err != ErrAliasTaken {
		t.Fatalf("expected ErrAliasTaken, got %v", err)
	}
	got, err := p.ParticipantByAlias(ctx, "QQ11WW")
	if err != nil || got.ID != 31 {
		t.Fatalf("ParticipantByAlias() = (%+v, %v), want id 31", got, err)
	}
}
