package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pairbot/chat-engine/internal/content"
	"github.com/pairbot/chat-engine/internal/messaging"
	"github.com/pairbot/chat-engine/internal/store"
)

// recordingSender captures everything the engine asks it to deliver.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentItem
	fail bool
}

type sentItem struct {
	to int64
	c  content.Content
}

func (r *recordingSender) Send(ctx context.Context, to int64, c content.Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("endpoint unreachable")
	}
	r.sent = append(r.sent, sentItem{to: to, c: c})
	return nil
}

func newTestService(t *testing.T, cfg Config) (*Service, *store.Memory, *recordingSender) {
	t.Helper()
	st := store.NewMemory()
	bus := messaging.NewLocalBus()
	t.Cleanup(func() {
		bus.Close()
		st.Close()
	})
	svc := New(cfg, st, bus)
	snd := &recordingSender{}
	svc.SetSender(snd)
	return svc, st, snd
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MaxPolls = 4
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mustEnsure(t *testing.T, svc *Service, ids ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if _, err := svc.EnsureParticipant(ctx, id); err != nil {
			t.Fatalf("ensure %d: %v", id, err)
		}
	}
}

func pairUp(t *testing.T, svc *Service, a, b int64) {
	t.Helper()
	ctx := context.Background()
	if err := svc.Search(ctx, a); err != nil {
		t.Fatalf("search %d: %v", a, err)
	}
	if err := svc.Search(ctx, b); err != nil {
		t.Fatalf("search %d: %v", b, err)
	}
	waitFor(t, "pairing", func() bool {
		_, _, ok, _ := svc.Partner(ctx, a)
		return ok
	})
}

func TestEnsureParticipantAssignsAlias(t *testing.T) {
	svc, _, _ := newTestService(t, fastConfig())
	ctx := context.Background()

	p, err := svc.EnsureParticipant(ctx, 1)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if p.Alias == "" {
		t.Fatal("expected an alias on first contact")
	}
	again, err := svc.EnsureParticipant(ctx, 1)
	if err != nil {
		t.Fatalf("ensure twice: %v", err)
	}
	if again.Alias != p.Alias {
		t.Fatalf("alias changed on repeat contact: %q then %q", p.Alias, again.Alias)
	}
}

func TestSearchPairsEarliestWaiter(t *testing.T) {
	svc, st, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)

	pairUp(t, svc, 1, 2)

	p1, chat1, ok, err := svc.Partner(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("partner of 1: ok=%v err=%v", ok, err)
	}
	p2, chat2, ok, err := svc.Partner(ctx, 2)
	if err != nil || !ok {
		t.Fatalf("partner of 2: ok=%v err=%v", ok, err)
	}
	if p1 != 2 || p2 != 1 {
		t.Fatalf("pairing not symmetric: 1->%d 2->%d", p1, p2)
	}
	if chat1 != chat2 || chat1 == "" {
		t.Fatalf("chat ids disagree: %q vs %q", chat1, chat2)
	}
	if n, _ := st.QueueLen(ctx); n != 0 {
		t.Fatalf("queue should be empty after pairing, got %d", n)
	}
}

func TestSearchTimesOutAlone(t *testing.T) {
	svc, st, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1)

	if err := svc.Search(ctx, 1); err != nil {
		t.Fatalf("search: %v", err)
	}
	waitFor(t, "timeout", func() bool {
		p, err := st.Participant(ctx, 1)
		return err == nil && p.Status == store.StatusIdle
	})
	if n, _ := st.QueueLen(ctx); n != 0 {
		t.Fatalf("queue should be empty after timeout, got %d", n)
	}
	// A new search must be accepted once the previous one expired.
	if err := svc.Search(ctx, 1); err != nil {
		t.Fatalf("search after timeout: %v", err)
	}
}

func TestSearchRejectsDuplicatesAndChatters(t *testing.T) {
	svc, _, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2, 3)

	if err := svc.Search(ctx, 3); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := svc.Search(ctx, 3); !errors.Is(err, ErrAlreadySearching) {
		t.Fatalf("expected ErrAlreadySearching, got %v", err)
	}
	if err := svc.CancelSearch(ctx, 3); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	pairUp(t, svc, 1, 2)
	if err := svc.Search(ctx, 1); !errors.Is(err, ErrAlreadyChatting) {
		t.Fatalf("expected ErrAlreadyChatting, got %v", err)
	}
}

func TestSearchRejectsBanned(t *testing.T) {
	svc, _, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1)

	if _, err := svc.Ban(ctx, "1", "spam"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if err := svc.Search(ctx, 1); !errors.Is(err, ErrBanned) {
		t.Fatalf("expected ErrBanned, got %v", err)
	}
}

func TestModeratorExemptFromBanGate(t *testing.T) {
	cfg := fastConfig()
	cfg.ModeratorID = 99
	cfg.ModeratorExempt = true
	svc, _, _ := newTestService(t, cfg)
	ctx := context.Background()
	mustEnsure(t, svc, 99)

	if _, err := svc.Ban(ctx, "99", "test"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if err := svc.Search(ctx, 99); err != nil {
		t.Fatalf("exempt moderator should still search, got %v", err)
	}
}

func TestCancelSearch(t *testing.T) {
	svc, st, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1)

	if err := svc.Search(ctx, 1); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := svc.CancelSearch(ctx, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	p, _ := st.Participant(ctx, 1)
	if p.Status != store.StatusIdle {
		t.Fatalf("status after cancel = %q, want idle", p.Status)
	}
	if n, _ := st.QueueLen(ctx); n != 0 {
		t.Fatalf("queue should be empty after cancel, got %d", n)
	}
	// Cancelling with no search running is a no-op.
	if err := svc.CancelSearch(ctx, 1); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
}

func TestCancelAfterMatchIsNoOp(t *testing.T) {
	svc, _, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	if err := svc.CancelSearch(ctx, 1); err != nil {
		t.Fatalf("cancel after match: %v", err)
	}
	if _, _, ok, _ := svc.Partner(ctx, 1); !ok {
		t.Fatal("cancel after match must not break the pair")
	}
}

func TestStopEndsChatForBoth(t *testing.T) {
	svc, st, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	partner, broke, err := svc.Stop(ctx, 1)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !broke || partner != 2 {
		t.Fatalf("stop: broke=%v partner=%d", broke, partner)
	}
	for _, id := range []int64{1, 2} {
		if _, _, ok, _ := svc.Partner(ctx, id); ok {
			t.Fatalf("participant %d still paired after stop", id)
		}
		p, _ := st.Participant(ctx, id)
		if p.Status != store.StatusIdle {
			t.Fatalf("participant %d status = %q, want idle", id, p.Status)
		}
	}
	// Stopping again finds nothing to do.
	if _, broke, err := svc.Stop(ctx, 1); err != nil || broke {
		t.Fatalf("second stop: broke=%v err=%v", broke, err)
	}
}

func TestStopWithdrawsActiveSearch(t *testing.T) {
	svc, st, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1)

	if err := svc.Search(ctx, 1); err != nil {
		t.Fatalf("search: %v", err)
	}
	if _, broke, err := svc.Stop(ctx, 1); err != nil || broke {
		t.Fatalf("stop while searching: broke=%v err=%v", broke, err)
	}
	if n, _ := st.QueueLen(ctx); n != 0 {
		t.Fatalf("queue should be empty, got %d", n)
	}
}

func TestRelayDeliversToPartner(t *testing.T) {
	svc, _, snd := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	if err := svc.Relay(ctx, 1, content.Text("hello")); err != nil {
		t.Fatalf("relay: %v", err)
	}
	snd.mu.Lock()
	defer snd.mu.Unlock()
	if len(snd.sent) != 1 {
		t.Fatalf("sent %d items, want 1", len(snd.sent))
	}
	if snd.sent[0].to != 2 || snd.sent[0].c.Text != "hello" {
		t.Fatalf("unexpected delivery: %+v", snd.sent[0])
	}
}

func TestRelayWithoutPartner(t *testing.T) {
	svc, _, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1)

	err := svc.Relay(ctx, 1, content.Text("hello"))
	if !errors.Is(err, ErrNotChatting) {
		t.Fatalf("expected ErrNotChatting, got %v", err)
	}
}

func TestRelayFailureBreaksPair(t *testing.T) {
	svc, _, snd := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	snd.fail = true
	err := svc.Relay(ctx, 1, content.Text("hello"))
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if _, _, ok, _ := svc.Partner(ctx, 1); ok {
		t.Fatal("pair should break when delivery fails")
	}
}

func TestReportFlow(t *testing.T) {
	svc, st, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)

	if err := svc.BeginReport(ctx, 1); !errors.Is(err, ErrNotChatting) {
		t.Fatalf("report without partner: got %v", err)
	}
	if err := svc.SubmitReport(ctx, 1, "rude"); !errors.Is(err, ErrNoReportDraft) {
		t.Fatalf("submit without draft: got %v", err)
	}

	pairUp(t, svc, 1, 2)
	if err := svc.BeginReport(ctx, 1); err != nil {
		t.Fatalf("begin report: %v", err)
	}
	if !svc.HasReportDraft(1) {
		t.Fatal("expected an open draft")
	}
	if err := svc.SubmitReport(ctx, 1, "rude"); err != nil {
		t.Fatalf("submit report: %v", err)
	}
	if svc.HasReportDraft(1) {
		t.Fatal("draft should be consumed")
	}
	if _, _, ok, _ := svc.Partner(ctx, 1); ok {
		t.Fatal("pair should break on report")
	}
	p2, _ := st.Participant(ctx, 2)
	if p2.Complaints != 1 {
		t.Fatalf("complaints = %d, want 1", p2.Complaints)
	}
	open, err := svc.OpenReports(ctx)
	if err != nil {
		t.Fatalf("open reports: %v", err)
	}
	if len(open) != 1 || open[0].TargetID != 2 || open[0].Reason != "rude" {
		t.Fatalf("unexpected open reports: %+v", open)
	}
}

func TestReportDraftSurvivesPartnerLeaving(t *testing.T) {
	svc, st, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	if err := svc.BeginReport(ctx, 1); err != nil {
		t.Fatalf("begin report: %v", err)
	}
	// Drafts are dropped when the pair breaks first: the target context
	// is gone.
	if _, _, err := svc.Stop(ctx, 2); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if svc.HasReportDraft(1) {
		t.Fatal("draft should not outlive the pair")
	}
	if p, _ := st.Participant(ctx, 2); p.Complaints != 0 {
		t.Fatalf("no report was filed, complaints = %d", p.Complaints)
	}
}

func TestCancelReport(t *testing.T) {
	svc, _, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	if err := svc.BeginReport(ctx, 1); err != nil {
		t.Fatalf("begin report: %v", err)
	}
	svc.CancelReport(1)
	if svc.HasReportDraft(1) {
		t.Fatal("draft should be gone after cancel")
	}
	if _, _, ok, _ := svc.Partner(ctx, 1); !ok {
		t.Fatal("cancelling a report must not end the chat")
	}
}

func TestAutoBanAtThreshold(t *testing.T) {
	cfg := fastConfig()
	cfg.AutoBanThreshold = 2
	svc, st, _ := newTestService(t, cfg)
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2, 3)

	report := func(reporter int64) {
		t.Helper()
		pairUp(t, svc, reporter, 2)
		if err := svc.BeginReport(ctx, reporter); err != nil {
			t.Fatalf("begin report: %v", err)
		}
		if err := svc.SubmitReport(ctx, reporter, "abuse"); err != nil {
			t.Fatalf("submit report: %v", err)
		}
	}

	report(1)
	if banned, _ := st.IsBanned(ctx, 2); banned {
		t.Fatal("banned below threshold")
	}
	report(3)
	if banned, _ := st.IsBanned(ctx, 2); !banned {
		t.Fatal("expected auto-ban at threshold")
	}
	if err := svc.Search(ctx, 2); !errors.Is(err, ErrBanned) {
		t.Fatalf("banned participant searched: %v", err)
	}
}

func TestManualBanWhileSearching(t *testing.T) {
	svc, st, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1)

	if err := svc.Search(ctx, 1); err != nil {
		t.Fatalf("search: %v", err)
	}
	if _, err := svc.Ban(ctx, "1", "spam"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if n, _ := st.QueueLen(ctx); n != 0 {
		t.Fatalf("banned participant still queued, len=%d", n)
	}
	if _, err := svc.Ban(ctx, "1", "again"); !errors.Is(err, ErrAlreadyBanned) {
		t.Fatalf("expected ErrAlreadyBanned, got %v", err)
	}
}

func TestBanConcurrentWithSearchNeverLeavesBannedQueued(t *testing.T) {
	// Whatever order a simultaneous search and ban land in, the banned
	// participant must end up outside the queue with no live search.
	for i := 0; i < 50; i++ {
		svc, st, _ := newTestService(t, fastConfig())
		ctx := context.Background()
		mustEnsure(t, svc, 1)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := svc.Search(ctx, 1); err != nil && !errors.Is(err, ErrBanned) {
				t.Errorf("search: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.Ban(ctx, "1", "spam"); err != nil {
				t.Errorf("ban: %v", err)
			}
		}()
		wg.Wait()

		if banned, _ := st.IsBanned(ctx, 1); !banned {
			t.Fatal("ban did not stick")
		}
		if n, _ := st.QueueLen(ctx); n != 0 {
			t.Fatalf("banned participant in wait queue, len=%d", n)
		}
		svc.mu.Lock()
		_, live := svc.waiters[1]
		svc.mu.Unlock()
		if live {
			t.Fatal("banned participant still has a live search")
		}
	}
}

func TestBanWhileChattingNotifiesPartner(t *testing.T) {
	svc, _, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	if _, err := svc.Ban(ctx, "1", "spam"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, _, ok, _ := svc.Partner(ctx, 2); ok {
		t.Fatal("partner should be released when the other side is banned")
	}
}

func TestBanResolvesAlias(t *testing.T) {
	svc, st, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	p, err := svc.EnsureParticipant(ctx, 7)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := svc.Ban(ctx, p.Alias, "spam"); err != nil {
		t.Fatalf("ban by alias: %v", err)
	}
	if banned, _ := st.IsBanned(ctx, 7); !banned {
		t.Fatal("alias reference did not resolve")
	}
	if _, err := svc.Ban(ctx, "no-such-ref", "spam"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown reference: got %v", err)
	}
}

func TestBanResolvesOpenReports(t *testing.T) {
	svc, _, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	if err := svc.BeginReport(ctx, 1); err != nil {
		t.Fatalf("begin report: %v", err)
	}
	if err := svc.SubmitReport(ctx, 1, "abuse"); err != nil {
		t.Fatalf("submit report: %v", err)
	}
	if open, _ := svc.OpenReports(ctx); len(open) != 1 {
		t.Fatalf("open reports before ban = %d, want 1", len(open))
	}

	if _, err := svc.Ban(ctx, "2", "spam"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	open, err := svc.OpenReports(ctx)
	if err != nil {
		t.Fatalf("open reports: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("reports against a banned target still open: %+v", open)
	}
}

func TestAutoBanResolvesTriggeringReport(t *testing.T) {
	cfg := fastConfig()
	cfg.AutoBanThreshold = 1
	svc, st, _ := newTestService(t, cfg)
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	if err := svc.BeginReport(ctx, 1); err != nil {
		t.Fatalf("begin report: %v", err)
	}
	if err := svc.SubmitReport(ctx, 1, "abuse"); err != nil {
		t.Fatalf("submit report: %v", err)
	}
	if banned, _ := st.IsBanned(ctx, 2); !banned {
		t.Fatal("expected auto-ban")
	}
	if open, _ := svc.OpenReports(ctx); len(open) != 0 {
		t.Fatalf("auto-ban left reports open: %+v", open)
	}
}

func TestUnbanClearsComplaintsAndReports(t *testing.T) {
	cfg := fastConfig()
	cfg.AutoBanThreshold = 1
	svc, st, _ := newTestService(t, cfg)
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	if err := svc.BeginReport(ctx, 1); err != nil {
		t.Fatalf("begin report: %v", err)
	}
	if err := svc.SubmitReport(ctx, 1, "abuse"); err != nil {
		t.Fatalf("submit report: %v", err)
	}
	if banned, _ := st.IsBanned(ctx, 2); !banned {
		t.Fatal("expected auto-ban")
	}

	if _, err := svc.Unban(ctx, "2"); err != nil {
		t.Fatalf("unban: %v", err)
	}
	p, _ := st.Participant(ctx, 2)
	if p.Complaints != 0 {
		t.Fatalf("complaints after unban = %d, want 0", p.Complaints)
	}
	open, _ := svc.OpenReports(ctx)
	if len(open) != 0 {
		t.Fatalf("reports still open after unban: %+v", open)
	}
	if err := svc.Search(ctx, 2); err != nil {
		t.Fatalf("unbanned participant should search again: %v", err)
	}
	if _, err := svc.Unban(ctx, "2"); !errors.Is(err, ErrNotBanned) {
		t.Fatalf("expected ErrNotBanned, got %v", err)
	}
}

func TestIgnoreReportKeepsComplaintCount(t *testing.T) {
	svc, st, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	if err := svc.BeginReport(ctx, 1); err != nil {
		t.Fatalf("begin report: %v", err)
	}
	if err := svc.SubmitReport(ctx, 1, "abuse"); err != nil {
		t.Fatalf("submit report: %v", err)
	}
	open, _ := svc.OpenReports(ctx)
	if len(open) != 1 {
		t.Fatalf("open reports = %d, want 1", len(open))
	}
	if err := svc.IgnoreReport(ctx, open[0].ID); err != nil {
		t.Fatalf("ignore: %v", err)
	}
	open, _ = svc.OpenReports(ctx)
	if len(open) != 0 {
		t.Fatal("ignored report still listed")
	}
	// Ignoring dismisses the report, not the complaint it recorded.
	p, _ := st.Participant(ctx, 2)
	if p.Complaints != 1 {
		t.Fatalf("complaints = %d, want 1", p.Complaints)
	}
	if err := svc.IgnoreReport(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown report id: got %v", err)
	}
}

func TestForceDisconnect(t *testing.T) {
	svc, _, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	mustEnsure(t, svc, 1, 2)
	pairUp(t, svc, 1, 2)

	p, broke, err := svc.ForceDisconnect(ctx, "1")
	if err != nil || !broke {
		t.Fatalf("disconnect: broke=%v err=%v", broke, err)
	}
	if p.ID != 1 {
		t.Fatalf("resolved wrong participant: %d", p.ID)
	}
	if _, _, ok, _ := svc.Partner(ctx, 2); ok {
		t.Fatal("pair survived the disconnect")
	}
	if _, broke, err := svc.ForceDisconnect(ctx, "1"); err != nil || broke {
		t.Fatalf("second disconnect: broke=%v err=%v", broke, err)
	}
}

func TestMatchFoundEventPublished(t *testing.T) {
	svc, _, _ := newTestService(t, fastConfig())
	mustEnsure(t, svc, 1, 2)

	var mu sync.Mutex
	var got []string
	bus := messaging.NewLocalBus()
	defer bus.Close()
	svc.bus = bus
	bus.Subscribe(messaging.SubjectMatchFound, func(data []byte) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	})

	pairUp(t, svc, 1, 2)
	waitFor(t, "match event", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
}

func TestConcurrentSearchersAllPairOrTimeOut(t *testing.T) {
	svc, st, _ := newTestService(t, fastConfig())
	ctx := context.Background()

	const n = 10
	ids := make([]int64, 0, n)
	for i := int64(1); i <= n; i++ {
		ids = append(ids, i)
	}
	mustEnsure(t, svc, ids...)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := svc.Search(ctx, id); err != nil {
				t.Errorf("search %d: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	waitFor(t, "all searches settled", func() bool {
		for _, id := range ids {
			p, err := st.Participant(ctx, id)
			if err != nil || p.Status == store.StatusWaiting {
				return false
			}
		}
		return true
	})

	chatting := 0
	for _, id := range ids {
		partner, _, ok, err := svc.Partner(ctx, id)
		if err != nil {
			t.Fatalf("partner %d: %v", id, err)
		}
		if !ok {
			continue
		}
		chatting++
		back, _, ok, err := svc.Partner(ctx, partner)
		if err != nil || !ok || back != id {
			t.Fatalf("pair not symmetric for %d<->%d", id, partner)
		}
	}
	if chatting%2 != 0 {
		t.Fatalf("odd number of chatting participants: %d", chatting)
	}
	if n, _ := st.QueueLen(ctx); n != 0 {
		t.Fatalf("queue not drained, len=%d", n)
	}
}

func TestLookupByIDAndAlias(t *testing.T) {
	svc, _, _ := newTestService(t, fastConfig())
	ctx := context.Background()
	p, err := svc.EnsureParticipant(ctx, 42)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	byID, err := svc.Lookup(ctx, strconv.FormatInt(p.ID, 10))
	if err != nil || byID.ID != 42 {
		t.Fatalf("lookup by id: %+v %v", byID, err)
	}
	byAlias, err := svc.Lookup(ctx, p.Alias)
	if err != nil || byAlias.ID != 42 {
		t.Fatalf("lookup by alias: %+v %v", byAlias, err)
	}
	if _, err := svc.Lookup(ctx, "ZZZZZZZZ"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown lookup: got %v", err)
	}
}
