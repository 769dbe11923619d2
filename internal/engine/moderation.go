package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pairbot/chat-engine/internal/messaging"
	"github.com/pairbot/chat-engine/internal/metrics"
	"github.com/pairbot/chat-engine/internal/store"
)

// BeginReport opens a report draft against id's current partner. The
// partner id is captured now so the report still lands after the pair
// breaks.
func (s *Service) BeginReport(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	partner, _, ok, err := s.store.Partner(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: begin report: %w", err)
	}
	if !ok {
		return ErrNotChatting
	}
	s.drafts[id] = partner
	return nil
}

// HasReportDraft reports whether id is mid-report, i.e. the next text
// from them is a report reason rather than chat content.
func (s *Service) HasReportDraft(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.drafts[id]
	return ok
}

// CancelReport drops id's draft without filing anything. No-op when no
// draft is open.
func (s *Service) CancelReport(id int64) {
	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()
}

// SubmitReport files the draft with the given reason. The pair ends,
// the target's complaint count grows, and once the count reaches the
// threshold the target is banned automatically.
func (s *Service) SubmitReport(ctx context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.drafts[id]
	if !ok {
		return ErrNoReportDraft
	}
	delete(s.drafts, id)

	if _, _, err := s.breakPairLocked(ctx, id, CauseReported); err != nil {
		return fmt.Errorf("engine: submit report: %w", err)
	}
	reportID, err := s.store.AppendReport(ctx, id, target, reason, time.Now())
	if err != nil {
		return fmt.Errorf("engine: submit report: %w", err)
	}
	count, err := s.store.IncrementComplaints(ctx, target)
	if err != nil {
		return fmt.Errorf("engine: submit report: %w", err)
	}
	metrics.ReportsTotal.Inc()

	s.publish(messaging.SubjectModAlert, ModAlert{
		Kind:          AlertReport,
		ReportID:      reportID,
		ReporterID:    id,
		ReporterAlias: s.aliasOf(ctx, id),
		TargetID:      target,
		TargetAlias:   s.aliasOf(ctx, target),
		Reason:        reason,
		Complaints:    count,
	})

	if count >= s.cfg.AutoBanThreshold && !s.exempt(target) {
		banned, err := s.store.IsBanned(ctx, target)
		if err != nil {
			return fmt.Errorf("engine: submit report: %w", err)
		}
		if !banned {
			if err := s.banLocked(ctx, target, "complaint threshold reached", true); err != nil {
				return fmt.Errorf("engine: submit report: %w", err)
			}
		}
	}
	return nil
}

// Ban bans the participant referenced by id or alias. Rejects
// already-banned targets so repeated panel taps stay harmless.
func (s *Service) Ban(ctx context.Context, ref, reason string) (*store.Participant, error) {
	p, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	banned, err := s.store.IsBanned(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("engine: ban: %w", err)
	}
	if banned {
		return p, ErrAlreadyBanned
	}
	if err := s.banLocked(ctx, p.ID, reason, false); err != nil {
		return nil, fmt.Errorf("engine: ban: %w", err)
	}
	return p, nil
}

// banLocked applies a ban: any search is withdrawn, any pair is broken
// with the partner notified, and the ban is recorded. Caller holds s.mu.
func (s *Service) banLocked(ctx context.Context, id int64, reason string, auto bool) error {
	s.abortWaiterLocked(ctx, id)
	if _, _, err := s.breakPairLocked(ctx, id, CausePartnerBanned); err != nil {
		return err
	}
	if err := s.store.AddBan(ctx, id, reason, time.Now()); err != nil {
		return err
	}
	// The ban settles the outstanding reports against the target; they
	// leave the moderator's open list the same way an ignore would.
	if err := s.store.ResolveReportsAgainst(ctx, id); err != nil {
		return err
	}
	origin := "manual"
	kind := AlertManualBan
	if auto {
		origin = "auto"
		kind = AlertAutoBan
	}
	metrics.BansTotal.WithLabelValues(origin).Inc()

	complaints := 0
	if p, err := s.store.Participant(ctx, id); err == nil {
		complaints = p.Complaints
	}
	s.publish(messaging.SubjectBanned, BanNotice{ParticipantID: id, Reason: reason, Auto: auto})
	s.publish(messaging.SubjectModAlert, ModAlert{
		Kind:        kind,
		TargetID:    id,
		TargetAlias: s.aliasOf(ctx, id),
		Reason:      reason,
		Complaints:  complaints,
	})
	return nil
}

// aliasOf is a best-effort alias lookup for notifications.
func (s *Service) aliasOf(ctx context.Context, id int64) string {
	p, err := s.store.Participant(ctx, id)
	if err != nil {
		return ""
	}
	return p.Alias
}

// Unban lifts a ban and wipes the slate: complaints reset to zero and
// open reports against the target are resolved, so the next report
// starts a fresh count.
func (s *Service) Unban(ctx context.Context, ref string) (*store.Participant, error) {
	p, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	banned, err := s.store.IsBanned(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("engine: unban: %w", err)
	}
	if !banned {
		return p, ErrNotBanned
	}
	if err := s.store.RemoveBan(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("engine: unban: %w", err)
	}
	if err := s.store.ClearComplaints(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("engine: unban: %w", err)
	}
	if err := s.store.ResolveReportsAgainst(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("engine: unban: %w", err)
	}
	s.publish(messaging.SubjectUnbanned, UnbanNotice{ParticipantID: p.ID})
	return p, nil
}

// IgnoreReport marks a report reviewed without sanction. The report and
// the complaint count stay on record.
func (s *Service) IgnoreReport(ctx context.Context, reportID int64) error {
	if err := s.store.IgnoreReport(ctx, reportID); err != nil {
		if err == store.ErrNotFound {
			return err
		}
		return fmt.Errorf("engine: ignore report: %w", err)
	}
	return nil
}

// OpenReports lists unresolved, unignored reports, oldest first.
func (s *Service) OpenReports(ctx context.Context) ([]store.Report, error) {
	return s.store.OpenReports(ctx)
}

// BannedList lists current bans, oldest first.
func (s *Service) BannedList(ctx context.Context) ([]store.BanRecord, error) {
	return s.store.Bans(ctx)
}

// ForceDisconnect ends the referenced participant's chat by moderator
// action. Both sides get the same cause.
func (s *Service) ForceDisconnect(ctx context.Context, ref string) (*store.Participant, bool, error) {
	p, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chatID := ""
	if _, cid, ok, err := s.store.Partner(ctx, p.ID); err == nil && ok {
		chatID = cid
	}
	partner, ok, err := s.breakPairLocked(ctx, p.ID, CauseModerator)
	if err != nil {
		return nil, false, fmt.Errorf("engine: disconnect: %w", err)
	}
	if !ok {
		return p, false, nil
	}
	s.publish(messaging.SubjectChatEnded, ChatEnded{ParticipantID: p.ID, ChatID: chatID, Cause: CauseModerator})
	log.Printf("[engine] moderator ended chat for %d and %d", p.ID, partner)
	return p, true, nil
}
