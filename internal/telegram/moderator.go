package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pairbot/chat-engine/internal/engine"
	"github.com/pairbot/chat-engine/internal/store"
)

func (b *Bot) handlePanel(chatID int64) {
	if chatID != b.modID || b.modID == 0 {
		b.reply(chatID, "Unknown command. Try /help.", nil)
		return
	}
	msg := tgbotapi.NewMessage(chatID, "🛡 Moderator panel")
	msg.ReplyMarkup = moderatorKeyboard()
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("[telegram] send panel: %v", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// Ack first so the client drops its loading spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		log.Printf("[telegram] ack callback: %v", err)
	}
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	if chatID != b.modID || b.modID == 0 {
		return
	}

	data := cq.Data
	switch {
	case data == cbModReport:
		b.sendOpenReports(ctx, chatID)
	case data == cbModStats:
		b.sendStats(ctx, chatID)
	case data == cbModBans:
		b.sendBans(ctx, chatID)
	case strings.HasPrefix(data, cbBan):
		b.actBan(ctx, chatID, strings.TrimPrefix(data, cbBan))
	case strings.HasPrefix(data, cbIgnore):
		b.actIgnore(ctx, chatID, strings.TrimPrefix(data, cbIgnore))
	case strings.HasPrefix(data, cbUnban):
		b.actUnban(ctx, chatID, strings.TrimPrefix(data, cbUnban))
	case strings.HasPrefix(data, cbEndChat):
		b.actEndChat(ctx, chatID, strings.TrimPrefix(data, cbEndChat))
	}
}

func (b *Bot) sendOpenReports(ctx context.Context, chatID int64) {
	reports, err := b.svc.OpenReports(ctx)
	if err != nil {
		log.Printf("[telegram] open reports: %v", err)
		b.reply(chatID, "Could not load reports.", nil)
		return
	}
	if len(reports) == 0 {
		b.reply(chatID, "No open reports.", nil)
		return
	}
	for _, r := range reports {
		msg := tgbotapi.NewMessage(chatID, b.renderReport(ctx, r))
		msg.ReplyMarkup = reportActionsKeyboard(r)
		if _, err := b.api.Send(msg); err != nil {
			log.Printf("[telegram] send report %d: %v", r.ID, err)
		}
	}
}

func (b *Bot) renderReport(ctx context.Context, r store.Report) string {
	reporter := b.aliasFor(ctx, r.ReporterID)
	target := b.aliasFor(ctx, r.TargetID)
	return fmt.Sprintf("🚩 Report #%d\nFrom %s against %s\n%s\nFiled %s",
		r.ID, reporter, target, r.Reason, r.CreatedAt.Format("2006-01-02 15:04"))
}

func (b *Bot) aliasFor(ctx context.Context, id int64) string {
	p, err := b.svc.Lookup(ctx, strconv.FormatInt(id, 10))
	if err != nil || p.Alias == "" {
		return strconv.FormatInt(id, 10)
	}
	return p.Alias
}

func (b *Bot) sendStats(ctx context.Context, chatID int64) {
	st, err := b.svc.Stats(ctx)
	if err != nil {
		log.Printf("[telegram] stats: %v", err)
		b.reply(chatID, "Could not load stats.", nil)
		return
	}
	text := fmt.Sprintf(
		"📈 Stats\nParticipants: %d\nIdle: %d\nSearching: %d\nChatting: %d\nBanned: %d\nQueued: %d\nActive pairs: %d\nComplaints: %d\nOpen reports: %d",
		st.Participants, st.Idle, st.Waiting, st.Chatting, st.Banned,
		st.Queued, st.ActivePairs, st.Complaints, st.OpenReports)
	b.reply(chatID, text, nil)
}

func (b *Bot) sendBans(ctx context.Context, chatID int64) {
	bans, err := b.svc.BannedList(ctx)
	if err != nil {
		log.Printf("[telegram] bans: %v", err)
		b.reply(chatID, "Could not load the ban list.", nil)
		return
	}
	if len(bans) == 0 {
		b.reply(chatID, "Nobody is banned.", nil)
		return
	}
	for _, ban := range bans {
		text := fmt.Sprintf("🚫 %s\n%s\nSince %s",
			b.aliasFor(ctx, ban.ParticipantID), ban.Reason,
			ban.BannedAt.Format("2006-01-02 15:04"))
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = unbanKeyboard(ban.ParticipantID)
		if _, err := b.api.Send(msg); err != nil {
			log.Printf("[telegram] send ban entry: %v", err)
		}
	}
}

func (b *Bot) actBan(ctx context.Context, chatID int64, ref string) {
	p, err := b.svc.Ban(ctx, ref, "moderator action")
	switch {
	case err == nil:
		b.reply(chatID, "Banned "+p.Alias+".", nil)
	case errors.Is(err, engine.ErrAlreadyBanned):
		b.reply(chatID, "Already banned.", nil)
	case errors.Is(err, store.ErrNotFound):
		b.reply(chatID, "No such participant.", nil)
	default:
		log.Printf("[telegram] ban %s: %v", ref, err)
		b.reply(chatID, "Ban failed.", nil)
	}
}

func (b *Bot) actIgnore(ctx context.Context, chatID int64, ref string) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return
	}
	switch err := b.svc.IgnoreReport(ctx, id); {
	case err == nil:
		b.reply(chatID, fmt.Sprintf("Report #%d dismissed.", id), nil)
	case errors.Is(err, store.ErrNotFound):
		b.reply(chatID, "Report not found.", nil)
	default:
		log.Printf("[telegram] ignore report %d: %v", id, err)
	}
}

func (b *Bot) actUnban(ctx context.Context, chatID int64, ref string) {
	p, err := b.svc.Unban(ctx, ref)
	switch {
	case err == nil:
		b.reply(chatID, "Unbanned "+p.Alias+".", nil)
	case errors.Is(err, engine.ErrNotBanned):
		b.reply(chatID, "Not banned.", nil)
	case errors.Is(err, store.ErrNotFound):
		b.reply(chatID, "No such participant.", nil)
	default:
		log.Printf("[telegram] unban %s: %v", ref, err)
		b.reply(chatID, "Unban failed.", nil)
	}
}

func (b *Bot) actEndChat(ctx context.Context, chatID int64, ref string) {
	p, broke, err := b.svc.ForceDisconnect(ctx, ref)
	switch {
	case err == nil && broke:
		b.reply(chatID, "Ended the chat for "+p.Alias+".", nil)
	case err == nil:
		b.reply(chatID, p.Alias+" is not in a chat.", nil)
	case errors.Is(err, store.ErrNotFound):
		b.reply(chatID, "No such participant.", nil)
	default:
		log.Printf("[telegram] end chat %s: %v", ref, err)
		b.reply(chatID, "Could not end the chat.", nil)
	}
}
