package telegram

import (
	"encoding/json"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pairbot/chat-engine/internal/engine"
	"github.com/pairbot/chat-engine/internal/messaging"
	"github.com/pairbot/chat-engine/internal/store"
)

// SubscribeEvents wires engine events to user notifications. Call once
// before Run.
func (b *Bot) SubscribeEvents(bus messaging.Bus) error {
	subs := map[string]func([]byte){
		messaging.SubjectMatchFound:   b.onMatchFound,
		messaging.SubjectMatchTimeout: b.onMatchTimeout,
		messaging.SubjectChatEnded:    b.onChatEnded,
		messaging.SubjectBanned:       b.onBanned,
		messaging.SubjectUnbanned:     b.onUnbanned,
		messaging.SubjectModAlert:     b.onModAlert,
	}
	for subject, handler := range subs {
		if err := bus.Subscribe(subject, handler); err != nil {
			return fmt.Errorf("telegram: subscribe %s: %w", subject, err)
		}
	}
	return nil
}

func (b *Bot) onMatchFound(data []byte) {
	var ev engine.MatchFound
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("[telegram] decode match event: %v", err)
		return
	}
	for _, id := range []int64{ev.A, ev.B} {
		b.reply(id, "✅ Partner found! Say hi.", chatKeyboard())
	}
}

func (b *Bot) onMatchTimeout(data []byte) {
	var ev engine.MatchTimeout
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("[telegram] decode timeout event: %v", err)
		return
	}
	b.reply(ev.ParticipantID, "😕 Nobody is around right now. Try again in a bit.", mainKeyboard())
}

func (b *Bot) onChatEnded(data []byte) {
	var ev engine.ChatEnded
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("[telegram] decode chat-ended event: %v", err)
		return
	}
	var text string
	switch ev.Cause {
	case engine.CausePartnerLeft:
		text = "🚪 Your partner left the chat."
	case engine.CauseReported:
		text = "🚪 The chat has been closed."
	case engine.CausePartnerBanned:
		text = "🚪 Your partner was removed from the service."
	case engine.CauseDeliveryFailed:
		text = "⚠️ The chat was closed because messages could not be delivered."
	case engine.CauseModerator:
		text = "🛡 A moderator ended the chat."
	default:
		text = "🚪 The chat has ended."
	}
	b.reply(ev.ParticipantID, text, mainKeyboard())
}

func (b *Bot) onBanned(data []byte) {
	var ev engine.BanNotice
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("[telegram] decode ban event: %v", err)
		return
	}
	b.reply(ev.ParticipantID, "🚫 You have been banned: "+ev.Reason, tgbotapi.NewRemoveKeyboard(true))
}

func (b *Bot) onUnbanned(data []byte) {
	var ev engine.UnbanNotice
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("[telegram] decode unban event: %v", err)
		return
	}
	b.reply(ev.ParticipantID, "✅ Your ban has been lifted. Welcome back.", mainKeyboard())
}

func (b *Bot) onModAlert(data []byte) {
	if b.modID == 0 {
		return
	}
	var ev engine.ModAlert
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("[telegram] decode mod alert: %v", err)
		return
	}
	switch ev.Kind {
	case engine.AlertReport:
		text := fmt.Sprintf("🚩 New report #%d\nFrom %s against %s\n%s\nComplaints: %d",
			ev.ReportID, ev.ReporterAlias, ev.TargetAlias, ev.Reason, ev.Complaints)
		msg := tgbotapi.NewMessage(b.modID, text)
		msg.ReplyMarkup = reportActionsKeyboard(store.Report{ID: ev.ReportID, TargetID: ev.TargetID})
		if _, err := b.api.Send(msg); err != nil {
			log.Printf("[telegram] send mod alert: %v", err)
		}
	case engine.AlertAutoBan:
		b.reply(b.modID, fmt.Sprintf("🤖 Auto-banned %s after %d complaints.", ev.TargetAlias, ev.Complaints), nil)
	case engine.AlertManualBan:
		b.reply(b.modID, fmt.Sprintf("🚫 Banned %s: %s", ev.TargetAlias, ev.Reason), nil)
	}
}
