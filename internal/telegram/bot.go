// Package telegram adapts the pairing engine to the Telegram Bot API:
// the long-polling update loop, command and keyboard routing, relay of
// chat content between paired participants, the report dialog and the
// moderator panel. Engine events arrive over the message bus and are
// rendered here as user-facing notifications.
package telegram

import (
	"context"
	"errors"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pairbot/chat-engine/internal/engine"
	"github.com/pairbot/chat-engine/internal/ratelimit"
)

const helpText = `This bot pairs you with a random stranger for an anonymous chat.

🔎 Find a partner — join the queue
⏹ Stop — leave the current chat
⏭ Next — leave and search again
🚩 Report — report your partner and end the chat
/id — show your anonymous code

Nobody sees your name or number, only your anonymous code.`

// Bot drives the Telegram side: one update loop, one engine.
type Bot struct {
	api     botAPI
	svc     *engine.Service
	limiter *ratelimit.Limiter // nil disables throttling
	modID   int64
}

// New authorizes against the Bot API and wires the engine's delivery
// path through it.
func New(token string, svc *engine.Service, limiter *ratelimit.Limiter, modID int64) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	log.Printf("[telegram] authorized as @%s", api.Self.UserName)

	b := &Bot{api: api, svc: svc, limiter: limiter, modID: modID}
	svc.SetSender(&Sender{api: api})
	return b, nil
}

// Run consumes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			switch {
			case update.Message != nil:
				b.handleMessage(ctx, update.Message)
			case update.CallbackQuery != nil:
				b.handleCallback(ctx, update.CallbackQuery)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	id := msg.Chat.ID
	p, err := b.svc.EnsureParticipant(ctx, id)
	if err != nil {
		log.Printf("[telegram] ensure participant %d: %v", id, err)
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.handleStart(ctx, id)
		case "help":
			b.reply(id, helpText, mainKeyboard())
		case "id":
			b.reply(id, "Your anonymous code: "+p.Alias, nil)
		case "mod":
			b.handlePanel(id)
		default:
			b.reply(id, "Unknown command. Try /help.", nil)
		}
		return
	}

	// A pending report consumes the next text as its reason.
	if b.svc.HasReportDraft(id) {
		b.handleReportReason(ctx, id, msg.Text)
		return
	}

	switch msg.Text {
	case btnFind:
		b.handleSearch(ctx, id)
	case btnCancel:
		b.handleCancel(ctx, id)
	case btnStop:
		b.handleStop(ctx, id)
	case btnNext:
		b.handleNext(ctx, id)
	case btnReport:
		b.handleReport(ctx, id)
	case btnHelp:
		b.reply(id, helpText, mainKeyboard())
	default:
		b.handleRelay(ctx, id, msg)
	}
}

func (b *Bot) handleStart(ctx context.Context, id int64) {
	// /start resets whatever the participant was doing.
	if _, _, err := b.svc.Stop(ctx, id); err != nil {
		log.Printf("[telegram] reset %d: %v", id, err)
	}
	b.reply(id, "👋 Welcome! Press the button below to find a chat partner.", mainKeyboard())
}

func (b *Bot) handleSearch(ctx context.Context, id int64) {
	if !b.allow(ctx, id, ratelimit.RuleSearch) {
		b.reply(id, "Too many searches. Give it a minute.", nil)
		return
	}
	switch err := b.svc.Search(ctx, id); {
	case err == nil:
		b.reply(id, "🔎 Looking for a partner…", waitingKeyboard())
	case errors.Is(err, engine.ErrBanned):
		b.reply(id, "🚫 You are banned and cannot search for partners.", nil)
	case errors.Is(err, engine.ErrAlreadySearching):
		b.reply(id, "Already searching. Hold on.", waitingKeyboard())
	case errors.Is(err, engine.ErrAlreadyChatting):
		b.reply(id, "You are already in a chat. Stop it first.", chatKeyboard())
	default:
		log.Printf("[telegram] search %d: %v", id, err)
		b.reply(id, "Something went wrong, try again.", mainKeyboard())
	}
}

func (b *Bot) handleCancel(ctx context.Context, id int64) {
	if err := b.svc.CancelSearch(ctx, id); err != nil {
		log.Printf("[telegram] cancel search %d: %v", id, err)
	}
	b.reply(id, "Search cancelled.", mainKeyboard())
}

func (b *Bot) handleStop(ctx context.Context, id int64) {
	_, broke, err := b.svc.Stop(ctx, id)
	if err != nil {
		log.Printf("[telegram] stop %d: %v", id, err)
		return
	}
	if broke {
		b.reply(id, "🚪 Chat ended.", mainKeyboard())
	} else {
		b.reply(id, "Nothing to stop.", mainKeyboard())
	}
}

func (b *Bot) handleNext(ctx context.Context, id int64) {
	if _, broke, err := b.svc.Stop(ctx, id); err != nil {
		log.Printf("[telegram] next %d: %v", id, err)
		return
	} else if broke {
		b.reply(id, "🚪 Chat ended.", nil)
	}
	b.handleSearch(ctx, id)
}

func (b *Bot) handleReport(ctx context.Context, id int64) {
	if !b.allow(ctx, id, ratelimit.RuleReport) {
		b.reply(id, "Too many reports. Give it a minute.", nil)
		return
	}
	switch err := b.svc.BeginReport(ctx, id); {
	case err == nil:
		b.reply(id, "Describe the problem in one message. The chat will end when you send it.", reportKeyboard())
	case errors.Is(err, engine.ErrNotChatting):
		b.reply(id, "You can only report a partner while in a chat.", mainKeyboard())
	default:
		log.Printf("[telegram] begin report %d: %v", id, err)
	}
}

func (b *Bot) handleReportReason(ctx context.Context, id int64, text string) {
	if text == btnAbort {
		b.svc.CancelReport(id)
		b.reply(id, "Report cancelled.", chatKeyboard())
		return
	}
	if text == "" {
		b.reply(id, "Please describe the problem as text.", reportKeyboard())
		return
	}
	if err := b.svc.SubmitReport(ctx, id, text); err != nil {
		log.Printf("[telegram] submit report %d: %v", id, err)
		b.reply(id, "Could not file the report, try again.", chatKeyboard())
		return
	}
	b.reply(id, "🚩 Report filed. The chat has been closed.", mainKeyboard())
}

func (b *Bot) handleRelay(ctx context.Context, id int64, msg *tgbotapi.Message) {
	if !b.allow(ctx, id, ratelimit.RuleRelay) {
		b.reply(id, "Slow down.", nil)
		return
	}
	switch err := b.svc.Relay(ctx, id, fromMessage(msg)); {
	case err == nil:
	case errors.Is(err, engine.ErrNotChatting):
		b.reply(id, "You are not in a chat. Find a partner first.", mainKeyboard())
	case errors.Is(err, engine.ErrDeliveryFailed):
		b.reply(id, "⚠️ Your partner is unreachable. The chat was closed.", mainKeyboard())
	default:
		log.Printf("[telegram] relay from %d: %v", id, err)
	}
}

// allow checks a throttle rule, failing open when no limiter is wired.
func (b *Bot) allow(ctx context.Context, id int64, rule ratelimit.Rule) bool {
	if b.limiter == nil {
		return true
	}
	ok, err := b.limiter.Allow(ctx, id, rule)
	if err != nil {
		log.Printf("[telegram] ratelimit: %v", err)
		return true
	}
	return ok
}

func (b *Bot) reply(chatID int64, text string, kb interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	if kb != nil {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("[telegram] send to %d: %v", chatID, err)
	}
}

