package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pairbot/chat-engine/internal/content"
)

// botAPI is the slice of tgbotapi.BotAPI the adapter uses. Kept narrow so
// tests can substitute a recorder without a live token.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Sender delivers relay content over the Telegram Bot API. It implements
// the engine's delivery contract; errors bubble up so the engine can end
// the pair.
type Sender struct {
	api botAPI
}

// NewSender wraps a bot API client for relay delivery.
func NewSender(api *tgbotapi.BotAPI) *Sender {
	return &Sender{api: api}
}

func (s *Sender) Send(ctx context.Context, to int64, c content.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.api.Send(toChattable(to, c)); err != nil {
		return fmt.Errorf("telegram: send to %d: %w", to, err)
	}
	return nil
}
