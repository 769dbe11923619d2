package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pairbot/chat-engine/internal/content"
)

// fromMessage classifies an incoming Telegram message into relay content.
// Unclassifiable payloads come back as KindUnknown so the relay can send
// a placeholder instead of dropping them silently.
func fromMessage(msg *tgbotapi.Message) content.Content {
	switch {
	case msg.Text != "":
		return content.Text(msg.Text)
	case len(msg.Photo) > 0:
		// Telegram sends multiple sizes; the last one is the largest.
		largest := msg.Photo[len(msg.Photo)-1]
		return content.Media(content.KindImage, largest.FileID, msg.Caption)
	case msg.Voice != nil:
		return content.Media(content.KindVoice, msg.Voice.FileID, "")
	case msg.Document != nil:
		return content.Media(content.KindDocument, msg.Document.FileID, msg.Caption)
	case msg.Video != nil:
		return content.Media(content.KindVideo, msg.Video.FileID, msg.Caption)
	case msg.Sticker != nil:
		return content.Media(content.KindSticker, msg.Sticker.FileID, "")
	default:
		return content.Content{Kind: content.KindUnknown}
	}
}

// toChattable builds the outgoing Telegram payload for relay content.
// File handles pass through as FileID references, so media is forwarded
// without ever downloading it.
func toChattable(chatID int64, c content.Content) tgbotapi.Chattable {
	switch c.Kind {
	case content.KindText:
		return tgbotapi.NewMessage(chatID, c.Text)
	case content.KindImage:
		msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(c.FileRef))
		msg.Caption = c.Caption
		return msg
	case content.KindVoice:
		return tgbotapi.NewVoice(chatID, tgbotapi.FileID(c.FileRef))
	case content.KindDocument:
		msg := tgbotapi.NewDocument(chatID, tgbotapi.FileID(c.FileRef))
		msg.Caption = c.Caption
		return msg
	case content.KindVideo:
		msg := tgbotapi.NewVideo(chatID, tgbotapi.FileID(c.FileRef))
		msg.Caption = c.Caption
		return msg
	case content.KindSticker:
		return tgbotapi.NewSticker(chatID, tgbotapi.FileID(c.FileRef))
	default:
		return tgbotapi.NewMessage(chatID, "⚠️ Your partner sent something this chat cannot forward.")
	}
}
