package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pairbot/chat-engine/internal/store"
)

// Button labels. The update loop matches incoming text against these, so
// they double as the command surface for keyboard users.
const (
	btnFind   = "🔎 Find a partner"
	btnHelp   = "ℹ️ Help"
	btnCancel = "✖️ Cancel search"
	btnStop   = "⏹ Stop"
	btnNext   = "⏭ Next"
	btnReport = "🚩 Report"
	btnAbort  = "↩️ Cancel report"
)

// Moderator panel labels and callback prefixes.
const (
	btnModReports = "📋 Reports"
	btnModStats   = "📈 Stats"
	btnModBans    = "🚫 Bans"

	cbBan       = "ban_"
	cbIgnore    = "ign_"
	cbUnban     = "unban_"
	cbEndChat   = "del_"
	cbModReport = "mod_reports"
	cbModStats  = "mod_stats"
	cbModBans   = "mod_bans"
)

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnFind),
			tgbotapi.NewKeyboardButton(btnHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func waitingKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func chatKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnStop),
			tgbotapi.NewKeyboardButton(btnNext),
			tgbotapi.NewKeyboardButton(btnReport),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func reportKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnAbort),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func moderatorKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnModReports, cbModReport),
			tgbotapi.NewInlineKeyboardButtonData(btnModStats, cbModStats),
			tgbotapi.NewInlineKeyboardButtonData(btnModBans, cbModBans),
		),
	)
}

// reportActionsKeyboard offers the moderator actions for one open report.
func reportActionsKeyboard(r store.Report) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Ban", fmt.Sprintf("%s%d", cbBan, r.TargetID)),
			tgbotapi.NewInlineKeyboardButtonData("Ignore", fmt.Sprintf("%s%d", cbIgnore, r.ID)),
			tgbotapi.NewInlineKeyboardButtonData("End chat", fmt.Sprintf("%s%d", cbEndChat, r.TargetID)),
		),
	)
}

func unbanKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Unban", fmt.Sprintf("%s%d", cbUnban, id)),
		),
	)
}
