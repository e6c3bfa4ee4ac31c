package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the subset of Client's behaviour the engine package depends on.
// Exists so tests can substitute a fake: constructing a real Client calls
// tgbotapi.NewBotAPI, which validates the token against the live server.
type API interface {
	Self() User
	GetUpdates(ctx context.Context, offset, limit, timeoutSeconds int, allowedUpdates []string) ([]Update, error)
	SendText(chatID int64, text, parseMode string) error
	SendPhoto(chatID int64, fileName string, data []byte, caption, parseMode string) error
	AnswerCallbackQuery(callbackQueryID, text string) error
	SetMyCommands(commands []tgbotapi.BotCommand) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
}

var _ API = (*Client)(nil)
