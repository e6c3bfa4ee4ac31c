// Package telegram is the ApiClient of spec.md §4.1: a thin, typed wrapper
// around the Telegram Bot API wire codec. It owns exactly one
// responsibility — execute a request, return a typed result or a
// structured Error — and is agnostic to retries; retry policy lives in
// engine.Pump.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Update is re-exported so callers never need to import tgbotapi directly;
// it is the wire codec spec.md §1 treats as an external collaborator.
type Update = tgbotapi.Update

// Message, CallbackQuery and User are likewise re-exported verbatim.
type Message = tgbotapi.Message
type CallbackQuery = tgbotapi.CallbackQuery
type User = tgbotapi.User

// Client wraps *tgbotapi.BotAPI with the Transport/Protocol/Decode error
// taxonomy and a small set of monomorphic methods in place of one generic
// exec(request) -> result (spec.md §9 "Dynamic dispatch over request
// types").
type Client struct {
	bot        *tgbotapi.BotAPI
	httpClient *http.Client
}

// New creates a Client for the given bot token.
func New(token string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Client{
		bot: bot,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Self returns the bot's own user, as reported at construction time.
func (c *Client) Self() User {
	return c.bot.Self
}

// GetUpdates issues one getUpdates request. offset/limit/timeoutSeconds map
// directly onto spec.md §6's request shape; allowedUpdates may be nil.
func (c *Client) GetUpdates(ctx context.Context, offset, limit, timeoutSeconds int, allowedUpdates []string) ([]Update, error) {
	cfg := tgbotapi.NewUpdate(offset)
	cfg.Limit = limit
	cfg.Timeout = timeoutSeconds
	cfg.AllowedUpdates = allowedUpdates

	updates, err := c.bot.GetUpdates(cfg)
	if err != nil {
		return nil, classify(err)
	}
	return updates, nil
}

// SendText sends a plain or parse-mode-formatted text message.
func (c *Client) SendText(chatID int64, text, parseMode string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if parseMode != "" {
		msg.ParseMode = parseMode
	}
	_, err := c.bot.Send(msg)
	if err != nil {
		return classify(err)
	}
	return nil
}

// SendPhoto sends photo bytes with an optional caption.
func (c *Client) SendPhoto(chatID int64, fileName string, data []byte, caption, parseMode string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: fileName, Bytes: data})
	photo.Caption = caption
	if parseMode != "" {
		photo.ParseMode = parseMode
	}
	_, err := c.bot.Send(photo)
	if err != nil {
		return classify(err)
	}
	return nil
}

// AnswerCallbackQuery acknowledges a callback query, optionally showing a
// toast (text) to the user.
func (c *Client) AnswerCallbackQuery(callbackQueryID, text string) error {
	cfg := tgbotapi.NewCallback(callbackQueryID, text)
	_, err := c.bot.Request(cfg)
	if err != nil {
		return classify(err)
	}
	return nil
}

// SetMyCommands publishes the bot's command list, for use from a
// BotLifecycle's Start hook, which Runtime.Run calls once before any
// session exists (spec.md §4.7 step 1).
func (c *Client) SetMyCommands(commands []tgbotapi.BotCommand) error {
	_, err := c.bot.Request(tgbotapi.NewSetMyCommands(commands...))
	if err != nil {
		return classify(err)
	}
	return nil
}

// DownloadFile resolves a Telegram file_id to its bytes and a best-effort
// MIME type.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, "", classify(err)
	}

	fileURL := file.Link(c.bot.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", &Error{Kind: KindTransport, Description: "build download request: " + err.Error(), Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &Error{Kind: KindTransport, Description: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &Error{Kind: KindTransport, Description: fmt.Sprintf("status %d", resp.StatusCode), Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &Error{Kind: KindTransport, Description: "read download body: " + err.Error(), Err: err}
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	slog.Debug("telegram: downloaded file", "file_id", fileID, "size", len(data), "mime_type", mimeType)
	return data, mimeType, nil
}
