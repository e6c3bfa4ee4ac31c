package engine

import (
	"context"

	"github.com/hrygo/tgrunner/telegram"
)

// Operator is the narrow interface a ChatHandler is given at construction,
// resolving spec.md §9's cyclic session<->handler reference: the handler
// can send messages and ask to stop its own session without holding a
// direct reference back to the Session or Dispatcher that owns it.
type Operator interface {
	// SendText sends a text reply to this handler's chat.
	SendText(ctx context.Context, text, parseMode string) error
	// SendPhoto sends a photo reply to this handler's chat.
	SendPhoto(ctx context.Context, fileName string, data []byte, caption, parseMode string) error
	// AnswerCallback acknowledges a callback query, optionally showing a toast.
	AnswerCallback(ctx context.Context, callbackQueryID, text string) error
	// DownloadFile resolves a Telegram file_id (e.g. from an inbound photo)
	// to its bytes and a best-effort content type.
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
	// Stop requests that this handler's own session be torn down after the
	// current call returns.
	Stop()
}

// BotLifecycle holds the process-wide hooks spec.md §6 describes as
// "static Start(api)/Stop(api)" on the handler type: since Go has no
// handler-type-without-an-instance notion, these are modelled as a
// separate, single, bot-wide collaborator rather than forced onto every
// per-chat ChatHandler instance.
type BotLifecycle interface {
	// Start runs once, before any session exists (e.g. publish the command
	// list).
	Start(ctx context.Context, client telegram.API) error
	// Stop runs exactly once, after every session has ended, even if Start
	// succeeded and every dispatcher failed. Never called if Start failed.
	Stop(ctx context.Context, client telegram.API) error
}

// ChatHandler is the fixed interface spec.md §6 invokes application-level
// conversation logic through. A ChatHandlerFactory produces one instance
// per session; the core never shares a handler between chats.
type ChatHandler interface {
	// Begin runs at most once per session, strictly before any Handle.
	// user is nil when the session was created from a callback query for
	// which no originating message user is known (spec.md S3).
	Begin(ctx context.Context, user *telegram.User) error
	// HandleMessage runs under the session's serialized executor.
	HandleMessage(ctx context.Context, msg *telegram.Message) error
	// HandleCallback runs under the session's serialized executor.
	HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) error
	// End runs at most once, strictly after any in-flight Handle has
	// returned or been cancelled. user is nil on inactivity-timeout or
	// shutdown-initiated teardown.
	End(ctx context.Context, user *telegram.User) error
	// OnError is invoked when HandleMessage/HandleCallback faults; a fault
	// raised from within OnError itself is logged and swallowed (spec.md §7).
	OnError(ctx context.Context, err error)
}

// ChatHandlerFactory constructs one ChatHandler per session, given the
// Operator narrow interface the new handler should use to act on its own
// chat.
type ChatHandlerFactory func(chatID string, op Operator) ChatHandler
