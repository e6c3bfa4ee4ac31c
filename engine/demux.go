package engine

import (
	"log/slog"

	"github.com/hrygo/tgrunner/filter"
	"github.com/hrygo/tgrunner/telegram"
)

// MessageUpdate pairs a Message with the originating Update's UpdateID, so
// downstream consumers (the auditlog Store, in particular) can record which
// update a given dispatch came from without the Dispatcher re-deriving it.
type MessageUpdate struct {
	UpdateID int
	*telegram.Message
}

// CallbackUpdate is MessageUpdate's counterpart for callback queries.
type CallbackUpdate struct {
	UpdateID int
	*telegram.CallbackQuery
}

// Demultiplexer classifies each inbound Update into exactly one of two
// unbounded, single-producer/single-consumer streams (spec.md §4.3). The
// first four update variants normalise onto the message stream; a
// CallbackQuery onto the callback stream; anything else is logged and
// dropped.
type Demultiplexer struct {
	messages  *unboundedQueue[*MessageUpdate]
	callbacks *unboundedQueue[*CallbackUpdate]
	filter    *filter.Engine
}

// NewDemultiplexer constructs a Demultiplexer with fresh output streams and
// no filter (everything allowed).
func NewDemultiplexer() *Demultiplexer {
	return &Demultiplexer{
		messages:  newUnboundedQueue[*MessageUpdate](),
		callbacks: newUnboundedQueue[*CallbackUpdate](),
		filter:    filter.AllowAll(),
	}
}

// SetFilter installs the allow/deny gate consulted before each Dispatch.
func (d *Demultiplexer) SetFilter(f *filter.Engine) { d.filter = f }

// Messages is the stream Dispatcher's message loop consumes.
func (d *Demultiplexer) Messages() <-chan *MessageUpdate { return d.messages.Out() }

// Callbacks is the stream Dispatcher's callback loop consumes.
func (d *Demultiplexer) Callbacks() <-chan *CallbackUpdate { return d.callbacks.Out() }

// Dispatch classifies one update, writing it onto the matching stream
// unless the configured filter rejects it first.
func (d *Demultiplexer) Dispatch(u telegram.Update) {
	if msg := firstNonNilMessage(u); msg != nil {
		var chatID int64
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		if !d.allow(chatID, msg.From, msg.Text) {
			slog.Debug("engine: filter rejected update", "update_id", u.UpdateID)
			return
		}
		d.messages.Send(&MessageUpdate{UpdateID: u.UpdateID, Message: msg})
		return
	}
	if u.CallbackQuery != nil {
		var userID int64
		if u.CallbackQuery.From != nil {
			userID = u.CallbackQuery.From.ID
		}
		if !d.allow(userID, u.CallbackQuery.From, u.CallbackQuery.Data) {
			slog.Debug("engine: filter rejected update", "update_id", u.UpdateID)
			return
		}
		d.callbacks.Send(&CallbackUpdate{UpdateID: u.UpdateID, CallbackQuery: u.CallbackQuery})
		return
	}
	slog.Warn("engine: dropping update with no recognised variant", "update_id", u.UpdateID)
}

func (d *Demultiplexer) allow(chatID int64, from *telegram.User, text string) bool {
	var userID int64
	if from != nil {
		userID = from.ID
	}
	return d.filter.Allow(filter.Input{
		ChatID:    chatID,
		UserID:    userID,
		IsCommand: len(text) > 0 && text[0] == '/',
		Text:      text,
	})
}

// Close signals that no further updates will be dispatched, letting both
// dispatcher loops drain and exit.
func (d *Demultiplexer) Close() {
	d.messages.Close()
	d.callbacks.Close()
}

func firstNonNilMessage(u telegram.Update) *telegram.Message {
	switch {
	case u.Message != nil:
		return u.Message
	case u.EditedMessage != nil:
		return u.EditedMessage
	case u.ChannelPost != nil:
		return u.ChannelPost
	case u.EditedChannelPost != nil:
		return u.EditedChannelPost
	default:
		return nil
	}
}
