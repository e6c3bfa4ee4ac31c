package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/tgrunner/auditlog"
	"github.com/hrygo/tgrunner/chatid"
	"github.com/hrygo/tgrunner/telegram"
)

// sessionEndGracePeriod bounds how long a self-initiated End (inactivity
// timeout or Operator.Stop) may take; it runs off the call path so a slow
// End there cannot hold up the dispatcher loop that triggered it.
const sessionEndGracePeriod = 10 * time.Second

// CallbackChatIDFunc derives the ChatId a CallbackQuery's session is keyed
// under. The default follows spec.md §4.6 step 1 literally: callback.from.id,
// which is correct for private chats only (spec.md §9 open question 2). A
// deployment that needs callback.message.chat.id for group callbacks can
// supply its own via WithCallbackChatID.
type CallbackChatIDFunc func(cb *telegram.CallbackQuery) chatid.ChatId

func defaultCallbackChatID(cb *telegram.CallbackQuery) chatid.ChatId {
	return chatid.Int64(cb.From.ID)
}

// Dispatcher runs the two symmetric loops of spec.md §4.6: pull from the
// message/callback streams, resolve the session, and invoke handler
// methods under a scope linked to both the runtime scope and the session's
// lifetime.
type Dispatcher struct {
	demux          *Demultiplexer
	registry       *SessionRegistry
	handlerFactory ChatHandlerFactory
	client         telegram.API
	runtimeScope   CancelScope

	inactivityTimeout time.Duration
	messageSem        *semaphore.Weighted
	callbackSem       *semaphore.Weighted
	callbackChatID    CallbackChatIDFunc
	metrics           *Metrics
	audit             auditlog.Store
}

// DispatcherOption configures optional Dispatcher behaviour.
type DispatcherOption func(*Dispatcher)

// WithCallbackChatID overrides how a CallbackQuery's session key is
// derived.
func WithCallbackChatID(fn CallbackChatIDFunc) DispatcherOption {
	return func(d *Dispatcher) { d.callbackChatID = fn }
}

// WithMetrics attaches a Metrics sink.
func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithAuditStore attaches the write side of "which updates were seen and
// when": every update whose Session.HandleMessage/HandleCallback call
// returns without a cancellation is recorded, including one whose handler
// fault was routed to OnError. Nil (the default) disables recording.
func WithAuditStore(store auditlog.Store) DispatcherOption {
	return func(d *Dispatcher) { d.audit = store }
}

// NewDispatcher constructs a Dispatcher. concurrency bounds the number of
// chats whose handlers may run concurrently within each loop (fan-out is
// across chats; a single chat's calls are always serialized by its
// Session).
func NewDispatcher(
	demux *Demultiplexer,
	registry *SessionRegistry,
	handlerFactory ChatHandlerFactory,
	client telegram.API,
	runtimeScope CancelScope,
	inactivityTimeout time.Duration,
	concurrency int64,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		demux:             demux,
		registry:          registry,
		handlerFactory:    handlerFactory,
		client:            client,
		runtimeScope:      runtimeScope,
		inactivityTimeout: inactivityTimeout,
		messageSem:        semaphore.NewWeighted(concurrency),
		callbackSem:       semaphore.NewWeighted(concurrency),
		callbackChatID:    defaultCallbackChatID,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunMessages consumes the message stream until ctx is cancelled or the
// stream closes, fanning each message out to its chat's session under
// bounded concurrency.
func (d *Dispatcher) RunMessages(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	ch := d.demux.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := d.messageSem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(msg *MessageUpdate) {
				defer wg.Done()
				defer d.messageSem.Release(1)
				d.handleMessage(ctx, msg)
			}(msg)
		}
	}
}

// RunCallbacks is RunMessages's symmetric counterpart for callback queries.
func (d *Dispatcher) RunCallbacks(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	ch := d.demux.Callbacks()
	for {
		select {
		case <-ctx.Done():
			return
		case cb, ok := <-ch:
			if !ok {
				return
			}
			if err := d.callbackSem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(cb *CallbackUpdate) {
				defer wg.Done()
				defer d.callbackSem.Release(1)
				d.handleCallback(ctx, cb)
			}(cb)
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *MessageUpdate) {
	chatID := chatid.Int64(msg.Chat.ID)
	correlationID := uuid.NewString()
	session, _ := d.registry.GetOrCreate(chatID, func() *Session {
		return d.newSession(chatID)
	})

	callScope := Link(d.runtimeScope, session.Lifetime())
	defer callScope.Cancel()

	start := time.Now()
	done := session.Submit(&sessionJob{
		kind: jobKindMessage,
		ctx:  callScope.Context(),
		msg:  msg.Message,
		user: msg.From,
	})

	err := awaitJob(ctx, done)
	d.reportOutcome(session, "message", correlationID, msg.UpdateID, start, err)
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *CallbackUpdate) {
	chatID := d.callbackChatID(cb.CallbackQuery)
	correlationID := uuid.NewString()
	session, _ := d.registry.GetOrCreate(chatID, func() *Session {
		return d.newSession(chatID)
	})

	callScope := Link(d.runtimeScope, session.Lifetime())
	defer callScope.Cancel()

	start := time.Now()
	// No originating message exists on the callback path; Begin always
	// observes a nil user here (spec.md S3), same as before — it is just
	// the session's drain loop that now makes that call, not this goroutine.
	done := session.Submit(&sessionJob{
		kind: jobKindCallback,
		ctx:  callScope.Context(),
		cb:   cb.CallbackQuery,
		user: nil,
	})

	err := awaitJob(ctx, done)
	d.reportOutcome(session, "callback", correlationID, cb.UpdateID, start, err)
}

// awaitJob blocks until the session's drain loop has run this job and sent
// its result, or the dispatcher's own ctx is cancelled first (shutdown);
// the latter still classifies as a cancellation in reportOutcome via
// d.runtimeScope.Err().
func awaitJob(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) newSession(chatID chatid.ChatId) *Session {
	op := &operator{chatID: chatID, client: d.client}
	handler := d.handlerFactory(chatID.String(), op)
	session := NewSession(chatID, handler, d.runtimeScope, d.inactivityTimeout, d.endAndRemove)
	op.session = session
	return session
}

// endAndRemove is the onIdleExpired hook every Session is constructed with:
// remove it from the registry, then end it under a bounded, independent
// deadline (spec.md §4.5 "self-removes ... and runs end(user=null)").
func (d *Dispatcher) endAndRemove(session *Session) {
	d.registry.Remove(session.ChatID())

	ctx, cancel := context.WithTimeout(context.Background(), sessionEndGracePeriod)
	defer cancel()
	session.End(ctx, nil)
}

// reportOutcome classifies a non-nil HandleMessage/HandleCallback error,
// which by construction is always a cancellation (Session already
// swallows and routes ordinary handler faults to OnError before
// returning) — only the cancellation's origin remains to be told apart
// (spec.md §4.6 step 3).
func (d *Dispatcher) reportOutcome(session *Session, kind, correlationID string, updateID int, start time.Time, err error) {
	latency := time.Since(start)

	switch {
	case err == nil:
		if d.metrics != nil {
			d.metrics.RecordDispatch(kind, latency, "ok")
		}
		d.recordAudit(session, updateID)
	case d.runtimeScope.Err() != nil:
		slog.Info("engine: handle cancelled by shutdown",
			"chat_id", session.ChatID().String(), "kind", kind, "correlation_id", correlationID)
		if d.metrics != nil {
			d.metrics.RecordDispatch(kind, latency, "shutdown")
		}
	default:
		slog.Warn("engine: handle took too long for session lifetime, dropping item",
			"chat_id", session.ChatID().String(), "kind", kind, "correlation_id", correlationID)
		if d.metrics != nil {
			d.metrics.RecordDispatch(kind, latency, "lifetime_expired")
		}
	}
}

// recordAudit records a successfully processed update, off the hot path's
// error-classification switch. A store error here is logged and swallowed —
// losing an audit row never fails the update it describes (spec.md §1, audit
// is write-once observability, not a correctness dependency).
func (d *Dispatcher) recordAudit(session *Session, updateID int) {
	if d.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.audit.RecordProcessed(ctx, updateID, session.ChatID(), time.Now()); err != nil {
		slog.Warn("engine: audit record failed", "chat_id", session.ChatID().String(), "update_id", updateID, "error", err)
	}
}

// operator is the Operator a ChatHandler is constructed with: it can act
// on its own chat and ask to be stopped, without ever holding a direct
// reference to the Dispatcher or SessionRegistry that owns it (spec.md §9).
type operator struct {
	chatID  chatid.ChatId
	client  telegram.API
	session *Session
}

func (o *operator) SendText(_ context.Context, text, parseMode string) error {
	id, _ := o.chatID.Int64Value()
	return o.client.SendText(id, text, parseMode)
}

func (o *operator) SendPhoto(_ context.Context, fileName string, data []byte, caption, parseMode string) error {
	id, _ := o.chatID.Int64Value()
	return o.client.SendPhoto(id, fileName, data, caption, parseMode)
}

func (o *operator) AnswerCallback(_ context.Context, callbackQueryID, text string) error {
	return o.client.AnswerCallbackQuery(callbackQueryID, text)
}

func (o *operator) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	return o.client.DownloadFile(ctx, fileID)
}

func (o *operator) Stop() {
	if o.session != nil {
		o.session.RequestStop()
	}
}
