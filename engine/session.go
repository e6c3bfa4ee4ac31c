package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/tgrunner/chatid"
	"github.com/hrygo/tgrunner/telegram"
)

// SessionState is a session's position in the lifecycle spec.md §3 defines:
// Fresh -> Active -> Ending -> Ended.
type SessionState int32

const (
	StateFresh SessionState = iota
	StateActive
	StateEnding
	StateEnded
)

func (s SessionState) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// jobKind distinguishes the two update shapes a sessionJob can carry.
type jobKind int

const (
	jobKindMessage jobKind = iota
	jobKindCallback
)

// sessionJob is one unit of dispatcher-submitted work: a message or
// callback to run against this session, plus the user to Begin with if this
// turns out to be the first job this session ever processes.
type sessionJob struct {
	kind jobKind
	ctx  context.Context
	msg  *telegram.Message
	cb   *telegram.CallbackQuery
	user *telegram.User
	done chan error
}

// Session owns one ChatHandler, a lifetime cancellation scope, and
// serializes every Begin/HandleMessage/HandleCallback/End call onto a single
// mutex (spec.md §4.5) — a per-session mailbox collapsed to its simplest
// correct form, since the contract only requires "no two invocations
// overlap", not any particular queueing discipline.
//
// Submit is the only entry point the Dispatcher uses to hand work to a
// Session: it appends to an in-order queue and, if no goroutine is already
// draining it, starts one. At most one drain goroutine runs per session at
// any time, so jobs are always handled strictly in submission order and
// Begin (itself idempotent past the first call) always runs ahead of the
// first HandleMessage/HandleCallback — regardless of how many dispatcher
// goroutines raced SessionRegistry.GetOrCreate for this chat (spec.md §5
// "strict FIFO within a chat", Property-2 "Begin ≺ Handle*").
type Session struct {
	chatID     chatid.ChatId
	instanceID string
	handler    ChatHandler
	lifetime   CancelScope

	mu         sync.Mutex
	state      SessionState
	lastActive time.Time

	stopRequested bool

	queue    []*sessionJob
	draining bool

	inactivityTimeout time.Duration
	timer             *time.Timer

	// onIdleExpired fires once, off the call path, when the inactivity
	// timer lapses or RequestStop is called; the owner (Dispatcher) wires this
	// to remove the session from the registry and call End(nil).
	onIdleExpired func(*Session)
}

// NewSession constructs a session whose lifetime is a child of parent.
// inactivityTimeout <= 0 disables the idle timer.
func NewSession(chatID chatid.ChatId, handler ChatHandler, parent CancelScope, inactivityTimeout time.Duration, onIdleExpired func(*Session)) *Session {
	return &Session{
		chatID:            chatID,
		instanceID:        shortuuid.New(),
		handler:           handler,
		lifetime:          parent.Child(),
		state:             StateFresh,
		lastActive:        time.Now(),
		inactivityTimeout: inactivityTimeout,
		onIdleExpired:     onIdleExpired,
	}
}

// SessionInfo is a read-only snapshot of a session, for the admin surface.
type SessionInfo struct {
	ChatID     string
	InstanceID string
	State      string
	LastActive time.Time
}

// Info returns a point-in-time snapshot of the session's public state.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ChatID:     s.chatID.String(),
		InstanceID: s.instanceID,
		State:      s.state.String(),
		LastActive: s.lastActive,
	}
}

// ChatID returns the session's immutable key.
func (s *Session) ChatID() chatid.ChatId { return s.chatID }

// Lifetime returns the session's cancellation scope, for Dispatcher to link
// against the runtime scope on each call.
func (s *Session) Lifetime() CancelScope { return s.lifetime }

// State reports the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit enqueues a unit of work and returns a channel that receives its
// HandleMessage/HandleCallback result once this session's drain loop has
// run it. Safe to call from any number of concurrent goroutines.
func (s *Session) Submit(job *sessionJob) <-chan error {
	job.done = make(chan error, 1)

	s.mu.Lock()
	s.queue = append(s.queue, job)
	alreadyDraining := s.draining
	s.draining = true
	s.mu.Unlock()

	if !alreadyDraining {
		go s.drain()
	}
	return job.done
}

// drain runs as at most one goroutine per session, processing jobs strictly
// in submission order until the queue is empty. It calls Begin ahead of
// every job (a no-op past the session's first job, by Begin's own
// idempotence), so the very first job this session ever sees is always the
// one whose user reaches handler.Begin.
func (s *Session) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.Begin(job.ctx, job.user)

		var err error
		switch job.kind {
		case jobKindMessage:
			err = s.HandleMessage(job.ctx, job.msg)
		case jobKindCallback:
			err = s.HandleCallback(job.ctx, job.cb)
		}
		job.done <- err
	}
}

// Begin runs the handler's Begin callback at most once; a repeated call is
// a no-op (spec.md §4.5).
func (s *Session) Begin(ctx context.Context, user *telegram.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFresh {
		return
	}
	if err := s.handler.Begin(ctx, user); err != nil {
		s.safeOnErrorLocked(ctx, err)
	}
	s.state = StateActive
	s.resetTimerLocked()
}

// HandleMessage runs the handler under ctx (already linked to the session's
// lifetime and the runtime scope by the caller). A handler fault is
// swallowed and routed to OnError; a cancellation is returned to the caller
// for classification, never swallowed (spec.md §7).
func (s *Session) HandleMessage(ctx context.Context, msg *telegram.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.handler.HandleMessage(ctx, msg)
	if err == nil {
		s.resetTimerLocked()
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.safeOnErrorLocked(ctx, err)
	s.resetTimerLocked()
	return nil
}

// HandleCallback is HandleMessage's symmetric counterpart for callback
// queries.
func (s *Session) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.handler.HandleCallback(ctx, cb)
	if err == nil {
		s.resetTimerLocked()
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.safeOnErrorLocked(ctx, err)
	s.resetTimerLocked()
	return nil
}

// End runs the handler's End callback at most once, then cancels lifetime.
// Safe to call more than once; calls after the first are no-ops.
func (s *Session) End(ctx context.Context, user *telegram.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEnded {
		return
	}
	s.state = StateEnding
	s.stopTimerLocked()

	if err := s.handler.End(ctx, user); err != nil {
		s.safeOnErrorLocked(ctx, err)
	}

	s.state = StateEnded
	s.lifetime.Cancel()
}

// RequestStop asks the owner to end this session asynchronously, once any
// in-flight call has released the mutex. Safe to call from within a Handle*
// call (e.g. via Operator.Stop), and idempotent.
func (s *Session) RequestStop() {
	if s.onIdleExpired == nil {
		return
	}
	// The caller may be a Handle* call that holds s.mu, so the check runs
	// on its own goroutine, which waits for that call to release the mutex.
	go func() {
		s.mu.Lock()
		already := s.stopRequested || s.state == StateEnding || s.state == StateEnded
		s.stopRequested = true
		s.mu.Unlock()

		if !already {
			s.onIdleExpired(s)
		}
	}()
}

func (s *Session) resetTimerLocked() {
	s.lastActive = time.Now()
	if s.inactivityTimeout <= 0 {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.inactivityTimeout, func() {
		if s.onIdleExpired != nil {
			s.onIdleExpired(s)
		}
	})
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// safeOnErrorLocked invokes handler.OnError, recovering a panic raised from
// within it — the "handler-fault-in-onError" case is logged and swallowed,
// never propagated or retried (spec.md §7, open question 3).
func (s *Session) safeOnErrorLocked(ctx context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: handler.OnError panicked",
				"chat_id", s.chatID.String(), "panic", r, "original_error", err)
		}
	}()
	s.handler.OnError(ctx, err)
}
