package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/tgrunner/auditlog"
	"github.com/hrygo/tgrunner/filter"
	"github.com/hrygo/tgrunner/telegram"
)

// sessionShutdownGracePeriod bounds how long each session's End may take
// during shutdown drain; a per-session End error goes to that session's
// OnError and never stops the drain (spec.md §4.7 step 3b).
const sessionShutdownGracePeriod = 10 * time.Second

// Config configures a Runtime.
type Config struct {
	// PollTimeout is both the getUpdates long-poll timeout and the pump's
	// base retry backoff.
	PollTimeout time.Duration
	// PollLimit bounds the batch size of each getUpdates call; <= 0 falls
	// back to Pump's own default.
	PollLimit int
	// AllowedUpdates restricts the update kinds the server pushes; nil
	// means the server's default set.
	AllowedUpdates []string
	// DispatchConcurrency bounds how many chats' handlers may run
	// concurrently within each of the message/callback loops.
	DispatchConcurrency int64
	// InactivityTimeout ends a session with no activity for this long;
	// <= 0 disables the timer.
	InactivityTimeout time.Duration
	// CallbackChatID overrides callback-query chat-id resolution; nil uses
	// the spec-literal callback.from.id default.
	CallbackChatID CallbackChatIDFunc
	// Metrics attaches a Prometheus sink; nil disables metrics recording.
	Metrics *Metrics
	// Filter gates which updates ever reach a handler; nil allows
	// everything through (filter.AllowAll's behaviour).
	Filter *filter.Engine
	// Audit records every successfully processed update's id, chat and
	// timestamp; nil disables recording (cmd/tgrunner then hands admin a nil
	// store too, so no /audit route is served).
	Audit auditlog.Store
}

// Runtime composes ApiClient, UpdatePump, Demultiplexer, SessionRegistry
// and Dispatcher and implements spec.md §4.7's top-level choreography:
// Start -> (pump ∥ message-dispatch ∥ callback-dispatch) -> Stop.
type Runtime struct {
	client     telegram.API
	lifecycle  BotLifecycle
	registry   *SessionRegistry
	demux      *Demultiplexer
	pump       *Pump
	dispatcher *Dispatcher
	metrics    *Metrics

	scope CancelScope
}

// NewRuntime wires one Runtime instance. Multiple Runtimes must not share
// a SessionRegistry (spec.md §9 "Global state").
func NewRuntime(client telegram.API, lifecycle BotLifecycle, handlerFactory ChatHandlerFactory, cfg Config) *Runtime {
	registry := NewSessionRegistry()
	demux := NewDemultiplexer()
	if cfg.Filter != nil {
		demux.SetFilter(cfg.Filter)
	}
	scope := NewRootScope()

	pump := NewPump(client, demux, cfg.PollTimeout, cfg.PollLimit, cfg.AllowedUpdates)
	if cfg.Metrics != nil {
		pump.SetMetrics(cfg.Metrics)
	}

	var opts []DispatcherOption
	if cfg.CallbackChatID != nil {
		opts = append(opts, WithCallbackChatID(cfg.CallbackChatID))
	}
	if cfg.Metrics != nil {
		opts = append(opts, WithMetrics(cfg.Metrics))
	}
	if cfg.Audit != nil {
		opts = append(opts, WithAuditStore(cfg.Audit))
	}

	dispatcher := NewDispatcher(demux, registry, handlerFactory, client, scope, cfg.InactivityTimeout, cfg.DispatchConcurrency, opts...)

	return &Runtime{
		client:     client,
		lifecycle:  lifecycle,
		registry:   registry,
		demux:      demux,
		pump:       pump,
		dispatcher: dispatcher,
		metrics:    cfg.Metrics,
		scope:      scope,
	}
}

// Registry exposes the live session registry, for admin read endpoints.
func (r *Runtime) Registry() *SessionRegistry { return r.registry }

// Snapshot reports a point-in-time view of every live session, for the
// admin surface's /sessions endpoint.
func (r *Runtime) Snapshot() []SessionInfo {
	sessions := r.registry.Snapshot()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

// Shutdown cancels the runtime scope, initiating graceful shutdown. Run
// returns once every session has ended and Stop has completed.
func (r *Runtime) Shutdown() { r.scope.Cancel() }

// Run implements spec.md §4.7. If Start fails, Run returns its error and
// Stop is never called. Otherwise cancellation counts as success (step 4):
// Run returns the pump's terminal error if any — in this implementation
// always nil, since sustained pump failure is absorbed entirely by Pump's
// own retry loop — and else whatever Stop returned.
func (r *Runtime) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			r.scope.Cancel()
		case <-r.scope.Done():
		}
	}()

	if err := r.lifecycle.Start(r.scope.Context(), r.client); err != nil {
		return err
	}

	var wg sync.WaitGroup
	var pumpErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		pumpErr = r.pump.Run(r.scope.Context())
		// The pump stopping for any reason means no further updates will
		// ever arrive; begin shutdown and let the demultiplexer drain.
		r.scope.Cancel()
		r.demux.Close()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.dispatcher.RunMessages(r.scope.Context())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.dispatcher.RunCallbacks(r.scope.Context())
	}()

	wg.Wait()

	r.endAllSessions()
	r.registry.Clear()
	if r.metrics != nil {
		r.metrics.SetSessionsActive(0)
	}

	stopErr := r.lifecycle.Stop(context.Background(), r.client)

	if pumpErr != nil {
		return pumpErr
	}
	return stopErr
}

// endAllSessions snapshots the registry and ends every session under a
// fresh, uncancelled scope with a bounded deadline (spec.md §4.7 step 3b).
func (r *Runtime) endAllSessions() {
	sessions := r.registry.Snapshot()
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sessionShutdownGracePeriod)
			defer cancel()
			s.End(ctx, nil)
		}(s)
	}
	wg.Wait()

	if len(sessions) > 0 {
		slog.Info("engine: ended sessions at shutdown", "count", len(sessions))
	}
}
