// Package engine is the concurrent dispatch core of the runtime: the update
// pump, demultiplexer, session registry, per-session executor and
// dispatcher, and the runtime choreography that wires them together.
package engine

import "context"

// CancelScope is a parent-linked cancellation signal, modelling spec.md
// §5's tree of three nested scopes: the runtime scope, a session's
// lifetime scope, and a per-call scope linking the two. It is a thin
// wrapper over context.Context/CancelFunc rather than a fresh mechanism,
// since that is exactly what the "Coroutine-heavy control flow" design
// note (spec.md §9) asks for.
type CancelScope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRootScope creates a scope with no parent; used once for the runtime
// scope.
func NewRootScope() CancelScope {
	ctx, cancel := context.WithCancel(context.Background())
	return CancelScope{ctx: ctx, cancel: cancel}
}

// Child derives a scope cancelled either when this scope is cancelled or
// when the child is cancelled directly, never the other way around.
func (s CancelScope) Child() CancelScope {
	ctx, cancel := context.WithCancel(s.ctx)
	return CancelScope{ctx: ctx, cancel: cancel}
}

// Link derives a scope cancelled when either a or b is cancelled,
// modelling a per-call scope linked to both the runtime scope and a
// session's lifetime scope (spec.md §5 scope 3).
func Link(a, b CancelScope) CancelScope {
	ctx, cancel := context.WithCancel(a.ctx)
	go func() {
		select {
		case <-b.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return CancelScope{ctx: ctx, cancel: cancel}
}

// Context returns the underlying context, for passing to cancellable
// operations (channel reads, client calls, timers).
func (s CancelScope) Context() context.Context { return s.ctx }

// Cancel cancels this scope and, transitively, every scope derived from
// it via Child or Link.
func (s CancelScope) Cancel() { s.cancel() }

// Done reports whether this scope has been cancelled.
func (s CancelScope) Done() <-chan struct{} { return s.ctx.Done() }

// Err mirrors context.Context.Err: nil unless Done is closed.
func (s CancelScope) Err() error { return s.ctx.Err() }
