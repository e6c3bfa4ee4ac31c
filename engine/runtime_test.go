package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hrygo/tgrunner/telegram"
	"github.com/stretchr/testify/assert"
)

// blockingHandler blocks HandleMessage until its context is cancelled, for
// exercising graceful shutdown mid-handle.
type blockingHandler struct {
	mu       sync.Mutex
	begins   int
	ends     int
	endUsers []*telegram.User
	entered  chan struct{}
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{entered: make(chan struct{}, 1)}
}

func (h *blockingHandler) Begin(context.Context, *telegram.User) error {
	h.mu.Lock()
	h.begins++
	h.mu.Unlock()
	return nil
}

func (h *blockingHandler) HandleMessage(ctx context.Context, _ *telegram.Message) error {
	select {
	case h.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (h *blockingHandler) HandleCallback(ctx context.Context, _ *telegram.CallbackQuery) error {
	<-ctx.Done()
	return ctx.Err()
}

func (h *blockingHandler) End(_ context.Context, user *telegram.User) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends++
	h.endUsers = append(h.endUsers, user)
	return nil
}

func (h *blockingHandler) OnError(context.Context, error) {}

func (h *blockingHandler) snapshot() (begins, ends int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.begins, h.ends
}

func TestRuntime_S5_GracefulShutdownEndsEverySessionAndStopsOnce(t *testing.T) {
	api := &fakeAPI{}
	api.enqueue([]telegram.Update{
		{UpdateID: 1, Message: &telegram.Message{Chat: &tgbotapi.Chat{ID: 100}, Text: "hi"}},
	})

	lifecycle := &fakeLifecycle{}
	h := newBlockingHandler()
	factory := func(string, Operator) ChatHandler { return h }

	rt := NewRuntime(api, lifecycle, factory, Config{
		PollTimeout:         20 * time.Millisecond,
		DispatchConcurrency: 4,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- rt.Run(context.Background()) }()

	select {
	case <-h.entered:
	case <-time.After(time.Second):
		t.Fatal("handler never entered HandleMessage")
	}

	rt.Shutdown()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run never returned after Shutdown")
	}

	_, ends := h.snapshot()
	assert.Equal(t, 1, ends)

	lifecycle.mu.Lock()
	defer lifecycle.mu.Unlock()
	assert.Equal(t, 1, lifecycle.startCalls)
	assert.Equal(t, 1, lifecycle.stopCalls)
}

func TestRuntime_S6_RetryAfterSuppressesEmissionUntilShutdown(t *testing.T) {
	api := &alwaysFailAPI{fakeAPI: &fakeAPI{}, retryAfterSeconds: 0}
	lifecycle := &fakeLifecycle{}
	hreg := newHandlerRegistry()

	rt := NewRuntime(api, lifecycle, hreg.factory, Config{
		PollTimeout:         10 * time.Millisecond,
		DispatchConcurrency: 4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- rt.Run(ctx) }()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run never returned")
	}

	assert.Equal(t, 0, rt.Registry().Len())
	lifecycle.mu.Lock()
	defer lifecycle.mu.Unlock()
	assert.Equal(t, 1, lifecycle.stopCalls)
}
