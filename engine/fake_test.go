package engine

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/tgrunner/telegram"
)

// fakeHandler is a minimal ChatHandler recording every call it observes,
// for assertions on ordering and arguments without a live Telegram server.
type fakeHandler struct {
	mu sync.Mutex

	beginCalls    int
	beginUsers    []*telegram.User
	messages      []*telegram.Message
	callbacks     []*telegram.CallbackQuery
	errors        []error
	endCalls      int
	endUsers      []*telegram.User

	// events logs Begin/HandleMessage/HandleCallback calls in the exact
	// order this handler instance observed them, for asserting Begin ≺
	// Handle* holds even when the dispatcher races multiple goroutines for
	// the same newly-seen chat.
	events []string

	handleErr   error // returned by the next HandleMessage/HandleCallback call
	onErrorHook func(err error)
}

func (f *fakeHandler) Begin(_ context.Context, user *telegram.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beginCalls++
	f.beginUsers = append(f.beginUsers, user)
	f.events = append(f.events, "begin")
	return nil
}

func (f *fakeHandler) HandleMessage(_ context.Context, msg *telegram.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	f.events = append(f.events, "message:"+msg.Text)
	err := f.handleErr
	f.handleErr = nil
	return err
}

func (f *fakeHandler) HandleCallback(_ context.Context, cb *telegram.CallbackQuery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, cb)
	f.events = append(f.events, "callback:"+cb.ID)
	err := f.handleErr
	f.handleErr = nil
	return err
}

func (f *fakeHandler) End(_ context.Context, user *telegram.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endCalls++
	f.endUsers = append(f.endUsers, user)
	return nil
}

func (f *fakeHandler) OnError(_ context.Context, err error) {
	f.mu.Lock()
	f.errors = append(f.errors, err)
	hook := f.onErrorHook
	f.mu.Unlock()
	if hook != nil {
		hook(err)
	}
}

func (f *fakeHandler) snapshot() fakeHandlerSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeHandlerSnapshot{
		beginCalls: f.beginCalls,
		messages:   len(f.messages),
		callbacks:  len(f.callbacks),
		errors:     len(f.errors),
		endCalls:   f.endCalls,
	}
}

func (f *fakeHandler) messageTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Text
	}
	return out
}

func (f *fakeHandler) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

type fakeHandlerSnapshot struct {
	beginCalls int
	messages   int
	callbacks  int
	errors     int
	endCalls   int
}

// fakeLifecycle is a minimal BotLifecycle recording Start/Stop calls.
type fakeLifecycle struct {
	mu         sync.Mutex
	startCalls int
	stopCalls  int
	startErr   error
}

func (f *fakeLifecycle) Start(context.Context, telegram.API) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startErr
}

func (f *fakeLifecycle) Stop(context.Context, telegram.API) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

// fakeAPI implements telegram.API without ever making a network call, so
// tests can drive Pump/Dispatcher/Runtime deterministically.
type fakeAPI struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	calls   int
	sentTexts []string
}

func (f *fakeAPI) Self() telegram.User {
	return telegram.User{ID: 1, FirstName: "tgrunner", UserName: "tgrunner_bot"}
}

func (f *fakeAPI) enqueue(batch []telegram.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
}

func (f *fakeAPI) GetUpdates(_ context.Context, _, _, _ int, _ []string) ([]telegram.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeAPI) SendText(_ int64, text, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTexts = append(f.sentTexts, text)
	return nil
}

func (f *fakeAPI) SendPhoto(int64, string, []byte, string, string) error { return nil }
func (f *fakeAPI) AnswerCallbackQuery(string, string) error              { return nil }
func (f *fakeAPI) SetMyCommands([]tgbotapi.BotCommand) error             { return nil }
func (f *fakeAPI) DownloadFile(context.Context, string) ([]byte, string, error) {
	return nil, "", nil
}

func (f *fakeAPI) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
