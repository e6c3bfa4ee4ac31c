package engine

import (
	"sync"

	"github.com/hrygo/tgrunner/chatid"
)

// SessionRegistry is the single shared mutable structure of the runtime
// (spec.md §5 "Shared-resource policy"): a chat-id-keyed map of live
// sessions behind one mutex, providing atomic get-or-create and
// remove-and-return.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the live session for chatID, constructing one via
// newSession if none exists. createdNow is true for at most one caller
// across any concurrent sequence of calls for the same chatID (spec.md §4.4,
// §8 property 1).
func (r *SessionRegistry) GetOrCreate(id chatid.ChatId, newSession func() *Session) (session *Session, createdNow bool) {
	key := id.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return s, false
	}

	s := newSession()
	r.sessions[key] = s
	return s, true
}

// Remove deletes and returns the session for chatID, if present.
func (r *SessionRegistry) Remove(id chatid.ChatId) (*Session, bool) {
	key := id.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	return s, ok
}

// Snapshot returns every session that completed GetOrCreate before this
// call began. Used only for shutdown; weakly consistent with respect to
// concurrent inserts racing the snapshot itself.
func (r *SessionRegistry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Clear empties the registry; called once shutdown has ended every session.
func (r *SessionRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*Session)
}

// Len reports the number of live sessions, for metrics.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
