package telegram

import (
	"sync"
	"time"
)

// SessionState marks what kind of input a chat is expected to send next.
type SessionState int

const (
	// StateNone means no conversation is in progress.
	StateNone SessionState = iota

	// StateAwaitingKeyword means the next free-text message is a search
	// keyword.
	StateAwaitingKeyword
)

// Sessions is a keyed conversation-state store. Each chat holds at most one
// session, which ends when its input arrives or when it sits untouched
// longer than the TTL.
type Sessions struct {
	ttl time.Duration

	mu       sync.Mutex
	sessions map[int64]session
	now      func() time.Time
}

type session struct {
	state   SessionState
	started time.Time
}

// NewSessions creates a session store whose entries expire after ttl.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		ttl:      ttl,
		sessions: make(map[int64]session),
		now:      time.Now,
	}
}

// Begin starts (or replaces) the chat's session with the given state.
func (s *Sessions) Begin(chatID int64, state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[chatID] = session{state: state, started: s.now()}
}

// Consume ends the chat's session and returns its state. Expired or absent
// sessions yield StateNone.
func (s *Sessions) Consume(chatID int64) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return StateNone
	}
	delete(s.sessions, chatID)

	if s.now().Sub(sess.started) > s.ttl {
		return StateNone
	}
	return sess.state
}
