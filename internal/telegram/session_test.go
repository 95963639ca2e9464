package telegram

import (
	"testing"
	"time"
)

func TestSessionsConsumeEndsSession(t *testing.T) {
	s := NewSessions(time.Minute)
	s.Begin(1, StateAwaitingKeyword)

	if got := s.Consume(1); got != StateAwaitingKeyword {
		t.Errorf("Consume = %v, want StateAwaitingKeyword", got)
	}
	if got := s.Consume(1); got != StateNone {
		t.Errorf("Consume after consume = %v, want StateNone", got)
	}
}

func TestSessionsExpire(t *testing.T) {
	s := NewSessions(time.Minute)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Begin(1, StateAwaitingKeyword)

	now = now.Add(2 * time.Minute)
	if got := s.Consume(1); got != StateNone {
		t.Errorf("Consume of expired session = %v, want StateNone", got)
	}
}

func TestSessionsScopedPerChat(t *testing.T) {
	s := NewSessions(time.Minute)
	s.Begin(1, StateAwaitingKeyword)

	if got := s.Consume(2); got != StateNone {
		t.Errorf("Consume for other chat = %v, want StateNone", got)
	}
	if got := s.Consume(1); got != StateAwaitingKeyword {
		t.Errorf("Consume for owner = %v, want StateAwaitingKeyword", got)
	}
}

func TestSessionsBeginReplaces(t *testing.T) {
	s := NewSessions(time.Minute)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Begin(1, StateAwaitingKeyword)
	now = now.Add(50 * time.Second)
	s.Begin(1, StateAwaitingKeyword) // restarts the clock

	now = now.Add(30 * time.Second)
	if got := s.Consume(1); got != StateAwaitingKeyword {
		t.Errorf("Consume = %v, want StateAwaitingKeyword after restart", got)
	}
}
