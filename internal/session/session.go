// Package session keeps the per-conversation log of turns.
package session

import (
	"time"

	"github.com/dvloznov/bank-assistant/internal/domain"
)

// DefaultWindow is the number of recent turns used to prompt the
// generative fallback.
const DefaultWindow = 3

// Session is an append-only, ordered log of conversation turns.
// A Session has a single writer and is not safe for concurrent mutation.
type Session struct {
	id           string
	turns        []domain.Turn
	createdAt    time.Time
	lastActivity time.Time
}

// New creates an empty session with the given id.
func New(id string) *Session {
	now := time.Now()
	return &Session{id: id, createdAt: now, lastActivity: now}
}

// FromHistory creates a session seeded with prior turns, e.g. the
// conversation history sent by a client.
func FromHistory(id string, history []domain.Turn) *Session {
	s := New(id)
	s.turns = append(make([]domain.Turn, 0, len(history)), history...)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Append adds a turn to the end of the log. Stored history is never evicted.
func (s *Session) Append(turn domain.Turn) {
	s.turns = append(s.turns, turn)
	s.lastActivity = time.Now()
}

// RecentWindow returns a copy of the last n turns, or all of them when the
// log is shorter.
func (s *Session) RecentWindow(n int) []domain.Turn {
	if n <= 0 || len(s.turns) == 0 {
		return []domain.Turn{}
	}
	if n > len(s.turns) {
		n = len(s.turns)
	}
	out := make([]domain.Turn, n)
	copy(out, s.turns[len(s.turns)-n:])
	return out
}

// Turns returns a copy of the full log.
func (s *Session) Turns() []domain.Turn {
	return append([]domain.Turn(nil), s.turns...)
}

// Len returns the number of stored turns.
func (s *Session) Len() int {
	return len(s.turns)
}

// LastActivity returns when the session was created or last appended to.
func (s *Session) LastActivity() time.Time {
	return s.lastActivity
}
