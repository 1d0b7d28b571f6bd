package session

import (
	"errors"
	"sync"
	"time"

	"github.com/dvloznov/bank-assistant/internal/domain"
	"github.com/google/uuid"
)

// DefaultIdleWindow is how long a session may stay idle before cleanup
// removes it.
const DefaultIdleWindow = 30 * time.Minute

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

type entry struct {
	sess *Session
	// mu serializes exchanges on one session so it keeps a single writer
	// even if a client fires overlapping requests.
	mu       sync.Mutex
	lastSeen time.Time
}

// Manager hands out sessions by id and expires idle ones. It is safe for
// concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	window   time.Duration
	now      func() time.Time
}

// NewManager creates a manager that expires sessions idle for longer than
// window.
func NewManager(window time.Duration) *Manager {
	if window <= 0 {
		window = DefaultIdleWindow
	}
	return &Manager{
		sessions: make(map[string]*entry),
		window:   window,
		now:      time.Now,
	}
}

// GetOrCreate returns the session with id, creating it when it does not
// exist or has expired. An empty id always creates a new session with a
// random id.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if id != "" {
		if e, ok := m.sessions[id]; ok && now.Sub(e.lastSeen) <= m.window {
			e.lastSeen = now
			return e.sess
		}
	} else {
		id = uuid.NewString()
	}

	sess := New(id)
	m.sessions[id] = &entry{sess: sess, lastSeen: now}
	return sess
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[id]
	if !ok || m.now().Sub(e.lastSeen) > m.window {
		return nil, ErrSessionNotFound
	}
	return e.sess, nil
}

// WithSession runs fn while holding the session's exchange lock.
func (m *Manager) WithSession(id string, fn func(*Session)) *Session {
	sess := m.GetOrCreate(id)

	m.mu.RLock()
	e := m.sessions[sess.ID()]
	m.mu.RUnlock()

	if e == nil {
		// Removed by cleanup between the two lookups; run unlocked on the
		// detached session.
		fn(sess)
		return sess
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(sess)
	return sess
}

// Transcript returns a copy of a live session's turns, taken under the
// session's exchange lock.
func (m *Manager) Transcript(id string) ([]domain.Turn, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	expired := ok && m.now().Sub(e.lastSeen) > m.window
	m.mu.RUnlock()

	if !ok || expired {
		return nil, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Turns(), nil
}

// End removes a session.
func (m *Manager) End(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// CleanupExpired removes idle sessions and returns how many were removed.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) > m.window {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Stats returns the total and active session counts.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	active := 0
	for _, e := range m.sessions {
		if now.Sub(e.lastSeen) <= m.window {
			active++
		}
	}
	return map[string]int{
		"total":  len(m.sessions),
		"active": active,
	}
}
