// Package session holds the process-wide cache of ephemeral authentication
// artifacts. One Session exists per distinct connection identity, never per
// call, and a stale Session is never handed back to a caller.
package session

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// Session is the derived, ephemeral authentication state for one connection
// identity. A zero ExpiresAt means the session does not expire on its own
// (the "local client initialized" style).
type Session struct {
	Cookies   []*http.Cookie
	CSRFToken string
	Token     string
	Ready     bool
	LastUsed  time.Time
	ExpiresAt time.Time

	// Meta carries vendor-specific non-secret artifacts, such as the id of
	// an opened budget file and the sync id that owns the working copy.
	Meta map[string]string
}

// Usable reports whether the session may authorize a call at the given
// instant.
func (s Session) Usable(now time.Time) bool {
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// Store is the injectable session cache. Put is an unconditional overwrite:
// a new login fully replaces the old Session including fields the new login
// did not set.
type Store interface {
	Get(key string) (Session, bool)
	Put(key string, s Session)
	Invalidate(key string)
}

// Key derives a stable connection identity from non-secret config parts
// (host+port+account, or server-url+sync-id). Secrets never participate so
// two accounts on the same host cannot collide into one cache entry.
func Key(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(part)))
	}
	return strings.Join(normalized, "|")
}

// MemoryStore is the default in-process Store. Stale entries are dropped on
// Get so callers can never observe one. Now is injectable for tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session

	Now func() time.Time
}

// NewMemoryStore creates an empty in-process session cache.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		Now:      time.Now,
	}
}

func (m *MemoryStore) Get(key string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return Session{}, false
	}
	if !s.Usable(m.now()) {
		delete(m.sessions, key)
		return Session{}, false
	}
	return s, true
}

func (m *MemoryStore) Put(key string, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = s
}

func (m *MemoryStore) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
