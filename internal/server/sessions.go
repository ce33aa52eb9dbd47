package server

import (
	"sync"
	"time"
)

const (
	// sessionTTL is both the cookie lifetime and how long an idle session's
	// upload hash is remembered.
	sessionTTL = 12 * time.Hour
	// maxSessions caps remembered sessions; the least recently seen goes first.
	maxSessions = 1024
)

type sessionEntry struct {
	digest string
	seen   time.Time
}

// sessionStore maps a session id to the hash of the last upload it ingested.
type sessionStore struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func newSessionStore(ttl time.Duration, max int) *sessionStore {
	return &sessionStore{
		entries: make(map[string]sessionEntry),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

// Seen reports whether session last ingested digest, refreshing the session.
func (s *sessionStore) Seen(session, digest string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[session]
	if !ok {
		return false
	}
	now := s.now()
	if now.Sub(e.seen) > s.ttl {
		delete(s.entries, session)
		return false
	}
	e.seen = now
	s.entries[session] = e
	return e.digest == digest
}

// Remember records digest for session, dropping expired sessions and, when
// still full, the least recently seen one.
func (s *sessionStore) Remember(session, digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[session] = sessionEntry{digest: digest, seen: now}
	if len(s.entries) <= s.max {
		return
	}

	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range s.entries {
		if now.Sub(e.seen) > s.ttl {
			delete(s.entries, id)
			continue
		}
		if oldestID == "" || e.seen.Before(oldest) {
			oldestID, oldest = id, e.seen
		}
	}
	if len(s.entries) > s.max {
		delete(s.entries, oldestID)
	}
}

// Len returns the number of remembered sessions.
func (s *sessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
