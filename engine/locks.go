package engine

import "sync"

// sessionLocks serializes mutation per session. The validator's self-outbid,
// round-limit and current-high checks are only correct when read-then-write
// is atomic relative to other writers of the same session, so every mutating
// engine operation runs under the session's lock.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for the session, creating it on first use.
// Locks are never reclaimed; sessions are short-lived and few.
func (l *sessionLocks) lock(sessionID string) func() {
	l.mu.Lock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
