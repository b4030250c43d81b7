package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/splitlease/nightbid/core"
)

// MemoryStore is an in-memory SessionStore for development and tests.
// Snapshots are deep-copied on the way in and out so callers can never
// mutate stored state without going through Update.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*core.Session),
	}
}

func (m *MemoryStore) Create(_ context.Context, session *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.SessionID]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, session.SessionID)
	}
	m.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (*core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return cloneSession(stored), nil
}

func (m *MemoryStore) Update(_ context.Context, session *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[session.SessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.SessionID)
	}
	if stored.Version != session.Version {
		return fmt.Errorf("%w: have %d, got %d", ErrVersionConflict, stored.Version, session.Version)
	}

	next := cloneSession(session)
	next.Version++
	m.sessions[session.SessionID] = next
	session.Version = next.Version
	return nil
}

func (m *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expired := make([]string, 0)
	for id, s := range m.sessions {
		if !s.IsTerminal() && s.IsExpired(now) {
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func cloneSession(s *core.Session) *core.Session {
	clone := *s

	clone.Participants = make([]core.Participant, len(s.Participants))
	for i, p := range s.Participants {
		clone.Participants[i] = p
		clone.Participants[i].CurrentBid = clonePtr(p.CurrentBid)
		clone.Participants[i].MaxAutoBidAmount = clonePtr(p.MaxAutoBidAmount)
		clone.Participants[i].Compensation = clonePtr(p.Compensation)
	}

	clone.BiddingHistory = make([]core.Bid, len(s.BiddingHistory))
	for i, b := range s.BiddingHistory {
		clone.BiddingHistory[i] = b
		clone.BiddingHistory[i].PreviousHighBid = clonePtr(b.PreviousHighBid)
		clone.BiddingHistory[i].IncrementAmount = clonePtr(b.IncrementAmount)
		clone.BiddingHistory[i].IncrementPercent = clonePtr(b.IncrementPercent)
	}

	if s.CurrentHighBid != nil {
		high := *s.CurrentHighBid
		clone.CurrentHighBid = &high
	}

	return &clone
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}
