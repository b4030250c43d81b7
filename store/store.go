// Package store persists bidding sessions. The engine reads a session
// snapshot, mutates it under its per-session lock, and writes it back with
// an optimistic version check, so a concurrent writer that slipped past the
// lock (another process, a stale replica) is still detected.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/splitlease/nightbid/core"
)

var (
	// ErrSessionNotFound indicates no session exists with the given ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists indicates a create collided with an existing ID.
	ErrSessionExists = errors.New("session already exists")

	// ErrVersionConflict indicates the session was modified since it was
	// read. Callers reload and retry under their serialization.
	ErrVersionConflict = errors.New("session version conflict")
)

// SessionStore is the persistence contract for bidding sessions. The bid
// history travels with the session; insertion order is authoritative and
// implementations must preserve it exactly.
type SessionStore interface {
	// Create persists a new session, failing if the ID is taken.
	Create(ctx context.Context, session *core.Session) error

	// Get returns a snapshot of the session and its full bid history.
	Get(ctx context.Context, sessionID string) (*core.Session, error)

	// Update writes the session back, comparing the stored version to
	// session.Version and bumping it on success.
	Update(ctx context.Context, session *core.Session) error

	// ListExpired returns IDs of non-terminal sessions whose expiry has
	// passed, for the sweep loop to finalize.
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
}
