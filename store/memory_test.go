package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/splitlease/nightbid/core"
)

func testSession(id string, expiresAt time.Time) *core.Session {
	return &core.Session{
		SessionID:   id,
		ListingID:   "listing_1",
		TargetNight: "2026-07-04",
		Participants: []core.Participant{
			{UserID: "guest_a", Name: "Guest A"},
			{UserID: "guest_b", Name: "Guest B"},
		},
		Status:                  core.StatusActive,
		StartedAt:               expiresAt.Add(-24 * time.Hour),
		ExpiresAt:               expiresAt,
		MaxRounds:               core.DefaultMaxRounds,
		MinimumIncrementPercent: core.DefaultMinimumIncrementPercent,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	session := testSession("session_1", time.Now().Add(time.Hour))

	assert.Nil(t, s.Create(ctx, session))

	got, err := s.Get(ctx, "session_1")
	assert.Nil(t, err)
	check.Equal(t, session.SessionID, got.SessionID)
	check.Equal(t, 2, len(got.Participants))

	err = s.Create(ctx, session)
	check.True(t, errors.Is(err, ErrSessionExists))

	_, err = s.Get(ctx, "nope")
	check.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestMemoryStore_GetReturnsIsolatedSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	session := testSession("session_1", time.Now().Add(time.Hour))
	assert.Nil(t, s.Create(ctx, session))

	first, err := s.Get(ctx, "session_1")
	assert.Nil(t, err)
	first.ApplyBid(core.Bid{BidID: "bid_1", SessionID: "session_1", UserID: "guest_a", Amount: 500, Round: 1})

	second, err := s.Get(ctx, "session_1")
	assert.Nil(t, err)
	check.Equal(t, 0, len(second.BiddingHistory))
	check.Nil(t, second.CurrentHighBid)
}

func TestMemoryStore_UpdateBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	session := testSession("session_1", time.Now().Add(time.Hour))
	assert.Nil(t, s.Create(ctx, session))

	snapshot, err := s.Get(ctx, "session_1")
	assert.Nil(t, err)
	snapshot.ApplyBid(core.Bid{BidID: "bid_1", SessionID: "session_1", UserID: "guest_a", Amount: 500, Round: 1})

	assert.Nil(t, s.Update(ctx, snapshot))
	check.Equal(t, int64(1), snapshot.Version)

	got, err := s.Get(ctx, "session_1")
	assert.Nil(t, err)
	check.Equal(t, 1, len(got.BiddingHistory))
	check.Equal(t, int64(1), got.Version)
}

func TestMemoryStore_UpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	session := testSession("session_1", time.Now().Add(time.Hour))
	assert.Nil(t, s.Create(ctx, session))

	stale, err := s.Get(ctx, "session_1")
	assert.Nil(t, err)
	fresh, err := s.Get(ctx, "session_1")
	assert.Nil(t, err)

	assert.Nil(t, s.Update(ctx, fresh))

	err = s.Update(ctx, stale)
	check.True(t, errors.Is(err, ErrVersionConflict))
}

func TestMemoryStore_ListExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	live := testSession("session_live", now.Add(time.Hour))
	expired := testSession("session_expired", now.Add(-time.Hour))
	settled := testSession("session_settled", now.Add(-time.Hour))
	settled.Status = core.StatusCompleted

	assert.Nil(t, s.Create(ctx, live))
	assert.Nil(t, s.Create(ctx, expired))
	assert.Nil(t, s.Create(ctx, settled))

	ids, err := s.ListExpired(ctx, now)
	assert.Nil(t, err)
	check.Equal(t, []string{"session_expired"}, ids)
}
