package core

import "time"

// Fixed instants for deterministic tests.
var (
	testStart  = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	testExpiry = testStart.Add(24 * time.Hour)
	testNow    = testStart.Add(1 * time.Hour)
)

// newTestSession builds an active two-guest session with default limits.
func newTestSession() *Session {
	return &Session{
		SessionID:   "session_test",
		ListingID:   "listing_test",
		TargetNight: "2026-07-04",
		Participants: []Participant{
			{UserID: "guest_a", Name: "Guest A"},
			{UserID: "guest_b", Name: "Guest B"},
		},
		Status:                  StatusActive,
		StartedAt:               testStart,
		ExpiresAt:               testExpiry,
		MaxRounds:               DefaultMaxRounds,
		MinimumIncrementPercent: DefaultMinimumIncrementPercent,
	}
}

// withHighBid applies a standing high bid to the session, recording it in
// the history the way an accepted bid would be.
func withHighBid(s *Session, userID string, amount float64) *Session {
	s.ApplyBid(Bid{
		BidID:     NewBidID(),
		SessionID: s.SessionID,
		UserID:    userID,
		Amount:    amount,
		Round:     s.BidCount(userID) + 1,
		Timestamp: testNow,
	})
	return s
}

func float64Ptr(v float64) *float64 {
	return &v
}
