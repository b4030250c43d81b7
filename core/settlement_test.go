package core

import (
	"errors"
	"math"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestDetermineWinner(t *testing.T) {
	session := newTestSession()
	withHighBid(session, "guest_a", 1000)
	withHighBid(session, "guest_b", 1100)
	withHighBid(session, "guest_a", 1331)
	session.Status = StatusCompleted

	result, err := DetermineWinner(session, testNow)
	assert.Nil(t, err)

	check.Equal(t, "guest_a", result.WinnerID)
	check.Equal(t, "guest_b", result.LoserID)
	check.Equal(t, 1331.0, result.WinningBid)
	check.Equal(t, 332.75, result.LoserCompensation) // 1331 × 0.25
	check.Equal(t, 998.25, result.PlatformRevenue)   // 1331 × 0.75
	check.Equal(t, 3, result.TotalRounds)
	check.Equal(t, testNow, result.FinalizedAt)
}

func TestDetermineWinner_Conservation(t *testing.T) {
	amounts := []float64{100, 333.33, 1050, 1331, 9999.99, 100000}

	for _, amount := range amounts {
		session := newTestSession()
		withHighBid(session, "guest_b", amount)
		session.Status = StatusExpired

		result, err := DetermineWinner(session, testNow)
		assert.Nil(t, err)

		sum := result.LoserCompensation + result.PlatformRevenue
		check.True(t, math.Abs(sum-result.WinningBid) <= 0.01)
	}
}

func TestDetermineWinner_NoBids(t *testing.T) {
	session := newTestSession()
	session.Status = StatusExpired

	result, err := DetermineWinner(session, testNow)

	check.Nil(t, result)
	check.True(t, errors.Is(err, ErrNoBids))
}

func TestDetermineWinner_NotTerminal(t *testing.T) {
	session := withHighBid(newTestSession(), "guest_a", 1000)

	result, err := DetermineWinner(session, testNow)

	check.Nil(t, result)
	check.True(t, errors.Is(err, ErrSessionNotTerminal))
}

func TestDetermineWinner_Idempotent(t *testing.T) {
	session := newTestSession()
	withHighBid(session, "guest_a", 1000)
	withHighBid(session, "guest_b", 1210)
	session.Status = StatusCompleted

	first, err := DetermineWinner(session, testNow)
	assert.Nil(t, err)
	second, err := DetermineWinner(session, testNow)
	assert.Nil(t, err)

	check.Equal(t, first, second)
}

func TestApplyResult(t *testing.T) {
	session := newTestSession()
	withHighBid(session, "guest_a", 1000)
	withHighBid(session, "guest_b", 1100)
	session.Status = StatusCompleted

	result, err := DetermineWinner(session, testNow)
	assert.Nil(t, err)

	ApplyResult(session, result)

	winner := session.ParticipantByID("guest_b")
	loser := session.ParticipantByID("guest_a")
	assert.NotNil(t, winner)
	assert.NotNil(t, loser)

	check.True(t, winner.IsWinner)
	check.Nil(t, winner.Compensation)
	check.False(t, loser.IsWinner)
	assert.NotNil(t, loser.Compensation)
	check.Equal(t, 275.0, *loser.Compensation) // 1100 × 0.25
}

// End-to-end boundary pin: a 10% session where A opens at 1000, B's proxy
// (ceiling 1500) answers at 1100, and A's follow-up of 1200 falls short of
// the 1210 minimum and is rejected on the increment rule.
func TestBiddingScenario_BoundaryArithmetic(t *testing.T) {
	session := newTestSession()
	session.Participants[1].MaxAutoBidAmount = float64Ptr(1500)

	opening, err := ValidateBid(ValidateBidInput{
		ProposedBid: 1000,
		Session:     session,
		UserID:      "guest_a",
		Now:         testNow,
	})
	assert.Nil(t, err)
	assert.True(t, opening.Valid)

	manual := Bid{
		BidID:     NewBidID(),
		SessionID: session.SessionID,
		UserID:    "guest_a",
		Amount:    1000,
		Round:     1,
		Timestamp: testNow,
	}
	session.ApplyBid(manual)

	emitted := RunAutoBidCascade(session, manual, testNow)
	assert.Equal(t, 1, len(emitted))
	check.Equal(t, 1100.0, emitted[0].Amount)

	// 1100 × 1.10 = 1210, so 1200 must be rejected.
	followUp, err := ValidateBid(ValidateBidInput{
		ProposedBid: 1200,
		Session:     session,
		UserID:      "guest_a",
		Now:         testNow,
	})
	assert.Nil(t, err)

	check.False(t, followUp.Valid)
	check.True(t, hasErrorContaining(followUp.Errors, "minimum increment"))
	check.Equal(t, 1210.0, followUp.MinimumNextBid)

	// 1210 on the nose is the smallest acceptable follow-up.
	exact, err := ValidateBid(ValidateBidInput{
		ProposedBid: 1210,
		Session:     session,
		UserID:      "guest_a",
		Now:         testNow,
	})
	assert.Nil(t, err)
	check.True(t, exact.Valid)
}
