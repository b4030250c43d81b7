package core

import (
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func hasErrorContaining(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidateBid_FirstBid(t *testing.T) {
	session := newTestSession()

	result, err := ValidateBid(ValidateBidInput{
		ProposedBid: 1000,
		Session:     session,
		UserID:      "guest_a",
		Now:         testNow,
	})
	assert.Nil(t, err)

	check.True(t, result.Valid)
	check.Equal(t, 0, len(result.Errors))
	check.Equal(t, AbsoluteMinimumBid, result.MinimumNextBid)
	check.Equal(t, AbsoluteMaximumBid, result.MaximumAllowed)
	check.Equal(t, AbsoluteMinimumBid, result.SuggestedBid)
}

func TestValidateBid_IncrementRule(t *testing.T) {
	tests := []struct {
		name        string
		proposed    float64
		valid       bool
		errContains string
	}{
		{"meets minimum increment exactly", 1100, true, ""},
		{"above minimum increment", 1150, true, ""},
		{"above high but below increment", 1050, false, "minimum increment"},
		{"equal to current high", 1000, false, "must exceed"},
		{"below current high", 900, false, "must exceed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := withHighBid(newTestSession(), "guest_b", 1000)

			result, err := ValidateBid(ValidateBidInput{
				ProposedBid: tt.proposed,
				Session:     session,
				UserID:      "guest_a",
				Now:         testNow,
			})
			assert.Nil(t, err)

			check.Equal(t, tt.valid, result.Valid)
			if tt.errContains != "" {
				check.True(t, hasErrorContaining(result.Errors, tt.errContains))
			}
			check.Equal(t, 1100.0, result.MinimumNextBid)
			check.Equal(t, 2000.0, result.MaximumAllowed)
			check.Equal(t, 1150.0, result.SuggestedBid)
		})
	}
}

func TestValidateBid_EqualToHighReportsBothIncrementMessages(t *testing.T) {
	// With a 0% increment the minimum next bid equals the current high, so
	// a bid at that amount trips only the must-exceed half of rule 1. The
	// two checks are deliberately reported independently.
	session := withHighBid(newTestSession(), "guest_b", 1000)
	session.MinimumIncrementPercent = 0

	result, err := ValidateBid(ValidateBidInput{
		ProposedBid: 1000,
		Session:     session,
		UserID:      "guest_a",
		Now:         testNow,
	})
	assert.Nil(t, err)

	check.False(t, result.Valid)
	check.True(t, hasErrorContaining(result.Errors, "must exceed"))
	check.False(t, hasErrorContaining(result.Errors, "minimum increment"))
}

func TestValidateBid_SelfOutbid(t *testing.T) {
	session := withHighBid(newTestSession(), "guest_a", 1000)

	// Amount satisfies the increment rule but the high bidder must wait.
	result, err := ValidateBid(ValidateBidInput{
		ProposedBid: 1100,
		Session:     session,
		UserID:      "guest_a",
		Now:         testNow,
	})
	assert.Nil(t, err)

	check.False(t, result.Valid)
	check.True(t, hasErrorContaining(result.Errors, "wait for the other guest"))
}

func TestValidateBid_SessionState(t *testing.T) {
	tests := []struct {
		name        string
		status      SessionStatus
		now         time.Time
		valid       bool
		errContains string
	}{
		{"active and before expiry", StatusActive, testNow, true, ""},
		{"pending is not biddable", StatusPending, testNow, false, "not open"},
		{"completed is not biddable", StatusCompleted, testNow, false, "not open"},
		{"cancelled is not biddable", StatusCancelled, testNow, false, "not open"},
		{"active but past expiry", StatusActive, testExpiry.Add(time.Minute), false, "expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newTestSession()
			session.Status = tt.status

			result, err := ValidateBid(ValidateBidInput{
				ProposedBid: 1000,
				Session:     session,
				UserID:      "guest_a",
				Now:         tt.now,
			})
			assert.Nil(t, err)

			check.Equal(t, tt.valid, result.Valid)
			if tt.errContains != "" {
				check.True(t, hasErrorContaining(result.Errors, tt.errContains))
			}
		})
	}
}

func TestValidateBid_RoundLimit(t *testing.T) {
	session := newTestSession()
	withHighBid(session, "guest_a", 1000)
	withHighBid(session, "guest_b", 1100)
	withHighBid(session, "guest_a", 1300)
	withHighBid(session, "guest_b", 1500)
	withHighBid(session, "guest_a", 1700)

	// guest_a has placed 3 bids; a 4th is rejected regardless of amount.
	result, err := ValidateBid(ValidateBidInput{
		ProposedBid: 2100,
		Session:     session,
		UserID:      "guest_a",
		Now:         testNow,
	})
	assert.Nil(t, err)

	check.False(t, result.Valid)
	check.True(t, hasErrorContaining(result.Errors, "round limit"))
}

func TestValidateBid_UpperBound(t *testing.T) {
	t.Run("no high bid caps at the absolute maximum", func(t *testing.T) {
		session := newTestSession()

		result, err := ValidateBid(ValidateBidInput{
			ProposedBid: 100001,
			Session:     session,
			UserID:      "guest_a",
			Now:         testNow,
		})
		assert.Nil(t, err)

		check.False(t, result.Valid)
		check.True(t, hasErrorContaining(result.Errors, "maximum allowed"))
	})

	t.Run("high bid caps at twice the high", func(t *testing.T) {
		session := withHighBid(newTestSession(), "guest_b", 1000)

		result, err := ValidateBid(ValidateBidInput{
			ProposedBid: 2001,
			Session:     session,
			UserID:      "guest_a",
			Now:         testNow,
		})
		assert.Nil(t, err)

		check.False(t, result.Valid)
		check.True(t, hasErrorContaining(result.Errors, "maximum allowed"))
		check.Equal(t, 2000.0, result.MaximumAllowed)
	})
}

func TestValidateBid_AbsoluteFloor(t *testing.T) {
	session := newTestSession()

	result, err := ValidateBid(ValidateBidInput{
		ProposedBid: 99.99,
		Session:     session,
		UserID:      "guest_a",
		Now:         testNow,
	})
	assert.Nil(t, err)

	check.False(t, result.Valid)
	check.True(t, hasErrorContaining(result.Errors, "below the minimum"))
}

func TestValidateBid_AccumulatesAllViolations(t *testing.T) {
	// A single bid can break several rules at once; every message must be
	// present so the UI can display them all.
	session := withHighBid(newTestSession(), "guest_a", 1000)
	session.Status = StatusCompleted

	result, err := ValidateBid(ValidateBidInput{
		ProposedBid: 50,
		Session:     session,
		UserID:      "guest_a",
		Now:         testExpiry.Add(time.Minute),
	})
	assert.Nil(t, err)

	check.False(t, result.Valid)
	check.True(t, hasErrorContaining(result.Errors, "must exceed"))
	check.True(t, hasErrorContaining(result.Errors, "minimum increment"))
	check.True(t, hasErrorContaining(result.Errors, "current high bid; wait"))
	check.True(t, hasErrorContaining(result.Errors, "not open"))
	check.True(t, hasErrorContaining(result.Errors, "expired"))
	check.True(t, hasErrorContaining(result.Errors, "below the minimum"))
}

func TestValidateBid_MalformedSession(t *testing.T) {
	t.Run("nil session", func(t *testing.T) {
		_, err := ValidateBid(ValidateBidInput{ProposedBid: 1000, UserID: "guest_a"})
		check.NotNil(t, err)
	})

	t.Run("wrong participant count", func(t *testing.T) {
		session := newTestSession()
		session.Participants = session.Participants[:1]

		_, err := ValidateBid(ValidateBidInput{
			ProposedBid: 1000,
			Session:     session,
			UserID:      "guest_a",
			Now:         testNow,
		})
		check.NotNil(t, err)
	})
}
