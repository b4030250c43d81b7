package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedSession indicates the caller handed the validator a session
// that violates the data-model invariants (wrong participant count, nil
// session). This is a broken caller contract, not a user-facing rejection.
var ErrMalformedSession = errors.New("malformed bidding session")

// ValidateBidInput carries a proposed manual bid together with the session
// snapshot it must be judged against.
type ValidateBidInput struct {
	ProposedBid float64
	Session     *Session
	UserID      string

	// BidHistory is the authoritative ordered bid list for the session.
	// Nil means use Session.BiddingHistory.
	BidHistory []Bid

	// Now is the wall-clock instant of evaluation. Zero means time.Now().
	Now time.Time
}

// ValidateBid applies every bidding rule to a proposed manual bid and
// accumulates all violations; it never short-circuits, so a bid that breaks
// several rules reports every corresponding message. The result is purely
// advisory: the caller persists the bid only when Valid is true.
//
// Rules, in evaluation order:
//  1. must strictly exceed the current high bid, and
//     must meet the minimum increment over it (reported independently)
//  2. the current high bidder cannot bid again (no self-outbid)
//  3. the session must be active, and must not be past its expiry
//     (the expiry check runs even when the stored status reads active)
//  4. the proposer must have bids remaining (maxRounds per participant)
//  5. the bid must not exceed the ceiling: 2× the current high, or the
//     absolute maximum when no high bid exists
//  6. the bid must meet the absolute minimum regardless of other rules
func ValidateBid(in ValidateBidInput) (ValidationResult, error) {
	if in.Session == nil {
		return ValidationResult{}, fmt.Errorf("%w: session is nil", ErrMalformedSession)
	}
	if len(in.Session.Participants) != 2 {
		return ValidationResult{}, fmt.Errorf("%w: expected 2 participants, got %d",
			ErrMalformedSession, len(in.Session.Participants))
	}

	session := in.Session
	history := in.BidHistory
	if history == nil {
		history = session.BiddingHistory
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	errs := make([]string, 0, 4)

	high := session.CurrentHighBid
	minNext := AbsoluteMinimumBid
	maxAllowed := AbsoluteMaximumBid
	if high != nil {
		minNext = MinimumNextBid(high.Amount, session.MinimumIncrementPercent)
		maxAllowed = RoundCents(high.Amount * 2)
	}

	// Rule 1: increment (both halves reported independently)
	if high != nil {
		if in.ProposedBid <= high.Amount {
			errs = append(errs, fmt.Sprintf("bid must exceed the current high bid of %s",
				FormatUSD(high.Amount)))
		}
		if in.ProposedBid < minNext {
			errs = append(errs, fmt.Sprintf("bid of %s does not meet the %.0f%% minimum increment; next valid bid is %s",
				FormatUSD(in.ProposedBid), session.MinimumIncrementPercent, FormatUSD(minNext)))
		}
	}

	// Rule 2: self-outbid
	if high != nil && high.UserID == in.UserID {
		errs = append(errs, "you hold the current high bid; wait for the other guest to respond")
	}

	// Rule 3: session state and wall-clock expiry
	if session.Status != StatusActive {
		errs = append(errs, fmt.Sprintf("session is not open for bidding (status: %s)", session.Status))
	}
	if session.IsExpired(now) {
		errs = append(errs, fmt.Sprintf("session expired at %s", session.ExpiresAt.Format(time.RFC3339)))
	}

	// Rule 4: round limit
	placed := 0
	for i := range history {
		if history[i].UserID == in.UserID {
			placed++
		}
	}
	if placed >= session.MaxRounds {
		errs = append(errs, fmt.Sprintf("round limit reached: %d of %d bids already placed", placed, session.MaxRounds))
	}

	// Rule 5: upper bound
	if in.ProposedBid > maxAllowed {
		errs = append(errs, fmt.Sprintf("bid exceeds the maximum allowed of %s", FormatUSD(maxAllowed)))
	}

	// Rule 6: absolute floor
	if in.ProposedBid < AbsoluteMinimumBid {
		errs = append(errs, fmt.Sprintf("bid is below the minimum of %s", FormatUSD(AbsoluteMinimumBid)))
	}

	highAmount := 0.0
	if high != nil {
		highAmount = high.Amount
	}

	return ValidationResult{
		Valid:          len(errs) == 0,
		Errors:         errs,
		MinimumNextBid: minNext,
		MaximumAllowed: maxAllowed,
		SuggestedBid:   SuggestedBid(highAmount, minNext),
	}, nil
}
