package core

import (
	"fmt"
	"time"
)

// AutoBidInput carries an accepted bid and the session it landed on.
// The session snapshot must already reflect the accepted bid.
type AutoBidInput struct {
	Session *Session
	NewBid  Bid
	Now     time.Time
}

// ProcessAutoBid decides whether the opposing participant's standing proxy
// authorization should answer an accepted bid, and computes the counter-bid.
//
// The proxy always bids the smallest amount sufficient to retake the lead
// and never exceeds its authorized ceiling: when the increment formula would
// demand more than the ceiling, the counter-bid is silently capped at the
// ceiling. Auto-bids are exempt from the exceed-high and self-outbid rules
// (they are system-generated and answer the bid that triggered them) but
// consume the proxy owner's rounds identically to manual bids.
//
// The emitted bid is NOT persisted here; the caller appends it and offers it
// back through this function in case the original bidder also holds proxy
// authorization above the new amount.
func ProcessAutoBid(in AutoBidInput) AutoBidOutcome {
	session := in.Session
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	opponent := session.OpponentOf(in.NewBid.UserID)
	if opponent == nil {
		// Should not occur under the two-participant invariant.
		return AutoBidOutcome{
			Triggered: false,
			Reason:    "no opposing participant in session",
		}
	}

	if opponent.MaxAutoBidAmount == nil {
		return AutoBidOutcome{
			Triggered: false,
			Reason:    fmt.Sprintf("%s has no proxy authorization on file", opponent.UserID),
		}
	}
	ceiling := *opponent.MaxAutoBidAmount

	if in.NewBid.Amount >= ceiling {
		return AutoBidOutcome{
			Triggered: false,
			Reason: fmt.Sprintf("proxy ceiling of %s met or exceeded by bid of %s",
				FormatUSD(ceiling), FormatUSD(in.NewBid.Amount)),
		}
	}

	if used := session.BidCount(opponent.UserID); used >= session.MaxRounds {
		return AutoBidOutcome{
			Triggered: false,
			Reason: fmt.Sprintf("%s has used all %d rounds; proxy stands down",
				opponent.UserID, session.MaxRounds),
		}
	}

	amount := MinimumNextBid(in.NewBid.Amount, session.MinimumIncrementPercent)
	if amount > ceiling {
		amount = ceiling
	}

	previous := in.NewBid.Amount
	increment := RoundCents(amount - previous)
	incrementPct := RoundCents(increment / previous * 100)

	bid := Bid{
		BidID:            NewBidID(),
		SessionID:        session.SessionID,
		UserID:           opponent.UserID,
		Amount:           amount,
		Round:            session.BidCount(opponent.UserID) + 1,
		IsAutoBid:        true,
		Timestamp:        now,
		PreviousHighBid:  &previous,
		IncrementAmount:  &increment,
		IncrementPercent: &incrementPct,
	}

	return AutoBidOutcome{
		Triggered: true,
		Bid:       &bid,
		Reason: fmt.Sprintf("proxy for %s answered %s with %s (ceiling %s)",
			opponent.UserID, FormatUSD(previous), FormatUSD(amount), FormatUSD(ceiling)),
	}
}

// RunAutoBidCascade repeatedly offers each newly accepted bid back through
// ProcessAutoBid until no proxy fires, applying every emitted bid to the
// session snapshot in insertion order. Returns the emitted auto-bids.
//
// Termination: each cycle strictly increases the leading bid or hits a
// participant's ceiling, so the cascade is bounded by min of both maxima.
// A hard iteration cap of 2×maxRounds guards independently.
func RunAutoBidCascade(session *Session, accepted Bid, now time.Time) []Bid {
	emitted := make([]Bid, 0, 2)
	current := accepted

	limit := 2 * session.MaxRounds
	for i := 0; i < limit; i++ {
		outcome := ProcessAutoBid(AutoBidInput{Session: session, NewBid: current, Now: now})
		if !outcome.Triggered {
			break
		}
		bid := *outcome.Bid
		session.ApplyBid(bid)
		emitted = append(emitted, bid)
		current = bid
	}

	return emitted
}
