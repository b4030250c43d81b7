package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// conservationTolerance bounds the allowed drift between the winning bid
// and the compensation/revenue split, which are rounded independently.
const conservationTolerance = 0.01

var (
	// ErrSessionNotTerminal indicates a caller tried to settle a session
	// that has not reached a terminal status yet.
	ErrSessionNotTerminal = errors.New("session is not terminal")

	// ErrNoBids indicates the session ended with an empty bidding history.
	// There is no winner; callers cancel the session and the contested
	// night reverts to unassigned.
	ErrNoBids = errors.New("session has no bids")
)

// DetermineWinner settles a terminal session: the owner of the last bid in
// the history wins at that amount, the loser receives 25% of the winning
// bid as consolation, and the platform retains the remaining 75%.
//
// The two shares are computed independently and checked to sum back to the
// winning bid within a cent. The computation is idempotent over the same
// snapshot; enforcing that finalization happens exactly once is the
// caller's responsibility.
func DetermineWinner(session *Session, now time.Time) (*SessionResult, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: session is nil", ErrMalformedSession)
	}
	if !session.IsTerminal() {
		return nil, fmt.Errorf("%w: status %s", ErrSessionNotTerminal, session.Status)
	}
	if len(session.BiddingHistory) == 0 {
		return nil, ErrNoBids
	}
	if now.IsZero() {
		now = time.Now()
	}

	winning := session.BiddingHistory[len(session.BiddingHistory)-1]

	loser := session.OpponentOf(winning.UserID)
	loserID := ""
	if loser != nil {
		loserID = loser.UserID
	}

	winningBid := decimal.NewFromFloat(winning.Amount)
	compensation, _ := winningBid.Mul(decimal.NewFromFloat(LoserCompensationRate)).Round(centsPrecision).Float64()
	revenue, _ := winningBid.Mul(decimal.NewFromFloat(1 - LoserCompensationRate)).Round(centsPrecision).Float64()

	if math.Abs(compensation+revenue-winning.Amount) > conservationTolerance {
		return nil, fmt.Errorf("settlement split does not conserve winning bid: %.2f + %.2f != %.2f",
			compensation, revenue, winning.Amount)
	}

	return &SessionResult{
		SessionID:         session.SessionID,
		WinnerID:          winning.UserID,
		LoserID:           loserID,
		WinningBid:        winning.Amount,
		LoserCompensation: compensation,
		PlatformRevenue:   revenue,
		TotalRounds:       len(session.BiddingHistory),
		FinalizedAt:       now,
	}, nil
}

// ApplyResult writes the finalization outcome onto the session's
// participants. Write-once: callers must not refinalize a settled session.
func ApplyResult(session *Session, result *SessionResult) {
	for i := range session.Participants {
		p := &session.Participants[i]
		if p.UserID == result.WinnerID {
			p.IsWinner = true
			continue
		}
		compensation := result.LoserCompensation
		p.Compensation = &compensation
	}
}
