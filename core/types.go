package core

import (
	"time"
)

// SessionStatus represents the lifecycle state of a bidding session.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusExpired   SessionStatus = "expired"
	StatusCancelled SessionStatus = "cancelled"
)

// Defaults and hard limits for bidding sessions. Sessions may override the
// increment percent and round count; the floor, ceiling and compensation
// rate are platform-wide.
const (
	DefaultMinimumIncrementPercent = 10.0
	DefaultMaxRounds               = 3
	AbsoluteMinimumBid             = 100.0
	AbsoluteMaximumBid             = 100000.0
	LoserCompensationRate          = 0.25
)

// Bid represents a single bid event, manual or system-placed.
// Bids are immutable once appended to a session's history.
type Bid struct {
	BidID     string    `json:"bid_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	Round     int       `json:"round"`
	IsAutoBid bool      `json:"is_auto_bid"`
	Timestamp time.Time `json:"timestamp"`

	// Diagnostic metadata, populated for auto-bids
	PreviousHighBid  *float64 `json:"previous_high_bid,omitempty"`
	IncrementAmount  *float64 `json:"increment_amount,omitempty"`
	IncrementPercent *float64 `json:"increment_percent,omitempty"`
}

// HighBid is the session's current leading bid.
type HighBid struct {
	Amount float64 `json:"amount"`
	UserID string  `json:"user_id"`
}

// Participant is a session-scoped view of one competing guest.
type Participant struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`

	// CurrentBid is the amount the participant has standing, nil before
	// their first bid.
	CurrentBid *float64 `json:"current_bid,omitempty"`

	// MaxAutoBidAmount is the ceiling the participant authorized the
	// system to bid on their behalf. Nil means no proxy authorization.
	MaxAutoBidAmount *float64 `json:"max_auto_bid_amount,omitempty"`

	// Write-once at finalization
	IsWinner     bool     `json:"is_winner"`
	Compensation *float64 `json:"compensation,omitempty"`
}

// Session is one competitive-bidding round between exactly two participants
// for one contested night of a shared listing.
type Session struct {
	SessionID   string `json:"session_id"`
	ListingID   string `json:"listing_id"`
	TargetNight string `json:"target_night"` // YYYY-MM-DD

	Participants   []Participant `json:"participants"`
	CurrentHighBid *HighBid      `json:"current_high_bid,omitempty"`

	// BiddingHistory is append-only; insertion order is the authoritative
	// chronological and tie-break order. Never reconstruct from timestamps.
	BiddingHistory []Bid `json:"bidding_history"`

	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	ExpiresAt time.Time     `json:"expires_at"`

	MaxRounds               int     `json:"max_rounds"`
	MinimumIncrementPercent float64 `json:"minimum_increment_percent"`

	// Version supports optimistic concurrency in persistent stores.
	Version int64 `json:"version"`
}

// ValidationResult is the advisory outcome of validating a proposed bid.
// It is never persisted; Errors holds every violated rule's message.
type ValidationResult struct {
	Valid          bool     `json:"valid"`
	Errors         []string `json:"errors"`
	MinimumNextBid float64  `json:"minimum_next_bid"`
	MaximumAllowed float64  `json:"maximum_allowed"`
	SuggestedBid   float64  `json:"suggested_bid"`
}

// AutoBidOutcome reports whether a standing proxy authorization fired in
// response to an accepted bid, and the counter-bid it emitted if so.
type AutoBidOutcome struct {
	Triggered bool   `json:"triggered"`
	Bid       *Bid   `json:"bid,omitempty"`
	Reason    string `json:"reason"`
}

// SessionResult is computed exactly once when a session reaches a terminal
// state with at least one bid on record.
type SessionResult struct {
	SessionID         string    `json:"session_id"`
	WinnerID          string    `json:"winner_id"`
	LoserID           string    `json:"loser_id"`
	WinningBid        float64   `json:"winning_bid"`
	LoserCompensation float64   `json:"loser_compensation"`
	PlatformRevenue   float64   `json:"platform_revenue"`
	TotalRounds       int       `json:"total_rounds"`
	FinalizedAt       time.Time `json:"finalized_at"`
}

// ParticipantByID returns the participant with the given user ID, or nil.
func (s *Session) ParticipantByID(userID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// OpponentOf returns the participant whose user ID differs from userID,
// or nil if the session lacks one.
func (s *Session) OpponentOf(userID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID != userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// BidCount returns how many bids (manual and auto) the user has placed.
func (s *Session) BidCount(userID string) int {
	count := 0
	for i := range s.BiddingHistory {
		if s.BiddingHistory[i].UserID == userID {
			count++
		}
	}
	return count
}

// IsExpired reports whether wall-clock time has passed the session's expiry.
// Evaluated fresh on every validation so a late bid is rejected even if the
// expiry sweep has not yet transitioned the stored status.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsTerminal reports whether the session has reached a final state.
func (s *Session) IsTerminal() bool {
	switch s.Status {
	case StatusCompleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// ApplyBid mutates the session snapshot with an accepted bid: appends it to
// the history, promotes it to the current high, and updates the bidder's
// standing amount. Callers must hold the session's write serialization.
func (s *Session) ApplyBid(bid Bid) {
	s.BiddingHistory = append(s.BiddingHistory, bid)
	s.CurrentHighBid = &HighBid{Amount: bid.Amount, UserID: bid.UserID}
	if p := s.ParticipantByID(bid.UserID); p != nil {
		amount := bid.Amount
		p.CurrentBid = &amount
	}
	if s.Status == StatusPending {
		s.Status = StatusActive
	}
}
