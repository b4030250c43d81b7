// Package engine orchestrates bidding sessions: it loads a session
// snapshot, runs the pure core pipeline (validate → accept → auto-bid
// cascade), persists the outcome, and publishes domain events. All
// mutation for a session is serialized through a per-session lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/splitlease/nightbid/core"
	"github.com/splitlease/nightbid/events"
	"github.com/splitlease/nightbid/store"
)

var (
	// ErrUnknownParticipant indicates the acting user is not one of the
	// session's two participants.
	ErrUnknownParticipant = errors.New("user is not a participant in this session")

	// ErrInvalidAutoBidRange indicates a proxy ceiling outside the
	// accepted 100–100,000 range.
	ErrInvalidAutoBidRange = errors.New("max auto-bid must be between $100.00 and $100000.00")

	// ErrSessionFinalized indicates an operation on an already-settled
	// session.
	ErrSessionFinalized = errors.New("session already finalized")
)

// Engine wires the pure bidding core to a session store and an event
// publisher.
type Engine struct {
	store     store.SessionStore
	publisher events.Publisher
	locks     *sessionLocks

	// now is injectable for deterministic tests.
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given store and publisher.
func New(sessions store.SessionStore, publisher events.Publisher, opts ...Option) *Engine {
	e := &Engine{
		store:     sessions,
		publisher: publisher,
		locks:     newSessionLocks(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenSessionRequest describes a new contested night.
type OpenSessionRequest struct {
	ListingID    string
	TargetNight  string
	Participants [2]core.Participant
	Duration     time.Duration

	// Zero values take the platform defaults.
	MaxRounds               int
	MinimumIncrementPercent float64
}

// OpenSession creates a session for two matched guests, open for bidding
// immediately. Sessions held in pending (e.g. awaiting the second guest's
// confirmation upstream) reject bids until activated.
func (e *Engine) OpenSession(ctx context.Context, req OpenSessionRequest) (*core.Session, error) {
	if req.Participants[0].UserID == req.Participants[1].UserID {
		return nil, fmt.Errorf("participants must be distinct users")
	}

	maxRounds := req.MaxRounds
	if maxRounds == 0 {
		maxRounds = core.DefaultMaxRounds
	}
	incrementPercent := req.MinimumIncrementPercent
	if incrementPercent == 0 {
		incrementPercent = core.DefaultMinimumIncrementPercent
	}

	now := e.now()
	session := &core.Session{
		SessionID:               core.NewSessionID(),
		ListingID:               req.ListingID,
		TargetNight:             req.TargetNight,
		Participants:            req.Participants[:],
		Status:                  core.StatusActive,
		StartedAt:               now,
		ExpiresAt:               now.Add(req.Duration),
		MaxRounds:               maxRounds,
		MinimumIncrementPercent: incrementPercent,
	}

	if err := e.store.Create(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("INFO: Opened session %s for listing %s night %s (%s vs %s)",
		session.SessionID, session.ListingID, session.TargetNight,
		session.Participants[0].UserID, session.Participants[1].UserID)
	return session, nil
}

// PlaceBidResult reports a bid submission outcome: the validation verdict,
// and — when accepted — the persisted bid plus any proxy counter-bids the
// cascade emitted.
type PlaceBidResult struct {
	Validation core.ValidationResult `json:"validation"`
	Bid        *core.Bid             `json:"bid,omitempty"`
	AutoBids   []core.Bid            `json:"auto_bids,omitempty"`
}

// PlaceBid runs the full pipeline for one manual bid. A failed validation
// is a normal outcome returned as data; only caller-contract and
// infrastructure problems surface as errors.
func (e *Engine) PlaceBid(ctx context.Context, sessionID, userID string, amount float64) (*PlaceBidResult, error) {
	unlock := e.locks.lock(sessionID)
	defer unlock()

	session, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ParticipantByID(userID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, userID)
	}

	now := e.now()
	working := session

	validation, err := core.ValidateBid(core.ValidateBidInput{
		ProposedBid: amount,
		Session:     working,
		UserID:      userID,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		log.Printf("INFO: Rejected bid of %s by %s on %s: %d rule violation(s)",
			core.FormatUSD(amount), userID, sessionID, len(validation.Errors))
		return &PlaceBidResult{Validation: validation}, nil
	}

	bid := core.Bid{
		BidID:     core.NewBidID(),
		SessionID: sessionID,
		UserID:    userID,
		Amount:    core.RoundCents(amount),
		Round:     working.BidCount(userID) + 1,
		Timestamp: now,
	}
	working.ApplyBid(bid)

	autoBids := core.RunAutoBidCascade(working, bid, now)

	if err := e.store.Update(ctx, working); err != nil {
		return nil, err
	}

	e.publishBid(ctx, events.EventBidAccepted, bid, "")
	for i := range autoBids {
		e.publishBid(ctx, events.EventAutoBidTriggered, autoBids[i],
			fmt.Sprintf("answered %s", core.FormatUSD(*autoBids[i].PreviousHighBid)))
	}

	log.Printf("INFO: Accepted bid %s of %s by %s on %s (%d auto-bid(s) followed)",
		bid.BidID, core.FormatUSD(bid.Amount), userID, sessionID, len(autoBids))

	return &PlaceBidResult{Validation: validation, Bid: &bid, AutoBids: autoBids}, nil
}

// SetMaxAutoBid records a participant's proxy ceiling. The amount is only
// range-checked; it is not validated against bidding rules.
func (e *Engine) SetMaxAutoBid(ctx context.Context, sessionID, userID string, amount float64) error {
	if amount < core.AbsoluteMinimumBid || amount > core.AbsoluteMaximumBid {
		return fmt.Errorf("%w: got %s", ErrInvalidAutoBidRange, core.FormatUSD(amount))
	}

	unlock := e.locks.lock(sessionID)
	defer unlock()

	session, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrSessionFinalized, sessionID)
	}

	participant := session.ParticipantByID(userID)
	if participant == nil {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, userID)
	}

	rounded := core.RoundCents(amount)
	participant.MaxAutoBidAmount = &rounded

	if err := e.store.Update(ctx, session); err != nil {
		return err
	}

	log.Printf("INFO: %s authorized proxy bidding up to %s on %s",
		userID, core.FormatUSD(rounded), sessionID)
	return nil
}

// CloseSession explicitly ends a session and settles it. With no bids on
// record the session is cancelled and the night reverts; otherwise the
// session completes with a winner.
func (e *Engine) CloseSession(ctx context.Context, sessionID string) (*core.SessionResult, error) {
	unlock := e.locks.lock(sessionID)
	defer unlock()

	return e.finalize(ctx, sessionID, core.StatusCompleted)
}

// Snapshot returns a read-only copy of the session.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (*core.Session, error) {
	return e.store.Get(ctx, sessionID)
}

// SweepExpired transitions every lingering session past its expiry and
// settles it. The validator independently rejects late bids by wall clock,
// so the sweep only has to catch sessions nobody is bidding on anymore.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	ids, err := e.store.ListExpired(ctx, e.now())
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, id := range ids {
		unlock := e.locks.lock(id)
		_, err := e.finalize(ctx, id, core.StatusExpired)
		unlock()
		if err != nil && !errors.Is(err, ErrSessionFinalized) {
			log.Printf("ERROR: Failed to finalize expired session %s: %v", id, err)
			continue
		}
		swept++
	}
	return swept, nil
}

// finalize performs the one-way terminal transition and settlement. Caller
// must hold the session lock.
func (e *Engine) finalize(ctx context.Context, sessionID string, terminal core.SessionStatus) (*core.SessionResult, error) {
	session, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, fmt.Errorf("%w: %s (status %s)", ErrSessionFinalized, sessionID, session.Status)
	}

	now := e.now()

	if len(session.BiddingHistory) == 0 {
		session.Status = core.StatusCancelled
		if err := e.store.Update(ctx, session); err != nil {
			return nil, err
		}

		event := events.NewEvent(events.EventSessionCancelled, sessionID, now)
		event.Reason = "no bids placed; night reverts to unassigned"
		e.publish(ctx, event)

		log.Printf("INFO: Session %s cancelled with no bids", sessionID)
		return nil, nil
	}

	session.Status = terminal
	result, err := core.DetermineWinner(session, now)
	if err != nil {
		return nil, err
	}
	core.ApplyResult(session, result)

	if err := e.store.Update(ctx, session); err != nil {
		return nil, err
	}

	event := events.NewEvent(events.EventSessionFinalized, sessionID, now)
	event.Result = result
	e.publish(ctx, event)

	log.Printf("INFO: Session %s finalized: winner=%s at %s, compensation=%s, revenue=%s",
		sessionID, result.WinnerID, core.FormatUSD(result.WinningBid),
		core.FormatUSD(result.LoserCompensation), core.FormatUSD(result.PlatformRevenue))
	return result, nil
}

func (e *Engine) publishBid(ctx context.Context, eventType events.EventType, bid core.Bid, reason string) {
	event := events.NewEvent(eventType, bid.SessionID, bid.Timestamp)
	event.Bid = &bid
	event.Reason = reason
	e.publish(ctx, event)
}

// publish is best-effort from the engine's perspective: the session state
// is already durable, and dropped events surface in logs for replay.
func (e *Engine) publish(ctx context.Context, event events.Event) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		log.Printf("ERROR: Failed to publish %s event for %s: %v", event.Type, event.SessionID, err)
	}
}
