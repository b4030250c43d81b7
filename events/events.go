// Package events fans bidding domain events out to the collaborators the
// core does not talk to directly: a Redis Pub/Sub channel feeds the
// realtime relay that pushes updates to both guests' browsers, and a NATS
// JetStream stream feeds settlement and archival consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/splitlease/nightbid/core"
)

// EventType identifies a bidding domain event.
type EventType string

const (
	EventBidAccepted      EventType = "bid.accepted"
	EventAutoBidTriggered EventType = "autobid.triggered"
	EventSessionFinalized EventType = "session.finalized"
	EventSessionCancelled EventType = "session.cancelled"
)

// Event is one bidding domain event. Exactly one of Bid or Result is set
// depending on the event type; cancelled sessions carry neither.
type Event struct {
	EventID    string              `json:"event_id" cbor:"1,keyasint"`
	Type       EventType           `json:"type" cbor:"2,keyasint"`
	SessionID  string              `json:"session_id" cbor:"3,keyasint"`
	OccurredAt time.Time           `json:"occurred_at" cbor:"4,keyasint"`
	Bid        *core.Bid           `json:"bid,omitempty" cbor:"5,keyasint,omitempty"`
	Reason     string              `json:"reason,omitempty" cbor:"6,keyasint,omitempty"`
	Result     *core.SessionResult `json:"result,omitempty" cbor:"7,keyasint,omitempty"`
}

// NewEvent stamps a fresh event with an ID and occurrence time.
func NewEvent(eventType EventType, sessionID string, occurredAt time.Time) Event {
	return Event{
		EventID:    "event_" + uuid.NewString(),
		Type:       eventType,
		SessionID:  sessionID,
		OccurredAt: occurredAt,
	}
}

// Publisher delivers domain events to external transports. Implementations
// must be safe for concurrent use; the engine publishes outside its
// per-session locks.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards all events. Used by tests and the offline CLI.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
