package events

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// envelopeVersion tags the archival wire format so settlement consumers
// can migrate without draining the stream.
const envelopeVersion = 1

type envelope struct {
	Version int   `cbor:"1,keyasint"`
	Event   Event `cbor:"2,keyasint"`
}

// EncodeEvent serializes an event into the versioned CBOR envelope used on
// the JetStream archival subjects.
func EncodeEvent(event Event) ([]byte, error) {
	data, err := cbor.Marshal(envelope{Version: envelopeVersion, Event: event})
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", event.EventID, err)
	}
	return data, nil
}

// DecodeEvent deserializes an archival envelope, rejecting unknown versions.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("failed to decode event envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return Event{}, fmt.Errorf("unsupported event envelope version %d", env.Version)
	}
	return env.Event, nil
}
