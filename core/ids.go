package core

import "github.com/google/uuid"

// NewSessionID returns an opaque unique session identifier.
func NewSessionID() string {
	return "session_" + uuid.NewString()
}

// NewBidID returns an opaque unique bid identifier.
func NewBidID() string {
	return "bid_" + uuid.NewString()
}
