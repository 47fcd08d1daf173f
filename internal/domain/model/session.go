package model

import (
	"encoding/json"
	"time"
)

// ChargingSession is an active charging session reported by the vendor.
// Raw holds the vendor payload verbatim.
type ChargingSession struct {
	ID        string
	EVSEID    string
	Status    string
	StartedAt time.Time
	Raw       json.RawMessage
}

// SessionStatus describes the gateway's cached authentication state without
// exposing the token itself.
type SessionStatus struct {
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	ClientID      string    `json:"client_id,omitempty"`
}
