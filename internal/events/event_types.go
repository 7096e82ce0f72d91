package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionExpired EventType = "session.expired"
	EventSessionRevoked EventType = "session.revoked"
	EventStoreBypassed  EventType = "session.store_bypassed"
	EventSessionsSwept  EventType = "sessions.swept"
)

// Event represents a session lifecycle event. Raw bearer tokens are never included.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    int64       `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// SessionExpiredPayload payload.
type SessionExpiredPayload struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// StoreBypassedPayload payload.
type StoreBypassedPayload struct {
	Reason string `json:"reason"`
}

// SessionsSweptPayload payload.
type SessionsSweptPayload struct {
	Deactivated int64 `json:"deactivated"`
	Deleted     int64 `json:"deleted"`
	Failed      bool  `json:"failed"`
}
