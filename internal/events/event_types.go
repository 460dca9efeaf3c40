package events

import (
	"time"

	"github.com/spec-kit/adoption-client/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionCleared   EventType = "session_cleared"
	EventSessionRefreshed EventType = "session_refreshed"
)

// Event represents a session lifecycle event emitted by the manager or the
// refresh coordinator.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Role      domain.Role `json:"role"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SessionRefreshedPayload payload.
type SessionRefreshedPayload struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Source      string    `json:"source"`
}
