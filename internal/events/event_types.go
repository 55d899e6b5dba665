package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkbook/session-core/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionEstablished EventType = "session_established"
	EventSessionEnded       EventType = "session_ended"
	EventTokenReplaced      EventType = "token_replaced"
)

// Event is a session lifecycle notification emitted by the controller.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Role      domain.Role `json:"role,omitempty"`
	TokenFP   string      `json:"token_fp,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// SessionEndedPayload explains why a session ended. Forced is false for
// user-initiated logouts.
type SessionEndedPayload struct {
	Reason string `json:"reason"`
	Forced bool   `json:"forced"`
}

// TokenReplacedPayload describes how a token was swapped in place.
type TokenReplacedPayload struct {
	How string `json:"how"`
}

// New stamps an event with an id and time.
func New(eventType EventType, userID string, role domain.Role, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Role:      role,
		Timestamp: at,
		Payload:   payload,
	}
}
