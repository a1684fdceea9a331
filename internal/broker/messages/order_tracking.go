package messages

import (
	"time"

	"github.com/google/uuid"
)

const TopicOrderTracking = "order.tracking"

type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventTransition     EventType = "transition"
	EventNotice         EventType = "notice"
	EventTerminalError  EventType = "terminal_error"
	EventSessionClosed  EventType = "session_closed"
)

// OrderTrackingEvent is one thing a tracking session did. Events are keyed by
// order id on the topic.
type OrderTrackingEvent struct {
	EventID   string    `json:"event_id"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id,omitempty"`
	At        time.Time `json:"at"`

	Status       string `json:"status,omitempty"`
	FromStatus   string `json:"from_status,omitempty"`
	Kind         string `json:"kind,omitempty"`
	WarningCount int    `json:"warning_count"`

	Notice *Notice `json:"notice,omitempty"`
	Error  *string `json:"error,omitempty"`
}

type Notice struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func NewOrderTrackingEvent(typ EventType, sessionID, orderID, userID string) OrderTrackingEvent {
	return OrderTrackingEvent{
		EventID:   uuid.NewString(),
		Type:      typ,
		SessionID: sessionID,
		OrderID:   orderID,
		UserID:    userID,
		At:        time.Now().UTC(),
	}
}
