package models

import "time"

// JournalEvent is one stored tracking-session event.
type JournalEvent struct {
	ID           uint64    `json:"id"`
	EventID      string    `json:"eventId"`
	Type         string    `json:"type"`
	SessionID    string    `json:"sessionId"`
	OrderID      string    `json:"orderId"`
	UserID       string    `json:"userId,omitempty"`
	Status       string    `json:"status,omitempty"`
	FromStatus   string    `json:"fromStatus,omitempty"`
	Kind         string    `json:"kind,omitempty"`
	WarningCount int       `json:"warningCount"`
	NoticeKind   *string   `json:"noticeKind,omitempty"`
	Message      *string   `json:"message,omitempty"`
	Error        *string   `json:"error,omitempty"`
	At           time.Time `json:"at"`
	CreatedAt    time.Time `json:"createdAt"`
}

// OrderTrackingState is the latest known tracking picture of one order,
// folded from its journal.
type OrderTrackingState struct {
	OrderID        string     `json:"orderId"`
	LastStatus     string     `json:"lastStatus"`
	StatusAt       *time.Time `json:"statusAt,omitempty"`
	WarningCount   int        `json:"warningCount"`
	PromptedReview bool       `json:"promptedReview"`
	Cancelled      bool       `json:"cancelled"`
	LastError      *string    `json:"lastError,omitempty"`
	Sessions       int        `json:"sessions"`
	LastEventAt    time.Time  `json:"lastEventAt"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}
