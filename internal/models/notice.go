package models

import (
	"time"

	"github.com/google/uuid"
)

type NoticeLevel string

// Critical notices are alerts: kept apart from toasts until acknowledged.
const (
	NoticeInfo     NoticeLevel = "info"
	NoticeSuccess  NoticeLevel = "success"
	NoticeWarning  NoticeLevel = "warning"
	NoticeError    NoticeLevel = "error"
	NoticeCritical NoticeLevel = "critical"
)

type NoticeKind string

const (
	NoticeStatusWarning     NoticeKind = "status_warning"
	NoticeWarningEscalation NoticeKind = "warning_escalation"
	NoticeReviewPrompt      NoticeKind = "review_prompt"
	NoticeReviewSaved       NoticeKind = "review_saved"
	NoticeReviewFailed      NoticeKind = "review_failed"
	NoticeCancelSucceeded   NoticeKind = "cancel_succeeded"
	NoticeCancelFailed      NoticeKind = "cancel_failed"
	NoticeRedirect          NoticeKind = "redirect"
	NoticeSafetyReportSent  NoticeKind = "safety_report_sent"
	NoticeSafetyReportFail  NoticeKind = "safety_report_failed"
	NoticeEmergencySent     NoticeKind = "emergency_sent"
	NoticeEmergencyFailed   NoticeKind = "emergency_failed"
	NoticeOrderUnavailable  NoticeKind = "order_unavailable"
)

type Notice struct {
	ID      string      `json:"id"`
	OrderID string      `json:"orderId"`
	Kind    NoticeKind  `json:"kind"`
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

func (n Notice) IsAlert() bool {
	return n.Level == NoticeCritical
}

func NewNotice(orderID string, kind NoticeKind, level NoticeLevel, message string) Notice {
	return Notice{
		ID:      uuid.NewString(),
		OrderID: orderID,
		Kind:    kind,
		Level:   level,
		Message: message,
		At:      time.Now().UTC(),
	}
}
