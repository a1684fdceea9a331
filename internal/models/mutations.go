package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BearBump/OrderTrack/internal/pkg/errs"
)

const (
	MinReviewRating      = 1
	MaxReviewRating      = 5
	MaxReviewCommentLen  = 1000
	MaxSafetyDescription = 2000
)

type ReviewRecord struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (in ReviewInput) Validate() error {
	if in.Rating < MinReviewRating || in.Rating > MaxReviewRating {
		return errs.ValidationFailed("rating", "Please choose a rating from 1 to 5")
	}
	if utf8.RuneCountInString(in.Comment) > MaxReviewCommentLen {
		return errs.ValidationFailed("comment", "Comment must be at most 1000 characters")
	}
	return nil
}

// Matches reports whether rec already reflects this input.
func (in ReviewInput) Matches(rec ReviewRecord) bool {
	return rec.Rating == in.Rating && rec.Comment == in.Comment
}

type CancelReason string

const (
	CancelReasonChangedMind  CancelReason = "changed_mind"
	CancelReasonMistake      CancelReason = "ordered_by_mistake"
	CancelReasonTooSlow      CancelReason = "too_slow"
	CancelReasonWrongAddress CancelReason = "wrong_address"
	CancelReasonOther        CancelReason = "Other"
)

var CancelReasons = []CancelReason{
	CancelReasonChangedMind,
	CancelReasonMistake,
	CancelReasonTooSlow,
	CancelReasonWrongAddress,
	CancelReasonOther,
}

type CancellationRequest struct {
	OrderID   string       `json:"orderId"`
	Reason    CancelReason `json:"reason"`
	OtherText string       `json:"otherText,omitempty"`
}

// Validate runs before any network call: an empty reason, a reason outside
// the closed set, or "Other" without text is rejected.
func (r CancellationRequest) Validate() error {
	if r.Reason == "" {
		return errs.ValidationFailed("reason", "Please choose a reason")
	}
	known := false
	for _, c := range CancelReasons {
		if c == r.Reason {
			known = true
			break
		}
	}
	if !known {
		return errs.ValidationFailed("reason", "Unknown cancellation reason")
	}
	if r.Reason == CancelReasonOther && strings.TrimSpace(r.OtherText) == "" {
		return errs.ValidationFailed("otherText", "Please describe the reason")
	}
	return nil
}

// ReasonText is the value sent to the backend.
func (r CancellationRequest) ReasonText() string {
	if r.Reason == CancelReasonOther {
		return strings.TrimSpace(r.OtherText)
	}
	return string(r.Reason)
}

type SafetyReportType string

const (
	SafetyDriverBehavior SafetyReportType = "driver_behavior"
	SafetyUnsafeDriving  SafetyReportType = "unsafe_driving"
	SafetyFoodTampering  SafetyReportType = "food_tampering"
	SafetyHarassment     SafetyReportType = "harassment"
	SafetyAccident       SafetyReportType = "accident"
	SafetyOther          SafetyReportType = "other"
)

var SafetyReportTypes = []SafetyReportType{
	SafetyDriverBehavior,
	SafetyUnsafeDriving,
	SafetyFoodTampering,
	SafetyHarassment,
	SafetyAccident,
	SafetyOther,
}

type SafetyReport struct {
	OrderID     string           `json:"orderId"`
	Type        SafetyReportType `json:"type"`
	Description string           `json:"description"`
}

func (r SafetyReport) Validate() error {
	known := false
	for _, t := range SafetyReportTypes {
		if t == r.Type {
			known = true
			break
		}
	}
	if !known {
		return errs.ValidationFailed("type", "Please choose what happened")
	}
	desc := strings.TrimSpace(r.Description)
	if desc == "" {
		return errs.ValidationFailed("description", "Please describe what happened")
	}
	if utf8.RuneCountInString(desc) > MaxSafetyDescription {
		return errs.ValidationFailed("description", "Description is too long")
	}
	return nil
}

// EmergencyEscalation carries nothing but the order id.
type EmergencyEscalation struct {
	OrderID string `json:"orderId"`
}
