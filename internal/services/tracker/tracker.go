package tracker

import (
	"github.com/BearBump/OrderTrack/internal/models"
)

// MaxWarnings is where the warning count saturates.
const MaxWarnings = 3

type Kind string

const (
	KindInitial   Kind = "initial"
	KindAdvance   Kind = "advance"
	KindSteady    Kind = "steady"
	KindLateral   Kind = "lateral"
	KindRegress   Kind = "regress"
	KindCancelled Kind = "cancelled"
)

// Classify compares two successive statuses. An empty prev means nothing was
// observed yet. Only lateral changes carry a warning.
func Classify(prev, next models.OrderStatus) (Kind, int) {
	switch {
	case prev == "":
		return KindInitial, 0
	case next == prev:
		return KindSteady, 0
	case next == models.OrderStatusCancelled:
		return KindCancelled, 0
	case next.Progress() > prev.Progress():
		return KindAdvance, 0
	case next.IsMoving():
		// enroute/arrived re-announced without moving forward
		return KindLateral, 1
	default:
		return KindRegress, 0
	}
}

type Transition struct {
	From         models.OrderStatus `json:"from,omitempty"`
	To           models.OrderStatus `json:"to"`
	Kind         Kind               `json:"kind"`
	WarningCount int                `json:"warningCount"`
	// Notify is set while the count is below saturation.
	Notify bool `json:"notify"`
	// Escalate is set once, on the event that saturates the count.
	Escalate bool `json:"escalate"`
}

// Tracker keeps the last observed status and the warning counters of one
// session. It is not safe for concurrent use; the owning session serializes
// calls.
type Tracker struct {
	last     models.OrderStatus
	warnings int
	laterals int
}

func New() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Observe(next models.OrderStatus) Transition {
	kind, delta := Classify(t.last, next)
	tr := Transition{From: t.last, To: next, Kind: kind}

	if delta > 0 {
		t.laterals++
		if t.warnings < MaxWarnings {
			t.warnings += delta
			if t.warnings > MaxWarnings {
				t.warnings = MaxWarnings
			}
			tr.Notify = true
			tr.Escalate = t.warnings == MaxWarnings
		}
	}

	t.last = next
	tr.WarningCount = t.warnings
	return tr
}

func (t *Tracker) Last() models.OrderStatus {
	return t.last
}

func (t *Tracker) WarningCount() int {
	return t.warnings
}

// LateralCount counts every lateral event, including the ones past saturation.
func (t *Tracker) LateralCount() int {
	return t.laterals
}
