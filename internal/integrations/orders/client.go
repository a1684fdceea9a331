package orders

import (
	"context"

	"github.com/BearBump/OrderTrack/internal/models"
)

// Source reads one order snapshot. Implementations never cache and return
// errs-classified errors (Transient, NotFound, Unauthorized).
type Source interface {
	FetchOrder(ctx context.Context, orderID string) (models.OrderSnapshot, error)
}

type Mutator interface {
	CreateReview(ctx context.Context, orderID string, in models.ReviewInput) (models.ReviewRecord, error)
	UpdateReview(ctx context.Context, orderID string, in models.ReviewInput) (models.ReviewRecord, error)
	CancelOrder(ctx context.Context, req models.CancellationRequest) error
	ReportSafety(ctx context.Context, r models.SafetyReport) error
	Escalate(ctx context.Context, e models.EmergencyEscalation) error
}

type ReviewLister interface {
	ListReviews(ctx context.Context, userID string) ([]models.ReviewRecord, error)
}

type Client interface {
	Source
	Mutator
	ReviewLister
}
