package effects

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/pkg/errors"
)

// SubmitReview creates or edits the review of this order, depending on what
// the review index holds. The dialog closes only after the index shows the
// new review, or after the settle budget runs out.
func (g *Gate) SubmitReview(ctx context.Context, in models.ReviewInput) (models.ReviewRecord, error) {
	gen, err := g.begin(DialogReview)
	if err != nil {
		return models.ReviewRecord{}, err
	}
	if err := in.Validate(); err != nil {
		return models.ReviewRecord{}, g.reject(DialogReview, gen, err)
	}
	g.mu.Lock()
	completed := g.status == models.OrderStatusCompleted
	g.mu.Unlock()
	if !completed {
		return models.ReviewRecord{}, g.reject(DialogReview, gen,
			errs.ValidationFailed("", "You can review this order once it has been delivered"))
	}

	mctx, cancel := g.mutationContext(ctx)
	defer cancel()

	// create-vs-edit is decided on a definite index value only
	st, err := g.index.Load(mctx)
	if err != nil {
		return models.ReviewRecord{}, g.failReview(gen, err)
	}

	var rec models.ReviewRecord
	if _, exists := st.Find(g.orderID); exists {
		rec, err = g.mutator.UpdateReview(mctx, g.orderID, in)
	} else {
		rec, err = g.mutator.CreateReview(mctx, g.orderID, in)
	}
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			// created elsewhere; refresh so the next attempt edits it
			if _, rerr := g.index.Refetch(mctx); rerr != nil {
				slog.Warn("refetch reviews after conflict", "order_id", g.orderID, "error", rerr.Error())
			}
		}
		return models.ReviewRecord{}, g.failReview(gen, err)
	}

	if !g.settle(mctx, in) {
		slog.Warn("review index did not converge", "order_id", g.orderID, "attempts", g.cfg.SettleAttempts)
	}

	g.mu.Lock()
	fresh := g.endLocked(DialogReview, gen, nil)
	g.mu.Unlock()
	if fresh {
		g.emit(g.notice(models.NoticeReviewSaved, models.NoticeSuccess, "Thanks! Your review has been saved."))
	}
	return rec, nil
}

func (g *Gate) failReview(gen uint64, err error) error {
	g.mu.Lock()
	fresh := g.endLocked(DialogReview, gen, err)
	g.evaluatePromptLocked()
	g.mu.Unlock()
	if fresh {
		msg := errs.UserMessage(err)
		if errors.Is(err, errs.ErrConflict) {
			msg = "You have already reviewed this order. You can edit your review instead."
		}
		g.emit(g.notice(models.NoticeReviewFailed, models.NoticeError, msg))
	}
	return err
}

// settle refetches the review index until it holds a record matching in.
func (g *Gate) settle(ctx context.Context, in models.ReviewInput) bool {
	for i := 0; i < g.cfg.SettleAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(g.cfg.SettleInterval):
			}
		}
		st, err := g.index.Refetch(ctx)
		if err != nil {
			slog.Warn("refetch reviews", "order_id", g.orderID, "attempt", i+1, "error", err.Error())
			continue
		}
		if rec, ok := st.Find(g.orderID); ok && in.Matches(rec) {
			return true
		}
	}
	return false
}
