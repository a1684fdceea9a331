package effects

import (
	"context"
	"log/slog"

	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
)

// SubmitCancel validates locally, then asks the backend to cancel. On success
// polling stops and the redirect fires; the status shown is not touched, the
// next view simply leaves the tracking page. On failure the dialog stays open
// with the error and can be submitted again.
func (g *Gate) SubmitCancel(ctx context.Context, reason models.CancelReason, otherText string) error {
	gen, err := g.begin(DialogCancel)
	if err != nil {
		return err
	}
	req := models.CancellationRequest{OrderID: g.orderID, Reason: reason, OtherText: otherText}
	if err := req.Validate(); err != nil {
		return g.reject(DialogCancel, gen, err)
	}
	g.mu.Lock()
	terminal := g.status.IsTerminal()
	g.mu.Unlock()
	if terminal {
		return g.reject(DialogCancel, gen, errs.ValidationFailed("", "This order can no longer be cancelled"))
	}

	mctx, cancel := g.mutationContext(ctx)
	defer cancel()

	if err := g.mutator.CancelOrder(mctx, req); err != nil {
		slog.Warn("cancel order", "order_id", g.orderID, "error", err.Error())
		g.mu.Lock()
		fresh := g.endLocked(DialogCancel, gen, err)
		g.mu.Unlock()
		if fresh {
			g.emit(g.notice(models.NoticeCancelFailed, models.NoticeError, errs.UserMessage(err)))
		}
		return err
	}

	slog.Info("order cancelled", "order_id", g.orderID, "reason", string(req.Reason))

	var out []models.Notice
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	if g.endLocked(DialogCancel, gen, nil) {
		out = append(out, g.notice(models.NoticeCancelSucceeded, models.NoticeSuccess, "Your order has been cancelled."))
	}
	// the order is cancelled whether or not the dialog is still shown
	if n, ok := g.redirectLocked(); ok {
		out = append(out, n)
	}
	g.mu.Unlock()

	g.hooks.StopPolling()
	g.emit(out...)
	return nil
}
