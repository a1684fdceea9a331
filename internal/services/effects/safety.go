package effects

import (
	"context"
	"log/slog"

	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
)

// SubmitSafetyReport works in any order status and never touches polling.
func (g *Gate) SubmitSafetyReport(ctx context.Context, typ models.SafetyReportType, description string) error {
	gen, err := g.begin(DialogSafety)
	if err != nil {
		return err
	}
	r := models.SafetyReport{OrderID: g.orderID, Type: typ, Description: description}
	if err := r.Validate(); err != nil {
		return g.reject(DialogSafety, gen, err)
	}

	mctx, cancel := g.mutationContext(ctx)
	defer cancel()

	err = g.mutator.ReportSafety(mctx, r)
	if err != nil {
		slog.Warn("safety report", "order_id", g.orderID, "type", string(typ), "error", err.Error())
	}

	g.mu.Lock()
	fresh := g.endLocked(DialogSafety, gen, err)
	g.mu.Unlock()
	if !fresh {
		return err
	}
	if err != nil {
		g.emit(g.notice(models.NoticeSafetyReportFail, models.NoticeError, errs.UserMessage(err)))
		return err
	}
	g.emit(g.notice(models.NoticeSafetyReportSent, models.NoticeSuccess, "Thank you. Our safety team will look into it."))
	return nil
}

// ArmEmergency opens the emergency confirmation.
func (g *Gate) ArmEmergency() error {
	return g.OpenDialog(DialogEmergency)
}

func (g *Gate) DisarmEmergency() error {
	return g.CloseDialog(DialogEmergency)
}

// ConfirmEmergency sends the escalation. It must be armed first and is
// available in every order status. A failure is always raised as a critical
// alert, even when the dialog was dismissed meanwhile, and the request stays
// armed for another try.
func (g *Gate) ConfirmEmergency(ctx context.Context) error {
	g.mu.Lock()
	armed := g.emergencyArmed
	g.mu.Unlock()
	if !armed {
		return ErrNotArmed
	}
	gen, err := g.begin(DialogEmergency)
	if err != nil {
		return err
	}

	mctx, cancel := g.mutationContext(ctx)
	defer cancel()

	err = g.mutator.Escalate(mctx, models.EmergencyEscalation{OrderID: g.orderID})

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		if err != nil {
			slog.Error("emergency escalation failed after session closed", "order_id", g.orderID, "error", err.Error())
		}
		return err
	}
	g.endLocked(DialogEmergency, gen, err)
	if err == nil {
		g.emergencyArmed = false
	} else {
		g.emergencyArmed = true
		d := g.dialogs[DialogEmergency]
		d.show()
		d.err = errs.UserMessage(err)
	}
	g.mu.Unlock()

	if err != nil {
		slog.Error("emergency escalation failed", "order_id", g.orderID, "error", err.Error())
		g.emit(g.notice(models.NoticeEmergencyFailed, models.NoticeCritical,
			"We could not reach emergency support. Please try again or call local emergency services."))
		return err
	}
	slog.Info("emergency escalated", "order_id", g.orderID)
	g.emit(g.notice(models.NoticeEmergencySent, models.NoticeSuccess, "Emergency support has been notified."))
	return nil
}
