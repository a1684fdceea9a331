// Package sessions_api exposes tracking sessions to the order view over HTTP.
package sessions_api

import (
	"net/http"

	"github.com/BearBump/OrderTrack/internal/api/respond"
	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/BearBump/OrderTrack/internal/services/effects"
	"github.com/BearBump/OrderTrack/internal/services/sessions"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	manager *sessions.Manager
}

func New(m *sessions.Manager) *Handler {
	return &Handler{manager: m}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.Mount)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Unmount)
			r.Post("/refresh", h.Refresh)
			r.Put("/polling", h.SetPolling)
			r.Post("/dialogs/{kind}", h.OpenDialog)
			r.Delete("/dialogs/{kind}", h.CloseDialog)
			r.Post("/review", h.SubmitReview)
			r.Post("/cancel", h.SubmitCancel)
			r.Post("/safety-report", h.SubmitSafetyReport)
			r.Post("/emergency/arm", h.ArmEmergency)
			r.Post("/emergency/confirm", h.ConfirmEmergency)
			r.Delete("/emergency", h.DisarmEmergency)
			r.Post("/alerts/{alertId}/ack", h.AckAlert)
		})
	})
}

type mountRequest struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
}

// Mount handles POST /sessions.
func (h *Handler) Mount(w http.ResponseWriter, r *http.Request) {
	var req mountRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Err(w, err)
		return
	}
	s, err := h.manager.Mount(req.OrderID, req.UserID)
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, s.View())
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	s, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		respond.Err(w, err)
		return nil, false
	}
	return s, true
}

// Get handles GET /sessions/{id}. Polling it also keeps the session alive.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, s.View())
}

func (h *Handler) Unmount(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Unmount(chi.URLParam(r, "id")); err != nil {
		respond.Err(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Refresh()
	respond.JSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
}

type pollingRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) SetPolling(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req pollingRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Err(w, err)
		return
	}
	if req.Enabled == nil {
		respond.Err(w, errs.ValidationFailed("enabled", "enabled is required"))
		return
	}
	s.SetPolling(*req.Enabled)
	respond.JSON(w, http.StatusOK, s.View().Polling)
}

func dialogKind(r *http.Request) (effects.DialogKind, error) {
	raw := chi.URLParam(r, "kind")
	kind, ok := effects.ParseDialogKind(raw)
	if !ok {
		return "", errs.ValidationFailed("kind", "unknown dialog "+raw)
	}
	return kind, nil
}

func (h *Handler) OpenDialog(w http.ResponseWriter, r *http.Request) {
	h.dialog(w, r, (*effects.Gate).OpenDialog)
}

func (h *Handler) CloseDialog(w http.ResponseWriter, r *http.Request) {
	h.dialog(w, r, (*effects.Gate).CloseDialog)
}

func (h *Handler) dialog(w http.ResponseWriter, r *http.Request, fn func(*effects.Gate, effects.DialogKind) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	kind, err := dialogKind(r)
	if err != nil {
		respond.Err(w, err)
		return
	}
	if err := fn(s.Gate(), kind); err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, s.Gate().State())
}

// SubmitReview handles POST /sessions/{id}/review. It creates or edits the
// review depending on what the review index holds.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in models.ReviewInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Err(w, err)
		return
	}
	rec, err := s.Gate().SubmitReview(r.Context(), in)
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, rec)
}

type cancelRequest struct {
	Reason    models.CancelReason `json:"reason"`
	OtherText string              `json:"otherText"`
}

func (h *Handler) SubmitCancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Err(w, err)
		return
	}
	if err := s.Gate().SubmitCancel(r.Context(), req.Reason, req.OtherText); err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, s.Gate().State())
}

type safetyRequest struct {
	Type        models.SafetyReportType `json:"type"`
	Description string                  `json:"description"`
}

func (h *Handler) SubmitSafetyReport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req safetyRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Err(w, err)
		return
	}
	if err := s.Gate().SubmitSafetyReport(r.Context(), req.Type, req.Description); err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, s.Gate().State())
}

func (h *Handler) ArmEmergency(w http.ResponseWriter, r *http.Request) {
	h.gateCall(w, r, (*effects.Gate).ArmEmergency)
}

func (h *Handler) DisarmEmergency(w http.ResponseWriter, r *http.Request) {
	h.gateCall(w, r, (*effects.Gate).DisarmEmergency)
}

func (h *Handler) gateCall(w http.ResponseWriter, r *http.Request, fn func(*effects.Gate) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := fn(s.Gate()); err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, s.Gate().State())
}

func (h *Handler) ConfirmEmergency(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Gate().ConfirmEmergency(r.Context()); err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, s.Gate().State())
}

func (h *Handler) AckAlert(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "alertId")
	if !s.AckAlert(id) {
		respond.Err(w, errs.NotFound("alert", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
