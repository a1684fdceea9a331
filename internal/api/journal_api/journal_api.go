// Package journal_api serves the order tracking journal over HTTP.
package journal_api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/BearBump/OrderTrack/internal/api/respond"
	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/BearBump/OrderTrack/internal/services/journal"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc *journal.Service
}

func New(svc *journal.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/orders/state", h.GetStates)
	r.Get("/orders/{id}/events", h.ListEvents)
}

type statesResponse struct {
	States []*models.OrderTrackingState `json:"states"`
}

// GetStates handles GET /orders/state?ids=a,b,c.
func (h *Handler) GetStates(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, raw := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	states, err := h.svc.GetStates(r.Context(), ids)
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, statesResponse{States: states})
}

type eventsResponse struct {
	Events []*models.JournalEvent `json:"events"`
}

// ListEvents handles GET /orders/{id}/events?limit=&offset=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		respond.Err(w, err)
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		respond.Err(w, err)
		return
	}
	evs, err := h.svc.ListEvents(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, eventsResponse{Events: evs})
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
