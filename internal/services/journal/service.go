package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/OrderTrack/internal/broker/messages"
	"github.com/BearBump/OrderTrack/internal/cache"
	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/BearBump/OrderTrack/internal/storage/pgjournal"
)

const maxStateIDs = 1000

type Repository interface {
	ApplyEvent(ctx context.Context, w pgjournal.EventWrite) (bool, error)
	GetStates(ctx context.Context, orderIDs []string) ([]*models.OrderTrackingState, error)
	ListEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.JournalEvent, error)
}

// Service folds tracking events into the per-order journal. The cache holds
// the current state only; the database stays the source of truth.
type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, currentTTL: currentTTL}
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.currentTTL > 0
}

// ApplyEvent stores ev once. Redelivered events are accepted silently.
func (s *Service) ApplyEvent(ctx context.Context, ev messages.OrderTrackingEvent) error {
	if ev.EventID == "" {
		return errs.ValidationFailed("event_id", "event_id is required")
	}
	if ev.OrderID == "" {
		return errs.ValidationFailed("order_id", "order_id is required")
	}
	if !knownType(ev.Type) {
		return errs.ValidationFailed("type", fmt.Sprintf("unknown event type %q", ev.Type))
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	applied, err := s.repo.ApplyEvent(ctx, pgjournal.EventWrite{Event: toJournalEvent(ev), Delta: deltaFor(ev)})
	if err != nil {
		return err
	}
	if !applied || !s.cacheEnabled() {
		return nil
	}

	states, err := s.repo.GetStates(ctx, []string{ev.OrderID})
	if err == nil && len(states) == 1 {
		b, _ := json.Marshal(states[0])
		_ = s.cache.Set(ctx, currentKey(ev.OrderID), b, s.currentTTL)
	}
	return nil
}

// GetStates answers from the cache where it can and returns states in the
// order of orderIDs. Unknown orders are left out.
func (s *Service) GetStates(ctx context.Context, orderIDs []string) ([]*models.OrderTrackingState, error) {
	if len(orderIDs) == 0 {
		return []*models.OrderTrackingState{}, nil
	}
	if len(orderIDs) > maxStateIDs {
		return nil, errs.ValidationFailed("ids", fmt.Sprintf("too many ids (max %d)", maxStateIDs))
	}

	miss := make([]string, 0, len(orderIDs))
	got := make(map[string]*models.OrderTrackingState, len(orderIDs))

	if s.cacheEnabled() {
		for _, id := range orderIDs {
			b, ok, err := s.cache.Get(ctx, currentKey(id))
			if err != nil || !ok {
				miss = append(miss, id)
				continue
			}
			var st models.OrderTrackingState
			if json.Unmarshal(b, &st) != nil {
				miss = append(miss, id)
				continue
			}
			got[id] = &st
		}
	} else {
		miss = orderIDs
	}

	if len(miss) > 0 {
		fromDB, err := s.repo.GetStates(ctx, miss)
		if err != nil {
			return nil, err
		}
		for _, st := range fromDB {
			if s.cacheEnabled() {
				b, _ := json.Marshal(st)
				_ = s.cache.Set(ctx, currentKey(st.OrderID), b, s.currentTTL)
			}
			got[st.OrderID] = st
		}
	}

	out := make([]*models.OrderTrackingState, 0, len(orderIDs))
	for _, id := range orderIDs {
		if st, ok := got[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Service) ListEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.JournalEvent, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, errs.ValidationFailed("orderId", "orderId is required")
	}
	return s.repo.ListEvents(ctx, orderID, limit, offset)
}

func knownType(t messages.EventType) bool {
	switch t {
	case messages.EventSessionStarted, messages.EventTransition, messages.EventNotice,
		messages.EventTerminalError, messages.EventSessionClosed:
		return true
	}
	return false
}

func toJournalEvent(ev messages.OrderTrackingEvent) models.JournalEvent {
	e := models.JournalEvent{
		EventID:      ev.EventID,
		Type:         string(ev.Type),
		SessionID:    ev.SessionID,
		OrderID:      ev.OrderID,
		UserID:       ev.UserID,
		Status:       ev.Status,
		FromStatus:   ev.FromStatus,
		Kind:         ev.Kind,
		WarningCount: ev.WarningCount,
		Error:        ev.Error,
		At:           ev.At,
	}
	if ev.Notice != nil {
		kind, msg := ev.Notice.Kind, ev.Notice.Message
		e.NoticeKind = &kind
		e.Message = &msg
	}
	return e
}

func deltaFor(ev messages.OrderTrackingEvent) pgjournal.StateDelta {
	d := pgjournal.StateDelta{WarningCount: ev.WarningCount}
	switch ev.Type {
	case messages.EventSessionStarted:
		d.SessionsDelta = 1
	case messages.EventSessionClosed:
		d.SessionsDelta = -1
	case messages.EventTransition:
		d.Status = ev.Status
		d.Cancelled = ev.Status == string(models.OrderStatusCancelled)
	case messages.EventTerminalError:
		d.LastError = ev.Error
	case messages.EventNotice:
		if ev.Notice == nil {
			break
		}
		switch models.NoticeKind(ev.Notice.Kind) {
		case models.NoticeReviewPrompt:
			d.PromptedReview = true
		case models.NoticeCancelSucceeded, models.NoticeRedirect:
			d.Cancelled = true
		}
	}
	return d
}

func currentKey(orderID string) string {
	return fmt.Sprintf("order:%s:tracking", orderID)
}
