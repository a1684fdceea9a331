package pgjournal

import (
	"context"
	"time"

	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// StateDelta is what one event contributes to the per-order state. Flags only
// ever switch on; the warning count only grows.
type StateDelta struct {
	Status         string
	WarningCount   int
	PromptedReview bool
	Cancelled      bool
	LastError      *string
	SessionsDelta  int
}

type EventWrite struct {
	Event models.JournalEvent
	Delta StateDelta
}

func (s *Storage) ListEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.JournalEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, event_id, type, session_id, order_id, user_id,
  status, from_status, kind, warning_count,
  notice_kind, message, error, event_at, created_at
FROM order_tracking_events
WHERE order_id = $1
ORDER BY event_at DESC, id DESC
LIMIT $2 OFFSET $3
`, orderID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	out := make([]*models.JournalEvent, 0)
	for rows.Next() {
		var e models.JournalEvent
		if err := rows.Scan(
			&e.ID, &e.EventID, &e.Type, &e.SessionID, &e.OrderID, &e.UserID,
			&e.Status, &e.FromStatus, &e.Kind, &e.WarningCount,
			&e.NoticeKind, &e.Message, &e.Error, &e.At, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ApplyEvent stores the event and folds its delta into order_tracking_state in
// one transaction. A redelivered event (same event_id) changes nothing and
// reports applied=false.
func (s *Storage) ApplyEvent(ctx context.Context, w EventWrite) (bool, error) {
	applied := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		inserted, err := insertEvent(ctx, tx, w.Event)
		if err != nil || !inserted {
			return err
		}
		applied = true
		return upsertState(ctx, tx, w.Event, w.Delta)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, e models.JournalEvent) (bool, error) {
	tag, err := tx.Exec(ctx, `
INSERT INTO order_tracking_events (
  event_id, type, session_id, order_id, user_id,
  status, from_status, kind, warning_count,
  notice_kind, message, error, event_at, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13, now())
ON CONFLICT (event_id) DO NOTHING
`, e.EventID, e.Type, e.SessionID, e.OrderID, e.UserID,
		e.Status, e.FromStatus, e.Kind, e.WarningCount,
		e.NoticeKind, e.Message, e.Error, e.At.UTC())
	if err != nil {
		return false, errors.Wrap(err, "insert event")
	}
	return tag.RowsAffected() > 0, nil
}

// upsertState never moves last_status back to an older event's status.
func upsertState(ctx context.Context, tx pgx.Tx, e models.JournalEvent, d StateDelta) error {
	at := e.At.UTC()
	var statusAt *time.Time
	if d.Status != "" {
		statusAt = &at
	}
	_, err := tx.Exec(ctx, `
INSERT INTO order_tracking_state (
  order_id, last_status, status_at, warning_count, prompted_review, cancelled,
  last_error, sessions, last_event_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7, GREATEST($8::int, 0), $9, now())
ON CONFLICT (order_id) DO UPDATE SET
  last_status = CASE
    WHEN EXCLUDED.status_at IS NOT NULL
     AND (order_tracking_state.status_at IS NULL OR EXCLUDED.status_at >= order_tracking_state.status_at)
    THEN EXCLUDED.last_status
    ELSE order_tracking_state.last_status
  END,
  status_at = CASE
    WHEN EXCLUDED.status_at IS NOT NULL
     AND (order_tracking_state.status_at IS NULL OR EXCLUDED.status_at >= order_tracking_state.status_at)
    THEN EXCLUDED.status_at
    ELSE order_tracking_state.status_at
  END,
  warning_count = GREATEST(order_tracking_state.warning_count, EXCLUDED.warning_count),
  prompted_review = order_tracking_state.prompted_review OR EXCLUDED.prompted_review,
  cancelled = order_tracking_state.cancelled OR EXCLUDED.cancelled,
  last_error = COALESCE(EXCLUDED.last_error, order_tracking_state.last_error),
  sessions = GREATEST(order_tracking_state.sessions + $8::int, 0),
  last_event_at = GREATEST(order_tracking_state.last_event_at, EXCLUDED.last_event_at),
  updated_at = now()
`, e.OrderID, d.Status, statusAt, d.WarningCount, d.PromptedReview, d.Cancelled,
		d.LastError, d.SessionsDelta, at)
	return errors.Wrap(err, "upsert state")
}
