package pgjournal

import (
	"context"

	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) GetStates(ctx context.Context, orderIDs []string) ([]*models.OrderTrackingState, error) {
	if len(orderIDs) == 0 {
		return []*models.OrderTrackingState{}, nil
	}

	rows, err := s.db.Query(ctx, `
SELECT
  order_id, last_status, status_at, warning_count,
  prompted_review, cancelled, last_error, sessions,
  last_event_at, updated_at
FROM order_tracking_state
WHERE order_id = ANY($1)
`, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "select states")
	}
	defer rows.Close()

	out := make([]*models.OrderTrackingState, 0, len(orderIDs))
	for rows.Next() {
		var st models.OrderTrackingState
		if err := rows.Scan(
			&st.OrderID, &st.LastStatus, &st.StatusAt, &st.WarningCount,
			&st.PromptedReview, &st.Cancelled, &st.LastError, &st.Sessions,
			&st.LastEventAt, &st.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan state")
		}
		out = append(out, &st)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
