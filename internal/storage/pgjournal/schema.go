package pgjournal

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS order_tracking_events (
  id BIGSERIAL PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL,
  session_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  from_status TEXT NOT NULL DEFAULT '',
  kind TEXT NOT NULL DEFAULT '',
  warning_count INT NOT NULL DEFAULT 0,
  notice_kind TEXT NULL,
  message TEXT NULL,
  error TEXT NULL,
  event_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_tracking_events_order_id_event_at ON order_tracking_events(order_id, event_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS order_tracking_state (
  order_id TEXT PRIMARY KEY,
  last_status TEXT NOT NULL DEFAULT '',
  status_at TIMESTAMPTZ NULL,
  warning_count INT NOT NULL DEFAULT 0,
  prompted_review BOOLEAN NOT NULL DEFAULT FALSE,
  cancelled BOOLEAN NOT NULL DEFAULT FALSE,
  last_error TEXT NULL,
  sessions INT NOT NULL DEFAULT 0,
  last_event_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
