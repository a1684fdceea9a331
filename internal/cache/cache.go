package cache

import (
	"context"
	"time"
)

// BytesCache is the key/value store behind the review index and the journal
// state cache. Get reports a miss with ok=false and a nil error.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
