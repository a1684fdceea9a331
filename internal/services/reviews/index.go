package reviews

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/OrderTrack/internal/cache"
	"github.com/BearBump/OrderTrack/internal/integrations/orders"
	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/pkg/errors"
)

const DefaultTTL = 5 * time.Minute

// State is what subscribers observe. Records are only meaningful once Loaded;
// a loading index must never be read as "no review".
type State struct {
	Loading  bool                  `json:"loading"`
	Loaded   bool                  `json:"loaded"`
	Records  []models.ReviewRecord `json:"records"`
	LoadedAt time.Time             `json:"loadedAt,omitempty"`
	Err      error                 `json:"-"`
}

// Ready reports a definite value: loaded and not being reloaded.
func (s State) Ready() bool {
	return s.Loaded && !s.Loading
}

func (s State) Find(orderID string) (models.ReviewRecord, bool) {
	for _, r := range s.Records {
		if r.OrderID == orderID {
			return r, true
		}
	}
	return models.ReviewRecord{}, false
}

func (s State) clone() State {
	s.Records = append([]models.ReviewRecord(nil), s.Records...)
	return s
}

// Index is the review list of one user, shared by every tracking session of
// that user. Readers subscribe to it; only review submission refetches it.
type Index struct {
	userID string
	lister orders.ReviewLister
	cache  cache.BytesCache
	ttl    time.Duration

	mu      sync.Mutex
	state   State
	loadCh  chan struct{}
	subs    map[int]func(State)
	nextSub int
}

// NewIndex builds an index; c may be nil to always read the backend.
func NewIndex(userID string, lister orders.ReviewLister, c cache.BytesCache, ttl time.Duration) *Index {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Index{
		userID: userID,
		lister: lister,
		cache:  c,
		ttl:    ttl,
		subs:   map[int]func(State){},
	}
}

func (x *Index) UserID() string {
	return x.userID
}

func (x *Index) State() State {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state.clone()
}

func (x *Index) List() []models.ReviewRecord {
	return x.State().Records
}

func (x *Index) IsLoading() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state.Loading
}

func (x *Index) Find(orderID string) (models.ReviewRecord, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state.Find(orderID)
}

// Subscribe registers fn for every state change. fn runs outside the index
// lock and may call back into the index.
func (x *Index) Subscribe(fn func(State)) (unsubscribe func()) {
	x.mu.Lock()
	id := x.nextSub
	x.nextSub++
	x.subs[id] = fn
	x.mu.Unlock()

	return func() {
		x.mu.Lock()
		delete(x.subs, id)
		x.mu.Unlock()
	}
}

// Load returns a definite value, reading through the Redis copy. It joins a
// load already in flight instead of starting another.
func (x *Index) Load(ctx context.Context) (State, error) {
	return x.load(ctx, true)
}

// LoadAsync starts Load in the background; the outcome reaches subscribers.
func (x *Index) LoadAsync(ctx context.Context) {
	go func() {
		if _, err := x.Load(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("load reviews", "user_id", x.userID, "error", err.Error())
		}
	}()
}

// Refetch drops the Redis copy and reloads from the backend. A load already
// in flight may predate the caller's write, so Refetch waits for it and then
// loads again.
func (x *Index) Refetch(ctx context.Context) (State, error) {
	return x.load(ctx, false)
}

func (x *Index) load(ctx context.Context, reuse bool) (State, error) {
	x.mu.Lock()
	for x.loadCh != nil {
		ch := x.loadCh
		x.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return x.State(), ctx.Err()
		}
		x.mu.Lock()
	}
	if reuse && x.state.Ready() {
		st := x.state.clone()
		x.mu.Unlock()
		return st, nil
	}

	ch := make(chan struct{})
	x.loadCh = ch
	x.state.Loading = true
	st, subs := x.state.clone(), x.subscribers()
	x.mu.Unlock()
	notify(subs, st)

	recs, err := x.fetch(ctx, reuse)

	x.mu.Lock()
	x.loadCh = nil
	x.state.Loading = false
	if err != nil {
		x.state.Err = err
	} else {
		x.state.Loaded = true
		x.state.Records = recs
		x.state.LoadedAt = time.Now().UTC()
		x.state.Err = nil
	}
	st, subs = x.state.clone(), x.subscribers()
	close(ch)
	x.mu.Unlock()
	notify(subs, st)

	return st, err
}

func (x *Index) fetch(ctx context.Context, reuse bool) ([]models.ReviewRecord, error) {
	key := cacheKey(x.userID)

	if x.cache != nil {
		if reuse {
			if b, ok, err := x.cache.Get(ctx, key); err == nil && ok {
				var recs []models.ReviewRecord
				if err := json.Unmarshal(b, &recs); err == nil {
					return recs, nil
				}
			} else if err != nil {
				slog.Warn("review cache get", "user_id", x.userID, "error", err.Error())
			}
		} else if err := x.cache.Del(ctx, key); err != nil {
			slog.Warn("review cache del", "user_id", x.userID, "error", err.Error())
		}
	}

	recs, err := x.lister.ListReviews(ctx, x.userID)
	if err != nil {
		return nil, errors.Wrap(err, "list reviews")
	}
	if recs == nil {
		recs = []models.ReviewRecord{}
	}

	if x.cache != nil {
		if b, err := json.Marshal(recs); err == nil {
			if err := x.cache.Set(ctx, key, b, x.ttl); err != nil {
				slog.Warn("review cache set", "user_id", x.userID, "error", err.Error())
			}
		}
	}
	return recs, nil
}

func (x *Index) subscribers() []func(State) {
	out := make([]func(State), 0, len(x.subs))
	for _, fn := range x.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(State), st State) {
	for _, fn := range subs {
		fn(st)
	}
}

func cacheKey(userID string) string {
	return "reviews:user:" + userID
}
