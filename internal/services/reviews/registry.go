package reviews

import (
	"sync"
	"time"

	"github.com/BearBump/OrderTrack/internal/cache"
	"github.com/BearBump/OrderTrack/internal/integrations/orders"
)

// Registry hands out one shared Index per user and drops it when the last
// session holding it is released.
type Registry struct {
	lister orders.ReviewLister
	cache  cache.BytesCache
	ttl    time.Duration

	mu    sync.Mutex
	items map[string]*entry
}

type entry struct {
	idx  *Index
	refs int
}

func NewRegistry(lister orders.ReviewLister, c cache.BytesCache, ttl time.Duration) *Registry {
	return &Registry{
		lister: lister,
		cache:  c,
		ttl:    ttl,
		items:  map[string]*entry{},
	}
}

func (r *Registry) Acquire(userID string) *Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[userID]
	if !ok {
		e = &entry{idx: NewIndex(userID, r.lister, r.cache, r.ttl)}
		r.items[userID] = e
	}
	e.refs++
	return e.idx
}

func (r *Registry) Release(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[userID]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(r.items, userID)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
