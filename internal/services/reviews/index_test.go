package reviews

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/OrderTrack/internal/cache/rediscache"
	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	mu      sync.Mutex
	records []models.ReviewRecord
	err     error
	calls   atomic.Int32
	gate    chan struct{}
}

func (l *stubLister) ListReviews(ctx context.Context, userID string) ([]models.ReviewRecord, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return append([]models.ReviewRecord(nil), l.records...), nil
}

func (l *stubLister) set(recs ...models.ReviewRecord) {
	l.mu.Lock()
	l.records = recs
	l.mu.Unlock()
}

func TestIndex_LoadReadsThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := rediscache.New(mr.Addr())
	lister := &stubLister{records: []models.ReviewRecord{{ID: "r1", OrderID: "o1", Rating: 5}}}
	ctx := context.Background()

	x := NewIndex("u1", lister, rc, time.Minute)
	require.False(t, x.State().Ready())

	st, err := x.Load(ctx)
	require.NoError(t, err)
	require.True(t, st.Ready())
	rec, ok := st.Find("o1")
	require.True(t, ok)
	require.Equal(t, 5, rec.Rating)
	require.True(t, mr.Exists("reviews:user:u1"))

	// a second index for the same user is served by redis
	y := NewIndex("u1", lister, rc, time.Minute)
	_, err = y.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(1), lister.calls.Load())

	// already loaded: no more reads
	_, err = x.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(1), lister.calls.Load())
}

func TestIndex_RefetchBypassesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := rediscache.New(mr.Addr())
	lister := &stubLister{}
	ctx := context.Background()

	x := NewIndex("u1", lister, rc, time.Minute)
	st, err := x.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, st.Records)

	lister.set(models.ReviewRecord{ID: "r1", OrderID: "o1", Rating: 4})
	st, err = x.Refetch(ctx)
	require.NoError(t, err)
	require.Len(t, st.Records, 1)
	require.Equal(t, int32(2), lister.calls.Load())

	cached, err := mr.Get("reviews:user:u1")
	require.NoError(t, err)
	require.Contains(t, cached, `"orderId":"o1"`)
}

func TestIndex_SubscribersSeeLoadingThenReady(t *testing.T) {
	lister := &stubLister{gate: make(chan struct{})}
	x := NewIndex("u1", lister, nil, 0)

	var mu sync.Mutex
	var seen []State
	unsub := x.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})
	defer unsub()

	x.LoadAsync(context.Background())
	require.Eventually(t, x.IsLoading, time.Second, time.Millisecond)
	require.False(t, x.State().Ready())
	close(lister.gate)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.True(t, seen[0].Loading)
	require.True(t, seen[1].Ready())
}

func TestIndex_ConcurrentLoadsShareOneFetch(t *testing.T) {
	lister := &stubLister{gate: make(chan struct{})}
	x := NewIndex("u1", lister, nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := x.Load(context.Background())
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, x.IsLoading, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(lister.gate)
	wg.Wait()

	require.Equal(t, int32(1), lister.calls.Load())
}

func TestIndex_LoadErrorKeepsNotReady(t *testing.T) {
	lister := &stubLister{err: errs.Transient(nil)}
	x := NewIndex("u1", lister, nil, 0)

	st, err := x.Load(context.Background())
	require.ErrorIs(t, err, errs.ErrTransient)
	require.False(t, st.Ready())
	require.Error(t, st.Err)

	lister.mu.Lock()
	lister.err = nil
	lister.mu.Unlock()
	st, err = x.Load(context.Background())
	require.NoError(t, err)
	require.True(t, st.Ready())
	require.NoError(t, st.Err)
}

func TestRegistry_SharesAndReleases(t *testing.T) {
	r := NewRegistry(&stubLister{}, nil, 0)
	a := r.Acquire("u1")
	b := r.Acquire("u1")
	c := r.Acquire("u2")
	require.Same(t, a, b)
	require.NotSame(t, a, c)
	require.Equal(t, 2, r.Len())

	r.Release("u1")
	require.Equal(t, 2, r.Len())
	r.Release("u1")
	require.Equal(t, 1, r.Len())
	r.Release("nobody")
	require.Equal(t, 1, r.Len())
}
