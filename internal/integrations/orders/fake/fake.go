package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Operation names accepted by FailNext and Calls.
const (
	OpFetch        = "fetch"
	OpCreateReview = "create_review"
	OpUpdateReview = "update_review"
	OpCancel       = "cancel"
	OpSafety       = "safety"
	OpEmergency    = "emergency"
	OpListReviews  = "list_reviews"
)

var (
	happyPath = []models.OrderStatus{
		models.OrderStatusConfirmed,
		models.OrderStatusAssignToCourier,
		models.OrderStatusCollected,
		models.OrderStatusEnRoute,
		models.OrderStatusArrived,
		models.OrderStatusCompleted,
	}
	// Upstream re-announces the moving sub-states for some orders.
	chattyPath = []models.OrderStatus{
		models.OrderStatusConfirmed,
		models.OrderStatusAssignToCourier,
		models.OrderStatusEnRoute,
		models.OrderStatusArrived,
		models.OrderStatusEnRoute,
		models.OrderStatusArrived,
		models.OrderStatusCompleted,
	}
)

type order struct {
	userID  string
	script  []models.OrderStatus
	pos     int
	current models.OrderStatus
	created time.Time
}

// FakeClient is an in-memory order backend. Every order follows a status
// script and each FetchOrder returns the next step, staying on the last one.
// Orders that were never seeded get a script picked from a hash of the id.
type FakeClient struct {
	mu       sync.Mutex
	orders   map[string]*order
	reviews  map[string]map[string]models.ReviewRecord
	stale    map[string][]models.ReviewRecord
	lag      int
	lagLeft  map[string]int
	failures map[string][]error
	calls    map[string]int
}

func New() *FakeClient {
	return &FakeClient{
		orders:   map[string]*order{},
		reviews:  map[string]map[string]models.ReviewRecord{},
		stale:    map[string][]models.ReviewRecord{},
		lagLeft:  map[string]int{},
		failures: map[string][]error{},
		calls:    map[string]int{},
	}
}

// Seed registers an order owned by userID. Without a script the happy path is used.
func (f *FakeClient) Seed(orderID, userID string, script ...models.OrderStatus) {
	if len(script) == 0 {
		script = happyPath
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[orderID] = &order{
		userID:  userID,
		script:  append([]models.OrderStatus(nil), script...),
		current: script[0],
		created: time.Now().UTC(),
	}
}

// PutReview stores an existing review for userID.
func (f *FakeClient) PutReview(userID string, rec models.ReviewRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userReviews(userID)[rec.OrderID] = rec
}

// WithListLag makes ListReviews return the pre-write list for n calls after
// every review write.
func (f *FakeClient) WithListLag(n int) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lag = n
	return f
}

// FailNext queues err for the next call of op.
func (f *FakeClient) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

func (f *FakeClient) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeClient) FetchOrder(ctx context.Context, orderID string) (models.OrderSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpFetch); err != nil {
		return models.OrderSnapshot{}, err
	}

	o, ok := f.orders[orderID]
	if !ok {
		o = &order{script: pickScript(orderID), created: time.Now().UTC()}
		o.current = o.script[0]
		f.orders[orderID] = o
	}

	if o.current != models.OrderStatusCancelled {
		o.current = o.script[o.pos]
		if o.pos < len(o.script)-1 {
			o.pos++
		}
	}
	return f.snapshot(orderID, o), nil
}

func (f *FakeClient) CreateReview(ctx context.Context, orderID string, in models.ReviewInput) (models.ReviewRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpCreateReview); err != nil {
		return models.ReviewRecord{}, err
	}
	o, ok := f.orders[orderID]
	if !ok {
		return models.ReviewRecord{}, errs.NotFound("order", orderID)
	}
	if o.current != models.OrderStatusCompleted {
		return models.ReviewRecord{}, errs.ValidationFailed("", "Only completed orders can be reviewed")
	}
	reviews := f.userReviews(o.userID)
	if _, exists := reviews[orderID]; exists {
		return models.ReviewRecord{}, errs.Conflict("A review for this order already exists")
	}

	f.markStale(o.userID)
	now := time.Now().UTC()
	rec := models.ReviewRecord{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Rating:    in.Rating,
		Comment:   in.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	reviews[orderID] = rec
	return rec, nil
}

func (f *FakeClient) UpdateReview(ctx context.Context, orderID string, in models.ReviewInput) (models.ReviewRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpUpdateReview); err != nil {
		return models.ReviewRecord{}, err
	}
	o, ok := f.orders[orderID]
	if !ok {
		return models.ReviewRecord{}, errs.NotFound("order", orderID)
	}
	reviews := f.userReviews(o.userID)
	rec, exists := reviews[orderID]
	if !exists {
		return models.ReviewRecord{}, errs.NotFound("review", orderID)
	}

	f.markStale(o.userID)
	rec.Rating = in.Rating
	rec.Comment = in.Comment
	rec.UpdatedAt = time.Now().UTC()
	reviews[orderID] = rec
	return rec, nil
}

func (f *FakeClient) CancelOrder(ctx context.Context, req models.CancellationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpCancel); err != nil {
		return err
	}
	o, ok := f.orders[req.OrderID]
	if !ok {
		return errs.NotFound("order", req.OrderID)
	}
	if o.current.IsTerminal() || o.current.Rank() >= models.OrderStatusCollected.Rank() {
		return errs.ValidationFailed("", "Order can no longer be cancelled")
	}
	o.current = models.OrderStatusCancelled
	return nil
}

func (f *FakeClient) ReportSafety(ctx context.Context, r models.SafetyReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter(OpSafety)
}

func (f *FakeClient) Escalate(ctx context.Context, e models.EmergencyEscalation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter(OpEmergency)
}

func (f *FakeClient) ListReviews(ctx context.Context, userID string) ([]models.ReviewRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpListReviews); err != nil {
		return nil, err
	}
	if f.lagLeft[userID] > 0 {
		f.lagLeft[userID]--
		return append([]models.ReviewRecord{}, f.stale[userID]...), nil
	}
	return f.list(userID), nil
}

func (f *FakeClient) enter(op string) error {
	f.calls[op]++
	if q := f.failures[op]; len(q) > 0 {
		err := q[0]
		f.failures[op] = q[1:]
		return err
	}
	return nil
}

func (f *FakeClient) userReviews(userID string) map[string]models.ReviewRecord {
	m, ok := f.reviews[userID]
	if !ok {
		m = map[string]models.ReviewRecord{}
		f.reviews[userID] = m
	}
	return m
}

func (f *FakeClient) markStale(userID string) {
	if f.lag <= 0 {
		return
	}
	f.stale[userID] = f.list(userID)
	f.lagLeft[userID] = f.lag
}

func (f *FakeClient) list(userID string) []models.ReviewRecord {
	out := make([]models.ReviewRecord, 0, len(f.reviews[userID]))
	for _, rec := range f.reviews[userID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (f *FakeClient) snapshot(orderID string, o *order) models.OrderSnapshot {
	snap := models.OrderSnapshot{
		ID:        orderID,
		Status:    o.current,
		StatusRaw: string(o.current),
		Items: []models.OrderItem{
			{Name: "Margherita", Quantity: 1, UnitPrice: decimal.RequireFromString("11.90"), RewardPoints: 12},
			{Name: "Lemonade", Quantity: 2, UnitPrice: decimal.RequireFromString("2.50"), RewardPoints: 2},
		},
		Address: models.Address{Street: "221B Baker Street", City: "London", PostalCode: "NW1 6XE"},
		Timestamps: models.OrderTimestamps{
			CreatedAt: o.created,
		},
		FetchedAt: time.Now().UTC(),
	}
	if o.current.Rank() >= models.OrderStatusAssignToCourier.Rank() {
		snap.Driver = &models.Driver{Name: fmt.Sprintf("Courier %s", shortHash(orderID)), Phone: "+10000000000"}
	}
	return snap
}

func pickScript(orderID string) []models.OrderStatus {
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	// 20% of orders get the chatty script
	if h.Sum32()%5 == 0 {
		return chattyPath
	}
	return happyPath
}

func shortHash(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%04x", h.Sum32()&0xffff)
}
