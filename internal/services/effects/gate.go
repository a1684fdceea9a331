package effects

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/OrderTrack/internal/integrations/orders"
	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/BearBump/OrderTrack/internal/services/reviews"
	"github.com/BearBump/OrderTrack/internal/services/tracker"
	"github.com/pkg/errors"
)

var (
	// ErrInFlight rejects a second submit while the first is still running.
	ErrInFlight = &errs.Error{Kind: errs.ErrConflict, Message: "This request is already being sent"}
	// ErrNotArmed rejects an emergency confirmation that was never armed.
	ErrNotArmed = &errs.Error{Kind: errs.ErrValidationFailed, Message: "Please confirm the emergency request first"}
	// ErrClosed is returned by every call on a closed gate. The manager also
	// reuses it during shutdown, where it surfaces as a transient failure.
	ErrClosed = errors.New("tracking session closed")
)

type Config struct {
	PromptDelay     time.Duration // default: 1 second
	SettleAttempts  int           // default: 3
	SettleInterval  time.Duration // default: 500 ms
	MutationTimeout time.Duration // default: 10 seconds
	ReloadInterval  time.Duration // default: 2 seconds, doubled per attempt
	ReloadAttempts  int           // default: 5
}

func DefaultConfig() Config {
	return Config{
		PromptDelay:     time.Second,
		SettleAttempts:  3,
		SettleInterval:  500 * time.Millisecond,
		MutationTimeout: 10 * time.Second,
		ReloadInterval:  2 * time.Second,
		ReloadAttempts:  5,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PromptDelay <= 0 {
		c.PromptDelay = def.PromptDelay
	}
	if c.SettleAttempts <= 0 {
		c.SettleAttempts = def.SettleAttempts
	}
	if c.SettleInterval <= 0 {
		c.SettleInterval = def.SettleInterval
	}
	if c.MutationTimeout <= 0 {
		c.MutationTimeout = def.MutationTimeout
	}
	if c.ReloadInterval <= 0 {
		c.ReloadInterval = def.ReloadInterval
	}
	if c.ReloadAttempts <= 0 {
		c.ReloadAttempts = def.ReloadAttempts
	}
	return c
}

// ReviewIndex is the shared review cache as the gate sees it.
type ReviewIndex interface {
	State() reviews.State
	Load(ctx context.Context) (reviews.State, error)
	LoadAsync(ctx context.Context)
	Refetch(ctx context.Context) (reviews.State, error)
	Subscribe(fn func(reviews.State)) (unsubscribe func())
}

// Hooks is how the gate reaches its session. Calls never happen while the
// gate lock is held.
type Hooks interface {
	Notify(n models.Notice)
	StopPolling()
}

type Affordance string

const (
	AffordanceNone    Affordance = "none"
	AffordancePending Affordance = "pending"
	AffordanceCreate  Affordance = "create"
	AffordanceEdit    Affordance = "edit"
)

// Gate runs the side effects of one tracking session. The one-shot latches
// live here, so repeated polls with the same status never fire a flow twice.
type Gate struct {
	orderID string
	mutator orders.Mutator
	index   ReviewIndex
	hooks   Hooks
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc

	mu             sync.Mutex
	status         models.OrderStatus
	prompted       bool
	promptTimer    *time.Timer
	reloadTimer    *time.Timer
	reloads        int
	redirected     bool
	escalated      bool
	emergencyArmed bool
	dialogs        map[DialogKind]*dialog
	closed         bool
	unsubscribe    func()
}

func New(orderID string, m orders.Mutator, idx ReviewIndex, hooks Hooks, cfg Config) *Gate {
	g := &Gate{
		orderID: orderID,
		mutator: m,
		index:   idx,
		hooks:   hooks,
		cfg:     cfg.withDefaults(),
		dialogs: map[DialogKind]*dialog{},
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())
	for _, k := range DialogKinds {
		g.dialogs[k] = &dialog{}
	}
	g.unsubscribe = idx.Subscribe(g.onReviews)
	return g
}

// Close stops the prompt timer and detaches from the review index. Responses
// that arrive afterwards are dropped.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	if g.promptTimer != nil {
		g.promptTimer.Stop()
		g.promptTimer = nil
	}
	if g.reloadTimer != nil {
		g.reloadTimer.Stop()
		g.reloadTimer = nil
	}
	unsub := g.unsubscribe
	g.mu.Unlock()

	g.cancel()
	unsub()
}

// Observe feeds one classified transition from the poll loop.
func (g *Gate) Observe(tr tracker.Transition) {
	var out []models.Notice

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.status = tr.To

	if tr.Kind == tracker.KindLateral && tr.Notify {
		out = append(out, g.notice(models.NoticeStatusWarning, models.NoticeWarning,
			fmt.Sprintf("Your order was reported as %s again. We are keeping an eye on it.", statusLabel(tr.To))))
	}
	if tr.Escalate && !g.escalated {
		g.escalated = true
		out = append(out, g.notice(models.NoticeWarningEscalation, models.NoticeError,
			"Your delivery status keeps changing. If something is wrong, report a safety issue or contact emergency support."))
	}
	if tr.To == models.OrderStatusCancelled {
		if n, ok := g.redirectLocked(); ok {
			out = append(out, n)
		}
	}
	g.evaluatePromptLocked()
	g.reloadLocked(g.index.State())
	g.mu.Unlock()

	g.emit(out...)
}

func (g *Gate) onReviews(st reviews.State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st.Ready() {
		g.evaluatePromptLocked()
		return
	}
	g.reloadLocked(st)
}

// reloadLocked retries a review index whose load failed before it ever held
// a value. Only a completed order needs it: the prompt and the review control
// wait on the index. The first retry is immediate, later ones back off from
// ReloadInterval.
func (g *Gate) reloadLocked(st reviews.State) {
	if g.closed || g.status != models.OrderStatusCompleted || st.Loaded || st.Loading || st.Err == nil {
		return
	}
	if g.reloadTimer != nil || g.reloads >= g.cfg.ReloadAttempts {
		return
	}
	var delay time.Duration
	if g.reloads > 0 {
		delay = g.cfg.ReloadInterval << (g.reloads - 1)
	}
	g.reloads++
	g.reloadTimer = time.AfterFunc(delay, g.reload)
}

func (g *Gate) reload() {
	g.mu.Lock()
	g.reloadTimer = nil
	if g.closed {
		g.mu.Unlock()
		return
	}
	attempt := g.reloads
	g.mu.Unlock()

	slog.Info("reload reviews", "order_id", g.orderID, "attempt", attempt)
	g.index.LoadAsync(g.ctx)
}

// evaluatePromptLocked schedules the completion prompt only when both inputs
// are definite: the order is completed and the review index is ready.
func (g *Gate) evaluatePromptLocked() {
	if g.closed || g.prompted || g.promptTimer != nil {
		return
	}
	if g.status != models.OrderStatusCompleted || g.dialogs[DialogReview].inFlight {
		return
	}
	st := g.index.State()
	if !st.Ready() {
		return
	}
	if _, ok := st.Find(g.orderID); ok {
		return
	}
	g.promptTimer = time.AfterFunc(g.cfg.PromptDelay, g.firePrompt)
}

func (g *Gate) firePrompt() {
	g.mu.Lock()
	g.promptTimer = nil
	if g.closed || g.prompted || g.status != models.OrderStatusCompleted || g.dialogs[DialogReview].inFlight {
		g.mu.Unlock()
		return
	}
	st := g.index.State()
	if !st.Ready() {
		// a refetch started meanwhile; its settle re-evaluates
		g.mu.Unlock()
		return
	}
	if _, ok := st.Find(g.orderID); ok {
		g.mu.Unlock()
		return
	}
	g.prompted = true
	g.dialogs[DialogReview].show()
	n := g.notice(models.NoticeReviewPrompt, models.NoticeInfo, "Your order has arrived. How was it?")
	g.mu.Unlock()

	g.emit(n)
}

func (g *Gate) redirectLocked() (models.Notice, bool) {
	if g.redirected {
		return models.Notice{}, false
	}
	g.redirected = true
	return g.notice(models.NoticeRedirect, models.NoticeInfo, "Your order was cancelled."), true
}

// ReviewAffordance tells the view which review control to show.
func (g *Gate) ReviewAffordance() Affordance {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.affordanceLocked()
}

func (g *Gate) affordanceLocked() Affordance {
	if g.status != models.OrderStatusCompleted {
		return AffordanceNone
	}
	st := g.index.State()
	if !st.Ready() {
		return AffordancePending
	}
	if _, ok := st.Find(g.orderID); ok {
		return AffordanceEdit
	}
	return AffordanceCreate
}

type State struct {
	PromptedReview bool          `json:"promptedReview"`
	Redirected     bool          `json:"redirected"`
	EmergencyArmed bool          `json:"emergencyArmed"`
	Affordance     Affordance    `json:"reviewAffordance"`
	Dialogs        []DialogState `json:"dialogs"`
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := State{
		PromptedReview: g.prompted,
		Redirected:     g.redirected,
		EmergencyArmed: g.emergencyArmed,
		Affordance:     g.affordanceLocked(),
	}
	for _, k := range DialogKinds {
		st.Dialogs = append(st.Dialogs, g.dialogs[k].state(k))
	}
	return st
}

func (g *Gate) notice(kind models.NoticeKind, level models.NoticeLevel, msg string) models.Notice {
	return models.NewNotice(g.orderID, kind, level, msg)
}

func (g *Gate) emit(ns ...models.Notice) {
	for _, n := range ns {
		g.hooks.Notify(n)
	}
}

// mutationContext detaches the call from the caller's cancellation: once
// sent, a mutation runs to completion or to MutationTimeout.
func (g *Gate) mutationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), g.cfg.MutationTimeout)
}

func statusLabel(s models.OrderStatus) string {
	switch s {
	case models.OrderStatusEnRoute:
		return "on the way"
	case models.OrderStatusArrived:
		return "arrived"
	default:
		return string(s)
	}
}
