package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/OrderTrack/internal/integrations/orders"
	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyStarted = errors.New("poller already started")
	errRateLimited    = errors.New("order backend rate limit exceeded")
)

// Handler receives the outcome of every fetch. Calls come from the poller
// goroutine one at a time, never concurrently.
type Handler interface {
	OnSnapshot(snap models.OrderSnapshot)
	OnTransientError(err error)
	OnFatalError(err error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Poller fetches one order on a cadence chosen from the last observed status.
// Ticks are strictly sequential: the next one is scheduled only after the
// previous fetch settled. A Poller is single-use: Start once, Stop once.
type Poller struct {
	source  orders.Source
	handler Handler
	planner *Planner

	rl                 RateLimiter
	rateLimitPerMinute int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	orderID string

	enabled   atomic.Bool
	running   atomic.Bool
	triggerCh chan struct{}
	wakeCh    chan struct{}

	startedAtUnixNano   atomic.Int64
	lastTickUnixNano    atomic.Int64
	lastTriggerUnixNano atomic.Int64
	nextTickUnixNano    atomic.Int64
	totalTicks          atomic.Int64
	totalFetched        atomic.Int64
	totalErrors         atomic.Int64
	totalSkipped        atomic.Int64
	lastStatus          atomic.Value
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(source orders.Source, handler Handler) *Poller {
	p := &Poller{
		source:    source,
		handler:   handler,
		planner:   DefaultPlanner(),
		done:      make(chan struct{}),
		triggerCh: make(chan struct{}, 1),
		wakeCh:    make(chan struct{}, 1),
	}
	p.enabled.Store(true)
	p.lastStatus.Store(models.OrderStatusUnknown)
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg)
	return p
}

// WithRateLimit shares a per-minute fetch budget across every poller that
// uses the same limiter. perMinute <= 0 disables the check.
func (p *Poller) WithRateLimit(rl RateLimiter, perMinute int64) *Poller {
	p.rl = rl
	p.rateLimitPerMinute = perMinute
	return p
}

// Start launches the loop. The first fetch happens immediately.
func (p *Poller) Start(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.orderID = orderID
	p.startedAtUnixNano.Store(time.Now().UTC().UnixNano())
	p.running.Store(true)

	go p.run(ctx, orderID)
	return nil
}

// Stop cancels the loop without waiting for it; a fetch in flight is
// discarded when it returns. Use Done to wait.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		// never started: make Done usable anyway
		p.cancel = func() {}
		close(p.done)
		return
	}
	p.cancel()
}

// Done is closed once the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) Running() bool {
	return p.running.Load()
}

// SetEnabled pauses or resumes polling without ending the loop.
// Resuming fetches right away.
func (p *Poller) SetEnabled(enabled bool) {
	if p.enabled.Swap(enabled) == enabled {
		return
	}
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *Poller) Enabled() bool {
	return p.enabled.Load()
}

// Trigger forces a fetch inside the same sequential loop (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	OrderID       string             `json:"orderId"`
	Running       bool               `json:"running"`
	Enabled       bool               `json:"enabled"`
	StartedAt     *time.Time         `json:"startedAt,omitempty"`
	LastTickAt    *time.Time         `json:"lastTickAt,omitempty"`
	LastTriggerAt *time.Time         `json:"lastTriggerAt,omitempty"`
	NextTickAt    *time.Time         `json:"nextTickAt,omitempty"`
	LastStatus    models.OrderStatus `json:"lastStatus"`
	TotalTicks    int64              `json:"totalTicks"`
	TotalFetched  int64              `json:"totalFetched"`
	TotalErrors   int64              `json:"totalErrors"`
	TotalSkipped  int64              `json:"totalSkipped"`
	LastError     string             `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	p.mu.Lock()
	orderID := p.orderID
	p.mu.Unlock()

	st := Stats{
		OrderID:      orderID,
		Running:      p.running.Load(),
		Enabled:      p.enabled.Load(),
		LastStatus:   p.lastStatus.Load().(models.OrderStatus),
		TotalTicks:   p.totalTicks.Load(),
		TotalFetched: p.totalFetched.Load(),
		TotalErrors:  p.totalErrors.Load(),
		TotalSkipped: p.totalSkipped.Load(),
	}
	st.StartedAt = unixTime(p.startedAtUnixNano.Load())
	st.LastTickAt = unixTime(p.lastTickUnixNano.Load())
	st.LastTriggerAt = unixTime(p.lastTriggerUnixNano.Load())
	if st.Running {
		st.NextTickAt = unixTime(p.nextTickUnixNano.Load())
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) run(ctx context.Context, orderID string) {
	defer close(p.done)
	defer p.running.Store(false)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wakeCh:
			if p.enabled.Load() {
				timer.Reset(0)
			} else {
				timer.Stop()
			}
			continue
		case <-p.triggerCh:
			if !p.enabled.Load() {
				continue
			}
			timer.Stop()
		case <-timer.C:
			if !p.enabled.Load() {
				continue
			}
		}

		d, ok := p.tick(ctx, orderID)
		if ctx.Err() != nil || !ok {
			return
		}
		p.nextTickUnixNano.Store(time.Now().Add(d).UTC().UnixNano())
		timer.Reset(d)
	}
}

// tick runs one fetch and returns the delay before the next one;
// ok=false ends the loop.
func (p *Poller) tick(ctx context.Context, orderID string) (time.Duration, bool) {
	now := time.Now().UTC()
	p.lastTickUnixNano.Store(now.UnixNano())
	p.totalTicks.Add(1)
	last := p.lastStatus.Load().(models.OrderStatus)

	if !p.allow(ctx, now) {
		p.totalSkipped.Add(1)
		slog.Warn("poll skipped by rate limit", "order_id", orderID)
		p.handler.OnTransientError(errs.Transient(errRateLimited))
		return p.planner.RetryDelay(last), true
	}

	snap, err := p.source.FetchOrder(ctx, orderID)
	if ctx.Err() != nil {
		return 0, false
	}
	if err != nil {
		p.totalErrors.Add(1)
		p.setLastError(err)
		// a rejected fetch (4xx) will not heal on retry either
		if !errs.IsTransient(err) {
			slog.Error("poll order: fatal", "order_id", orderID, "error", err.Error())
			p.handler.OnFatalError(err)
			return 0, false
		}
		slog.Warn("poll order", "order_id", orderID, "error", err.Error())
		p.handler.OnTransientError(err)
		return p.planner.RetryDelay(last), true
	}

	p.totalFetched.Add(1)
	p.lastStatus.Store(snap.Status)
	p.handler.OnSnapshot(snap)

	d, ok := p.planner.NextDelay(snap.Status)
	if !ok {
		slog.Info("polling finished", "order_id", orderID, "status", string(snap.Status))
	}
	return d, ok
}

func (p *Poller) allow(ctx context.Context, now time.Time) bool {
	if p.rl == nil || p.rateLimitPerMinute <= 0 {
		return true
	}
	minuteKey := "rl:orders:" + now.Format("200601021504")
	allowed, n, err := p.rl.Allow(ctx, minuteKey, p.rateLimitPerMinute, 70*time.Second)
	if err != nil {
		// limiter unavailable: do not block polling on it
		slog.Warn("rate limiter", "error", err.Error())
		return true
	}
	if !allowed {
		slog.Debug("rate limit exceeded", "count", n)
	}
	return allowed
}

func (p *Poller) setLastError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}

func unixTime(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
