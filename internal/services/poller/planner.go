package poller

import (
	"time"

	"github.com/BearBump/OrderTrack/internal/models"
)

type PlannerConfig struct {
	ConfirmedDelay time.Duration // default: 5 seconds
	AssignedDelay  time.Duration // default: 100 seconds
	MovingDelay    time.Duration // default: 2 seconds (enroute, arrived)
	DefaultDelay   time.Duration // default: 5 seconds (collected, unknown)
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		ConfirmedDelay: 5 * time.Second,
		AssignedDelay:  100 * time.Second,
		MovingDelay:    2 * time.Second,
		DefaultDelay:   5 * time.Second,
	}
}

// Planner maps the last observed status to the delay before the next fetch.
type Planner struct {
	cfg PlannerConfig
}

func NewPlanner(cfg PlannerConfig) *Planner {
	def := DefaultPlannerConfig()
	if cfg.ConfirmedDelay <= 0 {
		cfg.ConfirmedDelay = def.ConfirmedDelay
	}
	if cfg.AssignedDelay <= 0 {
		cfg.AssignedDelay = def.AssignedDelay
	}
	if cfg.MovingDelay <= 0 {
		cfg.MovingDelay = def.MovingDelay
	}
	if cfg.DefaultDelay <= 0 {
		cfg.DefaultDelay = def.DefaultDelay
	}
	return &Planner{cfg: cfg}
}

func (p *Planner) Config() PlannerConfig {
	return p.cfg
}

// NextDelay returns ok=false for terminal statuses: nothing more is scheduled.
func (p *Planner) NextDelay(status models.OrderStatus) (time.Duration, bool) {
	switch status {
	case models.OrderStatusCompleted, models.OrderStatusCancelled:
		return 0, false
	case models.OrderStatusConfirmed:
		return p.cfg.ConfirmedDelay, true
	case models.OrderStatusAssignToCourier:
		return p.cfg.AssignedDelay, true
	case models.OrderStatusEnRoute, models.OrderStatusArrived:
		return p.cfg.MovingDelay, true
	default:
		return p.cfg.DefaultDelay, true
	}
}

// RetryDelay keeps the cadence of the last good status after a failed fetch.
func (p *Planner) RetryDelay(last models.OrderStatus) time.Duration {
	if d, ok := p.NextDelay(last); ok {
		return d
	}
	return p.cfg.DefaultDelay
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig())
}

// NextDelay is a shorthand for DefaultPlanner().NextDelay.
func NextDelay(status models.OrderStatus) (time.Duration, bool) {
	return DefaultPlanner().NextDelay(status)
}
