package sessions

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/OrderTrack/internal/integrations/orders"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/BearBump/OrderTrack/internal/services/effects"
	"github.com/BearBump/OrderTrack/internal/services/poller"
	"github.com/BearBump/OrderTrack/internal/services/reviews"
	"github.com/BearBump/OrderTrack/internal/services/tracker"
	"github.com/google/uuid"
)

type Config struct {
	Planner            poller.PlannerConfig
	Effects            effects.Config
	MaxToasts          int
	RateLimitPerMinute int64
}

// Manager owns every mounted session. Sessions outlive the HTTP request that
// mounted them, so they run under the manager's context.
type Manager struct {
	ctx      context.Context
	client   orders.Client
	registry *reviews.Registry
	sink     EventSink
	cfg      Config
	rl       poller.RateLimiter
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

func NewManager(ctx context.Context, client orders.Client, registry *reviews.Registry, sink EventSink, cfg Config) *Manager {
	if sink == nil {
		sink = NopSink{}
	}
	if cfg.MaxToasts <= 0 {
		cfg.MaxToasts = DefaultMaxToasts
	}
	return &Manager{
		ctx:      ctx,
		client:   client,
		registry: registry,
		sink:     sink,
		cfg:      cfg,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

func (m *Manager) WithRateLimiter(rl poller.RateLimiter) *Manager {
	m.rl = rl
	return m
}

// Mount starts tracking orderID for userID and returns the new session.
func (m *Manager) Mount(orderID, userID string) (*Session, error) {
	orderID = strings.TrimSpace(orderID)
	userID = strings.TrimSpace(userID)
	if orderID == "" {
		return nil, errs.ValidationFailed("orderId", "orderId is required")
	}
	if userID == "" {
		return nil, errs.ValidationFailed("userId", "userId is required")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errs.Transient(effects.ErrClosed)
	}
	m.mu.Unlock()

	now := m.now().UTC()
	s := &Session{
		id:        uuid.NewString(),
		orderID:   orderID,
		userID:    userID,
		createdAt: now,
		maxToasts: m.cfg.MaxToasts,
		tracker:   tracker.New(),
		sink:      m.sink,
		loading:   true,
		lastSeen:  now,
	}
	s.index = m.registry.Acquire(userID)
	s.poller = poller.New(m.client, s).WithPlanner(m.cfg.Planner)
	if m.rl != nil {
		s.poller.WithRateLimit(m.rl, m.cfg.RateLimitPerMinute)
	}
	s.gate = effects.New(orderID, m.client, s.index, s, m.cfg.Effects)

	if err := s.start(m.ctx); err != nil {
		s.Close()
		m.registry.Release(userID)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	slog.Info("session mounted", "session_id", s.id, "order_id", orderID, "user_id", userID)
	return s, nil
}

// Get returns a mounted session and marks it as seen.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.NotFound("session", id)
	}
	s.touch(m.now().UTC())
	return s, nil
}

// Unmount closes the session. Whatever it had in flight is discarded.
func (m *Manager) Unmount(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return errs.NotFound("session", id)
	}

	s.Close()
	m.registry.Release(s.userID)
	slog.Info("session unmounted", "session_id", id, "order_id", s.orderID)
	return nil
}

// ReapIdle unmounts sessions not seen since now-ttl and returns how many.
func (m *Manager) ReapIdle(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	var idle []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > ttl {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	n := 0
	for _, id := range idle {
		if err := m.Unmount(id); err == nil {
			n++
		}
	}
	return n
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

type Stats struct {
	Sessions      int   `json:"sessions"`
	Polling       int   `json:"polling"`
	ReviewIndexes int   `json:"reviewIndexes"`
	TotalFetched  int64 `json:"totalFetched"`
	TotalErrors   int64 `json:"totalErrors"`
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	st := Stats{Sessions: len(list), ReviewIndexes: m.registry.Len()}
	for _, s := range list {
		ps := s.poller.Stats()
		if ps.Running {
			st.Polling++
		}
		st.TotalFetched += ps.TotalFetched
		st.TotalErrors += ps.TotalErrors
	}
	return st
}

// Close unmounts everything and refuses new mounts.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Unmount(id)
	}
}
