package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/BearBump/OrderTrack/internal/broker/messages"
	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/BearBump/OrderTrack/internal/services/effects"
	"github.com/BearBump/OrderTrack/internal/services/poller"
	"github.com/BearBump/OrderTrack/internal/services/reviews"
	"github.com/BearBump/OrderTrack/internal/services/tracker"
)

const DefaultMaxToasts = 50

// Session is the tracking state of one mounted order view. It is the poller's
// handler and the gate's hooks; nothing in it outlives Close.
type Session struct {
	id        string
	orderID   string
	userID    string
	createdAt time.Time
	maxToasts int

	poller  *poller.Poller
	tracker *tracker.Tracker
	gate    *effects.Gate
	index   *reviews.Index
	sink    EventSink

	mu          sync.Mutex
	snapshot    *models.OrderSnapshot
	loading     bool
	terminalErr error
	lastErr     string
	truckPos    int
	toasts      []models.Notice
	alerts      []models.Notice
	lastSeen    time.Time
	closed      bool
}

func (s *Session) ID() string      { return s.id }
func (s *Session) OrderID() string { return s.orderID }
func (s *Session) UserID() string  { return s.userID }

// Gate exposes the user-triggered flows (review, cancel, safety, emergency).
func (s *Session) Gate() *effects.Gate {
	return s.gate
}

func (s *Session) start(ctx context.Context) error {
	// session_started goes out before the first fetch can publish a transition.
	s.publish(messages.NewOrderTrackingEvent(messages.EventSessionStarted, s.id, s.orderID, s.userID))
	s.index.LoadAsync(ctx)
	return s.poller.Start(ctx, s.orderID)
}

// Close stops polling and drops any response still in flight.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.poller.Stop()
	s.gate.Close()
	s.publish(messages.NewOrderTrackingEvent(messages.EventSessionClosed, s.id, s.orderID, s.userID))
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Refresh forces a fetch in the poll loop.
func (s *Session) Refresh() {
	s.poller.Trigger()
}

// SetPolling is the external disable switch for embedding flows.
func (s *Session) SetPolling(enabled bool) {
	s.poller.SetEnabled(enabled)
}

// Done is closed once the poll loop exited.
func (s *Session) Done() <-chan struct{} {
	return s.poller.Done()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// AckAlert removes an acknowledged alert. Alerts never expire on their own.
func (s *Session) AckAlert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.alerts {
		if a.ID == id {
			s.alerts = append(s.alerts[:i], s.alerts[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) OnSnapshot(snap models.OrderSnapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.snapshot = &snap
	s.loading = false
	s.lastErr = ""
	tr := s.tracker.Observe(snap.Status)
	if pos := snap.Status.TruckPosition(); pos >= 0 {
		s.truckPos = pos
	}
	s.mu.Unlock()

	s.gate.Observe(tr)

	if tr.Kind == tracker.KindSteady {
		return
	}
	ev := messages.NewOrderTrackingEvent(messages.EventTransition, s.id, s.orderID, s.userID)
	ev.Status = string(tr.To)
	ev.FromStatus = string(tr.From)
	ev.Kind = string(tr.Kind)
	ev.WarningCount = tr.WarningCount
	s.publish(ev)
}

// OnTransientError keeps the last good snapshot; the next tick retries.
func (s *Session) OnTransientError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.lastErr = err.Error()
}

func (s *Session) OnFatalError(err error) {
	s.mu.Lock()
	if s.closed || s.terminalErr != nil {
		s.mu.Unlock()
		return
	}
	s.terminalErr = err
	s.loading = false
	s.mu.Unlock()

	s.Notify(models.NewNotice(s.orderID, models.NoticeOrderUnavailable, models.NoticeError, errs.UserMessage(err)))

	ev := messages.NewOrderTrackingEvent(messages.EventTerminalError, s.id, s.orderID, s.userID)
	msg := err.Error()
	ev.Error = &msg
	s.publish(ev)
}

// Notify files n as an alert when critical and as a toast otherwise.
func (s *Session) Notify(n models.Notice) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if n.IsAlert() {
		s.alerts = append(s.alerts, n)
	} else {
		s.toasts = append(s.toasts, n)
		if over := len(s.toasts) - s.maxToasts; over > 0 {
			s.toasts = append([]models.Notice(nil), s.toasts[over:]...)
		}
	}
	warnings := s.tracker.WarningCount()
	s.mu.Unlock()

	ev := messages.NewOrderTrackingEvent(messages.EventNotice, s.id, s.orderID, s.userID)
	ev.WarningCount = warnings
	ev.Notice = &messages.Notice{ID: n.ID, Kind: string(n.Kind), Level: string(n.Level), Message: n.Message}
	s.publish(ev)
}

func (s *Session) StopPolling() {
	s.poller.Stop()
}

func (s *Session) publish(ev messages.OrderTrackingEvent) {
	if s.sink != nil {
		s.sink.Publish(ev)
	}
}

// View is the read model the tracking page renders.
type View struct {
	SessionID          string                `json:"sessionId"`
	OrderID            string                `json:"orderId"`
	UserID             string                `json:"userId"`
	CreatedAt          time.Time             `json:"createdAt"`
	Loading            bool                  `json:"loading"`
	Snapshot           *models.OrderSnapshot `json:"snapshot,omitempty"`
	Total              string                `json:"total,omitempty"`
	RewardPoints       int                   `json:"rewardPoints"`
	LastObservedStatus models.OrderStatus    `json:"lastObservedStatus,omitempty"`
	WarningCount       int                   `json:"warningCount"`
	LateralCount       int                   `json:"lateralCount"`
	TruckPosition      int                   `json:"truckPosition"`
	Effects            effects.State         `json:"effects"`
	Polling            poller.Stats          `json:"polling"`
	TerminalError      string                `json:"terminalError,omitempty"`
	LastError          string                `json:"lastError,omitempty"`
	Notices            []models.Notice       `json:"notices"`
	Alerts             []models.Notice       `json:"alerts"`
}

func (s *Session) View() View {
	s.mu.Lock()
	v := View{
		SessionID:          s.id,
		OrderID:            s.orderID,
		UserID:             s.userID,
		CreatedAt:          s.createdAt,
		Loading:            s.loading,
		LastObservedStatus: s.tracker.Last(),
		WarningCount:       s.tracker.WarningCount(),
		LateralCount:       s.tracker.LateralCount(),
		TruckPosition:      s.truckPos,
		LastError:          s.lastErr,
		Notices:            append([]models.Notice{}, s.toasts...),
		Alerts:             append([]models.Notice{}, s.alerts...),
	}
	if s.snapshot != nil {
		snap := *s.snapshot
		v.Snapshot = &snap
		v.Total = snap.Total().StringFixed(2)
		v.RewardPoints = snap.RewardPoints()
	}
	if s.terminalErr != nil {
		v.TerminalError = errs.UserMessage(s.terminalErr)
	}
	s.mu.Unlock()

	// gate and poller have their own locks; never nest them under s.mu
	v.Effects = s.gate.State()
	v.Polling = s.poller.Stats()
	return v
}
