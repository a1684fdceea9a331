package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/OrderTrack/internal/broker/messages"
	"github.com/BearBump/OrderTrack/internal/integrations/orders/fake"
	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/BearBump/OrderTrack/internal/services/effects"
	"github.com/BearBump/OrderTrack/internal/services/poller"
	"github.com/BearBump/OrderTrack/internal/services/reviews"
	"github.com/stretchr/testify/require"
)

var fastConfig = Config{
	Planner: poller.PlannerConfig{
		ConfirmedDelay: 2 * time.Millisecond,
		AssignedDelay:  2 * time.Millisecond,
		MovingDelay:    2 * time.Millisecond,
		DefaultDelay:   2 * time.Millisecond,
	},
	Effects: effects.Config{
		PromptDelay:     10 * time.Millisecond,
		SettleAttempts:  3,
		SettleInterval:  2 * time.Millisecond,
		MutationTimeout: time.Second,
	},
}

type recSink struct {
	mu     sync.Mutex
	events []messages.OrderTrackingEvent
}

func (s *recSink) Publish(ev messages.OrderTrackingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recSink) count(typ messages.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (s *recSink) transitions() []messages.OrderTrackingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []messages.OrderTrackingEvent
	for _, ev := range s.events {
		if ev.Type == messages.EventTransition {
			out = append(out, ev)
		}
	}
	return out
}

func newManager(t *testing.T, c *fake.FakeClient, cfg Config) (*Manager, *recSink) {
	t.Helper()
	sink := &recSink{}
	m := NewManager(context.Background(), c, reviews.NewRegistry(c, nil, 0), sink, cfg)
	t.Cleanup(m.Close)
	return m, sink
}

func countNotices(v View, kind models.NoticeKind) int {
	n := 0
	for _, x := range append(v.Notices, v.Alerts...) {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

func TestSession_ChattyDeliveryScenario(t *testing.T) {
	c := fake.New()
	c.Seed("o1", "u1",
		models.OrderStatusConfirmed,
		models.OrderStatusAssignToCourier,
		models.OrderStatusEnRoute,
		models.OrderStatusArrived,
		models.OrderStatusEnRoute,
		models.OrderStatusCompleted,
	)
	m, sink := newManager(t, c, fastConfig)

	s, err := m.Mount("o1", "u1")
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on completed")
	}
	require.Eventually(t, func() bool {
		return countNotices(s.View(), models.NoticeReviewPrompt) == 1
	}, time.Second, 2*time.Millisecond)

	v := s.View()
	require.Equal(t, models.OrderStatusCompleted, v.LastObservedStatus)
	require.Equal(t, 1, v.WarningCount)
	require.Equal(t, 1, v.LateralCount)
	require.Equal(t, 1, countNotices(v, models.NoticeStatusWarning))
	require.Equal(t, 100, v.TruckPosition)
	require.Equal(t, "16.90", v.Total)
	require.Equal(t, 16, v.RewardPoints)
	require.False(t, v.Loading)
	require.True(t, v.Effects.PromptedReview)
	require.Equal(t, effects.AffordanceCreate, v.Effects.Affordance)
	require.Equal(t, 6, c.Calls(fake.OpFetch))

	// no more prompts once latched
	time.Sleep(5 * fastConfig.Effects.PromptDelay)
	require.Equal(t, 1, countNotices(s.View(), models.NoticeReviewPrompt))

	kinds := make([]string, 0)
	for _, ev := range sink.transitions() {
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []string{"initial", "advance", "advance", "advance", "lateral", "advance"}, kinds)
	require.Equal(t, 1, sink.count(messages.EventSessionStarted))
}

func TestSession_FatalErrorStopsAndSurfaces(t *testing.T) {
	c := fake.New()
	c.FailNext(fake.OpFetch, errs.NotFound("order", "o404"))
	m, sink := newManager(t, c, fastConfig)

	s, err := m.Mount("o404", "u1")
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("poller kept running after a fatal error")
	}

	require.Eventually(t, func() bool { return sink.count(messages.EventTerminalError) == 1 }, time.Second, time.Millisecond)
	v := s.View()
	require.NotEmpty(t, v.TerminalError)
	require.Nil(t, v.Snapshot)
	require.False(t, v.Loading)
	require.Equal(t, 1, countNotices(v, models.NoticeOrderUnavailable))
	require.Equal(t, 1, c.Calls(fake.OpFetch))
}

func TestSession_TransientErrorKeepsSnapshot(t *testing.T) {
	c := fake.New()
	c.Seed("o1", "u1", models.OrderStatusEnRoute, models.OrderStatusCompleted)
	m, _ := newManager(t, c, Config{
		Planner: poller.PlannerConfig{MovingDelay: 50 * time.Millisecond, DefaultDelay: 50 * time.Millisecond},
		Effects: fastConfig.Effects,
	})

	s, err := m.Mount("o1", "u1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.View().Snapshot != nil }, time.Second, time.Millisecond)

	c.FailNext(fake.OpFetch, errs.Transient(context.DeadlineExceeded))
	s.Refresh()
	require.Eventually(t, func() bool { return s.View().LastError != "" }, time.Second, time.Millisecond)

	v := s.View()
	require.Equal(t, models.OrderStatusEnRoute, v.Snapshot.Status)
	require.Empty(t, v.TerminalError)
	require.Zero(t, countNotices(v, models.NoticeOrderUnavailable))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("poller did not recover after a transient error")
	}
	require.Equal(t, models.OrderStatusCompleted, s.View().Snapshot.Status)
}

func TestSession_NoticesAndAlerts(t *testing.T) {
	c := fake.New()
	c.Seed("o1", "u1", models.OrderStatusCompleted)
	cfg := fastConfig
	cfg.MaxToasts = 3
	m, _ := newManager(t, c, cfg)

	s, err := m.Mount("o1", "u1")
	require.NoError(t, err)
	<-s.Done()

	for i := 0; i < 5; i++ {
		s.Notify(models.NewNotice("o1", models.NoticeSafetyReportSent, models.NoticeSuccess, "ok"))
	}
	alert := models.NewNotice("o1", models.NoticeEmergencyFailed, models.NoticeCritical, "call for help")
	s.Notify(alert)

	v := s.View()
	require.Len(t, v.Notices, 3)
	require.Len(t, v.Alerts, 1)
	require.Equal(t, alert.ID, v.Alerts[0].ID)

	require.False(t, s.AckAlert("nope"))
	require.True(t, s.AckAlert(alert.ID))
	require.Empty(t, s.View().Alerts)
}

func TestSession_CancelStopsPollingAndRedirects(t *testing.T) {
	c := fake.New()
	c.Seed("o1", "u1", models.OrderStatusConfirmed)
	m, _ := newManager(t, c, Config{
		Planner: poller.PlannerConfig{ConfirmedDelay: 5 * time.Millisecond},
		Effects: fastConfig.Effects,
	})

	s, err := m.Mount("o1", "u1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.View().Snapshot != nil }, time.Second, time.Millisecond)

	err = s.Gate().SubmitCancel(context.Background(), models.CancelReasonChangedMind, "")
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("polling kept going after cancel")
	}
	v := s.View()
	require.True(t, v.Effects.Redirected)
	require.Equal(t, 1, countNotices(v, models.NoticeRedirect))
	require.Equal(t, 1, countNotices(v, models.NoticeCancelSucceeded))
}

func TestSession_PollingSwitch(t *testing.T) {
	c := fake.New()
	c.Seed("o1", "u1", models.OrderStatusConfirmed)
	m, _ := newManager(t, c, fastConfig)

	s, err := m.Mount("o1", "u1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.Calls(fake.OpFetch) > 0 }, time.Second, time.Millisecond)

	s.SetPolling(false)
	time.Sleep(10 * time.Millisecond)
	before := c.Calls(fake.OpFetch)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, before, c.Calls(fake.OpFetch))
	require.False(t, s.View().Polling.Enabled)

	s.SetPolling(true)
	require.Eventually(t, func() bool { return c.Calls(fake.OpFetch) > before }, time.Second, time.Millisecond)
}
