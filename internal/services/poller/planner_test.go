package poller

import (
	"testing"
	"time"

	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/stretchr/testify/suite"
)

type PlannerSuite struct {
	suite.Suite
}

func (s *PlannerSuite) TestNextDelay_Defaults() {
	cases := []struct {
		status models.OrderStatus
		delay  time.Duration
	}{
		{models.OrderStatusConfirmed, 5 * time.Second},
		{models.OrderStatusAssignToCourier, 100 * time.Second},
		{models.OrderStatusEnRoute, 2 * time.Second},
		{models.OrderStatusArrived, 2 * time.Second},
		{models.OrderStatusCollected, 5 * time.Second},
		{models.OrderStatusUnknown, 5 * time.Second},
	}
	for _, tc := range cases {
		d, ok := NextDelay(tc.status)
		s.True(ok, tc.status)
		s.Equal(tc.delay, d, tc.status)
	}
}

func (s *PlannerSuite) TestNextDelay_TerminalStops() {
	_, ok := NextDelay(models.OrderStatusCompleted)
	s.False(ok)
	_, ok = NextDelay(models.OrderStatusCancelled)
	s.False(ok)
}

func (s *PlannerSuite) TestNewPlanner_FillsDefaults() {
	p := NewPlanner(PlannerConfig{MovingDelay: 10 * time.Millisecond})
	cfg := p.Config()
	s.Equal(10*time.Millisecond, cfg.MovingDelay)
	s.Equal(5*time.Second, cfg.ConfirmedDelay)
	s.Equal(100*time.Second, cfg.AssignedDelay)
	s.Equal(5*time.Second, cfg.DefaultDelay)
}

func (s *PlannerSuite) TestRetryDelay_KeepsCadence() {
	p := DefaultPlanner()
	s.Equal(100*time.Second, p.RetryDelay(models.OrderStatusAssignToCourier))
	s.Equal(5*time.Second, p.RetryDelay(models.OrderStatusCompleted))
}

func TestPlannerSuite(t *testing.T) {
	suite.Run(t, new(PlannerSuite))
}
