package sessions

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultIdleTTL      = 2 * time.Minute
	DefaultReapSchedule = "@every 30s"
)

// ReaperJob unmounts sessions whose view stopped asking for them.
type ReaperJob struct {
	manager  *Manager
	ttl      time.Duration
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewReaperJob(m *Manager, ttl time.Duration, schedule string) *ReaperJob {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if schedule == "" {
		schedule = DefaultReapSchedule
	}
	return &ReaperJob{
		manager:  m,
		ttl:      ttl,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "session_reaper_job"),
	}
}

func (j *ReaperJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.RunOnce); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("session reaper started", "schedule", j.schedule, "idle_ttl", j.ttl.String())
	return nil
}

// RunOnce reaps immediately.
func (j *ReaperJob) RunOnce() {
	if n := j.manager.ReapIdle(time.Now().UTC(), j.ttl); n > 0 {
		j.logger.Info("idle sessions reaped", "count", n, "remaining", j.manager.Len())
	}
}

// Stop waits for a running reap to finish.
func (j *ReaperJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("session reaper stopped")
}
