package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/OrderTrack/config"
	"github.com/BearBump/OrderTrack/internal/broker/kafka"
	"github.com/BearBump/OrderTrack/internal/cache/rediscache"
	"github.com/BearBump/OrderTrack/internal/integrations/orders"
	"github.com/BearBump/OrderTrack/internal/integrations/orders/fake"
	"github.com/BearBump/OrderTrack/internal/integrations/orders/httpapi"
	"github.com/BearBump/OrderTrack/internal/services/effects"
	"github.com/BearBump/OrderTrack/internal/services/poller"
	"github.com/BearBump/OrderTrack/internal/services/reviews"
	"github.com/BearBump/OrderTrack/internal/services/sessions"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTrackerHTTPAddr   = ":8082"
	defaultRateLimitPerMin   = 600
	defaultReviewCacheTTL    = 5 * time.Minute
	defaultSinkShutdownGrace = 3 * time.Second
)

type eventProducer interface {
	sessions.Producer
	Close() error
}

type trackerFactories struct {
	newOrdersClient func(cfg *config.Config) orders.Client
	newRedis        func(cfg *config.Config) *redis.Client
	newProducer     func(cfg *config.Config) eventProducer
}

func defaultTrackerFactories() trackerFactories {
	return trackerFactories{
		newOrdersClient: func(cfg *config.Config) orders.Client {
			// Without a backend url the in-memory fake drives demo orders.
			oc := cfg.OrderTrack
			if oc.BackendBaseURL == "" || oc.BackendMode == "fake" {
				return fake.New()
			}
			return httpapi.New(oc.BackendBaseURL, oc.BackendToken).
				WithTimeout(config.Millis(oc.BackendTimeoutMs))
		},
		newRedis: func(cfg *config.Config) *redis.Client {
			return redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
		},
		newProducer: func(cfg *config.Config) eventProducer {
			return kafka.NewProducer(cfg.Kafka.Brokers())
		},
	}
}

func sessionsConfig(oc config.OrderTrackConfig) sessions.Config {
	rl := int64(oc.BackendRateLimitPerMinute)
	if rl <= 0 {
		rl = defaultRateLimitPerMin
	}
	return sessions.Config{
		Planner: poller.PlannerConfig{
			ConfirmedDelay: config.Millis(oc.PollConfirmedMs),
			AssignedDelay:  config.Millis(oc.PollAssignedMs),
			MovingDelay:    config.Millis(oc.PollMovingMs),
			DefaultDelay:   config.Millis(oc.PollDefaultMs),
		},
		Effects: effects.Config{
			PromptDelay:     config.Millis(oc.ReviewPromptDelayMs),
			SettleAttempts:  oc.ReviewSettleAttempts,
			SettleInterval:  config.Millis(oc.ReviewSettleIntervalMs),
			MutationTimeout: config.Millis(oc.MutationTimeoutMs),
		},
		MaxToasts:          oc.SessionMaxToasts,
		RateLimitPerMinute: rl,
	}
}

type trackerApp struct {
	manager *sessions.Manager
	sink    *sessions.KafkaSink
	reaper  *sessions.ReaperJob
	redis   *redis.Client
	prod    eventProducer
}

func newTrackerApp(ctx context.Context, cfg *config.Config, f trackerFactories) *trackerApp {
	oc := cfg.OrderTrack
	client := f.newOrdersClient(cfg)
	rdb := f.newRedis(cfg)
	prod := f.newProducer(cfg)

	reviewTTL := config.Seconds(oc.ReviewCacheTTLSeconds)
	if reviewTTL <= 0 {
		reviewTTL = defaultReviewCacheTTL
	}
	registry := reviews.NewRegistry(client, rediscache.NewFromClient(rdb), reviewTTL)
	sink := sessions.NewKafkaSink(prod, cfg.Kafka.OrderTrackingTopicName, oc.EventSinkBuffer)

	m := sessions.NewManager(ctx, client, registry, sink, sessionsConfig(oc)).
		WithRateLimiter(rediscache.NewRateLimiterFromClient(rdb))

	return &trackerApp{
		manager: m,
		sink:    sink,
		reaper:  sessions.NewReaperJob(m, config.Seconds(oc.SessionIdleTTLSeconds), ""),
		redis:   rdb,
		prod:    prod,
	}
}

// RunOrderTracker serves tracking sessions until ctx is cancelled.
func RunOrderTracker(ctx context.Context, cfg *config.Config, f trackerFactories, opts trackerHTTPOpts) error {
	app := newTrackerApp(ctx, cfg, f)
	defer app.close()

	sinkCtx, stopSink := context.WithCancel(context.Background())
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		_ = app.sink.Run(sinkCtx)
	}()
	defer func() {
		// Sessions publish their session_closed events while the manager
		// shuts down, so the sink stops after them.
		app.manager.Close()
		stopSink()
		select {
		case <-sinkDone:
		case <-time.After(defaultSinkShutdownGrace):
			slog.Warn("event sink did not flush in time")
		}
	}()

	if err := app.reaper.Start(); err != nil {
		return err
	}
	defer app.reaper.Stop()

	if opts.httpAddr == "" {
		opts.httpAddr = cfg.OrderTrack.TrackerHTTPAddr
	}
	opts.manager = app.manager
	opts.redis = app.redis
	opts.cfg = cfg

	slog.Info("order tracker started", "backend", backendName(cfg.OrderTrack), "topic", cfg.Kafka.OrderTrackingTopicName)
	return runTrackerHTTPServer(ctx, opts)
}

func (a *trackerApp) close() {
	if a.prod != nil {
		_ = a.prod.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func backendName(oc config.OrderTrackConfig) string {
	if oc.BackendBaseURL == "" || oc.BackendMode == "fake" {
		return "fake"
	}
	return oc.BackendBaseURL
}
