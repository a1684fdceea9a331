package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/OrderTrack/config"
	"github.com/BearBump/OrderTrack/internal/broker/kafka"
	"github.com/BearBump/OrderTrack/internal/broker/messages"
	"github.com/BearBump/OrderTrack/internal/cache/rediscache"
	"github.com/BearBump/OrderTrack/internal/services/journal"
	"github.com/BearBump/OrderTrack/internal/storage/pgjournal"
)

const (
	defaultJournalHTTPAddr = ":8080"
	defaultConsumerGroup   = "order-journal"
	defaultCurrentStateTTL = 10 * time.Minute
)

type journalApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     journalOpts
	svc      *journal.Service
	consumer *kafka.Consumer
	store    *pgjournal.Storage
	cache    *rediscache.RedisCache
}

func mustBootstrapOrderJournal() *journalApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to parse config, %v", err))
	}

	httpAddr := cfg.OrderTrack.JournalHTTPAddr
	if httpAddr == "" {
		httpAddr = defaultJournalHTTPAddr
	}
	consumerGroup := cfg.OrderTrack.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = defaultConsumerGroup
	}
	topic := cfg.Kafka.OrderTrackingTopicName
	if topic == "" {
		topic = messages.TopicOrderTracking
	}
	stateTTL := config.Seconds(cfg.OrderTrack.CurrentStateTTLSeconds)
	if stateTTL <= 0 {
		stateTTL = defaultCurrentStateTTL
	}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)
	rc := rediscache.New(cfg.Redis.Addr())
	svc := journal.New(st, rc, stateTTL)
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers(), topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &journalApp{
		ctx:    ctx,
		cancel: cancel,
		opts: journalOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		svc:      svc,
		consumer: consumer,
		store:    st,
		cache:    rc,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgjournal.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgjournal.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *journalApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *journalApp) Run() error {
	return runOrderJournal(a.ctx, a.opts, a.svc, a.consumer, a.store, a.cache)
}
