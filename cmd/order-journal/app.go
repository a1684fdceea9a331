package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/OrderTrack/internal/api/journal_api"
	"github.com/BearBump/OrderTrack/internal/broker/kafka"
	"github.com/BearBump/OrderTrack/internal/broker/messages"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/BearBump/OrderTrack/internal/services/journal"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type journalOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type consumerStats interface {
	Stats() kafka.ConsumerStats
}

type eventApplier interface {
	ApplyEvent(ctx context.Context, ev messages.OrderTrackingEvent) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleTrackingEvent turns undecodable or invalid events into poison so the
// consumer skips them. Storage errors stop consumption.
func handleTrackingEvent(ctx context.Context, svc eventApplier) func(key, value []byte) error {
	return func(_, value []byte) error {
		var ev messages.OrderTrackingEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return errors.Wrap(kafka.ErrPoison, err.Error())
		}
		if err := svc.ApplyEvent(ctx, ev); err != nil {
			if errors.Is(err, errs.ErrValidationFailed) {
				return errors.Wrap(kafka.ErrPoison, err.Error())
			}
			return err
		}
		return nil
	}
}

func runOrderJournal(ctx context.Context, opts journalOpts, svc *journal.Service, consumer kafkaConsumer, deps ...pinger) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runJournalHTTPServer(ctx, lis, newJournalRouter(svc, opts.swaggerPath, consumer, deps))
	}()

	consumeErr := make(chan error, 1)
	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		consumeErr <- consumer.Consume(ctx, handleTrackingEvent(ctx, svc))
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-consumeErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("kafka consumer stopped", "error", err)
		return err
	}
}

func newJournalRouter(svc *journal.Service, swaggerPath string, consumer kafkaConsumer, deps []pinger) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		for _, d := range deps {
			if err := d.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"not ready"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		sc, ok := consumer.(consumerStats)
		if !ok {
			_, _ = w.Write([]byte(`{"error":"consumer stats not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"consumer": sc.Stats()})
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	journal_api.New(svc).Routes(r)
	return r
}

func runJournalHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
