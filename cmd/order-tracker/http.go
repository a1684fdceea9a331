package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/OrderTrack/config"
	"github.com/BearBump/OrderTrack/internal/api/sessions_api"
	"github.com/BearBump/OrderTrack/internal/services/sessions"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"
)

type trackerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	manager *sessions.Manager
	redis   *redis.Client
	cfg     *config.Config
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTrackerRouter(opts trackerHTTPOpts) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.redis != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := opts.redis.Ping(ctx).Err(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, opts.manager.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusOK, map[string]string{"error": "config not wired"})
			return
		}
		// Operational settings only; the backend token stays out.
		oc := opts.cfg.OrderTrack
		writeJSON(w, http.StatusOK, map[string]any{
			"backend":                   backendName(oc),
			"backendTimeoutMs":          oc.BackendTimeoutMs,
			"pollConfirmedMs":           oc.PollConfirmedMs,
			"pollAssignedMs":            oc.PollAssignedMs,
			"pollMovingMs":              oc.PollMovingMs,
			"pollDefaultMs":             oc.PollDefaultMs,
			"backendRateLimitPerMinute": oc.BackendRateLimitPerMinute,
			"reviewPromptDelayMs":       oc.ReviewPromptDelayMs,
			"reviewSettleAttempts":      oc.ReviewSettleAttempts,
			"reviewSettleIntervalMs":    oc.ReviewSettleIntervalMs,
			"mutationTimeoutMs":         oc.MutationTimeoutMs,
			"sessionIdleTTLSeconds":     oc.SessionIdleTTLSeconds,
			"topic":                     opts.cfg.Kafka.OrderTrackingTopicName,
		})
	})

	// no-store plus a cachebuster so the docs page never shows a stale document
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	sessions_api.New(opts.manager).Routes(r)
	return r
}

func runTrackerHTTPServer(ctx context.Context, opts trackerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = defaultTrackerHTTPAddr
	}
	if opts.swaggerPath == "" {
		return fmt.Errorf("tracker swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("tracker swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newTrackerRouter(opts)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	err = srv.Serve(lis)
	if err == http.ErrServerClosed {
		return ctx.Err()
	}
	return err
}
