package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/OrderTrack/config"
	"github.com/BearBump/OrderTrack/internal/broker/messages"
	"github.com/BearBump/OrderTrack/internal/integrations/orders"
	"github.com/BearBump/OrderTrack/internal/integrations/orders/fake"
	"github.com/BearBump/OrderTrack/internal/integrations/orders/httpapi"
	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/services/sessions"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type recProducer struct {
	mu     sync.Mutex
	events []messages.OrderTrackingEvent
	closed bool
}

func (p *recProducer) PublishJSON(_ context.Context, _ string, _ string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, v.(messages.OrderTrackingEvent))
	return nil
}

func (p *recProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recProducer) types() []messages.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]messages.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestDefaultTrackerFactories_SelectOrdersClient(t *testing.T) {
	f := defaultTrackerFactories()

	c := f.newOrdersClient(&config.Config{})
	_, ok := c.(*fake.FakeClient)
	require.True(t, ok)

	c = f.newOrdersClient(&config.Config{OrderTrack: config.OrderTrackConfig{
		BackendBaseURL: "http://orders:9000",
		BackendMode:    "fake",
	}})
	_, ok = c.(*fake.FakeClient)
	require.True(t, ok)

	c = f.newOrdersClient(&config.Config{OrderTrack: config.OrderTrackConfig{
		BackendBaseURL:   "http://orders:9000",
		BackendMode:      "http",
		BackendTimeoutMs: 500,
	}})
	_, ok = c.(*httpapi.Client)
	require.True(t, ok)
}

func TestDefaultTrackerFactories_ProducerAndRedis_NonNil(t *testing.T) {
	f := defaultTrackerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	p := f.newProducer(cfg)
	require.NotNil(t, p)
	_ = p.Close()
	rdb := f.newRedis(cfg)
	require.NotNil(t, rdb)
	_ = rdb.Close()
}

func TestSessionsConfig(t *testing.T) {
	sc := sessionsConfig(config.OrderTrackConfig{
		PollMovingMs:        1500,
		ReviewPromptDelayMs: 250,
		SessionMaxToasts:    7,
	})
	require.Equal(t, 1500*time.Millisecond, sc.Planner.MovingDelay)
	require.Zero(t, sc.Planner.AssignedDelay)
	require.Equal(t, 250*time.Millisecond, sc.Effects.PromptDelay)
	require.Equal(t, 7, sc.MaxToasts)
	require.EqualValues(t, defaultRateLimitPerMin, sc.RateLimitPerMinute)

	sc = sessionsConfig(config.OrderTrackConfig{BackendRateLimitPerMinute: 30})
	require.EqualValues(t, 30, sc.RateLimitPerMinute)
}

func testFactories(t *testing.T, client *fake.FakeClient, prod *recProducer) trackerFactories {
	t.Helper()
	mr := miniredis.RunT(t)
	return trackerFactories{
		newOrdersClient: func(*config.Config) orders.Client { return client },
		newRedis: func(*config.Config) *redis.Client {
			return redis.NewClient(&redis.Options{Addr: mr.Addr()})
		},
		newProducer: func(*config.Config) eventProducer { return prod },
	}
}

func testSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func TestRunOrderTracker_ServesSessionsAndPublishes(t *testing.T) {
	client := fake.New()
	client.Seed("o1", "u1", models.OrderStatusConfirmed, models.OrderStatusAssignToCourier)
	prod := &recProducer{}

	cfg := &config.Config{OrderTrack: config.OrderTrackConfig{
		PollConfirmedMs: 5,
		PollAssignedMs:  5,
		PollMovingMs:    5,
		PollDefaultMs:   5,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunOrderTracker(ctx, cfg, testFactories(t, client, prod), trackerHTTPOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: testSwagger(t),
			onListen:    func(addr string) { addrCh <- addr },
		})
	}()
	base := "http://" + <-addrCh

	body, _ := json.Marshal(map[string]string{"orderId": "o1", "userId": "u1"})
	resp, err := http.Post(base+"/sessions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var st sessions.Stats
		if json.NewDecoder(resp.Body).Decode(&st) != nil {
			return false
		}
		return st.Sessions == 1 && st.TotalFetched >= 2
	}, 2*time.Second, 5*time.Millisecond)

	for _, path := range []string{"/healthz", "/readyz", "/config", "/swagger.json"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.NotContains(t, string(b), "backendToken", path)
	}

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting tracker to stop")
	}

	types := prod.types()
	require.NotEmpty(t, types)
	require.Equal(t, messages.EventSessionStarted, types[0])
	require.Contains(t, types, messages.EventTransition)
	require.Equal(t, messages.EventSessionClosed, types[len(types)-1])
	require.True(t, prod.closed)
}

func TestRunOrderTracker_SwaggerRequired(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := RunOrderTracker(ctx, &config.Config{}, testFactories(t, fake.New(), &recProducer{}), trackerHTTPOpts{
		httpAddr: "127.0.0.1:0",
	})
	require.Error(t, err)
}
