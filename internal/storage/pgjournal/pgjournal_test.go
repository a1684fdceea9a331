package pgjournal

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGJournal_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "ordertrack_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/ordertrack_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Ping(ctx))

	t0 := time.Now().UTC().Truncate(time.Millisecond)
	event := func(typ, status string, at time.Time) models.JournalEvent {
		return models.JournalEvent{
			EventID: uuid.NewString(), Type: typ, SessionID: "s1", OrderID: "o1", UserID: "u1",
			Status: status, At: at,
		}
	}

	started := event("session_started", "", t0)
	applied, err := st.ApplyEvent(ctx, EventWrite{Event: started, Delta: StateDelta{SessionsDelta: 1}})
	require.NoError(t, err)
	require.True(t, applied)

	enroute := event("transition", "enroute", t0.Add(time.Second))
	_, err = st.ApplyEvent(ctx, EventWrite{Event: enroute, Delta: StateDelta{Status: "enroute"}})
	require.NoError(t, err)

	lateral := event("transition", "arrived", t0.Add(3*time.Second))
	lateral.WarningCount = 1
	_, err = st.ApplyEvent(ctx, EventWrite{Event: lateral, Delta: StateDelta{Status: "arrived", WarningCount: 1}})
	require.NoError(t, err)

	// redelivery is a no-op
	applied, err = st.ApplyEvent(ctx, EventWrite{Event: lateral, Delta: StateDelta{Status: "arrived", WarningCount: 1}})
	require.NoError(t, err)
	require.False(t, applied)

	// a late, older transition must not roll the status back
	late := event("transition", "collected", t0.Add(2*time.Second))
	_, err = st.ApplyEvent(ctx, EventWrite{Event: late, Delta: StateDelta{Status: "collected"}})
	require.NoError(t, err)

	kind := "review_prompt"
	prompt := event("notice", "", t0.Add(4*time.Second))
	prompt.NoticeKind = &kind
	_, err = st.ApplyEvent(ctx, EventWrite{Event: prompt, Delta: StateDelta{PromptedReview: true}})
	require.NoError(t, err)

	states, err := st.GetStates(ctx, []string{"o1", "missing"})
	require.NoError(t, err)
	require.Len(t, states, 1)
	s := states[0]
	require.Equal(t, "arrived", s.LastStatus)
	require.Equal(t, 1, s.WarningCount)
	require.Equal(t, 1, s.Sessions)
	require.True(t, s.PromptedReview)
	require.False(t, s.Cancelled)
	require.WithinDuration(t, t0.Add(4*time.Second), s.LastEventAt, time.Millisecond)

	evs, err := st.ListEvents(ctx, "o1", 10, 0)
	require.NoError(t, err)
	require.Len(t, evs, 5)
	require.Equal(t, prompt.EventID, evs[0].EventID)
	require.Equal(t, kind, *evs[0].NoticeKind)
	require.Equal(t, started.EventID, evs[4].EventID)

	page, err := st.ListEvents(ctx, "o1", 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)

	empty, err := st.GetStates(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}
