package fake

import (
	"context"
	"testing"

	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/pkg/errs"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_ScriptAdvancesPerFetch(t *testing.T) {
	c := New()
	c.Seed("o1", "u1", models.OrderStatusConfirmed, models.OrderStatusEnRoute, models.OrderStatusCompleted)
	ctx := context.Background()

	var got []models.OrderStatus
	for i := 0; i < 5; i++ {
		snap, err := c.FetchOrder(ctx, "o1")
		require.NoError(t, err)
		require.Equal(t, "o1", snap.ID)
		got = append(got, snap.Status)
	}
	require.Equal(t, []models.OrderStatus{
		models.OrderStatusConfirmed,
		models.OrderStatusEnRoute,
		models.OrderStatusCompleted,
		models.OrderStatusCompleted,
		models.OrderStatusCompleted,
	}, got)
	require.Equal(t, 5, c.Calls(OpFetch))
}

func TestFakeClient_UnseededOrderIsDeterministic(t *testing.T) {
	a, b := New(), New()
	for i := 0; i < 8; i++ {
		sa, err := a.FetchOrder(context.Background(), "A1")
		require.NoError(t, err)
		sb, err := b.FetchOrder(context.Background(), "A1")
		require.NoError(t, err)
		require.Equal(t, sa.Status, sb.Status)
	}
}

func TestFakeClient_FailNext(t *testing.T) {
	c := New()
	c.Seed("o1", "u1")
	c.FailNext(OpFetch, errs.Transient(nil))

	_, err := c.FetchOrder(context.Background(), "o1")
	require.ErrorIs(t, err, errs.ErrTransient)

	snap, err := c.FetchOrder(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusConfirmed, snap.Status)
}

func TestFakeClient_ReviewCreateThenConflict(t *testing.T) {
	c := New()
	c.Seed("o1", "u1", models.OrderStatusCompleted)
	ctx := context.Background()
	_, err := c.FetchOrder(ctx, "o1")
	require.NoError(t, err)

	rec, err := c.CreateReview(ctx, "o1", models.ReviewInput{Rating: 4, Comment: "ok"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	_, err = c.CreateReview(ctx, "o1", models.ReviewInput{Rating: 5})
	require.ErrorIs(t, err, errs.ErrConflict)

	upd, err := c.UpdateReview(ctx, "o1", models.ReviewInput{Rating: 5, Comment: "great"})
	require.NoError(t, err)
	require.Equal(t, rec.ID, upd.ID)

	list, err := c.ListReviews(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 5, list[0].Rating)
}

func TestFakeClient_ListLag(t *testing.T) {
	c := New().WithListLag(2)
	c.Seed("o1", "u1", models.OrderStatusCompleted)
	ctx := context.Background()
	_, _ = c.FetchOrder(ctx, "o1")

	_, err := c.CreateReview(ctx, "o1", models.ReviewInput{Rating: 3})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		list, err := c.ListReviews(ctx, "u1")
		require.NoError(t, err)
		require.Empty(t, list)
	}
	list, err := c.ListReviews(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestFakeClient_Cancel(t *testing.T) {
	c := New()
	c.Seed("o1", "u1", models.OrderStatusConfirmed, models.OrderStatusCollected)
	ctx := context.Background()

	require.ErrorIs(t, c.CancelOrder(ctx, models.CancellationRequest{OrderID: "nope"}), errs.ErrNotFound)

	snap, _ := c.FetchOrder(ctx, "o1")
	require.Equal(t, models.OrderStatusConfirmed, snap.Status)
	require.NoError(t, c.CancelOrder(ctx, models.CancellationRequest{OrderID: "o1", Reason: models.CancelReasonTooSlow}))

	snap, _ = c.FetchOrder(ctx, "o1")
	require.Equal(t, models.OrderStatusCancelled, snap.Status)

	c.Seed("o2", "u1", models.OrderStatusCollected)
	_, _ = c.FetchOrder(ctx, "o2")
	err := c.CancelOrder(ctx, models.CancellationRequest{OrderID: "o2", Reason: models.CancelReasonTooSlow})
	require.ErrorIs(t, err, errs.ErrValidationFailed)
}
