package mocks

import (
	"context"

	"github.com/BearBump/OrderTrack/internal/models"
	"github.com/BearBump/OrderTrack/internal/storage/pgjournal"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a testify mock of journal.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ApplyEvent(ctx context.Context, w pgjournal.EventWrite) (bool, error) {
	args := m.Called(ctx, w)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) GetStates(ctx context.Context, orderIDs []string) ([]*models.OrderTrackingState, error) {
	args := m.Called(ctx, orderIDs)
	var out []*models.OrderTrackingState
	if v := args.Get(0); v != nil {
		out = v.([]*models.OrderTrackingState)
	}
	return out, args.Error(1)
}

func (m *MockRepository) ListEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.JournalEvent, error) {
	args := m.Called(ctx, orderID, limit, offset)
	var out []*models.JournalEvent
	if v := args.Get(0); v != nil {
		out = v.([]*models.JournalEvent)
	}
	return out, args.Error(1)
}
