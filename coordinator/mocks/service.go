package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/worker"
)

// MockService is a mock implementation of the coordinator.Service interface
type MockService struct {
	mock.Mock
}

// Run executes the remaining rounds
func (m *MockService) Run(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// RunRound executes a single round
func (m *MockService) RunRound(ctx context.Context, n uint64) (round.Record, error) {
	args := m.Called(ctx, n)
	return args.Get(0).(round.Record), args.Error(1)
}

// GetRound retrieves a round record
func (m *MockService) GetRound(ctx context.Context, n uint64) (round.Record, error) {
	args := m.Called(ctx, n)
	return args.Get(0).(round.Record), args.Error(1)
}

// ListRounds lists round records with pagination
func (m *MockService) ListRounds(ctx context.Context, offset, limit uint64) (round.Page, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(round.Page), args.Error(1)
}

// GlobalModel returns the current broadcast model
func (m *MockService) GlobalModel(ctx context.Context) (coordinator.GlobalModel, error) {
	args := m.Called(ctx)
	return args.Get(0).(coordinator.GlobalModel), args.Error(1)
}

// Checkpoint loads a stored model by label
func (m *MockService) Checkpoint(ctx context.Context, label string) (coordinator.GlobalModel, error) {
	args := m.Called(ctx, label)
	return args.Get(0).(coordinator.GlobalModel), args.Error(1)
}

// ListWorkers lists registered workers
func (m *MockService) ListWorkers(ctx context.Context, offset, limit uint64) (worker.WorkerPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(worker.WorkerPage), args.Error(1)
}

// Status reports the run progress
func (m *MockService) Status(ctx context.Context) (coordinator.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(coordinator.Status), args.Error(1)
}
