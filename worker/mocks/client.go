package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/absmach/fedcoord/pkg/fl"
)

// MockClient is a mock implementation of the worker.Client interface
type MockClient struct {
	mock.Mock
}

// Hello performs the handshake
func (m *MockClient) Hello(ctx context.Context) (fl.WorkerInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(fl.WorkerInfo), args.Error(1)
}

// Fit trains the model on the worker
func (m *MockClient) Fit(ctx context.Context, req fl.FitRequest) (fl.FitResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(fl.FitResponse), args.Error(1)
}

// Evaluate evaluates the model on the worker
func (m *MockClient) Evaluate(ctx context.Context, req fl.EvalRequest) (fl.EvalResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(fl.EvalResponse), args.Error(1)
}

// Close closes the connection
func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}
