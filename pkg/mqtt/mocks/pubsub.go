package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/absmach/fedcoord/pkg/mqtt"
)

// MockPubSub is a mock implementation of the mqtt.PubSub interface
type MockPubSub struct {
	mock.Mock
}

// Publish publishes a message to the specified topic
func (m *MockPubSub) Publish(ctx context.Context, topic string, msg any) error {
	args := m.Called(ctx, topic, msg)
	return args.Error(0)
}

// Subscribe subscribes to messages on the specified topic
func (m *MockPubSub) Subscribe(ctx context.Context, topic string, handler mqtt.Handler) error {
	args := m.Called(ctx, topic, handler)
	return args.Error(0)
}

// Unsubscribe removes the subscription for the topic
func (m *MockPubSub) Unsubscribe(ctx context.Context, topic string) error {
	args := m.Called(ctx, topic)
	return args.Error(0)
}

// Disconnect closes the MQTT connection
func (m *MockPubSub) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
