package events

import (
	"context"
	"time"

	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/absmach/fedcoord/pkg/round"
)

type RoundStarted struct {
	RunID        string    `json:"run_id"`
	Round        uint64    `json:"round"`
	LearningRate float64   `json:"learning_rate"`
	Workers      []string  `json:"workers"`
	Timestamp    time.Time `json:"timestamp"`
}

type EvaluationDone struct {
	RunID      string           `json:"run_id"`
	Round      uint64           `json:"round"`
	Evaluation round.Evaluation `json:"evaluation"`
	Timestamp  time.Time        `json:"timestamp"`
}

type RunFinished struct {
	RunID     string    `json:"run_id"`
	Rounds    uint64    `json:"rounds"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Emitter announces training progress to external observers.
type Emitter interface {
	RoundStarted(ctx context.Context, e RoundStarted) error
	RoundCompleted(ctx context.Context, r round.Record) error
	Evaluation(ctx context.Context, e EvaluationDone) error
	RunFinished(ctx context.Context, e RunFinished) error
}

type mqttEmitter struct {
	pubsub mqtt.PubSub
	topics *TopicBuilder
}

func NewMQTTEmitter(pubsub mqtt.PubSub, topics *TopicBuilder) Emitter {
	return &mqttEmitter{
		pubsub: pubsub,
		topics: topics,
	}
}

func (e *mqttEmitter) RoundStarted(ctx context.Context, ev RoundStarted) error {
	return e.pubsub.Publish(ctx, e.topics.RoundStartedTopic(), ev)
}

func (e *mqttEmitter) RoundCompleted(ctx context.Context, r round.Record) error {
	return e.pubsub.Publish(ctx, e.topics.RoundCompletedTopic(), r)
}

func (e *mqttEmitter) Evaluation(ctx context.Context, ev EvaluationDone) error {
	return e.pubsub.Publish(ctx, e.topics.EvaluationTopic(), ev)
}

func (e *mqttEmitter) RunFinished(ctx context.Context, ev RunFinished) error {
	return e.pubsub.Publish(ctx, e.topics.RunTopic(), ev)
}

type noopEmitter struct{}

// NewNoopEmitter is used when no broker is configured.
func NewNoopEmitter() Emitter {
	return noopEmitter{}
}

func (noopEmitter) RoundStarted(context.Context, RoundStarted) error { return nil }

func (noopEmitter) RoundCompleted(context.Context, round.Record) error { return nil }

func (noopEmitter) Evaluation(context.Context, EvaluationDone) error { return nil }

func (noopEmitter) RunFinished(context.Context, RunFinished) error { return nil }
