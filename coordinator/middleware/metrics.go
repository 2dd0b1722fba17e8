package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/worker"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Run(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "run").Add(1)
		mm.latency.With("method", "run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Run(ctx)
}

func (mm *metricsMiddleware) RunRound(ctx context.Context, n uint64) (round.Record, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "run-round").Add(1)
		mm.latency.With("method", "run-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.RunRound(ctx, n)
}

func (mm *metricsMiddleware) GetRound(ctx context.Context, n uint64) (round.Record, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-round").Add(1)
		mm.latency.With("method", "get-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetRound(ctx, n)
}

func (mm *metricsMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (round.Page, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-rounds").Add(1)
		mm.latency.With("method", "list-rounds").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRounds(ctx, offset, limit)
}

func (mm *metricsMiddleware) GlobalModel(ctx context.Context) (coordinator.GlobalModel, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "global-model").Add(1)
		mm.latency.With("method", "global-model").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GlobalModel(ctx)
}

func (mm *metricsMiddleware) Checkpoint(ctx context.Context, label string) (coordinator.GlobalModel, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-checkpoint").Add(1)
		mm.latency.With("method", "get-checkpoint").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Checkpoint(ctx, label)
}

func (mm *metricsMiddleware) ListWorkers(ctx context.Context, offset, limit uint64) (worker.WorkerPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-workers").Add(1)
		mm.latency.With("method", "list-workers").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListWorkers(ctx, offset, limit)
}

func (mm *metricsMiddleware) Status(ctx context.Context) (coordinator.Status, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "status").Add(1)
		mm.latency.With("method", "status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Status(ctx)
}
