package middleware

import (
	"context"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Run(ctx context.Context) (err error) {
	ctx, span := tm.tracer.Start(ctx, "run")
	defer endSpan(span, &err)

	return tm.svc.Run(ctx)
}

func (tm *tracing) RunRound(ctx context.Context, n uint64) (rec round.Record, err error) {
	ctx, span := tm.tracer.Start(ctx, "run-round", trace.WithAttributes(
		attribute.Int64("round", int64(n)),
	))
	defer endSpan(span, &err)

	return tm.svc.RunRound(ctx, n)
}

func (tm *tracing) GetRound(ctx context.Context, n uint64) (round.Record, error) {
	ctx, span := tm.tracer.Start(ctx, "get-round", trace.WithAttributes(
		attribute.Int64("round", int64(n)),
	))
	defer span.End()

	return tm.svc.GetRound(ctx, n)
}

func (tm *tracing) ListRounds(ctx context.Context, offset, limit uint64) (round.Page, error) {
	ctx, span := tm.tracer.Start(ctx, "list-rounds", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRounds(ctx, offset, limit)
}

func (tm *tracing) GlobalModel(ctx context.Context) (coordinator.GlobalModel, error) {
	ctx, span := tm.tracer.Start(ctx, "global-model")
	defer span.End()

	return tm.svc.GlobalModel(ctx)
}

func (tm *tracing) Checkpoint(ctx context.Context, label string) (coordinator.GlobalModel, error) {
	ctx, span := tm.tracer.Start(ctx, "get-checkpoint", trace.WithAttributes(
		attribute.String("label", label),
	))
	defer span.End()

	return tm.svc.Checkpoint(ctx, label)
}

func (tm *tracing) ListWorkers(ctx context.Context, offset, limit uint64) (worker.WorkerPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-workers", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListWorkers(ctx, offset, limit)
}

func (tm *tracing) Status(ctx context.Context) (coordinator.Status, error) {
	ctx, span := tm.tracer.Start(ctx, "status")
	defer span.End()

	return tm.svc.Status(ctx)
}

// endSpan marks long running operations that failed.
func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}
