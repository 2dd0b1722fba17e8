package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/worker"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Run(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Error("Federated run failed", args...)

			return
		}
		lm.logger.Info("Federated run completed successfully", args...)
	}(time.Now())

	return lm.svc.Run(ctx)
}

func (lm *loggingMiddleware) RunRound(ctx context.Context, n uint64) (rec round.Record, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.Uint64("number", n),
				slog.Float64("learning_rate", rec.LearningRate),
				slog.Int("contributors", rec.Contributors),
				slog.Int("failed", rec.Failed()),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Run round failed", args...)

			return
		}
		lm.logger.Info("Run round completed successfully", args...)
	}(time.Now())

	return lm.svc.RunRound(ctx, n)
}

func (lm *loggingMiddleware) GetRound(ctx context.Context, n uint64) (rec round.Record, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("round", n),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get round failed", args...)

			return
		}
		lm.logger.Info("Get round completed successfully", args...)
	}(time.Now())

	return lm.svc.GetRound(ctx, n)
}

func (lm *loggingMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (page round.Page, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List rounds failed", args...)

			return
		}
		lm.logger.Info("List rounds completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRounds(ctx, offset, limit)
}

func (lm *loggingMiddleware) GlobalModel(ctx context.Context) (gm coordinator.GlobalModel, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("model",
				slog.Uint64("round", gm.Round),
				slog.Int("layers", gm.Model.Len()),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get global model failed", args...)

			return
		}
		lm.logger.Info("Get global model completed successfully", args...)
	}(time.Now())

	return lm.svc.GlobalModel(ctx)
}

func (lm *loggingMiddleware) Checkpoint(ctx context.Context, label string) (gm coordinator.GlobalModel, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("checkpoint",
				slog.String("label", label),
				slog.Uint64("round", gm.Round),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get checkpoint failed", args...)

			return
		}
		lm.logger.Info("Get checkpoint completed successfully", args...)
	}(time.Now())

	return lm.svc.Checkpoint(ctx, label)
}

func (lm *loggingMiddleware) ListWorkers(ctx context.Context, offset, limit uint64) (page worker.WorkerPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List workers failed", args...)

			return
		}
		lm.logger.Info("List workers completed successfully", args...)
	}(time.Now())

	return lm.svc.ListWorkers(ctx, offset, limit)
}

func (lm *loggingMiddleware) Status(ctx context.Context) (st coordinator.Status, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get status failed", args...)

			return
		}
		lm.logger.Debug("Get status completed successfully", args...)
	}(time.Now())

	return lm.svc.Status(ctx)
}
