package trainer

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/transport/ws"
)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    ws.Backend
}

func Logging(logger *slog.Logger, svc ws.Backend) ws.Backend {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Info(ctx context.Context) (info fl.WorkerInfo, err error) {
	defer func() {
		if err != nil {
			lm.logger.Warn("Handshake failed", slog.Any("error", err))

			return
		}
		lm.logger.Info("Handshake completed successfully",
			slog.String("role", string(info.Role)),
			slog.Uint64("samples", info.NumSamples),
		)
	}()

	return lm.svc.Info(ctx)
}

func (lm *loggingMiddleware) Fit(ctx context.Context, req fl.FitRequest) (resp fl.FitResponse, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("request",
				slog.Uint64("round", req.Round),
				slog.Int("batch_size", req.BatchSize),
				slog.Int("max_batches", req.MaxBatches),
				slog.Float64("learning_rate", req.LearningRate),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Fit failed", args...)

			return
		}
		if resp.Loss != nil {
			args = append(args, slog.Float64("loss", *resp.Loss))
		}
		args = append(args, slog.Uint64("samples", resp.NumSamples))
		lm.logger.Info("Fit completed successfully", args...)
	}(time.Now())

	return lm.svc.Fit(ctx, req)
}

func (lm *loggingMiddleware) Evaluate(ctx context.Context, req fl.EvalRequest) (resp fl.EvalResponse, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("label", req.Label),
			slog.String("dataset", req.DatasetKey),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Evaluate failed", args...)

			return
		}
		args = append(args,
			slog.Uint64("correct", resp.Correct),
			slog.Uint64("total", resp.Total),
		)
		lm.logger.Info("Evaluate completed successfully", args...)
	}(time.Now())

	return lm.svc.Evaluate(ctx, req)
}
