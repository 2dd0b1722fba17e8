package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/model"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/worker"
	"golang.org/x/sync/errgroup"
)

// Workers is the part of the worker registry the coordinator drives.
type Workers interface {
	Trainers() []worker.Worker
	Trainer(id string) (fl.Trainer, error)
	EvaluatorClient() (fl.Evaluator, error)
	List(offset, limit uint64) worker.WorkerPage
}

// dispatch sends the broadcast model to every trainer at once and waits
// for all of them. Results are in registry order; the broadcast model is
// only read.
func (svc *service) dispatch(ctx context.Context, n uint64, broadcast model.Snapshot, lr float64) []fl.Result {
	trainers := svc.workers.Trainers()
	results := make([]fl.Result, len(trainers))

	req := fl.FitRequest{
		Round:        n,
		Model:        broadcast,
		BatchSize:    svc.cfg.BatchSize,
		MaxBatches:   svc.cfg.MaxBatches,
		LearningRate: lr,
		Device:       svc.cfg.Device,
	}

	var g errgroup.Group
	for i, w := range trainers {
		g.Go(func() error {
			results[i] = svc.fit(ctx, w.ID, req)

			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (svc *service) fit(ctx context.Context, id string, req fl.FitRequest) fl.Result {
	begin := time.Now()

	res := func() fl.Result {
		client, err := svc.workers.Trainer(id)
		if err != nil {
			return fl.Failure(id, err)
		}

		ctx, cancel := svc.workerContext(ctx)
		defer cancel()

		resp, err := client.Fit(ctx, req)
		if err != nil {
			if cause := context.Cause(ctx); cause != nil {
				err = cause
			}

			return fl.Failure(id, err)
		}

		return fl.Success(id, resp)
	}()
	res.Duration = time.Since(begin)

	WorkerFitDuration.WithLabelValues(svc.cfg.RunID, id).Observe(res.Duration.Seconds())
	if !res.OK() {
		WorkerFailures.WithLabelValues(svc.cfg.RunID, id).Inc()
		svc.logger.Warn("Worker produced no model",
			slog.Uint64("round", req.Round),
			slog.String("worker_id", id),
			slog.String("duration", res.Duration.String()),
			slog.Any("error", res.Err),
		)
	}

	return res
}

// workerContext bounds a single worker request. Expiry is reported as
// fl.ErrWorkerTimeout through context.Cause.
func (svc *service) workerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if svc.cfg.WorkerTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeoutCause(ctx, svc.cfg.WorkerTimeout, fl.ErrWorkerTimeout)
}

func outcomes(results []fl.Result) []round.Outcome {
	out := make([]round.Outcome, len(results))
	for i, r := range results {
		out[i] = round.Outcome{
			WorkerID:   r.WorkerID,
			OK:         r.OK(),
			Loss:       r.Loss,
			NumSamples: r.NumSamples,
			Duration:   r.Duration,
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}

	return out
}
