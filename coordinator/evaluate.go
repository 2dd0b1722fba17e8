package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/model"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/worker"
)

type candidate struct {
	label string
	model model.Snapshot
}

// evaluate scores every contributed model and the aggregate on the
// evaluator. Failures are recorded on the evaluation and never abort the
// round.
func (svc *service) evaluate(ctx context.Context, n uint64, results []fl.Result, aggregate model.Snapshot) []round.Evaluation {
	candidates := make([]candidate, 0, len(results)+1)
	for _, r := range results {
		if r.OK() {
			candidates = append(candidates, candidate{label: r.WorkerID, model: *r.Model})
		}
	}
	candidates = append(candidates, candidate{label: FederatedLabel, model: aggregate})

	evaluator, connErr := svc.workers.EvaluatorClient()

	evals := make([]round.Evaluation, 0, len(candidates))
	for _, c := range candidates {
		ev := round.Evaluation{Label: c.label}
		if connErr != nil {
			ev.Error = connErr.Error()
			evals = append(evals, ev)

			continue
		}

		resp, err := svc.evaluateOne(ctx, evaluator, c)
		if err != nil {
			ev.Error = err.Error()
			svc.logger.Warn("Evaluation failed",
				slog.Uint64("round", n),
				slog.String("label", c.label),
				slog.Any("error", err),
			)
			evals = append(evals, ev)

			continue
		}

		ev.Accuracy = resp.Accuracy()
		ev.Loss = resp.Loss
		ev.Correct = resp.Correct
		ev.Total = resp.Total
		ev.Histogram = resp.Histogram
		ev.Shares = svc.shares(resp.Histogram)
		evals = append(evals, ev)

		EvaluationAccuracy.WithLabelValues(svc.cfg.RunID, c.label).Set(ev.Accuracy)
		svc.logger.Info(fmt.Sprintf("%s: accuracy %d/%d (%.1f%%)", c.label, ev.Correct, ev.Total, 100*ev.Accuracy),
			slog.Uint64("round", n),
			slog.Float64("loss", ev.Loss),
			slog.Any("histogram", ev.Histogram),
			slog.Any("shares", ev.Shares),
		)
	}

	return evals
}

func (svc *service) evaluateOne(ctx context.Context, evaluator fl.Evaluator, c candidate) (fl.EvalResponse, error) {
	ctx, cancel := svc.workerContext(ctx)
	defer cancel()

	resp, err := evaluator.Evaluate(ctx, fl.EvalRequest{
		Label:      c.label,
		Model:      c.model,
		DatasetKey: svc.cfg.DatasetKey,
		BatchSize:  svc.cfg.TestBatchSize,
	})
	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}

		return fl.EvalResponse{}, err
	}

	return resp, nil
}

// shares groups a prediction histogram by the trainers' class ranges.
func (svc *service) shares(histogram []uint64) map[string]float64 {
	if len(svc.ranges) == 0 {
		return nil
	}

	pct := fl.RangeShares(histogram, svc.ranges)
	out := make(map[string]float64, len(svc.ranges))
	for i, r := range svc.ranges {
		out[r.String()] = pct[i]
	}

	return out
}

// classRanges collects the class partitions declared for the trainers.
func classRanges(trainers []worker.Worker) ([]fl.ClassRange, error) {
	var ranges []fl.ClassRange
	for _, w := range trainers {
		rs, err := fl.ParseClassRanges(w.Classes)
		if err != nil {
			return nil, fmt.Errorf("worker %s: %w", w.ID, err)
		}
		ranges = append(ranges, rs...)
	}

	return ranges, nil
}
