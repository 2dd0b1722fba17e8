package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fedcoord/pkg/events"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/model"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/pkg/schedule"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/absmach/fedcoord/worker"
)

type service struct {
	cfg         Config
	workers     Workers
	aggregator  fl.Aggregator
	decay       schedule.Decay
	ranges      []fl.ClassRange
	rounds      storage.RoundRepository
	checkpoints storage.CheckpointRepository
	emitter     events.Emitter
	logger      *slog.Logger

	// runMu is held for the whole execution of a round or a run.
	runMu sync.Mutex

	mu           sync.RWMutex
	state        State
	round        uint64
	lr           float64
	global       model.Snapshot
	contributors int
	accuracy     *float64
	err          error
	startedAt    time.Time
	finishedAt   time.Time
}

func NewService(
	cfg Config,
	workers Workers,
	initial model.Snapshot,
	rounds storage.RoundRepository,
	checkpoints storage.CheckpointRepository,
	emitter events.Emitter,
	logger *slog.Logger,
) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial model: %w", err)
	}
	if cfg.EvalPeriod == 0 {
		cfg.EvalPeriod = DefEvalPeriod
	}
	if cfg.DatasetKey == "" {
		cfg.DatasetKey = DefDatasetKey
	}

	aggregator, err := fl.NewAggregator(cfg.Aggregation)
	if err != nil {
		return nil, err
	}
	ranges, err := classRanges(workers.Trainers())
	if err != nil {
		return nil, err
	}

	LearningRate.WithLabelValues(cfg.RunID).Set(cfg.LearningRate)

	return &service{
		cfg:         cfg,
		workers:     workers,
		aggregator:  aggregator,
		decay:       schedule.NewDecay(cfg.LearningRate),
		ranges:      ranges,
		rounds:      rounds,
		checkpoints: checkpoints,
		emitter:     emitter,
		logger:      logger,
		state:       StateIdle,
		lr:          cfg.LearningRate,
		global:      initial.Clone(),
	}, nil
}

func (svc *service) Run(ctx context.Context) error {
	if !svc.runMu.TryLock() {
		return ErrAlreadyRunning
	}
	defer svc.runMu.Unlock()

	if err := svc.start(); err != nil {
		return err
	}

	for {
		svc.mu.RLock()
		next := svc.round + 1
		svc.mu.RUnlock()
		if next > svc.cfg.Rounds {
			break
		}

		if _, err := svc.runRound(ctx, next); err != nil {
			svc.finish(ctx, err)

			return err
		}
	}

	err := svc.saveFinal(ctx)
	svc.finish(ctx, err)

	return err
}

func (svc *service) RunRound(ctx context.Context, n uint64) (round.Record, error) {
	if !svc.runMu.TryLock() {
		return round.Record{}, ErrAlreadyRunning
	}
	defer svc.runMu.Unlock()

	if err := svc.checkNext(n); err != nil {
		return round.Record{}, err
	}
	if err := svc.start(); err != nil {
		return round.Record{}, err
	}

	rec, err := svc.runRound(ctx, n)
	switch {
	case err != nil:
		svc.finish(ctx, err)
	case n == svc.cfg.Rounds:
		err = svc.saveFinal(ctx)
		svc.finish(ctx, err)
	}

	return rec, err
}

func (svc *service) GetRound(ctx context.Context, n uint64) (round.Record, error) {
	return svc.rounds.Get(ctx, svc.cfg.RunID, n)
}

func (svc *service) ListRounds(ctx context.Context, offset, limit uint64) (round.Page, error) {
	recs, total, err := svc.rounds.List(ctx, svc.cfg.RunID, offset, limit)
	if err != nil {
		return round.Page{}, err
	}

	return round.Page{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Rounds: recs,
	}, nil
}

func (svc *service) GlobalModel(_ context.Context) (GlobalModel, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	if svc.global.Len() == 0 {
		return GlobalModel{}, ErrNoModel
	}

	return GlobalModel{
		RunID: svc.cfg.RunID,
		Round: svc.round,
		Model: svc.global.Clone(),
	}, nil
}

func (svc *service) Checkpoint(ctx context.Context, label string) (GlobalModel, error) {
	c, err := svc.checkpoints.Get(ctx, svc.cfg.RunID, label)
	if err != nil {
		return GlobalModel{}, err
	}
	m, err := model.Unmarshal(c.Data)
	if err != nil {
		return GlobalModel{}, fmt.Errorf("checkpoint %s: %w", label, err)
	}

	return GlobalModel{
		RunID: c.RunID,
		Round: c.Round,
		Model: m,
	}, nil
}

func (svc *service) ListWorkers(_ context.Context, offset, limit uint64) (worker.WorkerPage, error) {
	return svc.workers.List(offset, limit), nil
}

func (svc *service) Status(_ context.Context) (Status, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	st := Status{
		RunID:        svc.cfg.RunID,
		State:        svc.state,
		Round:        svc.round,
		Rounds:       svc.cfg.Rounds,
		LearningRate: svc.lr,
		Trainers:     len(svc.workers.Trainers()),
		Contributors: svc.contributors,
		Accuracy:     svc.accuracy,
		StartedAt:    svc.startedAt,
		FinishedAt:   svc.finishedAt,
	}
	if svc.err != nil {
		st.Error = svc.err.Error()
	}

	return st, nil
}

func (svc *service) start() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	switch svc.state {
	case StateCompleted, StateFailed:
		return ErrRunFinished
	case StateIdle:
		svc.state = StateRunning
		svc.startedAt = time.Now()
	}

	return nil
}

func (svc *service) checkNext(n uint64) error {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	if n > svc.cfg.Rounds {
		return fmt.Errorf("%w: %d of %d", ErrRunFinished, n, svc.cfg.Rounds)
	}
	if n != svc.round+1 {
		return fmt.Errorf("%w: expected %d, got %d", ErrRoundOutOfOrder, svc.round+1, n)
	}

	return nil
}

// runRound executes one dispatch, collect, aggregate, evaluate and
// persist cycle. The global model and learning rate only advance when
// the round completes.
func (svc *service) runRound(ctx context.Context, n uint64) (round.Record, error) {
	if err := svc.checkNext(n); err != nil {
		return round.Record{}, err
	}

	svc.mu.RLock()
	lr, broadcast := svc.lr, svc.global
	svc.mu.RUnlock()

	rec := round.Record{
		RunID:        svc.cfg.RunID,
		Round:        n,
		Status:       round.StatusRunning,
		LearningRate: lr,
		StartedAt:    time.Now(),
	}

	trainers := svc.workers.Trainers()
	ids := make([]string, len(trainers))
	for i, w := range trainers {
		ids[i] = w.ID
	}
	if err := svc.emitter.RoundStarted(ctx, events.RoundStarted{
		RunID:        svc.cfg.RunID,
		Round:        n,
		LearningRate: lr,
		Workers:      ids,
		Timestamp:    rec.StartedAt,
	}); err != nil {
		svc.logger.Warn("Failed to publish round start", slog.Uint64("round", n), slog.Any("error", err))
	}

	results := svc.dispatch(ctx, n, broadcast, lr)
	rec.Outcomes = outcomes(results)
	if err := ctx.Err(); err != nil {
		return svc.fail(ctx, rec, err)
	}

	updates := fl.Updates(results)
	rec.Contributors = len(updates)
	if len(updates) == 0 {
		return svc.fail(ctx, rec, fmt.Errorf("round %d: %w", n, ErrNoContributions))
	}

	aggregate, err := svc.aggregator.Aggregate(updates)
	if err != nil {
		return svc.fail(ctx, rec, fmt.Errorf("round %d: %w", n, err))
	}

	if schedule.ShouldEvaluate(n, svc.cfg.Rounds, svc.cfg.EvalPeriod) {
		rec.Evaluations = svc.evaluate(ctx, n, results, aggregate)
	}

	data, err := model.Marshal(aggregate)
	if err != nil {
		return svc.fail(ctx, rec, err)
	}
	if err := svc.checkpoints.Save(ctx, round.Checkpoint{
		RunID:     svc.cfg.RunID,
		Label:     round.RoundLabel(n),
		Round:     n,
		Data:      data,
		CreatedAt: time.Now(),
	}); err != nil {
		return svc.fail(ctx, rec, fmt.Errorf("save checkpoint: %w", err))
	}

	rec.Status = round.StatusCompleted
	rec.FinishedAt = time.Now()
	if err := svc.rounds.Save(ctx, rec); err != nil {
		return round.Record{}, fmt.Errorf("save round %d: %w", n, err)
	}

	next := svc.decay.Next(lr)

	svc.mu.Lock()
	svc.round = n
	svc.global = aggregate
	svc.lr = next
	svc.contributors = rec.Contributors
	if acc, ok := federatedAccuracy(rec.Evaluations); ok {
		svc.accuracy = &acc
	}
	svc.mu.Unlock()

	RoundTotal.WithLabelValues(svc.cfg.RunID, string(round.StatusCompleted)).Inc()
	RoundDuration.WithLabelValues(svc.cfg.RunID).Observe(rec.FinishedAt.Sub(rec.StartedAt).Seconds())
	RoundContributors.WithLabelValues(svc.cfg.RunID).Set(float64(rec.Contributors))
	LearningRate.WithLabelValues(svc.cfg.RunID).Set(next)

	svc.publish(ctx, rec)

	return rec, nil
}

// fail records a round that produced no new global model.
func (svc *service) fail(ctx context.Context, rec round.Record, err error) (round.Record, error) {
	rec.Status = round.StatusFailed
	rec.Error = err.Error()
	rec.FinishedAt = time.Now()

	// The caller's context may already be cancelled.
	if serr := svc.rounds.Save(context.WithoutCancel(ctx), rec); serr != nil {
		svc.logger.Error("Failed to save failed round", slog.Uint64("round", rec.Round), slog.Any("error", serr))
	}
	RoundTotal.WithLabelValues(svc.cfg.RunID, string(round.StatusFailed)).Inc()
	svc.publish(context.WithoutCancel(ctx), rec)

	return rec, err
}

func (svc *service) publish(ctx context.Context, rec round.Record) {
	if err := svc.emitter.RoundCompleted(ctx, rec); err != nil {
		svc.logger.Warn("Failed to publish round result", slog.Uint64("round", rec.Round), slog.Any("error", err))
	}
	for _, ev := range rec.Evaluations {
		if err := svc.emitter.Evaluation(ctx, events.EvaluationDone{
			RunID:      rec.RunID,
			Round:      rec.Round,
			Evaluation: ev,
			Timestamp:  rec.FinishedAt,
		}); err != nil {
			svc.logger.Warn("Failed to publish evaluation", slog.String("label", ev.Label), slog.Any("error", err))
		}
	}
}

// saveFinal stores the final global model when configured.
func (svc *service) saveFinal(ctx context.Context) error {
	if !svc.cfg.SaveModel {
		return nil
	}

	gm, err := svc.GlobalModel(ctx)
	if err != nil {
		return err
	}
	data, err := model.Marshal(gm.Model)
	if err != nil {
		return err
	}
	if err := svc.checkpoints.Save(ctx, round.Checkpoint{
		RunID:     svc.cfg.RunID,
		Label:     round.FinalLabel,
		Round:     gm.Round,
		Data:      data,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("save final checkpoint: %w", err)
	}
	if svc.cfg.ModelPath != "" {
		if err := model.Save(svc.cfg.ModelPath, gm.Model); err != nil {
			return fmt.Errorf("save final model: %w", err)
		}
	}

	return nil
}

func (svc *service) finish(ctx context.Context, err error) {
	svc.mu.Lock()
	svc.finishedAt = time.Now()
	svc.state = StateCompleted
	if err != nil {
		svc.state = StateFailed
		svc.err = err
	}
	ev := events.RunFinished{
		RunID:     svc.cfg.RunID,
		Rounds:    svc.round,
		Status:    string(svc.state),
		Timestamp: svc.finishedAt,
	}
	svc.mu.Unlock()

	if err != nil {
		ev.Error = err.Error()
	}
	if perr := svc.emitter.RunFinished(context.WithoutCancel(ctx), ev); perr != nil {
		svc.logger.Warn("Failed to publish run result", slog.Any("error", perr))
	}
}

func federatedAccuracy(evals []round.Evaluation) (float64, bool) {
	for _, ev := range evals {
		if ev.Label == FederatedLabel && ev.Error == "" {
			return ev.Accuracy, true
		}
	}

	return 0, false
}
