package coordinator_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/events"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/model"
	mqttmocks "github.com/absmach/fedcoord/pkg/mqtt/mocks"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/pkg/schedule"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/absmach/fedcoord/worker"
	"github.com/absmach/fedcoord/worker/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const runID = "run-test"

var errUnreachable = errors.New("connection reset by peer")

func snap(t *testing.T, data ...float64) model.Snapshot {
	t.Helper()

	s, err := model.New(model.Layer{Name: "w", Tensor: model.Tensor{Shape: []int{len(data)}, Data: data}})
	require.NoError(t, err)

	return s
}

func baseConfig() coordinator.Config {
	return coordinator.Config{
		RunID:         runID,
		Rounds:        3,
		BatchSize:     64,
		TestBatchSize: 1000,
		MaxBatches:    10,
		LearningRate:  0.1,
		Device:        "cpu",
		EvalPeriod:    10,
		WorkerTimeout: time.Second,
		DatasetKey:    "testing",
	}
}

func tutorialWorkers() []worker.Worker {
	return []worker.Worker{
		{ID: "alice", Address: "ws://localhost:8777", Role: fl.RoleTrainer, Classes: "0-3"},
		{ID: "bob", Address: "ws://localhost:8778", Role: fl.RoleTrainer, Classes: "4-6"},
		{ID: "charlie", Address: "ws://localhost:8779", Role: fl.RoleTrainer, Classes: "7-9"},
		{ID: "testing", Address: "ws://localhost:8780", Role: fl.RoleEvaluator},
	}
}

type fixture struct {
	svc     coordinator.Service
	clients map[string]*mocks.MockClient
	repos   *storage.Repositories
	pubsub  *mqttmocks.MockPubSub
}

func newFixture(t *testing.T, cfg coordinator.Config) *fixture {
	t.Helper()

	reg, err := worker.NewRegistry(tutorialWorkers())
	require.NoError(t, err)

	clients := make(map[string]*mocks.MockClient)
	byAddr := make(map[string]*mocks.MockClient)
	for _, w := range tutorialWorkers() {
		c := new(mocks.MockClient)
		c.On("Hello", mock.Anything).Return(fl.WorkerInfo{
			ID:              w.ID,
			Role:            w.Role,
			ProtocolVersion: model.ProtocolVersion,
		}, nil)
		c.On("Close").Return(nil).Maybe()
		clients[w.ID] = c
		byAddr[w.Address] = c
	}
	require.NoError(t, reg.Connect(context.Background(), func(_ context.Context, addr string) (worker.Client, error) {
		return byAddr[addr], nil
	}))
	t.Cleanup(func() { _ = reg.Close() })

	repos, err := storage.NewRepositories(storage.Config{Type: "memory"})
	require.NoError(t, err)

	ps := new(mqttmocks.MockPubSub)
	ps.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	emitter := events.NewMQTTEmitter(ps, events.NewTopicBuilder("domain", "channel"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := coordinator.NewService(cfg, reg, snap(t, 0, 0), repos.Rounds, repos.Checkpoints, emitter, logger)
	require.NoError(t, err)

	return &fixture{
		svc:     svc,
		clients: clients,
		repos:   repos,
		pubsub:  ps,
	}
}

func (f *fixture) fitReturns(t *testing.T, id string, loss float64, data ...float64) {
	t.Helper()

	m := snap(t, data...)
	f.clients[id].On("Fit", mock.Anything, mock.Anything).Return(fl.FitResponse{
		WorkerID:   id,
		Model:      &m,
		Loss:       &loss,
		NumSamples: 100,
	}, nil)
}

func (f *fixture) fitFails(id string, err error) {
	f.clients[id].On("Fit", mock.Anything, mock.Anything).Return(fl.FitResponse{}, err)
}

func (f *fixture) evaluatorReturns(correct uint64) {
	f.clients["testing"].On("Evaluate", mock.Anything, mock.Anything).Return(fl.EvalResponse{
		WorkerID:  "testing",
		Loss:      0.5,
		Correct:   correct,
		Total:     100,
		Histogram: []uint64{10, 10, 10, 10, 20, 20, 0, 10, 5, 5},
	}, nil)
}

func TestRunRoundAggregates(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.fitReturns(t, "alice", 0.4, 1, 2)
	f.fitReturns(t, "bob", 0.6, 3, 6)
	f.fitFails("charlie", errUnreachable)
	f.evaluatorReturns(90)

	ctx := context.Background()
	rec, err := f.svc.RunRound(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, round.StatusCompleted, rec.Status)
	assert.Equal(t, 2, rec.Contributors)
	assert.Equal(t, 1, rec.Failed())
	require.Len(t, rec.Outcomes, 3)
	assert.Equal(t, []string{"alice", "bob", "charlie"}, []string{rec.Outcomes[0].WorkerID, rec.Outcomes[1].WorkerID, rec.Outcomes[2].WorkerID})
	assert.Equal(t, 0.4, rec.Outcomes[0].Loss)
	assert.Contains(t, rec.Outcomes[2].Error, errUnreachable.Error())

	gm, err := f.svc.GlobalModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gm.Round)
	assert.Equal(t, snap(t, 2, 4), gm.Model)

	require.Len(t, rec.Evaluations, 3)
	assert.Equal(t, "alice", rec.Evaluations[0].Label)
	assert.Equal(t, "bob", rec.Evaluations[1].Label)
	fed := rec.Evaluations[2]
	assert.Equal(t, coordinator.FederatedLabel, fed.Label)
	assert.InDelta(t, 0.9, fed.Accuracy, 1e-12)
	assert.InDelta(t, 40.0, fed.Shares["0-3"], 1e-9)
	assert.InDelta(t, 40.0, fed.Shares["4-6"], 1e-9)
	assert.InDelta(t, 20.0, fed.Shares["7-9"], 1e-9)

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, coordinator.StateRunning, st.State)
	assert.InDelta(t, 0.098, st.LearningRate, 1e-12)
	require.NotNil(t, st.Accuracy)
	assert.InDelta(t, 0.9, *st.Accuracy, 1e-12)

	stored, err := f.svc.GetRound(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, rec.Contributors, stored.Contributors)

	cp, err := f.repos.Checkpoints.Get(ctx, runID, round.RoundLabel(1))
	require.NoError(t, err)
	decoded, err := model.Unmarshal(cp.Data)
	require.NoError(t, err)
	assert.Equal(t, gm.Model, decoded)
}

func TestFitRequest(t *testing.T) {
	cfg := baseConfig()
	f := newFixture(t, cfg)
	f.evaluatorReturns(50)

	initial := snap(t, 0, 0)
	for _, id := range []string{"alice", "bob", "charlie"} {
		m := snap(t, 1, 1)
		f.clients[id].On("Fit", mock.Anything, mock.MatchedBy(func(req fl.FitRequest) bool {
			return req.Round == 1 &&
				req.LearningRate == cfg.LearningRate &&
				req.BatchSize == cfg.BatchSize &&
				req.MaxBatches == cfg.MaxBatches &&
				req.Device == cfg.Device &&
				assert.ObjectsAreEqual(initial, req.Model)
		})).Return(fl.FitResponse{WorkerID: id, Model: &m}, nil).Once()
	}

	_, err := f.svc.RunRound(context.Background(), 1)
	require.NoError(t, err)
	for _, id := range []string{"alice", "bob", "charlie"} {
		f.clients[id].AssertExpectations(t)
		f.clients[id].AssertNumberOfCalls(t, "Fit", 1)
	}
	f.clients["testing"].AssertCalled(t, "Evaluate", mock.Anything, mock.MatchedBy(func(req fl.EvalRequest) bool {
		return req.Label == coordinator.FederatedLabel && req.DatasetKey == "testing" && req.BatchSize == cfg.TestBatchSize
	}))
}

func TestNoContributions(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.fitFails("alice", errUnreachable)
	f.fitFails("bob", errUnreachable)
	f.clients["charlie"].On("Fit", mock.Anything, mock.Anything).Return(fl.FitResponse{WorkerID: "charlie"}, nil)

	ctx := context.Background()
	rec, err := f.svc.RunRound(ctx, 1)
	assert.ErrorIs(t, err, coordinator.ErrNoContributions)
	assert.Equal(t, round.StatusFailed, rec.Status)
	assert.Equal(t, 0, rec.Contributors)
	assert.Equal(t, fl.ErrNoModel.Error(), rec.Outcomes[2].Error)

	stored, err := f.svc.GetRound(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, round.StatusFailed, stored.Status)

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, coordinator.StateFailed, st.State)
	assert.Equal(t, uint64(0), st.Round)
	assert.InDelta(t, 0.1, st.LearningRate, 1e-12)

	gm, err := f.svc.GlobalModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap(t, 0, 0), gm.Model)

	_, err = f.svc.RunRound(ctx, 1)
	assert.ErrorIs(t, err, coordinator.ErrRunFinished)
	f.clients["testing"].AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)
}

func TestWorkerTimeout(t *testing.T) {
	cfg := baseConfig()
	cfg.WorkerTimeout = 50 * time.Millisecond
	f := newFixture(t, cfg)
	f.fitReturns(t, "alice", 0.1, 2, 2)
	f.fitReturns(t, "bob", 0.1, 4, 4)
	f.clients["charlie"].On("Fit", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(fl.FitResponse{}, context.DeadlineExceeded)
	f.evaluatorReturns(10)

	rec, err := f.svc.RunRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Contributors)
	assert.False(t, rec.Outcomes[2].OK)
	assert.Equal(t, fl.ErrWorkerTimeout.Error(), rec.Outcomes[2].Error)
	assert.GreaterOrEqual(t, rec.Outcomes[2].Duration, cfg.WorkerTimeout)

	gm, err := f.svc.GlobalModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap(t, 3, 3), gm.Model)
}

func TestRunCancelled(t *testing.T) {
	cfg := baseConfig()
	cfg.WorkerTimeout = 0
	f := newFixture(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, id := range []string{"alice", "bob", "charlie"} {
		f.clients[id].On("Fit", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				cancel()
				<-args.Get(0).(context.Context).Done()
			}).
			Return(fl.FitResponse{}, context.Canceled)
	}

	err := f.svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	st, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coordinator.StateFailed, st.State)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Rounds = 12
	cfg.SaveModel = true
	cfg.ModelPath = filepath.Join(dir, "model.cbor")

	f := newFixture(t, cfg)
	f.fitReturns(t, "alice", 0.3, 1, 1)
	f.fitReturns(t, "bob", 0.3, 2, 2)
	f.fitReturns(t, "charlie", 0.3, 3, 3)
	f.evaluatorReturns(70)

	ctx := context.Background()
	require.NoError(t, f.svc.Run(ctx))

	page, err := f.svc.ListRounds(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Rounds, 12)
	assert.Equal(t, uint64(12), page.Total)

	var evaluated []uint64
	for i, rec := range page.Rounds {
		assert.Equal(t, uint64(i+1), rec.Round)
		assert.InDelta(t, schedule.NewDecay(cfg.LearningRate).At(rec.Round-1), rec.LearningRate, 1e-12)
		if len(rec.Evaluations) > 0 {
			evaluated = append(evaluated, rec.Round)
		}
	}
	assert.Equal(t, []uint64{1, 11, 12}, evaluated)
	f.clients["testing"].AssertNumberOfCalls(t, "Evaluate", 3*4)

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, coordinator.StateCompleted, st.State)
	assert.Equal(t, uint64(12), st.Round)
	assert.InDelta(t, schedule.NewDecay(cfg.LearningRate).At(12), st.LearningRate, 1e-12)

	final, err := f.repos.Checkpoints.Get(ctx, runID, round.FinalLabel)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), final.Round)

	saved, err := model.Load(cfg.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, snap(t, 2, 2), saved)

	gm, err := f.svc.Checkpoint(ctx, round.FinalLabel)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), gm.Round)
	assert.Equal(t, runID, gm.RunID)
	assert.Equal(t, saved, gm.Model)

	gm, err = f.svc.Checkpoint(ctx, round.RoundLabel(11))
	require.NoError(t, err)
	assert.Equal(t, uint64(11), gm.Round)

	_, err = f.svc.Checkpoint(ctx, round.RoundLabel(13))
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	assert.ErrorIs(t, f.svc.Run(ctx), coordinator.ErrRunFinished)

	f.pubsub.AssertNumberOfCalls(t, "Publish", 12+12+3*4+1)
}

func TestEvalPeriod(t *testing.T) {
	cases := []struct {
		desc      string
		rounds    uint64
		period    uint64
		evaluated []uint64
	}{
		{desc: "zero uses the default period", rounds: 12, period: 0, evaluated: []uint64{1, 11, 12}},
		{desc: "period one evaluates every round", rounds: 3, period: 1, evaluated: []uint64{1, 2, 3}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Rounds = tc.rounds
			cfg.EvalPeriod = tc.period

			f := newFixture(t, cfg)
			f.fitReturns(t, "alice", 0.3, 1, 1)
			f.fitReturns(t, "bob", 0.3, 2, 2)
			f.fitReturns(t, "charlie", 0.3, 3, 3)
			f.evaluatorReturns(70)

			ctx := context.Background()
			require.NoError(t, f.svc.Run(ctx))

			page, err := f.svc.ListRounds(ctx, 0, 0)
			require.NoError(t, err)

			var evaluated []uint64
			for _, rec := range page.Rounds {
				if len(rec.Evaluations) > 0 {
					evaluated = append(evaluated, rec.Round)
				}
			}
			assert.Equal(t, tc.evaluated, evaluated)
		})
	}
}

func TestRunRoundOutOfOrder(t *testing.T) {
	f := newFixture(t, baseConfig())

	_, err := f.svc.RunRound(context.Background(), 2)
	assert.ErrorIs(t, err, coordinator.ErrRoundOutOfOrder)

	_, err = f.svc.RunRound(context.Background(), 4)
	assert.ErrorIs(t, err, coordinator.ErrRunFinished)

	st, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coordinator.StateIdle, st.State)
}

func TestEvaluationFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.fitReturns(t, "alice", 0.1, 1)
	f.fitReturns(t, "bob", 0.1, 1)
	f.fitReturns(t, "charlie", 0.1, 1)
	f.clients["testing"].On("Evaluate", mock.Anything, mock.Anything).Return(fl.EvalResponse{}, errUnreachable)

	rec, err := f.svc.RunRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, round.StatusCompleted, rec.Status)
	require.Len(t, rec.Evaluations, 4)
	for _, ev := range rec.Evaluations {
		assert.True(t, strings.Contains(ev.Error, errUnreachable.Error()), ev.Label)
	}

	st, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.Accuracy)
}

func TestListWorkers(t *testing.T) {
	f := newFixture(t, baseConfig())

	page, err := f.svc.ListWorkers(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), page.Total)
	require.Len(t, page.Workers, 2)
	assert.Equal(t, "bob", page.Workers[0].ID)
	assert.True(t, page.Workers[0].Online)
}

func TestNewServiceValidation(t *testing.T) {
	reg, err := worker.NewRegistry(tutorialWorkers())
	require.NoError(t, err)
	repos, err := storage.NewRepositories(storage.Config{})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []struct {
		desc   string
		modify func(*coordinator.Config)
		err    error
	}{
		{
			desc:   "valid",
			modify: func(*coordinator.Config) {},
		},
		{
			desc:   "zero rounds",
			modify: func(c *coordinator.Config) { c.Rounds = 0 },
			err:    coordinator.ErrInvalidConfig,
		},
		{
			desc:   "missing run id",
			modify: func(c *coordinator.Config) { c.RunID = "" },
			err:    coordinator.ErrInvalidConfig,
		},
		{
			desc:   "negative learning rate",
			modify: func(c *coordinator.Config) { c.LearningRate = -1 },
			err:    coordinator.ErrInvalidConfig,
		},
		{
			desc:   "unknown aggregation",
			modify: func(c *coordinator.Config) { c.Aggregation = "median" },
			err:    fl.ErrUnknownMode,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := baseConfig()
			tc.modify(&cfg)

			_, err := coordinator.NewService(cfg, reg, snap(t, 0), repos.Rounds, repos.Checkpoints, events.NewNoopEmitter(), logger)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			assert.NoError(t, err)
		})
	}
}
