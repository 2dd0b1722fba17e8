package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/model"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/worker"
)

const (
	FederatedLabel = fl.FederatedLabel

	DefEvalPeriod    = 10
	DefWorkerTimeout = 5 * time.Minute
	DefDatasetKey    = "testing"
)

var (
	ErrNoContributions = errors.New("no worker contributed a model this round")
	ErrAlreadyRunning  = fmt.Errorf("a run is already in progress: %w", pkgerrors.ErrConflict)
	ErrRoundOutOfOrder = fmt.Errorf("round is not the next round of the run: %w", pkgerrors.ErrConflict)
	ErrRunFinished     = fmt.Errorf("all configured rounds have been run: %w", pkgerrors.ErrConflict)
	ErrNoModel         = fmt.Errorf("global model %w", pkgerrors.ErrNotFound)
	ErrInvalidConfig   = errors.New("invalid coordinator configuration")
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Config holds the hyperparameters of a run.
type Config struct {
	RunID         string
	Rounds        uint64
	BatchSize     int
	TestBatchSize int
	MaxBatches    int
	LearningRate  float64
	Device        string
	// EvalPeriod of 0 selects DefEvalPeriod; 1 evaluates every round.
	EvalPeriod    uint64
	Aggregation   string
	WorkerTimeout time.Duration
	DatasetKey    string
	SaveModel     bool
	ModelPath     string
}

func (c Config) Validate() error {
	switch {
	case c.RunID == "":
		return errors.Join(ErrInvalidConfig, errors.New("missing run id"))
	case c.Rounds == 0:
		return errors.Join(ErrInvalidConfig, errors.New("rounds must be positive"))
	case c.BatchSize <= 0 || c.TestBatchSize <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("batch sizes must be positive"))
	case c.LearningRate <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("learning rate must be positive"))
	case c.WorkerTimeout < 0:
		return errors.Join(ErrInvalidConfig, errors.New("worker timeout must not be negative"))
	}

	return nil
}

type Status struct {
	RunID        string    `json:"run_id"`
	State        State     `json:"state"`
	Round        uint64    `json:"round"`
	Rounds       uint64    `json:"rounds"`
	LearningRate float64   `json:"learning_rate"`
	Trainers     int       `json:"trainers"`
	Contributors int       `json:"contributors"`
	Accuracy     *float64  `json:"accuracy,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
}

// GlobalModel is the broadcast model after the given round; round zero
// is the initial model.
type GlobalModel struct {
	RunID string         `json:"run_id"`
	Round uint64         `json:"round"`
	Model model.Snapshot `json:"model"`
}

type Service interface {
	// Run executes every remaining round and, if configured, persists the
	// final model.
	Run(ctx context.Context) error
	// RunRound executes round n, which must follow the last completed round.
	RunRound(ctx context.Context, n uint64) (round.Record, error)
	GetRound(ctx context.Context, n uint64) (round.Record, error)
	ListRounds(ctx context.Context, offset, limit uint64) (round.Page, error)
	GlobalModel(ctx context.Context) (GlobalModel, error)
	// Checkpoint loads the model stored under label, a round label or
	// round.FinalLabel.
	Checkpoint(ctx context.Context, label string) (GlobalModel, error)
	ListWorkers(ctx context.Context, offset, limit uint64) (worker.WorkerPage, error)
	Status(ctx context.Context) (Status, error)
}
