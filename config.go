package fedcoord

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/trainer"
	"github.com/absmach/fedcoord/worker"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml"
)

const filePermission = 0o644

type Config struct {
	Coordinator CoordinatorConfig     `toml:"coordinator"`
	Dataset     trainer.DatasetConfig `toml:"dataset"`
	Workers     []worker.Worker       `toml:"workers"`
}

// CoordinatorConfig holds the hyperparameters of a federated run.
type CoordinatorConfig struct {
	RunID         string  `toml:"run_id"`
	Rounds        uint64  `toml:"training_rounds"`
	BatchSize     int     `toml:"batch_size"`
	TestBatchSize int     `toml:"test_batch_size"`
	FederateAfter int     `toml:"federate_after_n_batches"`
	LearningRate  float64 `toml:"lr"`
	Seed          uint64  `toml:"seed"`
	Device        string  `toml:"device"`
	Verbose       bool    `toml:"verbose"`
	SaveModel     bool    `toml:"save_model"`
	ModelPath     string  `toml:"model_path"`
	InitialModel  string  `toml:"initial_model"`
	// EvalEvery of 0 or absent uses the default period; 1 evaluates
	// every round.
	EvalEvery     uint64  `toml:"eval_every"`
	Aggregation   string  `toml:"aggregation"`
	WorkerTimeout string  `toml:"worker_timeout"`
	DatasetKey    string  `toml:"dataset_key"`
}

func DefaultConfig() Config {
	return Config{
		Coordinator: CoordinatorConfig{
			Rounds:        40,
			BatchSize:     64,
			TestBatchSize: 1000,
			FederateAfter: 10,
			LearningRate:  0.1,
			Seed:          1,
			Device:        trainer.DeviceCPU,
			ModelPath:     "fedavg_model.cbor",
			EvalEvery:     coordinator.DefEvalPeriod,
			Aggregation:   fl.ModeMean,
			WorkerTimeout: coordinator.DefWorkerTimeout.String(),
			DatasetKey:    trainer.DatasetTesting,
		},
		Dataset: trainer.DefaultDatasetConfig(),
		Workers: []worker.Worker{
			{ID: "alice", Name: "Alice", Address: "ws://localhost:8777", Role: fl.RoleTrainer, Classes: "0-3"},
			{ID: "bob", Name: "Bob", Address: "ws://localhost:8778", Role: fl.RoleTrainer, Classes: "4-6"},
			{ID: "charlie", Name: "Charlie", Address: "ws://localhost:8779", Role: fl.RoleTrainer, Classes: "7-9"},
			{ID: "testing", Name: "Testing", Address: "ws://localhost:8780", Role: fl.RoleEvaluator},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Dataset.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration as TOML.
func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, filePermission); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	cc := &c.Coordinator
	if cc.BatchSize == 0 {
		cc.BatchSize = def.Coordinator.BatchSize
	}
	if cc.TestBatchSize == 0 {
		cc.TestBatchSize = def.Coordinator.TestBatchSize
	}
	if cc.Device == "" {
		cc.Device = def.Coordinator.Device
	}
	if cc.EvalEvery == 0 {
		cc.EvalEvery = def.Coordinator.EvalEvery
	}
	if cc.WorkerTimeout == "" {
		cc.WorkerTimeout = def.Coordinator.WorkerTimeout
	}
	if cc.DatasetKey == "" {
		cc.DatasetKey = def.Coordinator.DatasetKey
	}
	ds := &c.Dataset
	if ds.Classes == 0 {
		ds.Classes = def.Dataset.Classes
	}
	if ds.Features == 0 {
		ds.Features = def.Dataset.Features
	}
	if ds.SamplesPerClass == 0 {
		ds.SamplesPerClass = def.Dataset.SamplesPerClass
	}
	if ds.Spread == 0 {
		ds.Spread = def.Dataset.Spread
	}
	if ds.Seed == 0 {
		ds.Seed = def.Dataset.Seed
	}
}

// Run converts the file settings into the coordinator's run configuration.
// A missing run id is replaced by a random one.
func (c CoordinatorConfig) Run() (coordinator.Config, error) {
	timeout, err := time.ParseDuration(c.WorkerTimeout)
	if err != nil {
		return coordinator.Config{}, errors.Join(coordinator.ErrInvalidConfig, fmt.Errorf("worker_timeout: %w", err))
	}

	runID := c.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	cfg := coordinator.Config{
		RunID:         runID,
		Rounds:        c.Rounds,
		BatchSize:     c.BatchSize,
		TestBatchSize: c.TestBatchSize,
		MaxBatches:    c.FederateAfter,
		LearningRate:  c.LearningRate,
		Device:        c.Device,
		EvalPeriod:    c.EvalEvery,
		Aggregation:   c.Aggregation,
		WorkerTimeout: timeout,
		DatasetKey:    c.DatasetKey,
		SaveModel:     c.SaveModel,
		ModelPath:     c.ModelPath,
	}
	if err := cfg.Validate(); err != nil {
		return coordinator.Config{}, err
	}

	return cfg, nil
}
