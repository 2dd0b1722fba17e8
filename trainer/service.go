package trainer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/model"
	"github.com/absmach/fedcoord/pkg/transport/ws"
)

const DeviceCPU = "cpu"

var (
	ErrUnknownDataset    = errors.New("unknown dataset key")
	ErrUnsupportedDevice = errors.New("unsupported device")
	ErrInvalidBatch      = errors.New("batch size must be positive")
	ErrInvalidDataset    = errors.New("invalid dataset configuration")
)

// Config describes a worker's identity and local data. Trainers hold a
// training partition restricted to Classes; the evaluator holds the
// full testing set.
type Config struct {
	ID      string
	Role    fl.Role
	Classes []int
	Dataset DatasetConfig
	// Stream selects an independent sample of the dataset.
	Stream uint64
}

type service struct {
	info     fl.WorkerInfo
	datasets map[string]Dataset

	mu     sync.Mutex
	cursor int
}

var _ ws.Backend = (*service)(nil)

func NewService(cfg Config) (ws.Backend, error) {
	if cfg.ID == "" {
		return nil, errors.New("empty worker id")
	}
	if err := cfg.Dataset.Validate(); err != nil {
		return nil, err
	}

	svc := &service{
		info: fl.WorkerInfo{
			ID:              cfg.ID,
			Role:            cfg.Role,
			ProtocolVersion: model.ProtocolVersion,
			Classes:         cfg.Classes,
		},
		datasets: make(map[string]Dataset),
	}

	switch cfg.Role {
	case fl.RoleTrainer:
		ds := Synthetic(cfg.Dataset, cfg.Stream).Filter(cfg.Classes)
		svc.datasets[DatasetTraining] = ds
		svc.info.NumSamples = uint64(ds.Len())
	case fl.RoleEvaluator:
		ds := Synthetic(cfg.Dataset, cfg.Stream)
		svc.datasets[DatasetTesting] = ds
		svc.info.NumSamples = uint64(ds.Len())
	default:
		return nil, fmt.Errorf("unknown role %q", cfg.Role)
	}

	return svc, nil
}

func (svc *service) Info(context.Context) (fl.WorkerInfo, error) {
	return svc.info, nil
}

// Fit trains the received model for at most MaxBatches batches on the
// local partition. A worker without samples answers with no model.
func (svc *service) Fit(ctx context.Context, req fl.FitRequest) (fl.FitResponse, error) {
	resp := fl.FitResponse{WorkerID: svc.info.ID}

	if req.Device != "" && req.Device != DeviceCPU {
		return resp, fmt.Errorf("%w: %s", ErrUnsupportedDevice, req.Device)
	}
	if req.BatchSize <= 0 {
		return resp, ErrInvalidBatch
	}

	ds, ok := svc.datasets[DatasetTraining]
	if !ok || ds.Len() == 0 {
		return resp, nil
	}

	m, err := FromSnapshot(req.Model)
	if err != nil {
		return resp, err
	}
	if err := checkLayout(m, ds); err != nil {
		return resp, err
	}

	batches := req.MaxBatches
	full := (ds.Len() + req.BatchSize - 1) / req.BatchSize
	if batches <= 0 || batches > full {
		batches = full
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	var total float64
	for range batches {
		if err := ctx.Err(); err != nil {
			return resp, err
		}
		x, y := ds.Batch(svc.cursor, req.BatchSize)
		total += m.Step(x, y, req.LearningRate)
		svc.cursor = (svc.cursor + len(y)) % ds.Len()
	}

	out := m.Snapshot()
	loss := total / float64(batches)
	resp.Model = &out
	resp.Loss = &loss
	resp.NumSamples = uint64(min(batches*req.BatchSize, ds.Len()))

	return resp, nil
}

// Evaluate runs the model over the named dataset and reports accuracy
// together with a histogram of predicted classes.
func (svc *service) Evaluate(ctx context.Context, req fl.EvalRequest) (fl.EvalResponse, error) {
	resp := fl.EvalResponse{WorkerID: svc.info.ID, Label: req.Label}

	ds, ok := svc.datasets[req.DatasetKey]
	if !ok {
		return resp, fmt.Errorf("%w: %q", ErrUnknownDataset, req.DatasetKey)
	}
	m, err := FromSnapshot(req.Model)
	if err != nil {
		return resp, err
	}

	resp.Histogram = make([]uint64, ds.Classes)
	if ds.Len() == 0 {
		return resp, nil
	}
	if err := checkLayout(m, ds); err != nil {
		return resp, err
	}

	size := req.BatchSize
	if size <= 0 || size > ds.Len() {
		size = ds.Len()
	}

	var loss float64
	for start := 0; start < ds.Len(); start += size {
		if err := ctx.Err(); err != nil {
			return resp, err
		}
		n := min(size, ds.Len()-start)
		x, y := ds.Batch(start, n)
		p := m.Probabilities(x)
		loss += Loss(p, y) * float64(n)
		for i, pred := range Predict(p) {
			if pred < len(resp.Histogram) {
				resp.Histogram[pred]++
			}
			if pred == y[i] {
				resp.Correct++
			}
		}
		resp.Total += uint64(n)
	}
	resp.Loss = loss / float64(resp.Total)

	return resp, nil
}

func checkLayout(m *Softmax, ds Dataset) error {
	features, classes := m.Dims()
	if _, have := ds.X.Dims(); have != features || classes != ds.Classes {
		return fmt.Errorf("%w: model is %dx%d, data has %d features and %d classes",
			ErrModelLayout, classes, features, have, ds.Classes)
	}

	return nil
}
