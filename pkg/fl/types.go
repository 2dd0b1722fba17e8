package fl

import (
	"context"
	"time"

	"github.com/absmach/fedcoord/pkg/model"
)

// FederatedLabel identifies the aggregate model in evaluation reports.
// No worker may use it as its ID.
const FederatedLabel = "federated model"

type Role string

const (
	RoleTrainer   Role = "trainer"
	RoleEvaluator Role = "evaluator"
)

// WorkerInfo is what a worker reports during the connection handshake.
type WorkerInfo struct {
	ID              string `cbor:"id"               json:"id"`
	Role            Role   `cbor:"role"             json:"role"`
	ProtocolVersion uint16 `cbor:"protocol_version" json:"protocol_version"`
	NumSamples      uint64 `cbor:"num_samples"      json:"num_samples"`
	Classes         []int  `cbor:"classes"          json:"classes,omitempty"`
}

type FitRequest struct {
	Round        uint64         `cbor:"round"         json:"round"`
	Model        model.Snapshot `cbor:"model"         json:"model"`
	BatchSize    int            `cbor:"batch_size"    json:"batch_size"`
	MaxBatches   int            `cbor:"max_batches"   json:"max_batches"`
	LearningRate float64        `cbor:"learning_rate" json:"learning_rate"`
	Device       string         `cbor:"device"        json:"device,omitempty"`
}

// FitResponse carries the locally trained model. Model and Loss are nil
// when the worker had nothing to train on this round.
type FitResponse struct {
	WorkerID   string          `cbor:"worker_id"   json:"worker_id"`
	Model      *model.Snapshot `cbor:"model"       json:"model,omitempty"`
	Loss       *float64        `cbor:"loss"        json:"loss,omitempty"`
	NumSamples uint64          `cbor:"num_samples" json:"num_samples"`
}

type EvalRequest struct {
	Label      string         `cbor:"label"       json:"label"`
	Model      model.Snapshot `cbor:"model"       json:"model"`
	DatasetKey string         `cbor:"dataset_key" json:"dataset_key"`
	BatchSize  int            `cbor:"batch_size"  json:"batch_size"`
}

type EvalResponse struct {
	WorkerID  string   `cbor:"worker_id" json:"worker_id"`
	Label     string   `cbor:"label"     json:"label"`
	Loss      float64  `cbor:"loss"      json:"loss"`
	Correct   uint64   `cbor:"correct"   json:"correct"`
	Total     uint64   `cbor:"total"     json:"total"`
	Histogram []uint64 `cbor:"histogram" json:"histogram"`
}

// Accuracy is the ratio of correct predictions, zero for an empty dataset.
func (r EvalResponse) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}

	return float64(r.Correct) / float64(r.Total)
}

type Trainer interface {
	Fit(ctx context.Context, req FitRequest) (FitResponse, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, req EvalRequest) (EvalResponse, error)
}

// Result is the outcome of a single worker's training request. Exactly
// one of Model or Err is set.
type Result struct {
	WorkerID   string          `json:"worker_id"`
	Model      *model.Snapshot `json:"-"`
	Loss       float64         `json:"loss"`
	NumSamples uint64          `json:"num_samples"`
	Duration   time.Duration   `json:"duration"`
	Err        error           `json:"-"`
}

func Success(workerID string, resp FitResponse) Result {
	if resp.Model == nil {
		return Failure(workerID, ErrNoModel)
	}
	r := Result{
		WorkerID:   workerID,
		Model:      resp.Model,
		NumSamples: resp.NumSamples,
	}
	if resp.Loss != nil {
		r.Loss = *resp.Loss
	}

	return r
}

func Failure(workerID string, err error) Result {
	return Result{WorkerID: workerID, Err: err}
}

func (r Result) OK() bool {
	return r.Err == nil && r.Model != nil
}

// Update is a single contribution to aggregation.
type Update struct {
	WorkerID   string
	Model      model.Snapshot
	NumSamples uint64
}

// Updates keeps the successful results only.
func Updates(results []Result) []Update {
	updates := make([]Update, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			continue
		}
		updates = append(updates, Update{
			WorkerID:   r.WorkerID,
			Model:      *r.Model,
			NumSamples: r.NumSamples,
		})
	}

	return updates
}

type Aggregator interface {
	Aggregate(updates []Update) (model.Snapshot, error)
}
