// Package round holds the persisted outcome of federated training rounds.
package round

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const FinalLabel = "final"

// Outcome is the recorded result of one worker in one round.
type Outcome struct {
	WorkerID   string        `json:"worker_id"`
	OK         bool          `json:"ok"`
	Loss       float64       `json:"loss,omitempty"`
	NumSamples uint64        `json:"num_samples,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

type Evaluation struct {
	Label     string             `json:"label"`
	Accuracy  float64            `json:"accuracy"`
	Loss      float64            `json:"loss"`
	Correct   uint64             `json:"correct"`
	Total     uint64             `json:"total"`
	Histogram []uint64           `json:"histogram,omitempty"`
	Shares    map[string]float64 `json:"shares,omitempty"`
	Error     string             `json:"error,omitempty"`
}

type Record struct {
	RunID        string       `json:"run_id"`
	Round        uint64       `json:"round"`
	Status       Status       `json:"status"`
	LearningRate float64      `json:"learning_rate"`
	Contributors int          `json:"contributors"`
	Outcomes     []Outcome    `json:"outcomes"`
	Evaluations  []Evaluation `json:"evaluations,omitempty"`
	Error        string       `json:"error,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at,omitzero"`
}

// Failed counts workers that did not contribute.
func (r Record) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.OK {
			n++
		}
	}

	return n
}

type Page struct {
	Offset uint64   `json:"offset"`
	Limit  uint64   `json:"limit"`
	Total  uint64   `json:"total"`
	Rounds []Record `json:"rounds"`
}

// Checkpoint is an encoded model snapshot stored under a label, either
// the round it was produced in or FinalLabel.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	Label     string    `json:"label"`
	Round     uint64    `json:"round"`
	Data      []byte    `json:"data"`
	Sealed    bool      `json:"sealed"`
	CreatedAt time.Time `json:"created_at"`
}

func RoundLabel(n uint64) string {
	return fmt.Sprintf("round-%d", n)
}
