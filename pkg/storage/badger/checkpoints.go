package badger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/absmach/fedcoord/pkg/round"
)

type CheckpointRepository struct {
	db *Database
}

func NewCheckpointRepository(db *Database) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

func checkpointKey(runID, label string) []byte {
	return []byte("checkpoint:" + runID + ":" + label)
}

func (r *CheckpointRepository) Save(_ context.Context, c round.Checkpoint) error {
	val, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(checkpointKey(c.RunID, c.Label), val)
}

func (r *CheckpointRepository) Get(_ context.Context, runID, label string) (round.Checkpoint, error) {
	val, err := r.db.get(checkpointKey(runID, label))
	if err != nil {
		return round.Checkpoint{}, err
	}
	var c round.Checkpoint
	if err := json.Unmarshal(val, &c); err != nil {
		return round.Checkpoint{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return c, nil
}
