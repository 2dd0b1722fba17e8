package storage

import (
	"context"

	"github.com/absmach/fedcoord/pkg/round"
)

type RoundRepository interface {
	// Save inserts the record or replaces the one stored for the same run and round.
	Save(ctx context.Context, r round.Record) error
	Get(ctx context.Context, runID string, n uint64) (round.Record, error)
	// List returns records of a run ordered by round number.
	List(ctx context.Context, runID string, offset, limit uint64) ([]round.Record, uint64, error)
}

type CheckpointRepository interface {
	Save(ctx context.Context, c round.Checkpoint) error
	Get(ctx context.Context, runID, label string) (round.Checkpoint, error)
}
