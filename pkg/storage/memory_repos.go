package storage

import (
	"context"
	"fmt"

	"github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/round"
)

type memoryRoundRepo struct {
	storage Storage
}

func newMemoryRoundRepository(s Storage) RoundRepository {
	return &memoryRoundRepo{storage: s}
}

// Round numbers are zero padded so that key order is round order.
func roundKey(runID string, n uint64) string {
	return fmt.Sprintf("%s/%020d", runID, n)
}

func (r *memoryRoundRepo) Save(ctx context.Context, rec round.Record) error {
	if rec.RunID == "" {
		return errors.ErrEmptyKey
	}

	return r.storage.Put(ctx, roundKey(rec.RunID, rec.Round), rec)
}

func (r *memoryRoundRepo) Get(ctx context.Context, runID string, n uint64) (round.Record, error) {
	data, err := r.storage.Get(ctx, roundKey(runID, n))
	if err != nil {
		return round.Record{}, err
	}
	rec, ok := data.(round.Record)
	if !ok {
		return round.Record{}, errors.ErrInvalidData
	}

	return rec, nil
}

func (r *memoryRoundRepo) List(ctx context.Context, runID string, offset, limit uint64) ([]round.Record, uint64, error) {
	data, total, err := r.storage.List(ctx, runID+"/", offset, limit)
	if err != nil {
		return nil, 0, err
	}

	records := make([]round.Record, 0, len(data))
	for _, d := range data {
		rec, ok := d.(round.Record)
		if !ok {
			return nil, 0, errors.ErrInvalidData
		}
		records = append(records, rec)
	}

	return records, total, nil
}

type memoryCheckpointRepo struct {
	storage Storage
}

func newMemoryCheckpointRepository(s Storage) CheckpointRepository {
	return &memoryCheckpointRepo{storage: s}
}

func (r *memoryCheckpointRepo) Save(ctx context.Context, c round.Checkpoint) error {
	if c.RunID == "" || c.Label == "" {
		return errors.ErrEmptyKey
	}

	return r.storage.Put(ctx, c.RunID+"/"+c.Label, c)
}

func (r *memoryCheckpointRepo) Get(ctx context.Context, runID, label string) (round.Checkpoint, error) {
	data, err := r.storage.Get(ctx, runID+"/"+label)
	if err != nil {
		return round.Checkpoint{}, err
	}
	c, ok := data.(round.Checkpoint)
	if !ok {
		return round.Checkpoint{}, errors.ErrInvalidData
	}

	return c, nil
}
