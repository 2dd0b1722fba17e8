package badger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/absmach/fedcoord/pkg/round"
)

type RoundRepository struct {
	db *Database
}

func NewRoundRepository(db *Database) *RoundRepository {
	return &RoundRepository{db: db}
}

func roundPrefix(runID string) []byte {
	return []byte("round:" + runID + ":")
}

func roundKey(runID string, n uint64) []byte {
	return fmt.Appendf(roundPrefix(runID), "%020d", n)
}

func (r *RoundRepository) Save(_ context.Context, rec round.Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(roundKey(rec.RunID, rec.Round), val)
}

func (r *RoundRepository) Get(_ context.Context, runID string, n uint64) (round.Record, error) {
	val, err := r.db.get(roundKey(runID, n))
	if err != nil {
		return round.Record{}, err
	}
	var rec round.Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return round.Record{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return rec, nil
}

func (r *RoundRepository) List(_ context.Context, runID string, offset, limit uint64) ([]round.Record, uint64, error) {
	values, total, err := r.db.list(roundPrefix(runID), offset, limit)
	if err != nil {
		return nil, 0, err
	}
	records := make([]round.Record, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &records[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return records, total, nil
}
