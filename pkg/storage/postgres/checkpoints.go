package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/round"
)

type CheckpointRepository struct {
	db *Database
}

func NewCheckpointRepository(db *Database) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

type dbCheckpoint struct {
	RunID     string    `db:"run_id"`
	Label     string    `db:"label"`
	Round     uint64    `db:"round_number"`
	Data      []byte    `db:"data"`
	Sealed    bool      `db:"sealed"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *CheckpointRepository) Save(ctx context.Context, c round.Checkpoint) error {
	query := `INSERT INTO checkpoints (run_id, label, round_number, data, sealed, created_at)
		VALUES (:run_id, :label, :round_number, :data, :sealed, :created_at)
		ON CONFLICT (run_id, label) DO UPDATE SET
			round_number = excluded.round_number,
			data = excluded.data,
			sealed = excluded.sealed,
			created_at = excluded.created_at`

	dbc := dbCheckpoint{
		RunID:     c.RunID,
		Label:     c.Label,
		Round:     c.Round,
		Data:      c.Data,
		Sealed:    c.Sealed,
		CreatedAt: c.CreatedAt.UTC(),
	}
	if _, err := r.db.NamedExecContext(ctx, query, dbc); err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}

	return nil
}

func (r *CheckpointRepository) Get(ctx context.Context, runID, label string) (round.Checkpoint, error) {
	query := `SELECT run_id, label, round_number, data, sealed, created_at FROM checkpoints WHERE run_id = $1 AND label = $2`

	var dbc dbCheckpoint
	if err := r.db.GetContext(ctx, &dbc, query, runID, label); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return round.Checkpoint{}, pkgerrors.ErrNotFound
		}

		return round.Checkpoint{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return round.Checkpoint{
		RunID:     dbc.RunID,
		Label:     dbc.Label,
		Round:     dbc.Round,
		Data:      dbc.Data,
		Sealed:    dbc.Sealed,
		CreatedAt: dbc.CreatedAt,
	}, nil
}
