package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/round"
)

type RoundRepository struct {
	db *Database
}

func NewRoundRepository(db *Database) *RoundRepository {
	return &RoundRepository{db: db}
}

type dbRound struct {
	RunID        string     `db:"run_id"`
	Round        uint64     `db:"round_number"`
	Status       string     `db:"status"`
	LearningRate float64    `db:"learning_rate"`
	Contributors int        `db:"contributors"`
	Outcomes     []byte     `db:"outcomes"`
	Evaluations  []byte     `db:"evaluations"`
	Error        string     `db:"error"`
	StartedAt    time.Time  `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
}

const roundColumns = `run_id, round_number, status, learning_rate, contributors, outcomes, evaluations, error, started_at, finished_at`

func (r *RoundRepository) Save(ctx context.Context, rec round.Record) error {
	dbr, err := toDBRound(rec)
	if err != nil {
		return err
	}

	query := `INSERT INTO rounds (` + roundColumns + `)
		VALUES (:run_id, :round_number, :status, :learning_rate, :contributors, :outcomes, :evaluations, :error, :started_at, :finished_at)
		ON CONFLICT (run_id, round_number) DO UPDATE SET
			status = excluded.status,
			learning_rate = excluded.learning_rate,
			contributors = excluded.contributors,
			outcomes = excluded.outcomes,
			evaluations = excluded.evaluations,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`

	if _, err := r.db.NamedExecContext(ctx, query, dbr); err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}

	return nil
}

func (r *RoundRepository) Get(ctx context.Context, runID string, n uint64) (round.Record, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE run_id = $1 AND round_number = $2`

	var dbr dbRound
	if err := r.db.GetContext(ctx, &dbr, query, runID, n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return round.Record{}, pkgerrors.ErrNotFound
		}

		return round.Record{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toRecord(dbr)
}

func (r *RoundRepository) List(ctx context.Context, runID string, offset, limit uint64) ([]round.Record, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM rounds WHERE run_id = $1`, runID); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	// LIMIT NULL is no limit.
	var lim *uint64
	if limit > 0 {
		lim = &limit
	}
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE run_id = $1 ORDER BY round_number LIMIT $2 OFFSET $3`

	var rows []dbRound
	if err := r.db.SelectContext(ctx, &rows, query, runID, lim, offset); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	records := make([]round.Record, 0, len(rows))
	for _, dbr := range rows {
		rec, err := toRecord(dbr)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	return records, total, nil
}

func toDBRound(rec round.Record) (dbRound, error) {
	outcomes, err := jsonBytes(rec.Outcomes)
	if err != nil {
		return dbRound{}, fmt.Errorf("marshal error: %w", err)
	}
	evaluations, err := jsonBytes(rec.Evaluations)
	if err != nil {
		return dbRound{}, fmt.Errorf("marshal error: %w", err)
	}

	dbr := dbRound{
		RunID:        rec.RunID,
		Round:        rec.Round,
		Status:       string(rec.Status),
		LearningRate: rec.LearningRate,
		Contributors: rec.Contributors,
		Outcomes:     outcomes,
		Evaluations:  evaluations,
		Error:        rec.Error,
		StartedAt:    rec.StartedAt.UTC(),
	}
	if !rec.FinishedAt.IsZero() {
		t := rec.FinishedAt.UTC()
		dbr.FinishedAt = &t
	}

	return dbr, nil
}

func toRecord(dbr dbRound) (round.Record, error) {
	rec := round.Record{
		RunID:        dbr.RunID,
		Round:        dbr.Round,
		Status:       round.Status(dbr.Status),
		LearningRate: dbr.LearningRate,
		Contributors: dbr.Contributors,
		Error:        dbr.Error,
		StartedAt:    dbr.StartedAt,
	}
	if dbr.FinishedAt != nil {
		rec.FinishedAt = *dbr.FinishedAt
	}
	if len(dbr.Outcomes) > 0 {
		if err := json.Unmarshal(dbr.Outcomes, &rec.Outcomes); err != nil {
			return round.Record{}, fmt.Errorf("unmarshal error: %w", err)
		}
	}
	if len(dbr.Evaluations) > 0 {
		if err := json.Unmarshal(dbr.Evaluations, &rec.Evaluations); err != nil {
			return round.Record{}, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return rec, nil
}
