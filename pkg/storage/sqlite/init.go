package sqlite

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrMigration    = errors.New("database migration error")
	ErrSave         = errors.New("save error")
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}
	if err := database.Migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_rounds",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS rounds (
						run_id TEXT NOT NULL,
						round_number INTEGER NOT NULL,
						status TEXT NOT NULL,
						learning_rate REAL NOT NULL,
						contributors INTEGER NOT NULL DEFAULT 0,
						outcomes TEXT,
						evaluations TEXT,
						error TEXT NOT NULL DEFAULT '',
						started_at TIMESTAMP NOT NULL,
						finished_at TIMESTAMP,
						PRIMARY KEY (run_id, round_number)
					)`,
					`CREATE TABLE IF NOT EXISTS checkpoints (
						run_id TEXT NOT NULL,
						label TEXT NOT NULL,
						round_number INTEGER NOT NULL,
						data BLOB NOT NULL,
						sealed BOOLEAN NOT NULL DEFAULT FALSE,
						created_at TIMESTAMP NOT NULL,
						PRIMARY KEY (run_id, label)
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS checkpoints`,
					`DROP TABLE IF EXISTS rounds`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
