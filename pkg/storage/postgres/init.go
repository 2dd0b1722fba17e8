package postgres

import (
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrMigration    = errors.New("database migration error")
	ErrSave         = errors.New("save error")
)

type Config struct {
	Host    string
	Port    string
	User    string
	Pass    string
	Name    string
	SSLMode string
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Pass, c.Name, c.SSLMode)
}

type Database struct {
	*sqlx.DB
}

func NewDatabase(cfg Config) (*Database, error) {
	return Open(cfg.DSN())
}

func Open(dsn string) (*Database, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
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
						run_id VARCHAR(36) NOT NULL,
						round_number BIGINT NOT NULL,
						status VARCHAR(16) NOT NULL,
						learning_rate DOUBLE PRECISION NOT NULL,
						contributors INTEGER NOT NULL DEFAULT 0,
						outcomes JSONB,
						evaluations JSONB,
						error TEXT NOT NULL DEFAULT '',
						started_at TIMESTAMPTZ NOT NULL,
						finished_at TIMESTAMPTZ,
						PRIMARY KEY (run_id, round_number)
					)`,
					`CREATE TABLE IF NOT EXISTS checkpoints (
						run_id VARCHAR(36) NOT NULL,
						label VARCHAR(64) NOT NULL,
						round_number BIGINT NOT NULL,
						data BYTEA NOT NULL,
						sealed BOOLEAN NOT NULL DEFAULT FALSE,
						created_at TIMESTAMPTZ NOT NULL,
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

	if _, err := migrate.Exec(db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
