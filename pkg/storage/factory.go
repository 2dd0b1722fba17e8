package storage

import (
	"fmt"
	"io"

	"github.com/absmach/fedcoord/pkg/storage/badger"
	"github.com/absmach/fedcoord/pkg/storage/postgres"
	"github.com/absmach/fedcoord/pkg/storage/sqlite"
)

type Config struct {
	Type string `env:"FEDCOORD_STORAGE_TYPE" envDefault:"memory"`

	PostgresHost    string `env:"FEDCOORD_POSTGRES_HOST"    envDefault:"localhost"`
	PostgresPort    string `env:"FEDCOORD_POSTGRES_PORT"    envDefault:"5432"`
	PostgresUser    string `env:"FEDCOORD_POSTGRES_USER"    envDefault:"fedcoord"`
	PostgresPass    string `env:"FEDCOORD_POSTGRES_PASS"    envDefault:"fedcoord"`
	PostgresDB      string `env:"FEDCOORD_POSTGRES_DB"      envDefault:"fedcoord"`
	PostgresSSLMode string `env:"FEDCOORD_POSTGRES_SSLMODE" envDefault:"disable"`

	SQLitePath string `env:"FEDCOORD_SQLITE_PATH" envDefault:"./fedcoord.db"`

	BadgerPath string `env:"FEDCOORD_BADGER_PATH" envDefault:"./data/badger"`

	// CheckpointKey is a hex encoded AES-256 key. Checkpoints are sealed
	// when it is set.
	CheckpointKey string `env:"FEDCOORD_CHECKPOINT_KEY"`
}

type Repositories struct {
	Rounds      RoundRepository
	Checkpoints CheckpointRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg Config) (*Repositories, error) {
	var (
		repos *Repositories
		err   error
	)
	switch cfg.Type {
	case "postgres":
		repos, err = newPostgresRepositories(cfg)
	case "sqlite":
		repos, err = newSQLiteRepositories(cfg)
	case "badger":
		repos, err = newBadgerRepositories(cfg)
	case "memory", "":
		repos = newMemoryRepositories()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CheckpointKey != "" {
		sealed, err := NewSealedCheckpoints(repos.Checkpoints, cfg.CheckpointKey)
		if err != nil {
			if repos.Closer != nil {
				repos.Closer.Close()
			}

			return nil, err
		}
		repos.Checkpoints = sealed
	}

	return repos, nil
}

func newPostgresRepositories(cfg Config) (*Repositories, error) {
	db, err := postgres.NewDatabase(postgres.Config{
		Host:    cfg.PostgresHost,
		Port:    cfg.PostgresPort,
		User:    cfg.PostgresUser,
		Pass:    cfg.PostgresPass,
		Name:    cfg.PostgresDB,
		SSLMode: cfg.PostgresSSLMode,
	})
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Rounds:      postgres.NewRoundRepository(db),
		Checkpoints: postgres.NewCheckpointRepository(db),
		Closer:      db,
	}, nil
}

func newSQLiteRepositories(cfg Config) (*Repositories, error) {
	db, err := sqlite.NewDatabase(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Rounds:      sqlite.NewRoundRepository(db),
		Checkpoints: sqlite.NewCheckpointRepository(db),
		Closer:      db,
	}, nil
}

func newBadgerRepositories(cfg Config) (*Repositories, error) {
	db, err := badger.NewDatabase(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Rounds:      badger.NewRoundRepository(db),
		Checkpoints: badger.NewCheckpointRepository(db),
		Closer:      db,
	}, nil
}

func newMemoryRepositories() *Repositories {
	return &Repositories{
		Rounds:      newMemoryRoundRepository(NewInMemoryStorage()),
		Checkpoints: newMemoryCheckpointRepository(NewInMemoryStorage()),
	}
}
