package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/transport/ws"
	"github.com/absmach/fedcoord/trainer"
	"github.com/absmach/supermq"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "worker"
	defHTTPPort   = "8777"
	envPrefixHTTP = "WORKER_HTTP_"
	pathEnv       = ".env"
)

type config struct {
	LogLevel   string `env:"WORKER_LOG_LEVEL"   envDefault:"info"`
	InstanceID string `env:"WORKER_INSTANCE_ID"`
	ID         string `env:"WORKER_ID"`
	Role       string `env:"WORKER_ROLE"`
	Classes    string `env:"WORKER_CLASSES"`
	Stream     uint64 `env:"WORKER_STREAM"      envDefault:"0"`
	// ConfigPath points to the federation config. Its dataset section is
	// shared by every worker and the entry matching ID fills the role and
	// classes when they are not set in the environment.
	ConfigPath string `env:"WORKER_CONFIG"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler).With(slog.String("worker_id", cfg.ID))
	slog.SetDefault(logger)

	trainerCfg, err := trainerConfig(cfg)
	if err != nil {
		logger.Error("invalid worker configuration", slog.Any("error", err))

		return
	}

	backend, err := trainer.NewService(trainerCfg)
	if err != nil {
		logger.Error("failed to create worker", slog.Any("error", err))

		return
	}
	backend = trainer.Logging(logger, backend)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	mux := chi.NewRouter()
	mux.Get("/health", supermq.Health(svcName, cfg.InstanceID))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", ws.NewServer(backend, logger))

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, mux, logger)

	logger.Info("worker ready",
		slog.String("role", string(trainerCfg.Role)),
		slog.Any("classes", trainerCfg.Classes),
	)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

func trainerConfig(cfg config) (trainer.Config, error) {
	tc := trainer.Config{
		ID:      cfg.ID,
		Role:    fl.Role(cfg.Role),
		Dataset: trainer.DefaultDatasetConfig(),
		Stream:  cfg.Stream,
	}
	classes := cfg.Classes

	if cfg.ConfigPath != "" {
		fedCfg, err := fedcoord.LoadConfig(cfg.ConfigPath)
		if err != nil {
			return trainer.Config{}, err
		}
		tc.Dataset = fedCfg.Dataset
		for _, w := range fedCfg.Workers {
			if w.ID != cfg.ID {
				continue
			}
			if tc.Role == "" {
				tc.Role = w.Role
			}
			if classes == "" {
				classes = w.Classes
			}
		}
	}
	if tc.Role == "" {
		tc.Role = fl.RoleTrainer
	}
	// The evaluator draws from its own stream so test samples never
	// coincide with training samples.
	if tc.Role == fl.RoleEvaluator && tc.Stream == 0 {
		tc.Stream = 1
	}

	ranges, err := fl.ParseClassRanges(classes)
	if err != nil {
		return trainer.Config{}, err
	}
	for _, r := range ranges {
		tc.Classes = append(tc.Classes, r.Classes()...)
	}

	return tc, nil
}
