package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/coordinator/api"
	"github.com/absmach/fedcoord/coordinator/middleware"
	"github.com/absmach/fedcoord/pkg/events"
	"github.com/absmach/fedcoord/pkg/model"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/absmach/fedcoord/trainer"
	"github.com/absmach/fedcoord/worker"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "coordinator"
	defHTTPPort   = "7070"
	envPrefixHTTP = "FEDCOORD_HTTP_"
	envPrefixMQTT = "FEDCOORD_MQTT_"
	pathEnv       = ".env"
)

type envConfig struct {
	LogLevel   string  `env:"FEDCOORD_LOG_LEVEL"    envDefault:"info"`
	InstanceID string  `env:"FEDCOORD_INSTANCE_ID"`
	ConfigPath string  `env:"FEDCOORD_CONFIG"       envDefault:"fedcoord.toml"`
	DomainID   string  `env:"FEDCOORD_DOMAIN_ID"    envDefault:"fedcoord"`
	ChannelID  string  `env:"FEDCOORD_CHANNEL_ID"   envDefault:"default"`
	ExitOnDone bool    `env:"FEDCOORD_EXIT_ON_DONE" envDefault:"false"`
	OTELURL    url.URL `env:"FEDCOORD_OTEL_URL"`
	TraceRatio float64 `env:"FEDCOORD_TRACE_RATIO"  envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	fedCfg, err := fedcoord.LoadConfig(cfg.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load federation configuration: %s", err.Error())
	}
	runCfg, err := fedCfg.Coordinator.Run()
	if err != nil {
		log.Fatalf("invalid federation configuration: %s", err.Error())
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	if fedCfg.Coordinator.Verbose {
		level = slog.LevelDebug
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler).With(slog.String("run_id", runCfg.RunID))
	slog.SetDefault(logger)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	storageCfg := storage.Config{}
	if err := env.Parse(&storageCfg); err != nil {
		logger.Error("failed to load storage configuration", slog.Any("error", err))

		return
	}
	repos, err := storage.NewRepositories(storageCfg)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("type", storageCfg.Type), slog.Any("error", err))

		return
	}
	if repos.Closer != nil {
		defer repos.Closer.Close()
	}

	topics := events.NewTopicBuilder(cfg.DomainID, cfg.ChannelID)
	emitter, disconnect, err := newEmitter(topics, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.Any("error", err))

		return
	}
	defer disconnect()

	registry, err := worker.NewRegistry(fedCfg.Workers)
	if err != nil {
		logger.Error("invalid worker configuration", slog.Any("error", err))

		return
	}
	if err := registry.Connect(ctx, worker.DialWebsocket); err != nil {
		logger.Error("failed to connect to workers", slog.Any("error", err))

		return
	}
	defer registry.Close()

	initial, err := initialModel(fedCfg)
	if err != nil {
		logger.Error("failed to load initial model", slog.Any("error", err))

		return
	}

	svc, err := coordinator.NewService(runCfg, registry, initial, repos.Rounds, repos.Checkpoints, emitter, logger)
	if err != nil {
		logger.Error("failed to create coordinator", slog.Any("error", err))

		return
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	g.Go(func() error {
		err := svc.Run(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			return fmt.Errorf("federated run aborted: %w", err)
		}
		if cfg.ExitOnDone {
			cancel()
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

// newEmitter publishes round events when a broker is configured.
func newEmitter(topics *events.TopicBuilder, logger *slog.Logger) (events.Emitter, func(), error) {
	mqttCfg := mqtt.Config{}
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefixMQTT}); err != nil {
		return nil, nil, err
	}
	if mqttCfg.URL == "" {
		return events.NewNoopEmitter(), func() {}, nil
	}

	mqttCfg.WillTopic = topics.CoordinatorStatusTopic()
	mqttCfg.WillPayload = `{"status":"offline"}`
	ps, err := mqtt.NewPubSub(mqttCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	disconnect := func() {
		if err := ps.Disconnect(context.Background()); err != nil {
			logger.Warn("failed to disconnect from mqtt broker", slog.Any("error", err))
		}
	}

	return events.NewMQTTEmitter(ps, topics), disconnect, nil
}

func initialModel(cfg *fedcoord.Config) (model.Snapshot, error) {
	if cfg.Coordinator.InitialModel != "" {
		return model.Load(cfg.Coordinator.InitialModel)
	}

	return trainer.NewSoftmax(cfg.Dataset.Features, cfg.Dataset.Classes, cfg.Coordinator.Seed).Snapshot(), nil
}
