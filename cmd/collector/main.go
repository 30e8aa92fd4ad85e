package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/adapter"
	"github.com/signalfold/signal-collector/internal/adapter/alertmanager"
	"github.com/signalfold/signal-collector/internal/adapter/modelhealth"
	queueadapter "github.com/signalfold/signal-collector/internal/adapter/queue"
	"github.com/signalfold/signal-collector/internal/config"
	"github.com/signalfold/signal-collector/internal/correlator"
	"github.com/signalfold/signal-collector/internal/dedup"
	"github.com/signalfold/signal-collector/internal/domain"
	"github.com/signalfold/signal-collector/internal/envelope"
	"github.com/signalfold/signal-collector/internal/logger"
	"github.com/signalfold/signal-collector/internal/queue/sqs"
	"github.com/signalfold/signal-collector/internal/repository"
	"github.com/signalfold/signal-collector/internal/repository/clickhouse"
	"github.com/signalfold/signal-collector/internal/runner"
	"github.com/signalfold/signal-collector/internal/sink"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting collector service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("scope", cfg.Runner.Scope))

	ctx := context.Background()

	// Initialize ClickHouse client
	chClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func() {
		if err := chClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}()

	// Initialize repository
	repo := clickhouse.NewRepository(chClient, log)

	// Initialize schema (create tables if not exist)
	if err := repo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}
	log.Info("Database schema initialized")

	// Initialize the dedup index
	var index dedup.Index
	if cfg.Valkey.Enabled {
		valkey, err := dedup.NewValkeyIndex(ctx, cfg.Valkey, log)
		if err != nil {
			if !cfg.Valkey.FailOpen {
				log.Fatal("Failed to connect dedup index", zap.Error(err))
			}
			log.Warn("Dedup index unavailable, starting without it", zap.Error(err))
		} else {
			defer func() {
				if err := valkey.Close(); err != nil {
					log.Error("Failed to close dedup index", zap.Error(err))
				}
			}()
			index = valkey
		}
	}

	// Ingestion path: sink feeding the correlator
	corr := correlator.New(repo, log)
	snk := sink.New(repo, index, corr, sink.Config{FailOpen: cfg.Valkey.FailOpen}, log)

	validator, err := envelope.NewValidator(time.Duration(cfg.Runner.SkewToleranceSec) * time.Second)
	if err != nil {
		log.Fatal("Failed to build envelope validator", zap.Error(err))
	}

	coordinator := runner.NewCoordinator(time.Duration(cfg.Runner.RunTimeoutSec)*time.Second, log)
	run := runner.NewRunner(coordinator, validator, snk, log)

	registry := adapter.NewRegistry()
	registerAdapters(ctx, cfg, registry, repo, log)

	// Start health check endpoint
	go serveHealth(cfg.Service.HealthPort, repo, coordinator, log)

	// Start scheduler
	schedulerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	scheduler := runner.NewScheduler(run, registry, log)

	log.Info("Collector starting",
		zap.Int("adapter_count", len(registry.List())))

	go func() {
		if err := scheduler.Start(schedulerCtx); err != nil {
			log.Fatal("Scheduler error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down collector gracefully")
	cancel()
}

// registerAdapters wires up every enabled source adapter.
func registerAdapters(ctx context.Context, cfg *config.Config, registry *adapter.Registry, repo repository.EventRepository, log *zap.Logger) {
	if cfg.Alertmanager.Enabled {
		am := alertmanager.New(alertmanager.Config{
			Scope:        cfg.Runner.Scope,
			BaseURL:      cfg.Alertmanager.BaseURL,
			PollInterval: time.Duration(cfg.Alertmanager.PollIntervalSec) * time.Second,
		}, nil, log)
		if err := registry.Register(am); err != nil {
			log.Fatal("Failed to register alertmanager adapter", zap.Error(err))
		}
	}

	if cfg.ModelHealth.Enabled {
		mh := modelhealth.New(modelhealth.Config{
			Scope:        cfg.Runner.Scope,
			Models:       cfg.ModelHealth.Models,
			PollInterval: time.Duration(cfg.ModelHealth.PollIntervalSec) * time.Second,
			Pool: modelhealth.PoolConfig{
				WindowSize:            cfg.ModelHealth.WindowSize,
				ErrorRateThreshold:    cfg.ModelHealth.ErrorRateThreshold,
				MinSamples:            cfg.ModelHealth.MinSamples,
				RequiredConsecutiveOK: cfg.ModelHealth.RequiredConsecutiveOK,
			},
		}, modelhealth.NewHTTPProber(cfg.ModelHealth.BaseURL, nil), log)

		// Rebuild quarantine membership from the stored event stream
		replayed, err := repo.ListEvents(ctx, repository.EventFilter{
			Source: mh.ID(),
			Type:   domain.TypePoolHealthChanged,
		})
		if err != nil {
			log.Warn("Failed to replay pool events, starting with an empty pool", zap.Error(err))
		} else {
			mh.RestorePool(replayed)
		}

		if err := registry.Register(mh); err != nil {
			log.Fatal("Failed to register modelhealth adapter", zap.Error(err))
		}
	}

	if cfg.SQS.Enabled {
		sqsClient, err := sqs.NewClient(ctx, cfg.SQS, log)
		if err != nil {
			log.Fatal("Failed to create SQS client", zap.Error(err))
		}
		qa := queueadapter.New(sqsClient, queueadapter.Config{
			Scope:        cfg.Runner.Scope,
			PollInterval: time.Duration(cfg.SQS.PollIntervalSec) * time.Second,
		}, log)
		if err := registry.Register(qa); err != nil {
			log.Fatal("Failed to register queue adapter", zap.Error(err))
		}
	}
}

// serveHealth exposes liveness and per-adapter run health.
func serveHealth(port string, repo repository.EventRepository, coordinator *runner.Coordinator, log *zap.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			log.Warn("Health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/adapters", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(coordinator.Records()); err != nil {
			log.Error("Failed to encode adapter records", zap.Error(err))
		}
	})

	addr := ":" + port
	log.Info("Health check server starting", zap.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("Health check server error", zap.Error(err))
	}
}
