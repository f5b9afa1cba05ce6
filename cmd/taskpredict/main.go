package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Aidin1998/taskpredict/internal/config"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	_ "github.com/Aidin1998/taskpredict/internal/ensemble/xgb"
	"github.com/Aidin1998/taskpredict/internal/features"
	"github.com/Aidin1998/taskpredict/internal/ingest"
	"github.com/Aidin1998/taskpredict/internal/predictor"
	"github.com/Aidin1998/taskpredict/internal/registry"
	"github.com/Aidin1998/taskpredict/internal/server"
	"github.com/Aidin1998/taskpredict/internal/store"
	"github.com/Aidin1998/taskpredict/internal/synthetic"
	"github.com/Aidin1998/taskpredict/internal/training"
	"github.com/Aidin1998/taskpredict/pkg/logger"
	"github.com/Aidin1998/taskpredict/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "taskpredict:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Development())
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := store.Open(cfg.Storage.SQLitePath, log)
	if err != nil {
		return err
	}

	reg := registry.New(log)
	pipeline := training.NewPipeline(st, reg, log)
	service := predictor.New(reg, pipeline, st, log, predictor.Options{
		DefaultFamily: ensemble.Family(cfg.Model.DefaultFamily),
		RetentionCap:  cfg.Model.RetentionCap,
		Alpha:         cfg.Model.Alpha,
		Seed:          cfg.Model.Seed,
		Bootstrap:     bootstrapSource(cfg, log),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing {
		shutdown, err := tracing.Setup(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	// Recover the latest persisted model; train from the bootstrap source
	// when the store is empty.
	restored, err := reg.Restore(st)
	if err != nil {
		return err
	}
	if restored {
		log.Info("restored persisted model", zap.String("version", reg.Version()))
	} else {
		log.Info("no persisted model, training from bootstrap source")
		if err := service.Bootstrap(ctx); err != nil {
			return err
		}
	}

	return server.New(cfg, service, log).Run(ctx)
}

// bootstrapSource returns the training-data source for cold starts: the
// configured CSV file when present, otherwise the synthetic generator.
func bootstrapSource(cfg *config.Config, log *zap.Logger) func() []features.Example {
	return func() []features.Example {
		if cfg.Model.DataPath != "" {
			examples, err := ingest.LoadFile(cfg.Model.DataPath)
			if err == nil {
				log.Info("loaded training data",
					zap.String("path", cfg.Model.DataPath),
					zap.Int("examples", len(examples)))
				return examples
			}
			log.Warn("training data load failed, falling back to synthetic",
				zap.String("path", cfg.Model.DataPath), zap.Error(err))
		}
		gen := synthetic.NewGenerator(cfg.Model.Seed)
		return gen.Examples(cfg.Model.BootstrapSize)
	}
}
