// Command server runs the faceted search HTTP service and, when enabled, the
// Kafka listing consumer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/facetsearch/internal/app"
	"github.com/utafrali/facetsearch/internal/config"
	pkgconfig "github.com/utafrali/facetsearch/pkg/config"
	"github.com/utafrali/facetsearch/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("search service exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; deployments set the environment directly.
	cfg, err := config.Load(pkgconfig.WithEnvFiles(".env"))
	if err != nil {
		return err
	}

	log := logger.New("facetsearch", cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting search service",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("engine", cfg.SearchEngine),
		slog.String("registry", cfg.SchemaRegistry),
		slog.String("schema_cache", cfg.SchemaCache),
		slog.Bool("kafka", cfg.KafkaEnabled),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		return err
	}
	log.Info("search service stopped")
	return nil
}
