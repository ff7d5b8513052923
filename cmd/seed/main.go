// Command seed bulk-indexes deterministic demo listings into a running search
// service through its admin API.
//
// Run: go run ./cmd/seed -per-category 1000
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/internal/schema"
	"github.com/utafrali/facetsearch/internal/seed"
	"github.com/utafrali/facetsearch/internal/service"
	pkgconfig "github.com/utafrali/facetsearch/pkg/config"
	"github.com/utafrali/facetsearch/pkg/httpclient"
	"github.com/utafrali/facetsearch/pkg/logger"
)

type seedConfig struct {
	SearchURL   string `env:"SEARCH_URL" envDefault:"http://localhost:8010"`
	CatalogFile string `env:"CATALOG_FILE" envDefault:"config/catalog.yaml"`
	AdminToken  string `env:"ADMIN_TOKEN"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	var cfg seedConfig
	if err := pkgconfig.Load(&cfg, pkgconfig.WithEnvFiles(".env")); err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var (
		searchURL   = flag.String("url", cfg.SearchURL, "search service base URL")
		catalogFile = flag.String("catalog", cfg.CatalogFile, "category schema catalog")
		perCategory = flag.Int("per-category", 500, "listings generated per category")
		batchSize   = flag.Int("batch", service.MaxBulkSize, "listings per bulk request")
		randSeed    = flag.Uint64("seed", 1, "random seed")
	)
	flag.Parse()

	log := logger.New("facetsearch-seed", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, log, *searchURL, *catalogFile, cfg.AdminToken, *perCategory, *batchSize, *randSeed); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, searchURL, catalogFile, token string, perCategory, batchSize int, randSeed uint64) error {
	reg, err := schema.LoadFile(catalogFile)
	if err != nil {
		return err
	}
	schemas, err := reg.ListSchemas(ctx)
	if err != nil {
		return err
	}

	items := seed.Generate(schemas, perCategory, randSeed)
	log.Info("generated listings",
		slog.Int("categories", len(schemas)),
		slog.Int("listings", len(items)),
	)

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = time.Minute
	client := httpclient.New(clientCfg)

	if batchSize <= 0 || batchSize > service.MaxBulkSize {
		batchSize = service.MaxBulkSize
	}

	var indexed, rejected int
	for i, batch := range seed.Batches(items, batchSize) {
		result, err := postBatch(ctx, client, searchURL+"/api/index/listings/bulk", token, batch)
		if err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}
		indexed += result.Indexed
		rejected += len(result.Rejected)
		for _, r := range result.Rejected {
			log.Warn("listing rejected", slog.String("listing_id", r.ID), slog.String("reason", r.Reason))
		}
		log.Info("batch indexed", slog.Int("batch", i+1), slog.Int("indexed", result.Indexed))
	}

	log.Info("seed complete", slog.Int("indexed", indexed), slog.Int("rejected", rejected))
	return nil
}

func postBatch(ctx context.Context, client *httpclient.Client, url, token string, batch []domain.Item) (*service.BulkIndexResult, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	var envelope struct {
		Data service.BulkIndexResult `json:"data"`
	}
	if err := client.PostJSON(ctx, url, header, map[string]any{"listings": batch}, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}
