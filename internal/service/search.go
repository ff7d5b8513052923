package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/internal/engine"
	"github.com/utafrali/facetsearch/internal/query"
	"github.com/utafrali/facetsearch/internal/schema"
	apperrors "github.com/utafrali/facetsearch/pkg/errors"
	"github.com/utafrali/facetsearch/pkg/httpclient"
	"github.com/utafrali/facetsearch/pkg/logger"
	"github.com/utafrali/facetsearch/pkg/pagination"
)

// DefaultQueryTimeout bounds one search when no timeout is configured.
const DefaultQueryTimeout = 5 * time.Second

// Options configures a SearchService.
type Options struct {
	// QueryTimeout bounds compile plus store read of one search.
	QueryTimeout time.Duration

	// CatalogURL is the base URL of the catalog export used by Reindex.
	// Reindex is unavailable when empty.
	CatalogURL string

	// Catalog is the client used for the export. A client with the default
	// retry and breaker settings is built when nil.
	Catalog *httpclient.Breaker

	// ReindexPageSize is the per_page requested from the export.
	ReindexPageSize int
}

// SearchService implements faceted search over a category-scoped listing
// index, plus the ingestion paths that keep the index current.
type SearchService struct {
	engine   engine.SearchEngine
	registry schema.Registry
	compiler *query.Compiler
	logger   *slog.Logger

	queryTimeout    time.Duration
	catalogURL      string
	catalog         *httpclient.Breaker
	reindexPageSize int
	reindexing      atomic.Bool
}

// NewSearchService creates a new search service.
func NewSearchService(eng engine.SearchEngine, registry schema.Registry, logger *slog.Logger, opts Options) *SearchService {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if opts.ReindexPageSize <= 0 {
		opts.ReindexPageSize = defaultReindexPageSize
	}
	if opts.ReindexPageSize > MaxBulkSize {
		opts.ReindexPageSize = MaxBulkSize
	}
	if opts.Catalog == nil && opts.CatalogURL != "" {
		opts.Catalog = httpclient.NewBreaker(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultBreakerConfig("catalog"),
			logger,
		)
	}

	return &SearchService{
		engine:          eng,
		registry:        registry,
		compiler:        query.NewCompiler(registry, logger),
		logger:          logger,
		queryTimeout:    opts.QueryTimeout,
		catalogURL:      opts.CatalogURL,
		catalog:         opts.Catalog,
		reindexPageSize: opts.ReindexPageSize,
	}
}

// Search runs a faceted search with already decoded filters.
func (s *SearchService) Search(ctx context.Context, req *domain.FilterRequest) (*domain.SearchResult, error) {
	return s.search(ctx, req, func(ctx context.Context) (*domain.Predicate, *domain.CategorySchema, error) {
		return s.compiler.Compile(ctx, req)
	})
}

// SearchRaw runs a faceted search whose filters arrive as the serialized
// JSON object of the query string. A malformed payload searches without
// attribute filters.
func (s *SearchService) SearchRaw(ctx context.Context, req *domain.FilterRequest, rawFilters string) (*domain.SearchResult, error) {
	return s.search(ctx, req, func(ctx context.Context) (*domain.Predicate, *domain.CategorySchema, error) {
		return s.compiler.CompileRaw(ctx, req, rawFilters)
	})
}

type compileFunc func(ctx context.Context) (*domain.Predicate, *domain.CategorySchema, error)

func (s *SearchService) search(ctx context.Context, req *domain.FilterRequest, compile compileFunc) (*domain.SearchResult, error) {
	start := time.Now()
	log := logger.WithContext(ctx, s.logger)

	page := pagination.Normalize(req.Page, req.PageSize)
	req.Page, req.PageSize = page.Page, page.PageSize

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	pred, categorySchema, err := compile(ctx)
	if err != nil {
		return nil, s.storeFailure(ctx, start, "compile search", err)
	}
	if pred.MatchNone {
		s.observe(start, outcomeEmpty)
		return EmptyResult(pagination.DefaultParams()), nil
	}

	snap, err := s.engine.Search(ctx, pred, categorySchema, domain.PageRequest{Page: page.Page, PageSize: page.PageSize})
	if err != nil {
		return nil, s.storeFailure(ctx, start, "execute search", err)
	}

	result := Assemble(snap, categorySchema, page)
	s.observe(start, outcomeOK)

	log.DebugContext(ctx, "search executed",
		slog.String("category", req.CategorySlug),
		slog.String("query", req.Text),
		slog.Int("clauses", len(pred.Clauses)),
		slog.Int("total", result.TotalResults),
		slog.Duration("took", time.Since(start)),
	)

	return result, nil
}

// storeFailure logs a failed read and maps it to the error surfaced to
// callers. Timeouts and cancellations become 503, anything else 500.
func (s *SearchService) storeFailure(ctx context.Context, start time.Time, op string, err error) error {
	log := logger.WithContext(ctx, s.logger)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		s.observe(start, outcomeUnavailable)
		log.ErrorContext(ctx, op+" timed out", slog.String("error", err.Error()))
		return apperrors.ServiceUnavailable(fmt.Errorf("%s: %w", op, err))
	}

	s.observe(start, outcomeError)
	log.ErrorContext(ctx, op+" failed", slog.String("error", err.Error()))
	return apperrors.Internal(fmt.Errorf("%s: %w", op, err))
}

func (s *SearchService) observe(start time.Time, outcome string) {
	searchRequestsTotal.WithLabelValues(outcome).Inc()
	searchDuration.Observe(time.Since(start).Seconds())
}

// ListCategories returns every category schema for category selectors.
func (s *SearchService) ListCategories(ctx context.Context) ([]domain.CategorySchema, error) {
	schemas, err := s.registry.ListSchemas(ctx)
	if err != nil {
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "list categories failed",
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Internal(fmt.Errorf("list categories: %w", err))
	}

	out := make([]domain.CategorySchema, len(schemas))
	for i, sc := range schemas {
		if sc.Attributes == nil {
			sc.Attributes = []domain.AttributeDefinition{}
		}
		out[i] = sc
	}
	return out, nil
}

// cacheInvalidator is implemented by registries that cache schemas.
type cacheInvalidator interface {
	Invalidate(ctx context.Context, slug string) error
}

// InvalidateCategory drops any cached copy of the schema for slug.
func (s *SearchService) InvalidateCategory(ctx context.Context, slug string) error {
	inv, ok := s.registry.(cacheInvalidator)
	if !ok {
		return nil
	}
	if err := inv.Invalidate(ctx, slug); err != nil {
		return fmt.Errorf("invalidate category %q: %w", slug, err)
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "category schema invalidated",
		slog.String("category", slug),
	)
	return nil
}
