package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/utafrali/facetsearch/internal/domain"
	apperrors "github.com/utafrali/facetsearch/pkg/errors"
	"github.com/utafrali/facetsearch/pkg/logger"
	"github.com/utafrali/facetsearch/pkg/pagination"
)

const (
	defaultReindexPageSize = 100
	catalogListingsPath    = "/api/v1/listings"
)

var (
	// ErrReindexInProgress is returned when a reindex is already running.
	ErrReindexInProgress = apperrors.Conflict("reindex already in progress")

	// ErrReindexUnavailable is returned when no catalog URL is configured.
	ErrReindexUnavailable = &apperrors.AppError{
		Code:    "REINDEX_UNAVAILABLE",
		Message: "reindex requires a catalog url",
		Status:  http.StatusServiceUnavailable,
		Kind:    apperrors.ErrServiceUnavail,
	}
)

// ReindexStats summarizes a completed reindex.
type ReindexStats struct {
	Pages    int
	Indexed  int
	Skipped  int
	Duration time.Duration
}

// Reindex pages through the catalog export and bulk indexes every listing.
// Only one reindex runs at a time.
func (s *SearchService) Reindex(ctx context.Context) (*ReindexStats, error) {
	if s.catalog == nil {
		return nil, ErrReindexUnavailable
	}
	if !s.reindexing.CompareAndSwap(false, true) {
		return nil, ErrReindexInProgress
	}
	defer s.reindexing.Store(false)

	return s.reindex(ctx)
}

// StartReindex runs Reindex in the background, detached from the caller's
// context and bounded by timeout. It fails fast when a reindex is already
// running.
func (s *SearchService) StartReindex(timeout time.Duration) error {
	if s.catalog == nil {
		return ErrReindexUnavailable
	}
	if !s.reindexing.CompareAndSwap(false, true) {
		return ErrReindexInProgress
	}

	go func() {
		defer s.reindexing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if _, err := s.reindex(ctx); err != nil {
			s.logger.ErrorContext(ctx, "background reindex failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (s *SearchService) reindex(ctx context.Context) (*ReindexStats, error) {
	log := logger.WithContext(ctx, s.logger)
	start := time.Now()
	stats := &ReindexStats{}

	log.InfoContext(ctx, "reindex started", slog.String("catalog", s.catalogURL))

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("reindex: %w", err)
		}

		var resp pagination.Result[json.RawMessage]
		if err := s.catalog.GetJSON(ctx, s.pageURL(page), &resp); err != nil {
			return stats, fmt.Errorf("fetch listings page %d: %w", page, err)
		}
		if len(resp.Data) == 0 {
			break
		}

		items := make([]domain.Item, 0, len(resp.Data))
		for _, raw := range resp.Data {
			var item domain.Item
			if err := json.Unmarshal(raw, &item); err != nil {
				stats.Skipped++
				log.WarnContext(ctx, "skipping malformed listing in catalog export",
					slog.Int("page", page),
					slog.String("error", err.Error()),
				)
				continue
			}
			items = append(items, item)
		}

		result, err := s.BulkIndex(ctx, items)
		if err != nil {
			return stats, fmt.Errorf("index listings page %d: %w", page, err)
		}
		stats.Pages++
		stats.Indexed += result.Indexed
		stats.Skipped += len(result.Rejected)

		if resp.TotalPages > 0 && page >= resp.TotalPages {
			break
		}
	}

	stats.Duration = time.Since(start)
	log.InfoContext(ctx, "reindex completed",
		slog.Int("pages", stats.Pages),
		slog.Int("indexed", stats.Indexed),
		slog.Int("skipped", stats.Skipped),
		slog.Duration("took", stats.Duration),
	)
	return stats, nil
}

func (s *SearchService) pageURL(page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(s.reindexPageSize))
	return strings.TrimRight(s.catalogURL, "/") + catalogListingsPath + "?" + q.Encode()
}
