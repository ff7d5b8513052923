package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/facetsearch/internal/domain"
	apperrors "github.com/utafrali/facetsearch/pkg/errors"
	"github.com/utafrali/facetsearch/pkg/logger"
	"github.com/utafrali/facetsearch/pkg/validator"
)

// MaxBulkSize is the largest batch accepted by BulkIndex.
const MaxBulkSize = 500

// BulkRejection names one listing that was left out of a bulk write.
type BulkRejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkIndexResult reports the outcome of a bulk write.
type BulkIndexResult struct {
	Indexed  int             `json:"indexed"`
	Rejected []BulkRejection `json:"rejected"`
}

// IndexListing validates a listing, coerces its attributes against its
// category schema and writes it to the index.
func (s *SearchService) IndexListing(ctx context.Context, item *domain.Item) error {
	schemas, err := s.schemasByID(ctx)
	if err != nil {
		return err
	}

	prepared, err := s.prepare(ctx, *item, schemas, time.Now().UTC())
	if err != nil {
		return err
	}

	if err := s.engine.Index(ctx, &prepared); err != nil {
		return fmt.Errorf("index listing: %w", err)
	}
	listingsIndexedTotal.WithLabelValues("index").Inc()

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "listing indexed",
		slog.String("listing_id", prepared.ID),
		slog.String("category_id", prepared.CategoryID),
	)
	return nil
}

// BulkIndex writes the valid listings of items in one engine call. Invalid
// listings are skipped and reported.
func (s *SearchService) BulkIndex(ctx context.Context, items []domain.Item) (*BulkIndexResult, error) {
	if len(items) > MaxBulkSize {
		return nil, apperrors.InvalidInput(fmt.Sprintf("at most %d listings per bulk request", MaxBulkSize))
	}

	schemas, err := s.schemasByID(ctx)
	if err != nil {
		return nil, err
	}

	result := &BulkIndexResult{Rejected: []BulkRejection{}}
	prepared := make([]domain.Item, 0, len(items))
	now := time.Now().UTC()

	for _, item := range items {
		p, err := s.prepare(ctx, item, schemas, now)
		if err != nil {
			result.Rejected = append(result.Rejected, BulkRejection{ID: item.ID, Reason: rejectionReason(err)})
			continue
		}
		prepared = append(prepared, p)
	}

	if len(prepared) > 0 {
		if err := s.engine.BulkIndex(ctx, prepared); err != nil {
			return nil, fmt.Errorf("bulk index: %w", err)
		}
	}
	result.Indexed = len(prepared)
	listingsIndexedTotal.WithLabelValues("bulk_index").Add(float64(len(prepared)))

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "bulk index completed",
		slog.Int("indexed", result.Indexed),
		slog.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

// DeleteListing removes a listing from the index.
func (s *SearchService) DeleteListing(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("listing id is required")
	}

	if err := s.engine.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	listingsIndexedTotal.WithLabelValues("delete").Inc()

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "listing deleted from index",
		slog.String("listing_id", id),
	)
	return nil
}

func (s *SearchService) schemasByID(ctx context.Context) (map[string]*domain.CategorySchema, error) {
	schemas, err := s.registry.ListSchemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category schemas: %w", err)
	}
	byID := make(map[string]*domain.CategorySchema, len(schemas))
	for i := range schemas {
		byID[schemas[i].ID] = &schemas[i]
	}
	return byID, nil
}

// prepare returns a copy of item ready for the index. Attributes declared by
// the category schema are coerced to their declared type; undeclared ones are
// stored as given. Listings of categories the registry does not know yet are
// indexed untyped.
func (s *SearchService) prepare(ctx context.Context, item domain.Item, schemas map[string]*domain.CategorySchema, now time.Time) (domain.Item, error) {
	if err := validator.Validate(item); err != nil {
		return domain.Item{}, apperrors.InvalidInput(err.Error())
	}

	if item.Images == nil {
		item.Images = []string{}
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	attrs := make(map[string]domain.AttributeValue, len(item.Attributes))
	categorySchema, known := schemas[item.CategoryID]
	if !known {
		logger.WithContext(ctx, s.logger).WarnContext(ctx, "indexing listing of unknown category untyped",
			slog.String("listing_id", item.ID),
			slog.String("category_id", item.CategoryID),
		)
	}

	for key, v := range item.Attributes {
		if !domain.ValidAttributeKey(key) {
			return domain.Item{}, apperrors.InvalidInput(fmt.Sprintf("invalid attribute key %q", key))
		}
		def, ok := categorySchema.Attribute(key)
		if !ok {
			attrs[key] = v
			continue
		}
		coerced, err := v.Coerce(def)
		if err != nil {
			return domain.Item{}, apperrors.InvalidInput(err.Error())
		}
		attrs[key] = coerced
	}
	item.Attributes = attrs

	return item, nil
}

func rejectionReason(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
