package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/internal/facet"
	"github.com/utafrali/facetsearch/pkg/database"
)

const upsertListingsSQL = `
		INSERT INTO listings (id, title, description, price, location, category_id, images, attributes, created_at, updated_at)
		SELECT x.id, x.title, COALESCE(x.description, ''), COALESCE(x.price, 0), COALESCE(x.location, ''),
		       x."categoryId", COALESCE(x.images, '[]'::jsonb), COALESCE(x.attributes, '{}'::jsonb),
		       COALESCE(x."createdAt", NOW()), COALESCE(x."updatedAt", NOW())
		FROM jsonb_to_recordset($1::jsonb) AS x(
			id text, title text, description text, price double precision, location text,
			"categoryId" text, images jsonb, attributes jsonb, "createdAt" timestamptz, "updatedAt" timestamptz
		)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			location = EXCLUDED.location,
			category_id = EXCLUDED.category_id,
			images = EXCLUDED.images,
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at`

const deleteListingSQL = `DELETE FROM listings WHERE id = $1`

// Engine is a PostgreSQL-backed implementation of the SearchEngine interface.
// A search is one statement, so the page, total and facets share one MVCC
// snapshot.
type Engine struct {
	db     database.DBTX
	logger *slog.Logger
}

// New creates a new PostgreSQL engine.
func New(db database.DBTX, logger *slog.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

type facetRow struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes pred as a single SQL statement.
func (e *Engine) Search(ctx context.Context, pred *domain.Predicate, schema *domain.CategorySchema, page domain.PageRequest) (_ *domain.Snapshot, err error) {
	if pred.MatchNone {
		return &domain.Snapshot{Facets: domain.Facets{}}, nil
	}

	query, args := buildSearchSQL(pred, schema, page)

	ctx, end := database.TraceQuery(ctx, "SearchListings", query)
	defer func() { end(err) }()

	var (
		total        int64
		listingsJSON []byte
		facetsJSON   []byte
	)
	if err := e.db.QueryRow(ctx, query, args...).Scan(&total, &listingsJSON, &facetsJSON); err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}

	items := make([]domain.Item, 0)
	if err := json.Unmarshal(listingsJSON, &items); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}

	var rows []facetRow
	if err := json.Unmarshal(facetsJSON, &rows); err != nil {
		return nil, fmt.Errorf("decode facets: %w", err)
	}
	counts := facet.Counts{}
	for _, r := range rows {
		counts.Add(r.Key, r.Value, r.Count)
	}

	return &domain.Snapshot{
		Items:  items,
		Total:  int(total),
		Facets: facet.Normalize(counts, schema),
	}, nil
}

// Index upserts a single listing.
func (e *Engine) Index(ctx context.Context, item *domain.Item) error {
	return e.BulkIndex(ctx, []domain.Item{*item})
}

// BulkIndex upserts listings in one statement.
func (e *Engine) BulkIndex(ctx context.Context, items []domain.Item) (err error) {
	if len(items) == 0 {
		return nil
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal listings: %w", err)
	}

	ctx, end := database.TraceQuery(ctx, "UpsertListings", upsertListingsSQL)
	defer func() { end(err) }()

	if _, err := e.db.Exec(ctx, upsertListingsSQL, string(data)); err != nil {
		return fmt.Errorf("upsert listings: %w", err)
	}

	e.logger.Debug("upserted listings", "count", len(items))
	return nil
}

// Delete removes a listing. Deleting a missing listing is not an error.
func (e *Engine) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteListing", deleteListingSQL)
	defer func() { end(err) }()

	if _, err := e.db.Exec(ctx, deleteListingSQL, id); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return nil
}
