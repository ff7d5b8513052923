package engine

import (
	"context"

	"github.com/utafrali/facetsearch/internal/domain"
)

// SearchEngine defines the interface for indexing listings and running faceted
// searches. Implementations may use Elasticsearch, PostgreSQL or in-memory
// storage.
type SearchEngine interface {
	// Index adds or updates a single listing.
	Index(ctx context.Context, item *domain.Item) error

	// Delete removes a listing by its ID. Deleting a missing listing is not an error.
	Delete(ctx context.Context, id string) error

	// Search runs pred in one consistent read and returns the requested page,
	// the total match count and the facet counts for every facetable
	// attribute of schema over the same matched set. Items are ordered by
	// creation time, then id.
	Search(ctx context.Context, pred *domain.Predicate, schema *domain.CategorySchema, page domain.PageRequest) (*domain.Snapshot, error)

	// BulkIndex adds or updates multiple listings.
	BulkIndex(ctx context.Context, items []domain.Item) error
}

// Pinger is implemented by engines backed by a remote store.
type Pinger interface {
	Ping(ctx context.Context) error
}
