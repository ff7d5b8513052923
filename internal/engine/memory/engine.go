package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/internal/facet"
)

// Engine is an in-memory implementation of the SearchEngine interface.
// Matching, paging and facet counting for one search all run under a single
// read lock, so every search observes one snapshot.
type Engine struct {
	mu    sync.RWMutex
	items map[string]domain.Item
}

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{
		items: make(map[string]domain.Item),
	}
}

// Index adds or updates a single listing in the in-memory index.
func (e *Engine) Index(_ context.Context, item *domain.Item) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.items[item.ID] = *item
	return nil
}

// Delete removes a listing from the in-memory index by its ID.
func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.items, id)
	return nil
}

// BulkIndex adds or updates multiple listings in the in-memory index.
func (e *Engine) BulkIndex(_ context.Context, items []domain.Item) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range items {
		e.items[items[i].ID] = items[i]
	}
	return nil
}

// Len returns the number of indexed listings.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.items)
}

// Search executes pred against the in-memory index.
func (e *Engine) Search(ctx context.Context, pred *domain.Predicate, schema *domain.CategorySchema, page domain.PageRequest) (*domain.Snapshot, error) {
	if pred.MatchNone {
		return &domain.Snapshot{Facets: domain.Facets{}}, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched := make([]*domain.Item, 0)
	for id := range e.items {
		item := e.items[id]
		if pred.Matches(&item) {
			matched = append(matched, &item)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Before(matched[j])
	})

	total := len(matched)

	offset := page.Offset()
	if offset < 0 || offset > total {
		offset = total
	}
	end := total
	if page.PageSize > 0 && page.PageSize < total-offset {
		end = offset + page.PageSize
	}

	items := make([]domain.Item, 0, end-offset)
	for _, it := range matched[offset:end] {
		items = append(items, *it)
	}

	return &domain.Snapshot{
		Items:  items,
		Total:  total,
		Facets: facet.Normalize(facet.Aggregate(matched, schema), schema),
	}, nil
}
