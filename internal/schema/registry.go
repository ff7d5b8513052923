// Package schema provides read access to category attribute schemas.
package schema

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/utafrali/facetsearch/internal/domain"
)

// Registry resolves category schemas. GetSchema returns
// domain.ErrCategoryNotFound when the slug is not mapped.
type Registry interface {
	GetSchema(ctx context.Context, slug string) (*domain.CategorySchema, error)
	ListSchemas(ctx context.Context) ([]domain.CategorySchema, error)
}

// StaticRegistry serves schemas held in memory. Replace swaps the whole set
// atomically.
type StaticRegistry struct {
	mu     sync.RWMutex
	bySlug map[string]domain.CategorySchema
	order  []string
}

// NewStaticRegistry validates schemas and returns a registry serving them.
func NewStaticRegistry(schemas []domain.CategorySchema) (*StaticRegistry, error) {
	r := &StaticRegistry{}
	if err := r.Replace(schemas); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace validates schemas and swaps them in. Slugs and ids must be unique.
func (r *StaticRegistry) Replace(schemas []domain.CategorySchema) error {
	bySlug := make(map[string]domain.CategorySchema, len(schemas))
	ids := make(map[string]struct{}, len(schemas))
	order := make([]string, 0, len(schemas))

	for i := range schemas {
		s := schemas[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := bySlug[s.Slug]; dup {
			return fmt.Errorf("duplicate category slug %q", s.Slug)
		}
		if _, dup := ids[s.ID]; dup {
			return fmt.Errorf("duplicate category id %q", s.ID)
		}
		bySlug[s.Slug] = s
		ids[s.ID] = struct{}{}
		order = append(order, s.Slug)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return bySlug[order[i]].Name < bySlug[order[j]].Name
	})

	r.mu.Lock()
	r.bySlug = bySlug
	r.order = order
	r.mu.Unlock()
	return nil
}

// GetSchema returns a copy of the schema registered under slug.
func (r *StaticRegistry) GetSchema(_ context.Context, slug string) (*domain.CategorySchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.bySlug[slug]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	return &s, nil
}

// ListSchemas returns all schemas ordered by name.
func (r *StaticRegistry) ListSchemas(_ context.Context) ([]domain.CategorySchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.CategorySchema, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.bySlug[slug])
	}
	return out, nil
}

// catalogFile is the on-disk YAML layout of a schema catalog.
type catalogFile struct {
	Categories []domain.CategorySchema `yaml:"categories"`
}

// LoadFile reads a YAML catalog of category schemas.
func LoadFile(path string) (*StaticRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog of category schemas.
func Parse(data []byte) (*StaticRegistry, error) {
	var cat catalogFile
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decode schema catalog: %w", err)
	}
	reg, err := NewStaticRegistry(cat.Categories)
	if err != nil {
		return nil, fmt.Errorf("validate schema catalog: %w", err)
	}
	return reg, nil
}

// FindByID scans a registry listing for the schema with the given id.
func FindByID(ctx context.Context, r Registry, id string) (*domain.CategorySchema, error) {
	schemas, err := r.ListSchemas(ctx)
	if err != nil {
		return nil, err
	}
	for i := range schemas {
		if schemas[i].ID == id {
			return &schemas[i], nil
		}
	}
	return nil, domain.ErrCategoryNotFound
}
