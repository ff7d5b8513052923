package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/pkg/database"
)

const (
	getSchemaSQL = `SELECT id, slug, name, attribute_schema FROM categories WHERE slug = $1`

	listSchemasSQL = `SELECT id, slug, name, attribute_schema FROM categories ORDER BY name, slug`
)

// PostgresRegistry reads schemas from the categories table.
type PostgresRegistry struct {
	db database.DBTX
}

// NewPostgresRegistry creates a new PostgresRegistry.
func NewPostgresRegistry(db database.DBTX) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// GetSchema loads the schema for slug.
func (r *PostgresRegistry) GetSchema(ctx context.Context, slug string) (_ *domain.CategorySchema, err error) {
	ctx, end := database.TraceQuery(ctx, "GetSchema", getSchemaSQL)
	defer func() { end(err) }()

	s, err := scanSchema(r.db.QueryRow(ctx, getSchemaSQL, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schema %q: %w", slug, err)
	}
	return s, nil
}

// ListSchemas loads every schema ordered by name.
func (r *PostgresRegistry) ListSchemas(ctx context.Context) (_ []domain.CategorySchema, err error) {
	ctx, end := database.TraceQuery(ctx, "ListSchemas", listSchemasSQL)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, listSchemasSQL)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	var out []domain.CategorySchema
	for rows.Next() {
		s, err := scanSchema(rows)
		if err != nil {
			return nil, fmt.Errorf("list schemas: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	return out, nil
}

func scanSchema(row pgx.Row) (*domain.CategorySchema, error) {
	var (
		s     domain.CategorySchema
		attrs []byte
	)
	if err := row.Scan(&s.ID, &s.Slug, &s.Name, &attrs); err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &s.Attributes); err != nil {
			return nil, fmt.Errorf("decode attribute schema of %q: %w", s.Slug, err)
		}
	}
	return &s, nil
}
