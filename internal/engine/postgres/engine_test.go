package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/pkg/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func laptopSchema() *domain.CategorySchema {
	return &domain.CategorySchema{
		ID:   "cat-laptops",
		Slug: "laptops",
		Name: "Laptops",
		Attributes: []domain.AttributeDefinition{
			{Key: "brand", Name: "Brand", Type: domain.TypeEnum, Options: []string{"Dell", "HP", "Apple"}},
			{Key: "touchscreen", Name: "Touchscreen", Type: domain.TypeBoolean},
			{Key: "model", Name: "Model", Type: domain.TypeString},
		},
	}
}

func TestBuildSearchSQL_Args(t *testing.T) {
	pred := &domain.Predicate{
		CategoryID: "cat-laptops",
		Text:       "50%_off",
		Clauses: []domain.Clause{
			{Key: "brand", Op: domain.OpIn, Values: []string{"Dell", "HP"}},
			{Key: "touchscreen", Op: domain.OpBool, Bool: true},
		},
	}

	sql, args := buildSearchSQL(pred, laptopSchema(), domain.PageRequest{Page: 2, PageSize: 10})

	assert.Equal(t, []any{
		"cat-laptops",
		`%50\%\_off%`,
		"brand", []string{"Dell", "HP"},
		"touchscreen", true,
		10, 10,
		"brand",
		"touchscreen",
	}, args)
	assert.Contains(t, sql, "l.category_id = $1")
	assert.Contains(t, sql, "(l.title ILIKE $2 OR l.description ILIKE $2)")
	assert.Contains(t, sql, "WHERE t.v = ANY($4::text[])")
	assert.Contains(t, sql, "(COALESCE(l.attributes ->> $5::text, '') = 'true') = $6::boolean")
	assert.Contains(t, sql, "LIMIT $7 OFFSET $8")
	assert.Contains(t, sql, "UNION ALL")
	assert.NotContains(t, sql, "model")
}

func TestBuildSearchSQL_NoConstraints(t *testing.T) {
	sql, args := buildSearchSQL(&domain.Predicate{}, nil, domain.PageRequest{Page: 1, PageSize: 10})

	assert.Equal(t, []any{10, 0}, args)
	assert.Contains(t, sql, "WHERE TRUE")
	assert.Contains(t, sql, "WHERE FALSE")
}

func TestEngine_Search(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	pred := &domain.Predicate{
		CategoryID: "cat-laptops",
		Clauses:    []domain.Clause{{Key: "brand", Op: domain.OpIn, Values: []string{"Dell", "HP"}}},
	}
	page := domain.PageRequest{Page: 1, PageSize: 10}
	_, args := buildSearchSQL(pred, laptopSchema(), page)

	mock.ExpectQuery(`WITH matched AS`).
		WithArgs(args...).
		WillReturnRows(pgxmock.NewRows([]string{"total", "listings", "facets"}).AddRow(
			int64(15),
			[]byte(`[{"id":"a","title":"Dell XPS","description":"","price":999.5,"location":"Pune","categoryId":"cat-laptops","images":[],"attributes":{"brand":"Dell","touchscreen":true},"createdAt":"2025-01-01T00:00:00+00:00","updatedAt":"2025-01-01T00:00:00+00:00"}]`),
			[]byte(`[{"key":"brand","value":"HP","count":5},{"key":"brand","value":"Dell","count":10},{"key":"touchscreen","value":"false","count":15}]`),
		))

	eng := New(mock, testLogger())
	snap, err := eng.Search(context.Background(), pred, laptopSchema(), page)

	require.NoError(t, err)
	assert.Equal(t, 15, snap.Total)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 999.5, snap.Items[0].Price)
	assert.Equal(t, []domain.FacetBucket{{Value: "Dell", Count: 10}, {Value: "HP", Count: 5}}, snap.Facets["brand"])
	assert.Equal(t, []domain.FacetBucket{{Value: true, Count: 0}, {Value: false, Count: 15}}, snap.Facets["touchscreen"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Search_StoreFailure(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WITH matched AS`).WillReturnError(errors.New("canceling statement due to statement timeout"))

	_, err = New(mock, testLogger()).Search(context.Background(), &domain.Predicate{}, nil, domain.PageRequest{Page: 1, PageSize: 10})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search listings")
}

func TestEngine_Search_MatchNone(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	snap, err := New(mock, testLogger()).Search(context.Background(), domain.MatchesNothing(), laptopSchema(), domain.PageRequest{Page: 1, PageSize: 10})

	require.NoError(t, err)
	assert.Zero(t, snap.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_BulkIndex(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO listings`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	err = New(mock, testLogger()).BulkIndex(context.Background(), []domain.Item{
		{ID: "a", Title: "A", CategoryID: "cat-laptops"},
		{ID: "b", Title: "B", CategoryID: "cat-laptops"},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_BulkIndex_Empty(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	require.NoError(t, New(mock, testLogger()).BulkIndex(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Delete(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM listings`).
		WithArgs("a").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, New(mock, testLogger()).Delete(context.Background(), "a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
