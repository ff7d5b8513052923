package schema

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/pkg/database"
)

var schemaColumns = []string{"id", "slug", "name", "attribute_schema"}

func TestPostgresRegistry_GetSchema(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(getSchemaSQL)).
		WithArgs("laptops").
		WillReturnRows(pgxmock.NewRows(schemaColumns).AddRow(
			"cat-laptops", "laptops", "Laptops",
			[]byte(`[{"key":"brand","name":"Brand","type":"enum","options":["Dell","HP"]}]`),
		))

	reg := NewPostgresRegistry(mock)
	s, err := reg.GetSchema(context.Background(), "laptops")

	require.NoError(t, err)
	assert.Equal(t, "cat-laptops", s.ID)
	require.Len(t, s.Attributes, 1)
	assert.Equal(t, []string{"Dell", "HP"}, s.Attributes[0].Options)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistry_GetSchema_NotFound(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(getSchemaSQL)).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresRegistry(mock).GetSchema(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistry_GetSchema_StoreFailure(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(getSchemaSQL)).
		WithArgs("laptops").
		WillReturnError(errors.New("connection reset"))

	_, err = NewPostgresRegistry(mock).GetSchema(context.Background(), "laptops")

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCategoryNotFound)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresRegistry_ListSchemas(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(listSchemasSQL)).
		WillReturnRows(pgxmock.NewRows(schemaColumns).
			AddRow("cat-laptops", "laptops", "Laptops", []byte(`[]`)).
			AddRow("cat-mobiles", "mobiles", "Mobiles", []byte(`[{"key":"dual_sim","name":"Dual SIM","type":"boolean"}]`)),
		)

	list, err := NewPostgresRegistry(mock).ListSchemas(context.Background())

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "mobiles", list[1].Slug)
	assert.Equal(t, domain.TypeBoolean, list[1].Attributes[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}
