package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/facetsearch/internal/domain"
)

type fakeSchemas struct {
	schemas map[string]*domain.CategorySchema
	err     error
}

func (f *fakeSchemas) GetSchema(_ context.Context, slug string) (*domain.CategorySchema, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.schemas[slug]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	return s, nil
}

func newTestCompiler() *Compiler {
	schemas := &fakeSchemas{schemas: map[string]*domain.CategorySchema{
		"laptops": {
			ID:   "cat-laptops",
			Slug: "laptops",
			Name: "Laptops",
			Attributes: []domain.AttributeDefinition{
				{Key: "brand", Name: "Brand", Type: domain.TypeEnum, Options: []string{"Dell", "HP", "Apple"}},
				{Key: "ports", Name: "Ports", Type: domain.TypeMultiEnum, Options: []string{"usb-c", "hdmi"}},
				{Key: "touchscreen", Name: "Touchscreen", Type: domain.TypeBoolean},
				{Key: "model", Name: "Model", Type: domain.TypeString},
			},
		},
	}}
	return NewCompiler(schemas, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCompile_NoCategory(t *testing.T) {
	c := newTestCompiler()

	pred, schema, err := c.Compile(context.Background(), &domain.FilterRequest{
		Text:    "  xps  ",
		Filters: map[string][]string{"brand": {"Dell"}},
	})

	require.NoError(t, err)
	assert.Nil(t, schema)
	assert.False(t, pred.MatchNone)
	assert.Empty(t, pred.CategoryID)
	assert.Equal(t, "xps", pred.Text)
	require.Len(t, pred.Clauses, 1)
	assert.Equal(t, domain.OpRaw, pred.Clauses[0].Op)
}

func TestCompile_UnknownCategoryMatchesNothing(t *testing.T) {
	c := newTestCompiler()

	pred, schema, err := c.Compile(context.Background(), &domain.FilterRequest{CategorySlug: "does-not-exist"})

	require.NoError(t, err)
	assert.Nil(t, schema)
	assert.True(t, pred.MatchNone)
}

func TestCompile_NormalizesCategorySlug(t *testing.T) {
	c := newTestCompiler()

	pred, schema, err := c.Compile(context.Background(), &domain.FilterRequest{CategorySlug: " Laptops "})

	require.NoError(t, err)
	require.NotNil(t, schema)
	assert.Equal(t, "cat-laptops", pred.CategoryID)
}

func TestCompile_RegistryFailureIsReturned(t *testing.T) {
	c := NewCompiler(&fakeSchemas{err: errors.New("connection refused")}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, _, err := c.Compile(context.Background(), &domain.FilterRequest{CategorySlug: "laptops"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCompile_AttributeClauses(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string][]string
		want    []domain.Clause
	}{
		{
			name:    "enum union",
			filters: map[string][]string{"brand": {"Dell", "HP", "Dell"}},
			want:    []domain.Clause{{Key: "brand", Op: domain.OpIn, Values: []string{"Dell", "HP"}}},
		},
		{
			name:    "multi enum",
			filters: map[string][]string{"ports": {"hdmi"}},
			want:    []domain.Clause{{Key: "ports", Op: domain.OpIn, Values: []string{"hdmi"}}},
		},
		{
			name:    "boolean true",
			filters: map[string][]string{"touchscreen": {"true"}},
			want:    []domain.Clause{{Key: "touchscreen", Op: domain.OpBool, Bool: true}},
		},
		{
			name:    "boolean false",
			filters: map[string][]string{"touchscreen": {"false"}},
			want:    []domain.Clause{{Key: "touchscreen", Op: domain.OpBool, Bool: false}},
		},
		{
			name:    "malformed boolean dropped",
			filters: map[string][]string{"touchscreen": {"maybe"}},
			want:    nil,
		},
		{
			name:    "conflicting boolean dropped",
			filters: map[string][]string{"touchscreen": {"true", "false"}},
			want:    nil,
		},
		{
			name:    "string attribute not filterable",
			filters: map[string][]string{"model": {"XPS"}},
			want:    nil,
		},
		{
			name:    "unknown key falls back to raw",
			filters: map[string][]string{"color": {"Red"}},
			want:    []domain.Clause{{Key: "color", Op: domain.OpRaw, Values: []string{"Red"}}},
		},
		{
			name:    "unsafe key dropped",
			filters: map[string][]string{"a.b": {"x"}, "$where": {"1"}},
			want:    nil,
		},
		{
			name:    "empty values dropped",
			filters: map[string][]string{"brand": {}},
			want:    nil,
		},
		{
			name: "clauses sorted by key",
			filters: map[string][]string{
				"touchscreen": {"true"},
				"brand":       {"Apple"},
			},
			want: []domain.Clause{
				{Key: "brand", Op: domain.OpIn, Values: []string{"Apple"}},
				{Key: "touchscreen", Op: domain.OpBool, Bool: true},
			},
		},
	}

	c := newTestCompiler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, _, err := c.Compile(context.Background(), &domain.FilterRequest{
				CategorySlug: "laptops",
				Filters:      tt.filters,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred.Clauses)
		})
	}
}

func TestCompile_IsDeterministic(t *testing.T) {
	c := newTestCompiler()
	req := func() *domain.FilterRequest {
		return &domain.FilterRequest{
			CategorySlug: "laptops",
			Filters:      map[string][]string{"brand": {"HP"}, "touchscreen": {"true"}, "color": {"Red"}},
		}
	}

	a, _, err := c.Compile(context.Background(), req())
	require.NoError(t, err)
	b, _, err := c.Compile(context.Background(), req())
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestCompileRaw_MalformedFiltersIgnored(t *testing.T) {
	c := newTestCompiler()

	pred, schema, err := c.CompileRaw(context.Background(), &domain.FilterRequest{CategorySlug: "laptops"}, `{"brand": [`)

	require.NoError(t, err)
	require.NotNil(t, schema)
	assert.Empty(t, pred.Clauses)
}
