// Package query compiles raw search requests into store-independent
// predicates.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/pkg/logger"
	"github.com/utafrali/facetsearch/pkg/slug"
)

var compileAnomalies = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_compile_anomalies_total",
		Help: "Total number of filter clauses dropped while compiling search requests",
	},
	[]string{"reason"},
)

// Anomaly reasons.
const (
	reasonInvalidKey      = "invalid_key"
	reasonMalformedBool   = "malformed_boolean"
	reasonUnfilterable    = "unfilterable_type"
	reasonMalformedFilter = "malformed_filters"
)

// SchemaSource resolves a category slug to its attribute schema.
type SchemaSource interface {
	GetSchema(ctx context.Context, slug string) (*domain.CategorySchema, error)
}

// Compiler turns a FilterRequest into a Predicate, consulting the schema
// registry to type-check attribute filters.
type Compiler struct {
	schemas SchemaSource
	logger  *slog.Logger
}

// NewCompiler creates a new Compiler.
func NewCompiler(schemas SchemaSource, logger *slog.Logger) *Compiler {
	return &Compiler{schemas: schemas, logger: logger}
}

// Compile validates req and returns the predicate together with the resolved
// schema (nil when no category was requested). An unknown category compiles
// to a predicate that matches nothing. Malformed individual filters are
// dropped and logged. Only registry failures are returned as errors.
func (c *Compiler) Compile(ctx context.Context, req *domain.FilterRequest) (*domain.Predicate, *domain.CategorySchema, error) {
	pred := &domain.Predicate{}
	var schema *domain.CategorySchema

	if requested := strings.TrimSpace(req.CategorySlug); requested != "" {
		normalized := slug.Generate(requested)
		if normalized == "" {
			return domain.MatchesNothing(), nil, nil
		}
		s, err := c.schemas.GetSchema(ctx, normalized)
		if errors.Is(err, domain.ErrCategoryNotFound) {
			logger.WithContext(ctx, c.logger).DebugContext(ctx, "category not found, matching nothing",
				slog.String("category", normalized),
			)
			return domain.MatchesNothing(), nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("resolve category %q: %w", normalized, err)
		}
		schema = s
		pred.CategoryID = s.ID
	}

	pred.Text = strings.TrimSpace(req.Text)

	keys := make([]string, 0, len(req.Filters))
	for k := range req.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := dedupe(append([]string(nil), req.Filters[key]...))
		if len(values) == 0 {
			continue
		}
		if !domain.ValidAttributeKey(key) {
			c.anomaly(ctx, reasonInvalidKey, key)
			continue
		}

		def, ok := schema.Attribute(key)
		switch {
		case !ok:
			pred.Clauses = append(pred.Clauses, domain.Clause{Key: key, Op: domain.OpRaw, Values: values})
		case def.Type.IsEnum():
			pred.Clauses = append(pred.Clauses, domain.Clause{Key: key, Op: domain.OpIn, Values: values})
		case def.Type == domain.TypeBoolean:
			b, valid := parseBool(values)
			if !valid {
				c.anomaly(ctx, reasonMalformedBool, key)
				continue
			}
			pred.Clauses = append(pred.Clauses, domain.Clause{Key: key, Op: domain.OpBool, Bool: b})
		default:
			c.anomaly(ctx, reasonUnfilterable, key)
		}
	}

	return pred, schema, nil
}

// CompileRaw parses the serialized filters payload and compiles the request.
// A malformed payload is logged and compiled as if no filters were given.
func (c *Compiler) CompileRaw(ctx context.Context, req *domain.FilterRequest, rawFilters string) (*domain.Predicate, *domain.CategorySchema, error) {
	filters, err := ParseFilters(rawFilters)
	if err != nil {
		c.anomaly(ctx, reasonMalformedFilter, err.Error())
		filters = nil
	}
	req.Filters = filters
	return c.Compile(ctx, req)
}

func (c *Compiler) anomaly(ctx context.Context, reason, detail string) {
	compileAnomalies.WithLabelValues(reason).Inc()
	logger.WithContext(ctx, c.logger).WarnContext(ctx, "dropping search filter",
		slog.String("reason", reason),
		slog.String("detail", detail),
	)
}

// parseBool reduces the requested values to one boolean. Conflicting or
// unparsable values are reported as invalid.
func parseBool(values []string) (bool, bool) {
	var result bool
	for i, v := range values {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		if i > 0 && b != result {
			return false, false
		}
		result = b
	}
	return result, true
}
