package postgres

import (
	"fmt"
	"strings"

	"github.com/utafrali/facetsearch/internal/domain"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// sqlBuilder accumulates positional arguments.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// termsExpr expands an attribute into a set of text terms: arrays yield their
// elements, scalars yield themselves and missing values yield a single NULL.
func termsExpr(alias, keyParam string) string {
	v := fmt.Sprintf("%s.attributes -> %s::text", alias, keyParam)
	return fmt.Sprintf("jsonb_array_elements_text(CASE WHEN jsonb_typeof(%s) = 'array' THEN %s ELSE jsonb_build_array(%s) END)", v, v, v)
}

// truthyExpr is true when the attribute reads as boolean true.
func truthyExpr(alias, keyParam string) string {
	return fmt.Sprintf("(COALESCE(%s.attributes ->> %s::text, '') = 'true')", alias, keyParam)
}

// buildSearchSQL renders pred as one statement returning the total match count,
// the requested page as a JSON array and per-attribute facet counts as a JSON
// array, all computed from the same matched CTE.
func buildSearchSQL(pred *domain.Predicate, schema *domain.CategorySchema, page domain.PageRequest) (string, []any) {
	b := &sqlBuilder{}
	var conditions []string

	if pred.CategoryID != "" {
		conditions = append(conditions, "l.category_id = "+b.arg(pred.CategoryID))
	}

	if pred.Text != "" {
		p := b.arg("%" + likeEscaper.Replace(pred.Text) + "%")
		conditions = append(conditions, fmt.Sprintf("(l.title ILIKE %s OR l.description ILIKE %s)", p, p))
	}

	for _, c := range pred.Clauses {
		key := b.arg(c.Key)
		if c.Op == domain.OpBool {
			conditions = append(conditions, fmt.Sprintf("%s = %s::boolean", truthyExpr("l", key), b.arg(c.Bool)))
			continue
		}
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM %s AS t(v) WHERE t.v = ANY(%s::text[]))",
			termsExpr("l", key), b.arg(c.Values),
		))
	}

	where := "TRUE"
	if len(conditions) > 0 {
		where = strings.Join(conditions, "\n\t\t  AND ")
	}

	limit := b.arg(page.PageSize)
	offset := b.arg(page.Offset())

	var branches []string
	for _, attr := range schema.FacetableAttributes() {
		key := b.arg(attr.Key)
		if attr.Type == domain.TypeBoolean {
			branches = append(branches, fmt.Sprintf(`SELECT %s::text AS key,
			       CASE WHEN %s THEN 'true' ELSE 'false' END AS value,
			       count(*) AS count
			FROM matched m
			GROUP BY 2`, key, truthyExpr("m", key)))
			continue
		}
		branches = append(branches, fmt.Sprintf(`SELECT %s::text AS key, t.v AS value, count(DISTINCT m.id) AS count
			FROM matched m
			CROSS JOIN LATERAL %s AS t(v)
			WHERE t.v IS NOT NULL AND t.v <> ''
			GROUP BY t.v`, key, termsExpr("m", key)))
	}

	facets := "SELECT NULL::text AS key, NULL::text AS value, 0::bigint AS count WHERE FALSE"
	if len(branches) > 0 {
		facets = strings.Join(branches, "\n\t\t\tUNION ALL\n\t\t\t")
	}

	sql := fmt.Sprintf(`
		WITH matched AS (
			SELECT l.id, l.title, l.description, l.price, l.location, l.category_id,
			       l.images, l.attributes, l.created_at, l.updated_at
			FROM listings l
			WHERE %s
		),
		page AS (
			SELECT * FROM matched
			ORDER BY created_at, id
			LIMIT %s OFFSET %s
		),
		facet_counts AS (
			%s
		)
		SELECT
			(SELECT count(*) FROM matched) AS total,
			COALESCE((
				SELECT json_agg(json_build_object(
					'id', p.id, 'title', p.title, 'description', p.description,
					'price', p.price, 'location', p.location, 'categoryId', p.category_id,
					'images', p.images, 'attributes', p.attributes,
					'createdAt', p.created_at, 'updatedAt', p.updated_at
				) ORDER BY p.created_at, p.id)
				FROM page p
			), '[]'::json) AS listings,
			COALESCE((
				SELECT json_agg(json_build_object('key', f.key, 'value', f.value, 'count', f.count))
				FROM facet_counts f
			), '[]'::json) AS facets`,
		where, limit, offset, facets)

	return sql, b.args
}
