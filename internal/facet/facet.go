// Package facet computes and normalizes per-attribute value counts over a
// matched item set.
package facet

import (
	"sort"

	"github.com/utafrali/facetsearch/internal/domain"
)

// Counts holds raw per-attribute term counts as produced by a store:
// attribute key -> term -> number of matching items holding it.
type Counts map[string]map[string]int

// Add increments the count of term under key.
func (c Counts) Add(key, term string, n int) {
	m, ok := c[key]
	if !ok {
		m = make(map[string]int)
		c[key] = m
	}
	m[term] += n
}

// Aggregate counts facet terms over items for every facetable attribute of
// schema. A missing or null boolean counts as false. Each item contributes at
// most once per term.
func Aggregate(items []*domain.Item, schema *domain.CategorySchema) Counts {
	attrs := schema.FacetableAttributes()
	counts := make(Counts, len(attrs))

	for _, item := range items {
		for _, attr := range attrs {
			v := item.Attribute(attr.Key)
			if attr.Type == domain.TypeBoolean {
				if v.Truthy() {
					counts.Add(attr.Key, "true", 1)
				} else {
					counts.Add(attr.Key, "false", 1)
				}
				continue
			}

			seen := make(map[string]struct{}, 2)
			for _, term := range v.Terms() {
				if _, dup := seen[term]; dup {
					continue
				}
				seen[term] = struct{}{}
				counts.Add(attr.Key, term, 1)
			}
		}
	}
	return counts
}

// Normalize shapes raw counts into response facets. Only facetable schema
// attributes are emitted. Boolean facets always carry a true and a false
// bucket. Enum buckets with an empty value or zero count are dropped; the rest
// follow the schema's option order, with values outside the options appended
// in lexical order.
func Normalize(raw Counts, schema *domain.CategorySchema) domain.Facets {
	facets := make(domain.Facets)
	for _, attr := range schema.FacetableAttributes() {
		counts := raw[attr.Key]

		if attr.Type == domain.TypeBoolean {
			facets[attr.Key] = []domain.FacetBucket{
				{Value: true, Count: counts["true"]},
				{Value: false, Count: counts["false"]},
			}
			continue
		}

		buckets := make([]domain.FacetBucket, 0, len(counts))
		listed := make(map[string]struct{}, len(attr.Options))
		for _, opt := range attr.Options {
			listed[opt] = struct{}{}
			if n := counts[opt]; n > 0 && opt != "" {
				buckets = append(buckets, domain.FacetBucket{Value: opt, Count: n})
			}
		}

		var extra []string
		for term, n := range counts {
			if _, ok := listed[term]; ok || term == "" || n <= 0 {
				continue
			}
			extra = append(extra, term)
		}
		sort.Strings(extra)
		for _, term := range extra {
			buckets = append(buckets, domain.FacetBucket{Value: term, Count: counts[term]})
		}

		facets[attr.Key] = buckets
	}
	return facets
}
