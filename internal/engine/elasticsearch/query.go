package elasticsearch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/internal/facet"
)

const (
	aggPrefix = "facet__"

	// maxFacetBuckets bounds the terms aggregation per enum attribute.
	maxFacetBuckets = 500

	// maxResultWindow is the default index.max_result_window; from+size
	// beyond it is rejected by the cluster.
	maxResultWindow = 10000
)

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func attrField(key string) string {
	return "attributes." + key
}

// buildSearchBody translates a predicate into one _search request carrying the
// page window, the stable sort and a facet aggregation per facetable attribute.
// A window past maxResultWindow asks for no hits, which still yields the total
// and the facets.
func buildSearchBody(pred *domain.Predicate, schema *domain.CategorySchema, page domain.PageRequest) map[string]interface{} {
	from, size := page.Offset(), page.PageSize
	if from > maxResultWindow-size {
		from, size = 0, 0
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": buildFilters(pred),
			},
		},
		"from":             from,
		"size":             size,
		"track_total_hits": true,
		"sort": []interface{}{
			map[string]interface{}{"createdAt": "asc"},
			map[string]interface{}{"id": "asc"},
		},
	}

	if aggs := buildAggregations(schema); len(aggs) > 0 {
		body["aggs"] = aggs
	}
	return body
}

// buildFilters constructs the non-scoring filter clauses of the predicate.
func buildFilters(pred *domain.Predicate) []interface{} {
	filters := []interface{}{}

	if pred.CategoryID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"categoryId": pred.CategoryID},
		})
	}

	if pred.Text != "" {
		pattern := "*" + wildcardEscaper.Replace(pred.Text) + "*"
		filters = append(filters, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					wildcardQuery("title", pattern),
					wildcardQuery("description", pattern),
				},
				"minimum_should_match": 1,
			},
		})
	}

	for _, c := range pred.Clauses {
		filters = append(filters, clauseQuery(c))
	}
	return filters
}

func wildcardQuery(field, pattern string) map[string]interface{} {
	return map[string]interface{}{
		"wildcard": map[string]interface{}{
			field: map[string]interface{}{
				"value":            pattern,
				"case_insensitive": true,
			},
		},
	}
}

func isTrue(key string) map[string]interface{} {
	return map[string]interface{}{
		"term": map[string]interface{}{attrField(key): "true"},
	}
}

func notTrue(key string) map[string]interface{} {
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"must_not": []interface{}{isTrue(key)},
		},
	}
}

func clauseQuery(c domain.Clause) map[string]interface{} {
	if c.Op == domain.OpBool {
		if c.Bool {
			return isTrue(c.Key)
		}
		return notTrue(c.Key)
	}
	return map[string]interface{}{
		"terms": map[string]interface{}{attrField(c.Key): c.Values},
	}
}

// buildAggregations returns one aggregation per facetable attribute: a terms
// aggregation for enums, and a true/false filters aggregation for booleans so
// missing values land in the false bucket.
func buildAggregations(schema *domain.CategorySchema) map[string]interface{} {
	aggs := map[string]interface{}{}
	for _, attr := range schema.FacetableAttributes() {
		name := aggPrefix + attr.Key
		if attr.Type == domain.TypeBoolean {
			aggs[name] = map[string]interface{}{
				"filters": map[string]interface{}{
					"filters": map[string]interface{}{
						"true":  isTrue(attr.Key),
						"false": notTrue(attr.Key),
					},
				},
			}
			continue
		}
		size := len(attr.Options) + 50
		if size > maxFacetBuckets {
			size = maxFacetBuckets
		}
		aggs[name] = map[string]interface{}{
			"terms": map[string]interface{}{
				"field": attrField(attr.Key),
				"size":  size,
			},
		}
	}
	return aggs
}

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source domain.Item `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

type termsAgg struct {
	Buckets []struct {
		Key      interface{} `json:"key"`
		DocCount int         `json:"doc_count"`
	} `json:"buckets"`
}

type filtersAgg struct {
	Buckets map[string]struct {
		DocCount int `json:"doc_count"`
	} `json:"buckets"`
}

// decodeSnapshot converts a decoded search response into a snapshot.
func decodeSnapshot(resp *esSearchResponse, schema *domain.CategorySchema) (*domain.Snapshot, error) {
	items := make([]domain.Item, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		items = append(items, hit.Source)
	}

	counts := facet.Counts{}
	for _, attr := range schema.FacetableAttributes() {
		raw, ok := resp.Aggregations[aggPrefix+attr.Key]
		if !ok {
			continue
		}
		if attr.Type == domain.TypeBoolean {
			var agg filtersAgg
			if err := json.Unmarshal(raw, &agg); err != nil {
				return nil, fmt.Errorf("decode facet %q: %w", attr.Key, err)
			}
			for term, b := range agg.Buckets {
				counts.Add(attr.Key, term, b.DocCount)
			}
			continue
		}
		var agg termsAgg
		if err := json.Unmarshal(raw, &agg); err != nil {
			return nil, fmt.Errorf("decode facet %q: %w", attr.Key, err)
		}
		for _, b := range agg.Buckets {
			if term, ok := domain.ScalarString(b.Key); ok {
				counts.Add(attr.Key, term, b.DocCount)
			}
		}
	}

	return &domain.Snapshot{
		Items:  items,
		Total:  resp.Hits.Total.Value,
		Facets: facet.Normalize(counts, schema),
	}, nil
}
