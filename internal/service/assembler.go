package service

import (
	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/pkg/pagination"
)

// Assemble shapes one store snapshot into the search response. Collections
// are always non-nil so they encode as [] and {}.
func Assemble(snap *domain.Snapshot, schema *domain.CategorySchema, page pagination.Params) *domain.SearchResult {
	result := EmptyResult(page)
	if snap == nil {
		return result
	}

	if len(snap.Items) > 0 {
		result.Listings = make([]domain.Item, len(snap.Items))
		for i := range snap.Items {
			result.Listings[i] = normalizeItem(snap.Items[i])
		}
	}
	for key, buckets := range snap.Facets {
		if buckets == nil {
			buckets = []domain.FacetBucket{}
		}
		result.Facets[key] = buckets
	}
	if schema != nil && len(schema.Attributes) > 0 {
		result.CategoryAttributeSchema = append(result.CategoryAttributeSchema, schema.Attributes...)
	}

	result.TotalResults = snap.Total
	result.TotalPages = pagination.TotalPages(snap.Total, page.PageSize)
	return result
}

// EmptyResult is the response for a request that can match nothing. An
// unknown category always reports page 1.
func EmptyResult(page pagination.Params) *domain.SearchResult {
	return &domain.SearchResult{
		Listings:                []domain.Item{},
		Facets:                  domain.Facets{},
		CategoryAttributeSchema: []domain.AttributeDefinition{},
		TotalResults:            0,
		CurrentPage:             page.Page,
		TotalPages:              0,
	}
}

func normalizeItem(item domain.Item) domain.Item {
	if item.Images == nil {
		item.Images = []string{}
	}
	if item.Attributes == nil {
		item.Attributes = map[string]domain.AttributeValue{}
	}
	return item
}
