package domain

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/utafrali/facetsearch/pkg/pagination"
)

// ErrCategoryNotFound is returned by schema registries when a slug does not
// resolve. Search treats it as an empty scope, never as a failure.
var ErrCategoryNotFound = errors.New("category not found")

// Default paging values.
const (
	DefaultPage     = pagination.DefaultPage
	DefaultPageSize = pagination.DefaultPageSize
	MaxPageSize     = pagination.MaxPageSize
)

// FilterRequest is the raw, untyped search input of one query.
type FilterRequest struct {
	Text         string
	CategorySlug string
	Filters      map[string][]string
	Page         int
	PageSize     int
}

// PageRequest is a normalized page window.
type PageRequest struct {
	Page     int
	PageSize int
}

// Offset returns the zero-based index of the first item on the page. It
// saturates at math.MaxInt instead of overflowing.
func (p PageRequest) Offset() int {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// ClauseOp is the kind of test a clause applies to one attribute.
type ClauseOp string

const (
	// OpIn matches when any term of the attribute is in Values.
	OpIn ClauseOp = "in"
	// OpBool matches when the attribute's truthiness equals Bool.
	OpBool ClauseOp = "bool"
	// OpRaw is an untyped membership test for keys the schema does not declare.
	OpRaw ClauseOp = "raw"
)

// Clause is one per-attribute constraint.
type Clause struct {
	Key    string
	Op     ClauseOp
	Values []string
	Bool   bool
}

// Matches evaluates the clause against one attribute value.
func (c Clause) Matches(v AttributeValue) bool {
	switch c.Op {
	case OpBool:
		return v.Truthy() == c.Bool
	case OpIn, OpRaw:
		for _, t := range v.Terms() {
			for _, want := range c.Values {
				if t == want {
					return true
				}
			}
		}
	}
	return false
}

func (c Clause) String() string {
	if c.Op == OpBool {
		return c.Key + "=" + strconv.FormatBool(c.Bool)
	}
	return c.Key + " " + string(c.Op) + " [" + strings.Join(c.Values, ",") + "]"
}

// Predicate is the compiled conjunction of category, text and attribute
// constraints for one request. It carries no store-specific syntax.
type Predicate struct {
	// MatchNone short-circuits to the empty result set.
	MatchNone  bool
	CategoryID string
	// Text is matched case-insensitively as a whole-phrase substring of the
	// title or description.
	Text    string
	Clauses []Clause
}

// MatchesNothing returns a predicate that selects no items.
func MatchesNothing() *Predicate {
	return &Predicate{MatchNone: true}
}

// Matches evaluates the predicate against a single item.
func (p *Predicate) Matches(item *Item) bool {
	if p.MatchNone {
		return false
	}
	if p.CategoryID != "" && item.CategoryID != p.CategoryID {
		return false
	}
	if p.Text != "" {
		needle := strings.ToLower(p.Text)
		if !strings.Contains(strings.ToLower(item.Title), needle) &&
			!strings.Contains(strings.ToLower(item.Description), needle) {
			return false
		}
	}
	for _, c := range p.Clauses {
		if !c.Matches(item.Attribute(c.Key)) {
			return false
		}
	}
	return true
}

// FacetBucket is one value of a facet and the number of matching items
// holding it.
type FacetBucket struct {
	Value any `json:"value"`
	Count int `json:"count"`
}

// Facets maps attribute key to its ordered buckets.
type Facets map[string][]FacetBucket

// Snapshot is the output of one consistent store read: a page of items, the
// total match count and the facet breakdown over the same matched set.
type Snapshot struct {
	Items  []Item
	Total  int
	Facets Facets
}

// SearchResult is the response contract of a search.
type SearchResult struct {
	Listings                []Item                `json:"listings"`
	Facets                  Facets                `json:"facets"`
	CategoryAttributeSchema []AttributeDefinition `json:"categoryAttributeSchema"`
	TotalResults            int                   `json:"totalResults"`
	CurrentPage             int                   `json:"currentPage"`
	TotalPages              int                   `json:"totalPages"`
}
