package pagination

import (
	"math"
	"net/http"
	"strconv"
)

// Page window defaults for search requests.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Params holds a normalized page window.
type Params struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Offset   int `json:"-"`
}

// DefaultParams returns the first page at the default size.
func DefaultParams() Params {
	return Params{
		Page:     DefaultPage,
		PageSize: DefaultPageSize,
		Offset:   0,
	}
}

// Normalize applies defaults to non-positive values and clamps the page size.
// Page is capped so that Offset always fits in an int.
func Normalize(page, pageSize int) Params {
	p := DefaultParams()
	if page > 0 {
		p.Page = page
	}
	if pageSize > 0 {
		p.PageSize = pageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if maxPage := math.MaxInt / p.PageSize; p.Page > maxPage {
		p.Page = maxPage
	}
	p.Offset = (p.Page - 1) * p.PageSize
	return p
}

// FromRequest reads page and pageSize from the query string. limit is accepted
// as an alias for pageSize. Values that are not positive integers fall back to
// the defaults.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()

	size := q.Get("pageSize")
	if size == "" {
		size = q.Get("limit")
	}
	return Normalize(atoi(q.Get("page")), atoi(size))
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

// TotalPages returns ceil(total/pageSize), or 0 when nothing matched.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Result is the paged envelope of the catalog export.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult creates a paged envelope.
func NewResult[T any](data []T, totalCount int, params Params) Result[T] {
	totalPages := TotalPages(totalCount, params.PageSize)

	return Result[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       params.Page,
		PerPage:    params.PageSize,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}
