package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/internal/service"
	"github.com/utafrali/facetsearch/pkg/httputil"
	"github.com/utafrali/facetsearch/pkg/pagination"
)

// SearchHandler handles HTTP requests for search endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// Search handles GET /api/search
//
// Query parameters: q, category (slug), filters (JSON object of attribute key
// to value or values), page, pageSize (alias limit). Paging values that are
// not positive integers fall back to defaults.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := pagination.FromRequest(r)

	req := &domain.FilterRequest{
		Text:         q.Get("q"),
		CategorySlug: q.Get("category"),
		Page:         page.Page,
		PageSize:     page.PageSize,
	}

	result, err := h.service.SearchRaw(r.Context(), req, q.Get("filters"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// Categories handles GET /api/categories
func (h *SearchHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, categories)
}
