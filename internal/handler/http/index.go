package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/internal/service"
	"github.com/utafrali/facetsearch/pkg/httputil"
	"github.com/utafrali/facetsearch/pkg/validator"
)

const (
	maxListingBody = 1 << 20
	maxBulkBody    = 10 << 20
)

// IndexHandler handles the admin ingestion endpoints.
type IndexHandler struct {
	service        *service.SearchService
	reindexTimeout time.Duration
	logger         *slog.Logger
}

// NewIndexHandler creates a new ingestion HTTP handler.
func NewIndexHandler(svc *service.SearchService, reindexTimeout time.Duration, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{
		service:        svc,
		reindexTimeout: reindexTimeout,
		logger:         logger,
	}
}

// BulkIndexRequest is the JSON request body for bulk indexing listings.
type BulkIndexRequest struct {
	Listings []domain.Item `json:"listings" validate:"required,min=1,max=500"`
}

// IndexListing handles POST /api/index/listings
func (h *IndexHandler) IndexListing(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxListingBody)

	var item domain.Item
	if err := validator.DecodeAndValidate(r, &item); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.service.IndexListing(r.Context(), &item); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": item.ID, "status": "indexed"}})
}

// BulkIndex handles POST /api/index/listings/bulk
func (h *IndexHandler) BulkIndex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBulkBody)

	var req BulkIndexRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.service.BulkIndex(r.Context(), req.Listings)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// DeleteListing handles DELETE /api/index/listings/{id}
func (h *IndexHandler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteListing(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": id, "status": "deleted"}})
}

// Reindex handles POST /api/index/reindex. The reindex runs in the
// background, detached from the request.
func (h *IndexHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartReindex(h.reindexTimeout); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: map[string]string{"status": "reindex started"}})
}

