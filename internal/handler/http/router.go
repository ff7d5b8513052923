package http

import (
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/facetsearch/internal/service"
	"github.com/utafrali/facetsearch/pkg/health"
	"github.com/utafrali/facetsearch/pkg/httputil"
	"github.com/utafrali/facetsearch/pkg/middleware"
)

// ServiceName labels HTTP metrics and spans.
const ServiceName = "facetsearch"

// categoriesMaxAge is the Cache-Control max-age of the category listing.
const categoriesMaxAge = time.Minute

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
	ReindexTimeout time.Duration

	// AdminToken guards the ingestion routes. They are open when empty.
	AdminToken string

	PprofEnabled bool
	PprofCIDRs   []string
}

// NewRouter creates a chi router with all routes registered.
func NewRouter(
	searchService *service.SearchService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ReindexTimeout <= 0 {
		cfg.ReindexTimeout = 30 * time.Minute
	}

	r := chi.NewRouter()

	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if cfg.PprofEnabled {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	searchHandler := NewSearchHandler(searchService, logger)
	indexHandler := NewIndexHandler(searchService, cfg.ReindexTimeout, logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", searchHandler.Search)
		r.With(middleware.CacheControl(categoriesMaxAge)).Get("/categories", searchHandler.Categories)

		r.Route("/index", func(r chi.Router) {
			r.Use(middleware.NoStore)
			if cfg.AdminToken != "" {
				r.Use(middleware.Auth(middleware.StaticToken(cfg.AdminToken)))
				r.Use(middleware.RequireRole(middleware.RoleAdmin))
			}
			r.With(ContentTypeJSON).Post("/listings", indexHandler.IndexListing)
			r.With(ContentTypeJSON).Post("/listings/bulk", indexHandler.BulkIndex)
			r.Delete("/listings/{id}", indexHandler.DeleteListing)
			r.Post("/reindex", indexHandler.Reindex)
		})
	})

	return r
}

// ContentTypeJSON rejects request bodies that are not declared as JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
