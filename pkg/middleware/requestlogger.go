package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/facetsearch/pkg/logger"
)

// RequestLogger stores a logger carrying request_id, trace_id and span_id in
// the request context, where handlers pick it up with logger.FromContext.
// Mount it after AccessLog and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
