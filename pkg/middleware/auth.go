package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/facetsearch/pkg/logger"
)

type contextKey int

const (
	subjectKey contextKey = iota
	roleKey
)

// RoleAdmin is the role granted to callers holding the admin token.
const RoleAdmin = "admin"

// Claims identifies the caller of a guarded route.
type Claims struct {
	Subject string
	Role    string
}

// TokenValidator resolves a bearer token to the caller's claims.
type TokenValidator func(token string) (*Claims, error)

// StaticToken returns a validator that accepts exactly one shared token and
// grants the admin role.
func StaticToken(expected string) TokenValidator {
	return func(token string) (*Claims, error) {
		if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			return nil, errInvalidToken
		}
		return &Claims{Subject: "admin-token", Role: RoleAdmin}, nil
	}
}

type authError string

func (e authError) Error() string { return string(e) }

const errInvalidToken = authError("invalid token")

// Auth rejects requests without a valid bearer token and stores the caller's
// subject and role in the request context. The request-scoped logger is
// re-derived so later log lines carry the caller.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header format")
				return
			}

			claims, err := validate(strings.TrimSpace(parts[1]))
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			ctx = logger.WithCaller(ctx, claims.Subject)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("caller", claims.Subject)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated callers that hold none of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := roleSet[RoleFromContext(r.Context())]; !ok {
				writeError(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SubjectFromContext extracts the caller subject set by Auth.
func SubjectFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(subjectKey).(string); ok {
		return id
	}
	return ""
}

// RoleFromContext extracts the caller role set by Auth.
func RoleFromContext(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey).(string); ok {
		return role
	}
	return ""
}
