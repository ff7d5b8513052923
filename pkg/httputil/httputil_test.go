package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/facetsearch/pkg/errors"
	"github.com/utafrali/facetsearch/pkg/logger"
	"github.com/utafrali/facetsearch/pkg/validator"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, Response{Data: map[string]string{"status": "reindex started"}})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"status":"reindex started"}}`, rec.Body.String())
}

func TestResponse_OmitsEmptyMembers(t *testing.T) {
	b, err := json.Marshal(Response{Data: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":1}`, string(b))

	b, err = json.Marshal(Response{Error: &ErrorResponse{Code: "NOT_FOUND", Message: "gone"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":{"code":"NOT_FOUND","message":"gone"}}`, string(b))
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		message  string
		logsLine bool
	}{
		{
			name:    "app error keeps code and message",
			err:     apperrors.NotFound("listing", "l-1"),
			status:  http.StatusNotFound,
			code:    "NOT_FOUND",
			message: "listing with id l-1 not found",
		},
		{
			name:    "wrapped sentinel not found",
			err:     fmt.Errorf("lookup: %w", apperrors.ErrNotFound),
			status:  http.StatusNotFound,
			code:    "NOT_FOUND",
			message: "resource not found",
		},
		{
			name:    "sentinel already exists",
			err:     apperrors.ErrAlreadyExists,
			status:  http.StatusConflict,
			code:    "ALREADY_EXISTS",
			message: "resource already exists",
		},
		{
			name:    "sentinel invalid input exposes message",
			err:     fmt.Errorf("page must be positive: %w", apperrors.ErrInvalidInput),
			status:  http.StatusBadRequest,
			code:    "INVALID_INPUT",
			message: "page must be positive: invalid input",
		},
		{
			name:    "wrapped conflict app error",
			err:     fmt.Errorf("reindex: %w", apperrors.Conflict("reindex already in progress")),
			status:  http.StatusConflict,
			code:    "CONFLICT",
			message: "reindex already in progress",
		},
		{
			name:     "unknown error hidden",
			err:      errors.New("dial tcp 10.0.0.7:9200: connection refused"),
			status:   http.StatusInternalServerError,
			code:     "INTERNAL_ERROR",
			message:  "an internal error occurred",
			logsLine: true,
		},
		{
			name:     "service unavailable hides cause",
			err:      apperrors.ServiceUnavailable(errors.New("elasticsearch: i/o timeout")),
			status:   http.StatusServiceUnavailable,
			code:     "SERVICE_UNAVAILABLE",
			message:  "the service is temporarily unavailable",
			logsLine: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := slog.New(slog.NewJSONHandler(&buf, nil))
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/search", nil)

			WriteError(rec, req, tt.err, l)

			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Empty(t, resp.Error.RequestID)

			if tt.logsLine {
				assert.Contains(t, buf.String(), `"msg":"request failed"`)
				assert.Contains(t, buf.String(), "/api/search")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestWriteError_UsesRequestScopedLogger(t *testing.T) {
	var fallback, scoped bytes.Buffer
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	ctx := logger.WithRequestID(req.Context(), "req-42")
	ctx = logger.NewContext(ctx, slog.New(slog.NewJSONHandler(&scoped, nil)))
	req = req.WithContext(ctx)

	WriteError(rec, req, errors.New("boom"), slog.New(slog.NewJSONHandler(&fallback, nil)))

	assert.Empty(t, fallback.String())
	assert.Contains(t, scoped.String(), "boom")
	assert.Equal(t, "req-42", decode(t, rec).Error.RequestID)
}

func TestWriteValidationError(t *testing.T) {
	type listing struct {
		ID    string  `json:"id" validate:"required"`
		Price float64 `json:"price" validate:"gte=0"`
	}
	err := validator.Validate(listing{Price: -1})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	WriteValidationError(rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "id")
	assert.Contains(t, resp.Error.Fields, "price")

	rec = httptest.NewRecorder()
	WriteValidationError(rec, errors.New("unexpected EOF"))
	resp = decode(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Equal(t, "unexpected EOF", resp.Error.Message)
}
