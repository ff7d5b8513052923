// Package errors defines the error kinds shared by every layer and their
// HTTP rendering.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Match them with errors.Is; AppErrors report their kind too.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrGone           = errors.New("gone")
)

const internalMessage = "an internal error occurred"

type kindInfo struct {
	kind   error
	status int
	code   string
}

// kinds is ordered: Classify reports the first kind an error matches.
var kinds = []kindInfo{
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
	{ErrConflict, http.StatusConflict, "CONFLICT"},
	{ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{ErrGone, http.StatusGone, "GONE"},
	{ErrServiceUnavail, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	{ErrInternal, http.StatusInternalServerError, "INTERNAL_ERROR"},
}

func lookup(kind error) kindInfo {
	for _, k := range kinds {
		if k.kind == kind {
			return k
		}
	}
	return kindInfo{kind: ErrInternal, status: http.StatusInternalServerError, code: "INTERNAL_ERROR"}
}

// AppError is an error with a stable machine-readable code and the HTTP
// status it renders as. Message is shown to clients; Err is the cause and
// only ever logged.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Kind    error  `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is reports whether target is the error's kind.
func (e *AppError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// New builds an AppError of the given kind with that kind's code and status.
func New(kind error, message string) *AppError {
	k := lookup(kind)
	return &AppError{Code: k.code, Message: message, Status: k.status, Kind: k.kind}
}

// NotFound reports a missing resource by id.
func NotFound(resource, id string) *AppError {
	return New(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

// AlreadyExists reports a uniqueness violation on field.
func AlreadyExists(resource, field, value string) *AppError {
	return New(ErrAlreadyExists, fmt.Sprintf("%s with %s %q already exists", resource, field, value))
}

func InvalidInput(message string) *AppError { return New(ErrInvalidInput, message) }

func Unauthorized(message string) *AppError { return New(ErrUnauthorized, message) }

func Forbidden(message string) *AppError { return New(ErrForbidden, message) }

func Conflict(message string) *AppError { return New(ErrConflict, message) }

func Gone(message string) *AppError { return New(ErrGone, message) }

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	e := New(ErrInternal, internalMessage)
	e.Err = err
	return e
}

// ServiceUnavailable reports a backing store that timed out or could not be
// reached. The cause is kept for logs and never rendered.
func ServiceUnavailable(err error) *AppError {
	e := New(ErrServiceUnavail, "the service is temporarily unavailable")
	e.Err = err
	return e
}

// FromStatus maps an HTTP status received from another service onto a kind.
// Unknown 4xx statuses keep their status with no kind; unknown 5xx become
// internal errors.
func FromStatus(status int, code, message string) *AppError {
	var kind error
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = ErrInvalidInput
	case http.StatusNotFound:
		kind = ErrNotFound
	case http.StatusConflict:
		kind = ErrConflict
	case http.StatusUnauthorized:
		kind = ErrUnauthorized
	case http.StatusForbidden:
		kind = ErrForbidden
	case http.StatusGone:
		kind = ErrGone
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		kind = ErrServiceUnavail
	}

	var e *AppError
	switch {
	case kind != nil:
		e = New(kind, message)
		e.Status = status
	case status >= http.StatusInternalServerError:
		e = New(ErrInternal, message)
	default:
		e = &AppError{Code: "UPSTREAM_ERROR", Message: message, Status: status}
	}
	if code != "" {
		e.Code = code
	}
	return e
}

// Classify returns err as an AppError. Bare kinds, possibly wrapped, get
// their kind's code; invalid input keeps err's text as the message since it
// describes what the caller sent. Anything else is an internal error.
func Classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, k := range kinds {
		if !errors.Is(err, k.kind) {
			continue
		}
		if k.kind == ErrInternal {
			break
		}
		msg := k.kind.Error()
		if k.kind == ErrInvalidInput {
			msg = err.Error()
		}
		e := New(k.kind, msg)
		e.Err = err
		return e
	}
	return Internal(err)
}

// HTTPStatus returns the status err renders as.
func HTTPStatus(err error) int {
	return Classify(err).Status
}
