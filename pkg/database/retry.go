package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// retryPolicy retries startup operations with exponential backoff and jitter.
type retryPolicy struct {
	attempts int
	base     time.Duration
	jitter   float64
}

// startupRetry waits roughly 1s then 2s between three attempts.
var startupRetry = retryPolicy{attempts: 3, base: time.Second, jitter: 0.25}

// backoff returns the wait after the given 0-indexed attempt.
func (p retryPolicy) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.base << attempt
	spread := float64(base) * p.jitter * (2*rand.Float64() - 1) // #nosec G404 -- jitter only
	return base + time.Duration(spread)
}

// do runs fn until it succeeds, fails with a non-connection error, or the
// attempts are used up.
func (p retryPolicy) do(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !isConnectionError(err) || attempt == p.attempts-1 {
			break
		}

		wait := p.backoff(attempt)
		if logger != nil {
			logger.Warn(op+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", p.attempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// connectionCodes are SQLSTATE classes and codes that signal the server is
// unreachable or not yet accepting work.
var connectionCodes = []string{"08", "57P01", "57P02", "57P03"}

// isConnectionError reports whether err looks transient: network failures or
// server-side connection exceptions. SQL errors are never retried.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, c := range connectionCodes {
			if strings.HasPrefix(pgErr.Code, c) {
				return true
			}
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	msg := err.Error()
	for _, p := range []string{"connection refused", "connection reset", "broken pipe", "no such host", "failed to connect"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
