package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/facetsearch/pkg/logger"
)

// IdempotencyStore remembers which event ids were handled. Implementations
// must be safe for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// sweepEvery is how many Adds pass between sweeps of expired ids.
const sweepEvery = 1024

// MemoryIdempotencyStore keeps processed ids in process memory. It suits a
// single consumer replica; replicas sharing a group need the Redis store.
type MemoryIdempotencyStore struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	adds  int
	nowFn func() time.Time
}

// NewMemoryIdempotencyStore creates a store that forgets ids after ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		nowFn: time.Now,
	}
}

// Contains reports whether eventID was added within the TTL.
func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.seen[eventID]
	if !ok {
		return false, nil
	}
	if s.nowFn().Sub(at) > s.ttl {
		delete(s.seen, eventID)
		return false, nil
	}
	return true, nil
}

// Add records eventID as processed now.
func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	s.seen[eventID] = now
	s.adds++
	if s.adds%sweepEvery == 0 {
		for id, at := range s.seen {
			if now.Sub(at) > s.ttl {
				delete(s.seen, id)
			}
		}
	}
	return nil
}

// Len returns the number of ids held, expired ones included until swept.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// IdempotentHandler skips events whose id the store already holds and records
// ids after inner succeeds. A failing store never blocks processing: index
// writes are upserts, so handling an event twice is safe.
func IdempotentHandler(store IdempotencyStore, inner Handler, base *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}
		log := logger.WithContext(ctx, base)

		seen, err := store.Contains(ctx, event.EventID)
		if err != nil {
			log.WarnContext(ctx, "idempotency lookup failed, processing anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		if seen {
			ConsumerMessagesDuplicate.WithLabelValues(event.EventType).Inc()
			log.DebugContext(ctx, "skipping duplicate event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}

		if err := store.Add(ctx, event.EventID); err != nil {
			log.WarnContext(ctx, "failed to record processed event",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
