package kafka

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the newest envelope layout the consumer understands.
// A missing version is read as 1.
const EnvelopeVersion = 1

// ErrMalformedEvent marks messages that can never be processed, however often
// they are retried.
var ErrMalformedEvent = errors.New("malformed event")

// Event is the envelope of every catalog message.
type Event struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	AggregateID   string    `json:"aggregate_id"`
	AggregateType string    `json:"aggregate_type"`
	Version       int       `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`

	// RequestID ties the event to the request that caused it upstream.
	RequestID string `json:"correlation_id,omitempty"`

	Data json.RawMessage `json:"data"`
}

// NewEvent builds a version 1 envelope around data.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", eventType, err)
	}
	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       EnvelopeVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          raw,
	}, nil
}

// Encode returns the JSON wire form of e.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses a message value. Errors wrap ErrMalformedEvent.
func DecodeEvent(value []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.EventType == "" {
		return nil, fmt.Errorf("%w: event_type is empty", ErrMalformedEvent)
	}
	if e.Version == 0 {
		e.Version = 1
	}
	if e.Version > EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedEvent, e.Version)
	}
	return &e, nil
}

// DecodeData unmarshals the payload into target. An absent or null payload
// leaves target untouched.
func (e *Event) DecodeData(target any) error {
	if len(e.Data) == 0 || bytes.Equal(e.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformedEvent, e.EventType, err)
	}
	return nil
}

// Lag is how long ago the event was published, zero when the publisher sent
// no timestamp.
func (e *Event) Lag(now time.Time) time.Duration {
	if e.Timestamp.IsZero() {
		return 0
	}
	return now.Sub(e.Timestamp)
}
