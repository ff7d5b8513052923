package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// DLQTopicPrefix is the prefix of dead-letter topics.
const DLQTopicPrefix = TopicPrefix + ".dlq"

// Headers added to dead-lettered messages.
const (
	HeaderDLQPrefix            = "dlq."
	HeaderDLQOriginalTopic     = HeaderDLQPrefix + "original_topic"
	HeaderDLQOriginalPartition = HeaderDLQPrefix + "original_partition"
	HeaderDLQOriginalOffset    = HeaderDLQPrefix + "original_offset"
	HeaderDLQConsumerGroup     = HeaderDLQPrefix + "consumer_group"
	HeaderDLQError             = HeaderDLQPrefix + "error"
	HeaderDLQFailedAt          = HeaderDLQPrefix + "failed_at"
)

// maxDLQErrorLen bounds the dlq.error header.
const maxDLQErrorLen = 1024

// messageWriter is the subset of *kafka.Writer the DLQ producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DLQProducer parks messages the consumer gave up on.
type DLQProducer struct {
	writer messageWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewDLQProducer returns a producer that writes one message at a time and
// waits for all in-sync replicas.
func NewDLQProducer(brokers []string, logger *slog.Logger) *DLQProducer {
	return &DLQProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			BatchSize:              1,
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
		now:    time.Now,
	}
}

// DLQTopic names the dead-letter topic of a source topic, so
// catalog.listing.created dead-letters to catalog.dlq.listing.created.
func DLQTopic(originalTopic string) string {
	return DLQTopicPrefix + "." + strings.TrimPrefix(originalTopic, TopicPrefix+".")
}

// Publish writes msg to its dead-letter topic with key and value untouched.
// Earlier dlq.* headers are replaced, so a replayed message that fails again
// records only its latest failure, and the trace context of ctx replaces the
// original one.
func (d *DLQProducer) Publish(ctx context.Context, msg kafka.Message, cause error, consumerGroup string) error {
	topic := DLQTopic(msg.Topic)

	headers := make([]kafka.Header, 0, len(msg.Headers)+6)
	for _, h := range msg.Headers {
		if !strings.HasPrefix(h.Key, HeaderDLQPrefix) {
			headers = append(headers, h)
		}
	}
	headers = append(headers, d.failureHeaders(msg, cause, consumerGroup)...)
	InjectContext(ctx, &headers)

	err := d.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	attrs := []any{
		slog.String("dlq_topic", topic),
		slog.String("original_topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	}
	if err != nil {
		d.logger.ErrorContext(ctx, "dead-letter publish failed", append(attrs, slog.String("error", err.Error()))...)
		return fmt.Errorf("publish to DLQ %s: %w", topic, err)
	}

	d.logger.WarnContext(ctx, "message dead-lettered", append(attrs, slog.String("consumer_group", consumerGroup))...)
	return nil
}

func (d *DLQProducer) failureHeaders(msg kafka.Message, cause error, consumerGroup string) []kafka.Header {
	hs := []kafka.Header{
		{Key: HeaderDLQOriginalTopic, Value: []byte(msg.Topic)},
		{Key: HeaderDLQOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		{Key: HeaderDLQOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		{Key: HeaderDLQConsumerGroup, Value: []byte(consumerGroup)},
		{Key: HeaderDLQFailedAt, Value: []byte(d.now().UTC().Format(time.RFC3339))},
	}
	if cause != nil {
		text := cause.Error()
		if len(text) > maxDLQErrorLen {
			text = text[:maxDLQErrorLen]
		}
		hs = append(hs, kafka.Header{Key: HeaderDLQError, Value: []byte(text)})
	}
	return hs
}

// Close flushes and closes the writer.
func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
