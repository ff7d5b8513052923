package kafka

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerMetrics_Registered(t *testing.T) {
	ConsumerEventLag.WithLabelValues("metrics-registered", "g").Observe(1)

	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer,
		"kafka_consumer_event_lag_seconds",
	)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}

func TestConsumer_RecordsProcessedAndLag(t *testing.T) {
	const topic = "metrics-processed-topic"
	reader := &fakeReader{queue: []kafka.Message{
		eventMessage(t, topic, "listing.created", "l-1"),
	}}

	c := newConsumer(reader, ConsumerConfig{GroupID: "metrics-g"}, func(context.Context, *Event) error { return nil }, testLogger())
	runConsumer(t, c, func() bool { return reader.committedCount() == 1 })

	assert.Equal(t, float64(1), testutil.ToFloat64(ConsumerMessagesReceived.WithLabelValues(topic, "metrics-g")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ConsumerMessagesProcessed.WithLabelValues(topic, "metrics-g")))
	assert.Equal(t, float64(0), testutil.ToFloat64(ConsumerMessagesFailed.WithLabelValues(topic, "metrics-g")))
	assert.Equal(t, 1, testutil.CollectAndCount(ConsumerEventLag.WithLabelValues(topic, "metrics-g").(prometheus.Collector)))
}

func TestConsumer_RecordsFailureAndDLQ(t *testing.T) {
	const topic = "metrics-failed-topic"
	reader := &fakeReader{queue: []kafka.Message{{Topic: topic, Value: []byte(`{}`)}}}

	c := newConsumer(reader, ConsumerConfig{GroupID: "metrics-g"}, func(context.Context, *Event) error { return nil }, testLogger())
	c.dlq = &fakeDLQ{}
	runConsumer(t, c, func() bool { return reader.committedCount() == 1 })

	assert.Equal(t, float64(1), testutil.ToFloat64(ConsumerMessagesFailed.WithLabelValues(topic, "metrics-g")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ConsumerDLQPublished.WithLabelValues(topic, "metrics-g")))
	assert.Equal(t, float64(0), testutil.ToFloat64(ConsumerMessagesProcessed.WithLabelValues(topic, "metrics-g")))
}
