package database

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolCollector_Describe(t *testing.T) {
	c := NewPoolCollector(nil, "facetsearch")

	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)

	var names []string
	for d := range ch {
		names = append(names, d.String())
	}
	assert.Len(t, names, 8)
	assert.Contains(t, names[0], "db_pool_acquired_connections")
}

func TestPoolCollector_CollectWithoutPool(t *testing.T) {
	c := NewPoolCollector(nil, "facetsearch")

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	assert.Empty(t, ch)
}

func TestRegisterPoolMetrics_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()

	require.NoError(t, RegisterPoolMetrics(reg, nil, "facetsearch"))
	assert.NoError(t, RegisterPoolMetrics(reg, nil, "facetsearch"))
}
