package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/facetsearch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCluster is a minimal stand-in for the Elasticsearch HTTP API.
type fakeCluster struct {
	mu           sync.Mutex
	missingIndex bool
	searchBody   map[string]any
	searchResp   string
	bulkResp     string
	status       int
	requests     []string
	refresh      []string
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	if v := r.URL.Query().Get("refresh"); v != "" {
		f.refresh = append(f.refresh, v)
	}

	switch {
	case r.Method == http.MethodHead && f.missingIndex:
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		_ = json.NewDecoder(r.Body).Decode(&f.searchBody)
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		_, _ = io.WriteString(w, f.searchResp)
	case strings.HasSuffix(r.URL.Path, "/_bulk") && f.bulkResp != "":
		_, _ = io.WriteString(w, f.bulkResp)
	default:
		_, _ = io.WriteString(w, `{"errors":false}`)
	}
}

func newFakeEngine(t *testing.T, cluster *fakeCluster) *Engine {
	t.Helper()
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	eng, err := New(context.Background(), Config{URL: srv.URL}, testLogger())
	require.NoError(t, err)
	return eng
}

func TestNew_CreatesMissingIndex(t *testing.T) {
	cluster := &fakeCluster{missingIndex: true}
	newFakeEngine(t, cluster)

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	assert.Equal(t, []string{
		"HEAD /" + DefaultIndexName,
		"PUT /" + DefaultIndexName,
	}, cluster.requests)
}

func TestEngine_WritesUseRefreshPolicy(t *testing.T) {
	cluster := &fakeCluster{}
	eng := newFakeEngine(t, cluster)
	ctx := context.Background()

	require.NoError(t, eng.Index(ctx, &domain.Item{ID: "a", CategoryID: "cat-laptops"}))
	require.NoError(t, eng.BulkIndex(ctx, []domain.Item{{ID: "b"}, {ID: "c"}}))
	require.NoError(t, eng.Delete(ctx, "missing"), "deleting a missing listing is not an error")

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	assert.Equal(t, []string{RefreshWaitFor, RefreshWaitFor, RefreshWaitFor}, cluster.refresh)
}

func TestEngine_BulkIndex_ReportsRejectedIDs(t *testing.T) {
	cluster := &fakeCluster{bulkResp: `{
		"errors": true,
		"items": [
			{"index": {"_id": "a", "status": 201}},
			{"index": {"_id": "b", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "failed to parse field [price]"}}}
		]
	}`}
	eng := newFakeEngine(t, cluster)

	err := eng.BulkIndex(context.Background(), []domain.Item{{ID: "a"}, {ID: "b"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 listings rejected")
	assert.Contains(t, err.Error(), "b: mapper_parsing_exception: failed to parse field [price]")
	assert.NotContains(t, err.Error(), "a:")
}

func TestEngine_BulkIndex_EmptyIsNoop(t *testing.T) {
	cluster := &fakeCluster{}
	eng := newFakeEngine(t, cluster)

	require.NoError(t, eng.BulkIndex(context.Background(), nil))

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	assert.Len(t, cluster.requests, 1, "only the startup index check")
}

func TestEngine_Search_SingleRequest(t *testing.T) {
	cluster := &fakeCluster{searchResp: `{
		"took": 1,
		"hits": {"total": {"value": 2}, "hits": [
			{"_source": {"id": "a", "title": "Dell XPS", "categoryId": "cat-laptops", "attributes": {"brand": "Dell"}}},
			{"_source": {"id": "b", "title": "HP Spectre", "categoryId": "cat-laptops", "attributes": {"brand": "HP"}}}
		]},
		"aggregations": {
			"facet__brand": {"buckets": [{"key": "Dell", "doc_count": 1}, {"key": "HP", "doc_count": 1}]},
			"facet__touchscreen": {"buckets": {"true": {"doc_count": 0}, "false": {"doc_count": 2}}}
		}
	}`}
	eng := newFakeEngine(t, cluster)

	pred := &domain.Predicate{CategoryID: "cat-laptops"}
	snap, err := eng.Search(context.Background(), pred, laptopSchema(), domain.PageRequest{Page: 1, PageSize: 10})

	require.NoError(t, err)
	assert.Equal(t, 2, snap.Total)
	assert.Len(t, snap.Items, 2)
	assert.Len(t, snap.Facets["brand"], 2)

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	require.NotNil(t, cluster.searchBody)
	assert.Contains(t, cluster.searchBody, "aggs")
	assert.EqualValues(t, 10, cluster.searchBody["size"])
}

func TestEngine_Search_ClusterError(t *testing.T) {
	cluster := &fakeCluster{
		status:     http.StatusInternalServerError,
		searchResp: `{"error": {"type": "search_phase_execution_exception", "reason": "all shards failed"}, "status": 500}`,
	}
	eng := newFakeEngine(t, cluster)

	_, err := eng.Search(context.Background(), &domain.Predicate{}, laptopSchema(), domain.PageRequest{Page: 1, PageSize: 10})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all shards failed")
}

func TestEngine_Search_MatchNoneSkipsCluster(t *testing.T) {
	cluster := &fakeCluster{}
	eng := newFakeEngine(t, cluster)

	snap, err := eng.Search(context.Background(), domain.MatchesNothing(), laptopSchema(), domain.PageRequest{Page: 1, PageSize: 10})

	require.NoError(t, err)
	assert.Zero(t, snap.Total)
	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	assert.Nil(t, cluster.searchBody)
}
