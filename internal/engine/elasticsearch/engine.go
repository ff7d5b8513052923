package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/pkg/tracing"
)

// RefreshWaitFor makes writes block until they are visible to search.
const RefreshWaitFor = "wait_for"

// Config locates the cluster and index.
type Config struct {
	URL   string
	Index string
	// Refresh is the refresh parameter sent with every write: "true",
	// "false" or "wait_for". Empty means RefreshWaitFor.
	Refresh string
	// Transport replaces the default HTTP transport, e.g. in tests.
	Transport http.RoundTripper
}

// Engine stores listings in one Elasticsearch index and answers faceted
// searches with a single _search request.
type Engine struct {
	client  *elasticsearch.Client
	index   string
	refresh string
	logger  *slog.Logger
}

// New connects to cfg.URL and creates the index with the listing mapping
// when it does not exist yet.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Index == "" {
		cfg.Index = DefaultIndexName
	}
	if cfg.Refresh == "" {
		cfg.Refresh = RefreshWaitFor
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	e := &Engine{client: client, index: cfg.Index, refresh: cfg.Refresh, logger: logger}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch: ensure index %s: %w", cfg.Index, err)
	}
	return e, nil
}

// clusterError is the error body Elasticsearch answers with.
type clusterError struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// do runs req inside a client span. Answers with a status in allow are
// returned like successes; other error statuses become Go errors and the
// body is closed. On success the caller owns res.Body.
func (e *Engine) do(ctx context.Context, op string, req esapi.Request, allow ...int) (*esapi.Response, error) {
	ctx, span := tracing.Tracer("elasticsearch").Start(ctx, "elasticsearch."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "elasticsearch"),
			attribute.String("db.elasticsearch.index", e.index),
		),
	)
	defer span.End()

	res, err := req.Do(ctx, e.client)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("elasticsearch %s: %w", op, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))

	if !res.IsError() {
		return res, nil
	}
	for _, status := range allow {
		if res.StatusCode == status {
			return res, nil
		}
	}
	defer func() { _ = res.Body.Close() }()

	err = statusError(op, res)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

func statusError(op string, res *esapi.Response) error {
	var body clusterError
	if json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&body) == nil && body.Error.Type != "" {
		return fmt.Errorf("elasticsearch %s: %s: %s", op, body.Error.Type, body.Error.Reason)
	}
	return fmt.Errorf("elasticsearch %s: unexpected status %s", op, res.Status())
}

// discard drains and closes a body the caller has no use for.
func discard(res *esapi.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}

// Ping checks whether the cluster answers.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.do(ctx, "ping", esapi.PingRequest{})
	if err != nil {
		return err
	}
	discard(res)
	return nil
}

func (e *Engine) ensureIndex(ctx context.Context) error {
	res, err := e.do(ctx, "index_exists", esapi.IndicesExistsRequest{Index: []string{e.index}}, http.StatusNotFound)
	if err != nil {
		return err
	}
	discard(res)
	if res.StatusCode == http.StatusOK {
		e.logger.Info("elasticsearch index exists", slog.String("index", e.index))
		return nil
	}

	res, err = e.do(ctx, "create_index", esapi.IndicesCreateRequest{
		Index: e.index,
		Body:  strings.NewReader(buildIndexMapping()),
	})
	if err != nil {
		return err
	}
	discard(res)
	e.logger.Info("elasticsearch index created", slog.String("index", e.index))
	return nil
}

// Index adds or replaces one listing.
func (e *Engine) Index(ctx context.Context, item *domain.Item) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("elasticsearch index: encode listing %s: %w", item.ID, err)
	}

	res, err := e.do(ctx, "index", esapi.IndexRequest{
		Index:      e.index,
		DocumentID: item.ID,
		Body:       bytes.NewReader(doc),
		Refresh:    e.refresh,
	})
	if err != nil {
		return err
	}
	discard(res)
	return nil
}

// Delete removes a listing. A missing document is not an error.
func (e *Engine) Delete(ctx context.Context, id string) error {
	res, err := e.do(ctx, "delete", esapi.DeleteRequest{
		Index:      e.index,
		DocumentID: id,
		Refresh:    e.refresh,
	}, http.StatusNotFound)
	if err != nil {
		return err
	}
	discard(res)
	return nil
}

// Search translates pred into one _search request whose hits, total and
// aggregations come from the same searcher.
func (e *Engine) Search(ctx context.Context, pred *domain.Predicate, schema *domain.CategorySchema, page domain.PageRequest) (*domain.Snapshot, error) {
	if pred.MatchNone {
		return &domain.Snapshot{Facets: domain.Facets{}}, nil
	}

	body, err := json.Marshal(buildSearchBody(pred, schema, page))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: encode query: %w", err)
	}

	res, err := e.do(ctx, "search", esapi.SearchRequest{
		Index:          []string{e.index},
		Body:           bytes.NewReader(body),
		TrackTotalHits: true,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var raw esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}
	snap, err := decodeSnapshot(&raw, schema)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}

	e.logger.DebugContext(ctx, "elasticsearch search finished",
		slog.Int("took_ms", raw.Took),
		slog.Int("total", snap.Total),
	)
	return snap, nil
}

// DeleteIndex drops the whole index. A missing index is not an error.
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.do(ctx, "delete_index", esapi.IndicesDeleteRequest{Index: []string{e.index}}, http.StatusNotFound)
	if err != nil {
		return err
	}
	discard(res)
	e.logger.Info("elasticsearch index deleted", slog.String("index", e.index))
	return nil
}

// bulkResult is the part of a _bulk answer needed to report per-item failures.
type bulkResult struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID    string `json:"_id"`
		Error *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkIndex adds or replaces listings with one NDJSON _bulk request. Any
// per-document failure fails the call, naming every rejected id.
func (e *Engine) BulkIndex(ctx context.Context, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		action := map[string]map[string]string{"index": {"_id": items[i].ID}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk: encode action: %w", err)
		}
		if err := enc.Encode(&items[i]); err != nil {
			return fmt.Errorf("elasticsearch bulk: encode listing %s: %w", items[i].ID, err)
		}
	}

	res, err := e.do(ctx, "bulk", esapi.BulkRequest{
		Index:   e.index,
		Body:    &buf,
		Refresh: e.refresh,
	})
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	var result bulkResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("elasticsearch bulk: decode response: %w", err)
	}
	if !result.Errors {
		e.logger.DebugContext(ctx, "bulk indexed listings", slog.Int("count", len(items)))
		return nil
	}

	var failed []string
	for _, item := range result.Items {
		for _, op := range item {
			if op.Error != nil {
				failed = append(failed, fmt.Sprintf("%s: %s: %s", op.ID, op.Error.Type, op.Error.Reason))
			}
		}
	}
	return fmt.Errorf("elasticsearch bulk: %d of %d listings rejected: %s", len(failed), len(items), strings.Join(failed, "; "))
}
