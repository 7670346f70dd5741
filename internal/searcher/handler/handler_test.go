package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/noodle-search/noodle/internal/analytics"
	"github.com/noodle-search/noodle/internal/corpus"
	"github.com/noodle-search/noodle/internal/ranker"
	"github.com/noodle-search/noodle/internal/searcher"
	"github.com/noodle-search/noodle/internal/searcher/cache"
	"github.com/noodle-search/noodle/pkg/config"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
	"github.com/noodle-search/noodle/pkg/metrics"
	pkgredis "github.com/noodle-search/noodle/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubEngine struct {
	mu    sync.Mutex
	limit int
	err   error
}

func (e *stubEngine) SearchWithTotal(_ context.Context, query string, n int) ([]ranker.Result, int, error) {
	e.mu.Lock()
	e.limit = n
	e.mu.Unlock()
	if e.err != nil {
		return nil, 0, e.err
	}
	if query != "cats" {
		return []ranker.Result{}, 0, nil
	}
	return []ranker.Result{
		{Document: corpus.Document{URL: "http://cats.test/", Title: "Cats", Content: "Cats are small cats"}, Score: 3},
	}, 1, nil
}

func (e *stubEngine) Terms(query string) []string {
	if query == "the" {
		return nil
	}
	return []string{query}
}

func (e *stubEngine) Model() string { return config.ModelWeighted }

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	clear(s.data)
	return n, nil
}

type fixture struct {
	handler *Handler
	engine  *stubEngine
	metrics *metrics.Metrics
	agg     *analytics.Aggregator
	mux     *http.ServeMux
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	eng := &stubEngine{}
	var qc *cache.QueryCache[searcher.Response]
	if withCache {
		qc = cache.New[searcher.Response](&memStore{data: map[string]string{}}, time.Minute, m)
	}
	svc := searcher.New(eng, qc, config.DisplayConfig{TitleLength: 50, URLLength: 30, ContentLength: 100})

	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(nil, agg, analytics.CollectorConfig{})
	collector.Start(context.Background())
	t.Cleanup(collector.Close)

	h := New(svc, collector, m, 10, 20, false)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	return &fixture{handler: h, engine: eng, metrics: m, agg: agg, mux: mux}
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSearchReturnsResults(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=cats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[searcher.Response](t, rec)
	if resp.Query != "cats" || resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if hit := resp.Results[0]; hit.Title != "Cats" || hit.Score != 3 {
		t.Errorf("hit = %+v", hit)
	}
	if f.engine.limit != 10 {
		t.Errorf("default limit = %d, want 10", f.engine.limit)
	}
	if got := testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("hit")); got != 1 {
		t.Errorf("search_queries_total{result_type=hit} = %v", got)
	}
}

func TestSearchValidation(t *testing.T) {
	f := newFixture(t, false)
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=cats&limit=0",
		"/api/v1/search?q=cats&limit=-3",
		"/api/v1/search?q=cats&limit=ten",
	} {
		if rec := f.do(t, http.MethodGet, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestSearchCapsLimit(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodGet, "/api/v1/search?q=cats&limit=500")
	if f.engine.limit != 20 {
		t.Errorf("limit = %d, want the cap of 20", f.engine.limit)
	}
}

func TestSearchStopWordsOnly(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=the")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["results"]) != "[]" {
		t.Errorf("results = %s, want []", raw["results"])
	}
}

func TestSearchEngineError(t *testing.T) {
	f := newFixture(t, false)
	f.engine.err = apperrors.New(apperrors.ErrCorruptIndex, 0, "bad")
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=cats")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got := testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error counter = %v", got)
	}
}

func TestSearchCachesAndInvalidates(t *testing.T) {
	f := newFixture(t, true)
	if got := f.do(t, http.MethodGet, "/api/v1/search?q=cats").Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("first X-Cache = %q, want MISS", got)
	}
	if got := f.do(t, http.MethodGet, "/api/v1/search?q=cats").Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("second X-Cache = %q, want HIT", got)
	}

	stats := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/v1/cache/stats"))
	if stats["hits"] != float64(1) || stats["misses"] != float64(1) || stats["hit_rate"] != "50.0%" {
		t.Errorf("stats = %v", stats)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate")
	if rec.Code != http.StatusOK {
		t.Fatalf("invalidate status = %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["keys_deleted"] != float64(1) {
		t.Errorf("invalidate body = %v", body)
	}
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	f := newFixture(t, false)
	if body := decode[map[string]string](t, f.do(t, http.MethodGet, "/api/v1/cache/stats")); body["status"] != "disabled" {
		t.Errorf("stats = %v", body)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d, want 503", rec.Code)
	}
}

func TestSearchTracksAnalytics(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodGet, "/api/v1/search?q=cats")
	f.do(t, http.MethodGet, "/api/v1/search?q=unicorn")

	deadline := time.Now().Add(2 * time.Second)
	for f.agg.Stats().TotalSearches < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stats := f.agg.Stats()
	if stats.TotalSearches != 2 || stats.ZeroResultCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
