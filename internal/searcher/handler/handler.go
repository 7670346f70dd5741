// Package handler serves the search HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noodle-search/noodle/internal/analytics"
	"github.com/noodle-search/noodle/internal/searcher"
	"github.com/noodle-search/noodle/internal/searcher/cache"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
	"github.com/noodle-search/noodle/pkg/logger"
	"github.com/noodle-search/noodle/pkg/metrics"
	"github.com/noodle-search/noodle/pkg/middleware"
	"github.com/noodle-search/noodle/pkg/tracing"
)

// Searcher is satisfied by *searcher.Service.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (searcher.Response, searcher.Outcome, error)
	Model() string
	Cache() *cache.QueryCache[searcher.Response]
}

type Handler struct {
	search       Searcher
	collector    *analytics.Collector
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	tracing      bool
	logger       *slog.Logger
}

// New builds a Handler; collector may be nil.
func New(s Searcher, collector *analytics.Collector, m *metrics.Metrics, defaultLimit, maxResults int, tracing bool) *Handler {
	return &Handler{
		search:       s,
		collector:    collector,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		tracing:      tracing,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Search serves GET /api/v1/search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.maxResults)
	}

	ctx, span := tracing.StartSpan(ctx, "search", middleware.GetRequestID(ctx))
	span.SetAttr("query", query)
	span.SetAttr("limit", limit)
	resp, out, err := h.search.Search(ctx, query, limit)
	span.End()
	if h.tracing {
		span.Log(log)
	}

	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		status := apperrors.HTTPStatusCode(err)
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		h.writeError(w, status, "search failed")
		return
	}

	resultType := "hit"
	if resp.Total == 0 {
		resultType = "zero"
	}
	cacheStatus := "miss"
	if out.CacheHit {
		cacheStatus = "hit"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(out.Latency.Seconds())
	h.metrics.SearchResultsCount.Observe(float64(len(resp.Results)))

	log.Info("search completed",
		"query", query,
		"terms", resp.Terms,
		"total", resp.Total,
		"returned", len(resp.Results),
		"cache_hit", out.CacheHit,
		"latency_ms", out.Latency.Milliseconds(),
	)
	if h.collector != nil {
		eventType := analytics.EventSearch
		if resp.Total == 0 {
			eventType = analytics.EventZeroResult
		}
		h.collector.Track(analytics.SearchEvent{
			Type:      eventType,
			Query:     query,
			Terms:     resp.Terms,
			TotalHits: resp.Total,
			Returned:  len(resp.Results),
			LatencyMs: out.Latency.Milliseconds(),
			CacheHit:  out.CacheHit,
			Model:     h.search.Model(),
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}

	w.Header().Set("X-Cache", strings.ToUpper(cacheStatus))
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStats serves GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	c := h.search.Cache()
	if c == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := c.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate serves POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	c := h.search.Cache()
	if c == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := c.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
