// Package searcher turns ranked results into the display form served by the
// search API and the searcher CLI, with an optional redis cache in front of
// the ranker.
package searcher

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/noodle-search/noodle/internal/ranker"
	"github.com/noodle-search/noodle/internal/searcher/cache"
	"github.com/noodle-search/noodle/pkg/config"
)

// Engine is satisfied by *ranker.Ranker.
type Engine interface {
	SearchWithTotal(ctx context.Context, query string, n int) ([]ranker.Result, int, error)
	Terms(query string) []string
	Model() string
}

// Hit is one displayed result.
type Hit struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Response is the body of GET /api/v1/search.
type Response struct {
	Query   string   `json:"query"`
	Terms   []string `json:"terms"`
	Total   int      `json:"total"`
	Results []Hit    `json:"results"`
}

// Outcome describes how a Response was produced.
type Outcome struct {
	CacheHit bool
	Latency  time.Duration
}

type Service struct {
	engine  Engine
	cache   *cache.QueryCache[Response]
	display config.DisplayConfig
}

// New builds a Service. queryCache may be nil.
func New(engine Engine, queryCache *cache.QueryCache[Response], display config.DisplayConfig) *Service {
	return &Service{engine: engine, cache: queryCache, display: display}
}

// Search ranks query and returns at most limit truncated hits.
func (s *Service) Search(ctx context.Context, query string, limit int) (Response, Outcome, error) {
	start := time.Now()
	terms := s.engine.Terms(query)
	if len(terms) == 0 {
		return Response{Query: query, Terms: []string{}, Results: []Hit{}}, Outcome{Latency: time.Since(start)}, nil
	}

	compute := func(ctx context.Context) (Response, error) {
		results, total, err := s.engine.SearchWithTotal(ctx, query, limit)
		if err != nil {
			return Response{}, err
		}
		return s.present(terms, results, total), nil
	}

	var (
		resp Response
		hit  bool
		err  error
	)
	if s.cache != nil {
		resp, hit, err = s.cache.GetOrCompute(ctx, terms, limit, compute)
	} else {
		resp, err = compute(ctx)
	}
	if err != nil {
		return Response{}, Outcome{}, err
	}
	resp.Query = query
	return resp, Outcome{CacheHit: hit, Latency: time.Since(start)}, nil
}

// Model names the ranking model behind the service.
func (s *Service) Model() string { return s.engine.Model() }

// Cache returns the query cache, or nil when caching is disabled.
func (s *Service) Cache() *cache.QueryCache[Response] { return s.cache }

func (s *Service) present(terms []string, results []ranker.Result, total int) Response {
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			URL:     Truncate(r.Document.URL, s.display.URLLength),
			Title:   Truncate(r.Document.Title, s.display.TitleLength),
			Content: Truncate(r.Document.Content, s.display.ContentLength),
			Score:   r.Score,
		}
	}
	return Response{Terms: terms, Total: total, Results: hits}
}

// Truncate cuts s to n characters and appends "..." when it was longer.
// n <= 0 leaves s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
