// Command loadtest replays queries against a running searcher and reports
// throughput, latency percentiles and the result cache hit rate.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/noodle-search/noodle/internal/corpus"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Queries     []string
}

var defaultQueries = []string{
	"search engine",
	"inverted index",
	"web crawler",
	"robots exclusion",
	"term frequency",
	"document ranking",
	"bm25",
	"stemming words",
	"stop words",
	"sitemap",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the searcher")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "results requested per query")
	queryList := flag.String("queries", "", "comma-separated queries to replay")
	corpusPath := flag.String("corpus", "", "derive queries from the titles in this pages file")
	flag.Parse()

	queries, err := loadQueries(*queryList, *corpusPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: max(1, *concurrency),
		Duration:    *duration,
		Limit:       *limit,
		Queries:     queries,
	}

	fmt.Println("=== Noodle Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	stats := run(ctx, cfg, newClient(cfg.Concurrency))
	report := stats.Report(time.Since(start))
	report.Print(os.Stdout)

	if report.Total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the searcher running?")
		os.Exit(1)
	}
}

// loadQueries prefers explicit queries, then corpus titles, then the
// built-in list.
func loadQueries(list, corpusPath string) ([]string, error) {
	var queries []string
	for q := range strings.SplitSeq(list, ",") {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) > 0 {
		return queries, nil
	}
	if corpusPath == "" {
		return defaultQueries, nil
	}

	docs, err := corpus.Load(corpusPath)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, d := range docs {
		title := strings.TrimSpace(d.Title)
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		queries = append(queries, title)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("corpus %s has no titles to query", corpusPath)
	}
	return queries, nil
}

func newClient(concurrency int) *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// run drives cfg.Concurrency workers until cfg.Duration elapses or ctx is
// cancelled. Worker i starts at query i so the first round is spread out.
func run(ctx context.Context, cfg Config, client *http.Client) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				r, err := searchOnce(ctx, client, cfg, cfg.Queries[i%len(cfg.Queries)])
				if ctx.Err() != nil {
					return nil
				}
				if err != nil {
					r.status = 0
				}
				stats.Record(r)
			}
			return nil
		})
	}
	g.Wait()
	return stats
}

func searchOnce(ctx context.Context, client *http.Client, cfg Config, query string) (sample, error) {
	target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.BaseURL, url.QueryEscape(query), cfg.Limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return sample{}, err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return sample{latency: time.Since(start)}, err
	}
	defer resp.Body.Close()

	var body struct {
		Total int `json:"total"`
	}
	if resp.StatusCode == http.StatusOK {
		err = json.NewDecoder(resp.Body).Decode(&body)
	}
	io.Copy(io.Discard, resp.Body)
	return sample{
		latency:  time.Since(start),
		status:   resp.StatusCode,
		cacheHit: resp.Header.Get("X-Cache") == "HIT",
		total:    body.Total,
	}, err
}
