// Package crawler implements the batched, robots-aware crawl that produces
// the corpus.
//
// A crawl proceeds in batches. Each batch takes up to Threads URLs from the
// front of the frontier, fetches them on a bounded worker pool and waits for
// every worker to return. Only then does the scheduler goroutine record the
// visited documents and queue the discovered links, so the frontier is never
// touched concurrently. A fixed politeness delay separates batches.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/noodle-search/noodle/internal/corpus"
	"github.com/noodle-search/noodle/pkg/config"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
	"github.com/noodle-search/noodle/pkg/metrics"
)

// Scheduler runs one crawl. It is single use.
type Scheduler struct {
	cfg       config.CrawlerConfig
	base      *url.URL
	frontier  *Frontier
	robots    *RobotsCache
	fetcher   *Fetcher
	extractor Extractor
	docs      []corpus.Document
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// visitResult is the outcome of one worker's fetch. Workers fill these in;
// only the scheduler goroutine reads them, after the barrier.
type visitResult struct {
	doc        corpus.Document
	links      []string
	disallowed bool
	err        error
}

// New validates cfg and returns a Scheduler.
func New(cfg config.CrawlerConfig, extractor Extractor, m *metrics.Metrics) (*Scheduler, error) {
	if cfg.BaseURL == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 0, "crawler: baseUrl is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 0, "crawler: invalid baseUrl %q", cfg.BaseURL)
	}
	if cfg.MaxURLs <= 0 || cfg.Threads <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 0,
			"crawler: maxUrls and threads must be positive (got %d, %d)", cfg.MaxURLs, cfg.Threads)
	}
	if cfg.MaxURLPerPage < 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 0, "crawler: maxUrlPerPage must not be negative")
	}
	if cfg.RobotsUnavailable == "" {
		cfg.RobotsUnavailable = config.RobotsAllow
	}

	client := &http.Client{Timeout: cfg.RequestTimeout}
	fetcher := NewFetcher(client, cfg.UserAgent, cfg.MaxBodyBytes)
	return &Scheduler{
		cfg:       cfg,
		base:      base,
		frontier:  NewFrontier(cfg.MaxURLs),
		robots:    NewRobotsCache(fetcher, cfg.UserAgent, cfg.RobotsUnavailable, m),
		fetcher:   fetcher,
		extractor: extractor,
		metrics:   m,
		logger:    slog.Default().With("component", "crawler"),
	}, nil
}

// Run crawls until the frontier is empty or MaxURLs pages have been visited.
// Per-page failures are logged and skipped; Run returns an error only when
// ctx is cancelled or the robots policy is "fail" and a robots.txt cannot be
// retrieved. Documents collected before the error remain available.
func (s *Scheduler) Run(ctx context.Context) error {
	start := time.Now()
	s.frontier.Push(s.base.String())
	if s.cfg.Sitemaps {
		s.seedFromSitemaps(ctx)
	}
	s.logger.Info("crawl started",
		"base_url", s.base.String(),
		"max_urls", s.cfg.MaxURLs,
		"threads", s.cfg.Threads,
		"politeness_delay", s.cfg.PolitenessDelay,
	)

	for batchNo := 1; s.frontier.Len() > 0 && s.frontier.Visited() < s.cfg.MaxURLs; batchNo++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		size := min(s.cfg.Threads, s.frontier.Len(), s.cfg.MaxURLs-s.frontier.Visited())
		batch := s.frontier.Next(size)

		batchStart := time.Now()
		results := s.fetchBatch(ctx, batch)
		s.metrics.CrawlBatchDuration.Observe(time.Since(batchStart).Seconds())

		if err := s.collect(batch, results); err != nil {
			return err
		}
		s.metrics.CrawlFrontierSize.Set(float64(s.frontier.Len()))
		s.metrics.CrawlVisited.Set(float64(s.frontier.Visited()))
		s.logger.Info("batch complete",
			"batch", batchNo,
			"size", len(batch),
			"visited", s.frontier.Visited(),
			"queued", s.frontier.Len(),
			"duration_ms", time.Since(batchStart).Milliseconds(),
		)

		if s.frontier.Len() == 0 || s.frontier.Visited() >= s.cfg.MaxURLs {
			break
		}
		if err := sleep(ctx, s.cfg.PolitenessDelay); err != nil {
			return err
		}
	}

	s.logger.Info("crawl finished",
		"visited", len(s.docs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Documents returns the visited documents in order of first visitation.
func (s *Scheduler) Documents() []corpus.Document {
	return s.docs
}

// fetchBatch runs one worker per URL, capped at Threads, and blocks until
// all of them have returned.
func (s *Scheduler) fetchBatch(ctx context.Context, batch []string) []visitResult {
	results := make([]visitResult, len(batch))
	jobs := make(chan int)
	workers := min(s.cfg.Threads, len(batch))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.visit(ctx, batch[i])
				s.logger.Debug("url processed",
					"worker", fmt.Sprintf("%d/%d", worker+1, workers),
					"url", batch[i],
					"error", results[i].err,
				)
			}
		}(w)
	}
	for i := range batch {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// visit fetches one URL. It only reads shared state.
func (s *Scheduler) visit(ctx context.Context, rawURL string) visitResult {
	u, err := url.Parse(rawURL)
	if err != nil {
		return visitResult{err: apperrors.Newf(apperrors.ErrFetch, 0, "%s: %v", rawURL, err)}
	}
	allowed, err := s.robots.Allowed(ctx, u)
	if err != nil {
		return visitResult{err: err}
	}
	if !allowed {
		return visitResult{disallowed: true}
	}

	body, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return visitResult{err: err}
	}
	page, err := s.extractor.Extract(bytes.NewReader(body))
	if err != nil {
		return visitResult{err: fmt.Errorf("%s: %w", rawURL, err)}
	}
	return visitResult{
		doc: corpus.Document{
			URL:       rawURL,
			Title:     page.Title,
			Content:   page.Paragraph,
			CrawlTime: time.Now().UTC(),
		},
		links: resolveLinks(s.base, page.Links, s.cfg.MaxURLPerPage),
	}
}

// collect is the single writer of the frontier. Every URL of the batch is
// resolved (visited or dropped) before any discovered link is queued, so a
// link back to a URL of the same batch is never re-queued. A robots failure
// under the "fail" policy is returned after the rest of the batch has been
// recorded.
func (s *Scheduler) collect(batch []string, results []visitResult) error {
	var abort error
	for i, res := range results {
		rawURL := batch[i]
		switch {
		case errors.Is(res.err, apperrors.ErrRobotsUnavailable):
			s.frontier.Drop(rawURL)
			if abort == nil {
				abort = fmt.Errorf("crawling %s: %w", rawURL, res.err)
			}
		case res.err != nil:
			s.frontier.Drop(rawURL)
			outcome := "fetch_error"
			if errors.Is(res.err, apperrors.ErrParse) {
				outcome = "parse_error"
			}
			s.metrics.CrawlPagesTotal.WithLabelValues(outcome).Inc()
			s.logger.Warn("url dropped", "url", rawURL, "outcome", outcome, "error", res.err)
		case res.disallowed:
			s.frontier.Drop(rawURL)
			s.metrics.CrawlPagesTotal.WithLabelValues("disallowed").Inc()
			s.logger.Info("url disallowed by robots.txt", "url", rawURL)
		default:
			s.frontier.MarkVisited(rawURL)
			res.doc.ID = len(s.docs)
			s.docs = append(s.docs, res.doc)
			s.metrics.CrawlPagesTotal.WithLabelValues("visited").Inc()
		}
	}
	if abort != nil {
		return abort
	}

	for _, res := range results {
		if res.err != nil || res.disallowed {
			continue
		}
		for _, link := range res.links {
			s.frontier.Push(link)
		}
	}
	return nil
}

// seedFromSitemaps queues the <loc> entries of the sitemaps listed in the
// base origin's robots.txt.
func (s *Scheduler) seedFromSitemaps(ctx context.Context) {
	for _, sm := range s.robots.Sitemaps(ctx, s.base) {
		locs, err := sitemapLocations(ctx, s.fetcher, sm)
		if err != nil {
			s.logger.Warn("sitemap skipped", "sitemap", sm, "error", err)
			continue
		}
		queued := 0
		for _, loc := range locs {
			if s.frontier.Push(loc) {
				queued++
			}
		}
		s.logger.Info("sitemap read", "sitemap", sm, "locations", len(locs), "queued", queued)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
