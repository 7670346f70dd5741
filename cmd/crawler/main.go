package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noodle-search/noodle/internal/corpus"
	"github.com/noodle-search/noodle/internal/crawler"
	"github.com/noodle-search/noodle/pkg/config"
	"github.com/noodle-search/noodle/pkg/logger"
	"github.com/noodle-search/noodle/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	baseURL := flag.String("url", "", "base URL to crawl (overrides crawler.baseUrl)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.Crawler.BaseURL = *baseURL
	}

	logger.Setup("crawler", cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(ctx)
		}()
	}

	scheduler, err := crawler.New(cfg.Crawler, crawler.HTMLExtractor{}, m)
	if err != nil {
		slog.Error("invalid crawler configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := scheduler.Run(ctx)
	docs := scheduler.Documents()
	if runErr != nil {
		slog.Error("crawl aborted", "error", runErr, "visited", len(docs))
	}
	// Documents visited before an abort are saved too.
	if err := corpus.Save(cfg.Corpus.Path, docs); err != nil {
		slog.Error("failed to save corpus", "path", cfg.Corpus.Path, "error", err)
		os.Exit(1)
	}
	slog.Info("corpus saved", "path", cfg.Corpus.Path, "documents", len(docs))
	if runErr != nil {
		os.Exit(1)
	}
}
