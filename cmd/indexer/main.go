package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/noodle-search/noodle/internal/corpus"
	"github.com/noodle-search/noodle/internal/index"
	"github.com/noodle-search/noodle/internal/nlp"
	"github.com/noodle-search/noodle/pkg/config"
	"github.com/noodle-search/noodle/pkg/logger"
	"github.com/noodle-search/noodle/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	positional := flag.Bool("positional", false, "build positional indexes (overrides indexer.positional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *positional {
		cfg.Indexer.Positional = true
	}

	logger.Setup("indexer", cfg.Logging.Level, cfg.Logging.Format)

	docs, err := corpus.Load(cfg.Corpus.Path)
	if err != nil {
		slog.Error("failed to load corpus", "path", cfg.Corpus.Path, "error", err)
		os.Exit(1)
	}
	norm, err := nlp.New(cfg.NLP)
	if err != nil {
		slog.Error("invalid nlp configuration", "error", err)
		os.Exit(1)
	}
	builder, err := index.NewBuilder(cfg.Indexer, norm, metrics.New(prometheus.DefaultRegisterer))
	if err != nil {
		slog.Error("invalid indexer configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("indexing corpus",
		"path", cfg.Corpus.Path,
		"documents", len(docs),
		"fields", cfg.Indexer.Fields,
		"normalizer", norm.String(),
	)
	meta, err := builder.Run(ctx, docs)
	if err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}
	slog.Info("index written",
		"dir", cfg.Indexer.OutputDir,
		"n_docs", meta.NDocs,
		"n_total_tokens", meta.NTotalTokens,
	)
}
