package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noodle-search/noodle/internal/analytics"
	"github.com/noodle-search/noodle/internal/corpus"
	"github.com/noodle-search/noodle/internal/nlp"
	"github.com/noodle-search/noodle/internal/ranker"
	"github.com/noodle-search/noodle/internal/searcher"
	"github.com/noodle-search/noodle/internal/searcher/cache"
	"github.com/noodle-search/noodle/internal/searcher/handler"
	"github.com/noodle-search/noodle/pkg/config"
	"github.com/noodle-search/noodle/pkg/health"
	"github.com/noodle-search/noodle/pkg/kafka"
	"github.com/noodle-search/noodle/pkg/logger"
	"github.com/noodle-search/noodle/pkg/metrics"
	"github.com/noodle-search/noodle/pkg/middleware"
	pkgredis "github.com/noodle-search/noodle/pkg/redis"
	"github.com/noodle-search/noodle/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	query := flag.String("query", "", "run one query, print the results and exit")
	n := flag.Int("n", 0, "number of results for -query (0 uses search.defaultLimit)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("searcher", cfg.Logging.Level, cfg.Logging.Format)

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
	rk, err := ranker.New(cfg.Ranker, norm, docs)
	if err != nil {
		slog.Error("failed to load ranker", "error", err)
		os.Exit(1)
	}
	slog.Info("ranker loaded", "model", rk.Model(), "documents", rk.NumDocs(), "normalizer", norm.String())

	if *query != "" {
		limit := *n
		if limit <= 0 {
			limit = cfg.Search.DefaultLimit
		}
		resp, _, err := searcher.New(rk, nil, cfg.Search.Display).Search(context.Background(), *query, limit)
		if err != nil {
			slog.Error("search failed", "query", *query, "error", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		enc.Encode(resp)
		return
	}

	if err := serve(cfg, rk); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config, rk *ranker.Ranker) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	var redisClient *pkgredis.Client
	var queryCache *cache.QueryCache[searcher.Response]
	if cfg.Redis.Enabled {
		err := resilience.Retry(ctx, "redis connect", resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond}, func() error {
			client, err := pkgredis.NewClient(cfg.Redis)
			redisClient = client
			return err
		})
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{})
			queryCache = cache.New[searcher.Response](cache.WithBreaker(redisClient, breaker), cfg.Redis.CacheTTL, m)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var publisher analytics.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		publisher = producer
		slog.Info("publishing search events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topics.SearchEvents)
	}
	aggregator := analytics.NewAggregator()
	collector := analytics.NewCollector(publisher, aggregator, analytics.CollectorConfig{})
	collector.Start(ctx)
	defer collector.Close()

	checker := health.NewChecker()
	checker.Register("ranker", func(ctx context.Context) health.ComponentHealth {
		if rk.NumDocs() == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "empty corpus"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents, %s", rk.NumDocs(), rk.Model())}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	svc := searcher.New(rk, queryCache, cfg.Search.Display)
	h := handler.New(svc, collector, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults, cfg.Tracing.Enabled)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	// request -> RequestID -> CORS -> [RateLimit] -> Timeout -> Metrics -> mux
	// Metrics must see the request the mux annotates with its pattern.
	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if rl := cfg.Search.RateLimit; rl.Requests > 0 {
		limiter := middleware.NewLimiter(rl.Requests, rl.Window)
		go limiter.RunCleanup(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
		slog.Info("rate limiting enabled", "requests", rl.Requests, "window", rl.Window)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// The deferred closers above run only after in-flight handlers finish.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		<-shutdownDone
		return err
	}
	<-shutdownDone
	slog.Info("search service stopped")
	return nil
}
