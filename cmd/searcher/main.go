package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/tracing"
)

const limiterIdle = 10 * time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting query service", "port", cfg.Server.Port, "corpus_source", cfg.Corpus.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	ix, err := buildIndex(ctx, cfg, m)
	if err != nil {
		slog.Error("failed to build index", "error", err)
		os.Exit(1)
	}

	strategy, err := parser.ParseStrategy(cfg.Search.DefaultStrategy)
	if err != nil {
		slog.Error("invalid default strategy", "error", err)
		os.Exit(1)
	}
	sort, err := document.ParseSortField(cfg.Search.DefaultSort)
	if err != nil {
		slog.Error("invalid default sort field", "error", err)
		os.Exit(1)
	}
	engine := executor.New(ix, executor.Options{BloomBitsPerElement: cfg.Search.BloomBitsPerElement})

	var pageCache *cache.PageCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, page caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breakerGauge := m.CircuitBreakerState.WithLabelValues(cache.BreakerName)
			pageCache = cache.New(redisClient, cfg.Redis.CacheTTL, ix.Fingerprint(),
				cache.WithBreakerObserver(func(s resilience.State) { breakerGauge.Set(float64(s)) }))
			slog.Info("page cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var publisher analytics.Publisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer
		slog.Info("publishing query events", "topic", cfg.Kafka.Topic)
	}
	aggregator := analytics.NewAggregator()
	collector := analytics.NewCollector(publisher, aggregator, m, analytics.CollectorOptions{
		BufferSize: cfg.Kafka.BufferSize,
	})
	collector.Start(ctx)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d tags", ix.Len(), len(ix.Tags())),
		}
	})
	if redisClient != nil {
		checker.RegisterOptional("redis", health.Ping(redisClient.Ping))
	}
	if producer != nil {
		checker.RegisterOptional("kafka", health.Ping(producer.Ping))
	}

	h := handler.New(engine, handler.Config{
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
		DefaultStrategy: strategy,
		DefaultSort:     sort,
	}, pageCache, collector, m)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port == 0 || cfg.Metrics.Port == cfg.Server.Port {
			mux.Handle("GET /metrics", metrics.Handler())
		} else {
			stopMetrics = metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		}
	}

	mws := []func(http.Handler) http.Handler{middleware.RequestID, middleware.Metrics(m)}
	if len(cfg.Server.CORSOrigins) > 0 {
		mws = append(mws, middleware.CORS(cfg.Server.CORSOrigins, 600))
	}
	var limiter *middleware.Limiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		mws = append(mws, middleware.RateLimit(limiter, m))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.RequestTimeout))

	if limiter != nil {
		go sweepLimiter(ctx, limiter)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if stopMetrics != nil {
			if err := stopMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("query service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	collector.Close()
	slog.Info("query service stopped")
}

// buildIndex loads the corpus, builds the index and publishes its size.
func buildIndex(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*indexer.Index, error) {
	if cfg.Tracing.Enabled {
		var span *tracing.Span
		ctx, span = tracing.StartSpan(ctx, "startup", "")
		defer func() {
			span.End()
			span.Log(slog.Default())
		}()
	}

	var pg *postgres.Client
	if cfg.Corpus.Source == "postgres" {
		var err error
		pg, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		defer pg.Close()
	}
	src, err := ingestion.Open(cfg.Corpus, pg)
	if err != nil {
		return nil, err
	}
	store, err := ingestion.LoadStore(ctx, src)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ix, err := indexer.Build(ctx, store, indexer.Options{Parallelism: cfg.Index.Parallelism})
	if err != nil {
		return nil, err
	}
	m.IndexBuildDuration.Observe(time.Since(start).Seconds())

	stats := ix.Stats()
	m.IndexDocuments.Set(float64(stats.Documents))
	m.IndexTags.Set(float64(stats.Tags))
	m.IndexBitmapBlocks.Set(float64(stats.BitmapBlocks))
	slog.Info("index ready",
		"documents", stats.Documents,
		"tags", stats.Tags,
		"bitmap_blocks", stats.BitmapBlocks,
		"fingerprint", ix.Fingerprint(),
	)
	return ix, nil
}

// sweepLimiter evicts idle rate-limit buckets until ctx is done.
func sweepLimiter(ctx context.Context, limiter *middleware.Limiter) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(limiterIdle); n > 0 {
				slog.Debug("rate limit buckets evicted", "count", n)
			}
		}
	}
}
