package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/tracing"
)

type summary struct {
	Index       indexer.Stats         `json:"index"`
	Fingerprint string                `json:"fingerprint"`
	BuildTime   string                `json:"build_time"`
	Audit       *executor.AuditReport `json:"audit,omitempty"`
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	samples := flag.Int("samples", 200, "random boolean queries to cross-check across strategies (0 disables)")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "seed for the audit queries")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, span := tracing.StartSpan(ctx, "indexer", "")
	out, err := run(ctx, cfg, *samples, *seed)
	span.End()
	if cfg.Tracing.Enabled {
		span.Log(slog.Default())
	}
	if err != nil {
		slog.Error("index check failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		slog.Error("failed to write summary", "error", err)
		os.Exit(1)
	}
	if out.Audit != nil && !out.Audit.OK() {
		slog.Error("strategies disagree", "mismatches", len(out.Audit.Mismatches), "seed", *seed)
		os.Exit(2)
	}
}

func run(ctx context.Context, cfg *config.Config, samples int, seed uint64) (*summary, error) {
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
	out := &summary{
		Index:       ix.Stats(),
		Fingerprint: ix.Fingerprint(),
		BuildTime:   time.Since(start).String(),
	}
	slog.Info("index built", "documents", out.Index.Documents, "tags", out.Index.Tags, "took", out.BuildTime)

	if samples <= 0 {
		return out, nil
	}
	engine := executor.New(ix, executor.Options{BloomBitsPerElement: cfg.Search.BloomBitsPerElement})
	out.Audit, err = executor.Audit(ctx, engine, executor.AuditOptions{Samples: samples, Seed: seed})
	if err != nil {
		return nil, err
	}
	slog.Info("audit finished",
		"samples", out.Audit.Samples,
		"mismatches", len(out.Audit.Mismatches),
		"bloom_shortfall", out.Audit.BloomShortfall,
		"took", out.Audit.Duration,
	)
	return out, nil
}
