// Command backfill re-clusters the SQLite signal archive in fixed-size chunks.
// Each chunk is committed together with a checkpoint, so an interrupted run
// picks up after the last committed chunk. With -import, JSON-lines RawSignal
// records are loaded into the archive first.
//
// Usage:
//
//	STORE_PATH=fusion.db go run ./cmd/backfill \
//	  -import signals.jsonl \
//	  -chunk 5000
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/kinetic-event-fusion/internal/adapter/sqlite"
	"github.com/couchcryptid/kinetic-event-fusion/internal/config"
	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/fusion"
	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
	"github.com/couchcryptid/kinetic-event-fusion/internal/pipeline"
)

func main() {
	importPath := flag.String("import", "", "JSON-lines RawSignal file to archive before fusing (- for stdin)")
	chunk := flag.Int("chunk", 0, "signals per chunk (default FUSION_CHUNK_SIZE)")
	importOnly := flag.Bool("import-only", false, "archive the -import file and exit without fusing")
	flag.Parse()

	if err := run(*importPath, *chunk, *importOnly); err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		os.Exit(1)
	}
}

func run(importPath string, chunk int, importOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if chunk <= 0 {
		chunk = cfg.FusionChunkSize
	}
	logger := observability.NewLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	policy := config.DefaultPolicy()
	if cfg.PolicyPath != "" {
		if policy, err = config.LoadPolicy(cfg.PolicyPath); err != nil {
			return err
		}
	}
	engine, err := fusion.NewEngine(policy.FusionParams())
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := pipeline.NewBackfill(engine, store, domain.NewKeywordExtractor(policy.Vocabulary), chunk, logger, metrics)

	if importPath != "" {
		in, closeIn, err := openInput(importPath)
		if err != nil {
			return err
		}
		imported, rejected, err := b.Import(ctx, in)
		closeIn()
		if err != nil {
			return err
		}
		logger.Info("import complete", "path", importPath, "imported", imported, "rejected", rejected)
	}
	if importOnly {
		return nil
	}

	stats, err := b.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("backfill complete",
		"chunks", stats.Chunks, "signals", stats.Signals, "assigned", stats.Assigned,
		"created", stats.Created, "skipped", stats.Skipped, "resumed", stats.Resumed)
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
