// Command assess validates and scores Extractor payloads outside the stream.
// It reads one JSON payload per line, assesses them as a single batch against
// the configured policy, and writes one AssessmentReport per line. Payloads
// that fail schema validation are reported on stderr and skipped.
//
// Usage:
//
//	go run ./cmd/assess -in extractions.jsonl -out reports.jsonl
//	cat extractions.jsonl | go run ./cmd/assess -store fusion.db
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/kinetic-event-fusion/internal/adapter/mapbox"
	"github.com/couchcryptid/kinetic-event-fusion/internal/adapter/sqlite"
	"github.com/couchcryptid/kinetic-event-fusion/internal/assess"
	"github.com/couchcryptid/kinetic-event-fusion/internal/config"
	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
)

func main() {
	inPath := flag.String("in", "-", "JSON-lines Extractor payloads (- for stdin)")
	outPath := flag.String("out", "-", "where to write JSON-lines reports (- for stdout)")
	storePath := flag.String("store", "", "SQLite store for the unit registry and cluster context; reports are persisted there too")
	flag.Parse()

	if err := run(*inPath, *outPath, *storePath); err != nil {
		fmt.Fprintf(os.Stderr, "assess: %v\n", err)
		os.Exit(1)
	}
}

func run(inPath, outPath, storePath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	policy := config.DefaultPolicy()
	if cfg.PolicyPath != "" {
		if policy, err = config.LoadPolicy(cfg.PolicyPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	geocoder, err := mapbox.NewGazetteer(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}

	var store assess.Store
	if storePath != "" {
		st, err := sqlite.Open(storePath)
		if err != nil {
			return err
		}
		defer st.Close()
		store = st
	}

	in, err := openIn(inPath)
	if err != nil {
		return err
	}
	defer in.Close()
	extractions, err := readExtractions(in, logger)
	if err != nil {
		return err
	}

	reports, err := assess.New(policy, geocoder, store, cfg.AssessConcurrency, logger, metrics).Assess(ctx, extractions)
	if err != nil {
		return err
	}

	out, err := openOut(outPath)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			out.Close()
			return fmt.Errorf("write report %s: %w", r.ClusterID, err)
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	logger.Info("assessment complete", "read", len(extractions), "written", len(reports))
	return out.Close()
}

func readExtractions(r io.Reader, logger *slog.Logger) ([]domain.Extraction, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)

	var out []domain.Extraction
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		ex, err := domain.DecodeExtraction(sc.Bytes())
		if err != nil {
			logger.Warn("invalid extraction, skipping line", "line", line, "error", err)
			continue
		}
		out = append(out, ex)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", line+1, err)
	}
	return out, nil
}

func openIn(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func openOut(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}
