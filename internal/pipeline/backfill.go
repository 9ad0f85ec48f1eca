package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/fusion"
	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
)

// BackfillCheckpoint names the checkpoint a backfill run resumes from.
const BackfillCheckpoint = "backfill"

const (
	importBatchSize = 1000
	maxLineBytes    = 8 << 20
)

// ArchiveStore is the store side of a backfill run.
type ArchiveStore interface {
	WindowReader
	SaveSignals(ctx context.Context, signals []domain.RawSignal) (int, error)
	AssignedClusters(ctx context.Context, ids []string) (map[string]string, error)
	SignalsAfter(ctx context.Context, cursor domain.Checkpoint, limit int) ([]domain.ArchivedSignal, error)
	Checkpoint(ctx context.Context, name string) (domain.Checkpoint, bool, error)
	CommitChunk(ctx context.Context, chunk domain.Chunk) ([]domain.UniqueEvent, error)
}

// BackfillStats summarizes one run.
type BackfillStats struct {
	Chunks   int
	Signals  int
	Assigned int
	Created  int
	Skipped  int
	Resumed  bool
}

// Backfill re-clusters the signal archive in fixed-size chunks, committing
// each chunk together with its checkpoint.
type Backfill struct {
	engine    *fusion.Engine
	store     ArchiveStore
	keywords  *domain.KeywordExtractor
	chunkSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewBackfill builds a runner over store.
func NewBackfill(engine *fusion.Engine, store ArchiveStore, kw *domain.KeywordExtractor, chunkSize int, logger *slog.Logger, metrics *observability.Metrics) *Backfill {
	if chunkSize <= 0 {
		chunkSize = 5000
	}
	return &Backfill{
		engine:    engine,
		store:     store,
		keywords:  kw,
		chunkSize: chunkSize,
		logger:    logger,
		metrics:   metrics,
	}
}

// Import loads JSON-lines RawSignal records into the archive. Lines that do
// not decode are logged and counted as rejected.
func (b *Backfill) Import(ctx context.Context, r io.Reader) (imported, rejected int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	batch := make([]domain.RawSignal, 0, importBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := b.store.SaveSignals(ctx, batch)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		imported += n
		batch = batch[:0]
		return nil
	}

	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		rs, err := domain.ParseRawSignal(sc.Bytes())
		if err != nil {
			rejected++
			b.metrics.DecodeErrors.WithLabelValues("signal").Inc()
			b.logger.Warn("skipping import line", "line", line, "error", err)
			continue
		}
		batch = append(batch, rs)
		if len(batch) == importBatchSize {
			if err := flush(); err != nil {
				return imported, rejected, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return imported, rejected, fmt.Errorf("import line %d: %w", line+1, err)
	}
	return imported, rejected, flush()
}

// Run resumes from the checkpoint: it rebuilds the active set from the
// committed pruning window, then fuses the archive after the cursor one
// chunk at a time. Signals already assigned, by an earlier run or by the
// live stage, are left as they are. A failed commit aborts the run; the next
// run resumes from the last committed chunk.
func (b *Backfill) Run(ctx context.Context) (BackfillStats, error) {
	var stats BackfillStats
	cursor, resumed, err := b.store.Checkpoint(ctx, BackfillCheckpoint)
	if err != nil {
		return stats, err
	}
	stats.Resumed = resumed

	restored, err := RestoreActiveSet(ctx, b.engine, b.store, b.keywords)
	if err != nil {
		return stats, fmt.Errorf("restore active set: %w", err)
	}
	b.logger.Info("backfill starting",
		"resumed", resumed, "cursor_sort_key", cursor.SortKey, "cursor_signal_id", cursor.SignalID,
		"restored_members", restored, "chunk_size", b.chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		page, err := b.store.SignalsAfter(ctx, cursor, b.chunkSize)
		if err != nil {
			return stats, err
		}
		if len(page) == 0 {
			break
		}
		next := page[len(page)-1].Cursor(BackfillCheckpoint)

		signals, err := b.unassigned(ctx, page)
		if err != nil {
			return stats, err
		}
		res := b.engine.Fuse(signals)
		if _, err := b.store.CommitChunk(ctx, domain.Chunk{
			Assignments: res.Assignments,
			Events:      res.Events,
			Checkpoint:  &next,
		}); err != nil {
			b.metrics.ChunkCommitErrors.Inc()
			return stats, fmt.Errorf("commit chunk %d after %s: %w", stats.Chunks+1, cursor.SignalID, err)
		}

		recordChunk(b.metrics, b.logger, res, b.engine)
		if res.Skipped > 0 {
			b.metrics.SignalsSkipped.WithLabelValues("no_embedding").Add(float64(res.Skipped))
		}
		stats.Chunks++
		stats.Signals += len(page)
		stats.Assigned += len(res.Assignments)
		stats.Created += res.Created
		stats.Skipped += res.Skipped
		cursor = next

		b.logger.Info("chunk committed",
			"chunk", stats.Chunks, "signals", len(page), "assigned", len(res.Assignments),
			"active", b.engine.Active(), "cursor_signal_id", cursor.SignalID)
	}
	return stats, nil
}

func (b *Backfill) unassigned(ctx context.Context, page []domain.ArchivedSignal) ([]domain.Signal, error) {
	ids := make([]string, len(page))
	for i, a := range page {
		ids[i] = a.ID
	}
	assigned, err := b.store.AssignedClusters(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("look up assignments: %w", err)
	}
	signals := make([]domain.Signal, 0, len(page))
	for _, a := range page {
		if _, ok := assigned[a.ID]; ok {
			continue
		}
		signals = append(signals, domain.NewSignal(a.RawSignal, b.keywords))
	}
	return signals, nil
}
