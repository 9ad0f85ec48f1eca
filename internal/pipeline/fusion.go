package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/fusion"
	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
)

// WindowReader reads back what is needed to rebuild the active set.
type WindowReader interface {
	LatestSortKey(ctx context.Context) (int64, bool, error)
	WindowMembers(ctx context.Context, since time.Time) ([]domain.ClusterMember, error)
}

// FusionStore is the durable side of the fusion stage.
type FusionStore interface {
	WindowReader
	Embeddings(ctx context.Context, ids []string) (map[string][]float32, error)
	AssignedClusters(ctx context.Context, ids []string) (map[string]string, error)
	CommitChunk(ctx context.Context, chunk domain.Chunk) ([]domain.UniqueEvent, error)
	UniqueEvent(ctx context.Context, clusterID string) (domain.UniqueEvent, bool, error)
}

// FusionTopics names the sink topics of the fusion stage.
type FusionTopics struct {
	Assignments string
	Events      string
}

// RestoreActiveSet resets the engine and refills it with the committed
// members of every cluster that was live within one window of the most
// recently committed signal. It returns the number of members replayed.
func RestoreActiveSet(ctx context.Context, engine *fusion.Engine, store WindowReader, kw *domain.KeywordExtractor) (int, error) {
	engine.Reset()
	latest, ok, err := store.LatestSortKey(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	since := time.Unix(0, latest).Add(-engine.Params().Window)
	committed, err := store.WindowMembers(ctx, since)
	if err != nil {
		return 0, err
	}
	members := make([]fusion.Member, len(committed))
	for i, m := range committed {
		members[i] = fusion.Member{Signal: domain.NewSignal(m.Signal, kw), ClusterID: m.ClusterID}
	}
	engine.Restore(members)
	return len(members), nil
}

// FusionStage is the BatchTransformer of the fuse pipeline. Each batch is one
// chunk: decoded, completed from the embedding index, sorted, fused and
// committed in a single store transaction before any output is returned.
type FusionStage struct {
	engine   *fusion.Engine
	store    FusionStore
	keywords *domain.KeywordExtractor
	topics   FusionTopics
	logger   *slog.Logger
	metrics  *observability.Metrics

	// stale is set when a commit failed and the active set no longer
	// matches the store.
	stale bool
}

// NewFusionStage builds the stage. Call Warm before the first batch to pick
// up where a previous run left off.
func NewFusionStage(engine *fusion.Engine, store FusionStore, kw *domain.KeywordExtractor, topics FusionTopics, logger *slog.Logger, metrics *observability.Metrics) *FusionStage {
	return &FusionStage{
		engine:   engine,
		store:    store,
		keywords: kw,
		topics:   topics,
		logger:   logger,
		metrics:  metrics,
	}
}

// Warm rebuilds the active set from the store.
func (f *FusionStage) Warm(ctx context.Context) error {
	n, err := RestoreActiveSet(ctx, f.engine, f.store, f.keywords)
	if err != nil {
		f.stale = true
		return fmt.Errorf("restore active set: %w", err)
	}
	f.stale = false
	f.metrics.ActiveClusters.Set(float64(f.engine.Active()))
	f.logger.Info("active set restored", "members", n, "clusters", f.engine.Active())
	return nil
}

type pending struct {
	signal   domain.Signal
	ingested time.Time
}

// TransformBatch implements BatchTransformer.
func (f *FusionStage) TransformBatch(ctx context.Context, raws []domain.RawEvent) ([]domain.OutputEvent, error) {
	if f.stale {
		if err := f.Warm(ctx); err != nil {
			return nil, err
		}
	}

	batch := f.decode(raws)
	if len(batch) == 0 {
		return nil, nil
	}

	ids := make([]string, len(batch))
	for i, p := range batch {
		ids[i] = p.signal.ID
	}
	committed, err := f.store.AssignedClusters(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("look up assignments: %w", err)
	}

	fresh := batch[:0]
	var redelivered []domain.Assignment
	for _, p := range batch {
		if cl, ok := committed[p.signal.ID]; ok {
			redelivered = append(redelivered, domain.Assignment{SignalID: p.signal.ID, ClusterID: cl})
			continue
		}
		fresh = append(fresh, p)
	}
	if len(redelivered) > 0 {
		f.metrics.SignalsSkipped.WithLabelValues("duplicate").Add(float64(len(redelivered)))
	}

	if err := f.completeEmbeddings(ctx, fresh); err != nil {
		return nil, err
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return effectiveTime(fresh[i]).Before(effectiveTime(fresh[j]))
	})
	signals := make([]domain.Signal, len(fresh))
	for i, p := range fresh {
		signals[i] = p.signal
		if !p.signal.Published.Valid() {
			f.logger.Warn("unparseable published_at, fusing without time bonus",
				"signal_id", p.signal.ID, "published_at", p.signal.PublishedAt)
		}
	}

	res := f.engine.Fuse(signals)
	events, err := f.store.CommitChunk(ctx, domain.Chunk{
		Signals:     signals,
		Assignments: res.Assignments,
		Events:      res.Events,
	})
	if err != nil {
		f.metrics.ChunkCommitErrors.Inc()
		f.stale = true
		if werr := f.Warm(ctx); werr != nil {
			f.logger.Error("active set rebuild failed", "error", werr)
		}
		return nil, fmt.Errorf("commit chunk: %w", err)
	}

	recordChunk(f.metrics, f.logger, res, f.engine)

	out := make([]domain.OutputEvent, 0, len(res.Assignments)+len(events)+2*len(redelivered))
	for _, a := range res.Assignments {
		ev, err := domain.NewOutputEvent(f.topics.Assignments, a.SignalID, domain.KindAssignment, a)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	for _, ue := range events {
		ev, err := domain.NewOutputEvent(f.topics.Events, ue.ClusterID, domain.KindEvent, ue)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	replayed, err := f.replay(ctx, redelivered)
	if err != nil {
		return nil, err
	}
	return append(out, replayed...), nil
}

// decode parses every record, dropping and counting the ones that fail, and
// drops repeats of an ID within the batch.
func (f *FusionStage) decode(raws []domain.RawEvent) []pending {
	seen := make(map[string]bool, len(raws))
	out := make([]pending, 0, len(raws))
	for _, raw := range raws {
		rs, err := domain.ParseRawSignal(raw.Value)
		if err != nil {
			f.metrics.DecodeErrors.WithLabelValues("signal").Inc()
			f.logger.Warn("decode failed, skipping message", "error", err,
				"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
			continue
		}
		if seen[rs.ID] {
			f.metrics.SignalsSkipped.WithLabelValues("duplicate").Inc()
			continue
		}
		seen[rs.ID] = true
		ingested := raw.Timestamp
		if ingested.IsZero() {
			ingested = domain.Now()
		}
		out = append(out, pending{signal: domain.NewSignal(rs, f.keywords), ingested: ingested})
	}
	return out
}

// completeEmbeddings fills in vectors from the embedding index for signals
// that arrived without one.
func (f *FusionStage) completeEmbeddings(ctx context.Context, batch []pending) error {
	var missing []string
	for _, p := range batch {
		if !p.signal.HasEmbedding() {
			missing = append(missing, p.signal.ID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	found, err := f.store.Embeddings(ctx, missing)
	if err != nil {
		return fmt.Errorf("look up embeddings: %w", err)
	}
	for i := range batch {
		s := &batch[i].signal
		if s.HasEmbedding() {
			continue
		}
		if v, ok := found[s.ID]; ok {
			s.Embedding = v
			continue
		}
		f.metrics.SignalsSkipped.WithLabelValues("no_embedding").Inc()
		f.logger.Warn("signal has no embedding, skipping", "signal_id", s.ID, "error", domain.ErrNoEmbedding)
	}
	return nil
}

// replay re-emits the committed outputs of redelivered signals so a crash
// between commit and publish loses nothing downstream.
func (f *FusionStage) replay(ctx context.Context, assignments []domain.Assignment) ([]domain.OutputEvent, error) {
	var out []domain.OutputEvent
	emitted := make(map[string]bool)
	for _, a := range assignments {
		ev, err := domain.NewOutputEvent(f.topics.Assignments, a.SignalID, domain.KindAssignment, a)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
		if emitted[a.ClusterID] {
			continue
		}
		emitted[a.ClusterID] = true
		ue, ok, err := f.store.UniqueEvent(ctx, a.ClusterID)
		if err != nil {
			return nil, fmt.Errorf("read unique event: %w", err)
		}
		if !ok {
			continue
		}
		ev, err = domain.NewOutputEvent(f.topics.Events, ue.ClusterID, domain.KindEvent, ue)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func recordChunk(m *observability.Metrics, logger *slog.Logger, res fusion.ChunkResult, engine *fusion.Engine) {
	active := engine.Active()
	m.SignalsFused.WithLabelValues("created").Add(float64(res.Created))
	m.SignalsFused.WithLabelValues("merged").Add(float64(res.Merged))
	if res.Duplicates > 0 {
		m.SignalsSkipped.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	}
	m.ClustersEvicted.Add(float64(res.Evicted))
	m.CrossSourceFusions.Add(float64(len(res.Fused)))
	m.ActiveClusters.Set(float64(active))
	for _, id := range res.Fused {
		logger.Info("cross-source corroboration", "cluster_id", id)
	}
	logger.Debug("chunk fused",
		"created", res.Created, "merged", res.Merged, "skipped", res.Skipped,
		"evicted", res.Evicted, "active", active, "position", engine.Position())
}

// effectiveTime orders signals by their published instant, falling back to
// the transport timestamp.
func effectiveTime(p pending) time.Time {
	if t, ok := p.signal.Published.Time(); ok {
		return t
	}
	return p.ingested
}
