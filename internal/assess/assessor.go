// Package assess turns extractor output into assessment reports: geographic
// validation and scoring fan out across events, kinetic probing runs in
// claimed-time order so each reading is judged against the one before it.
package assess

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/config"
	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/geovalidate"
	"github.com/couchcryptid/kinetic-event-fusion/internal/kinetic"
	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
	"github.com/couchcryptid/kinetic-event-fusion/internal/scoring"
	"golang.org/x/sync/errgroup"
)

// contextMembers caps how many member texts are pulled in as fallback context.
const contextMembers = 20

// Store is the durable side of assessment. The unit registry is read through
// it and updated only by CommitAssessments.
type Store interface {
	kinetic.Registry
	UniqueEvent(ctx context.Context, clusterID string) (domain.UniqueEvent, bool, error)
	ClusterContext(ctx context.Context, clusterID string, limit int) (string, error)
	CommitAssessments(ctx context.Context, reports []domain.AssessmentReport, positions []domain.UnitPosition) error
}

type engines struct {
	validator *geovalidate.Validator
	probe     *kinetic.Probe
}

// Assessor is safe for concurrent use; UpdatePolicy swaps the validator and
// probe atomically between batches.
type Assessor struct {
	geocoder    domain.Geocoder
	store       Store
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics

	current atomic.Pointer[engines]
}

// New builds an assessor. geocoder may be nil (degraded validation only) and
// store may be nil (empty registry, nothing persisted).
func New(policy *config.Policy, geocoder domain.Geocoder, store Store, concurrency int, logger *slog.Logger, metrics *observability.Metrics) *Assessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	a := &Assessor{
		geocoder:    geocoder,
		store:       store,
		concurrency: concurrency,
		logger:      logger,
		metrics:     metrics,
	}
	a.UpdatePolicy(policy)
	return a
}

// UpdatePolicy rebuilds the validator and probe from p. Batches already
// running finish under the policy they started with.
func (a *Assessor) UpdatePolicy(p *config.Policy) {
	geo := p.GeoPolicy()
	kw := domain.NewKeywordExtractor(p.Vocabulary)
	a.current.Store(&engines{
		validator: geovalidate.New(geo, a.geocoder, geovalidate.NewContextRederiver(kw, a.geocoder, geo.Capitals), a.logger),
		probe:     kinetic.NewProbe(p.KineticParams(), nil),
	})
}

type verdict struct {
	geo         domain.GeoResult
	score       domain.Score
	reliability *domain.Reliability
}

// Assess produces one report per extraction, in input order, and commits
// them together with the unit positions they establish. A store failure is
// returned so the caller can retry the whole batch.
func (a *Assessor) Assess(ctx context.Context, extractions []domain.Extraction) ([]domain.AssessmentReport, error) {
	if len(extractions) == 0 {
		return nil, nil
	}
	eng := a.current.Load()
	verdicts := make([]verdict, len(extractions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range extractions {
		g.Go(func() error {
			verdicts[i] = a.judge(gctx, eng.validator, extractions[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	registry := newOverlay(a.store)
	probe := eng.probe.WithRegistry(registry)
	kinetics := make([][]domain.KineticResult, len(extractions))
	for _, i := range claimedOrder(extractions) {
		loc := verdicts[i].geo.Location
		if !verdicts[i].geo.Accepted || loc == nil {
			continue
		}
		ex := extractions[i]
		for _, u := range ex.UnitMentions {
			res := probe.Check(ctx, u.UnitID, loc.Lat, loc.Lon, ex.ClaimedTimestamp)
			a.metrics.KineticVerdicts.WithLabelValues(string(res.Status), strconv.FormatBool(res.Plausible)).Inc()
			if !res.Plausible {
				a.logger.Info("implausible unit movement", "cluster_id", ex.ClusterID, "unit_id", res.UnitID, "reason", res.Reason)
			}
			kinetics[i] = append(kinetics[i], res)
			if res.Plausible && !res.Backfill && domain.ParseTimestamp(ex.ClaimedTimestamp).Valid() {
				registry.record(domain.UnitPosition{UnitID: res.UnitID, Lat: loc.Lat, Lon: loc.Lon, SeenAt: ex.ClaimedTimestamp})
			}
		}
	}

	now := domain.Now()
	reports := make([]domain.AssessmentReport, len(extractions))
	for i, ex := range extractions {
		v := verdicts[i]
		r := domain.AssessmentReport{
			ClusterID:        ex.ClusterID,
			ValidationMode:   v.geo.Mode,
			ValidationReason: v.geo.Reason,
			Score:            v.score.Value,
			ScoreStatus:      v.score.Status,
			Geo:              v.geo,
			ScoreDetail:      v.score,
			Kinetic:          kinetics[i],
			Reliability:      v.reliability,
			AssessedAt:       now,
		}
		if v.geo.Accepted {
			r.ValidatedLocation = v.geo.Location
		}
		reports[i] = r
	}

	if a.store != nil {
		if err := a.store.CommitAssessments(ctx, reports, registry.updates()); err != nil {
			return nil, fmt.Errorf("commit assessments: %w", err)
		}
	}
	return reports, nil
}

// judge runs the parallel-safe part of one assessment. Store lookups here
// only enrich the verdict, so their failures are logged and ignored.
func (a *Assessor) judge(ctx context.Context, v *geovalidate.Validator, ex domain.Extraction) verdict {
	text := ex.ContextText
	if text == "" && a.store != nil {
		t, err := a.store.ClusterContext(ctx, ex.ClusterID, contextMembers)
		if err != nil {
			a.logger.Warn("cluster context unavailable", "cluster_id", ex.ClusterID, "error", err)
		}
		text = t
	}

	out := verdict{
		geo:   v.Validate(ctx, ex.ClaimedLocation, text),
		score: scoring.FromExtraction(ex),
	}
	a.metrics.GeoVerdicts.WithLabelValues(string(out.geo.Mode), strconv.FormatBool(out.geo.Accepted)).Inc()
	a.metrics.Scores.WithLabelValues(string(out.score.Status)).Inc()

	if a.store != nil {
		ev, ok, err := a.store.UniqueEvent(ctx, ex.ClusterID)
		switch {
		case err != nil:
			a.logger.Warn("unique event unavailable, no reliability estimate", "cluster_id", ex.ClusterID, "error", err)
		case ok:
			r := scoring.Reliability(ev)
			out.reliability = &r
		}
	}
	return out
}

// claimedOrder sorts indices by claimed timestamp. Unparseable timestamps go
// last, in input order.
func claimedOrder(extractions []domain.Extraction) []int {
	type keyed struct {
		i  int
		t  time.Time
		ok bool
	}
	keys := make([]keyed, len(extractions))
	for i, ex := range extractions {
		t, ok := domain.ParseTimestamp(ex.ClaimedTimestamp).Time()
		keys[i] = keyed{i: i, t: t, ok: ok}
	}
	sort.SliceStable(keys, func(x, y int) bool {
		a, b := keys[x], keys[y]
		if a.ok != b.ok {
			return a.ok
		}
		return a.ok && a.t.Before(b.t)
	})
	order := make([]int, len(keys))
	for i, k := range keys {
		order[i] = k.i
	}
	return order
}

// overlay is a batch-local registry: positions recorded during the batch
// shadow the durable registry until the batch commits.
type overlay struct {
	base    kinetic.Registry
	pending map[string]domain.UnitPosition
	order   []string
}

func newOverlay(base kinetic.Registry) *overlay {
	return &overlay{base: base, pending: make(map[string]domain.UnitPosition)}
}

func (o *overlay) LastPosition(ctx context.Context, unitID string) (domain.UnitPosition, bool, error) {
	if p, ok := o.pending[unitID]; ok {
		return p, true, nil
	}
	if o.base == nil {
		return domain.UnitPosition{}, false, nil
	}
	return o.base.LastPosition(ctx, unitID)
}

func (o *overlay) record(p domain.UnitPosition) {
	if _, ok := o.pending[p.UnitID]; !ok {
		o.order = append(o.order, p.UnitID)
	}
	o.pending[p.UnitID] = p
}

func (o *overlay) updates() []domain.UnitPosition {
	out := make([]domain.UnitPosition, len(o.order))
	for i, id := range o.order {
		out[i] = o.pending[id]
	}
	return out
}
