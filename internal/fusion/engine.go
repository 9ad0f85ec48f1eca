// Package fusion implements the streaming clustering engine that folds a
// chronologically ordered signal stream into unique events.
package fusion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/google/uuid"
)

// clusterNamespace seeds content-derived cluster IDs.
var clusterNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("kinetic-event-fusion/cluster"))

// ClusterID derives the opaque identifier of a cluster from the ID of the
// signal that seeded it. Re-running the same input yields the same IDs.
func ClusterID(seedSignalID string) string {
	return uuid.NewSHA1(clusterNamespace, []byte(seedSignalID)).String()
}

type cluster struct {
	id       string
	seq      uint64
	centroid []float64
	count    int

	firstSeen time.Time
	lastSeen  time.Time

	hasWeb       bool
	hasMessaging bool
	lastSource   domain.SourceType
	keywords     domain.TagSet
	sourceNames  map[string]struct{}
	sourceTypes  map[domain.SourceType]struct{}
	members      []string
}

func (c *cluster) crossSource() bool {
	return c.hasWeb && c.hasMessaging
}

func (c *cluster) snapshot() domain.UniqueEvent {
	names := make([]string, 0, len(c.sourceNames))
	for n := range c.sourceNames {
		names = append(names, n)
	}
	sort.Strings(names)
	types := make([]domain.SourceType, 0, len(c.sourceTypes))
	for t := range c.sourceTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return domain.UniqueEvent{
		ClusterID:               c.id,
		FirstSeenAt:             c.firstSeen,
		LastSeenAt:              c.lastSeen,
		MemberCount:             c.count,
		SourceNames:             names,
		SourceTypes:             types,
		CrossSourceCorroborated: c.crossSource(),
	}
}

// Member is a committed signal and the cluster it was assigned to.
type Member struct {
	Signal    domain.Signal
	ClusterID string
}

// ChunkResult is what one call to Fuse produced.
type ChunkResult struct {
	Assignments []domain.Assignment
	// Events holds a snapshot of every cluster the chunk touched, in order
	// of first touch.
	Events []domain.UniqueEvent
	// Fused lists clusters that became cross-source corroborated in this chunk.
	Fused      []string
	Created    int
	Merged     int
	Skipped    int
	Duplicates int
	Evicted    int
}

// Engine holds the active cluster set. It is not safe for concurrent use;
// matching is sequential by construction.
type Engine struct {
	params Params

	clusters []*cluster
	byID     map[string]*cluster
	members  map[string]string
	seq      uint64
	position time.Time
}

// NewEngine builds an engine with an empty active set.
func NewEngine(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("fusion params: %w", err)
	}
	e := &Engine{params: p}
	e.Reset()
	return e, nil
}

// Params returns the engine's configuration.
func (e *Engine) Params() Params {
	return e.params
}

// Reset drops the whole active set.
func (e *Engine) Reset() {
	e.clusters = nil
	e.byID = make(map[string]*cluster)
	e.members = make(map[string]string)
	e.seq = 0
	e.position = time.Time{}
}

// Active returns the number of clusters in the active set.
func (e *Engine) Active() int {
	return len(e.clusters)
}

// Position is the latest valid signal timestamp the engine has processed.
func (e *Engine) Position() time.Time {
	return e.position
}

// AssignedTo reports the cluster a signal in the active window was assigned to.
func (e *Engine) AssignedTo(signalID string) (string, bool) {
	id, ok := e.members[signalID]
	return id, ok
}

// Prune evicts every cluster whose last sighting is more than the window
// older than ref and returns how many were evicted. A cluster that has no
// parseable sighting yet is stamped with ref instead of being evicted.
func (e *Engine) Prune(ref time.Time) int {
	cutoff := ref.Add(-e.params.Window)
	kept := e.clusters[:0]
	evicted := 0
	for _, c := range e.clusters {
		if c.lastSeen.IsZero() {
			c.lastSeen = ref
		}
		if c.lastSeen.Before(cutoff) {
			delete(e.byID, c.id)
			for _, m := range c.members {
				delete(e.members, m)
			}
			evicted++
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(e.clusters); i++ {
		e.clusters[i] = nil
	}
	e.clusters = kept
	return evicted
}

// Fuse matches one chronologically sorted chunk against the active set.
// Clusters created inside the chunk are matchable by later signals of the
// same chunk.
func (e *Engine) Fuse(signals []domain.Signal) ChunkResult {
	var res ChunkResult
	for _, s := range signals {
		if t, ok := s.Published.Time(); ok {
			res.Evicted = e.Prune(t)
			break
		}
	}

	touched := make(map[string]int)
	fused := make(map[string]bool)
	touch := func(c *cluster) {
		if _, ok := touched[c.id]; !ok {
			touched[c.id] = len(touched)
		}
	}

	for _, s := range signals {
		if _, dup := e.members[s.ID]; dup {
			res.Duplicates++
			continue
		}
		if !s.HasEmbedding() {
			res.Skipped++
			continue
		}
		e.advance(s)

		c := e.bestMatch(s)
		if c == nil {
			c = e.create(s, ClusterID(s.ID))
			res.Created++
		} else {
			wasCross := c.crossSource()
			e.merge(c, s)
			res.Merged++
			if !wasCross && c.crossSource() && !fused[c.id] {
				fused[c.id] = true
				res.Fused = append(res.Fused, c.id)
			}
		}
		touch(c)
		res.Assignments = append(res.Assignments, domain.Assignment{SignalID: s.ID, ClusterID: c.id})
	}

	res.Events = make([]domain.UniqueEvent, len(touched))
	for id, i := range touched {
		res.Events[i] = e.byID[id].snapshot()
	}
	return res
}

// Stream runs Fuse over signals in chunks of chunkSize, calling commit after
// each chunk. It stops at the first commit error; the failed chunk must be
// re-fed after the active set is rebuilt. Cancellation is checked between
// chunks only.
func (e *Engine) Stream(ctx context.Context, signals []domain.Signal, chunkSize int, commit func(ChunkResult) error) error {
	if chunkSize <= 0 {
		chunkSize = len(signals)
	}
	for start := 0; start < len(signals); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+chunkSize, len(signals))
		res := e.Fuse(signals[start:end])
		if err := commit(res); err != nil {
			return fmt.Errorf("commit chunk at %d: %w", start, err)
		}
	}
	return nil
}

// Restore rebuilds the active set from committed members, which must be in
// processing order. Members of clusters already active are merged in.
func (e *Engine) Restore(members []Member) {
	for _, m := range members {
		if _, dup := e.members[m.Signal.ID]; dup {
			continue
		}
		e.advance(m.Signal)
		if c, ok := e.byID[m.ClusterID]; ok {
			e.merge(c, m.Signal)
			continue
		}
		e.create(m.Signal, m.ClusterID)
	}
}

func (e *Engine) advance(s domain.Signal) {
	if t, ok := s.Published.Time(); ok && t.After(e.position) {
		e.position = t
	}
}

func (e *Engine) bestMatch(s domain.Signal) *cluster {
	var best *cluster
	bestSim := 0.0
	for _, c := range e.clusters {
		sim, err := Cosine(s.Embedding, c.centroid)
		if err != nil {
			continue
		}
		if sim <= e.threshold(s, c) {
			continue
		}
		if best == nil || sim > bestSim || (sim == bestSim && c.lastSeen.After(best.lastSeen)) {
			best, bestSim = c, sim
		}
	}
	return best
}

// threshold picks the similarity bar a signal must clear to join c.
func (e *Engine) threshold(s domain.Signal, c *cluster) float64 {
	p := e.params
	if e.signalScore(s, c) >= p.MultiSignalMinScore {
		return p.MultiSignalThreshold
	}
	sWeb := s.SourceType == domain.SourceWebNews
	cWeb := c.lastSource == domain.SourceWebNews
	if sWeb != cWeb {
		return p.CrossSourceThreshold
	}
	return p.SameSourceThreshold
}

// signalScore counts the contextual agreements between s and c.
func (e *Engine) signalScore(s domain.Signal, c *cluster) int {
	p := e.params
	score := 0
	if t, ok := s.Published.Time(); ok && !c.lastSeen.IsZero() {
		d := t.Sub(c.lastSeen)
		if d < 0 {
			d = -d
		}
		switch {
		case d <= p.NearWindow:
			score += p.NearBonus
		case d <= p.FarWindow:
			score += p.FarBonus
		}
	}
	if s.Keywords.SharesAny(c.keywords, domain.TagLocation) {
		score += p.LocationBonus
	}
	if s.Keywords.SharesAny(c.keywords, domain.TagUnit, domain.TagWeapon) {
		score += p.UnitWeaponBonus
	}
	if s.Keywords.SharesAny(c.keywords, domain.TagAction) {
		score += p.ActionBonus
	}
	return score
}

func (e *Engine) create(s domain.Signal, id string) *cluster {
	e.seq++
	c := &cluster{
		id:          id,
		seq:         e.seq,
		keywords:    make(domain.TagSet),
		sourceNames: make(map[string]struct{}),
		sourceTypes: make(map[domain.SourceType]struct{}),
	}
	if t, ok := s.Published.Time(); ok {
		c.firstSeen, c.lastSeen = t, t
	} else {
		c.lastSeen = e.position
	}
	if s.HasEmbedding() {
		c.centroid = make([]float64, len(s.Embedding))
		for i, v := range s.Embedding {
			c.centroid[i] = float64(v)
		}
	}
	c.count = 1
	e.absorb(c, s)
	e.clusters = append(e.clusters, c)
	e.byID[id] = c
	return c
}

func (e *Engine) merge(c *cluster, s domain.Signal) {
	switch {
	case !s.HasEmbedding():
	case c.centroid == nil:
		c.centroid = make([]float64, len(s.Embedding))
		for i, v := range s.Embedding {
			c.centroid[i] = float64(v)
		}
	case len(c.centroid) == len(s.Embedding):
		n := float64(c.count)
		for i, v := range s.Embedding {
			c.centroid[i] = (c.centroid[i]*n + float64(v)) / (n + 1)
		}
	}
	c.count++
	if t, ok := s.Published.Time(); ok {
		if t.After(c.lastSeen) {
			c.lastSeen = t
		}
		if c.firstSeen.IsZero() || t.Before(c.firstSeen) {
			c.firstSeen = t
		}
	}
	e.absorb(c, s)
}

// absorb folds the signal's keywords and source metadata into c.
func (e *Engine) absorb(c *cluster, s domain.Signal) {
	c.keywords.Union(s.Keywords)
	switch s.SourceType {
	case domain.SourceWebNews:
		c.hasWeb = true
	case domain.SourceMessaging:
		c.hasMessaging = true
	}
	c.lastSource = s.SourceType
	if s.SourceName != "" {
		c.sourceNames[s.SourceName] = struct{}{}
	}
	c.sourceTypes[s.SourceType] = struct{}{}
	c.members = append(c.members, s.ID)
	e.members[s.ID] = c.id
}
