package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
	"github.com/couchcryptid/kinetic-event-fusion/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawEvent
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockTransformer struct {
	mu       sync.Mutex
	failures int
	seen     [][]domain.RawEvent
}

func (m *mockTransformer) TransformBatch(_ context.Context, raws []domain.RawEvent) ([]domain.OutputEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, raws)
	if m.failures > 0 {
		m.failures--
		return nil, errors.New("store unavailable")
	}
	out := make([]domain.OutputEvent, len(raws))
	for i, raw := range raws {
		out[i] = domain.OutputEvent{Topic: "sink", Key: raw.Key, Value: raw.Value}
	}
	return out, nil
}

func (m *mockTransformer) calls() [][]domain.RawEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen
}

type mockLoader struct {
	mu       sync.Mutex
	failures int
	attempts int
	loaded   []domain.OutputEvent
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) snapshot() ([]domain.OutputEvent, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutputEvent(nil), m.loaded...), m.attempts
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawEvent(key string, commits *atomic.Int64) domain.RawEvent {
	return domain.RawEvent{
		Key:   []byte(key),
		Value: []byte(`{"id":"` + key + `"}`),
		Topic: "raw-signals",
		Commit: func(context.Context) error {
			if commits != nil {
				commits.Add(1)
			}
			return nil
		},
	}
}

func run(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	ext := &mockExtractor{batches: [][]domain.RawEvent{{rawEvent("sig-1", nil), rawEvent("sig-2", nil)}}}
	tfm := &mockTransformer{}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, tfm, ldr, discardLogger(), metrics, 10)
	run(t, p, 300*time.Millisecond)

	loaded, _ := ldr.snapshot()
	assert.Len(t, loaded, 2)
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.MessagesConsumed), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.MessagesProduced), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches, will block
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	loaded, _ := ldr.snapshot()
	assert.Empty(t, loaded)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_TransformFailureRetriesSameBatch(t *testing.T) {
	first := []domain.RawEvent{rawEvent("sig-1", nil)}
	second := []domain.RawEvent{rawEvent("sig-2", nil)}
	ext := &mockExtractor{batches: [][]domain.RawEvent{first, second}}
	tfm := &mockTransformer{failures: 2}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, tfm, ldr, discardLogger(), metrics, 10)
	run(t, p, 2*time.Second)

	calls := tfm.calls()
	require.Len(t, calls, 4)
	for _, c := range calls[:3] {
		assert.Equal(t, []byte("sig-1"), c[0].Key, "the failed batch is retried before the next is read")
	}
	assert.Equal(t, []byte("sig-2"), calls[3][0].Key)

	loaded, _ := ldr.snapshot()
	require.Len(t, loaded, 2)
	assert.Equal(t, []byte("sig-1"), loaded[0].Key)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.TransformErrors), 0)
}

func TestPipeline_Run_LoadFailureRetriesOnlyLoad(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{rawEvent("sig-1", &commits)}}}
	tfm := &mockTransformer{}
	ldr := &mockLoader{failures: 1}

	p := pipeline.New(ext, tfm, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)
	run(t, p, time.Second)

	assert.Len(t, tfm.calls(), 1)
	loaded, attempts := ldr.snapshot()
	assert.Equal(t, 2, attempts)
	assert.Len(t, loaded, 1)
	assert.Equal(t, int64(1), commits.Load())
}

func TestPipeline_Run_CommitsAfterLoad(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{rawEvent("sig-1", &commits), rawEvent("sig-2", &commits)}}}
	ldr := &mockLoader{failures: 1000}

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)
	run(t, p, 500*time.Millisecond)

	assert.Zero(t, commits.Load(), "offsets are not committed while the load keeps failing")
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_CommitsDroppedRecords(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{rawEvent("bad", &commits)}}}
	tfm := &emptyTransformer{}
	ldr := &mockLoader{}

	p := pipeline.New(ext, tfm, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)
	run(t, p, 300*time.Millisecond)

	_, attempts := ldr.snapshot()
	assert.Zero(t, attempts)
	assert.Equal(t, int64(1), commits.Load())
}

// emptyTransformer drops every record, as a stage does with undecodable input.
type emptyTransformer struct{}

func (emptyTransformer) TransformBatch(context.Context, []domain.RawEvent) ([]domain.OutputEvent, error) {
	return nil, nil
}
