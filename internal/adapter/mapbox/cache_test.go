package mapbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGeocoder struct {
	forwardCalls int
	reverseCalls int
	result       domain.GeocodingResult
	err          error
}

func (m *countingGeocoder) ForwardGeocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	m.forwardCalls++
	return m.result, m.err
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	m.reverseCalls++
	return m.result, m.err
}

var kherson = domain.GeocodingResult{Lat: 46.64, Lon: 32.61, CountryCode: "UA", Region: "Kherson Oblast", PlaceName: "Kherson", FormattedAddress: "Kherson, Ukraine"}

func TestCachedGeocoder_ForwardCacheHit(t *testing.T) {
	inner := &countingGeocoder{result: kherson}
	m := testMetrics()
	cached := NewCachedGeocoder(inner, 10, m)

	r1, err := cached.ForwardGeocode(context.Background(), "Kherson")
	require.NoError(t, err)
	assert.Equal(t, "UA", r1.CountryCode)

	// keys are case- and whitespace-insensitive
	r2, err := cached.ForwardGeocode(context.Background(), " KHERSON ")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	assert.Equal(t, 1, inner.forwardCalls, "should only call inner once")
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("forward", "hit")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("forward", "miss")), 1e-9)
}

func TestCachedGeocoder_ReverseCacheHit(t *testing.T) {
	inner := &countingGeocoder{result: kherson}
	cached := NewCachedGeocoder(inner, 10, testMetrics())

	_, err := cached.ReverseGeocode(context.Background(), 46.64, 32.61)
	require.NoError(t, err)
	_, err = cached.ReverseGeocode(context.Background(), 46.64, 32.61)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.reverseCalls, "should only call inner once")
}

func TestCachedGeocoder_EmptyAndErrorsNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10, nil)

	_, _ = cached.ForwardGeocode(context.Background(), "nowhere")
	_, _ = cached.ForwardGeocode(context.Background(), "nowhere")
	assert.Equal(t, 2, inner.forwardCalls)

	inner.err = errors.New("boom")
	_, err := cached.ReverseGeocode(context.Background(), 1, 1)
	require.Error(t, err)
	_, err = cached.ReverseGeocode(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Equal(t, 2, inner.reverseCalls)
	assert.Zero(t, cached.cache.len())
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{result: kherson}
	cached := NewCachedGeocoder(inner, 10, nil)

	_, _ = cached.ForwardGeocode(context.Background(), "Kherson")
	_, _ = cached.ForwardGeocode(context.Background(), "Mykolaiv")

	assert.Equal(t, 2, inner.forwardCalls)
}

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", domain.GeocodingResult{PlaceName: "A"})
	c.put("b", domain.GeocodingResult{PlaceName: "B"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.PlaceName)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.GeocodingResult{PlaceName: "A"})
	c.put("b", domain.GeocodingResult{PlaceName: "B"})
	c.get("a")
	c.put("c", domain.GeocodingResult{PlaceName: "C"})

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")
	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.GeocodingResult{PlaceName: "A1"})
	c.put("a", domain.GeocodingResult{PlaceName: "A2"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.PlaceName)
	assert.Equal(t, 1, c.len())
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, forwardKey("Kherson  Oblast"), forwardKey(" kherson oblast\t"))
	assert.Equal(t, reverseKey(46.640001, 32.61), reverseKey(46.64004, 32.609999))
	assert.NotEqual(t, reverseKey(46.64, 32.61), reverseKey(46.6412, 32.61))
}

// blockingGeocoder holds every call until release is closed.
type blockingGeocoder struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *blockingGeocoder) ForwardGeocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	<-b.release
	return kherson, nil
}

func (b *blockingGeocoder) ReverseGeocode(ctx context.Context, _, _ float64) (domain.GeocodingResult, error) {
	return b.ForwardGeocode(ctx, "")
}

func TestCachedGeocoder_CoalescesConcurrentMisses(t *testing.T) {
	inner := &blockingGeocoder{started: make(chan struct{}), release: make(chan struct{})}
	m := testMetrics()
	cached := NewCachedGeocoder(inner, 10, m)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]domain.GeocodingResult, callers)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = cached.ForwardGeocode(context.Background(), "Kherson")
	}()
	<-inner.started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cached.ForwardGeocode(context.Background(), "Kherson")
		}(i)
	}
	// let the followers queue behind the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
	for _, r := range results {
		assert.Equal(t, kherson, r)
	}
	assert.InDelta(t, float64(callers), testutil.ToFloat64(m.GeocodeCache.WithLabelValues("forward", "miss"))+
		testutil.ToFloat64(m.GeocodeCache.WithLabelValues("forward", "coalesced"))+
		testutil.ToFloat64(m.GeocodeCache.WithLabelValues("forward", "hit")), 1e-9)
}
