package mapbox

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
	"golang.org/x/sync/singleflight"
)

// reversePrecision is the number of decimals a coordinate keeps in a reverse
// cache key, about 11m at the equator. Claims from the same strike rarely
// agree past that.
const reversePrecision = 4

// CachedGeocoder puts an LRU cache in front of a gazetteer. Concurrent misses
// for the same key share one upstream request, which matters when a batch of
// assessments names the same town.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lruCache
	group   singleflight.Group
	metrics *observability.Metrics
}

func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, name string) (domain.GeocodingResult, error) {
	return c.lookup(forwardKey(name), "forward", func() (domain.GeocodingResult, error) {
		return c.inner.ForwardGeocode(ctx, name)
	})
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	return c.lookup(reverseKey(lat, lon), "reverse", func() (domain.GeocodingResult, error) {
		return c.inner.ReverseGeocode(ctx, lat, lon)
	})
}

func forwardKey(name string) string {
	return "fwd:" + strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func reverseKey(lat, lon float64) string {
	return fmt.Sprintf("rev:%.*f,%.*f", reversePrecision, lat, reversePrecision, lon)
}

func (c *CachedGeocoder) lookup(key, method string, fetch func() (domain.GeocodingResult, error)) (domain.GeocodingResult, error) {
	if result, ok := c.cache.get(key); ok {
		c.observe(method, "hit")
		return result, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		result, err := fetch()
		if err != nil {
			return result, err
		}
		// Empty answers are not cached; the gazetteer may learn the place later.
		if !result.Empty() {
			c.cache.put(key, result)
		}
		return result, nil
	})
	if shared {
		c.observe(method, "coalesced")
	} else {
		c.observe(method, "miss")
	}
	return v.(domain.GeocodingResult), err
}

func (c *CachedGeocoder) observe(method, result string) {
	if c.metrics != nil {
		c.metrics.GeocodeCache.WithLabelValues(method, result).Inc()
	}
}

// lruCache is a mutex-guarded LRU over container/list. The front of order is
// the most recently used entry.
type lruCache struct {
	capacity int
	mu       sync.Mutex
	order    *list.List
	index    map[string]*list.Element
}

type cacheItem struct {
	key    string
	result domain.GeocodingResult
}

func newLRUCache(capacity int) *lruCache {
	if capacity < 1 {
		capacity = 1
	}
	return &lruCache{capacity: capacity, order: list.New(), index: make(map[string]*list.Element)}
}

func (c *lruCache) get(key string) (domain.GeocodingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return domain.GeocodingResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheItem).result, true
}

func (c *lruCache) put(key string, result domain.GeocodingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		el.Value.(*cacheItem).result = result
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(&cacheItem{key: key, result: result})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheItem).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
