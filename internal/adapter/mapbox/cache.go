package mapbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/vibration-severity-etl/internal/config"
	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/couchcryptid/vibration-severity-etl/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed by
// position rounded to four decimals, about 11 m. Consecutive seconds of a
// slow track share a lookup.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, domain.Place]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder. A
// non-positive size falls back to 1000 entries.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	cache, _ := lru.New[string, domain.Place](maxEntries) // only errors on size <= 0
	return &CachedGeocoder{
		inner:   inner,
		cache:   cache,
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.Place, error) {
	key := cacheKey(lat, lon)
	if place, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return place, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	place, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return place, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if place.PlaceName != "" {
		c.cache.Add(key, place)
	}
	return place, nil
}

// Len reports the number of cached places.
func (c *CachedGeocoder) Len() int {
	return c.cache.Len()
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("rev:%.4f,%.4f", lat, lon)
}

// FromConfig returns the cached Mapbox geocoder when geocoding is enabled
// and nil otherwise. The nil is an untyped interface value, so callers can
// compare against nil.
func FromConfig(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.Geocoder {
	if !cfg.MapboxEnabled {
		metrics.GeocodeEnabled.Set(0)
		logger.Info("mapbox geocoding disabled")
		return nil
	}
	metrics.GeocodeEnabled.Set(1)
	logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	client := NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
	return NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
}
