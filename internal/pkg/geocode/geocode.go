// Package geocode caches reverse-geocoding lookups. Keys are coordinates
// rounded to 4 decimal places; entries stay fresh for a TTL before the
// lookup is repeated. Concurrent misses on the same key may both perform
// the lookup; the result is idempotent so the duplicate work is harmless.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultTTL is the freshness window for cached display strings.
const DefaultTTL = 24 * time.Hour

// LookupFunc resolves a coordinate pair to a display string.
type LookupFunc func(ctx context.Context, lat, lng float64) (string, error)

// Cache wraps a LookupFunc with a TTL-bounded result cache.
type Cache struct {
	lookup LookupFunc
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	value     string
	fetchedAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache wraps lookup with a result cache. A non-positive ttl falls back
// to DefaultTTL.
func NewCache(lookup LookupFunc, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		lookup:  lookup,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key rounds a coordinate pair to the cache granularity.
func Key(lat, lng float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lng)
}

// Resolve returns the display string for a coordinate pair, from cache when
// fresh, otherwise through the wrapped lookup. The lock is not held across
// the lookup, so a concurrent miss may trigger a duplicate query.
func (c *Cache) Resolve(ctx context.Context, lat, lng float64) (string, error) {
	key := Key(lat, lng)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Sub(e.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	value, err := c.lookup(ctx, lat, lng)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = entry{value: value, fetchedAt: c.now()}
	c.mu.Unlock()

	return value, nil
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// NewHTTPLookup builds a LookupFunc against a Nominatim-style reverse
// geocoding endpoint.
func NewHTTPLookup(endpoint string) LookupFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, lat, lng float64) (string, error) {
		query := url.Values{
			"lat":    {fmt.Sprintf("%f", lat)},
			"lon":    {fmt.Sprintf("%f", lng)},
			"format": {"json"},
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
		if err != nil {
			return "", fmt.Errorf("failed to build reverse geocode request: %w", err)
		}
		req.Header.Set("User-Agent", "photolog")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("reverse geocode request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("reverse geocode request returned status %d", resp.StatusCode)
		}

		var payload struct {
			DisplayName string `json:"display_name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return "", fmt.Errorf("failed to decode reverse geocode response: %w", err)
		}
		return payload.DisplayName, nil
	}
}
