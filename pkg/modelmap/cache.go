package modelmap

import (
	"sync"
	"time"
)

// resolutionEntry is one memoized resolution with access metadata for LRU
// eviction.
type resolutionEntry struct {
	// Resolution is the cached value
	Resolution Resolution

	// ExpiresAt is when the entry becomes stale (zero = no expiry)
	ExpiresAt time.Time

	// LastAccessedAt drives LRU eviction
	LastAccessedAt time.Time
}

// resolutionCache is a thread-safe TTL cache with LRU eviction for memoized
// resolutions. Expired entries are dropped lazily on read and periodically by
// a background sweep.
type resolutionCache struct {
	// entries maps model names to cached resolutions
	entries map[string]*resolutionEntry

	// ttl is the time-to-live for entries (0 = no expiry)
	ttl time.Duration

	// maxEntries is the maximum number of entries (0 = unlimited)
	maxEntries int

	// mu protects concurrent access
	mu sync.RWMutex

	// stopCh signals the sweep goroutine to stop
	stopCh chan struct{}

	// sweepInterval is how often the background sweep runs
	sweepInterval time.Duration
}

// newResolutionCache creates a cache with the given TTL and capacity. The
// sweep interval is half the TTL, floored at ten seconds.
func newResolutionCache(ttl time.Duration, maxEntries int) *resolutionCache {
	sweepInterval := time.Minute
	if ttl > 0 {
		sweepInterval = ttl / 2
		if sweepInterval < 10*time.Second {
			sweepInterval = 10 * time.Second
		}
	}

	c := &resolutionCache{
		entries:       make(map[string]*resolutionEntry),
		ttl:           ttl,
		maxEntries:    maxEntries,
		stopCh:        make(chan struct{}),
		sweepInterval: sweepInterval,
	}

	if ttl > 0 {
		go c.sweepLoop()
	}

	return c
}

// get retrieves a cached resolution, reporting a miss for expired entries.
func (c *resolutionCache) get(name string) (Resolution, bool) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	if !ok {
		c.mu.RUnlock()
		return Resolution{}, false
	}
	if c.ttl > 0 && time.Now().After(entry.ExpiresAt) {
		c.mu.RUnlock()
		return Resolution{}, false
	}
	res := entry.Resolution
	c.mu.RUnlock()

	c.mu.Lock()
	if entry, ok := c.entries[name]; ok {
		entry.LastAccessedAt = time.Now()
	}
	c.mu.Unlock()

	return res, true
}

// set stores a resolution, evicting the least recently used entry when the
// cache is at capacity.
func (c *resolutionCache) set(name string, res Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[name]; !exists {
			c.evictLRU()
		}
	}

	now := time.Now()
	expiresAt := time.Time{}
	if c.ttl > 0 {
		expiresAt = now.Add(c.ttl)
	}

	c.entries[name] = &resolutionEntry{
		Resolution:     res,
		ExpiresAt:      expiresAt,
		LastAccessedAt: now,
	}
}

// size returns the current entry count.
func (c *resolutionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// clear drops all entries. Used when the alias table is reloaded.
func (c *resolutionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*resolutionEntry)
}

// close stops the background sweep. The cache must not be used afterwards.
func (c *resolutionCache) close() {
	close(c.stopCh)
}

// evictLRU removes the least recently accessed entry. Caller holds the write
// lock.
func (c *resolutionCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.LastAccessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.LastAccessedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *resolutionCache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *resolutionCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl == 0 {
		return
	}
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}
