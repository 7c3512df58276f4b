package translate

import "sync"

// DefaultCacheEntries bounds the per-session translation cache.
const DefaultCacheEntries = 256

// Cache remembers successful translations keyed by schema fingerprint and
// normalized question text. Entries produced by the model strategy are
// kept only when the cache is explicitly configured to include them, so a
// provider swap never replays stale model output by default.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]Candidate
	maxEntries int
	includeLLM bool
}

// NewCache returns a cache holding at most maxEntries translations.
func NewCache(maxEntries int, includeLLM bool) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &Cache{
		entries:    make(map[string]Candidate),
		maxEntries: maxEntries,
		includeLLM: includeLLM,
	}
}

// Key builds the lookup key for a normalized question against a schema.
func Key(fingerprint, normalized string) string {
	return fingerprint + "|" + normalized
}

// Get returns the cached candidate for key, if any.
func (c *Cache) Get(key string) (Candidate, bool) {
	if c == nil {
		return Candidate{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cand, ok := c.entries[key]
	return cand, ok
}

// Put stores a winning candidate. Model-produced candidates are dropped
// unless the cache opted in. Reports whether the entry was stored.
func (c *Cache) Put(key string, cand Candidate) bool {
	if c == nil {
		return false
	}
	if cand.Strategy == StrategyLLM && !c.includeLLM {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		// start over rather than tracking recency
		c.entries = make(map[string]Candidate)
	}
	c.entries[key] = cand
	return true
}

// Delete removes a cached candidate, typically after it failed to replay.
func (c *Cache) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of cached translations.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
