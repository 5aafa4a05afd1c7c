// trie_cache.go provides a cache for clean (already-hashed, committed) trie
// nodes. It stores RLP-encoded trie nodes keyed by their Keccak-256 hash,
// backed by a fastcache.Cache so the cache footprint stays within a fixed
// byte budget regardless of trie size.
package trie

import (
	"github.com/VictoriaMetrics/fastcache"
)

// CacheStats holds trie cache performance metrics.
type CacheStats struct {
	Hits        uint64 // number of cache hits
	Misses      uint64 // number of cache misses
	Evictions   uint64 // number of entries evicted or overwritten due to collisions
	CurrentSize uint64 // current cache size in bytes
	EntryCount  int    // current number of cached entries
}

// TrieCache is a thread-safe cache for trie nodes keyed by hash, bounded by
// a fixed byte budget. Eviction policy is delegated to fastcache's internal
// bucketed-LRU-like scheme.
type TrieCache struct {
	cache   *fastcache.Cache
	maxSize int
}

// NewTrieCache creates a new trie node cache with the given maximum size in
// bytes. A maxSize of 0 or less is clamped to a small minimum, since
// fastcache requires a positive byte budget.
func NewTrieCache(maxSize int) *TrieCache {
	if maxSize <= 0 {
		maxSize = 32 * 1024
	}
	return &TrieCache{
		cache:   fastcache.New(maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a cached trie node by its hash. Returns the data and true
// if found, or nil and false if the node is not cached.
func (c *TrieCache) Get(hash [32]byte) ([]byte, bool) {
	val := c.cache.Get(nil, hash[:])
	if val == nil {
		return nil, false
	}
	return val, true
}

// Put stores a trie node in the cache, evicting older entries as needed to
// stay within the byte budget.
func (c *TrieCache) Put(hash [32]byte, data []byte) {
	c.cache.Set(hash[:], data)
}

// Delete removes a node from the cache by its hash.
func (c *TrieCache) Delete(hash [32]byte) {
	c.cache.Del(hash[:])
}

// Len returns the approximate number of entries currently in the cache.
func (c *TrieCache) Len() int {
	var s fastcache.Stats
	c.cache.UpdateStats(&s)
	return int(s.EntriesCount)
}

// Size returns the approximate total byte size of all cached node data.
func (c *TrieCache) Size() uint64 {
	var s fastcache.Stats
	c.cache.UpdateStats(&s)
	return s.BytesSize
}

// Prune resets the cache if its current size exceeds targetSize. fastcache
// does not expose partial eviction, so pruning is all-or-nothing; callers
// that need graduated eviction should size the cache accordingly up front.
func (c *TrieCache) Prune(targetSize uint64) int {
	if c.Size() <= targetSize {
		return 0
	}
	n := c.Len()
	c.cache.Reset()
	return n
}

// Stats returns a snapshot of the cache performance statistics.
func (c *TrieCache) Stats() CacheStats {
	var s fastcache.Stats
	c.cache.UpdateStats(&s)
	return CacheStats{
		Hits:        s.GetCalls - s.Misses,
		Misses:      s.Misses,
		Evictions:   s.Collisions,
		CurrentSize: s.BytesSize,
		EntryCount:  int(s.EntriesCount),
	}
}

// Reset clears all entries and resets statistics.
func (c *TrieCache) Reset() {
	c.cache.Reset()
}

// HitRate returns the cache hit rate as a float64 in [0, 1].
// Returns 0 if no lookups have been made.
func (c *TrieCache) HitRate() float64 {
	var s fastcache.Stats
	c.cache.UpdateStats(&s)
	if s.GetCalls == 0 {
		return 0
	}
	return float64(s.GetCalls-s.Misses) / float64(s.GetCalls)
}
