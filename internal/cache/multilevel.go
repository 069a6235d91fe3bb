package cache

import (
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/shadowfs/shadowfs/internal/pathutil"
	"github.com/shadowfs/shadowfs/pkg/types"
)

// AttrCache is the L1 cache: file attributes keyed by mount-relative
// path, bounded by entry count and TTL. It wraps golang-lru/v2's
// expirable.LRU, an exact fit for "count-bounded, time-expiring" that
// the byte-addressed LRUCache below does not model.
type AttrCache struct {
	inner *lru.LRU[string, types.FileInfo]
	stats statsCounter
}

// NewAttrCache builds an L1 cache holding at most maxEntries attribute
// records, each expiring after ttl.
func NewAttrCache(maxEntries int, ttl time.Duration) *AttrCache {
	return &AttrCache{inner: lru.NewLRU[string, types.FileInfo](maxEntries, nil, ttl)}
}

func (a *AttrCache) Get(path string) (types.FileInfo, bool) {
	v, ok := a.inner.Get(path)
	a.stats.record(ok)
	return v, ok
}

func (a *AttrCache) Put(path string, fi types.FileInfo) {
	a.inner.Add(path, fi)
}

// Invalidate removes path's attribute record along with every cached
// descendant, and drops the immediate parent so a stale directory
// attribute doesn't outlive a change underneath it.
func (a *AttrCache) Invalidate(path string) {
	a.inner.Remove(path)
	prefix := path
	if prefix != "/" {
		prefix += "/"
	}
	for _, k := range a.inner.Keys() {
		if strings.HasPrefix(k, prefix) {
			a.inner.Remove(k)
		}
	}
	if parent := pathutil.Parent(path); parent != path {
		a.inner.Remove(parent)
	}
}

func (a *AttrCache) Clear() {
	a.inner.Purge()
}

func (a *AttrCache) Len() int { return a.inner.Len() }

func (a *AttrCache) Stats() types.CacheStats {
	hits, misses := a.stats.snapshot()
	stats := types.CacheStats{Hits: hits, Misses: misses, Size: int64(a.inner.Len())}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// statsCounter is a minimal hit/miss counter shared by caches that
// don't otherwise track it (expirable.LRU doesn't).
type statsCounter struct {
	hits, misses atomic.Uint64
}

func (s *statsCounter) record(hit bool) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
}

func (s *statsCounter) snapshot() (hits, misses uint64) { return s.hits.Load(), s.misses.Load() }

// Store holds the three independent, logically distinct cache levels:
// L1 attributes, L2 raw backing content, L3 transformed content. Levels
// are never promoted into one another; each is addressed by its own
// role, matching the Resolver's read path (getattr consults only L1,
// a transformed read consults L3 then falls back through L2 and the
// backing file).
type Store struct {
	L1 *AttrCache
	L2 *LRUCache
	L3 *LRUCache
}

// NewStore builds a Store from independently-sized level configs.
func NewStore(l1MaxEntries int, l1TTL time.Duration, l2, l3 *CacheConfig) *Store {
	return &Store{
		L1: NewAttrCache(l1MaxEntries, l1TTL),
		L2: NewLRUCache(l2),
		L3: NewLRUCache(l3),
	}
}

// InvalidatePath drops every cached entry associated with path across
// all three levels: the L1 attribute record and any L2/L3 byte ranges
// keyed under it. Used on rule-set reload, source rescans, and layer
// invalidation.
func (s *Store) InvalidatePath(path string) {
	s.L1.Invalidate(path)
	s.L2.Delete(path)
	s.L3.Delete(path)
}

// Stats returns a combined snapshot across all three levels, keyed by
// level name.
func (s *Store) Stats() map[string]types.CacheStats {
	return map[string]types.CacheStats{
		"l1_attrs":       s.L1.Stats(),
		"l2_raw":         s.L2.Stats(),
		"l3_transformed": s.L3.Stats(),
	}
}

// ClearAll empties every level, used by the control-plane's
// POST /cache/clear.
func (s *Store) ClearAll() {
	s.L1.Clear()
	s.L2.Clear()
	s.L3.Clear()
}
