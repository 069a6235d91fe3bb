/*
Package cache provides the three independently-addressed cache levels
sitting between the Resolver and the backing filesystem: file
attributes (L1), raw backing content (L2), and transformed content
(L3).

# Cache Roles

Unlike a promotion hierarchy where a miss at one level falls through to
a slower one and gets copied back up, ShadowFS's three levels serve
distinct roles and are never promoted into each other:

	┌─────────────────────────────────────────────┐
	│                 Resolver                    │
	└─────────────────────────────────────────────┘
	        │                │              │
	        ▼                ▼              ▼
	┌──────────────┐ ┌──────────────┐ ┌──────────────┐
	│  L1 Attrs    │ │  L2 Raw      │ │  L3 Transformed │
	│ count+TTL    │ │ byte-addressed│ │ byte-addressed │
	│ bounded      │ │ size-bounded  │ │ size-bounded   │
	└──────────────┘ └──────────────┘ └──────────────┘
	        │                │              │
	        ▼                ▼              ▼
	┌─────────────────────────────────────────────┐
	│               Backing Filesystem            │
	└─────────────────────────────────────────────┘

L1 (attributes): getattr/readdir results, keyed by mount-relative path,
bounded by entry count and a fixed TTL. Backed by golang-lru's
expirable.LRU.

L2 (raw content): byte ranges of the untransformed backing file, keyed
by path plus offset and size. Backed by LRUCache (lru.go), size-bounded
with plain LRU eviction (the least recently used entry goes first; the
per-item weight LRUCache computes is not consulted when evicting).

L3 (transformed content): byte ranges of the pipeline's output for a
given path, same addressing scheme as L2 but holding post-transform
bytes. A separate LRUCache instance, never merged with L2 - a path with
no matching transform stage simply never populates L3.

# Invalidation

InvalidatePath drops every entry tied to one path across all three
levels at once: the attribute record and any cached byte ranges,
raw or transformed. The Resolver calls it after each write, unlink,
rmdir, mkdir, rename and truncate, and the control plane's
POST /cache/invalidate calls it for one path. A reload does not call
it; the adapter clears L1 after a reload instead.

# Thread Safety

Each level owns its own lock: AttrCache delegates to expirable.LRU's
internal locking, LRUCache guards its state with a sync.RWMutex. Store
itself holds no lock of its own - callers needing a consistent
multi-level snapshot (Stats) read each level independently, which is
acceptable since the three levels are not kept in sync with each other.
*/
package cache
