package cache

import (
	"testing"
	"time"

	"github.com/shadowfs/shadowfs/pkg/types"
)

func newTestStore() *Store {
	return NewStore(1000, time.Hour, &CacheConfig{MaxSize: 10 * 1024 * 1024, MaxEntries: 1000}, &CacheConfig{MaxSize: 10 * 1024 * 1024, MaxEntries: 1000})
}

func TestNewStore(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	if s.L1 == nil || s.L2 == nil || s.L3 == nil {
		t.Fatal("expected all three levels to be initialized")
	}
}

func TestAttrCachePutGetAndTTL(t *testing.T) {
	t.Parallel()

	a := NewAttrCache(10, time.Hour)
	fi := types.FileInfo{Path: "/a.txt", Size: 4}
	a.Put("/a.txt", fi)

	got, ok := a.Get("/a.txt")
	if !ok || got.Path != "/a.txt" {
		t.Fatalf("expected attribute hit, got %+v, %v", got, ok)
	}

	if _, ok := a.Get("/missing"); ok {
		t.Error("expected miss for unknown path")
	}

	stats := a.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit 1 miss, got %+v", stats)
	}
}

func TestAttrCacheExpires(t *testing.T) {
	t.Parallel()

	a := NewAttrCache(10, 10*time.Millisecond)
	a.Put("/a.txt", types.FileInfo{Path: "/a.txt"})
	time.Sleep(30 * time.Millisecond)

	if _, ok := a.Get("/a.txt"); ok {
		t.Error("expected entry to have expired")
	}
}

func TestAttrCacheEvictsByCount(t *testing.T) {
	t.Parallel()

	a := NewAttrCache(2, time.Hour)
	a.Put("/a", types.FileInfo{Path: "/a"})
	a.Put("/b", types.FileInfo{Path: "/b"})
	a.Put("/c", types.FileInfo{Path: "/c"})

	if a.Len() > 2 {
		t.Errorf("expected at most 2 entries, got %d", a.Len())
	}
}

func TestStoreInvalidatePathClearsAllLevels(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	s.L1.Put("/a.txt", types.FileInfo{Path: "/a.txt"})
	s.L2.Put("/a.txt", 0, []byte("raw"))
	s.L3.Put("/a.txt", 0, []byte("transformed"))

	s.InvalidatePath("/a.txt")

	if _, ok := s.L1.Get("/a.txt"); ok {
		t.Error("expected L1 entry to be invalidated")
	}
	if data := s.L2.Get("/a.txt", 0, 3); data != nil {
		t.Error("expected L2 entry to be invalidated")
	}
	if data := s.L3.Get("/a.txt", 0, 11); data != nil {
		t.Error("expected L3 entry to be invalidated")
	}
}

func TestAttrCacheInvalidateCoversDescendantsAndParent(t *testing.T) {
	t.Parallel()

	a := NewAttrCache(100, time.Hour)
	a.Put("/dir", types.FileInfo{Path: "/dir", IsDir: true})
	a.Put("/dir/sub/a.txt", types.FileInfo{Path: "/dir/sub/a.txt"})
	a.Put("/dir-sibling", types.FileInfo{Path: "/dir-sibling"})
	a.Put("/", types.FileInfo{Path: "/", IsDir: true})

	a.Invalidate("/dir")

	if _, ok := a.Get("/dir"); ok {
		t.Error("expected /dir to be invalidated")
	}
	if _, ok := a.Get("/dir/sub/a.txt"); ok {
		t.Error("expected descendant to be invalidated")
	}
	if _, ok := a.Get("/"); ok {
		t.Error("expected parent directory attrs to be invalidated")
	}
	if _, ok := a.Get("/dir-sibling"); !ok {
		t.Error("expected unrelated sibling to survive")
	}
}

func TestStoreStatsKeyedByLevel(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	s.L1.Put("/a.txt", types.FileInfo{Path: "/a.txt"})
	s.L1.Get("/a.txt")
	s.L2.Put("/a.txt", 0, []byte("raw"))
	s.L2.Get("/a.txt", 0, 3)

	stats := s.Stats()
	if _, ok := stats["l1_attrs"]; !ok {
		t.Error("expected l1_attrs in stats")
	}
	if _, ok := stats["l2_raw"]; !ok {
		t.Error("expected l2_raw in stats")
	}
	if _, ok := stats["l3_transformed"]; !ok {
		t.Error("expected l3_transformed in stats")
	}
	if stats["l1_attrs"].Hits != 1 {
		t.Errorf("expected 1 L1 hit, got %d", stats["l1_attrs"].Hits)
	}
}

func TestStoreClearAll(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	s.L1.Put("/a.txt", types.FileInfo{Path: "/a.txt"})
	s.L2.Put("/a.txt", 0, []byte("raw"))
	s.L3.Put("/a.txt", 0, []byte("transformed"))

	s.ClearAll()

	if s.L1.Len() != 0 {
		t.Error("expected L1 to be empty after ClearAll")
	}
	if s.L2.Size() != 0 {
		t.Error("expected L2 to be empty after ClearAll")
	}
	if s.L3.Size() != 0 {
		t.Error("expected L3 to be empty after ClearAll")
	}
}

func TestL2AndL3AreIndependentlyAddressed(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	s.L2.Put("/a.txt", 0, []byte("raw bytes"))
	s.L3.Put("/a.txt", 0, []byte("transformed bytes"))

	raw := s.L2.Get("/a.txt", 0, int64(len("raw bytes")))
	transformed := s.L3.Get("/a.txt", 0, int64(len("transformed bytes")))

	if string(raw) != "raw bytes" {
		t.Errorf("expected raw content in L2, got %q", raw)
	}
	if string(transformed) != "transformed bytes" {
		t.Errorf("expected transformed content in L3, got %q", transformed)
	}
}
