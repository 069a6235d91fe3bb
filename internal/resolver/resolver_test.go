package resolver

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shadowfs/shadowfs/internal/cache"
	"github.com/shadowfs/shadowfs/internal/enumerator"
	"github.com/shadowfs/shadowfs/internal/layermanager"
	"github.com/shadowfs/shadowfs/internal/pattern"
	"github.com/shadowfs/shadowfs/internal/rules"
	"github.com/shadowfs/shadowfs/internal/transform"
	"github.com/shadowfs/shadowfs/pkg/types"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestStore() *cache.Store {
	return cache.NewStore(1000, 0, &cache.CacheConfig{MaxSize: 10 << 20, MaxEntries: 1000}, &cache.CacheConfig{MaxSize: 10 << 20, MaxEntries: 1000})
}

func newResolver(t *testing.T, sources []types.SourceRoot, ruleList []rules.Rule, stages []transform.NamedStage, writeThrough bool) *Resolver {
	t.Helper()
	m := layermanager.New(sources, enumerator.DefaultOptions())
	if err := m.ScanSources(context.Background()); err != nil {
		t.Fatal(err)
	}
	engine := rules.NewEngine(ruleList)
	pipeline := transform.New(stages, transform.DefaultLimits())
	return New(m, engine, pipeline, newTestStore(), writeThrough)
}

func TestGetattrRoot(t *testing.T) {
	t.Parallel()

	r := newResolver(t, nil, nil, nil, false)
	fi, err := r.Getattr(context.Background(), "/")
	if err != nil {
		t.Fatal(err)
	}
	if !fi.IsDir {
		t.Error("expected root to be a directory")
	}
}

func TestGetattrRealFileAndL1Cache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	r := newResolver(t, []types.SourceRoot{{Name: "primary", Path: dir}}, nil, nil, false)
	fi, err := r.Getattr(context.Background(), "/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size != 5 {
		t.Errorf("expected size 5, got %d", fi.Size)
	}

	stats := r.CacheStats()
	if stats["l1_attrs"].Misses != 1 {
		t.Errorf("expected 1 L1 miss on first lookup, got %+v", stats["l1_attrs"])
	}

	if _, err := r.Getattr(context.Background(), "/a.txt"); err != nil {
		t.Fatal(err)
	}
	stats = r.CacheStats()
	if stats["l1_attrs"].Hits != 1 {
		t.Errorf("expected 1 L1 hit on second lookup, got %+v", stats["l1_attrs"])
	}
}

func TestGetattrHiddenByRule(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "secret.env"), "x")

	hideRule := rules.Rule{
		Name:      "hide-env",
		Action:    types.RuleExclude,
		Predicate: rules.Predicate{Pattern: "*.env", PatternKind: pattern.Glob},
	}
	r := newResolver(t, []types.SourceRoot{{Name: "primary", Path: dir}}, []rules.Rule{hideRule}, nil, false)

	if _, err := r.Getattr(context.Background(), "/secret.env"); err == nil {
		t.Fatal("expected hidden file to resolve as not found")
	}
}

func TestReaddirDropsHiddenEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "secret.env"), "x")

	hideRule := rules.Rule{
		Name:      "hide-env",
		Action:    types.RuleExclude,
		Predicate: rules.Predicate{Pattern: "*.env", PatternKind: pattern.Glob},
	}
	r := newResolver(t, []types.SourceRoot{{Name: "primary", Path: dir}}, []rules.Rule{hideRule}, nil, false)

	names, err := r.Readdir(context.Background(), "/")
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if n == "secret.env" {
			t.Errorf("expected secret.env to be dropped from listing, got %v", names)
		}
	}
	found := false
	for _, n := range names {
		if n == "a.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a.txt in listing, got %v", names)
	}
}

func TestOpenReadReleaseRoundTripNoTransform(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello world")

	r := newResolver(t, []types.SourceRoot{{Name: "primary", Path: dir}}, nil, nil, false)
	ctx := context.Background()

	h, err := r.Open(ctx, "/a.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	data, err := r.Read(ctx, h, 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("expected %q, got %q", "hello", data)
	}
	if err := r.Release(ctx, h); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Read(ctx, h, 0, 5); err == nil {
		t.Error("expected read on a released handle to fail")
	}
}

type upperStage struct{}

func (upperStage) Name() string { return "upper" }
func (upperStage) Fatal() bool  { return true }
func (upperStage) Apply(pc transform.PathContext, data []byte, limits transform.Limits) (transform.Outcome, error) {
	return transform.Outcome{Data: bytes.ToUpper(data)}, nil
}

func TestReadAppliesTransformAndCachesL3(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	stages := []transform.NamedStage{{Glob: "*.txt", Stage: upperStage{}}}
	r := newResolver(t, []types.SourceRoot{{Name: "primary", Path: dir}}, nil, stages, false)
	ctx := context.Background()

	h, err := r.Open(ctx, "/a.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	data, err := r.Read(ctx, h, 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "HELLO" {
		t.Errorf("expected HELLO, got %q", data)
	}

	stats := r.CacheStats()
	if stats["l3_transformed"].Size == 0 {
		t.Error("expected transformed content to populate L3")
	}
}

func TestWriteInvalidatesCacheAndRejectsReadOnlyHandle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	r := newResolver(t, []types.SourceRoot{{Name: "primary", Path: dir}}, nil, nil, true)
	ctx := context.Background()

	roH, err := r.Open(ctx, "/a.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Write(ctx, roH, 0, []byte("nope")); err == nil {
		t.Error("expected write on a read-only handle to be rejected")
	}

	rwH, err := r.Open(ctx, "/a.txt", true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Write(ctx, rwH, 0, []byte("HELLO")); err != nil {
		t.Fatal(err)
	}
}

func TestWriteRejectedOnReadOnlySource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	r := newResolver(t, []types.SourceRoot{{Name: "primary", Path: dir, ReadOnly: true}}, nil, nil, true)
	ctx := context.Background()

	if _, err := r.Open(ctx, "/a.txt", true); err == nil {
		t.Error("expected writable open against a read-only source to fail")
	}
}
