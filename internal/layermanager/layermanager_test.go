package layermanager

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/shadowfs/shadowfs/internal/enumerator"
	"github.com/shadowfs/shadowfs/internal/layers"
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

func TestScanAndResolveDirectPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")

	m := New([]types.SourceRoot{{Name: "primary", Path: dir}}, enumerator.DefaultOptions())
	if err := m.ScanSources(context.Background()); err != nil {
		t.Fatal(err)
	}

	fi, err := m.Resolve("/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if fi.SourceRoot != "primary" {
		t.Errorf("expected SourceRoot=primary, got %q", fi.SourceRoot)
	}
}

func TestLowerPriorityValueWinsOnCollision(t *testing.T) {
	t.Parallel()

	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, filepath.Join(first, "shared.txt"), "first")
	writeFile(t, filepath.Join(second, "shared.txt"), "second")

	var collisions int
	m := New([]types.SourceRoot{{Name: "first", Path: first}, {Name: "second", Path: second}}, enumerator.DefaultOptions())
	m.OnCollision = func(name, winner, loser string) { collisions++ }

	if err := m.ScanSources(context.Background()); err != nil {
		t.Fatal(err)
	}

	fi, err := m.Resolve("/shared.txt")
	if err != nil {
		t.Fatal(err)
	}
	if fi.SourceRoot != "first" {
		t.Errorf("expected the earlier-priority source to win, got %q", fi.SourceRoot)
	}
	if collisions != 1 {
		t.Errorf("expected exactly one collision record, got %d", collisions)
	}
	if got := m.FileCount(); got != 1 {
		t.Errorf("expected collision loser to be dropped from the merged view, FileCount = %d", got)
	}
}

func TestAddLayerAndResolveThroughLayer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "report.txt"), "r")

	m := New([]types.SourceRoot{{Name: "primary", Path: dir}}, enumerator.DefaultOptions())
	if err := m.ScanSources(context.Background()); err != nil {
		t.Fatal(err)
	}

	layer := layers.NewLayer("by-ext", types.LayerClassifier, layers.NewClassifierIndex(layers.ExtensionClassifier))
	if err := m.AddLayer(layer); err != nil {
		t.Fatal(err)
	}
	m.RebuildIndexes()

	fi, err := m.Resolve("/by-ext/txt/report.txt")
	if err != nil {
		t.Fatal(err)
	}
	if fi.Path != "/report.txt" {
		t.Errorf("expected resolved backing path /report.txt, got %q", fi.Path)
	}
}

func TestAddLayerRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	m := New(nil, enumerator.DefaultOptions())
	layer := layers.NewLayer("dup", types.LayerClassifier, layers.NewClassifierIndex(layers.ExtensionClassifier))
	if err := m.AddLayer(layer); err != nil {
		t.Fatal(err)
	}
	if err := m.AddLayer(layer); err == nil {
		t.Error("expected error adding a layer with a name already registered")
	}
}

func TestRemoveLayer(t *testing.T) {
	t.Parallel()

	m := New(nil, enumerator.DefaultOptions())
	layer := layers.NewLayer("gone", types.LayerClassifier, layers.NewClassifierIndex(layers.ExtensionClassifier))
	if err := m.AddLayer(layer); err != nil {
		t.Fatal(err)
	}
	if !m.RemoveLayer("gone") {
		t.Error("expected RemoveLayer to report success")
	}
	if m.RemoveLayer("gone") {
		t.Error("expected second RemoveLayer to report failure")
	}
}

func TestListRootUnionsBackingAndLayers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "b")

	m := New([]types.SourceRoot{{Name: "primary", Path: dir}}, enumerator.DefaultOptions())
	if err := m.ScanSources(context.Background()); err != nil {
		t.Fatal(err)
	}
	layer := layers.NewLayer("by-ext", types.LayerClassifier, layers.NewClassifierIndex(layers.ExtensionClassifier))
	if err := m.AddLayer(layer); err != nil {
		t.Fatal(err)
	}
	m.RebuildIndexes()

	names, err := m.List("/")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(names)
	want := []string{"a.txt", "by-ext", "sub"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
