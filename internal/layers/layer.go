// Package layers implements the Virtual Layer abstraction: synthetic
// directory trees projected over a flat FileInfo set, grouped by a
// classifier, a date, a tag set, or a hierarchy of classifiers.
package layers

import (
	"sort"
	"strings"
	"sync"

	"github.com/shadowfs/shadowfs/pkg/types"
)

// File is a convenience alias for the shared file metadata type.
type File = types.FileInfo

// State mirrors types.LayerState's Empty/Built/Stale/Built cycle.
type State = types.LayerState

const (
	Empty = types.LayerEmpty
	Built = types.LayerBuilt
	Stale = types.LayerStale
)

// Entry is one synthetic child returned by List: either a directory
// (another grouping level) or a file resolving to a real FileInfo.
type Entry struct {
	Name  string
	IsDir bool
	File  *types.FileInfo
}

// Indexer builds and queries one layer's synthetic tree. Implementations
// are not safe for concurrent use without the caller holding the
// layer's own lock (see Layer, which wraps an Indexer with one).
type Indexer interface {
	// BuildIndex replaces the index from scratch. Deterministic and
	// idempotent over the same files slice.
	BuildIndex(files []types.FileInfo)
	// Resolve maps a layer-relative sub-path (post layer-name strip) to
	// a backing FileInfo, or reports not found.
	Resolve(subPath string) (types.FileInfo, bool)
	// List returns the synthetic children at subPath, which must name a
	// synthetic directory (possibly the layer root, "/").
	List(subPath string) ([]Entry, bool)
}

// Layer wraps an Indexer with the Empty/Built/Stale/Built state
// machine and the per-layer exclusion lock mandated by the
// concurrency model: Resolve/List transparently rebuild from the last
// known file set when Stale.
type Layer struct {
	Name string
	Kind types.LayerKind

	mu      sync.RWMutex
	state   State
	indexer Indexer
	lastSet []types.FileInfo
}

// NewLayer wraps indexer in the Empty state.
func NewLayer(name string, kind types.LayerKind, indexer Indexer) *Layer {
	return &Layer{Name: name, Kind: kind, indexer: indexer, state: Empty}
}

// BuildIndex transitions Empty or Stale to Built.
func (l *Layer) BuildIndex(files []types.FileInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.indexer.BuildIndex(files)
	l.lastSet = files
	l.state = Built
}

// Invalidate transitions Built to Stale. The next Resolve or List call
// triggers a rebuild from the last known file set.
func (l *Layer) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Built {
		l.state = Stale
	}
}

// State reports the layer's current lifecycle state.
func (l *Layer) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Layer) rebuildIfStale() {
	l.mu.Lock()
	if l.state == Stale {
		l.indexer.BuildIndex(l.lastSet)
		l.state = Built
	}
	l.mu.Unlock()
}

// Resolve maps a layer-relative sub-path to a FileInfo.
func (l *Layer) Resolve(subPath string) (types.FileInfo, bool) {
	l.rebuildIfStale()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexer.Resolve(subPath)
}

// List returns the synthetic children at subPath.
func (l *Layer) List(subPath string) ([]Entry, bool) {
	l.rebuildIfStale()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexer.List(subPath)
}

// splitPath splits a layer-relative sub-path into its ordered, non-empty
// segments.
func splitPath(subPath string) []string {
	trimmed := strings.Trim(subPath, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// sortedKeys returns the keys of a string-keyed map in sorted order, for
// deterministic List output.
func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
