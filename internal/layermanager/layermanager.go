// Package layermanager implements the Layer Manager: the registry
// tying source roots, the current backing FileInfo set, and the
// mounted virtual layers together into one resolvable namespace.
package layermanager

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shadowfs/shadowfs/internal/enumerator"
	"github.com/shadowfs/shadowfs/internal/layers"
	"github.com/shadowfs/shadowfs/internal/pathutil"
	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
	"github.com/shadowfs/shadowfs/pkg/types"
)

// CollisionLogger receives one record per name collision discovered
// while merging sibling source roots at the backing root.
type CollisionLogger func(name, winningSource, losingSource string)

// Manager owns the ordered source root list, the current FileInfo set,
// and the ordered layer list. Structural mutations (AddLayer,
// RemoveLayer) take the exclusive write lock; Resolve/List take the
// read lock and additionally respect each layer's own lock.
type Manager struct {
	mu          sync.RWMutex
	sources     []types.SourceRoot
	files       []types.FileInfo
	byMountPath map[string]types.FileInfo
	layerOrder  []string
	layerByName map[string]*layers.Layer

	enumOpts    enumerator.Options
	OnCollision CollisionLogger
}

// New builds an empty Manager over the given source roots, in priority
// order (index 0 is highest priority).
func New(sources []types.SourceRoot, enumOpts enumerator.Options) *Manager {
	return &Manager{
		sources:     append([]types.SourceRoot(nil), sources...),
		byMountPath: make(map[string]types.FileInfo),
		layerByName: make(map[string]*layers.Layer),
		enumOpts:    enumOpts,
	}
}

// ScanSources repopulates the FileInfo set from every source root.
func (m *Manager) ScanSources(ctx context.Context) error {
	found, err := enumerator.Scan(ctx, m.snapshotSources(), m.enumOpts)
	if err != nil {
		return err
	}

	byPath := make(map[string]types.FileInfo, len(found))
	priority := m.sourcePriority()
	for _, fi := range found {
		existing, ok := byPath[fi.Path]
		if !ok {
			byPath[fi.Path] = fi
			continue
		}
		// The source with the lower priority value (earlier in the
		// configured order) wins on a name collision across roots.
		if priority[fi.SourceRoot] < priority[existing.SourceRoot] {
			if m.OnCollision != nil {
				m.OnCollision(fi.Path, fi.SourceRoot, existing.SourceRoot)
			}
			byPath[fi.Path] = fi
		} else if m.OnCollision != nil {
			m.OnCollision(fi.Path, existing.SourceRoot, fi.SourceRoot)
		}
	}

	// Layers index the merged view, so shadowed collision losers must
	// not reappear under a category.
	merged := make([]types.FileInfo, 0, len(byPath))
	for _, fi := range byPath {
		merged = append(merged, fi)
	}

	m.mu.Lock()
	m.files = merged
	m.byMountPath = byPath
	m.mu.Unlock()
	return nil
}

func (m *Manager) snapshotSources() []types.SourceRoot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.SourceRoot(nil), m.sources...)
}

// sourcePriority maps source name to its index in the configured
// order; the caller (internal/adapter) sorts sources by ascending
// priority value, so a lower index wins collisions.
func (m *Manager) sourcePriority() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.sources))
	for i, s := range m.sources {
		out[s.Name] = i
	}
	return out
}

// RebuildIndexes invokes BuildIndex on every layer with the current
// FileInfo set. Layer order is irrelevant; layers are independent.
func (m *Manager) RebuildIndexes() {
	m.mu.RLock()
	files := m.files
	ls := make([]*layers.Layer, 0, len(m.layerByName))
	for _, l := range m.layerByName {
		ls = append(ls, l)
	}
	m.mu.RUnlock()

	for _, l := range ls {
		l.BuildIndex(files)
	}
}

// AddLayer registers a new layer under an exclusive write lock and
// invalidates the root listing's dependents (here: nothing is cached
// inside the Manager itself; callers owning an L1 attribute cache must
// invalidate the mount root entry on their side).
func (m *Manager) AddLayer(l *layers.Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.layerByName[l.Name]; exists {
		return shadowerrors.New(shadowerrors.CodeLayerNameConflict, "layer name already registered").
			WithComponent("layermanager").WithDetail("name", l.Name)
	}
	m.layerByName[l.Name] = l
	m.layerOrder = append(m.layerOrder, l.Name)
	return nil
}

// RemoveLayer unregisters a layer under an exclusive write lock.
func (m *Manager) RemoveLayer(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.layerByName[name]; !exists {
		return false
	}
	delete(m.layerByName, name)
	for i, n := range m.layerOrder {
		if n == name {
			m.layerOrder = append(m.layerOrder[:i], m.layerOrder[i+1:]...)
			break
		}
	}
	return true
}

// Resolve maps a normalized mount-relative path to a backing FileInfo.
// If the first path segment names a registered layer, resolution
// delegates to that layer; otherwise it is a direct request against
// the merged backing view.
func (m *Manager) Resolve(mountRelPath string) (types.FileInfo, error) {
	normalized, err := pathutil.Normalize(mountRelPath)
	if err != nil {
		return types.FileInfo{}, err
	}

	first, rest := pathutil.FirstSegment(normalized)
	if layer, ok := m.layer(first); ok {
		fi, ok := layer.Resolve(rest)
		if !ok {
			return types.FileInfo{}, shadowerrors.New(shadowerrors.CodeEntryNotFound, "no entry at layer path").
				WithComponent("layermanager").WithDetail("layer", first).WithDetail("path", rest)
		}
		return fi, nil
	}

	m.mu.RLock()
	fi, ok := m.byMountPath[normalized]
	m.mu.RUnlock()
	if !ok {
		return types.FileInfo{}, shadowerrors.New(shadowerrors.CodeEntryNotFound, "no backing entry at path").
			WithComponent("layermanager").WithDetail("path", normalized)
	}
	return fi, nil
}

func (m *Manager) layer(name string) (*layers.Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.layerByName[name]
	return l, ok
}

// IsLayerRoot reports whether name is a registered layer's mount name,
// i.e. the first path segment names a synthetic top-level directory
// rather than a backing entry.
func (m *Manager) IsLayerRoot(name string) bool {
	_, ok := m.layer(name)
	return ok
}

// BackingPath resolves a FileInfo produced by ScanSources to its
// absolute path on disk, by joining its source root's directory with
// its BackingKey. Returns false for FileInfo from a virtual layer that
// carries no BackingKey/SourceRoot of its own (callers should resolve
// those against the backing entry the layer entry wraps instead).
func (m *Manager) BackingPath(fi types.FileInfo) (string, bool) {
	if fi.SourceRoot == "" {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sources {
		if s.Name == fi.SourceRoot {
			return filepath.Join(s.Path, fi.BackingKey), true
		}
	}
	return "", false
}

// SourceRoots returns a snapshot of the registered source roots in
// priority order.
func (m *Manager) SourceRoots() []types.SourceRoot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.SourceRoot(nil), m.sources...)
}

// LayerNames returns the registered layer names in registration order,
// for the control plane's GET /layers.
func (m *Manager) LayerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.layerOrder...)
}

// Layers returns a snapshot of the registered layers keyed by name,
// exposing each layer's lifecycle state to callers such as the
// control plane's GET /layers.
func (m *Manager) Layers() map[string]*layers.Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*layers.Layer, len(m.layerByName))
	for k, v := range m.layerByName {
		out[k] = v
	}
	return out
}

// Learn records or replaces a single backing FileInfo, incrementally
// updating the merged view without a full ScanSources pass. Used by
// mutating Resolver operations (mkdir, create, rename) so the new
// entry is immediately resolvable.
func (m *Manager) Learn(fi types.FileInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.files {
		if existing.Path == fi.Path {
			m.files[i] = fi
			m.byMountPath[fi.Path] = fi
			return
		}
	}
	m.files = append(m.files, fi)
	m.byMountPath[fi.Path] = fi
}

// Forget removes a single backing FileInfo, used by Unlink/Rmdir/Rename
// to keep the merged view consistent without a full ScanSources pass.
func (m *Manager) Forget(normalized string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byMountPath, normalized)
	for i, fi := range m.files {
		if fi.Path == normalized {
			m.files = append(m.files[:i], m.files[i+1:]...)
			break
		}
	}
}

// FileCount reports the number of backing entries currently indexed,
// for the control-plane's GET /stats.
func (m *Manager) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// List returns the synthetic or backing children at mountRelPath. At
// the root, the result unions top-level backing entries (collisions
// broken by lower source priority) with every registered layer name.
func (m *Manager) List(mountRelPath string) ([]string, error) {
	normalized, err := pathutil.Normalize(mountRelPath)
	if err != nil {
		return nil, err
	}

	if normalized == "/" {
		return m.listRoot(), nil
	}

	first, rest := pathutil.FirstSegment(normalized)
	if layer, ok := m.layer(first); ok {
		entries, ok := layer.List(rest)
		if !ok {
			return nil, shadowerrors.New(shadowerrors.CodeEntryNotFound, "no synthetic directory at layer path").
				WithComponent("layermanager").WithDetail("layer", first).WithDetail("path", rest)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name)
		}
		sort.Strings(names)
		return names, nil
	}

	return m.listBackingDir(normalized)
}

func (m *Manager) listRoot() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for p := range m.byMountPath {
		first, _ := pathutil.FirstSegment(p)
		if first != "" {
			seen[first] = struct{}{}
		}
	}
	for name := range m.layerByName {
		seen[name] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) listBackingDir(normalized string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	found := false
	prefix := normalized
	if prefix != "/" {
		prefix += "/"
	}
	for p := range m.byMountPath {
		if p == normalized {
			found = true
			continue
		}
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		child := rest
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			child = rest[:idx]
		}
		seen[child] = struct{}{}
		found = true
	}
	if !found {
		return nil, shadowerrors.New(shadowerrors.CodeEntryNotFound, "no backing directory at path").
			WithComponent("layermanager").WithDetail("path", normalized)
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

