// Package resolver implements the Resolver: the integration point that
// turns a mount-relative path and an operation (getattr, readdir, open,
// read, write, release) into backing I/O, applying the rule engine's
// visibility verdict and the transform pipeline along the way.
package resolver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/shadowfs/shadowfs/internal/cache"
	"github.com/shadowfs/shadowfs/internal/circuit"
	"github.com/shadowfs/shadowfs/internal/layermanager"
	"github.com/shadowfs/shadowfs/internal/pathutil"
	"github.com/shadowfs/shadowfs/internal/pattern"
	"github.com/shadowfs/shadowfs/internal/rules"
	"github.com/shadowfs/shadowfs/internal/transform"
	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
	"github.com/shadowfs/shadowfs/pkg/retry"
	"github.com/shadowfs/shadowfs/pkg/types"
)

// defaultMaxFullRead bounds how much of a backing file the Resolver
// will pull into memory to run through the transform pipeline, unless
// SetMaxFileSize overrides it. Larger files are streamed untransformed.
const defaultMaxFullRead = 512 * 1024 * 1024

// Resolver wires the Path Normalizer, Rule Engine, Transform Pipeline,
// Layer Manager, and Cache into the single contract the kernel-facing
// adapter (or any other caller) drives. Lock order when a caller holds
// more than one of these at once: layer manager's internal RWMutex,
// then the per-layer RWMutex it delegates to, then the handle table,
// then a cache level's own lock - never the reverse.
type Resolver struct {
	layers   *layermanager.Manager
	rules    *rules.Engine
	pipeline *transform.Pipeline
	store    *cache.Store
	handles  *handleTable

	writeThrough bool
	maxFullRead  int64

	sizes sizeIndex

	metrics    types.MetricsCollector
	ioRetry    *retry.Retryer
	ioBreakers *circuit.Manager
}

// New builds a Resolver over already-constructed components.
func New(layers *layermanager.Manager, ruleEngine *rules.Engine, pipeline *transform.Pipeline, store *cache.Store, writeThrough bool) *Resolver {
	return &Resolver{
		layers:       layers,
		rules:        ruleEngine,
		pipeline:     pipeline,
		store:        store,
		handles:      newHandleTable(),
		writeThrough: writeThrough,
		maxFullRead:  defaultMaxFullRead,
		sizes:        newSizeIndex(),
	}
}

// SetMaxFileSize bounds how much of a backing file a transformed read
// will pull into memory (the limits.max_file_size configuration knob).
func (r *Resolver) SetMaxFileSize(max int64) {
	if max > 0 {
		r.maxFullRead = max
	}
}

func globMatches(glob, p string) (bool, error) {
	return pattern.Match(pattern.Glob, glob, p)
}

// Getattr resolves path to its FileInfo, consulting L1 first and
// populating it on a miss.
func (r *Resolver) Getattr(ctx context.Context, reqPath string) (types.FileInfo, error) {
	start := time.Now()
	fi, err := r.getattr(ctx, reqPath)
	r.recordOp("getattr", start, fi.Size, err)
	return fi, err
}

func (r *Resolver) getattr(ctx context.Context, reqPath string) (types.FileInfo, error) {
	normalized, err := pathutil.Normalize(reqPath)
	if err != nil {
		return types.FileInfo{}, err
	}

	if fi, ok := r.store.L1.Get(normalized); ok {
		r.recordCacheHit("l1_attrs", 0)
		return fi, nil
	}
	r.recordCacheMiss("l1_attrs")

	if normalized == "/" || r.layers.IsLayerRoot(firstSegment(normalized)) {
		fi := syntheticDir(normalized)
		r.store.L1.Put(normalized, fi)
		return fi, nil
	}

	fi, err := r.layers.Resolve(normalized)
	if err != nil {
		if _, listErr := r.layers.List(normalized); listErr == nil {
			dir := syntheticDir(normalized)
			r.store.L1.Put(normalized, dir)
			return dir, nil
		}
		return types.FileInfo{}, err
	}

	real, ok := r.layers.BackingPath(fi)
	if !ok {
		return types.FileInfo{}, shadowerrors.New(shadowerrors.CodeInternal, "resolved entry has no backing location").
			WithComponent("resolver").WithOperation("getattr").WithDetail("path", normalized)
	}

	var info os.FileInfo
	statErr := r.guardBackingIO(ctx, fi.SourceRoot, func() error {
		var err error
		info, err = os.Stat(real)
		return err
	})
	if statErr != nil {
		return types.FileInfo{}, translateStatErr(statErr, "getattr", normalized)
	}

	refreshed := types.FileInfo{
		Path:       normalized,
		Size:       info.Size(),
		Mode:       uint32(info.Mode()),
		IsDir:      info.IsDir(),
		IsVirtual:  fi.IsVirtual || normalized != fi.Path,
		ModTime:    info.ModTime(),
		BackingKey: fi.BackingKey,
		SourceRoot: fi.SourceRoot,
		LayerName:  fi.LayerName,
	}

	if vis, _, decErr := r.rules.Decide(normalized, attrsOf(refreshed)); decErr != nil {
		return types.FileInfo{}, decErr
	} else if vis == rules.Hidden {
		return types.FileInfo{}, shadowerrors.New(shadowerrors.CodeEntryNotFound, "path is hidden by rule").
			WithComponent("resolver").WithOperation("getattr").WithDetail("path", normalized)
	}

	r.store.L1.Put(normalized, refreshed)
	return refreshed, nil
}

// Readdir lists the visible children of path, dropping entries the
// rule engine marks Hidden and opportunistically populating L1 for
// each child it inspects.
func (r *Resolver) Readdir(ctx context.Context, reqPath string) ([]string, error) {
	normalized, err := pathutil.Normalize(reqPath)
	if err != nil {
		return nil, err
	}

	names, err := r.layers.List(normalized)
	if err != nil {
		return nil, err
	}

	visible := make([]string, 0, len(names))
	for _, name := range names {
		childPath := joinMount(normalized, name)
		fi, attrErr := r.Getattr(ctx, childPath)
		if attrErr != nil {
			// Hidden or since-removed; simply omit it from the listing.
			continue
		}
		_ = fi
		visible = append(visible, name)
	}
	return visible, nil
}

// Open resolves path, decides whether the transform pipeline applies,
// opens the backing file, and returns an opaque handle identifier.
func (r *Resolver) Open(ctx context.Context, reqPath string, writable bool) (uint64, error) {
	start := time.Now()
	id, err := r.open(ctx, reqPath, writable)
	r.recordOp("open", start, 0, err)
	return id, err
}

func (r *Resolver) open(ctx context.Context, reqPath string, writable bool) (uint64, error) {
	fi, err := r.Getattr(ctx, reqPath)
	if err != nil {
		return 0, err
	}
	if fi.IsDir {
		return 0, shadowerrors.New(shadowerrors.CodePathInvalid, "cannot open a directory").
			WithComponent("resolver").WithOperation("open").WithDetail("path", reqPath)
	}

	real, ok := r.layers.BackingPath(fi)
	if !ok {
		return 0, shadowerrors.New(shadowerrors.CodeInternal, "resolved file has no backing location").
			WithComponent("resolver").WithOperation("open").WithDetail("path", reqPath)
	}

	if writable {
		if !r.writeThrough {
			return 0, shadowerrors.New(shadowerrors.CodeBackingDenied, "write-through is disabled").
				WithComponent("resolver").WithOperation("open").WithDetail("path", reqPath)
		}
		if sourceReadOnly(r.layers, fi.SourceRoot) {
			return 0, shadowerrors.New(shadowerrors.CodeBackingDenied, "source root is read-only").
				WithComponent("resolver").WithOperation("open").WithDetail("path", reqPath).WithDetail("source", fi.SourceRoot)
		}
	}

	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}
	var f *os.File
	openErr := r.guardBackingIO(ctx, fi.SourceRoot, func() error {
		var err error
		f, err = os.OpenFile(real, flags, 0)
		return err
	})
	if openErr != nil {
		return 0, translateStatErr(openErr, "open", reqPath)
	}

	transformed, err := r.pipeline.HasStages(fi.Path, globMatches)
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	var fingerprint uint64
	if transformed {
		fingerprint, err = r.pipeline.Fingerprint(fi.Path, globMatches)
		if err != nil {
			_ = f.Close()
			return 0, err
		}
	}

	h := &Handle{
		path:        fi.Path,
		sourceRoot:  fi.SourceRoot,
		file:        f,
		readOnly:    !writable,
		transformed: transformed,
		fingerprint: fingerprint,
		lastAccess:  time.Now(),
	}
	return r.handles.register(h), nil
}

// Read serves a byte window from the handle's file, routing through
// the transformed-content cache, the raw-content cache, or a direct
// stream from the backing file, in that order of preference.
func (r *Resolver) Read(ctx context.Context, id uint64, offset, length int64) ([]byte, error) {
	start := time.Now()
	data, err := r.read(ctx, id, offset, length)
	r.recordOp("read", start, int64(len(data)), err)
	return data, err
}

func (r *Resolver) read(ctx context.Context, id uint64, offset, length int64) ([]byte, error) {
	h, ok := r.handles.get(id)
	if !ok {
		return nil, shadowerrors.New(shadowerrors.CodeHandleConflict, "unknown or released handle").
			WithComponent("resolver").WithOperation("read")
	}
	h.lastAccess = time.Now()
	h.accessCount++

	if !h.transformed {
		return r.readRaw(ctx, h, offset, length)
	}
	if info, statErr := h.file.Stat(); statErr == nil && info.Size() > r.maxFullRead {
		return r.readRaw(ctx, h, offset, length)
	}

	l3Key := transformedKey(h.path, h.fingerprint)
	if size, ok := r.sizes.get(l3Key); ok {
		if data := r.store.L3.Get(l3Key, 0, size); data != nil {
			r.recordCacheHit("l3_transformed", int64(len(data)))
			return window(data, offset, length), nil
		}
	}
	r.recordCacheMiss("l3_transformed")

	raw, err := r.loadRaw(h)
	if err != nil {
		return nil, err
	}

	out, _, err := r.pipeline.Apply(ctx, h.path, raw, globMatches)
	if err != nil {
		return nil, err
	}
	r.store.L3.Put(l3Key, 0, out)
	r.sizes.set(l3Key, int64(len(out)))
	return window(out, offset, length), nil
}

func (r *Resolver) readRaw(ctx context.Context, h *Handle, offset, length int64) ([]byte, error) {
	if size, ok := r.sizes.get(h.path); ok {
		if data := r.store.L2.Get(h.path, 0, size); data != nil {
			r.recordCacheHit("l2_raw", int64(len(data)))
			return window(data, offset, length), nil
		}
	}
	r.recordCacheMiss("l2_raw")

	buf := make([]byte, length)
	var n int
	err := r.guardBackingIO(ctx, h.sourceRoot, func() error {
		var readErr error
		n, readErr = h.file.ReadAt(buf, offset)
		if readErr == io.EOF {
			return nil
		}
		return readErr
	})
	if err != nil {
		return nil, translateStatErr(err, "read", h.path)
	}
	return buf[:n], nil
}

func (r *Resolver) loadRaw(h *Handle) ([]byte, error) {
	if size, ok := r.sizes.get(h.path); ok {
		if data := r.store.L2.Get(h.path, 0, size); data != nil {
			r.recordCacheHit("l2_raw", int64(len(data)))
			return data, nil
		}
	}
	r.recordCacheMiss("l2_raw")

	var raw []byte
	err := r.guardBackingIO(context.Background(), h.sourceRoot, func() error {
		if _, err := h.file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		var err error
		raw, err = io.ReadAll(io.LimitReader(h.file, r.maxFullRead))
		return err
	})
	if err != nil {
		return nil, translateStatErr(err, "read", h.path)
	}
	r.store.L2.Put(h.path, 0, raw)
	r.sizes.set(h.path, int64(len(raw)))
	return raw, nil
}

// Write writes data to the handle's backing file at offset and
// invalidates every cache level for the affected path. Permitted only when the
// handle was opened writable.
func (r *Resolver) Write(ctx context.Context, id uint64, offset int64, data []byte) (int, error) {
	start := time.Now()
	n, err := r.write(ctx, id, offset, data)
	r.recordOp("write", start, int64(n), err)
	return n, err
}

func (r *Resolver) write(ctx context.Context, id uint64, offset int64, data []byte) (int, error) {
	h, ok := r.handles.get(id)
	if !ok {
		return 0, shadowerrors.New(shadowerrors.CodeHandleConflict, "unknown or released handle").
			WithComponent("resolver").WithOperation("write")
	}
	if h.readOnly {
		return 0, shadowerrors.New(shadowerrors.CodeBackingDenied, "handle was not opened writable").
			WithComponent("resolver").WithOperation("write").WithDetail("path", h.path)
	}

	var n int
	err := r.guardBackingIO(ctx, h.sourceRoot, func() error {
		var writeErr error
		n, writeErr = h.file.WriteAt(data, offset)
		return writeErr
	})
	if err != nil {
		return n, translateStatErr(err, "write", h.path)
	}

	r.store.InvalidatePath(h.path)
	r.sizes.deletePrefix(h.path)
	r.pipeline.InvalidatePath(h.path)
	return n, nil
}

// Release closes the handle's backing descriptor and discards its
// state. It never fails observably: close errors are swallowed, since
// the caller has no recourse once release is requested.
func (r *Resolver) Release(ctx context.Context, id uint64) error {
	h, ok := r.handles.release(id)
	if !ok {
		return nil
	}
	_ = h.file.Close()
	return nil
}

// OpenHandleCount reports the number of currently open handles, for
// the Operations Facade's statistics() call.
func (r *Resolver) OpenHandleCount() int {
	return r.handles.count()
}

// CacheStats reports per-level cache statistics, for the Operations
// Facade's statistics() call.
func (r *Resolver) CacheStats() map[string]types.CacheStats {
	return r.store.Stats()
}

func attrsOf(fi types.FileInfo) rules.Attrs {
	return rules.Attrs{Size: fi.Size, ModTime: fi.ModTime, Mode: fi.Mode, IsDir: fi.IsDir}
}

func syntheticDir(normalized string) types.FileInfo {
	return types.FileInfo{
		Path:      normalized,
		IsDir:     true,
		IsVirtual: true,
		Mode:      uint32(os.ModeDir | 0o755),
		ModTime:   time.Now(),
	}
}

func firstSegment(normalized string) string {
	first, _ := pathutil.FirstSegment(normalized)
	return first
}

func joinMount(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return path.Join(dir, name)
}

func transformedKey(p string, fingerprint uint64) string {
	return fmt.Sprintf("%s#%016x", p, fingerprint)
}

func window(data []byte, offset, length int64) []byte {
	if offset >= int64(len(data)) {
		return nil
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end]
}

func sourceReadOnly(m *layermanager.Manager, name string) bool {
	for _, s := range m.SourceRoots() {
		if s.Name == name {
			return s.ReadOnly
		}
	}
	return false
}

func translateStatErr(err error, op, p string) error {
	code := shadowerrors.CodeInternal
	switch {
	case os.IsNotExist(err):
		code = shadowerrors.CodeEntryNotFound
	case os.IsPermission(err):
		code = shadowerrors.CodeBackingDenied
	}
	return shadowerrors.New(code, err.Error()).
		WithComponent("resolver").WithOperation(op).WithCause(err).WithDetail("path", p)
}

// sizeIndex tracks the full cached length behind a cache key, since
// LRUCache addresses entries by exact (key, offset, size) and a window
// read needs to know the whole cached entry's size up front before it
// can ask the cache for it.
type sizeIndex struct {
	mu sync.Mutex
	m  map[string]int64
}

func newSizeIndex() sizeIndex { return sizeIndex{m: make(map[string]int64)} }

func (s *sizeIndex) get(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *sizeIndex) set(key string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = size
}

func (s *sizeIndex) deletePrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.m {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.m, k)
		}
	}
}
