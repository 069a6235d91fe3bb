package resolver

import (
	"context"
	"os"
	"syscall"

	"github.com/shadowfs/shadowfs/internal/layermanager"
	"github.com/shadowfs/shadowfs/internal/pathutil"
	"github.com/shadowfs/shadowfs/internal/rules"
	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
	"github.com/shadowfs/shadowfs/pkg/types"
)

// Statistics aggregates the counters the control plane's GET /stats
// endpoint reports: cache levels, open handle count, and the size of
// the merged backing view.
type Statistics struct {
	OpenHandles int                         `json:"open_handles"`
	BackingSize int                         `json:"backing_entries"`
	Layers      []string                    `json:"layers"`
	Cache       map[string]types.CacheStats `json:"cache"`
}

// Statistics reports the Operations Facade's aggregate counters.
func (r *Resolver) Statistics() Statistics {
	return Statistics{
		OpenHandles: r.OpenHandleCount(),
		BackingSize: r.layers.FileCount(),
		Layers:      r.layers.LayerNames(),
		Cache:       r.CacheStats(),
	}
}

// InvalidatePath drops path from every cache level and from the
// transform pipeline's memoized stage selection, for the control plane's
// POST /cache/invalidate.
func (r *Resolver) InvalidatePath(reqPath string) error {
	normalized, err := pathfor(reqPath)
	if err != nil {
		return err
	}
	r.store.InvalidatePath(normalized)
	r.sizes.deletePrefix(normalized)
	r.pipeline.InvalidatePath(normalized)
	return nil
}

// ClearCache empties every cache level, for the control plane's
// POST /cache/clear.
func (r *Resolver) ClearCache() {
	r.store.ClearAll()
}

// Rules returns the underlying rule engine, letting the control plane
// add or remove rules at runtime (POST /rules/add, POST /rules/remove).
func (r *Resolver) Rules() *rules.Engine {
	return r.rules
}

// LayerManager returns the underlying Layer Manager, letting the
// control plane list registered layers (GET /layers).
func (r *Resolver) LayerManager() *layermanager.Manager {
	return r.layers
}

// forget drops fi from the layer manager and every cache level,
// following a removal of its backing entry.
func (r *Resolver) forget(fi types.FileInfo) {
	r.layers.Forget(fi.Path)
	r.store.InvalidatePath(fi.Path)
	r.sizes.deletePrefix(fi.Path)
	r.pipeline.InvalidatePath(fi.Path)
}

// Unlink removes a regular file from its backing source root. Fails
// if the resolved entry is a directory, is virtual (layer-synthesized,
// with no backing location of its own), or lives under a read-only
// source root.
func (r *Resolver) Unlink(ctx context.Context, reqPath string) error {
	fi, err := r.Getattr(ctx, reqPath)
	if err != nil {
		return err
	}
	if fi.IsDir {
		return shadowerrors.New(shadowerrors.CodePathInvalid, "cannot unlink a directory").
			WithComponent("resolver").WithOperation("unlink").WithDetail("path", reqPath)
	}
	real, err := r.writableBackingPath(fi, "unlink", reqPath)
	if err != nil {
		return err
	}
	if err := os.Remove(real); err != nil {
		return translateStatErr(err, "unlink", reqPath)
	}
	r.forget(fi)
	return nil
}

// Rmdir removes an empty directory from its backing source root. Fails
// for a synthetic (layer-derived) directory, which has no single
// backing location to remove.
func (r *Resolver) Rmdir(ctx context.Context, reqPath string) error {
	fi, err := r.Getattr(ctx, reqPath)
	if err != nil {
		return err
	}
	if !fi.IsDir {
		return shadowerrors.New(shadowerrors.CodePathInvalid, "not a directory").
			WithComponent("resolver").WithOperation("rmdir").WithDetail("path", reqPath)
	}
	if fi.IsVirtual || fi.SourceRoot == "" {
		return shadowerrors.New(shadowerrors.CodeBackingDenied, "cannot remove a synthetic directory").
			WithComponent("resolver").WithOperation("rmdir").WithDetail("path", reqPath)
	}
	real, err := r.writableBackingPath(fi, "rmdir", reqPath)
	if err != nil {
		return err
	}
	if err := os.Remove(real); err != nil {
		return translateStatErr(err, "rmdir", reqPath)
	}
	r.forget(fi)
	return nil
}

// Mkdir creates a new directory under the first writable source root,
// mirroring the requested mount-relative path underneath it.
func (r *Resolver) Mkdir(ctx context.Context, reqPath string, mode uint32) error {
	normalized, err := pathfor(reqPath)
	if err != nil {
		return err
	}
	root, err := r.firstWritableRoot()
	if err != nil {
		return err
	}
	relKey := relativeTo(normalized)
	real := joinBacking(root.Path, relKey)
	if err := os.MkdirAll(real, os.FileMode(mode)|0o700); err != nil {
		return translateStatErr(err, "mkdir", reqPath)
	}
	info, statErr := os.Stat(real)
	if statErr != nil {
		return translateStatErr(statErr, "mkdir", reqPath)
	}
	fi := types.FileInfo{
		Path:       normalized,
		Size:       info.Size(),
		Mode:       uint32(info.Mode()),
		IsDir:      true,
		ModTime:    info.ModTime(),
		BackingKey: relKey,
		SourceRoot: root.Name,
	}
	r.layers.Learn(fi)
	r.store.InvalidatePath(normalized)
	return nil
}

// Rename moves a backing entry to a new mount-relative path. The entry
// stays in its own source root: the new path is created under that
// root, whatever another source root holds at the new path.
func (r *Resolver) Rename(ctx context.Context, oldPath, newPath string) error {
	fi, err := r.Getattr(ctx, oldPath)
	if err != nil {
		return err
	}
	oldReal, err := r.writableBackingPath(fi, "rename", oldPath)
	if err != nil {
		return err
	}

	newNormalized, err := pathfor(newPath)
	if err != nil {
		return err
	}
	newReal := joinBacking(rootPathFor(r, fi.SourceRoot), relativeTo(newNormalized))
	if err := os.Rename(oldReal, newReal); err != nil {
		return translateStatErr(err, "rename", newPath)
	}

	moved := fi
	moved.Path = newNormalized
	moved.BackingKey = relativeTo(newNormalized)
	r.layers.Forget(fi.Path)
	r.layers.Learn(moved)

	r.store.InvalidatePath(fi.Path)
	r.store.InvalidatePath(newNormalized)
	r.sizes.deletePrefix(fi.Path)
	r.pipeline.InvalidatePath(fi.Path)
	return nil
}

// Truncate resizes the backing file at path, invalidating every cache
// level for it.
func (r *Resolver) Truncate(ctx context.Context, reqPath string, size int64) error {
	fi, err := r.Getattr(ctx, reqPath)
	if err != nil {
		return err
	}
	if fi.IsDir {
		return shadowerrors.New(shadowerrors.CodePathInvalid, "cannot truncate a directory").
			WithComponent("resolver").WithOperation("truncate").WithDetail("path", reqPath)
	}
	real, err := r.writableBackingPath(fi, "truncate", reqPath)
	if err != nil {
		return err
	}
	if err := os.Truncate(real, size); err != nil {
		return translateStatErr(err, "truncate", reqPath)
	}
	r.store.InvalidatePath(fi.Path)
	r.sizes.deletePrefix(fi.Path)
	r.pipeline.InvalidatePath(fi.Path)
	return nil
}

// Statfs reports filesystem-level capacity for the backing source root
// that resolves path, or the first registered source root at the
// mount's own root.
func (r *Resolver) Statfs(ctx context.Context, reqPath string) (types.Range, error) {
	var real string
	if fi, err := r.Getattr(ctx, reqPath); err == nil && fi.SourceRoot != "" {
		real = rootPathFor(r, fi.SourceRoot)
	} else if roots := r.layers.SourceRoots(); len(roots) > 0 {
		real = roots[0].Path
	} else {
		return types.Range{}, shadowerrors.New(shadowerrors.CodeSourceUnreachable, "no source roots registered").
			WithComponent("resolver").WithOperation("statfs")
	}

	var st syscall.Statfs_t
	if err := syscall.Statfs(real, &st); err != nil {
		return types.Range{}, translateStatErr(err, "statfs", reqPath)
	}
	blockSize := int64(st.Bsize)
	return types.Range{
		Offset: int64(st.Bavail) * blockSize,
		Size:   int64(st.Blocks) * blockSize,
	}, nil
}

func (r *Resolver) writableBackingPath(fi types.FileInfo, op, reqPath string) (string, error) {
	if !r.writeThrough {
		return "", shadowerrors.New(shadowerrors.CodeBackingDenied, "write-through is disabled").
			WithComponent("resolver").WithOperation(op).WithDetail("path", reqPath)
	}
	if fi.IsVirtual || fi.SourceRoot == "" {
		return "", shadowerrors.New(shadowerrors.CodeBackingDenied, "entry has no single backing location").
			WithComponent("resolver").WithOperation(op).WithDetail("path", reqPath)
	}
	if sourceReadOnly(r.layers, fi.SourceRoot) {
		return "", shadowerrors.New(shadowerrors.CodeBackingDenied, "source root is read-only").
			WithComponent("resolver").WithOperation(op).WithDetail("path", reqPath).WithDetail("source", fi.SourceRoot)
	}
	real, ok := r.layers.BackingPath(fi)
	if !ok {
		return "", shadowerrors.New(shadowerrors.CodeInternal, "resolved entry has no backing location").
			WithComponent("resolver").WithOperation(op).WithDetail("path", reqPath)
	}
	return real, nil
}

func (r *Resolver) firstWritableRoot() (types.SourceRoot, error) {
	if !r.writeThrough {
		return types.SourceRoot{}, shadowerrors.New(shadowerrors.CodeBackingDenied, "write-through is disabled").
			WithComponent("resolver").WithOperation("mkdir")
	}
	for _, s := range r.layers.SourceRoots() {
		if !s.ReadOnly {
			return s, nil
		}
	}
	return types.SourceRoot{}, shadowerrors.New(shadowerrors.CodeBackingDenied, "no writable source root registered").
		WithComponent("resolver").WithOperation("mkdir")
}

func rootPathFor(r *Resolver, name string) string {
	for _, s := range r.layers.SourceRoots() {
		if s.Name == name {
			return s.Path
		}
	}
	return ""
}

func relativeTo(normalized string) string {
	if normalized == "/" {
		return "."
	}
	return normalized[1:]
}

func joinBacking(root, rel string) string {
	if rel == "" || rel == "." {
		return root
	}
	return root + "/" + rel
}

func pathfor(reqPath string) (string, error) {
	return pathutil.Normalize(reqPath)
}
