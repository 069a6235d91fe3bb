// Package enumerator implements the Backing Enumerator: a bounded
// concurrency recursive walk of one or more backing source roots,
// producing a stream of FileInfo for regular files.
package enumerator

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/shadowfs/shadowfs/internal/pathutil"
	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
	"github.com/shadowfs/shadowfs/pkg/types"
)

// SkipLogger receives one record per entry skipped during a scan
// (permission denied, broken symlink, escaping symlink).
type SkipLogger func(path string, err error)

// Options configures a scan.
type Options struct {
	// DereferenceSymlinks controls whether symlinks are resolved and
	// yielded as their target's FileInfo (default true, bounded within
	// the source root). When false, symlinks are left out of the scan
	// entirely; they are not yielded as-is.
	DereferenceSymlinks bool
	// MaxConcurrency bounds the number of source roots walked at once;
	// each root is walked by one goroutine. Zero or less means 8.
	MaxConcurrency int
	// MaxSymlinkDepth bounds the symlink chain followed when
	// dereferencing; zero falls back to pathutil.MaxSymlinkDepth.
	MaxSymlinkDepth int
	OnSkip          SkipLogger
}

// DefaultOptions dereferences symlinks within the root with a
// concurrency of 8 source roots scanned at once.
func DefaultOptions() Options {
	return Options{DereferenceSymlinks: true, MaxConcurrency: 8}
}

// Scan walks every source root concurrently and returns the combined
// FileInfo set for all regular files discovered. Per-entry errors
// (permission denied, broken or escaping symlinks) are reported via
// opts.OnSkip and do not abort the scan.
func Scan(ctx context.Context, roots []types.SourceRoot, opts Options) ([]types.FileInfo, error) {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}

	var (
		mu  sync.Mutex
		all []types.FileInfo
	)

	p := pool.New().WithContext(ctx).WithMaxGoroutines(opts.MaxConcurrency).WithCancelOnError()
	for _, root := range roots {
		root := root
		p.Go(func(ctx context.Context) error {
			found, err := scanRoot(ctx, root, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

func scanRoot(ctx context.Context, root types.SourceRoot, opts Options) ([]types.FileInfo, error) {
	info, err := os.Stat(root.Path)
	if err != nil {
		return nil, shadowerrors.New(shadowerrors.CodeSourceUnreachable, "source root unreachable").
			WithComponent("enumerator").WithOperation("scan").WithCause(err).WithDetail("root", root.Name)
	}
	if !info.IsDir() {
		return nil, shadowerrors.New(shadowerrors.CodeSourceUnreachable, "source root is not a directory").
			WithComponent("enumerator").WithOperation("scan").WithDetail("root", root.Name)
	}

	var out []types.FileInfo
	walkErr := filepath.WalkDir(root.Path, func(p string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			skip(opts, p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 {
			fi, ok, handled := resolveSymlink(root, p, opts)
			if handled {
				if ok {
					out = append(out, fi)
				}
				return nil
			}
		}

		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := toFileInfo(root, p, d)
		if err != nil {
			skip(opts, p, err)
			return nil
		}
		out = append(out, fi)
		return nil
	})
	if walkErr != nil {
		return out, walkErr
	}
	return out, nil
}

// resolveSymlink handles a symlink entry according to opts. handled is
// always true: with DereferenceSymlinks false the symlink is skipped
// from the regular-file stream entirely; otherwise ok reports whether
// it resolved to a regular file inside the source root.
func resolveSymlink(root types.SourceRoot, p string, opts Options) (fi types.FileInfo, ok bool, handled bool) {
	if !opts.DereferenceSymlinks {
		return types.FileInfo{}, false, true
	}

	target, err := pathutil.ResolveDepth(root.Path, p, opts.MaxSymlinkDepth)
	if err != nil {
		skip(opts, p, err)
		return types.FileInfo{}, false, true
	}

	info, err := os.Stat(target)
	if err != nil {
		skip(opts, p, err)
		return types.FileInfo{}, false, true
	}
	if info.IsDir() || !info.Mode().IsRegular() {
		return types.FileInfo{}, false, true
	}

	rel, err := filepath.Rel(root.Path, target)
	if err != nil {
		skip(opts, p, err)
		return types.FileInfo{}, false, true
	}

	fi = types.FileInfo{
		Path:       toMountPath(root, p),
		Size:       info.Size(),
		Mode:       uint32(info.Mode()),
		IsDir:      false,
		ModTime:    info.ModTime(),
		BackingKey: rel,
		SourceRoot: root.Name,
	}
	return fi, true, true
}

func toFileInfo(root types.SourceRoot, p string, d fs.DirEntry) (types.FileInfo, error) {
	info, err := d.Info()
	if err != nil {
		return types.FileInfo{}, err
	}
	rel, err := filepath.Rel(root.Path, p)
	if err != nil {
		return types.FileInfo{}, err
	}
	return types.FileInfo{
		Path:       toMountPath(root, p),
		Size:       info.Size(),
		Mode:       uint32(info.Mode()),
		IsDir:      false,
		ModTime:    info.ModTime(),
		BackingKey: rel,
		SourceRoot: root.Name,
	}, nil
}

func toMountPath(root types.SourceRoot, p string) string {
	rel, err := filepath.Rel(root.Path, p)
	if err != nil {
		rel = p
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "/"
	}
	return "/" + strings.TrimPrefix(rel, "/")
}

func skip(opts Options, path string, err error) {
	if opts.OnSkip != nil {
		opts.OnSkip(path, err)
	}
}
