//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/shadowfs/shadowfs/internal/resolver"
	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
)

// CgoFuseFS adapts a Resolver onto cgofuse's callback-based
// fuse.FileSystemBase API, used on platforms without a native go-fuse
// binding (Windows).
type CgoFuseFS struct {
	fuse.FileSystemBase

	resolver *resolver.Resolver
	config   *Config
	stats    *Stats

	mu         sync.RWMutex
	openFiles  map[uint64]*openHandle
	nextHandle uint64
	host       *fuse.FileSystemHost
	mounted    bool
}

type openHandle struct {
	resolverID uint64
	path       string
}

// NewCgoFuseFS builds a CgoFuseFS over an already-wired Resolver.
func NewCgoFuseFS(r *resolver.Resolver, config *Config) *CgoFuseFS {
	return &CgoFuseFS{
		resolver:   r,
		config:     config,
		stats:      &Stats{},
		openFiles:  make(map[uint64]*openHandle),
		nextHandle: 1,
	}
}

// Mount mounts the filesystem at config.MountPoint.
func (cf *CgoFuseFS) Mount(ctx context.Context) error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.mounted {
		return fmt.Errorf("filesystem already mounted")
	}

	cf.host = fuse.NewFileSystemHost(cf)

	options := []string{
		"-o", "fsname=shadowfs",
		"-o", "subtype=shadowfs",
	}
	if cf.config.AllowOther {
		options = append(options, "-o", "allow_other")
	}

	switch runtime.GOOS {
	case "darwin":
		options = append(options, "-o", "volname=ShadowFS")
	case "windows":
		options = append(options, "-o", "FileSystemName=ShadowFS")
	}

	go func() {
		ret := cf.host.Mount(cf.config.MountPoint, options)
		if ret != 0 {
			log.Printf("cgofuse mount failed with code: %d", ret)
		}
	}()

	time.Sleep(100 * time.Millisecond)

	cf.mounted = true
	log.Printf("ShadowFS mounted at: %s", cf.config.MountPoint)
	return nil
}

// Unmount unmounts the filesystem.
func (cf *CgoFuseFS) Unmount() error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if !cf.mounted {
		return fmt.Errorf("filesystem not mounted")
	}

	if cf.host != nil {
		if ret := cf.host.Unmount(); ret != 0 {
			return fmt.Errorf("unmount failed with code: %d", ret)
		}
	}

	cf.mounted = false
	log.Printf("ShadowFS unmounted from: %s", cf.config.MountPoint)
	return nil
}

// IsMounted reports whether the filesystem is currently mounted.
func (cf *CgoFuseFS) IsMounted() bool {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return cf.mounted
}

// GetStats returns filesystem operation counters.
func (cf *CgoFuseFS) GetStats() *FilesystemStats {
	return &FilesystemStats{
		Lookups:      atomic.LoadInt64(&cf.stats.Lookups),
		Opens:        atomic.LoadInt64(&cf.stats.Opens),
		Reads:        atomic.LoadInt64(&cf.stats.Reads),
		Writes:       atomic.LoadInt64(&cf.stats.Writes),
		BytesRead:    atomic.LoadInt64(&cf.stats.BytesRead),
		BytesWritten: atomic.LoadInt64(&cf.stats.BytesWritten),
		CacheHits:    atomic.LoadInt64(&cf.stats.CacheHits),
		CacheMisses:  atomic.LoadInt64(&cf.stats.CacheMisses),
		Errors:       atomic.LoadInt64(&cf.stats.Errors),
	}
}

func errnoFor(err error) int {
	if err == nil {
		return 0
	}
	return -shadowerrors.AsShadowFSError(err).KernelErrno()
}

// Getattr reports file attributes for path.
func (cf *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	atomic.AddInt64(&cf.stats.Lookups, 1)
	fi, err := cf.resolver.Getattr(context.Background(), path)
	if err != nil {
		atomic.AddInt64(&cf.stats.Errors, 1)
		return errnoFor(err)
	}
	if fi.IsDir {
		stat.Mode = fuse.S_IFDIR | 0755
		stat.Nlink = 2
	} else {
		stat.Mode = fuse.S_IFREG | 0644
		stat.Nlink = 1
		stat.Size = fi.Size
	}
	stat.Mtim.Sec = fi.ModTime.Unix()
	stat.Mtim.Nsec = int64(fi.ModTime.Nanosecond())
	stat.Ctim = stat.Mtim
	return 0
}

// Open resolves and opens path, returning an opaque local handle.
func (cf *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	writable := flags&(fuse.O_WRONLY|fuse.O_RDWR) != 0
	id, err := cf.resolver.Open(context.Background(), path, writable)
	if err != nil {
		atomic.AddInt64(&cf.stats.Errors, 1)
		return errnoFor(err), 0
	}
	atomic.AddInt64(&cf.stats.Opens, 1)

	cf.mu.Lock()
	handle := cf.nextHandle
	cf.nextHandle++
	cf.openFiles[handle] = &openHandle{resolverID: id, path: path}
	cf.mu.Unlock()

	return 0, handle
}

// Read serves a byte window for an open handle.
func (cf *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	cf.mu.RLock()
	oh, ok := cf.openFiles[fh]
	cf.mu.RUnlock()
	if !ok {
		return -fuse.EBADF
	}

	data, err := cf.resolver.Read(context.Background(), oh.resolverID, ofst, int64(len(buff)))
	if err != nil {
		atomic.AddInt64(&cf.stats.Errors, 1)
		return errnoFor(err)
	}
	atomic.AddInt64(&cf.stats.Reads, 1)
	atomic.AddInt64(&cf.stats.BytesRead, int64(len(data)))
	copy(buff, data)
	return len(data)
}

// Write writes buff at offset ofst through an open writable handle.
func (cf *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	cf.mu.RLock()
	oh, ok := cf.openFiles[fh]
	cf.mu.RUnlock()
	if !ok {
		return -fuse.EBADF
	}

	n, err := cf.resolver.Write(context.Background(), oh.resolverID, ofst, buff)
	if err != nil {
		atomic.AddInt64(&cf.stats.Errors, 1)
		return errnoFor(err)
	}
	atomic.AddInt64(&cf.stats.Writes, 1)
	atomic.AddInt64(&cf.stats.BytesWritten, int64(n))
	return n
}

// Release closes an open handle.
func (cf *CgoFuseFS) Release(path string, fh uint64) int {
	cf.mu.Lock()
	oh, ok := cf.openFiles[fh]
	delete(cf.openFiles, fh)
	cf.mu.Unlock()
	if !ok {
		return 0
	}
	_ = cf.resolver.Release(context.Background(), oh.resolverID)
	return 0
}

// Readdir lists the synthetic or backing children of path.
func (cf *CgoFuseFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	fill(".", nil, 0)
	fill("..", nil, 0)

	names, err := cf.resolver.Readdir(context.Background(), path)
	if err != nil {
		atomic.AddInt64(&cf.stats.Errors, 1)
		return errnoFor(err)
	}

	for _, name := range names {
		childPath := path
		if !strings.HasSuffix(childPath, "/") {
			childPath += "/"
		}
		childPath += name

		stat := &fuse.Stat_t{}
		if fi, attrErr := cf.resolver.Getattr(context.Background(), childPath); attrErr == nil {
			if fi.IsDir {
				stat.Mode = fuse.S_IFDIR | 0755
				stat.Nlink = 2
			} else {
				stat.Mode = fuse.S_IFREG | 0644
				stat.Size = fi.Size
				stat.Nlink = 1
			}
		}
		if !fill(name, stat, 0) {
			break
		}
	}
	return 0
}

// Statfs reports backing filesystem capacity.
func (cf *CgoFuseFS) Statfs(path string, stat *fuse.Statfs_t) int {
	capacity, err := cf.resolver.Statfs(context.Background(), path)
	if err != nil {
		return errnoFor(err)
	}
	const bsize = 4096
	stat.Bsize = bsize
	stat.Frsize = bsize
	stat.Blocks = uint64(capacity.Size) / bsize
	stat.Bfree = uint64(capacity.Offset) / bsize
	stat.Bavail = stat.Bfree
	stat.Namemax = 255
	return 0
}

// Mkdir creates a new backing directory.
func (cf *CgoFuseFS) Mkdir(path string, mode uint32) int {
	if cf.config.ReadOnly {
		return -fuse.EROFS
	}
	return errnoFor(cf.resolver.Mkdir(context.Background(), path, mode))
}

// Unlink removes a backing file.
func (cf *CgoFuseFS) Unlink(path string) int {
	if cf.config.ReadOnly {
		return -fuse.EROFS
	}
	return errnoFor(cf.resolver.Unlink(context.Background(), path))
}

// Rmdir removes a backing directory.
func (cf *CgoFuseFS) Rmdir(path string) int {
	if cf.config.ReadOnly {
		return -fuse.EROFS
	}
	return errnoFor(cf.resolver.Rmdir(context.Background(), path))
}

// Rename moves a backing entry to a new mount-relative path.
func (cf *CgoFuseFS) Rename(oldpath string, newpath string) int {
	if cf.config.ReadOnly {
		return -fuse.EROFS
	}
	return errnoFor(cf.resolver.Rename(context.Background(), oldpath, newpath))
}

// Truncate resizes a backing file.
func (cf *CgoFuseFS) Truncate(path string, size int64, fh uint64) int {
	if cf.config.ReadOnly {
		return -fuse.EROFS
	}
	return errnoFor(cf.resolver.Truncate(context.Background(), path, size))
}
