package fuse

import (
	"context"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/shadowfs/shadowfs/internal/resolver"
	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
	"github.com/shadowfs/shadowfs/pkg/types"
)

// Config carries the mount-time defaults the FileSystem falls back on
// when the Resolver's FileInfo doesn't pin down an attribute (owner,
// permission bits) that the kernel still needs on every getattr.
type Config struct {
	MountPoint string

	ReadOnly   bool
	AllowOther bool
	DirectIO   bool
	KeepCache  bool
	BigWrites  bool
	MaxRead    uint32
	MaxWrite   uint32

	DefaultUID  uint32
	DefaultGID  uint32
	DefaultMode uint32

	CacheTTL    time.Duration
	ReadAhead   bool
	WriteBuffer bool
	Concurrency int
}

// Stats tracks FUSE operation counters, read directly by
// MountManager.GetStats and the control plane's GET /stats; fields are
// updated with atomic adds so no caller needs to take a lock.
type Stats struct {
	Lookups      int64
	Opens        int64
	Reads        int64
	Writes       int64
	Creates      int64
	Deletes      int64
	BytesRead    int64
	BytesWritten int64
	CacheHits    int64
	CacheMisses  int64
	Errors       int64
}

// FileSystem adapts a Resolver onto the go-fuse Inode API: every node
// in the tree is built lazily from Resolver.Getattr/Readdir, so there
// is no separate in-memory namespace to keep in sync with the Layer
// Manager's merged view.
type FileSystem struct {
	resolver *resolver.Resolver
	config   *Config
	stats    *Stats
}

// NewFileSystem builds a FileSystem over an already-wired Resolver.
func NewFileSystem(r *resolver.Resolver, config *Config) *FileSystem {
	if config == nil {
		config = &Config{DefaultMode: 0644, CacheTTL: time.Second}
	}
	return &FileSystem{resolver: r, config: config, stats: &Stats{}}
}

// Root returns the root directory node go-fuse mounts the tree under.
func (f *FileSystem) Root() fs.InodeEmbedder {
	return &DirectoryNode{fs: f, path: "/"}
}

// GetStats returns the live operation counters.
func (f *FileSystem) GetStats() *Stats {
	return f.stats
}

func (f *FileSystem) recordError() {
	atomic.AddInt64(&f.stats.Errors, 1)
}

// errno translates a Resolver error (always a *shadowerrors.ShadowFSError
// once it crosses the Resolver boundary) into the errno go-fuse expects.
func (f *FileSystem) errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	f.recordError()
	return syscall.Errno(shadowerrors.AsShadowFSError(err).KernelErrno())
}

func fillAttr(out *fuse.Attr, fi types.FileInfo, cfg *Config) {
	out.Size = uint64(fi.Size)
	out.Mode = fi.Mode
	if out.Mode&syscall.S_IFMT == 0 {
		if fi.IsDir {
			out.Mode |= syscall.S_IFDIR
		} else {
			out.Mode |= syscall.S_IFREG
		}
	}
	out.Uid = cfg.DefaultUID
	out.Gid = cfg.DefaultGID
	sec := uint64(fi.ModTime.Unix())
	out.Mtime = sec
	out.Ctime = sec
	out.Atime = sec
}

// DirectoryNode represents one directory in the synthetic namespace,
// whether it is a backing directory, a source root, or a virtual layer
// root/bucket.
type DirectoryNode struct {
	fs.Inode
	fs   *FileSystem
	path string
}

var (
	_ fs.NodeLookuper  = (*DirectoryNode)(nil)
	_ fs.NodeReaddirer = (*DirectoryNode)(nil)
	_ fs.NodeGetattrer = (*DirectoryNode)(nil)
	_ fs.NodeMkdirer   = (*DirectoryNode)(nil)
	_ fs.NodeUnlinker  = (*DirectoryNode)(nil)
	_ fs.NodeRmdirer   = (*DirectoryNode)(nil)
	_ fs.NodeRenamer   = (*DirectoryNode)(nil)
	_ fs.NodeCreater   = (*DirectoryNode)(nil)
	_ fs.NodeStatfser  = (*DirectoryNode)(nil)
)

func (d *DirectoryNode) childPath(name string) string {
	if d.path == "/" {
		return "/" + name
	}
	return d.path + "/" + name
}

func (d *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	atomic.AddInt64(&d.fs.stats.Lookups, 1)
	childPath := d.childPath(name)
	fi, err := d.fs.resolver.Getattr(ctx, childPath)
	if err != nil {
		return nil, d.fs.errno(err)
	}
	fillAttr(&out.Attr, fi, d.fs.config)
	out.SetAttrTimeout(d.fs.config.CacheTTL)
	out.SetEntryTimeout(d.fs.config.CacheTTL)

	if fi.IsDir {
		child := &DirectoryNode{fs: d.fs, path: childPath}
		return d.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR}), 0
	}
	child := &FileNode{fs: d.fs, path: childPath}
	return d.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFREG}), 0
}

func (d *DirectoryNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := d.fs.resolver.Readdir(ctx, d.path)
	if err != nil {
		return nil, d.fs.errno(err)
	}
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		childPath := d.childPath(name)
		fi, attrErr := d.fs.resolver.Getattr(ctx, childPath)
		if attrErr != nil {
			continue
		}
		mode := uint32(syscall.S_IFREG)
		if fi.IsDir {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

func (d *DirectoryNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fi, err := d.fs.resolver.Getattr(ctx, d.path)
	if err != nil {
		return d.fs.errno(err)
	}
	fillAttr(&out.Attr, fi, d.fs.config)
	return 0
}

func (d *DirectoryNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if d.fs.config.ReadOnly {
		return nil, syscall.EROFS
	}
	childPath := d.childPath(name)
	if err := d.fs.resolver.Mkdir(ctx, childPath, mode); err != nil {
		return nil, d.fs.errno(err)
	}
	fi, err := d.fs.resolver.Getattr(ctx, childPath)
	if err != nil {
		return nil, d.fs.errno(err)
	}
	fillAttr(&out.Attr, fi, d.fs.config)
	child := &DirectoryNode{fs: d.fs, path: childPath}
	return d.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR}), 0
}

func (d *DirectoryNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	if d.fs.config.ReadOnly {
		return nil, nil, 0, syscall.EROFS
	}
	childPath := d.childPath(name)
	id, err := d.fs.resolver.Open(ctx, childPath, true)
	if err != nil {
		// Resolver.Open never creates a backing file; a missing file is
		// surfaced to the caller rather than silently created here.
		return nil, nil, 0, d.fs.errno(err)
	}
	atomic.AddInt64(&d.fs.stats.Creates, 1)
	fi, attrErr := d.fs.resolver.Getattr(ctx, childPath)
	if attrErr != nil {
		return nil, nil, 0, d.fs.errno(attrErr)
	}
	fillAttr(&out.Attr, fi, d.fs.config)
	child := &FileNode{fs: d.fs, path: childPath}
	node := d.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFREG})
	return node, &FileHandle{fs: d.fs, id: id, path: childPath}, 0, 0
}

func (d *DirectoryNode) Unlink(ctx context.Context, name string) syscall.Errno {
	if d.fs.config.ReadOnly {
		return syscall.EROFS
	}
	if err := d.fs.resolver.Unlink(ctx, d.childPath(name)); err != nil {
		return d.fs.errno(err)
	}
	atomic.AddInt64(&d.fs.stats.Deletes, 1)
	return 0
}

func (d *DirectoryNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	if d.fs.config.ReadOnly {
		return syscall.EROFS
	}
	if err := d.fs.resolver.Rmdir(ctx, d.childPath(name)); err != nil {
		return d.fs.errno(err)
	}
	return 0
}

func (d *DirectoryNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if d.fs.config.ReadOnly {
		return syscall.EROFS
	}
	newDir, ok := newParent.(*DirectoryNode)
	if !ok {
		return syscall.EXDEV
	}
	if err := d.fs.resolver.Rename(ctx, d.childPath(name), newDir.childPath(newName)); err != nil {
		return d.fs.errno(err)
	}
	return 0
}

func (d *DirectoryNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	capacity, err := d.fs.resolver.Statfs(ctx, d.path)
	if err != nil {
		return d.fs.errno(err)
	}
	const bsize = 4096
	out.Bsize = bsize
	out.Blocks = uint64(capacity.Size) / bsize
	out.Bfree = uint64(capacity.Offset) / bsize
	out.Bavail = out.Bfree
	out.NameLen = 255
	return 0
}

// FileNode represents one regular file in the synthetic namespace.
type FileNode struct {
	fs.Inode
	fs   *FileSystem
	path string
}

var (
	_ fs.NodeGetattrer = (*FileNode)(nil)
	_ fs.NodeOpener    = (*FileNode)(nil)
	_ fs.NodeSetattrer = (*FileNode)(nil)
)

func (n *FileNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fi, err := n.fs.resolver.Getattr(ctx, n.path)
	if err != nil {
		return n.fs.errno(err)
	}
	fillAttr(&out.Attr, fi, n.fs.config)
	return 0
}

func (n *FileNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if n.fs.config.ReadOnly {
			return syscall.EROFS
		}
		if err := n.fs.resolver.Truncate(ctx, n.path, int64(size)); err != nil {
			return n.fs.errno(err)
		}
	}
	fi, err := n.fs.resolver.Getattr(ctx, n.path)
	if err != nil {
		return n.fs.errno(err)
	}
	fillAttr(&out.Attr, fi, n.fs.config)
	return 0
}

func (n *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	writable := flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0
	if writable && n.fs.config.ReadOnly {
		return nil, 0, syscall.EROFS
	}
	id, err := n.fs.resolver.Open(ctx, n.path, writable)
	if err != nil {
		return nil, 0, n.fs.errno(err)
	}
	atomic.AddInt64(&n.fs.stats.Opens, 1)
	fuseFlags := uint32(0)
	if n.fs.config.KeepCache {
		fuseFlags |= fuse.FOPEN_KEEP_CACHE
	}
	if n.fs.config.DirectIO {
		fuseFlags |= fuse.FOPEN_DIRECT_IO
	}
	return &FileHandle{fs: n.fs, id: id, path: n.path}, fuseFlags, 0
}

// FileHandle adapts one Resolver handle to go-fuse's per-open
// FileHandle interfaces.
type FileHandle struct {
	fs   *FileSystem
	id   uint64
	path string
}

var (
	_ fs.FileReader   = (*FileHandle)(nil)
	_ fs.FileWriter   = (*FileHandle)(nil)
	_ fs.FileFlusher  = (*FileHandle)(nil)
	_ fs.FileReleaser = (*FileHandle)(nil)
)

func (h *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := h.fs.resolver.Read(ctx, h.id, off, int64(len(dest)))
	if err != nil {
		return nil, h.fs.errno(err)
	}
	atomic.AddInt64(&h.fs.stats.Reads, 1)
	atomic.AddInt64(&h.fs.stats.BytesRead, int64(len(data)))
	return fuse.ReadResultData(data), 0
}

func (h *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := h.fs.resolver.Write(ctx, h.id, off, data)
	if err != nil {
		return uint32(n), h.fs.errno(err)
	}
	atomic.AddInt64(&h.fs.stats.Writes, 1)
	atomic.AddInt64(&h.fs.stats.BytesWritten, int64(n))
	return uint32(n), 0
}

func (h *FileHandle) Flush(ctx context.Context) syscall.Errno {
	return 0
}

func (h *FileHandle) Release(ctx context.Context) syscall.Errno {
	if err := h.fs.resolver.Release(ctx, h.id); err != nil {
		return h.fs.errno(err)
	}
	return 0
}
