/*
Package fuse provides the cross-platform kernel-facing adapter for ShadowFS.

This package is the thin Kernel-Facing Adapter (C11): it translates FUSE callbacks
1:1 onto the Resolver's Operations Facade, owning no resolution, rule, transform, or
cache logic of its own. It supports two FUSE bindings through build constraints,
so the same Resolver-backed FileSystem mounts on Linux, macOS, and Windows.

# Architecture Overview

The FUSE layer is the bridge between POSIX applications and the Resolver:

	┌─────────────────────────────────────────────┐
	│              User Applications              │
	│        (ls, cat, cp, vim, databases)        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              Kernel VFS Layer               │
	│           (POSIX System Calls)               │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│               FUSE Driver                    │
	│          (Platform-specific)                 │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│            ShadowFS FUSE Layer               │  ← This Package
	│  ┌─────────────────────────────────────────┐  │
	│  │        Cross-Platform Abstraction        │  │
	│  │  ┌─────────────┐ ┌─────────────────┐     │  │
	│  │  │ go-fuse     │ │ cgofuse           │     │  │
	│  │  │ (Linux)     │ │ (macOS/Windows)   │     │  │
	│  │  └─────────────┘ └─────────────────┘     │  │
	│  └─────────────────────────────────────────┘  │
	│                     │                        │
	│  ┌─────────────────────────────────────────┐  │
	│  │         POSIX Operation Layer            │  │
	│  │  • File Operations  • Directory Ops      │  │
	│  │  • Metadata Ops     • Permission Mgmt    │  │
	│  └─────────────────────────────────────────┘  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│          internal/resolver.Resolver          │
	│   (rules, transforms, layers, cache, I/O)    │
	└─────────────────────────────────────────────┘

# Platform Support

Multi-platform FUSE implementation with build constraints:

Default Build (go-fuse):
- Target: Linux (primary platform)
- Implementation: github.com/hanwen/go-fuse/v2
- Performance: Optimal for Linux environments
- Features: Full POSIX compliance, high performance

CGO Build (cgofuse):
- Target: macOS, Windows, Linux (fallback)
- Implementation: github.com/winfsp/cgofuse
- Performance: Cross-platform compatibility
- Features: Broader OS support, consistent behavior

Build Selection:
	// Linux with high performance
	go build ./...

	// Cross-platform compatibility
	go build -tags cgofuse ./...

# FileSystem Operations

POSIX filesystem operations this package forwards to the Resolver:

File Operations:
- open(), read(), write(), release() - Standard file I/O via Resolver.Open/Read/Write/Release
- truncate() - Resolver.Truncate

Directory Operations:
- opendir(), readdir(), closedir() - Resolver.Readdir, merging backing entries and layer names
- mkdir(), rmdir() - Resolver.Mkdir/Rmdir against the first writable source root
- rename() - Resolver.Rename, which keeps the entry within its own source root

Metadata Operations:
- stat(), fstat(), lstat() - Resolver.Getattr, synthesizing directory attrs for virtual paths
- unlink() - Resolver.Unlink

# Configuration

Flexible mount configuration options:

	config := &fuse.MountConfig{
		MountPoint: "/mnt/shadowfs",
		Options: &fuse.MountOptions{
			ReadOnly:     false,
			AllowOther:   true,
			AllowRoot:    false,

			// Performance tuning
			MaxRead:      128 * 1024,  // 128KB read buffer
			MaxWrite:     128 * 1024,  // 128KB write buffer

			// Caching
			AttrTimeout:  5 * time.Second,
			EntryTimeout: 10 * time.Second,

			// Platform-specific
			FSName:       "shadowfs",
			Subtype:      "shadowfs",
		},
		Permissions: &fuse.Permissions{
			UID:      1000,
			GID:      1000,
			FileMode: 0644,
			DirMode:  0755,
		},
	}

# Usage Examples

Basic filesystem mounting:

	// r is an *internal/resolver.Resolver already wired to the Layer
	// Manager, Rule Engine, Transform Pipeline, and Cache.
	mountManager := fuse.CreatePlatformMountManager(r, fsConfig, mountConfig)

	err := mountManager.Mount(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer mountManager.Unmount()

File operations through the mounted view:

	// Standard POSIX operations work transparently over the synthetic view

	data, err := os.ReadFile("/mnt/shadowfs/by-type/py/example.py")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Content: %s\n", data)

Directory operations:

	entries, err := os.ReadDir("/mnt/shadowfs/by-date/2024/02")
	for _, entry := range entries {
		info, _ := entry.Info()
		fmt.Printf("%s %d %v\n",
			entry.Name(),
			info.Size(),
			info.ModTime())
	}

# Path Resolution

Every callback first normalizes its path (internal/pathutil), then lets the Resolver
decide between three outcomes: a real backing file, a synthetic directory (the mount
root, a layer root, or an intermediate grouping level), or NotFound. Rule Engine
verdicts and the first-segment-is-a-layer-name check both happen inside the
Resolver; this package never special-cases a path itself.

# Error Handling

POSIX error translation lives in internal/resolver (translateStatErr) and
pkg/errors; this package's only job is mapping the Resolver's closed error-kind set
onto the FUSE binding's syscall.Errno values (ENOENT, EACCES, EINVAL, EEXIST,
ETIMEDOUT, EIO).

# Statistics

FilesystemStats exposes lookup/open/read/write counters and cache hit/miss totals
per mounted filesystem, read by the control plane's GET /stats alongside the
Resolver's own Statistics().

# Thread Safety

Designed for high-concurrency operation:

- All FUSE operations are inherently concurrent; distinct paths never block each other
- The Resolver enforces its own lock ordering internally (layer manager, per-layer,
  handle table, cache) - the go-fuse binding holds no locks of its own; the cgofuse
  binding holds one mutex guarding its mount state and its open-handle table

This package provides the thin bridge between standard POSIX applications and the
Resolver's synthetic, rule-filtered, transform-applied view of one or more backing
directory trees.
*/
package fuse
