//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"context"

	"github.com/shadowfs/shadowfs/internal/resolver"
)

// PlatformFileSystem abstracts the FUSE binding in use (go-fuse vs
// cgofuse) behind the lifecycle the daemon drives.
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	GetStats() *FilesystemStats
}

// CreatePlatformMountManager builds the go-fuse-backed mount manager
// for this platform, wrapping the Resolver in a FileSystem.
func CreatePlatformMountManager(r *resolver.Resolver, fsConfig *Config, mountConfig *MountConfig) PlatformFileSystem {
	filesystem := NewFileSystem(r, fsConfig)
	return NewMountManager(filesystem, mountConfig)
}
