//go:build cgofuse
// +build cgofuse

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

// CreatePlatformMountManager builds the cgofuse-backed mount manager,
// used on platforms without a native go-fuse binding (Windows).
func CreatePlatformMountManager(r *resolver.Resolver, fsConfig *Config, mountConfig *MountConfig) PlatformFileSystem {
	return NewCgoFuseMountManager(r, fsConfig, mountConfig)
}
