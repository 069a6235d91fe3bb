//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"

	"github.com/shadowfs/shadowfs/internal/resolver"
)

// CgoFuseMountManager manages a cgofuse-based mount lifecycle,
// mirroring MountManager's contract for the go-fuse binding.
type CgoFuseMountManager struct {
	filesystem *CgoFuseFS
	config     *MountConfig
}

// NewCgoFuseMountManager builds a cgofuse mount manager over an
// already-wired Resolver.
func NewCgoFuseMountManager(r *resolver.Resolver, fsConfig *Config, config *MountConfig) *CgoFuseMountManager {
	if fsConfig == nil {
		fsConfig = &Config{MountPoint: config.MountPoint, DefaultMode: 0644}
	}
	fsConfig.MountPoint = config.MountPoint
	if config.Options != nil {
		fsConfig.AllowOther = config.Options.AllowOther
		fsConfig.ReadOnly = config.Options.ReadOnly
	}

	return &CgoFuseMountManager{
		filesystem: NewCgoFuseFS(r, fsConfig),
		config:     config,
	}
}

// Mount mounts the filesystem.
func (m *CgoFuseMountManager) Mount(ctx context.Context) error {
	return m.filesystem.Mount(ctx)
}

// Unmount unmounts the filesystem.
func (m *CgoFuseMountManager) Unmount() error {
	return m.filesystem.Unmount()
}

// IsMounted reports whether the filesystem is currently mounted.
func (m *CgoFuseMountManager) IsMounted() bool {
	return m.filesystem.IsMounted()
}

// GetStats returns filesystem operation counters.
func (m *CgoFuseMountManager) GetStats() *FilesystemStats {
	return m.filesystem.GetStats()
}
