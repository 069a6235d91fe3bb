package types

import (
	"path"
	"strings"
	"time"
)

// FileAttributes is the read-only view of a file's metadata consumed by
// rule predicates and layer classifiers. FileInfo implements it; tests
// can substitute a synthetic implementation without a backing store.
type FileAttributes interface {
	MountPath() string
	ByteSize() int64
	Modified() time.Time
	Extension() string
	BackingRelPath() string
}

// MountPath returns the normalized mount-relative path.
func (fi FileInfo) MountPath() string { return fi.Path }

// ByteSize returns the file's size in bytes.
func (fi FileInfo) ByteSize() int64 { return fi.Size }

// Modified returns the file's modification time.
func (fi FileInfo) Modified() time.Time { return fi.ModTime }

// Extension returns the lowercased extension without the dot, or the
// empty string when the file has none.
func (fi FileInfo) Extension() string {
	ext := strings.ToLower(path.Ext(fi.Path))
	return strings.TrimPrefix(ext, ".")
}

// BackingRelPath returns the path relative to the file's source root.
func (fi FileInfo) BackingRelPath() string { return fi.BackingKey }

// MetricsCollector defines the metrics collection interface consumed by
// the Resolver, Layer Manager, and Cache.
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordCacheHit(level string, size int64)
	RecordCacheMiss(level string, size int64)
	RecordError(operation string, err error)
}
