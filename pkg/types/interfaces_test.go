package types

import (
	"testing"
	"time"
)

type syntheticFile struct {
	path string
	size int64
}

func (s syntheticFile) MountPath() string      { return s.path }
func (s syntheticFile) ByteSize() int64        { return s.size }
func (s syntheticFile) Modified() time.Time    { return time.Time{} }
func (s syntheticFile) Extension() string      { return "" }
func (s syntheticFile) BackingRelPath() string { return "" }

func TestFileInfoImplementsFileAttributes(t *testing.T) {
	var _ FileAttributes = FileInfo{}
	var _ FileAttributes = syntheticFile{}
}

func TestFileInfoExtension(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/a/report.TXT", "txt"},
		{"/a/archive.tar.gz", "gz"},
		{"/a/noext", ""},
		{"/a/.hidden", "hidden"},
		{"/", ""},
	}
	for _, tt := range tests {
		fi := FileInfo{Path: tt.path}
		if got := fi.Extension(); got != tt.want {
			t.Errorf("Extension(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFileInfoAttributeAccessors(t *testing.T) {
	mod := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	fi := FileInfo{Path: "/docs/a.md", Size: 42, ModTime: mod, BackingKey: "docs/a.md"}

	if fi.MountPath() != "/docs/a.md" {
		t.Errorf("MountPath() = %q", fi.MountPath())
	}
	if fi.ByteSize() != 42 {
		t.Errorf("ByteSize() = %d", fi.ByteSize())
	}
	if !fi.Modified().Equal(mod) {
		t.Errorf("Modified() = %v", fi.Modified())
	}
	if fi.BackingRelPath() != "docs/a.md" {
		t.Errorf("BackingRelPath() = %q", fi.BackingRelPath())
	}
}
