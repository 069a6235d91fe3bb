package layers

import (
	"bytes"
	"context"
	"mime"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/shadowfs/shadowfs/internal/pattern"
)

// Classifier maps one FileInfo to a single category key. Built-in
// classifiers never return an error; an unclassifiable file falls back
// to unclassifiedKey.
type Classifier func(fi File) string

const unclassifiedKey = "__unclassified__"

// ExtensionClassifier keys by the lowercased file extension, or
// unclassifiedKey when the file has none.
func ExtensionClassifier(fi File) string {
	ext := strings.ToLower(path.Ext(fi.Path))
	if ext == "" {
		return unclassifiedKey
	}
	return strings.TrimPrefix(ext, ".")
}

// SizeClassifier buckets by file size: tiny <= 1 KiB, small <= 1 MiB,
// medium <= 100 MiB, large <= 1 GiB, huge above.
func SizeClassifier(fi File) string {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case fi.Size <= 1*kib:
		return "tiny"
	case fi.Size <= 1*mib:
		return "small"
	case fi.Size <= 100*mib:
		return "medium"
	case fi.Size <= 1*gib:
		return "large"
	default:
		return "huge"
	}
}

// MimeClassifier detects a category by extension first, falling back
// to magic-byte detection via mimetype when realPathOf yields a
// readable path. Detection failure classifies as unclassifiedKey.
func MimeClassifier(realPathOf func(fi File) string) Classifier {
	return func(fi File) string {
		if byExt := mime.TypeByExtension(path.Ext(fi.Path)); byExt != "" {
			return byExt
		}
		if realPathOf == nil {
			return unclassifiedKey
		}
		real := realPathOf(fi)
		if real == "" {
			return unclassifiedKey
		}
		mt, err := mimetype.DetectFile(real)
		if err != nil {
			return unclassifiedKey
		}
		return mt.String()
	}
}

// PatternClassifier evaluates an ordered glob table and returns the
// first matching label, or unclassifiedKey.
type PatternRule struct {
	Glob  string
	Label string
}

func PatternClassifier(rules []PatternRule) Classifier {
	return func(fi File) string {
		for _, r := range rules {
			ok, err := pattern.Match(pattern.Glob, r.Glob, fi.Path)
			if err == nil && ok {
				return r.Label
			}
		}
		return unclassifiedKey
	}
}

// VCSStatusClassifier runs `git status --porcelain` against realPathOf's
// containing repository with a hard timeout. Any failure, timeout, or
// absence of VCS metadata classifies as "unknown"; it never raises an
// error.
func VCSStatusClassifier(realPathOf func(fi File) string, timeout time.Duration) Classifier {
	const unknown = "unknown"
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(fi File) string {
		if realPathOf == nil {
			return unknown
		}
		real := realPathOf(fi)
		if real == "" {
			return unknown
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "git", "status", "--porcelain", "--", path.Base(real))
		cmd.Dir = path.Dir(real)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			return unknown
		}

		line := strings.TrimSpace(out.String())
		if line == "" {
			return "clean"
		}
		switch line[0:1] {
		case "M":
			return "modified"
		case "A":
			return "added"
		case "D":
			return "deleted"
		case "?":
			return "untracked"
		default:
			return "modified"
		}
	}
}

// ClassifierIndex groups files by a single Classifier. A file belongs
// to exactly one category.
type ClassifierIndex struct {
	classify Classifier
	byKey    map[string][]File
}

func NewClassifierIndex(classify Classifier) *ClassifierIndex {
	return &ClassifierIndex{classify: classify, byKey: make(map[string][]File)}
}

func (c *ClassifierIndex) BuildIndex(files []File) {
	byKey := make(map[string][]File)
	for _, fi := range files {
		key := c.classify(fi)
		byKey[key] = append(byKey[key], fi)
	}
	c.byKey = byKey
}

func (c *ClassifierIndex) Resolve(subPath string) (File, bool) {
	segs := splitPath(subPath)
	if len(segs) != 2 {
		return File{}, false
	}
	key, name := segs[0], segs[1]
	for _, fi := range c.byKey[key] {
		if path.Base(fi.Path) == name {
			return fi, true
		}
	}
	return File{}, false
}

func (c *ClassifierIndex) List(subPath string) ([]Entry, bool) {
	segs := splitPath(subPath)
	switch len(segs) {
	case 0:
		var out []Entry
		for _, key := range sortedKeys(c.byKey) {
			out = append(out, Entry{Name: key, IsDir: true})
		}
		return out, true
	case 1:
		files, ok := c.byKey[segs[0]]
		if !ok {
			return nil, false
		}
		out := make([]Entry, 0, len(files))
		for i := range files {
			fi := files[i]
			out = append(out, Entry{Name: path.Base(fi.Path), File: &fi})
		}
		return out, true
	default:
		return nil, false
	}
}

