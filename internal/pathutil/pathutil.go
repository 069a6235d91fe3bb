// Package pathutil normalizes and validates mount-relative paths and
// resolves them safely against a backing source root, rejecting any
// escape via ".." segments or symlinks that leave the root.
package pathutil

import (
	"os"
	"path"
	"strings"

	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
)

const (
	maxPathBytes    = 4096
	maxSegmentBytes = 255
	// MaxSymlinkDepth bounds the symlink chain followed during Resolve.
	MaxSymlinkDepth = 10
)

// Normalize canonicalizes a mount-relative path: it collapses duplicate
// separators, resolves "." segments, and resolves ".." segment-wise
// against the components collected so far, rejecting any ".." that
// would escape the root. It rejects embedded NUL bytes, paths over
// 4096 bytes, segments over 255 bytes, and control characters.
func Normalize(input string) (string, error) {
	if len(input) > maxPathBytes {
		return "", shadowerrors.New(shadowerrors.CodePathTooLong, "path exceeds maximum length").
			WithComponent("pathutil").WithDetail("length", len(input))
	}
	if strings.ContainsRune(input, 0) {
		return "", shadowerrors.New(shadowerrors.CodePathInvalid, "path contains a NUL byte").
			WithComponent("pathutil")
	}
	for _, r := range input {
		if r < 0x20 || r == 0x7f {
			return "", shadowerrors.New(shadowerrors.CodePathInvalid, "path contains a control character").
				WithComponent("pathutil")
		}
	}

	segments := strings.Split(input, "/")
	var stack []string
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", shadowerrors.New(shadowerrors.CodePathEscapesRoot, "path escapes the mount root").
					WithComponent("pathutil").WithDetail("path", input)
			}
			stack = stack[:len(stack)-1]
		default:
			if len(seg) > maxSegmentBytes {
				return "", shadowerrors.New(shadowerrors.CodePathTooLong, "path segment exceeds maximum length").
					WithComponent("pathutil").WithDetail("segment", seg)
			}
			stack = append(stack, seg)
		}
	}

	if len(stack) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(stack, "/"), nil
}

// Join appends a normalized mount-relative path onto a backing root,
// guaranteeing the result cannot point outside root.
func Join(root, relPath string) (string, error) {
	normalized, err := Normalize(relPath)
	if err != nil {
		return "", err
	}
	cleanRoot := path.Clean(root)
	return path.Join(cleanRoot, normalized), nil
}

// Resolve follows symlinks under realPath, staying within root, up to
// MaxSymlinkDepth hops. It returns the final real path once dereferenced.
// A symlink target that escapes root resolves to CodePathEscapesRoot.
func Resolve(root, realPath string) (string, error) {
	return ResolveDepth(root, realPath, MaxSymlinkDepth)
}

// ResolveDepth is Resolve with a caller-supplied hop bound; a
// non-positive maxDepth falls back to MaxSymlinkDepth.
func ResolveDepth(root, realPath string, maxDepth int) (string, error) {
	if maxDepth <= 0 {
		maxDepth = MaxSymlinkDepth
	}
	cleanRoot := path.Clean(root)
	current := realPath

	for depth := 0; depth <= maxDepth; depth++ {
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return "", shadowerrors.New(shadowerrors.CodeEntryNotFound, "path does not exist").
					WithComponent("pathutil").WithCause(err)
			}
			return "", shadowerrors.New(shadowerrors.CodeBackingDenied, "failed to stat path").
				WithComponent("pathutil").WithCause(err)
		}

		if info.Mode()&os.ModeSymlink == 0 {
			if !withinRoot(cleanRoot, current) {
				return "", shadowerrors.New(shadowerrors.CodePathEscapesRoot, "resolved path escapes source root").
					WithComponent("pathutil").WithDetail("path", current)
			}
			return current, nil
		}
		if depth == maxDepth {
			break
		}

		target, err := os.Readlink(current)
		if err != nil {
			return "", shadowerrors.New(shadowerrors.CodeBackingDenied, "failed to read symlink").
				WithComponent("pathutil").WithCause(err)
		}

		if path.IsAbs(target) {
			current = path.Clean(target)
		} else {
			current = path.Join(path.Dir(current), target)
		}

		if !withinRoot(cleanRoot, current) {
			return "", shadowerrors.New(shadowerrors.CodePathEscapesRoot, "symlink target escapes source root").
				WithComponent("pathutil").WithDetail("target", current)
		}
	}

	return "", shadowerrors.New(shadowerrors.CodePathInvalid, "symlink chain too deep").
		WithComponent("pathutil").WithDetail("max_depth", maxDepth)
}

func withinRoot(root, candidate string) bool {
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+"/")
}

// Parent returns the immediate parent of a normalized mount-relative
// path; the parent of "/" is "/".
func Parent(normalized string) string {
	if normalized == "/" {
		return "/"
	}
	dir := path.Dir(normalized)
	if dir == "." {
		return "/"
	}
	return dir
}

// FirstSegment splits a normalized path into its first segment and the
// remainder, used by the Layer Manager to detect a layer-name prefix.
func FirstSegment(normalized string) (first, rest string) {
	trimmed := strings.TrimPrefix(normalized, "/")
	if trimmed == "" {
		return "", "/"
	}
	idx := strings.IndexByte(trimmed, '/')
	if idx < 0 {
		return trimmed, "/"
	}
	return trimmed[:idx], "/" + trimmed[idx+1:]
}
