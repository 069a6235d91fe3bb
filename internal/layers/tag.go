package layers

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/pkg/xattr"

	"github.com/shadowfs/shadowfs/internal/pattern"
)

// TagExtractor yields zero or more raw tags for a file; extraction
// failure is non-fatal and yields no tags.
type TagExtractor func(fi File, realPath string) []string

const xattrTagKey = "user.shadowfs.tags"

// XattrTagExtractor reads a best-effort extended attribute holding a
// comma-separated tag list.
func XattrTagExtractor(fi File, realPath string) []string {
	if realPath == "" {
		return nil
	}
	v, err := xattr.Get(realPath, xattrTagKey)
	if err != nil {
		return nil
	}
	return splitTags(string(v))
}

// SidecarTagExtractor reads "<name>.tags" next to the file, accepting
// either a JSON string array or a comma-separated CSV line.
func SidecarTagExtractor(fi File, realPath string) []string {
	if realPath == "" {
		return nil
	}
	data, err := os.ReadFile(realPath + ".tags")
	if err != nil {
		return nil
	}

	var jsonTags []string
	if err := json.Unmarshal(data, &jsonTags); err == nil {
		return jsonTags
	}

	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	record, err := r.Read()
	if err != nil {
		return nil
	}
	return record
}

// FilenameGlobExtractor maps filename glob patterns to a fixed tag.
type GlobTagRule struct {
	Glob string
	Tag  string
}

func FilenameGlobExtractor(rules []GlobTagRule) TagExtractor {
	return func(fi File, realPath string) []string {
		name := path.Base(fi.Path)
		var tags []string
		for _, r := range rules {
			if ok, err := pattern.Match(pattern.Glob, r.Glob, name); err == nil && ok {
				tags = append(tags, r.Tag)
			}
		}
		return tags
	}
}

// PathGlobExtractor maps full-path glob patterns to a fixed tag.
func PathGlobExtractor(rules []GlobTagRule) TagExtractor {
	return func(fi File, realPath string) []string {
		var tags []string
		for _, r := range rules {
			if ok, err := pattern.Match(pattern.Glob, r.Glob, fi.Path); err == nil && ok {
				tags = append(tags, r.Tag)
			}
		}
		return tags
	}
}

// ExtensionTagExtractor maps a lowercased extension to a fixed tag.
func ExtensionTagExtractor(byExt map[string]string) TagExtractor {
	return func(fi File, realPath string) []string {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(fi.Path), "."))
		if tag, ok := byExt[ext]; ok {
			return []string{tag}
		}
		return nil
	}
}

func splitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TagIndex groups files by the deduplicated union of every extractor's
// output. A file with no tags is omitted from the synthetic tree.
type TagIndex struct {
	extractors []TagExtractor
	realPathOf func(fi File) string
	byTag      map[string][]File
}

func NewTagIndex(extractors []TagExtractor, realPathOf func(fi File) string) *TagIndex {
	return &TagIndex{extractors: extractors, realPathOf: realPathOf, byTag: make(map[string][]File)}
}

func (t *TagIndex) BuildIndex(files []File) {
	byTag := make(map[string][]File)
	for _, fi := range files {
		var real string
		if t.realPathOf != nil {
			real = t.realPathOf(fi)
		}
		seen := make(map[string]struct{})
		for _, ex := range t.extractors {
			for _, tag := range ex(fi, real) {
				tag = strings.TrimSpace(tag)
				if tag == "" {
					continue
				}
				if _, dup := seen[tag]; dup {
					continue
				}
				seen[tag] = struct{}{}
				byTag[tag] = append(byTag[tag], fi)
			}
		}
	}
	t.byTag = byTag
}

func (t *TagIndex) Resolve(subPath string) (File, bool) {
	segs := splitPath(subPath)
	if len(segs) != 2 {
		return File{}, false
	}
	tag, name := segs[0], segs[1]
	for _, fi := range t.byTag[tag] {
		if path.Base(fi.Path) == name {
			return fi, true
		}
	}
	return File{}, false
}

func (t *TagIndex) List(subPath string) ([]Entry, bool) {
	segs := splitPath(subPath)
	switch len(segs) {
	case 0:
		var out []Entry
		for _, tag := range sortedKeys(t.byTag) {
			out = append(out, Entry{Name: tag, IsDir: true})
		}
		return out, true
	case 1:
		files, ok := t.byTag[segs[0]]
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
