package layers

import (
	"fmt"
	"path"
)

const sentinelYear = "1970"

// DateIndex groups files into a three-level YYYY/MM/DD tree keyed off
// ModTime. Non-positive timestamps bucket under sentinelYear.
type DateIndex struct {
	byYear map[string]map[string]map[string][]File
}

func NewDateIndex() *DateIndex {
	return &DateIndex{byYear: make(map[string]map[string]map[string][]File)}
}

func (d *DateIndex) BuildIndex(files []File) {
	byYear := make(map[string]map[string]map[string][]File)
	for _, fi := range files {
		y, m, day := dateParts(fi)
		byMonth, ok := byYear[y]
		if !ok {
			byMonth = make(map[string]map[string][]File)
			byYear[y] = byMonth
		}
		byDay, ok := byMonth[m]
		if !ok {
			byDay = make(map[string][]File)
			byMonth[m] = byDay
		}
		byDay[day] = append(byDay[day], fi)
	}
	d.byYear = byYear
}

func dateParts(fi File) (year, month, day string) {
	if fi.ModTime.Unix() <= 0 {
		return sentinelYear, "01", "01"
	}
	return fmt.Sprintf("%04d", fi.ModTime.Year()),
		fmt.Sprintf("%02d", int(fi.ModTime.Month())),
		fmt.Sprintf("%02d", fi.ModTime.Day())
}

func (d *DateIndex) Resolve(subPath string) (File, bool) {
	segs := splitPath(subPath)
	if len(segs) != 4 {
		return File{}, false
	}
	y, m, day, name := segs[0], segs[1], segs[2], segs[3]
	for _, fi := range d.byYear[y][m][day] {
		if path.Base(fi.Path) == name {
			return fi, true
		}
	}
	return File{}, false
}

func (d *DateIndex) List(subPath string) ([]Entry, bool) {
	segs := splitPath(subPath)
	switch len(segs) {
	case 0:
		var out []Entry
		for _, y := range sortedKeys(d.byYear) {
			out = append(out, Entry{Name: y, IsDir: true})
		}
		return out, true
	case 1:
		byMonth, ok := d.byYear[segs[0]]
		if !ok {
			return nil, false
		}
		var out []Entry
		for _, m := range sortedKeys(byMonth) {
			out = append(out, Entry{Name: m, IsDir: true})
		}
		return out, true
	case 2:
		byMonth, ok := d.byYear[segs[0]]
		if !ok {
			return nil, false
		}
		byDay, ok := byMonth[segs[1]]
		if !ok {
			return nil, false
		}
		var out []Entry
		for _, day := range sortedKeys(byDay) {
			out = append(out, Entry{Name: day, IsDir: true})
		}
		return out, true
	case 3:
		byMonth, ok := d.byYear[segs[0]]
		if !ok {
			return nil, false
		}
		byDay, ok := byMonth[segs[1]]
		if !ok {
			return nil, false
		}
		files, ok := byDay[segs[2]]
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
