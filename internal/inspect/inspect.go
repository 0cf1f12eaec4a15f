// Package inspect lists the EXIF tags embedded in a file. It is a diagnostic aid
// for the CLI and plays no part in deciding whether a strip succeeded.
package inspect

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// Tag is one decoded EXIF field.
type Tag struct {
	Name  string
	Value string
}

// Report describes the EXIF content of a file.
type Report struct {
	Path    string
	HasEXIF bool
	Tags    []Tag
}

// Inspect decodes EXIF from path. A file without EXIF yields a report with
// HasEXIF false and no error; only a file that cannot be opened is an error.
func Inspect(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	report := &Report{Path: path}

	x, err := exif.Decode(f)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return report, nil
	}

	w := &tagCollector{}
	if err := x.Walk(w); err != nil {
		return nil, fmt.Errorf("failed to walk EXIF: %w", err)
	}

	sort.Slice(w.tags, func(i, j int) bool { return w.tags[i].Name < w.tags[j].Name })
	report.HasEXIF = true
	report.Tags = w.tags
	return report, nil
}

// String renders the report the way the CLI prints it.
func (r *Report) String() string {
	if !r.HasEXIF {
		return fmt.Sprintf("%s: no EXIF metadata found", r.Path)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d EXIF tag(s)\n", r.Path, len(r.Tags))
	for _, t := range r.Tags {
		fmt.Fprintf(&b, "  %-28s %s\n", t.Name, t.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

type tagCollector struct {
	tags []Tag
}

func (c *tagCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	value := tag.String()
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			value = strings.TrimRight(s, "\x00")
		}
	}
	c.tags = append(c.tags, Tag{Name: string(name), Value: value})
	return nil
}
