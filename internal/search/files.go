package search

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sst/mentions/internal/trigger"
)

var errEnoughFiles = errors.New("file limit reached")

var defaultIgnore = []string{
	".git/**",
	"node_modules/**",
	"**/.DS_Store",
}

// Files suggests workspace files, matched fuzzily against their relative
// path.
type Files struct {
	fsys    fs.FS
	include string
	ignore  []string
	max     int
}

type FilesOption func(*Files)

// WithInclude restricts candidates to paths matching a doublestar pattern.
func WithInclude(pattern string) FilesOption {
	return func(f *Files) {
		if pattern != "" {
			f.include = pattern
		}
	}
}

// WithIgnore adds doublestar patterns for paths that are never suggested.
func WithIgnore(patterns ...string) FilesOption {
	return func(f *Files) {
		f.ignore = append(f.ignore, patterns...)
	}
}

// WithMaxFiles caps how many files are scanned per query.
func WithMaxFiles(n int) FilesOption {
	return func(f *Files) {
		if n > 0 {
			f.max = n
		}
	}
}

func NewFiles(root string, opts ...FilesOption) *Files {
	return NewFilesFS(os.DirFS(root), opts...)
}

func NewFilesFS(fsys fs.FS, opts ...FilesOption) *Files {
	f := &Files{
		fsys:    fsys,
		include: "**/*",
		ignore:  append([]string(nil), defaultIgnore...),
		max:     5000,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Files) Search(ctx context.Context, kind trigger.Kind, query string) ([]Candidate, error) {
	var paths []string
	err := doublestar.GlobWalk(f.fsys, f.include, func(path string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.ignored(path) {
			return nil
		}
		paths = append(paths, path)
		if len(paths) >= f.max {
			return errEnoughFiles
		}
		return nil
	}, doublestar.WithFilesOnly())
	if err != nil && !errors.Is(err, errEnoughFiles) {
		return nil, err
	}

	sort.Strings(paths)

	query = strings.TrimSpace(query)
	if query == "" {
		return f.candidates(kind, paths), nil
	}

	matches := fuzzy.RankFindFold(query, paths)
	sort.Stable(matches)
	ranked := make([]string, len(matches))
	for i, m := range matches {
		ranked[i] = m.Target
	}
	return f.candidates(kind, ranked), nil
}

func (f *Files) ignored(path string) bool {
	for _, pattern := range f.ignore {
		ok, err := doublestar.Match(pattern, path)
		if err != nil {
			slog.Debug("Bad ignore pattern", "pattern", pattern, "error", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func (f *Files) candidates(kind trigger.Kind, paths []string) []Candidate {
	items := make([]Candidate, 0, len(paths))
	for _, p := range paths {
		items = append(items, Candidate{
			ID:        p,
			Label:     p,
			Kind:      kind,
			SourceRef: "files",
		})
	}
	return items
}
