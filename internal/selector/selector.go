// Package selector walks a vault's document tree, applying git-ignore-style
// include/exclude glob lists to decide which files participate in the
// index.
package selector

import (
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cast-sync/cast/internal/vfs"
)

// CastDir is the vault-local metadata directory, always excluded regardless
// of the configured exclude list.
const CastDir = ".cast"

// Selector decides which markdown files under a vault root participate in
// indexing and sync.
type Selector struct {
	Include []string
	Exclude []string
}

// New builds a Selector from vault-config-declared include/exclude globs.
// An empty include list means "include everything".
func New(include, exclude []string) *Selector {
	return &Selector{Include: include, Exclude: exclude}
}

// Select walks root (using fsys) and returns the sorted, slash-separated
// relative paths of every ".md" file that matches the include patterns
// (or all files, if Include is empty), doesn't match any exclude pattern,
// and doesn't live under the vault's own .cast directory.
func (s *Selector) Select(fsys vfs.FS, root string) ([]string, error) {
	var out []string

	if err := s.walk(fsys, root, "", &out); err != nil {
		return nil, err
	}

	sort.Strings(out)

	return out, nil
}

func (s *Selector) walk(fsys vfs.FS, root, relDir string, out *[]string) error {
	absDir := root
	if relDir != "" {
		absDir = filepath.Join(root, filepath.FromSlash(relDir))
	}

	entries, err := fsys.ReadDir(absDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()

		rel := name
		if relDir != "" {
			rel = relDir + "/" + name
		}

		if entry.IsDir() {
			if rel == CastDir || strings.HasPrefix(rel, CastDir+"/") {
				continue
			}

			if s.excluded(rel + "/") {
				continue
			}

			if err := s.walk(fsys, root, rel, out); err != nil {
				return err
			}

			continue
		}

		if !strings.HasSuffix(name, ".md") {
			continue
		}

		if !s.included(rel) || s.excluded(rel) {
			continue
		}

		*out = append(*out, rel)
	}

	return nil
}

func (s *Selector) included(rel string) bool {
	if len(s.Include) == 0 {
		return true
	}

	return matchesAny(s.Include, rel)
}

func (s *Selector) excluded(rel string) bool {
	return matchesAny(s.Exclude, rel)
}

func matchesAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(pattern, "/")

		ok, err := doublestar.Match(pattern, rel)
		if err == nil && ok {
			return true
		}

		// git-ignore semantics: a pattern also matches anything nested
		// under a directory of that name.
		ok, err = doublestar.Match(path.Join(pattern, "**"), rel)
		if err == nil && ok {
			return true
		}
	}

	return false
}
