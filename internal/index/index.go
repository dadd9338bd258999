// Package index implements the per-vault document index: a JSON file at
// <vault>/.cast/index.json keyed by DocID, rebuildable from the document
// tree with incremental reuse based on (size, mtime).
package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cast-sync/cast/internal/content"
	"github.com/cast-sync/cast/internal/docid"
	"github.com/cast-sync/cast/internal/fm"
	"github.com/cast-sync/cast/internal/selector"
	"github.com/cast-sync/cast/internal/vfs"
)

// ErrDuplicateID reports two distinct paths in the same vault carrying the
// same cast-id. DuplicateIDError carries the offending paths.
var ErrDuplicateID = errors.New("duplicate cast-id within vault")

// DuplicateIDError describes one DocID Build found at two distinct paths.
// Build never fails because of this: it excludes the DocID from the index
// entirely and records one of these per collision in BuildResult.Duplicates
// instead, so unrelated files keep indexing.
type DuplicateIDError struct {
	ID    docid.DocID
	PathA string
	PathB string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s: id %s at both %q and %q", ErrDuplicateID, e.ID, e.PathA, e.PathB)
}

func (e *DuplicateIDError) Unwrap() error {
	return ErrDuplicateID
}

// Path is the vault-relative location of the index file.
const Path = ".cast/index.json"

// Entry is a single indexed document.
type Entry struct {
	Path        string    `json:"path"`
	Digest      string    `json:"digest"`
	Membership  []string  `json:"membership"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mtime"`
	CastType    string    `json:"cast_type,omitempty"`
	CastVersion string    `json:"cast_version,omitempty"`
}

// Index maps DocID to its indexed entry. The zero value is an empty index.
type Index struct {
	Entries map[docid.DocID]Entry
}

// New returns an empty Index.
func New() *Index {
	return &Index{Entries: map[docid.DocID]Entry{}}
}

// Load reads the index file at <root>/.cast/index.json. A missing file is
// not an error: it returns an empty Index.
func Load(fsys vfs.FS, root string) (*Index, error) {
	data, err := fsys.ReadFile(filepath.Join(root, filepath.FromSlash(Path)))
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}

		return nil, fmt.Errorf("read index: %w", err)
	}

	var raw map[docid.DocID]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}

	return &Index{Entries: raw}, nil
}

// SaveAtomic serializes the index with sorted keys and writes it atomically.
func (idx *Index) SaveAtomic(fsys vfs.FS, root string) error {
	ids := make([]docid.DocID, 0, len(idx.Entries))
	for id := range idx.Entries {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var buf bytes.Buffer
	buf.WriteString("{\n")

	for i, id := range ids {
		entryJSON, err := json.Marshal(idx.Entries[id])
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", id, err)
		}

		fmt.Fprintf(&buf, "  %q: %s", string(id), entryJSON)

		if i < len(ids)-1 {
			buf.WriteString(",")
		}

		buf.WriteString("\n")
	}

	buf.WriteString("}\n")

	w := vfs.NewAtomicWriter(fsys)
	indexPath := filepath.Join(root, filepath.FromSlash(Path))

	if err := fsys.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return fmt.Errorf("create .cast dir: %w", err)
	}

	return w.WriteBytes(indexPath, buf.Bytes())
}

// LookupByID returns the entry for id, if present.
func (idx *Index) LookupByID(id docid.DocID) (Entry, bool) {
	e, ok := idx.Entries[id]
	return e, ok
}

// LookupByPath returns the DocID whose entry's Path equals rel, if any.
func (idx *Index) LookupByPath(rel string) (docid.DocID, bool) {
	for id, e := range idx.Entries {
		if e.Path == rel {
			return id, true
		}
	}

	return "", false
}

// Upsert inserts or replaces the entry for id.
func (idx *Index) Upsert(id docid.DocID, e Entry) {
	idx.Entries[id] = e
}

// Delete removes id from the index.
func (idx *Index) Delete(id docid.DocID) {
	delete(idx.Entries, id)
}

// BuildResult reports how many documents were touched by Build.
type BuildResult struct {
	Inserted   int
	Reused     int
	Deleted    int
	Warnings   []string           // paths excluded due to OutcomeWarnExcluded or unparseable frontmatter
	Duplicates []DuplicateIDError // DocIds excluded entirely because two paths shared them
}

// Build rebuilds the index for the vault at root. Unless rebuild is true, it
// reuses prior entries whose (path, size, mtime) still match, re-parsing
// (identity + digest) only the rest. Files unseen by this walk are deleted
// from the index. When autoFix is true, files missing cast-id but carrying
// another sync-managed key have one generated and are rewritten to disk.
func Build(fsys vfs.FS, root string, sel *selector.Selector, rebuild, autoFix bool) (*Index, BuildResult, error) {
	var (
		prior *Index
		err   error
	)

	if rebuild {
		prior = New()
	} else {
		prior, err = Load(fsys, root)
		if err != nil {
			return nil, BuildResult{}, err
		}
	}

	paths, err := sel.Select(fsys, root)
	if err != nil {
		return nil, BuildResult{}, fmt.Errorf("select: %w", err)
	}

	result := BuildResult{}
	next := New()
	seen := map[docid.DocID]bool{}
	duplicateFirstPath := map[docid.DocID]string{}
	countedAs := map[docid.DocID]string{} // "inserted" or "reused", for undoing on a later duplicate

	priorByPath := map[string]docid.DocID{}
	for id, e := range prior.Entries {
		priorByPath[e.Path] = id
	}

	writer := vfs.NewAtomicWriter(fsys)

	for _, rel := range paths {
		abs := filepath.Join(root, filepath.FromSlash(rel))

		info, err := fsys.Stat(abs)
		if err != nil {
			return nil, BuildResult{}, fmt.Errorf("stat %s: %w", rel, err)
		}

		if priorID, ok := priorByPath[rel]; ok {
			priorEntry := prior.Entries[priorID]
			if priorEntry.Size == info.Size() && priorEntry.ModTime.Equal(info.ModTime()) {
				next.Entries[priorID] = priorEntry
				seen[priorID] = true
				countedAs[priorID] = "reused"
				result.Reused++

				continue
			}
		}

		raw, err := fsys.ReadFile(abs)
		if err != nil {
			return nil, BuildResult{}, fmt.Errorf("read %s: %w", rel, err)
		}

		doc, err := fm.Parse(raw)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", rel, err))
			continue
		}

		if doc.Frontmatter == nil {
			doc.Frontmatter = &fm.Frontmatter{}
		}

		outcome, id, err := docid.EnsurePresent(doc.Frontmatter, autoFix)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", rel, err))
			continue
		}

		switch outcome {
		case docid.OutcomeNotParticipant:
			continue
		case docid.OutcomeWarnExcluded:
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: cast-id missing, auto-fix disabled", rel))
			continue
		case docid.OutcomeGenerated, docid.OutcomeReorder:
			out, err := fm.Format(doc)
			if err != nil {
				return nil, BuildResult{}, fmt.Errorf("format %s: %w", rel, err)
			}

			if err := writer.WriteBytes(abs, out); err != nil {
				return nil, BuildResult{}, fmt.Errorf("rewrite %s: %w", rel, err)
			}

			info, err = fsys.Stat(abs)
			if err != nil {
				return nil, BuildResult{}, fmt.Errorf("stat %s after rewrite: %w", rel, err)
			}
		}

		entry := Entry{
			Path:        rel,
			Digest:      content.Digest(doc.Body),
			Membership:  doc.Frontmatter.CastVaults,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			CastType:    doc.Frontmatter.CastType,
			CastVersion: doc.Frontmatter.CastVersion,
		}

		if firstPath, isDuplicate := duplicateFirstPath[id]; isDuplicate {
			// A DocId already found to collide across paths: every further
			// path carrying it is reported and excluded too, never reinserted.
			result.Duplicates = append(result.Duplicates, DuplicateIDError{ID: id, PathA: firstPath, PathB: entry.Path})
			continue
		}

		if existing, exists := next.Entries[id]; exists {
			if existing.Path != entry.Path {
				duplicateFirstPath[id] = existing.Path
				delete(next.Entries, id)
				seen[id] = false

				switch countedAs[id] {
				case "inserted":
					result.Inserted--
				case "reused":
					result.Reused--
				}

				delete(countedAs, id)

				result.Duplicates = append(result.Duplicates, DuplicateIDError{ID: id, PathA: existing.Path, PathB: entry.Path})

				continue
			}
		} else {
			result.Inserted++
			countedAs[id] = "inserted"
		}

		next.Entries[id] = entry
		seen[id] = true
	}

	for id := range prior.Entries {
		if !seen[id] {
			result.Deleted++
		}
	}

	return next, result, nil
}
