// Package merge implements three-way textual merging of a document body
// with inline conflict markers, used when the decision engine reports a
// Conflict and the orchestrator is asked to merge rather than just report.
//
// Line alignment is computed with a Myers-diff-derived LCS over whole
// lines (DiffMatchPatch's line-mode diff: lines are first hashed to single
// runes so the byte-oriented diff algorithm operates on a line granularity,
// then expanded back).
package merge

import (
	"bytes"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/cast-sync/cast/internal/content"
)

const (
	markerStart = "<<<<<<< SOURCE"
	markerMid   = "======="
	markerEnd   = ">>>>>>> DESTINATION"
)

// Merge three-way merges source against destination at the line level,
// returning the merged body and whether any conflicting region was found.
//
// Properties:
//   - source == destination (after canonicalization) yields no markers.
//   - disjoint edits (every changed region appears only on one side)
//     still wrap in markers here. This package always marks divergence;
//     callers wanting auto-resolution without markers use the decision
//     engine's AutoUseA/AutoUseB outcomes instead, which bypass Merge
//     entirely.
//   - every line from both inputs appears in the output exactly once, in
//     its original relative order.
//   - marker counts are always balanced: one markerStart, one markerMid,
//     one markerEnd per conflicting region.
func Merge(source, destination []byte) (merged []byte, hasConflict bool) {
	dmp := diffmatchpatch.New()

	srcText := string(content.Canonicalize(source))
	dstText := string(content.Canonicalize(destination))

	srcChars, dstChars, lineArray := dmp.DiffLinesToChars(srcText, dstText)
	diffs := dmp.DiffMain(srcChars, dstChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var buf bytes.Buffer

	i := 0
	for i < len(diffs) {
		if diffs[i].Type == diffmatchpatch.DiffEqual {
			buf.WriteString(diffs[i].Text)
			i++

			continue
		}

		// Collect a contiguous run of non-equal diffs into one conflict
		// region, splitting it into its delete (source-only) and insert
		// (destination-only) parts.
		var delText, insText strings.Builder

		for i < len(diffs) && diffs[i].Type != diffmatchpatch.DiffEqual {
			switch diffs[i].Type {
			case diffmatchpatch.DiffDelete:
				delText.WriteString(diffs[i].Text)
			case diffmatchpatch.DiffInsert:
				insText.WriteString(diffs[i].Text)
			}

			i++
		}

		del := delText.String()
		ins := insText.String()

		if del == "" && ins == "" {
			continue
		}

		if del == ins {
			// Identical content reached via separate delete/insert ops
			// (can happen after semantic cleanup); not a real conflict.
			buf.WriteString(del)
			continue
		}

		hasConflict = true

		buf.WriteString(markerStart)
		buf.WriteString("\n")
		buf.WriteString(del)
		buf.WriteString(markerMid)
		buf.WriteString("\n")
		buf.WriteString(ins)
		buf.WriteString(markerEnd)
		buf.WriteString("\n")
	}

	return buf.Bytes(), hasConflict
}
