// Package docid implements the identity service: generation, parsing, and
// presence-enforcement of the cast-id frontmatter field.
//
// A DocID is a 128-bit random value with no embedded temporal meaning.
// Unlike a time-ordered UUIDv7, purely random bits are the right fit here
// since DocIDs must not leak creation order across vaults with different
// clocks. It is rendered in the canonical lowercase hex-group string form.
package docid

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cast-sync/cast/internal/fm"
)

// DocID is the canonical string form of a document's stable identity.
type DocID string

// Generate produces a new, random DocID.
func Generate() DocID {
	return DocID(uuid.New().String())
}

// Parse validates that s is a canonical DocID string and returns it
// unchanged. Returns an error if s doesn't parse as a UUID or
// doesn't round-trip to the same canonical form (rejecting, for example,
// Microsoft GUID braces or uppercase hex that a lenient parser would accept
// but the canonical grammar would not).
func Parse(s string) (DocID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse doc id: %w", err)
	}

	canonical := id.String()
	if canonical != s {
		return "", fmt.Errorf("doc id %q is not in canonical form", s)
	}

	return DocID(canonical), nil
}

// Outcome classifies the result of EnsurePresent.
type Outcome int

const (
	// OutcomeUnchanged means cast-id was present, valid, and already
	// canonically ordered; no rewrite needed.
	OutcomeUnchanged Outcome = iota
	// OutcomeReorder means cast-id (or another sync-managed key) was
	// present but not canonically ordered; a rewrite is needed to fix
	// ordering only, no identity change.
	OutcomeReorder
	// OutcomeGenerated means cast-id was absent, another sync-managed key
	// was present, and auto-fix generated and injected a new DocID.
	OutcomeGenerated
	// OutcomeWarnExcluded means cast-id was absent, a sync-managed key was
	// present, but auto-fix was disabled: the caller should warn and
	// exclude the file from the index.
	OutcomeWarnExcluded
	// OutcomeNotParticipant means cast-id and every other sync-managed key
	// were absent: the file is untouched and not a sync participant.
	OutcomeNotParticipant
)

// ErrInvalidCastID names the case where cast-id is present but does not
// parse as a canonical DocID. EnsurePresent never returns it: it treats
// that case the same as "absent" (documented in DESIGN.md).
var ErrInvalidCastID = errors.New("cast-id present but not canonical")

// EnsurePresent applies the presence table to fmData, mutating it
// in place when a DocID is generated. It never mutates on OutcomeWarnExcluded
// or OutcomeNotParticipant.
func EnsurePresent(fmData *fm.Frontmatter, autoFix bool) (Outcome, DocID, error) {
	if fmData.HasCastID() {
		id, err := Parse(fmData.CastID)
		if err != nil {
			// Present but malformed: treated like "absent" below, since this
			// shape isn't named explicitly in the presence table.
			return ensureAbsent(fmData, autoFix)
		}

		if fmData.IsCanonicallyOrdered() {
			return OutcomeUnchanged, id, nil
		}

		return OutcomeReorder, id, nil
	}

	return ensureAbsent(fmData, autoFix)
}

func ensureAbsent(fmData *fm.Frontmatter, autoFix bool) (Outcome, DocID, error) {
	if !fmData.HasAnySyncManagedKey() {
		return OutcomeNotParticipant, "", nil
	}

	if !autoFix {
		return OutcomeWarnExcluded, "", nil
	}

	id := Generate()
	fmData.SetCastID(string(id))

	return OutcomeGenerated, id, nil
}
