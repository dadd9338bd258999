// Package decision implements the pairwise reconciliation decision engine:
// given a document's state on two vaults plus their last-synced baselines,
// decide what action (if any) to take.
package decision

import (
	"strings"

	"github.com/cast-sync/cast/internal/index"
)

// Kind identifies the category of a Decision. Modeled as a tagged variant
// rather than a bag of booleans.
type Kind int

const (
	// CopyAtoB copies A's content (and sync-managed frontmatter) to B.
	CopyAtoB Kind = iota
	// CopyBtoA copies B's content to A.
	CopyBtoA
	// AutoUseA is CopyAtoB specifically because only A changed since the
	// last synced baseline (no conflict).
	AutoUseA
	// AutoUseB is the symmetric case for B.
	AutoUseB
	// Conflict means both sides changed since the last baseline; the
	// orchestrator either reports it or invokes the merge component.
	Conflict
	// Skip means no write happens for this DocID this run.
	Skip
)

// SkipReason explains a Skip decision.
type SkipReason string

const (
	ReasonNotParticipant             SkipReason = "not-a-participant"
	ReasonNoMembership               SkipReason = "no-membership"
	ReasonInSync                     SkipReason = "in-sync"
	ReasonOverpowerIgnoresRemoteOnly SkipReason = "overpower-ignores-remote-only"
	ReasonDirectionBlocked           SkipReason = "sync-to-cast-blocked"
)

// Decision is the engine's output for one DocID in one vault pair.
type Decision struct {
	Kind   Kind
	Reason SkipReason // set only when Kind == Skip
}

// Policy configures direction and tie-break rules left as open,
// per-deployment choices.
type Policy struct {
	// AllowSyncToCast permits a sync-tagged vault to push changes back to a
	// cast-tagged vault. Default false: only cast→sync propagates.
	AllowSyncToCast bool
}

// tag is a vault's membership role for a document.
type tag struct {
	present bool
	isCast  bool
}

// ParseMembership parses a cast-vaults list (e.g. "work (cast)",
// "home (sync)") into a name->tag map.
func ParseMembership(list []string) map[string]tag {
	out := map[string]tag{}

	for _, entry := range list {
		entry = strings.TrimSpace(entry)

		isCast := strings.HasSuffix(entry, "(cast)")
		isSync := strings.HasSuffix(entry, "(sync)")

		if !isCast && !isSync {
			continue
		}

		name := strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(entry, "(cast)"), "(sync)"))
		out[name] = tag{present: true, isCast: isCast}
	}

	return out
}

// Decide applies the decision table for one DocID shared between
// vault A (name vaultA) and vault B (name vaultB).
//
// entryA/entryB are the DocID's index entries on each side (nil if absent).
// baselineA is vault A's recorded last-synced digest for this DocID against
// peer B (from A's sync-state store keyed by B's peer id); baselineB is the
// symmetric value from B's store. hasBaselineA/B report whether that
// baseline entry exists at all.
func Decide(policy Policy, vaultAName, vaultBName string, entryA, entryB *index.Entry, baselineA, baselineB string, hasBaselineA, hasBaselineB, overpower bool) Decision {
	membership := membershipFor(entryA, entryB)

	tagA, okA := membership[vaultAName]
	tagB, okB := membership[vaultBName]

	if !okA || !okB {
		if len(membership) == 0 {
			return Decision{Kind: Skip, Reason: ReasonNoMembership}
		}

		return Decision{Kind: Skip, Reason: ReasonNotParticipant}
	}

	raw := decideRaw(entryA, entryB, baselineA, baselineB, hasBaselineA, hasBaselineB, overpower)

	return applyDirectionPolicy(policy, tagA, tagB, raw)
}

func membershipFor(entryA, entryB *index.Entry) map[string]tag {
	if entryA != nil && len(entryA.Membership) > 0 {
		return ParseMembership(entryA.Membership)
	}

	if entryB != nil && len(entryB.Membership) > 0 {
		return ParseMembership(entryB.Membership)
	}

	return nil
}

func decideRaw(entryA, entryB *index.Entry, baselineA, baselineB string, hasBaselineA, hasBaselineB, overpower bool) Decision {
	switch {
	case entryA != nil && entryB == nil:
		// New on A: always pushed to B, overpower or not. Overpower only
		// ever suppresses the symmetric "new on B" direction below.
		return Decision{Kind: CopyAtoB}
	case entryA == nil && entryB != nil:
		if overpower {
			return Decision{Kind: Skip, Reason: ReasonOverpowerIgnoresRemoteOnly}
		}

		return Decision{Kind: CopyBtoA}
	case entryA == nil && entryB == nil:
		return Decision{Kind: Skip, Reason: ReasonNotParticipant}
	}

	if entryA.Digest == entryB.Digest {
		return Decision{Kind: Skip, Reason: ReasonInSync}
	}

	if overpower {
		return Decision{Kind: CopyAtoB}
	}

	changedA := !hasBaselineA || baselineA != entryA.Digest
	changedB := !hasBaselineB || baselineB != entryB.Digest

	switch {
	case changedA && changedB:
		return Decision{Kind: Conflict}
	case changedA:
		return Decision{Kind: AutoUseA}
	case changedB:
		return Decision{Kind: AutoUseB}
	default:
		// Pathological case: both baselines matched their current digest yet
		// the digests differ from each other. This can only happen if the
		// baselines themselves disagree (e.g. a prior partial sync). Break
		// the tie deterministically by preferring A, documented in
		// DESIGN.md rather than guessed ad hoc.
		return Decision{Kind: AutoUseA}
	}
}

func applyDirectionPolicy(policy Policy, tagA, tagB tag, d Decision) Decision {
	if policy.AllowSyncToCast {
		return d
	}

	// Only block when one side is cast-tagged and the other is sync-tagged
	// (a mixed pair) and the decision would push content from the sync side
	// to the cast side.
	mixedCastSync := tagA.isCast != tagB.isCast

	if !mixedCastSync {
		return d
	}

	blocked := ((d.Kind == CopyBtoA || d.Kind == AutoUseB) && !tagB.isCast) ||
		((d.Kind == CopyAtoB || d.Kind == AutoUseA) && !tagA.isCast)
	if blocked {
		return Decision{Kind: Skip, Reason: ReasonDirectionBlocked}
	}

	return d
}
