package engine

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/cast-sync/cast/internal/content"
	"github.com/cast-sync/cast/internal/decision"
	"github.com/cast-sync/cast/internal/docid"
	"github.com/cast-sync/cast/internal/fm"
	"github.com/cast-sync/cast/internal/index"
	"github.com/cast-sync/cast/internal/merge"
	"github.com/cast-sync/cast/internal/vfs"
)

// LockPath is the driver-vault-relative path to the reconciliation lock
// acquired for the duration of sync_all.
const LockPath = ".cast/locks/sync.lock"

// LockTimeout bounds how long sync_all waits to acquire the driver's lock
// before reporting LockBusy.
const LockTimeout = 10 * time.Second

// Resolution is how a Conflict decision is disposed of.
type Resolution int

const (
	// ResolveMerge writes a three-way merge with inline conflict markers to
	// the peer (the driver's file is left untouched) and records no baseline
	// update (the conflict persists until an operator resolves the markers
	// and re-syncs).
	ResolveMerge Resolution = iota
	// ResolveUseDriver takes the driver's content verbatim.
	ResolveUseDriver
	// ResolveUsePeer takes the peer's content verbatim.
	ResolveUsePeer
	// ResolveSkip leaves both sides untouched this run.
	ResolveSkip
)

// ConflictResolver lets a caller (e.g. an interactive CLI) choose how a
// Conflict decision is disposed of. A nil resolver defaults to ResolveMerge
// for every conflict.
type ConflictResolver func(id docid.DocID, driverPath, peerPath string) Resolution

// SyncOptions configures one sync_all invocation.
type SyncOptions struct {
	Policy      decision.Policy
	Overpower   bool
	Resolve     ConflictResolver
	RebuildIdx  bool
	AutoFixID   bool
}

// SyncAll reconciles driver against every vault in peers, one pair at a
// time, under a single exclusive lock held on the driver for the whole
// operation: no two concurrent reconciliations touching the same driver.
func SyncAll(fsys vfs.FS, locker *vfs.Locker, driver *Vault, peers []*Vault, opts SyncOptions) (*Result, error) {
	if _, err := IndexVault(fsys, driver, opts.RebuildIdx, opts.AutoFixID); err != nil {
		return nil, err
	}

	for _, peer := range peers {
		if _, err := IndexVault(fsys, peer, opts.RebuildIdx, opts.AutoFixID); err != nil {
			return nil, err
		}
	}

	lockFile := filepath.Join(driver.Root, filepath.FromSlash(LockPath))

	lock, err := locker.LockWithTimeout(lockFile, LockTimeout)
	if err != nil {
		return nil, newError(KindLockBusy, driver.Root, "", err)
	}

	defer lock.Close()

	result := &Result{}

	for _, peer := range peers {
		pr, err := reconcilePair(fsys, driver, peer, opts)
		if err != nil {
			return nil, err
		}

		result.Peers = append(result.Peers, pr)
	}

	if err := driver.Index.SaveAtomic(fsys, driver.Root); err != nil {
		return nil, newError(KindWriteFailure, driver.Root, "", fmt.Errorf("save index: %w", err))
	}

	if err := driver.SyncState.SaveAtomic(fsys, driver.Root); err != nil {
		return nil, newError(KindWriteFailure, driver.Root, "", fmt.Errorf("save sync state: %w", err))
	}

	for _, peer := range peers {
		if err := peer.Index.SaveAtomic(fsys, peer.Root); err != nil {
			return nil, newError(KindWriteFailure, peer.Root, "", fmt.Errorf("save index: %w", err))
		}

		if err := peer.SyncState.SaveAtomic(fsys, peer.Root); err != nil {
			return nil, newError(KindWriteFailure, peer.Root, "", fmt.Errorf("save sync state: %w", err))
		}
	}

	return result, nil
}

// reconcilePair applies the decision for every DocID shared (or unique) to
// driver/peer's indices, mutating both vaults' in-memory Index/SyncState
// (callers persist once the whole run completes).
func reconcilePair(fsys vfs.FS, driver, peer *Vault, opts SyncOptions) (*PeerResult, error) {
	pr := &PeerResult{PeerID: peer.ID()}

	ids := unionIDs(driver.Index, peer.Index)

	for _, id := range ids {
		entryA, okA := driver.Index.LookupByID(id)
		entryB, okB := peer.Index.LookupByID(id)

		var pa, pb *index.Entry
		if okA {
			pa = &entryA
		}

		if okB {
			pb = &entryB
		}

		baselineA, hasBaselineA := driver.SyncState.Get(peer.ID(), id)
		baselineB, hasBaselineB := peer.SyncState.Get(driver.ID(), id)

		d := decision.Decide(opts.Policy, driver.ID(), peer.ID(), pa, pb, baselineA, baselineB, hasBaselineA, hasBaselineB, opts.Overpower)

		outcome, err := applyDecision(fsys, driver, peer, id, pa, pb, d, opts)
		if err != nil {
			return nil, err
		}

		pr.Ordered = append(pr.Ordered, outcome)

		switch outcome.Action {
		case ActionConflict:
			pr.Conflicts++
		case ActionSkip:
		default:
			pr.Synced++
		}
	}

	return pr, nil
}

func unionIDs(a, b *index.Index) []docid.DocID {
	seen := map[docid.DocID]bool{}

	var out []docid.DocID

	for id := range a.Entries {
		if !seen[id] {
			seen[id] = true

			out = append(out, id)
		}
	}

	for id := range b.Entries {
		if !seen[id] {
			seen[id] = true

			out = append(out, id)
		}
	}

	return out
}

func applyDecision(fsys vfs.FS, driver, peer *Vault, id docid.DocID, pa, pb *index.Entry, d decision.Decision, opts SyncOptions) (Outcome, error) {
	switch d.Kind {
	case decision.Skip:
		path := ""
		if pa != nil {
			path = pa.Path
		} else if pb != nil {
			path = pb.Path
		}

		if d.Reason == decision.ReasonInSync {
			// Already converged: still refresh both baselines to the
			// agreed digest, so a later one-sided edit is detectable
			// against a known-good baseline instead of looking like a
			// fresh conflict against a stale or absent one.
			driver.SyncState.Put(peer.ID(), id, pa.Digest)
			peer.SyncState.Put(driver.ID(), id, pa.Digest)
		}

		return Outcome{DocID: id, Action: ActionSkip, Path: path, SkipReason: string(d.Reason)}, nil

	case decision.CopyAtoB:
		action := ActionCopyToVault2
		if pb != nil {
			action = ActionAutoMergeVault2
		}

		if opts.Overpower {
			action = ActionOverpower
		}

		return copyDocument(fsys, driver, peer, id, pa, pb, action)

	case decision.CopyBtoA:
		action := ActionCopyToVault1
		if pa != nil {
			action = ActionAutoMergeVault1
		}

		if opts.Overpower {
			action = ActionOverpower
		}

		return copyDocument(fsys, peer, driver, id, pb, pa, action)

	case decision.AutoUseA:
		return copyDocument(fsys, driver, peer, id, pa, pb, ActionAutoMergeVault2)

	case decision.AutoUseB:
		return copyDocument(fsys, peer, driver, id, pb, pa, ActionAutoMergeVault1)

	case decision.Conflict:
		return resolveConflict(fsys, driver, peer, id, pa, pb, opts)
	}

	return Outcome{DocID: id, Action: ActionSkip}, nil
}

// copyDocument copies the source vault's document onto the destination
// vault at the source's path (creating it if dstEntry is nil, overwriting if
// present), keeping the destination's own local frontmatter keys, then
// records the resulting digest as both sides' new baseline. When dstEntry
// sits at a different path, that file is left in place and reported in the
// outcome's StrandedPath.
func copyDocument(fsys vfs.FS, src, dst *Vault, id docid.DocID, srcEntry, dstEntry *index.Entry, action Action) (Outcome, error) {
	path := srcEntry.Path

	stranded := ""
	if dstEntry != nil && dstEntry.Path != path {
		stranded = dstEntry.Path
	}

	raw, err := fsys.ReadFile(src.docPath(srcEntry.Path))
	if err != nil {
		return Outcome{}, newError(KindWriteFailure, src.Root, srcEntry.Path, err)
	}

	doc, err := fm.Parse(raw)
	if err != nil {
		return Outcome{}, newError(KindMalformedFrontmatter, src.Root, srcEntry.Path, err)
	}

	if dstEntry != nil && doc.Frontmatter != nil {
		dstRaw, err := fsys.ReadFile(dst.docPath(dstEntry.Path))
		if err != nil {
			return Outcome{}, newError(KindWriteFailure, dst.Root, dstEntry.Path, err)
		}

		dstDoc, err := fm.Parse(dstRaw)
		if err != nil {
			return Outcome{}, newError(KindMalformedFrontmatter, dst.Root, dstEntry.Path, err)
		}

		if dstDoc.Frontmatter != nil {
			doc.Frontmatter.Local = dstDoc.Frontmatter.Local
		}
	}

	out, err := fm.Format(doc)
	if err != nil {
		return Outcome{}, newError(KindWriteFailure, src.Root, srcEntry.Path, err)
	}

	dstPath := dst.docPath(path)

	if err := fsys.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return Outcome{}, newError(KindWriteFailure, dst.Root, path, err)
	}

	if err := vfs.NewAtomicWriter(fsys).WriteBytes(dstPath, out); err != nil {
		return Outcome{}, newError(KindWriteFailure, dst.Root, path, err)
	}

	info, err := fsys.Stat(dstPath)
	if err != nil {
		return Outcome{}, newError(KindWriteFailure, dst.Root, path, err)
	}

	digest := content.Digest(doc.Body)

	newEntry := index.Entry{
		Path:        path,
		Digest:      digest,
		Membership:  doc.Frontmatter.CastVaults,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		CastType:    doc.Frontmatter.CastType,
		CastVersion: doc.Frontmatter.CastVersion,
	}

	dst.Index.Upsert(id, newEntry)

	srcCurrent, _ := src.Index.LookupByID(id)
	srcCurrent.Path = srcEntry.Path
	srcCurrent.Digest = digest
	src.Index.Upsert(id, srcCurrent)

	src.SyncState.Put(dst.ID(), id, digest)
	dst.SyncState.Put(src.ID(), id, digest)

	return Outcome{DocID: id, Action: action, Path: path, StrandedPath: stranded}, nil
}

// resolveConflict handles a both-sides-changed decision by either deferring
// to an interactive resolver or writing a three-way merge with inline
// conflict markers to the peer's copy only.
func resolveConflict(fsys vfs.FS, driver, peer *Vault, id docid.DocID, pa, pb *index.Entry, opts SyncOptions) (Outcome, error) {
	resolution := ResolveMerge
	if opts.Resolve != nil {
		resolution = opts.Resolve(id, pa.Path, pb.Path)
	}

	switch resolution {
	case ResolveUseDriver:
		return copyDocument(fsys, driver, peer, id, pa, pb, ActionUseVault1)
	case ResolveUsePeer:
		return copyDocument(fsys, peer, driver, id, pb, pa, ActionUseVault2)
	case ResolveSkip:
		return Outcome{DocID: id, Action: ActionSkip, Path: pa.Path, SkipReason: "conflict-deferred"}, nil
	}

	rawA, err := fsys.ReadFile(driver.docPath(pa.Path))
	if err != nil {
		return Outcome{}, newError(KindWriteFailure, driver.Root, pa.Path, err)
	}

	rawB, err := fsys.ReadFile(peer.docPath(pb.Path))
	if err != nil {
		return Outcome{}, newError(KindWriteFailure, peer.Root, pb.Path, err)
	}

	docA, err := fm.Parse(rawA)
	if err != nil {
		return Outcome{}, newError(KindMalformedFrontmatter, driver.Root, pa.Path, err)
	}

	docB, err := fm.Parse(rawB)
	if err != nil {
		return Outcome{}, newError(KindMalformedFrontmatter, peer.Root, pb.Path, err)
	}

	mergedBody, hasConflict := merge.Merge(docA.Body, docB.Body)
	if !hasConflict {
		// The bodies actually agree (only frontmatter or whitespace framing
		// differed); fall through as an automatic driver-wins resolution
		// rather than manufacturing a conflict marker nobody needs.
		return copyDocument(fsys, driver, peer, id, pa, pb, ActionAutoMergeVault2)
	}

	// The merged/marker-carrying body is written only to the destination
	// (the peer); the driver's own file is left untouched, matching a
	// single-destination write for every other decision kind.
	docB.Body = mergedBody

	outB, err := fm.Format(docB)
	if err != nil {
		return Outcome{}, newError(KindWriteFailure, peer.Root, pb.Path, err)
	}

	if err := vfs.NewAtomicWriter(fsys).WriteBytes(peer.docPath(pb.Path), outB); err != nil {
		return Outcome{}, newError(KindMergeUnresolved, peer.Root, pb.Path, err)
	}

	if err := refreshEntry(fsys, peer, id, pb.Path, docB); err != nil {
		return Outcome{}, err
	}

	// Deliberately do not update either side's sync-state baseline: the
	// merge markers leave the document in a still-conflicting state until
	// an operator edits them out and re-syncs.
	return Outcome{DocID: id, Action: ActionConflict, Path: pb.Path}, nil
}

// refreshEntry re-stats a just-rewritten document and records its new
// digest and metadata in v's in-memory index, so the index persisted at the
// end of the run reflects what is actually on disk instead of a stale
// pre-merge digest.
func refreshEntry(fsys vfs.FS, v *Vault, id docid.DocID, path string, doc *fm.Document) error {
	info, err := fsys.Stat(v.docPath(path))
	if err != nil {
		return newError(KindWriteFailure, v.Root, path, err)
	}

	v.Index.Upsert(id, index.Entry{
		Path:        path,
		Digest:      content.Digest(doc.Body),
		Membership:  doc.Frontmatter.CastVaults,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		CastType:    doc.Frontmatter.CastType,
		CastVersion: doc.Frontmatter.CastVersion,
	})

	return nil
}
