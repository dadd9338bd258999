package engine

import (
	"fmt"
	"path/filepath"

	"github.com/cast-sync/cast/internal/index"
	"github.com/cast-sync/cast/internal/selector"
	"github.com/cast-sync/cast/internal/syncstate"
	"github.com/cast-sync/cast/internal/vault"
	"github.com/cast-sync/cast/internal/vfs"
)

// Vault is an opened, loaded vault: its config, its current index and its
// sync-state store, all addressable by root path.
type Vault struct {
	Root      string
	Config    *vault.Config
	Index     *index.Index
	SyncState *syncstate.Store
}

// ID returns the vault's configured identifier (vault.id in config.yaml).
func (v *Vault) ID() string {
	return v.Config.Vault.ID
}

// Open loads a vault's config, index and sync-state from disk. A missing
// index or sync-state file is not an error (both degrade to empty); a
// missing or invalid config is fatal: the orchestrator aborts before any
// write.
func Open(fsys vfs.FS, root string) (*Vault, error) {
	cfg, err := vault.LoadConfig(fsys, root)
	if err != nil {
		return nil, newError(KindConfigError, root, "", err)
	}

	idx, err := index.Load(fsys, cfg.Root)
	if err != nil {
		return nil, newError(KindConfigError, root, "", fmt.Errorf("load index: %w", err))
	}

	state, err := syncstate.Load(fsys, cfg.Root)
	if err != nil {
		return nil, newError(KindConfigError, root, "", fmt.Errorf("load sync state: %w", err))
	}

	return &Vault{Root: cfg.Root, Config: cfg, Index: idx, SyncState: state}, nil
}

// Selector builds the vault's document selector from its config.
func (v *Vault) Selector() *selector.Selector {
	return selector.New(v.Config.Index.Include, v.Config.Index.Exclude)
}

// IndexResult is the outcome of (re)indexing a single vault.
type IndexResult struct {
	Build index.BuildResult
}

// IndexVault rebuilds v's index (incrementally unless rebuild is true),
// persists it, and updates v.Index in place. A DocId shared by two paths is
// not fatal: Build already excludes it from the index entirely and reports
// it in the result's Duplicates, so the rest of the vault (and any other
// vault in the same sync_all run) is indexed and reconciled normally.
func IndexVault(fsys vfs.FS, v *Vault, rebuild, autoFix bool) (IndexResult, error) {
	next, result, err := index.Build(fsys, v.Root, v.Selector(), rebuild, autoFix)
	if err != nil {
		return IndexResult{}, newError(KindWriteFailure, v.Root, "", fmt.Errorf("build index: %w", err))
	}

	if err := next.SaveAtomic(fsys, v.Root); err != nil {
		return IndexResult{}, newError(KindWriteFailure, v.Root, "", fmt.Errorf("save index: %w", err))
	}

	v.Index = next

	return IndexResult{Build: result}, nil
}

// docPath joins v.Root with a vault-relative, slash-separated path.
func (v *Vault) docPath(rel string) string {
	return filepath.Join(v.Root, filepath.FromSlash(rel))
}
