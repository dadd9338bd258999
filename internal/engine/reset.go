package engine

import (
	"fmt"
	"path/filepath"

	"github.com/cast-sync/cast/internal/index"
	"github.com/cast-sync/cast/internal/syncstate"
	"github.com/cast-sync/cast/internal/vault"
	"github.com/cast-sync/cast/internal/vfs"
)

// Reset clears a vault's index and sync-state, forcing the next sync_all or
// index operation to rebuild from scratch and re-derive every baseline.
// Document bodies and frontmatter are never touched. When keepConfig is
// false, config.yaml is removed too, returning the directory to an
// unconfigured vault; locks are always removed since a stale lock file from
// a prior crashed run should never persist past a reset.
func Reset(fsys vfs.FS, root string, keepConfig bool) error {
	cfg, err := vault.LoadConfig(fsys, root)
	if err != nil {
		return newError(KindConfigError, root, "", err)
	}

	remove := []string{
		filepath.Join(cfg.Root, filepath.FromSlash(index.Path)),
		filepath.Join(cfg.Root, filepath.FromSlash(syncstate.Path)),
	}

	if !keepConfig {
		remove = append(remove, filepath.Join(cfg.Root, filepath.FromSlash(vault.ConfigPath)))
	}

	for _, path := range remove {
		exists, err := fsys.Exists(path)
		if err != nil {
			return newError(KindWriteFailure, root, path, fmt.Errorf("reset: %w", err))
		}

		if !exists {
			continue
		}

		if err := fsys.Remove(path); err != nil {
			return newError(KindWriteFailure, root, path, fmt.Errorf("reset: %w", err))
		}
	}

	locksDir := filepath.Join(cfg.Root, ".cast", "locks")
	if err := fsys.RemoveAll(locksDir); err != nil {
		return newError(KindWriteFailure, root, locksDir, fmt.Errorf("reset locks dir: %w", err))
	}

	return nil
}
