// Package syncstate implements the per-vault baseline store: the last
// synced digest for each (peer, document) pair. This is the sole baseline
// used by the decision engine. There is no separate sync history.
package syncstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cast-sync/cast/internal/docid"
	"github.com/cast-sync/cast/internal/vfs"
)

// Path is the vault-relative location of the sync-state file.
const Path = ".cast/sync_state.json"

// Store maps peer vault id -> doc id -> last-synced digest.
type Store struct {
	peers map[string]map[docid.DocID]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{peers: map[string]map[docid.DocID]string{}}
}

// Load reads the sync-state file at <root>/.cast/sync_state.json. A missing
// file is not an error: it returns an empty Store.
func Load(fsys vfs.FS, root string) (*Store, error) {
	data, err := fsys.ReadFile(filepath.Join(root, filepath.FromSlash(Path)))
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}

		return nil, fmt.Errorf("read sync state: %w", err)
	}

	var raw map[string]map[docid.DocID]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse sync state: %w", err)
	}

	if raw == nil {
		raw = map[string]map[docid.DocID]string{}
	}

	return &Store{peers: raw}, nil
}

// Get returns the baseline digest recorded for (peerID, id), if any.
func (s *Store) Get(peerID string, id docid.DocID) (string, bool) {
	digests, ok := s.peers[peerID]
	if !ok {
		return "", false
	}

	d, ok := digests[id]

	return d, ok
}

// Put records the baseline digest for (peerID, id).
func (s *Store) Put(peerID string, id docid.DocID, digest string) {
	if s.peers[peerID] == nil {
		s.peers[peerID] = map[docid.DocID]string{}
	}

	s.peers[peerID][id] = digest
}

// SaveAtomic serializes and atomically writes the store.
func (s *Store) SaveAtomic(fsys vfs.FS, root string) error {
	data, err := json.MarshalIndent(s.peers, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sync state: %w", err)
	}

	data = append(data, '\n')

	statePath := filepath.Join(root, filepath.FromSlash(Path))
	if err := fsys.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
		return fmt.Errorf("create .cast dir: %w", err)
	}

	w := vfs.NewAtomicWriter(fsys)

	return w.WriteBytes(statePath, data)
}
