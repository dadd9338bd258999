package engine

import "github.com/cast-sync/cast/internal/docid"

// Action labels what happened to one document during a pairwise
// reconciliation, using the fixed label set.
type Action string

const (
	ActionCopyToVault1    Action = "COPY_TO_VAULT1"
	ActionCopyToVault2    Action = "COPY_TO_VAULT2"
	ActionAutoMergeVault1 Action = "AUTO_MERGE_VAULT1"
	ActionAutoMergeVault2 Action = "AUTO_MERGE_VAULT2"
	ActionOverpower       Action = "OVERPOWER"
	ActionUseVault1       Action = "USE_VAULT1"
	ActionUseVault2       Action = "USE_VAULT2"
	ActionConflict        Action = "CONFLICT"
	ActionSkip            Action = "SKIP"
)

// Outcome records one DocID's resolution within one vault pair.
type Outcome struct {
	DocID        docid.DocID
	Action       Action
	Path         string
	SkipReason   string `json:",omitempty"`
	StrandedPath string `json:",omitempty"` // set when a rename left the old path behind unhandled
}

// PeerResult is the outcome of reconciling the driving vault against one
// peer.
type PeerResult struct {
	PeerID    string
	Synced    int
	Conflicts int
	Ordered   []Outcome
}

// Result is sync_all's full outcome across every peer it reconciled.
type Result struct {
	Peers []*PeerResult
}
