package models

// SessionEntry is one node in a session's append-only message graph.
// Entries are immutable once written; they are removed only by repair
// or compaction (see internal/session).
type SessionEntry struct {
	ID       uint64   `json:"id"`
	ParentID *uint64  `json:"parent_id"`
	Message  Message  `json:"message"`
}

// SessionValidationReport summarizes the structural health of a
// session's entry graph. A session is valid when Duplicates,
// InvalidParent, and Cycles are all zero.
type SessionValidationReport struct {
	Entries       int `json:"entries"`
	Duplicates    int `json:"duplicates"`
	InvalidParent int `json:"invalid_parent"`
	Cycles        int `json:"cycles"`
}

// IsValid reports whether the session graph has no structural defects.
func (r SessionValidationReport) IsValid() bool {
	return r.Duplicates == 0 && r.InvalidParent == 0 && r.Cycles == 0
}

// RepairReport enumerates what a repair pass removed.
type RepairReport struct {
	RemovedDuplicateIDs   []uint64 `json:"removed_duplicate_ids"`
	RemovedInvalidParentIDs []uint64 `json:"removed_invalid_parent_ids"`
	RemovedCycleIDs       []uint64 `json:"removed_cycle_ids"`
	BackupPath            string   `json:"backup_path"`
}

// CompactReport describes the result of compacting a session to a
// single lineage.
type CompactReport struct {
	KeptIDs []uint64 `json:"kept_ids"`
	Head    uint64   `json:"head"`
}

// ImportMode selects how Store.Import folds foreign entries into the
// current session.
type ImportMode string

const (
	ImportMerge   ImportMode = "merge"
	ImportReplace ImportMode = "replace"
)

// ImportReport describes the outcome of an import operation.
type ImportReport struct {
	ImportedCount  int              `json:"imported_count"`
	Remapped       map[uint64]uint64 `json:"remapped"`
	ReplacedCount  int              `json:"replaced_count"`
	ResultingCount int              `json:"resulting_count"`
	Head           *uint64          `json:"head"`
}

// MergeStrategy selects how Store.MergeBranches combines two lineages.
type MergeStrategy string

const (
	MergeAppend      MergeStrategy = "append"
	MergeSquash      MergeStrategy = "squash"
	MergeFastForward MergeStrategy = "fast-forward"
)

// BranchMergeReport describes the outcome of a branch merge.
type BranchMergeReport struct {
	SourceHead      uint64        `json:"source_head"`
	TargetHead      uint64        `json:"target_head"`
	Strategy        MergeStrategy `json:"strategy"`
	CommonAncestor  *uint64       `json:"common_ancestor"`
	AppendedEntries int           `json:"appended_entries"`
	MergedHead      uint64        `json:"merged_head"`
}
