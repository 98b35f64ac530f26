package session

import (
	"fmt"
	"os"
	"sort"

	"github.com/haasonsaas/tau/pkg/models"
)

// Store is a handle to one session's entry graph, bound to a backend
// and a cross-process file lock. All mutating operations acquire the
// lock for their duration; read-only operations do not.
type Store struct {
	path    string
	backend backend
	lock    *fileLock
	lockCfg LockConfig
}

// BackendKind selects which storage backend a Load call binds to.
type BackendKind string

const (
	BackendJSONL    BackendKind = ""
	BackendSQLite   BackendKind = "sqlite"
	BackendPostgres BackendKind = "postgres"
)

// LoadOptions configures backend selection for Load. Kind defaults to
// BackendJSONL. DSN is required for sqlite/postgres; Namespace scopes
// entries within a shared DB backend (defaults to path).
type LoadOptions struct {
	Kind      BackendKind
	DSN       string
	Namespace string
	LockCfg   LockConfig
}

// BackendKindFromEnv maps the TAU_SESSION_BACKEND environment value to
// a BackendKind, per the documented selection rule: unset -> JSONL,
// "sqlite" -> SQLite, "postgres" -> Postgres.
func BackendKindFromEnv(getenv func(string) string) BackendKind {
	switch getenv("TAU_SESSION_BACKEND") {
	case "sqlite":
		return BackendSQLite
	case "postgres":
		return BackendPostgres
	default:
		return BackendJSONL
	}
}

// Load opens or creates the store at path, establishing schema version
// on first write. The returned Store is bound to path for locking
// purposes regardless of backend.
func Load(path string, opts LoadOptions) (*Store, error) {
	if opts.LockCfg == (LockConfig{}) {
		opts.LockCfg = DefaultLockConfig
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = path
	}

	var b backend
	var err error
	switch opts.Kind {
	case BackendSQLite:
		b, err = newSQLiteBackend(opts.DSN, namespace)
	case BackendPostgres:
		b, err = newPostgresBackend(opts.DSN, namespace)
	default:
		b = newJSONLBackend(path)
	}
	if err != nil {
		return nil, fmt.Errorf("session: load backend: %w", err)
	}

	return &Store{path: path, backend: b, lock: newFileLock(path), lockCfg: opts.LockCfg}, nil
}

// Close releases backend resources (DB handles). It does not remove
// the file lock sentinel, which is only ever held transiently.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) withLock(fn func() error) error {
	if err := s.lock.Acquire(s.lockCfg); err != nil {
		return err
	}
	defer s.lock.Release()
	return fn()
}

// EnsureInitialized inserts a single root system message if the
// session is empty, and returns the current head id, if any.
func (s *Store) EnsureInitialized(systemPrompt string) (*uint64, error) {
	var head *uint64
	err := s.withLock(func() error {
		entries, err := s.backend.Load()
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			h := maxID(entries)
			head = &h
			return nil
		}
		root := models.SessionEntry{ID: 1, Message: models.NewTextMessage(models.RoleSystem, systemPrompt)}
		if err := s.backend.Append([]models.SessionEntry{root}); err != nil {
			return err
		}
		h := uint64(1)
		head = &h
		return nil
	})
	return head, err
}

// AppendMessages chains each message onto parentHead in sequence,
// allocating ids after the current maximum, and returns the id of the
// last appended entry.
func (s *Store) AppendMessages(parentHead *uint64, messages []models.Message) (uint64, error) {
	var newHead uint64
	err := s.withLock(func() error {
		entries, err := s.backend.Load()
		if err != nil {
			return err
		}
		if parentHead != nil && !containsID(entries, *parentHead) {
			return fmt.Errorf("session: unknown parent head %d", *parentHead)
		}

		next := maxID(entries) + 1
		parent := parentHead
		fresh := make([]models.SessionEntry, 0, len(messages))
		for _, msg := range messages {
			entry := models.SessionEntry{ID: next, ParentID: copyUint64(parent), Message: msg}
			fresh = append(fresh, entry)
			id := next
			parent = &id
			next++
		}
		if err := s.backend.Append(fresh); err != nil {
			return err
		}
		newHead = *parent
		return nil
	})
	return newHead, err
}

// LineageMessages returns the root-to-head message sequence. It fails
// if head is unknown or the lineage contains a cycle.
func (s *Store) LineageMessages(head uint64) ([]models.Message, error) {
	entries, err := s.backend.Load()
	if err != nil {
		return nil, err
	}
	chain, err := lineageEntries(entries, head)
	if err != nil {
		return nil, err
	}
	messages := make([]models.Message, len(chain))
	for i, e := range chain {
		messages[i] = e.Message
	}
	return messages, nil
}

// Contains reports whether id exists in the session.
func (s *Store) Contains(id uint64) (bool, error) {
	entries, err := s.backend.Load()
	if err != nil {
		return false, err
	}
	return containsID(entries, id), nil
}

// HeadID returns the highest allocated id, if any entries exist.
func (s *Store) HeadID() (*uint64, error) {
	entries, err := s.backend.Load()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	h := maxID(entries)
	return &h, nil
}

// Entries returns every entry currently on disk, in id order.
func (s *Store) Entries() ([]models.SessionEntry, error) {
	entries, err := s.backend.Load()
	if err != nil {
		return nil, err
	}
	sorted := append([]models.SessionEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted, nil
}

// ValidationReport inspects the entry graph for duplicate ids, entries
// whose parent does not exist, and cycle participants.
func (s *Store) ValidationReport() (models.SessionValidationReport, error) {
	entries, err := s.backend.Load()
	if err != nil {
		return models.SessionValidationReport{}, err
	}
	return validate(entries), nil
}

// Repair removes duplicate ids (keeping the first occurrence), entries
// with missing parents, and entries participating in a cycle. The
// prior file is backed up before the repaired set is written.
func (s *Store) Repair() (models.RepairReport, error) {
	var report models.RepairReport
	err := s.withLock(func() error {
		entries, err := s.backend.Load()
		if err != nil {
			return err
		}

		kept, dupIDs, invalidParentIDs, cycleIDs := repairEntries(entries)

		backup := backupPath(s.path)
		if raw, err := os.ReadFile(s.path); err == nil {
			if werr := os.WriteFile(backup, raw, 0o644); werr != nil {
				return fmt.Errorf("session: backup before repair: %w", werr)
			}
		}

		if err := s.backend.Replace(kept); err != nil {
			return err
		}
		report = models.RepairReport{
			RemovedDuplicateIDs:     dupIDs,
			RemovedInvalidParentIDs: invalidParentIDs,
			RemovedCycleIDs:         cycleIDs,
			BackupPath:              backup,
		}
		return nil
	})
	return report, err
}

// CompactToLineage retains only entries on the lineage to head,
// rewriting the file atomically.
func (s *Store) CompactToLineage(head uint64) (models.CompactReport, error) {
	var report models.CompactReport
	err := s.withLock(func() error {
		entries, err := s.backend.Load()
		if err != nil {
			return err
		}
		chain, err := lineageEntries(entries, head)
		if err != nil {
			return err
		}
		if err := s.backend.Replace(chain); err != nil {
			return err
		}
		kept := make([]uint64, len(chain))
		for i, e := range chain {
			kept[i] = e.ID
		}
		report = models.CompactReport{KeptIDs: kept, Head: head}
		return nil
	})
	return report, err
}

// Import folds otherEntries into the session. In merge mode, id
// collisions are remapped to fresh ids and parent references rewritten
// accordingly. In replace mode, the current entries are discarded.
func (s *Store) Import(otherEntries []models.SessionEntry, mode models.ImportMode) (models.ImportReport, error) {
	var report models.ImportReport
	err := s.withLock(func() error {
		current, err := s.backend.Load()
		if err != nil {
			return err
		}

		switch mode {
		case models.ImportReplace:
			if err := s.backend.Replace(otherEntries); err != nil {
				return err
			}
			var head *uint64
			if len(otherEntries) > 0 {
				h := maxID(otherEntries)
				head = &h
			}
			report = models.ImportReport{
				ReplacedCount:  len(current),
				ImportedCount:  len(otherEntries),
				ResultingCount: len(otherEntries),
				Head:           head,
			}
			return nil
		default: // models.ImportMerge
			next := maxID(current) + 1
			if above := maxID(otherEntries) + 1; above > next {
				next = above
			}
			remapped := make(map[uint64]uint64, len(otherEntries))
			remappedEntries := make([]models.SessionEntry, 0, len(otherEntries))
			for _, e := range otherEntries {
				newID := e.ID
				if containsID(current, newID) || remapped[newID] != 0 {
					newID = next
					next++
				}
				remapped[e.ID] = newID
				remappedEntries = append(remappedEntries, models.SessionEntry{ID: newID, ParentID: e.ParentID, Message: e.Message})
			}
			for i, e := range remappedEntries {
				if e.ParentID == nil {
					continue
				}
				if mappedParent, ok := remapped[*e.ParentID]; ok {
					p := mappedParent
					remappedEntries[i].ParentID = &p
				}
			}
			if err := s.backend.Append(remappedEntries); err != nil {
				return err
			}
			var head *uint64
			all := append(append([]models.SessionEntry(nil), current...), remappedEntries...)
			if len(all) > 0 {
				h := maxID(all)
				head = &h
			}
			report = models.ImportReport{
				ImportedCount:  len(remappedEntries),
				Remapped:       remapped,
				ResultingCount: len(all),
				Head:           head,
			}
			return nil
		}
	})
	return report, err
}

// MergeBranches computes the lowest common ancestor of sourceHead and
// targetHead, then combines them per strategy.
func (s *Store) MergeBranches(sourceHead, targetHead uint64, strategy models.MergeStrategy) (models.BranchMergeReport, error) {
	var report models.BranchMergeReport
	err := s.withLock(func() error {
		entries, err := s.backend.Load()
		if err != nil {
			return err
		}
		sourceChain, err := lineageEntries(entries, sourceHead)
		if err != nil {
			return fmt.Errorf("session: source lineage: %w", err)
		}
		targetChain, err := lineageEntries(entries, targetHead)
		if err != nil {
			return fmt.Errorf("session: target lineage: %w", err)
		}

		ancestor := lowestCommonAncestor(sourceChain, targetChain)
		sourceUnique := uniqueAfter(sourceChain, ancestor)

		report = models.BranchMergeReport{
			SourceHead:     sourceHead,
			TargetHead:     targetHead,
			Strategy:       strategy,
			CommonAncestor: ancestor,
		}

		switch strategy {
		case models.MergeFastForward:
			if !isSubsetOf(targetChain, sourceChain) {
				return fmt.Errorf("session: fast-forward requires target to be a subset of source")
			}
			report.MergedHead = sourceHead
			return nil

		case models.MergeSquash:
			if len(sourceUnique) == 0 {
				report.MergedHead = targetHead
				return nil
			}
			synthetic := squash(sourceUnique)
			next := maxID(entries) + 1
			newEntry := models.SessionEntry{ID: next, ParentID: &targetHead, Message: synthetic}
			if err := s.backend.Append([]models.SessionEntry{newEntry}); err != nil {
				return err
			}
			report.AppendedEntries = 1
			report.MergedHead = next
			return nil

		default: // models.MergeAppend
			next := maxID(entries) + 1
			parent := targetHead
			fresh := make([]models.SessionEntry, 0, len(sourceUnique))
			for _, e := range sourceUnique {
				newEntry := models.SessionEntry{ID: next, ParentID: &parent, Message: e.Message}
				fresh = append(fresh, newEntry)
				parent = next
				next++
			}
			if len(fresh) > 0 {
				if err := s.backend.Append(fresh); err != nil {
					return err
				}
			}
			report.AppendedEntries = len(fresh)
			if len(fresh) > 0 {
				report.MergedHead = parent
			} else {
				report.MergedHead = targetHead
			}
			return nil
		}
	})
	return report, err
}

func copyUint64(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
