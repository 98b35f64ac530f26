package session

import (
	"fmt"

	"github.com/haasonsaas/tau/pkg/models"
)

func indexByID(entries []models.SessionEntry) map[uint64]models.SessionEntry {
	byID := make(map[uint64]models.SessionEntry, len(entries))
	for _, e := range entries {
		if _, dup := byID[e.ID]; dup {
			continue // first occurrence wins, matching repair semantics
		}
		byID[e.ID] = e
	}
	return byID
}

func containsID(entries []models.SessionEntry, id uint64) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

func maxID(entries []models.SessionEntry) uint64 {
	var max uint64
	for _, e := range entries {
		if e.ID > max {
			max = e.ID
		}
	}
	return max
}

// lineageEntries walks parent links from head back to the root,
// returning entries in root-to-head order. It fails if head is
// unknown or the walk revisits an id (a cycle).
func lineageEntries(entries []models.SessionEntry, head uint64) ([]models.SessionEntry, error) {
	byID := indexByID(entries)
	entry, ok := byID[head]
	if !ok {
		return nil, fmt.Errorf("session: unknown head %d", head)
	}

	var chain []models.SessionEntry
	seen := make(map[uint64]bool)
	for {
		if seen[entry.ID] {
			return nil, fmt.Errorf("session: cycle detected at entry %d", entry.ID)
		}
		seen[entry.ID] = true
		chain = append(chain, entry)
		if entry.ParentID == nil {
			break
		}
		next, ok := byID[*entry.ParentID]
		if !ok {
			return nil, fmt.Errorf("session: missing parent %d for entry %d", *entry.ParentID, entry.ID)
		}
		entry = next
	}

	// reverse to root-to-head order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// validate reports duplicate ids, entries with a missing parent, and
// entries participating in a cycle.
func validate(entries []models.SessionEntry) models.SessionValidationReport {
	report := models.SessionValidationReport{Entries: len(entries)}

	seenIDs := make(map[uint64]bool, len(entries))
	byID := make(map[uint64]models.SessionEntry, len(entries))
	for _, e := range entries {
		if seenIDs[e.ID] {
			report.Duplicates++
			continue
		}
		seenIDs[e.ID] = true
		byID[e.ID] = e
	}

	for id, e := range byID {
		if e.ParentID == nil {
			continue
		}
		if _, ok := byID[*e.ParentID]; !ok {
			report.InvalidParent++
			continue
		}
		_ = id
	}

	report.Cycles = countCycleParticipants(byID)
	return report
}

// countCycleParticipants walks each entry's ancestor chain (skipping
// entries already known to reach a root without revisiting a node) and
// counts how many entries are part of a cycle.
func countCycleParticipants(byID map[uint64]models.SessionEntry) int {
	status := make(map[uint64]int, len(byID)) // 0=unvisited,1=in-progress,2=acyclic,3=cyclic
	count := 0

	var visit func(id uint64, path map[uint64]bool) bool
	visit = func(id uint64, path map[uint64]bool) bool {
		switch status[id] {
		case 2:
			return false
		case 3:
			return true
		}
		if path[id] {
			status[id] = 3
			return true
		}
		entry, ok := byID[id]
		if !ok {
			status[id] = 2
			return false
		}
		path[id] = true
		cyclic := false
		if entry.ParentID != nil {
			if _, ok := byID[*entry.ParentID]; ok {
				cyclic = visit(*entry.ParentID, path)
			}
		}
		delete(path, id)
		if cyclic {
			status[id] = 3
		} else {
			status[id] = 2
		}
		return cyclic
	}

	for id := range byID {
		if visit(id, map[uint64]bool{}) {
			count++
		}
	}
	return count
}

// repairEntries returns the entries to keep plus the ids removed for
// each defect category, applying removals in the documented order:
// duplicates first (keeping first occurrence), then missing-parent
// entries, then cycle participants.
func repairEntries(entries []models.SessionEntry) (kept []models.SessionEntry, dupIDs, invalidParentIDs, cycleIDs []uint64) {
	seen := make(map[uint64]bool, len(entries))
	var deduped []models.SessionEntry
	for _, e := range entries {
		if seen[e.ID] {
			dupIDs = append(dupIDs, e.ID)
			continue
		}
		seen[e.ID] = true
		deduped = append(deduped, e)
	}

	byID := indexByID(deduped)
	var parentValid []models.SessionEntry
	for _, e := range deduped {
		if e.ParentID != nil {
			if _, ok := byID[*e.ParentID]; !ok {
				invalidParentIDs = append(invalidParentIDs, e.ID)
				continue
			}
		}
		parentValid = append(parentValid, e)
	}

	validByID := indexByID(parentValid)
	cyclicIDs := map[uint64]bool{}
	for id := range validByID {
		if cyclicParticipant(id, validByID) {
			cyclicIDs[id] = true
		}
	}
	for _, e := range parentValid {
		if cyclicIDs[e.ID] {
			cycleIDs = append(cycleIDs, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	return kept, dupIDs, invalidParentIDs, cycleIDs
}

func cyclicParticipant(start uint64, byID map[uint64]models.SessionEntry) bool {
	seen := map[uint64]bool{}
	current := start
	for {
		if seen[current] {
			return true
		}
		seen[current] = true
		entry, ok := byID[current]
		if !ok || entry.ParentID == nil {
			return false
		}
		current = *entry.ParentID
	}
}

// lowestCommonAncestor returns the id of the deepest entry present in
// both root-to-head chains, or nil if the chains share no entry (they
// belong to different roots).
func lowestCommonAncestor(a, b []models.SessionEntry) *uint64 {
	inB := make(map[uint64]bool, len(b))
	for _, e := range b {
		inB[e.ID] = true
	}
	var ancestor *uint64
	for _, e := range a {
		if inB[e.ID] {
			id := e.ID
			ancestor = &id
		}
	}
	return ancestor
}

// uniqueAfter returns the entries in chain that come strictly after
// ancestor (or the whole chain if ancestor is nil).
func uniqueAfter(chain []models.SessionEntry, ancestor *uint64) []models.SessionEntry {
	if ancestor == nil {
		return chain
	}
	for i, e := range chain {
		if e.ID == *ancestor {
			return chain[i+1:]
		}
	}
	return chain
}

// isSubsetOf reports whether every entry id in a also appears in b.
func isSubsetOf(a, b []models.SessionEntry) bool {
	inB := make(map[uint64]bool, len(b))
	for _, e := range b {
		inB[e.ID] = true
	}
	for _, e := range a {
		if !inB[e.ID] {
			return false
		}
	}
	return true
}

// squash collapses a sequence of entries into a single synthetic
// assistant message summarizing their text content.
func squash(entries []models.SessionEntry) models.Message {
	var text string
	for i, e := range entries {
		if i > 0 {
			text += "\n"
		}
		text += fmt.Sprintf("[%s] %s", e.Message.Role, e.Message.Text())
	}
	return models.NewTextMessage(models.RoleAssistant, text)
}
