package session

import (
	"path/filepath"
	"testing"

	"github.com/haasonsaas/tau/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	store, err := Load(path, LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBranchAndCompact(t *testing.T) {
	store := newTestStore(t)

	head, err := store.EnsureInitialized("you are helpful")
	if err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	if head == nil || *head != 1 {
		t.Fatalf("head = %v, want 1", head)
	}

	head3, err := store.AppendMessages(head, []models.Message{
		models.NewTextMessage(models.RoleUser, "hello"),
		models.NewTextMessage(models.RoleAssistant, "hi"),
	})
	if err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}
	if head3 != 3 {
		t.Fatalf("head3 = %d, want 3", head3)
	}

	one := uint64(1)
	head4, err := store.AppendMessages(&one, []models.Message{
		models.NewTextMessage(models.RoleUser, "hola"),
	})
	if err != nil {
		t.Fatalf("AppendMessages branch: %v", err)
	}
	if head4 != 4 {
		t.Fatalf("head4 = %d, want 4", head4)
	}

	reportA, err := store.CompactToLineage(3)
	if err != nil {
		t.Fatalf("CompactToLineage(3): %v", err)
	}
	if got, want := idSet(reportA.KeptIDs), idSet([]uint64{1, 2, 3}); !equalSets(got, want) {
		t.Fatalf("CompactToLineage(3) kept = %v, want {1,2,3}", reportA.KeptIDs)
	}
}

func TestCompactToLineageOtherBranch(t *testing.T) {
	store := newTestStore(t)
	head, err := store.EnsureInitialized("you are helpful")
	if err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	if _, err := store.AppendMessages(head, []models.Message{
		models.NewTextMessage(models.RoleUser, "hello"),
		models.NewTextMessage(models.RoleAssistant, "hi"),
	}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}
	one := uint64(1)
	head4, err := store.AppendMessages(&one, []models.Message{
		models.NewTextMessage(models.RoleUser, "hola"),
	})
	if err != nil {
		t.Fatalf("AppendMessages branch: %v", err)
	}

	reportB, err := store.CompactToLineage(head4)
	if err != nil {
		t.Fatalf("CompactToLineage(head4): %v", err)
	}
	if got, want := idSet(reportB.KeptIDs), idSet([]uint64{1, 4}); !equalSets(got, want) {
		t.Fatalf("CompactToLineage(head4) kept = %v, want {1,4}", reportB.KeptIDs)
	}
}

func TestValidationReportDetectsDefects(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.EnsureInitialized("root"); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}

	// Inject defects directly via the backend, bypassing AppendMessages'
	// invariant checks, to exercise the validator.
	missing := uint64(999)
	defects := []models.SessionEntry{
		{ID: 1, Message: models.NewTextMessage(models.RoleSystem, "root")}, // duplicate of entry 1
		{ID: 2, ParentID: &missing, Message: models.NewTextMessage(models.RoleUser, "orphan")},
	}
	if err := store.backend.Append(defects); err != nil {
		t.Fatalf("inject defects: %v", err)
	}

	report, err := store.ValidationReport()
	if err != nil {
		t.Fatalf("ValidationReport: %v", err)
	}
	if report.IsValid() {
		t.Fatalf("expected invalid report, got %+v", report)
	}
	if report.Duplicates != 1 {
		t.Fatalf("Duplicates = %d, want 1", report.Duplicates)
	}
	if report.InvalidParent != 1 {
		t.Fatalf("InvalidParent = %d, want 1", report.InvalidParent)
	}
}

func TestRepairRemovesDefectsAndBacksUp(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.EnsureInitialized("root"); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	missing := uint64(999)
	defects := []models.SessionEntry{
		{ID: 1, Message: models.NewTextMessage(models.RoleSystem, "root")},
		{ID: 2, ParentID: &missing, Message: models.NewTextMessage(models.RoleUser, "orphan")},
	}
	if err := store.backend.Append(defects); err != nil {
		t.Fatalf("inject defects: %v", err)
	}

	report, err := store.Repair()
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if len(report.RemovedDuplicateIDs) != 1 {
		t.Fatalf("RemovedDuplicateIDs = %v, want 1 entry", report.RemovedDuplicateIDs)
	}
	if len(report.RemovedInvalidParentIDs) != 1 {
		t.Fatalf("RemovedInvalidParentIDs = %v, want 1 entry", report.RemovedInvalidParentIDs)
	}
	if report.BackupPath == "" {
		t.Fatal("expected non-empty backup path")
	}

	after, err := store.ValidationReport()
	if err != nil {
		t.Fatalf("ValidationReport after repair: %v", err)
	}
	if !after.IsValid() {
		t.Fatalf("expected valid report after repair, got %+v", after)
	}
}

func TestImportMergeRemapsCollidingIDs(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.EnsureInitialized("root"); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}

	foreign := []models.SessionEntry{
		{ID: 1, Message: models.NewTextMessage(models.RoleUser, "foreign root")},
		{ID: 2, ParentID: uint64Ptr(1), Message: models.NewTextMessage(models.RoleAssistant, "foreign reply")},
	}
	report, err := store.Import(foreign, models.ImportMerge)
	if err != nil {
		t.Fatalf("Import merge: %v", err)
	}
	if report.ImportedCount != 2 {
		t.Fatalf("ImportedCount = %d, want 2", report.ImportedCount)
	}
	if report.Remapped[1] == 1 {
		t.Fatalf("expected colliding id 1 to be remapped, got %d", report.Remapped[1])
	}

	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	report2 := validate(entries)
	if !report2.IsValid() {
		t.Fatalf("post-import graph invalid: %+v", report2)
	}
}

func TestImportReplaceDiscardsCurrent(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.EnsureInitialized("root"); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	replacement := []models.SessionEntry{
		{ID: 1, Message: models.NewTextMessage(models.RoleSystem, "new root")},
	}
	report, err := store.Import(replacement, models.ImportReplace)
	if err != nil {
		t.Fatalf("Import replace: %v", err)
	}
	if report.ResultingCount != 1 {
		t.Fatalf("ResultingCount = %d, want 1", report.ResultingCount)
	}

	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Message.Text() != "new root" {
		t.Fatalf("unexpected entries after replace: %+v", entries)
	}
}

func TestMergeBranchesAppend(t *testing.T) {
	store := newTestStore(t)
	head, _ := store.EnsureInitialized("root")
	targetHead, err := store.AppendMessages(head, []models.Message{models.NewTextMessage(models.RoleUser, "target msg")})
	if err != nil {
		t.Fatalf("AppendMessages target: %v", err)
	}
	sourceHead, err := store.AppendMessages(head, []models.Message{models.NewTextMessage(models.RoleUser, "source msg")})
	if err != nil {
		t.Fatalf("AppendMessages source: %v", err)
	}

	report, err := store.MergeBranches(sourceHead, targetHead, models.MergeAppend)
	if err != nil {
		t.Fatalf("MergeBranches: %v", err)
	}
	if report.AppendedEntries != 1 {
		t.Fatalf("AppendedEntries = %d, want 1", report.AppendedEntries)
	}
	if report.CommonAncestor == nil || *report.CommonAncestor != *head {
		t.Fatalf("CommonAncestor = %v, want %v", report.CommonAncestor, head)
	}
}

func TestMergeBranchesFastForwardRequiresSubset(t *testing.T) {
	store := newTestStore(t)
	head, _ := store.EnsureInitialized("root")
	sourceHead, err := store.AppendMessages(head, []models.Message{models.NewTextMessage(models.RoleUser, "one")})
	if err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	report, err := store.MergeBranches(sourceHead, *head, models.MergeFastForward)
	if err != nil {
		t.Fatalf("MergeBranches fast-forward: %v", err)
	}
	if report.MergedHead != sourceHead {
		t.Fatalf("MergedHead = %d, want %d", report.MergedHead, sourceHead)
	}

	otherHead, err := store.AppendMessages(head, []models.Message{models.NewTextMessage(models.RoleUser, "divergent")})
	if err != nil {
		t.Fatalf("AppendMessages divergent: %v", err)
	}
	if _, err := store.MergeBranches(sourceHead, otherHead, models.MergeFastForward); err == nil {
		t.Fatal("expected error merging divergent branches fast-forward")
	}
}

func idSet(ids []uint64) map[uint64]bool {
	s := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func equalSets(a, b map[uint64]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func uint64Ptr(v uint64) *uint64 { return &v }
