package session

import (
	"strings"
	"testing"

	"github.com/haasonsaas/tau/pkg/models"
)

func sampleEntries() []models.SessionEntry {
	one := uint64(1)
	return []models.SessionEntry{
		{ID: 1, Message: models.NewTextMessage(models.RoleSystem, "you are helpful")},
		{ID: 2, ParentID: &one, Message: models.NewTextMessage(models.RoleUser, "hello")},
	}
}

func TestExportGraphMermaidByDefault(t *testing.T) {
	out := ExportGraph(sampleEntries(), "session.graph")
	if !strings.HasPrefix(out, "graph TD") {
		t.Fatalf("expected mermaid output, got: %s", out)
	}
	if !strings.Contains(out, "n1 --> n2") {
		t.Fatalf("expected edge n1 --> n2, got: %s", out)
	}
}

func TestExportGraphDOTByExtension(t *testing.T) {
	out := ExportGraph(sampleEntries(), "session.dot")
	if !strings.HasPrefix(out, "digraph session") {
		t.Fatalf("expected DOT output, got: %s", out)
	}
	if !strings.Contains(out, "n1 -> n2;") {
		t.Fatalf("expected edge n1 -> n2;, got: %s", out)
	}
}

func TestValidateCyclesDetected(t *testing.T) {
	a := uint64(2)
	b := uint64(1)
	entries := []models.SessionEntry{
		{ID: 1, ParentID: &a, Message: models.NewTextMessage(models.RoleUser, "x")},
		{ID: 2, ParentID: &b, Message: models.NewTextMessage(models.RoleUser, "y")},
	}
	report := validate(entries)
	if report.Cycles != 2 {
		t.Fatalf("Cycles = %d, want 2", report.Cycles)
	}
	if report.IsValid() {
		t.Fatal("expected invalid report for cyclic graph")
	}
}
