package session

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/tau/pkg/models"
)

const graphPreviewLen = 40

// ExportGraph renders entries as either Graphviz DOT or Mermaid,
// chosen by the destination file's extension: ".dot" selects DOT,
// anything else selects Mermaid (`graph TD`).
func ExportGraph(entries []models.SessionEntry, destPath string) string {
	if strings.HasSuffix(strings.ToLower(destPath), ".dot") {
		return exportDOT(entries)
	}
	return exportMermaid(entries)
}

func nodeLabel(entry models.SessionEntry) string {
	preview := entry.Message.Text()
	preview = strings.ReplaceAll(preview, "\n", " ")
	if runes := []rune(preview); len(runes) > graphPreviewLen {
		preview = string(runes[:graphPreviewLen]) + "..."
	}
	return fmt.Sprintf("%d: %s | %s", entry.ID, entry.Message.Role, preview)
}

func exportMermaid(entries []models.SessionEntry) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, entry := range entries {
		label := escapeMermaid(nodeLabel(entry))
		sb.WriteString(fmt.Sprintf("    n%d[%q]\n", entry.ID, label))
	}
	for _, entry := range entries {
		if entry.ParentID != nil {
			sb.WriteString(fmt.Sprintf("    n%d --> n%d\n", *entry.ParentID, entry.ID))
		}
	}
	return sb.String()
}

func exportDOT(entries []models.SessionEntry) string {
	var sb strings.Builder
	sb.WriteString("digraph session {\n")
	for _, entry := range entries {
		label := escapeDOT(nodeLabel(entry))
		sb.WriteString(fmt.Sprintf("    n%d [label=\"%s\"];\n", entry.ID, label))
	}
	for _, entry := range entries {
		if entry.ParentID != nil {
			sb.WriteString(fmt.Sprintf("    n%d -> n%d;\n", *entry.ParentID, entry.ID))
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func escapeMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, `#quot;`)
	return s
}

func escapeDOT(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
