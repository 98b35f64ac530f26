package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/tau/internal/timeutil"
	"github.com/haasonsaas/tau/pkg/models"
)

// jsonlMeta is the first line of a session file.
type jsonlMeta struct {
	SchemaVersion int `json:"schema_version"`
}

// jsonlBackend stores one meta line followed by one JSON entry per
// line. Reading tolerates a trailing blank line; malformed lines are
// reported rather than silently dropped.
type jsonlBackend struct {
	path string
}

func newJSONLBackend(path string) *jsonlBackend {
	return &jsonlBackend{path: path}
}

func (b *jsonlBackend) Close() error { return nil }

// Load reads the meta line and every entry line. It returns entries in
// file order; callers that need id order should sort.
func (b *jsonlBackend) Load() ([]models.SessionEntry, error) {
	f, err := os.Open(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", b.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	first := true
	var entries []models.SessionEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			var meta jsonlMeta
			if err := json.Unmarshal([]byte(line), &meta); err != nil {
				return nil, fmt.Errorf("session: invalid meta line in %s: %w", b.path, err)
			}
			continue
		}
		var entry models.SessionEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("session: invalid entry line in %s: %w", b.path, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("session: scan %s: %w", b.path, err)
	}
	return entries, nil
}

// Replace atomically rewrites the entire file: one meta line, then one
// line per entry, in the given order.
func (b *jsonlBackend) Replace(entries []models.SessionEntry) error {
	var sb strings.Builder
	metaLine, err := json.Marshal(jsonlMeta{SchemaVersion: schemaVersion})
	if err != nil {
		return fmt.Errorf("session: marshal meta: %w", err)
	}
	sb.Write(metaLine)
	sb.WriteByte('\n')
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("session: marshal entry %d: %w", entry.ID, err)
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return timeutil.WriteFileAtomic(b.path, []byte(sb.String()), 0o644)
}

// Append adds entries to the end of the file, writing the meta line
// first if the file does not yet exist.
func (b *jsonlBackend) Append(entries []models.SessionEntry) error {
	if _, err := os.Stat(b.path); os.IsNotExist(err) {
		metaLine, err := json.Marshal(jsonlMeta{SchemaVersion: schemaVersion})
		if err != nil {
			return fmt.Errorf("session: marshal meta: %w", err)
		}
		if err := timeutil.AppendLineAtomic(b.path, append(metaLine, '\n')); err != nil {
			return err
		}
	}
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("session: marshal entry %d: %w", entry.ID, err)
		}
		if err := timeutil.AppendLineAtomic(b.path, append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// backupPath returns a sibling backup filename for repair, stamped
// with the current Unix time in milliseconds.
func backupPath(path string) string {
	return fmt.Sprintf("%s.bak.%d", path, timeutil.NowUnixMS())
}
