package session

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/haasonsaas/tau/pkg/models"
)

// sqlBackend is shared by the SQLite and Postgres backends: both keep
// entries in a single table keyed by id plus a per-session namespace
// column, differing only in driver name, DSN, and placeholder syntax.
type sqlBackend struct {
	db        *sql.DB
	namespace string
	driver    string
}

func newSQLiteBackend(dsn, namespace string) (*sqlBackend, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite %s: %w", dsn, err)
	}
	b := &sqlBackend{db: db, namespace: namespace, driver: "sqlite3"}
	if err := b.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *sqlBackend) ensureSchema() error {
	_, err := b.db.Exec(`
CREATE TABLE IF NOT EXISTS session_entries (
	namespace TEXT NOT NULL,
	id INTEGER NOT NULL,
	parent_id INTEGER,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tool_call_id TEXT NOT NULL DEFAULT '',
	tool_name TEXT NOT NULL DEFAULT '',
	is_error INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (namespace, id)
)`)
	if err != nil {
		return fmt.Errorf("session: ensure schema: %w", err)
	}
	return nil
}

func (b *sqlBackend) Close() error { return b.db.Close() }

func (b *sqlBackend) Load() ([]models.SessionEntry, error) {
	rows, err := b.db.Query(b.rebind(`SELECT id, parent_id, role, content, tool_call_id, tool_name, is_error
		FROM session_entries WHERE namespace = ? ORDER BY id ASC`), b.namespace)
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	defer rows.Close()

	var entries []models.SessionEntry
	for rows.Next() {
		var (
			id         uint64
			parentID   sql.NullInt64
			role       string
			contentRaw string
			toolCallID string
			toolName   string
			isError    bool
		)
		if err := rows.Scan(&id, &parentID, &role, &contentRaw, &toolCallID, &toolName, &isError); err != nil {
			return nil, fmt.Errorf("session: scan: %w", err)
		}
		var content []models.ContentBlock
		if err := json.Unmarshal([]byte(contentRaw), &content); err != nil {
			return nil, fmt.Errorf("session: decode content for entry %d: %w", id, err)
		}
		entry := models.SessionEntry{
			ID: id,
			Message: models.Message{
				Role:       models.Role(role),
				Content:    content,
				ToolCallID: toolCallID,
				ToolName:   toolName,
				IsError:    isError,
			},
		}
		if parentID.Valid {
			pid := uint64(parentID.Int64)
			entry.ParentID = &pid
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (b *sqlBackend) Replace(entries []models.SessionEntry) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("session: begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(b.rebind(`DELETE FROM session_entries WHERE namespace = ?`), b.namespace); err != nil {
		return fmt.Errorf("session: clear namespace: %w", err)
	}
	if err := b.insertAll(tx, entries); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *sqlBackend) Append(entries []models.SessionEntry) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("session: begin append: %w", err)
	}
	defer tx.Rollback()
	if err := b.insertAll(tx, entries); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *sqlBackend) insertAll(tx *sql.Tx, entries []models.SessionEntry) error {
	stmt, err := tx.Prepare(b.rebind(`INSERT INTO session_entries
		(namespace, id, parent_id, role, content, tool_call_id, tool_name, is_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("session: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		content, err := json.Marshal(entry.Content)
		if err != nil {
			return fmt.Errorf("session: encode content for entry %d: %w", entry.ID, err)
		}
		var parentID sql.NullInt64
		if entry.ParentID != nil {
			parentID = sql.NullInt64{Int64: int64(*entry.ParentID), Valid: true}
		}
		if _, err := stmt.Exec(b.namespace, entry.ID, parentID, string(entry.Role), string(content),
			entry.ToolCallID, entry.ToolName, entry.IsError); err != nil {
			return fmt.Errorf("session: insert entry %d: %w", entry.ID, err)
		}
	}
	return nil
}

// rebind rewrites '?' placeholders to '$N' for drivers (Postgres) that
// require positional dollar syntax. SQLite accepts '?' directly.
func (b *sqlBackend) rebind(query string) string {
	if b.driver != "postgres" {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, '$')
			out = append(out, []byte(fmt.Sprintf("%d", n))...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}
