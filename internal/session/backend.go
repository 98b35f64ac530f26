package session

import "github.com/haasonsaas/tau/pkg/models"

// schemaVersion is written into every JSONL meta line so a future
// format change can be detected on load. The SQLite/Postgres backends
// do not record it.
const schemaVersion = 1

// backend is the storage-specific half of a Store: loading the full
// entry set, replacing it wholesale (repair/compact/import-replace),
// and appending new entries (the common append_messages fast path).
// All three operations are called with the session's file lock held.
type backend interface {
	// Load returns every entry currently stored: JSONL in file order,
	// the SQL backends in id order. A
	// backend that has never been initialized returns an empty slice,
	// not an error.
	Load() ([]models.SessionEntry, error)
	// Replace atomically overwrites the full entry set.
	Replace(entries []models.SessionEntry) error
	// Append adds new entries after whatever Load would currently
	// return, without touching existing ones.
	Append(entries []models.SessionEntry) error
	// Close releases any held resources (open DB handles). JSONL
	// backends are stateless and no-op here.
	Close() error
}
