package session

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// newPostgresBackend connects using a DSN supplied by the caller
// (typically read from TAU_SESSION_POSTGRES_DSN) and shares its
// schema and query logic with the SQLite backend via sqlBackend.
func newPostgresBackend(dsn, namespace string) (*sqlBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open postgres: %w", err)
	}
	b := &sqlBackend{db: db, namespace: namespace, driver: "postgres"}
	if err := b.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}
