package rpc

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// AuditStore persists one row per mutating RPC call. Downstream compliance
// tooling keys off the method name and the stable error kind.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore opens (or creates) the sqlite audit database at path.
func NewAuditStore(path string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &AuditStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *AuditStore) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS audit_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        occurred_at TIMESTAMP NOT NULL,
        method TEXT NOT NULL,
        caller TEXT,
        outcome TEXT NOT NULL,
        error_kind TEXT
    );`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one audit row. Outcome is "ok" or "error"; errKind carries
// the stable error string for failed calls.
func (s *AuditStore) Record(ctx context.Context, method, caller, outcome, errKind string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (occurred_at, method, caller, outcome, error_kind) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC(), method, caller, outcome, errKind)
	return err
}

// Close releases the underlying database handle.
func (s *AuditStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
