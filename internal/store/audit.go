// Package store persists a durable audit trail of executed RCON commands.
// It is not a server-list cache — agql never caches query results, only
// the record that a command was run.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Entry is one executed RCON command, as persisted and as read back.
type Entry struct {
	ID            int64     `json:"id"`
	Endpoint      string    `json:"endpoint"`
	Command       string    `json:"command"`
	Response      string    `json:"response"`
	ExecutedAt    time.Time `json:"executed_at"`
	CorrelationID string    `json:"correlation_id"`
}

// AuditLog wraps a sqlite-backed append-only log of RCON commands.
type AuditLog struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the audit database at path and ensures its schema.
func Open(path string) (*AuditLog, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Warn().Err(err).Msg("failed to enable WAL mode on audit store")
	}

	const schema = `
CREATE TABLE IF NOT EXISTS rcon_audit (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	endpoint       TEXT NOT NULL,
	command        TEXT NOT NULL,
	response       BLOB NOT NULL,
	executed_at    DATETIME NOT NULL,
	correlation_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rcon_audit_endpoint ON rcon_audit(endpoint);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate audit store schema: %w", err)
	}

	log.Info().Str("path", path).Msg("audit store opened")
	return &AuditLog{db: db}, nil
}

// Close closes the underlying database connection.
func (a *AuditLog) Close() error {
	return a.db.Close()
}

// Record appends one executed RCON command to the log.
func (a *AuditLog) Record(endpoint, command, response, correlationID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(
		`INSERT INTO rcon_audit (endpoint, command, response, executed_at, correlation_id) VALUES (?, ?, ?, ?, ?)`,
		endpoint, command, response, time.Now().UTC(), correlationID,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Recent returns the most recent entries for endpoint, newest first, bounded
// by limit.
func (a *AuditLog) Recent(endpoint string, limit int) ([]Entry, error) {
	rows, err := a.db.Query(
		`SELECT id, endpoint, command, response, executed_at, correlation_id
		 FROM rcon_audit WHERE endpoint = ? ORDER BY id DESC LIMIT ?`,
		endpoint, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Endpoint, &e.Command, &e.Response, &e.ExecutedAt, &e.CorrelationID); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
