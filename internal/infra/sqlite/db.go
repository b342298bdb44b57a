// Package sqlite provides the session history ledger for swarmd.
// Uses WAL mode for concurrent reads and crash-safe writes.
//
// The ledger is an audit trail only. Live swarm state is never restored
// from it: a restarted server starts with an empty directory.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/zlx-network/swarmd/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/history.db.
// Enables WAL mode and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "history.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			peer_id         TEXT PRIMARY KEY,
			domain          TEXT NOT NULL,
			remote_addr     TEXT NOT NULL DEFAULT '',
			connected_at    INTEGER NOT NULL,
			disconnected_at INTEGER,
			cause           TEXT NOT NULL DEFAULT '',
			swarms_joined   INTEGER NOT NULL DEFAULT 0,
			swarms          TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_connected ON sessions(connected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_domain ON sessions(domain)`,

		`CREATE TABLE IF NOT EXISTS node_info (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Session History ────────────────────────────────────────────────────────

// InsertSession records a newly connected peer.
func (d *DB) InsertSession(info domain.SessionInfo) error {
	_, err := d.db.Exec(
		`INSERT INTO sessions (peer_id, domain, remote_addr, connected_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(peer_id) DO NOTHING`,
		info.PeerID, info.Domain, info.RemoteAddr, info.ConnectedAt.UnixMilli(),
	)
	return err
}

// CloseSession stamps a peer's disconnect. A session that was never
// inserted is recorded in full.
func (d *DB) CloseSession(info domain.SessionInfo) error {
	swarms, err := json.Marshal(nonNil(info.Swarms))
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		`INSERT INTO sessions (peer_id, domain, remote_addr, connected_at, disconnected_at, cause, swarms_joined, swarms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(peer_id) DO UPDATE SET
			disconnected_at=excluded.disconnected_at,
			cause=excluded.cause,
			swarms_joined=excluded.swarms_joined,
			swarms=excluded.swarms`,
		info.PeerID, info.Domain, info.RemoteAddr, info.ConnectedAt.UnixMilli(),
		nullableUnixMilli(info.DisconnectedAt), string(info.Cause), info.SwarmsJoined, string(swarms),
	)
	return err
}

// GetSession retrieves one session by peer id. Returns nil if absent.
func (d *DB) GetSession(peerID string) (*domain.SessionInfo, error) {
	row := d.db.QueryRow(
		`SELECT peer_id, domain, remote_addr, connected_at, disconnected_at, cause, swarms_joined, swarms
		 FROM sessions WHERE peer_id = ?`, peerID,
	)
	return scanSession(row)
}

// RecentSessions returns up to limit sessions, newest first. A domain of ""
// matches every domain.
func (d *DB) RecentSessions(domainKey string, limit int) ([]domain.SessionInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		`SELECT peer_id, domain, remote_addr, connected_at, disconnected_at, cause, swarms_joined, swarms
		 FROM sessions
		 WHERE ? = '' OR domain = ?
		 ORDER BY connected_at DESC, peer_id
		 LIMIT ?`,
		domainKey, domainKey, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.SessionInfo
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// PruneSessions deletes closed sessions that disconnected before cutoff.
func (d *DB) PruneSessions(cutoff time.Time) (int64, error) {
	result, err := d.db.Exec(
		`DELETE FROM sessions WHERE disconnected_at IS NOT NULL AND disconnected_at < ?`,
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CloseAbandoned stamps every still-open session with at and cause. Run at
// startup: rows left open belong to a process that did not shut down
// cleanly.
func (d *DB) CloseAbandoned(at time.Time, cause domain.TerminationCause) (int64, error) {
	result, err := d.db.Exec(
		`UPDATE sessions SET disconnected_at = ?, cause = ? WHERE disconnected_at IS NULL`,
		at.UnixMilli(), string(cause),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ─── Node Info ──────────────────────────────────────────────────────────────

// SetNodeInfo stores a key-value pair in node_info.
func (d *DB) SetNodeInfo(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO node_info (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetNodeInfo retrieves a value from node_info.
func (d *DB) GetNodeInfo(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM node_info WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*domain.SessionInfo, error) {
	var info domain.SessionInfo
	var connectedAt int64
	var disconnectedAt sql.NullInt64
	var cause, swarms string

	err := s.Scan(&info.PeerID, &info.Domain, &info.RemoteAddr,
		&connectedAt, &disconnectedAt, &cause, &info.SwarmsJoined, &swarms)
	if err == sql.ErrNoRows {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, err
	}

	info.ConnectedAt = time.UnixMilli(connectedAt)
	info.State = domain.SessionActive
	if disconnectedAt.Valid {
		info.DisconnectedAt = time.UnixMilli(disconnectedAt.Int64)
		info.State = domain.SessionClosed
	}
	info.Cause = domain.TerminationCause(cause)
	if err := json.Unmarshal([]byte(swarms), &info.Swarms); err != nil {
		return nil, fmt.Errorf("session %s swarms: %w", info.PeerID, err)
	}
	return &info, nil
}

func nullableUnixMilli(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
