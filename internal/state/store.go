package state

import (
	"database/sql"
	"fmt"
	"strings"

	"evewatch/internal/types"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultQueryLimit applies when the caller gives no usable limit
	DefaultQueryLimit = 50
	// MaxQueryLimit is the hard cap for filtered queries
	MaxQueryLimit = 500
	// ExportLimit bounds bulk exports
	ExportLimit = 10000
)

// Store is the append-only durable alert log, the source of truth the
// in-memory aggregates are rebuilt from on startup.
type Store struct {
	db *sql.DB
}

// Filter narrows a durable log query. Zero values mean "no constraint".
type Filter struct {
	Severity string // exact match
	Protocol string // exact match, case-insensitive
	SourceIP string // substring match
	DestIP   string // substring match
	From     string // inclusive, lexicographic on the ISO-8601 timestamp
	To       string // inclusive
}

// NewStore opens (creating if needed) the alert database at dbPath
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	query := `
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		severity TEXT NOT NULL,
		signature TEXT NOT NULL,
		src_ip TEXT NOT NULL,
		src_port INTEGER NOT NULL,
		dest_ip TEXT NOT NULL,
		dest_port INTEGER NOT NULL,
		protocol TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp);
	CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
	`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Append durably stores one alert and returns its assigned id
func (s *Store) Append(a *types.Alert) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO alerts (timestamp, severity, signature, src_ip, src_port, dest_ip, dest_port, protocol)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Timestamp, string(a.Severity), a.Signature,
		a.SourceIP, a.SourcePort, a.DestIP, a.DestPort, a.Protocol,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append alert: %w", err)
	}
	return res.LastInsertId()
}

// Query returns alerts matching the filter, newest first. The limit is
// clamped to [1, MaxQueryLimit]; a non-positive limit selects the default.
func (s *Store) Query(f Filter, limit int) ([]types.Alert, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	var where []string
	var args []interface{}
	if f.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.Protocol != "" {
		where = append(where, "UPPER(protocol) = ?")
		args = append(args, strings.ToUpper(f.Protocol))
	}
	if f.SourceIP != "" {
		where = append(where, "src_ip LIKE ?")
		args = append(args, "%"+f.SourceIP+"%")
	}
	if f.DestIP != "" {
		where = append(where, "dest_ip LIKE ?")
		args = append(args, "%"+f.DestIP+"%")
	}
	if f.From != "" {
		where = append(where, "timestamp >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "timestamp <= ?")
		args = append(args, f.To)
	}

	query := "SELECT id, timestamp, severity, signature, src_ip, src_port, dest_ip, dest_port, protocol FROM alerts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	return s.scan(query, args...)
}

// ExportAll returns up to ExportLimit alerts, newest first
func (s *Store) ExportAll() ([]types.Alert, error) {
	return s.scan(`
		SELECT id, timestamp, severity, signature, src_ip, src_port, dest_ip, dest_port, protocol
		FROM alerts ORDER BY id DESC LIMIT ?`, ExportLimit)
}

// Replay scans the whole log in insertion order, feeding each alert to fn.
// It is used at startup to rebuild the in-memory aggregates.
func (s *Store) Replay(fn func(*types.Alert)) (int, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, severity, signature, src_ip, src_port, dest_ip, dest_port, protocol
		FROM alerts ORDER BY id ASC`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var a types.Alert
		if err := scanAlert(rows, &a); err != nil {
			continue
		}
		fn(&a)
		n++
	}
	return n, rows.Err()
}

// Count returns the number of stored alerts
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&n)
	return n, err
}

// Reset deletes all stored alerts
func (s *Store) Reset() error {
	_, err := s.db.Exec("DELETE FROM alerts")
	return err
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) scan(query string, args ...interface{}) ([]types.Alert, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []types.Alert{}
	for rows.Next() {
		var a types.Alert
		if err := scanAlert(rows, &a); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanAlert(rows *sql.Rows, a *types.Alert) error {
	var sev string
	if err := rows.Scan(&a.ID, &a.Timestamp, &sev, &a.Signature,
		&a.SourceIP, &a.SourcePort, &a.DestIP, &a.DestPort, &a.Protocol); err != nil {
		return err
	}
	a.Severity = types.Severity(sev)
	return nil
}
