// Package store persists fetched defect snapshots in SQLite so reports can
// be recomputed without hitting the tracker again.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"bouncer/internal/defect"
)

// DefaultDBPath is the default relative path for the snapshot DB.
// Open() creates the parent dir (e.g. .bouncer).
const DefaultDBPath = ".bouncer/snapshots.db"

const schemaVersion = 1

var schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS snapshots (
	pillar     TEXT NOT NULL,
	project    TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	count      INTEGER NOT NULL,
	payload    BLOB NOT NULL,
	PRIMARY KEY (pillar, project)
);
`

// ErrNoSnapshot is returned when no snapshot exists for a pillar/project.
var ErrNoSnapshot = errors.New("no snapshot")

// Snapshot describes one stored pillar/project fetch without its payload.
type Snapshot struct {
	Pillar    string
	Project   string
	FetchedAt time.Time
	Count     int
}

// Store is a SQLite-backed snapshot store.
type Store struct {
	db *sql.DB
}

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// Open opens or creates a snapshot DB at path and runs migrations.
// Creates the parent directory if it does not exist.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot stores the records fetched for one pillar/project, replacing
// any previous snapshot for that pair.
func (s *Store) SaveSnapshot(pillar, project string, records []*defect.Record) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO snapshots(pillar, project, fetched_at, count, payload)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(pillar, project) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			count      = excluded.count,
			payload    = excluded.payload`,
		pillar, project, nowUTC(), len(records), payload)
	if err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", pillar, project, err)
	}
	return nil
}

// LoadSnapshot returns the stored records for a pillar/project, or
// ErrNoSnapshot when none was saved.
func (s *Store) LoadSnapshot(pillar, project string) ([]*defect.Record, error) {
	var payload []byte
	err := s.db.QueryRow(
		"SELECT payload FROM snapshots WHERE pillar = ? AND project = ?",
		pillar, project,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", pillar, project, ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s/%s: %w", pillar, project, err)
	}
	var records []*defect.Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s/%s: %w", pillar, project, err)
	}
	return records, nil
}

// LoadPillar returns all stored snapshots for a pillar keyed by project.
func (s *Store) LoadPillar(pillar string) (map[string][]*defect.Record, error) {
	rows, err := s.db.Query(
		"SELECT project, payload FROM snapshots WHERE pillar = ? ORDER BY project",
		pillar)
	if err != nil {
		return nil, fmt.Errorf("load pillar %s: %w", pillar, err)
	}
	defer rows.Close()

	out := make(map[string][]*defect.Record)
	for rows.Next() {
		var project string
		var payload []byte
		if err := rows.Scan(&project, &payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var records []*defect.Record
		if err := json.Unmarshal(payload, &records); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot %s/%s: %w", pillar, project, err)
		}
		out[project] = records
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// ListSnapshots returns metadata for every stored snapshot, ordered by
// pillar then project.
func (s *Store) ListSnapshots() ([]Snapshot, error) {
	rows, err := s.db.Query(
		"SELECT pillar, project, fetched_at, count FROM snapshots ORDER BY pillar, project")
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var stamp string
		if err := rows.Scan(&snap.Pillar, &snap.Project, &stamp, &snap.Count); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, stamp); err == nil {
			snap.FetchedAt = t
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}
