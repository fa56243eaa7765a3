// Package sqlite persists records in a local SQLite database using the
// pure Go driver, so the module stays cgo-free.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/agentdock/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id       TEXT PRIMARY KEY,
	kind     TEXT NOT NULL DEFAULT '',
	content  TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created  TIMESTAMP NOT NULL,
	updated  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_updated ON records(updated DESC);
`

// Store is a SQLite-backed RecordStore. Safe for concurrent use; the
// underlying pool serializes writes.
type Store struct {
	db *sql.DB
}

var _ core.RecordStore = (*Store)(nil)

// Open opens or creates the database at path and ensures the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Store implements core.RecordStore.
func (s *Store) Store(record core.Record) (core.Record, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = core.NewID()
	}
	if record.Created.IsZero() {
		record.Created = now
	}
	record.Updated = now

	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return core.Record{}, fmt.Errorf("encode record metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO records (id, kind, content, metadata, created, updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			content = excluded.content,
			metadata = excluded.metadata,
			updated = excluded.updated`,
		record.ID, record.Kind, record.Content, string(metadata), record.Created, record.Updated)
	if err != nil {
		return core.Record{}, fmt.Errorf("store record: %w", err)
	}
	return record, nil
}

// Retrieve implements core.RecordStore.
func (s *Store) Retrieve(id string) (core.Record, bool, error) {
	row := s.db.QueryRow(
		`SELECT id, kind, content, metadata, created, updated FROM records WHERE id = ?`, id)

	record, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return core.Record{}, false, nil
	}
	if err != nil {
		return core.Record{}, false, fmt.Errorf("retrieve record: %w", err)
	}
	return record, true, nil
}

// Search implements core.RecordStore with a case-insensitive substring
// match over content, most recently updated first.
func (s *Store) Search(query string, limit int) ([]core.Record, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`
		SELECT id, kind, content, metadata, created, updated
		FROM records
		WHERE content LIKE '%' || ? || '%'
		ORDER BY updated DESC
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	var matches []core.Record
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("search records: %w", err)
		}
		matches = append(matches, record)
	}
	return matches, rows.Err()
}

// Delete implements core.RecordStore.
func (s *Store) Delete(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return affected > 0, nil
}

func scanRecord(scan func(dest ...any) error) (core.Record, error) {
	var record core.Record
	var metadata string
	if err := scan(&record.ID, &record.Kind, &record.Content, &metadata, &record.Created, &record.Updated); err != nil {
		return core.Record{}, err
	}
	if metadata != "" && metadata != "{}" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &record.Metadata); err != nil {
			return core.Record{}, err
		}
	}
	return record, nil
}
