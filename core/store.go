package core

import "time"

// Record is the unit persisted by a RecordStore. Content is the searchable
// text; Metadata carries arbitrary domain fields (chat role, todo state,
// knowledge source, ...). Kind partitions domains sharing one store.
type Record struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Created  time.Time      `json:"created"`
	Updated  time.Time      `json:"updated"`
}

// RecordStore is the persistence contract for domain records (chat
// transcripts, memory entries, knowledge documents, todo items). The
// orchestration core never inspects a store's internal representation.
type RecordStore interface {
	// Store persists the record, assigning ID/Created when absent, and
	// returns the stored form.
	Store(record Record) (Record, error)

	// Retrieve returns the record and true, or a zero record and false
	// when the id is unknown.
	Retrieve(id string) (Record, bool, error)

	// Search returns records whose content matches the query, most
	// recently updated first. An empty query matches nothing.
	Search(query string, limit int) ([]Record, error)

	// Delete removes the record, reporting whether it existed.
	Delete(id string) (bool, error)
}
