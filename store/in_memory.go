// Package store provides RecordStore implementations and an agent exposing
// a store over the message channel. The in-memory store backs tests and
// ephemeral setups; the sqlite subpackage persists across restarts.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentdock/core"
)

// InMemory is a map-backed RecordStore. Safe for concurrent use; contents
// are lost at process exit.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]core.Record
}

var _ core.RecordStore = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]core.Record)}
}

// Store implements core.RecordStore.
func (s *InMemory) Store(record core.Record) (core.Record, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = core.NewID()
	}
	if record.Created.IsZero() {
		record.Created = now
	}
	record.Updated = now

	s.mu.Lock()
	s.records[record.ID] = record
	s.mu.Unlock()
	return record, nil
}

// Retrieve implements core.RecordStore.
func (s *InMemory) Retrieve(id string) (core.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	return record, ok, nil
}

// Search implements core.RecordStore with a case-insensitive substring
// match over content.
func (s *InMemory) Search(query string, limit int) ([]core.Record, error) {
	if query == "" {
		return nil, nil
	}
	needle := strings.ToLower(query)

	s.mu.RLock()
	matches := make([]core.Record, 0)
	for _, record := range s.records {
		if strings.Contains(strings.ToLower(record.Content), needle) {
			matches = append(matches, record)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Updated.After(matches[j].Updated)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Delete implements core.RecordStore.
func (s *InMemory) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

// Len returns the number of stored records.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
