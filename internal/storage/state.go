// Package storage provides versioned JSON state records in SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store provides generic versioned state storage with JSON payloads.
// State is keyed by (kind, id) and stored as JSON blobs with version tracking.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new generic state store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get retrieves payload and version for a resource.
// Returns empty payload and version 0 if not found.
func (s *Store) Get(kind, id string) (payload []byte, version int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payloadStr string
	err = s.db.QueryRow(`
		SELECT payload, version FROM resource_state
		WHERE kind = ? AND id = ?
	`, kind, id).Scan(&payloadStr, &version)

	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	return []byte(payloadStr), version, nil
}

// Set stores payload, incrementing version automatically.
func (s *Store) Set(kind, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO resource_state (kind, id, payload, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			payload = excluded.payload,
			version = version + 1,
			updated_at = excluded.updated_at
	`, kind, id, string(payload), time.Now().UTC().Unix())

	if err == nil {
		log.Debug().
			Str("kind", kind).
			Str("id", id).
			Str("payload", string(payload)).
			Msg("State stored")
	}

	return err
}

// Delete removes a resource state entry.
func (s *Store) Delete(kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM resource_state WHERE kind = ? AND id = ?`, kind, id)
	return err
}

// Typed wraps Store with JSON marshaling for one kind of record.
type Typed[T any] struct {
	store *Store
	kind  string
}

// NewTyped creates a typed view of the store for kind.
func NewTyped[T any](store *Store, kind string) *Typed[T] {
	return &Typed[T]{store: store, kind: kind}
}

// Get retrieves and unmarshals the record for id.
// Returns the zero value and version 0 if not found.
func (t *Typed[T]) Get(id string) (value T, version int64, err error) {
	payload, version, err := t.store.Get(t.kind, id)
	if err != nil || payload == nil {
		return value, 0, err
	}
	if err := json.Unmarshal(payload, &value); err != nil {
		return value, 0, fmt.Errorf("failed to unmarshal %s/%s: %w", t.kind, id, err)
	}
	return value, version, nil
}

// Set marshals and stores the record for id.
func (t *Typed[T]) Set(id string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", t.kind, id, err)
	}
	return t.store.Set(t.kind, id, payload)
}
