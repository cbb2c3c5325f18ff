// Package ledger provides an append-only event history for hubd.
// It backs once-only markers (schedule occurrences, wake light dismissals)
// and the security audit trail.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventScheduleFired   EventType = "schedule_fired"
	EventWakeStarted     EventType = "wake_started"
	EventWakeDismissed   EventType = "wake_dismissed"
	EventDisarmAccepted  EventType = "disarm_accepted"
	EventDisarmRejected  EventType = "disarm_rejected"
	EventArmScheduled    EventType = "arm_scheduled"
	EventSecurityChanged EventType = "security_changed"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID             int64
	EventType      EventType
	Timestamp      time.Time
	Payload        map[string]any
	Source         string
	IdempotencyKey string
	CorrelationID  string
}

// Ledger provides append-only event logging with deduplication
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// NewCorrelationID returns a fresh id used to tie related ledger entries together
func NewCorrelationID() string {
	return uuid.NewString()
}

// Append adds a new event to the ledger
func (l *Ledger) Append(eventType EventType, source string, payload map[string]any) error {
	_, err := l.insert(`INSERT INTO event_ledger`, eventType, "", source, "", payload)
	return err
}

// AppendCorrelated adds an event tagged with a correlation id
func (l *Ledger) AppendCorrelated(eventType EventType, source, correlationID string, payload map[string]any) error {
	_, err := l.insert(`INSERT INTO event_ledger`, eventType, "", source, correlationID, payload)
	return err
}

// MarkOnce records an event under an idempotency key.
// Returns true if this call recorded it, false if an entry with the same
// (event type, key) already existed. The unique partial index makes this
// "first writer wins" across concurrent callers.
func (l *Ledger) MarkOnce(eventType EventType, idempotencyKey, source string, payload map[string]any) (bool, error) {
	if idempotencyKey == "" {
		return false, fmt.Errorf("ledger: empty idempotency key")
	}
	affected, err := l.insert(`INSERT OR IGNORE INTO event_ledger`, eventType, idempotencyKey, source, "", payload)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Has checks if an event with the given type and idempotency key exists
func (l *Ledger) Has(eventType EventType, idempotencyKey string) bool {
	if idempotencyKey == "" {
		return false // Empty key = no dedupe
	}

	var exists int
	err := l.db.QueryRow(`
		SELECT 1 FROM event_ledger
		WHERE idempotency_key = ? AND event_type = ?
		LIMIT 1
	`, idempotencyKey, string(eventType)).Scan(&exists)

	return err == nil && exists == 1
}

func (l *Ledger) insert(prefix string, eventType EventType, idempotencyKey, source, correlationID string, payload map[string]any) (int64, error) {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	var key any
	if idempotencyKey != "" {
		key = idempotencyKey
	}

	result, err := l.db.Exec(prefix+` (event_type, timestamp, payload, source, idempotency_key, correlation_id) VALUES (?, ?, ?, ?, ?, ?)`,
		string(eventType), l.now().UTC().Unix(), string(payloadJSON), source, key, correlationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetByType returns entries filtered by event type, newest first
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, payload, source, idempotency_key, correlation_id
		FROM event_ledger
		WHERE event_type = ?
		ORDER BY id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM event_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr sql.NullString
		var source, idempotencyKey, correlationID sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &payloadStr, &source, &idempotencyKey, &correlationID,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		entry.Source = source.String
		entry.IdempotencyKey = idempotencyKey.String
		entry.CorrelationID = correlationID.String

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
