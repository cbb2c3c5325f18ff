package kv

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteBucket keeps its keys in the kv_store table.
type SQLiteBucket struct {
	db   *sql.DB
	name string
	now  func() time.Time
}

// NewSQLiteBucket opens bucket name on db.
func NewSQLiteBucket(db *sql.DB, name string) *SQLiteBucket {
	return &SQLiteBucket{db: db, name: name, now: time.Now}
}

func (b *SQLiteBucket) Name() string { return b.name }

func (b *SQLiteBucket) Store(key string, value any, opts *StoreOptions) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv %s/%s: marshal: %w", b.name, key, err)
	}

	now := b.now().UTC()
	var expiresAt sql.NullInt64
	if opts != nil && opts.TTL > 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(opts.TTL).Unix(), Valid: true}
	}

	_, err = b.db.Exec(`
		INSERT INTO kv_store (bucket, key, value, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, b.name, key, string(data), expiresAt, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("kv %s/%s: store: %w", b.name, key, err)
	}
	return nil
}

func (b *SQLiteBucket) Get(key string) (any, error) {
	var raw string
	err := b.db.QueryRow(`
		SELECT value FROM kv_store
		WHERE bucket = ? AND key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, b.name, key, b.now().UTC().Unix()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv %s/%s: get: %w", b.name, key, err)
	}
	return decode(b.name, key, raw)
}

func (b *SQLiteBucket) Delete(key string) (bool, error) {
	res, err := b.db.Exec(`DELETE FROM kv_store WHERE bucket = ? AND key = ?`, b.name, key)
	if err != nil {
		return false, fmt.Errorf("kv %s/%s: delete: %w", b.name, key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (b *SQLiteBucket) All() (map[string]any, error) {
	rows, err := b.db.Query(`
		SELECT key, value FROM kv_store
		WHERE bucket = ? AND (expires_at IS NULL OR expires_at > ?)
	`, b.name, b.now().UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("kv %s: list: %w", b.name, err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("kv %s: scan: %w", b.name, err)
		}
		v, err := decode(b.name, key, raw)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, rows.Err()
}

func decode(bucket, key, raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("kv %s/%s: unmarshal: %w", bucket, key, err)
	}
	return v, nil
}

// CleanupExpired deletes expired keys from every bucket.
func CleanupExpired(db *sql.DB) (int64, error) {
	res, err := db.Exec(`
		DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, time.Now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("kv cleanup: %w", err)
	}
	return res.RowsAffected()
}
