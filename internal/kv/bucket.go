// Package kv stores flag values in named buckets, persisted in SQLite or
// kept in memory. Values round-trip through JSON, so numbers come back as float64.
package kv

import "time"

// StoreOptions tunes a single write.
type StoreOptions struct {
	TTL time.Duration // zero keeps the value until deleted
}

// Bucket is a named set of keys.
type Bucket interface {
	Name() string

	// Store writes value under key, replacing any previous value.
	Store(key string, value any, opts *StoreOptions) error

	// Get returns nil for missing or expired keys.
	Get(key string) (any, error)

	// Delete reports whether the key existed.
	Delete(key string) (bool, error)

	// All returns every live key and value.
	All() (map[string]any, error)
}
