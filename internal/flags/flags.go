// Package flags is the runtime-toggleable flag store read by lighting policies.
// Flags persist in a kv bucket and are served from an in-memory snapshot
// that watchers receive as a latest-value stream.
package flags

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/kv"
	"github.com/dokzlo13/hubd/internal/latest"
)

// Well-known flags.
const (
	SleepMode     = "Sleep Mode"
	MovieMode     = "Movie Mode"
	DisableLights = "Disable Lights"
	AwayMode      = "Away Mode"
)

// Snapshot is an immutable view of every flag.
type Snapshot map[string]any

// Bool returns a boolean flag; missing flags are false.
func (s Snapshot) Bool(key string) (bool, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("flag %q is %T, not bool", key, v)
	}
	return b, nil
}

// String returns a string flag; missing flags are empty.
func (s Snapshot) String(key string) (string, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return "", nil
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("flag %q is %T, not string", key, v)
	}
	return str, nil
}

// Store reads and writes flags.
type Store struct {
	mu     sync.Mutex // serializes writers
	bucket kv.Bucket
	value  *latest.Value[Snapshot]
}

// New loads every flag from the bucket.
func New(bucket kv.Bucket) (*Store, error) {
	all, err := bucket.All()
	if err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}
	snap := make(Snapshot, len(all))
	for k, v := range all {
		if v != nil {
			snap[k] = v
		}
	}
	return &Store{bucket: bucket, value: latest.New(snap)}, nil
}

// Snapshot returns the current flags.
func (s *Store) Snapshot() Snapshot {
	snap, _ := s.value.Get()
	return snap
}

// Bool reads a boolean flag.
func (s *Store) Bool(_ context.Context, key string) (bool, error) {
	return s.Snapshot().Bool(key)
}

// String reads a string flag.
func (s *Store) String(_ context.Context, key string) (string, error) {
	return s.Snapshot().String(key)
}

// Set writes a flag. Only bool and string values are accepted.
func (s *Store) Set(_ context.Context, key string, value any) error {
	switch value.(type) {
	case bool, string:
	default:
		return fmt.Errorf("flag %q: unsupported value type %T", key, value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bucket.Store(key, value, nil); err != nil {
		return fmt.Errorf("store flag %q: %w", key, err)
	}
	s.publish(func(next Snapshot) { next[key] = value })

	log.Info().Str("flag", key).Interface("value", value).Msg("Flag set")
	return nil
}

// Delete clears a flag.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.bucket.Delete(key); err != nil {
		return fmt.Errorf("delete flag %q: %w", key, err)
	}
	s.publish(func(next Snapshot) { delete(next, key) })

	log.Info().Str("flag", key).Msg("Flag cleared")
	return nil
}

// Watch streams the latest snapshot.
func (s *Store) Watch(ctx context.Context) <-chan Snapshot {
	return s.value.Watch(ctx)
}

// publish copies the current snapshot, applies change and installs it.
func (s *Store) publish(change func(Snapshot)) {
	cur := s.Snapshot()
	next := make(Snapshot, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	change(next)
	s.value.Set(next)
}
