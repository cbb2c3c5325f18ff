package kv

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value     any
	expiresAt time.Time // zero: no expiry
}

// MemoryBucket keeps keys in process memory. Tests and ephemeral flags use it.
type MemoryBucket struct {
	name string
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryBucket creates an empty bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{name: name, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (b *MemoryBucket) Name() string { return b.name }

func (b *MemoryBucket) Store(key string, value any, opts *StoreOptions) error {
	e := memoryEntry{value: value}
	if opts != nil && opts.TTL > 0 {
		e.expiresAt = b.now().Add(opts.TTL)
	}
	b.mu.Lock()
	b.entries[key] = e
	b.mu.Unlock()
	return nil
}

func (b *MemoryBucket) Get(key string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.live(key)
	if !ok {
		return nil, nil
	}
	return e.value, nil
}

func (b *MemoryBucket) Delete(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.live(key)
	delete(b.entries, key)
	return ok, nil
}

func (b *MemoryBucket) All() (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]any, len(b.entries))
	for key := range b.entries {
		if e, ok := b.live(key); ok {
			out[key] = e.value
		}
	}
	return out, nil
}

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (b *MemoryBucket) live(key string) (memoryEntry, bool) {
	e, ok := b.entries[key]
	if !ok {
		return e, false
	}
	if !e.expiresAt.IsZero() && b.now().After(e.expiresAt) {
		delete(b.entries, key)
		return e, false
	}
	return e, true
}
