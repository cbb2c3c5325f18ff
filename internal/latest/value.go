// Package latest provides a latest-value broadcast: watchers always observe
// the most recent value and never queue stale ones.
package latest

import (
	"context"
	"sync"
)

// Value holds the most recent T and fans it out to watchers.
// Each watcher owns a one-slot channel; a slow watcher only ever sees the
// newest value when it next receives.
type Value[T any] struct {
	mu     sync.Mutex
	value  T
	set    bool
	nextID int
	subs   map[int]chan T
}

// New creates a Value that already holds v.
func New[T any](v T) *Value[T] {
	return &Value[T]{value: v, set: true}
}

// Get returns the current value and whether one has been set.
func (l *Value[T]) Get() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.set
}

// Set stores v and notifies all watchers.
func (l *Value[T]) Set(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.value = v
	l.set = true
	for _, ch := range l.subs {
		replace(ch, v)
	}
}

// Watch returns a channel that receives the current value (if any) and every
// later one. The channel is closed when ctx is done.
func (l *Value[T]) Watch(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	l.mu.Lock()
	if l.subs == nil {
		l.subs = make(map[int]chan T)
	}
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	if l.set {
		ch <- l.value
	}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, id)
		close(ch)
		l.mu.Unlock()
	}()

	return ch
}

// replace drops any unread value and stores v. Only called under l.mu, so
// there is a single writer and the send cannot block.
func replace[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
