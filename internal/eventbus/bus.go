// Package eventbus fans telemetry events out to independent consumers.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/event"
)

// DefaultQueueSize is the per-subscriber buffer used when none is configured.
const DefaultQueueSize = 100

// Filter selects the events a subscriber receives. Nil accepts everything.
type Filter func(event.Event) bool

// OfKind accepts events of the given kinds.
func OfKind(kinds ...event.Kind) Filter {
	set := make(map[event.Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(ev event.Event) bool { return set[ev.Kind()] }
}

type subscriber struct {
	name    string
	ch      chan event.Event
	filter  Filter
	dropped atomic.Uint64
}

// Bus delivers each published event to every matching subscriber. Each
// subscriber owns an ordered buffered channel, so a slow consumer only
// loses its own events.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscriber
	queueSize   int

	// Closing this channel signals publishers to stop
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a bus whose subscribers buffer queueSize events each.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		queueSize: queueSize,
		closing:   make(chan struct{}),
	}
}

// Subscribe registers a consumer. The returned channel is closed by Close.
func (b *Bus) Subscribe(name string, filter Filter) <-chan event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{name: name, ch: make(chan event.Event, b.queueSize), filter: filter}
	select {
	case <-b.closing:
		close(sub.ch)
		return sub.ch
	default:
	}
	b.subscribers = append(b.subscribers, sub)

	log.Debug().Str("subscriber", name).Int("queue_size", b.queueSize).Msg("Event bus subscriber added")
	return sub.ch
}

// Publish delivers ev without blocking. Events for a full subscriber queue,
// or published after Close, are dropped with a warning.
func (b *Bus) Publish(ev event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.closing:
		log.Warn().Str("kind", string(ev.Kind())).Msg("Event bus closing, dropping event")
		return
	default:
	}

	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			log.Warn().
				Str("subscriber", sub.name).
				Str("kind", string(ev.Kind())).
				Str("device", ev.Source()).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// Dropped returns how many events a subscriber has lost to a full queue.
func (b *Bus) Dropped(name string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var n uint64
	for _, sub := range b.subscribers {
		if sub.name == name {
			n += sub.dropped.Load()
		}
	}
	return n
}

// Close stops delivery and closes every subscriber channel. Safe to call twice.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		close(b.closing)
		for _, sub := range b.subscribers {
			close(sub.ch)
		}
		log.Debug().Int("subscribers", len(b.subscribers)).Msg("Event bus closed")
	})
}
