// Package broadcast propagates record-change events across contexts. The
// Broker fans out inside one process; the Spool carries events to every
// other live context of the same profile through a shared directory watched
// with fsnotify. Delivery is best-effort, at-most-once per context per
// event, ordered per publisher.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/aretw0/introspection"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/lingopad/lexsync/pkg/core"
)

// DefaultBuffer is the per-subscriber channel depth. A slow subscriber
// loses events rather than blocking publishers.
const DefaultBuffer = 100

type subscriber struct {
	ch     chan core.Event
	filter string
}

// Broker is the in-process event bus.
type Broker struct {
	logger *slog.Logger
	buffer int

	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	seen   *seenSet
	closed bool

	published int
	dropped   int
}

// NewBroker creates a broker. buffer <= 0 selects DefaultBuffer.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		logger: logger,
		buffer: buffer,
		subs:   make(map[int]*subscriber),
		seen:   newSeenSet(1024),
	}
}

// Subscribe registers a handler channel. filter is a doublestar pattern
// matched against the event topic "{kind}/{parentRef}"; "**" receives
// everything. The returned cancel is idempotent.
func (b *Broker) Subscribe(filter string) (<-chan core.Event, core.CancelFunc) {
	if filter == "" {
		filter = "**"
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan core.Event, b.buffer), filter: filter}
	b.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish fans the event out to matching subscribers. Duplicate event ids
// are suppressed, so replays from the spool cannot double-deliver.
func (b *Broker) Publish(event core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if event.EventID != "" && !b.seen.add(event.EventID) {
		return
	}
	b.published++

	for _, sub := range b.subs {
		if ok, err := doublestar.Match(sub.filter, event.Topic()); err != nil || !ok {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Best-effort contract: a saturated subscriber misses the event.
			b.dropped++
			if b.logger != nil {
				b.logger.Warn("broadcast subscriber saturated, dropping event",
					"event", event.String(), "filter", sub.filter)
			}
		}
	}
}

// Close tears down all subscriptions.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// BrokerState exposes broker internals for observability.
type BrokerState struct {
	Subscribers int `json:"subscribers"`
	Published   int `json:"published"`
	Dropped     int `json:"dropped"`
}

// State implements introspection.Introspectable.
func (b *Broker) State() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BrokerState{
		Subscribers: len(b.subs),
		Published:   b.published,
		Dropped:     b.dropped,
	}
}

// ComponentType implements introspection.Component.
func (b *Broker) ComponentType() string { return "broadcast-broker" }

var _ introspection.Introspectable = (*Broker)(nil)
var _ introspection.Component = (*Broker)(nil)
