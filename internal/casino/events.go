package casino

import (
	"sync"
	"time"
)

// Event is the emitted record for dashboards and persistence consumers.
type Event struct {
	TS     time.Time `json:"ts"`
	Type   string    `json:"type"`
	Action string    `json:"action,omitempty"`
	Agent  string    `json:"agent,omitempty"`
	Result any       `json:"result,omitempty"`
}

const defaultBusDepth = 256

// Bus is a bounded publish-subscribe fan-out. Publishing never blocks the
// engine: a subscriber that falls behind loses its oldest events. A ring of
// recent events is kept so late subscribers can catch up.
type Bus struct {
	mu    sync.Mutex
	depth int
	ring  []Event
	subs  map[int]chan Event
	next  int
}

func NewBus(depth int) *Bus {
	if depth <= 0 {
		depth = defaultBusDepth
	}
	return &Bus{
		depth: depth,
		subs:  map[int]chan Event{},
	}
}

// Publish fans the event out to every subscriber, dropping the oldest
// queued event of any subscriber whose buffer is full.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring = append(b.ring, ev)
	if len(b.ring) > b.depth {
		b.ring = b.ring[len(b.ring)-b.depth:]
	}

	for _, ch := range b.subs {
		for {
			select {
			case ch <- ev:
			default:
				// Full: shed the oldest and retry once.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribe returns a receive channel and its cancel func. The channel is
// pre-loaded with the retained ring so late subscribers see recent history.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, b.depth)
	for _, ev := range b.ring {
		ch <- ev
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Recent returns a copy of the retained ring.
func (b *Bus) Recent() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.ring))
	copy(out, b.ring)
	return out
}
