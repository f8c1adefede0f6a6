// Package eventbus is the Event Bus (C11): a non-blocking pub-sub
// channel fan-out for cycle lifecycle and trade events, per spec.md
// §4.6. Grounded on the channel/callback idiom used by the production
// engine's tradeChan/errorChan/onTrade/onError wiring.
package eventbus

import (
	"log"
	"sync"
)

// Kind names the event types broadcast on the bus (§4.6).
type Kind string

const (
	KindCycleStarted  Kind = "cycle_started"
	KindCycleComplete Kind = "cycle_complete"
	KindCycleFailed   Kind = "cycle_failed"
	KindTradePlaced   Kind = "trade_placed"
	KindEdgesUpdated  Kind = "edges_updated"
)

// Event is one bus message. Payload's concrete type depends on Kind:
// cycle_started/complete/failed carry a *CyclePayload, trade_placed
// carries a domain.Trade, edges_updated carries a []domain.Decision.
type Event struct {
	Kind    Kind
	Payload any
}

// CyclePayload describes a cycle lifecycle event.
type CyclePayload struct {
	CycleID     string
	StationCode string
	EventDay    string
	Reason      string // non-empty only for cycle_failed
}

// subscriber is one bounded, non-blocking mailbox.
type subscriber struct {
	id     int
	ch     chan Event
	lagged int // total events dropped to make room in a full queue
}

// Bus is a non-blocking pub-sub broadcaster with bounded per-subscriber
// queues. A slow subscriber drops its oldest queued event rather than
// blocking the publisher (§4.6).
type Bus struct {
	mu        sync.Mutex
	nextID    int
	queueSize int
	subs      map[int]*subscriber
}

// New creates a Bus whose subscriber queues hold up to queueSize events.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Bus{queueSize: queueSize, subs: make(map[int]*subscriber)}
}

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	bus *Bus
	id  int
	ch  chan Event
}

// Events returns the channel to range over for this subscription.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Unsubscribe stops delivery and closes the channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subs, s.id)
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	ch := make(chan Event, b.queueSize)
	b.subs[id] = &subscriber{id: id, ch: ch}
	return &Subscription{bus: b, id: id, ch: ch}
}

// Publish broadcasts ev to every current subscriber without blocking.
// If a subscriber's queue is full, its oldest queued event is dropped
// to make room and its lagged counter increments; the drop itself is
// logged so operators can see a consumer falling behind.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
				sub.lagged++
				log.Printf("[EventBus] subscriber %d lagged, dropped oldest event (total dropped: %d)", sub.id, sub.lagged)
			default:
			}
			select {
			case sub.ch <- ev:
			default:
				log.Printf("[EventBus] subscriber %d still full after drop, dropping new event", sub.id)
			}
		}
	}
}

// Lagged reports how many events have been dropped for the given
// subscription due to a full queue.
func (b *Bus) Lagged(s *Subscription) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[s.id]; ok {
		return sub.lagged
	}
	return 0
}

// SubscriberCount reports how many subscribers are currently attached.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
