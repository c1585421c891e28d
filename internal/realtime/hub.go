package realtime

import (
	"sync"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one change notice relayed to open sessions. Key scopes the event
// to a row group: a room id for chat_messages, a record id for
// opportunities/tickets. Seq is assigned at publish time and is strictly
// increasing per key, mirroring store-commit order.
type Event struct {
	Table   string
	Key     string
	Type    EventType
	Payload interface{}
	Seq     uint64
}

// subscriber buffer. When a session falls this far behind it is cut off and
// must re-subscribe and re-fetch history; there is no replay channel.
const subscriberBuffer = 64

type subKey struct {
	table string
	key   string
}

// Subscription is one session's attachment to a (table, key) stream. Events
// arrives in publish order for that key. Closed (and Lagged set) when the
// session cannot keep up.
type Subscription struct {
	Events chan Event

	hub    *Hub
	key    subKey
	once   sync.Once
	lagged bool
}

// Lagged reports whether the hub dropped this subscription for falling
// behind. Only meaningful after Events is closed.
func (s *Subscription) Lagged() bool {
	return s.lagged
}

// Close releases the subscription. Safe to call more than once, and safe to
// call concurrently with Publish.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub is the in-process realtime primitive: publish a change once, every
// open subscription on the affected (table, key) sees it. The store is the
// serialization point for writes; callers publish after commit, and the
// hub's lock preserves that order per subscriber.
type Hub struct {
	mu   sync.Mutex
	seq  map[subKey]uint64
	subs map[subKey]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{
		seq:  make(map[subKey]uint64),
		subs: make(map[subKey]map[*Subscription]struct{}),
	}
}

func (h *Hub) Subscribe(table, key string) *Subscription {
	sk := subKey{table: table, key: key}
	sub := &Subscription{
		Events: make(chan Event, subscriberBuffer),
		hub:    h,
		key:    sk,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sk] == nil {
		h.subs[sk] = make(map[*Subscription]struct{})
	}
	h.subs[sk][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	set := h.subs[sub.key]
	if set == nil {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.key)
	}
	sub.once.Do(func() { close(sub.Events) })
}

// Publish relays ev to every subscriber of (table, key). A subscriber whose
// buffer is full is dropped rather than blocking the publisher: losing a
// session's liveness is recoverable (re-fetch), stalling commits is not.
func (h *Hub) Publish(ev Event) {
	sk := subKey{table: ev.Table, key: ev.Key}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq[sk]++
	ev.Seq = h.seq[sk]

	for sub := range h.subs[sk] {
		select {
		case sub.Events <- ev:
		default:
			sub.lagged = true
			h.removeLocked(sub)
		}
	}
}

// SubscriberCount is used by tests and the ops CLI.
func (h *Hub) SubscriberCount(table, key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[subKey{table: table, key: key}])
}
