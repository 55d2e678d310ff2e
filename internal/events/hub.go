// Package events is the in-process notification bus: session lifecycle,
// request outcomes, and store changes are published here and fan out to the
// SSE endpoint and any other observers.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Well-known event types published on the hub.
const (
	TypeSessionCreated = "session.created"
	TypeSessionEvicted = "session.evicted"
	TypeRequestDone    = "request.done"
	TypeRequestTimeout = "request.timeout"
	TypePoolShutdown   = "pool.shutdown"
	TypeStoreChanged   = "store.changed"
)

// Event is one hub notification. IDs are monotonically increasing, so a
// client that remembers the last ID it saw can ask for everything newer.
type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"` // JSON payload
}

// Hub is an in-memory pub/sub. A bounded replay buffer keeps the most recent
// events for clients that connect (or reconnect) late.
type Hub struct {
	lastID atomic.Int64

	mu     sync.Mutex
	replay []Event // newest last, bounded by replayCap
	cap    int

	subs   map[int]chan Event
	nextID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		cap:  capacity,
		subs: make(map[int]chan Event),
	}
}

// Publish marshals data and delivers the event to every live subscriber.
// Delivery never blocks: subscribers that cannot keep up lose events.
func (h *Hub) Publish(eventType string, data any) {
	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   h.lastID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.replay = append(h.replay, ev)
	if len(h.replay) > h.cap {
		h.replay = h.replay[len(h.replay)-h.cap:]
	}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the whole replay buffer is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, len(h.replay))
	for _, ev := range h.replay {
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// Close tears down all subscriptions. Publish after Close is a no-op for
// subscribers but still lands in the replay buffer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
