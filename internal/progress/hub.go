package progress

import (
	"sync"
)

const subscriberBuffer = 32

// Hub fans progress events out to per-key subscribers. Keys are session or
// page ids. Delivery to a subscriber is in emission order; a subscriber that
// stops draining loses events rather than blocking the pipeline.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan Event
	next int
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[int]chan Event{}}
}

// Subscribe registers interest in events for key. The returned cancel func
// must be called when the consumer disconnects; it closes the channel. Safe
// to call more than once.
func (h *Hub) Subscribe(key string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[key] == nil {
		h.subs[key] = map[int]chan Event{}
	}
	h.subs[key][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if m, ok := h.subs[key]; ok {
				delete(m, id)
				if len(m) == 0 {
					delete(h.subs, key)
				}
			}
			// Publish only sends while the channel is registered, under the
			// same lock, so closing here cannot race a send.
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Publish delivers the event to every subscriber of key. Full subscriber
// buffers drop the event for that subscriber only.
func (h *Hub) Publish(key string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[key] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Emitter returns an Emitter bound to key, for binding into a request context.
func (h *Hub) Emitter(key string) Emitter {
	return keyedEmitter{hub: h, key: key}
}

type keyedEmitter struct {
	hub *Hub
	key string
}

func (e keyedEmitter) Emit(event Event) { e.hub.Publish(e.key, event) }

// Collector is a test Emitter that records events in order.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Emit(event Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}
