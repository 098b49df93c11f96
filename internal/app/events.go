package app

import (
	"sync"
	"time"

	"github.com/ayusman/ptzfollow/internal/ptz"
)

// Event types.
const (
	EventCommand = "command"
	EventState   = "state"
	EventEnabled = "enabled"
	EventSource  = "source"
)

// Event is published on every command attempt and state change.
type Event struct {
	Type    string       `json:"type"`
	Time    time.Time    `json:"time"`
	Command *ptz.Command `json:"command,omitempty"`
	OK      bool         `json:"ok,omitempty"`
	Error   string       `json:"error,omitempty"`
	State   string       `json:"state,omitempty"`
	Enabled *bool        `json:"enabled,omitempty"`
}

// Hub fans events out to subscribers. Slow subscribers miss events rather
// than stall the loop.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a buffered subscriber.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber with room for it.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
