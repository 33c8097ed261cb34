// Package realtime provides a lightweight in-process publish/subscribe hub
// used to tell open browser sessions that something they show has changed
// (a republished stylesheet, a reloaded route table).
//
// Design Goals:
//   - Best-effort fan-out: slow listeners drop events, publishers never block.
//   - No persistence or replay semantics (ephemeral stream).
//   - Transport-agnostic: the server turns events into WebSocket messages.
package realtime

import (
	"sync"
	"time"
)

const (
	// KindReload asks pages to reload themselves.
	KindReload = "reload"
	// KindCSS asks pages to refresh their stylesheets only.
	KindCSS = "css"
)

// Event is what listeners receive.
//
// Fields:
//   - Kind:   KindReload or KindCSS.
//   - Reason: short human readable cause ("config reloaded", "stylesheets published").
//   - Files:  public paths involved, if any.
//   - At:     when the change was noticed.
type Event struct {
	Kind   string    `json:"kind"`
	Reason string    `json:"reason"`
	Files  []string  `json:"files,omitempty"`
	At     time.Time `json:"at"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(kind, reason string, files ...string) Event {
	return Event{Kind: kind, Reason: reason, Files: files, At: time.Now().UTC()}
}

// Hub is an in-memory fan-out dispatcher. Each registered listener
// receives events via its own buffered channel. If a listener's channel buffer
// is full when an event arrives, that event is *dropped for that listener only*.
//
// The hub is concurrency-safe.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan Event
	nextID    uint64
	bufSize   int
}

// NewHub constructs a new hub with per-listener buffer size.
// If bufSize <= 0, a default of 8 is used.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 8
	}
	return &Hub{
		listeners: make(map[uint64]chan Event),
		bufSize:   bufSize,
	}
}

// Register adds a new listener and returns (listenerID, receiveOnlyChannel).
// Callers must later Unregister(id) to release resources.
func (h *Hub) Register() (uint64, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes the listener with the given id and closes its channel.
// It is safe to call multiple times; unknown ids are ignored.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers an event to all registered listeners (best effort).
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- event:
		default:
			// Drop for slow listener.
		}
	}
}

// Size returns the current number of active listeners (approximate).
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
