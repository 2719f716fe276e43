// Package hub maintains the set of live update subscribers and fans
// broadcast messages out to them. A slow or vanished subscriber is
// removed instead of being waited on, so ingestion never stalls behind
// one client.
package hub

import (
	"log"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const broadcastQueueSize = 256

// Hub owns the subscriber set. All membership changes and deliveries go
// through the Run loop, so a broadcast always sees a consistent set and
// a removed client can never receive a later message.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	stopped    chan struct{}

	count atomic.Int64

	// connected is optional; nil disables the gauge.
	connected prometheus.Gauge
}

// NewHub creates a hub. The gauge may be nil.
func NewHub(connected prometheus.Gauge) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, broadcastQueueSize),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		connected:  connected,
	}
}

// Run processes registrations and broadcasts until Stop is called.
// Intended to run in its own goroutine.
func (h *Hub) Run() {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.updateCount()
			log.Printf("Subscriber registered: %s (%d connected)", client.name, len(h.clients))

		case client := <-h.unregister:
			h.remove(client, "connection closed")

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Client can't keep up; drop it rather than
					// holding up the rest of the set.
					h.remove(client, "send buffer full")
				}
			}

		case <-h.done:
			for client := range h.clients {
				h.remove(client, "hub shutting down")
			}
			return
		}
	}
}

// remove drops a client from the set. Called only from the Run loop.
func (h *Hub) remove(client *Client, reason string) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.updateCount()
	log.Printf("Subscriber removed: %s (%s, %d connected)", client.name, reason, len(h.clients))
}

func (h *Hub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	if h.connected != nil {
		h.connected.Set(float64(len(h.clients)))
	}
}

// Register adds a client to the subscriber set.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the subscriber set.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a message for delivery to every currently registered
// subscriber. Never blocks on an individual subscriber; delivery
// failures remove the subscriber and are not reported to the caller.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// Stop shuts the hub down and disconnects all subscribers.
func (h *Hub) Stop() {
	close(h.done)
	<-h.stopped
}
