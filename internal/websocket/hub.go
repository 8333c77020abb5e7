// Package websocket pushes fence transitions and outbox progress to connected
// ops dashboards. Clients are listeners only; inbound frames are discarded.
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Hub maintains the set of active dashboard clients and broadcasts to them.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			log.Printf("📱 Dashboard connected (%d total)", h.count())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("📴 Dashboard disconnected (%d total)", h.count())

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow client, skip this frame
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastFence pushes a fence transition to all dashboards.
func (h *Hub) BroadcastFence(tenantID, mode string) {
	h.send(map[string]any{
		"type":     "FENCE",
		"tenantId": tenantID,
		"fence":    mode,
		"at":       time.Now().UTC(),
	})
}

// BroadcastFlush pushes outbox drain progress to all dashboards.
func (h *Hub) BroadcastFlush(tenantID string, flushed int) {
	h.send(map[string]any{
		"type":     "OUTBOX_FLUSH",
		"tenantId": tenantID,
		"flushed":  flushed,
		"at":       time.Now().UTC(),
	})
}

func (h *Hub) send(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		// hub backlogged, drop rather than block callers
	}
}
