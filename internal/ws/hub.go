package ws

import (
	"encoding/json"
	"log"

	"evewatch/internal/metrics"
	"evewatch/internal/types"
)

// SnapshotFunc supplies the full aggregate snapshot sent to every subscriber
// on connect. The snapshot is the catch-up mechanism; missed individual
// alerts are never replayed.
type SnapshotFunc func() *types.Snapshot

// Hub maintains the set of connected subscribers and fans broadcasts out to
// them. All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	snapshot   SnapshotFunc
}

func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		snapshot:   snapshot,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			metrics.ConnectedClients.Set(float64(len(h.clients)))
			log.Printf("[WS] client %s connected (%s), %d total", client.ID, client.conn.RemoteAddr(), len(h.clients))
			if h.snapshot != nil {
				if msg, err := envelope("metrics", h.snapshot()); err == nil {
					h.send(client, msg)
				}
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.ConnectedClients.Set(float64(len(h.clients)))
				log.Printf("[WS] client %s disconnected, %d total", client.ID, len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				h.send(client, message)
			}

		case <-h.quit:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			metrics.ConnectedClients.Set(0)
			return
		}
	}
}

// send enqueues without blocking; a subscriber whose buffer is full is
// dropped rather than allowed to stall the broadcast.
func (h *Hub) send(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		log.Printf("[WS] client %s send buffer full, dropping connection", client.ID)
		delete(h.clients, client)
		close(client.send)
		metrics.ConnectedClients.Set(float64(len(h.clients)))
	}
}

// Close disconnects all subscribers and stops the Run loop
func (h *Hub) Close() {
	close(h.quit)
}

// BroadcastAlert pushes one accepted alert to every subscriber
func (h *Hub) BroadcastAlert(a *types.Alert) {
	h.publish("newAlert", a)
}

// BroadcastMetrics pushes a refreshed snapshot to every subscriber
func (h *Hub) BroadcastMetrics(s *types.Snapshot) {
	h.publish("metrics", s)
}

func (h *Hub) publish(event string, payload interface{}) {
	msg, err := envelope(event, payload)
	if err != nil {
		log.Printf("[WS] marshal failed for %s: %v", event, err)
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

func envelope(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(map[string]interface{}{"type": event, "payload": payload})
}
