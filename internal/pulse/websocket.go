package pulse

import (
	"encoding/hex"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wireEvent is the JSON shape broadcast to connected dashboards; the
// Merkle root is hex-encoded since [32]byte doesn't marshal usefully.
type wireEvent struct {
	CycleID       uint64 `json:"cycle_id"`
	MerkleRoot    string `json:"merkle_root"`
	ReceiptsCount uint32 `json:"receipts_count"`
	Suspect       bool   `json:"suspect"`
	Timestamp     int64  `json:"timestamp_unix_nano"`
}

// Hub streams pulse events to connected websocket dashboards, grounded on
// the teacher's internal/websocket/dag_streamer.go DAGStreamer: the same
// register/unregister/broadcast channel triad driving one goroutine's
// select loop, generalized from DAG visualization events to pulse events.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan wireEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewHub builds a Hub. Call Run in its own goroutine before serving
// HandleWebSocket.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan wireEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run drives the hub's register/unregister/broadcast loop until stop is
// closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()
		case event := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if err := client.WriteJSON(event); err != nil {
					log.Printf("pulse: websocket write error: %v", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades an HTTP request to a websocket connection and
// registers it with the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("pulse: websocket upgrade error: %v", err)
		return
	}
	h.register <- conn

	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast encodes and queues event for every connected client.
func (h *Hub) Broadcast(event Event) {
	h.broadcast <- wireEvent{
		CycleID:       event.CycleID,
		MerkleRoot:    hex.EncodeToString(event.MerkleRoot[:]),
		ReceiptsCount: event.ReceiptsCount,
		Suspect:       event.Suspect,
		Timestamp:     time.Now().UnixNano(),
	}
}

// ClientCount reports the number of currently connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
