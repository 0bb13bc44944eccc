package server

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/yavanika/internal/render"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// OutputsHandler streams finished frame outputs to WebSocket clients.
// Each new frame presented to the sink is broadcast once; skipped
// frames carry the re-presented previous results.
type OutputsHandler struct {
	sink    *render.MemorySink
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewOutputsHandler creates a new OutputsHandler over the given sink.
func NewOutputsHandler(sink *render.MemorySink) *OutputsHandler {
	h := &OutputsHandler{
		sink:    sink,
		clients: make(map[*websocket.Conn]bool),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *OutputsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcast pushes each newly presented output record to all clients.
func (h *OutputsHandler) broadcast() {
	ticker := time.NewTicker(33 * time.Millisecond) // ~30 FPS ceiling
	defer ticker.Stop()

	var lastSent int64
	for range ticker.C {
		h.mu.RLock()
		idle := len(h.clients) == 0
		h.mu.RUnlock()
		if idle {
			continue
		}

		if h.sink.Presented() == lastSent {
			continue
		}
		out := h.sink.Last()
		if out == nil {
			continue
		}
		lastSent = h.sink.Presented()

		h.mu.RLock()
		for conn := range h.clients {
			if err := conn.WriteJSON(out); err != nil {
				log.Printf("websocket write error: %v", err)
			}
		}
		h.mu.RUnlock()
	}
}
