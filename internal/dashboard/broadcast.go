// Package dashboard pushes live scheduler state to connected browser
// clients over WebSocket: an upgrader, a client set, and a broadcast
// helper reporting per-model queue pressure.
package dashboard

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Broadcaster pushes ClusterState to every connected dashboard client.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[*websocket.Conn]bool)}
}

// HandleWS is the WebSocket upgrade handler for /ws.
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dashboard: websocket upgrade failed: %v", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = true
	n := len(b.clients)
	b.mu.Unlock()
	log.Printf("dashboard: client connected (%d total)", n)

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.clients, conn)
			n := len(b.clients)
			b.mu.Unlock()
			conn.Close()
			log.Printf("dashboard: client disconnected (%d remain)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClusterState is the JSON payload pushed to dashboard clients.
type ClusterState struct {
	Models []ModelState `json:"models"`
}

// ModelState reports one model's scheduler queue pressure, GPU readings,
// and replica health.
type ModelState struct {
	Model             string  `json:"model"`
	QueueSize         int     `json:"queue_size"`
	TotalEnqueued     uint64  `json:"total_enqueued"`
	TotalDequeued     uint64  `json:"total_dequeued"`
	TotalRejected     uint64  `json:"total_rejected"`
	ClosestDeadlineUS int64   `json:"closest_deadline_us"`
	VRAMFreeGB        float64 `json:"vram_free_gb"`
	VRAMTotalGB       float64 `json:"vram_total_gb"`
	GPUUtilization    float64 `json:"gpu_utilization"`
	TemperatureC      float64 `json:"temperature_c"`
	HealthyReplicas   int     `json:"healthy_replicas"`
	TotalReplicas     int     `json:"total_replicas"`
}

// Broadcast sends state to every connected client, dropping any that error.
func (b *Broadcaster) Broadcast(state *ClusterState) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}
