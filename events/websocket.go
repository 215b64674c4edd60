package events

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const clientWriteTimeout = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the RPC client connects from wherever the test harness runs
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes every posted event to connected websocket clients as JSON.
// It implements http.Handler for the upgrade endpoint.
type Hub struct {
	bus     *Bus
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub(bus *Bus) *Hub {
	return &Hub{
		bus:     bus,
		clients: make(map[*websocket.Conn]bool),
	}
}

// Run consumes the bus subscription until done is closed.
func (h *Hub) Run(done <-chan struct{}) {
	ch, cancel := h.bus.Subscribe(64)
	defer cancel()
	for {
		select {
		case <-done:
			h.closeAll()
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	slog.Info("event listener connected", "remote", r.RemoteAddr)
	h.add(conn)

	// drain (and ignore) client frames so pings and closes are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				slog.Info("event listener disconnected", "remote", r.RemoteAddr)
				return
			}
		}
	}()
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()

	var failed []*websocket.Conn
	for _, conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			slog.Warn("dropping slow event listener", "error", err)
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		h.remove(conn)
	}
}
