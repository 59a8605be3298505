// Package hub implements the Real-Time Hub (spec §4.3): long-lived
// dashboard client connections, topic subscribe/unsubscribe, snapshot on
// (re)subscribe, and forwarding of Event Bus events to subscribed rooms.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/metrics"
)

const (
	pingInterval = 10 * time.Second
	idleTimeout  = 25 * time.Second
)

// Snapshotter builds the point-in-time projection for a topic — e.g. for
// call.updates, every Call whose state is non-terminal (spec §4.3).
type Snapshotter interface {
	Snapshot(ctx context.Context, topic string) (any, error)
}

// Hub owns the client registry and the upgrade endpoint.
type Hub struct {
	bus       *eventbus.Bus
	snapshots Snapshotter
	log       logging.Logger
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func New(bus *eventbus.Bus, snapshots Snapshotter, log logging.Logger) *Hub {
	return &Hub{
		bus:       bus,
		snapshots: snapshots,
		log:       log,
		clients:   make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the client's read/write pumps
// until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("hub: upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn)
	h.register(c)
	defer h.unregister(c)

	c.run(r.Context())
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.HubClientsConnected.Inc()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	metrics.HubClientsConnected.Dec()
}

// ClientCount reports the number of currently connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
