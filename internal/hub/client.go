package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/callengine/internal/eventbus"
)

// Client is one dashboard connection: a single-threaded, cooperative
// consumer of its own send queue plus a dedicated read loop, mirroring the
// per-connection task model spec §5 describes for the Hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	send chan []byte

	mu   sync.Mutex
	subs map[string]func() // topic -> cancel
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		subs: make(map[string]func()),
	}
}

// run drives both pumps until the connection closes or ctx is canceled.
func (c *Client) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writePump(ctx) }()
	go func() { defer wg.Done(); c.readPump(ctx, cancel) }()
	wg.Wait()

	c.mu.Lock()
	for _, cancelSub := range c.subs {
		cancelSub()
	}
	c.subs = nil
	c.mu.Unlock()
}

func (c *Client) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		c.handleClientMessage(ctx, msg)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleClientMessage(ctx context.Context, msg ClientMessage) {
	switch msg.Event {
	case "subscribe":
		c.subscribe(ctx, msg.Topic)
	case "unsubscribe":
		c.unsubscribe(msg.Topic)
	case "snapshot":
		c.sendSnapshot(ctx, msg.Topic)
	}
}

func (c *Client) subscribe(ctx context.Context, topic string) {
	c.mu.Lock()
	if _, exists := c.subs[topic]; exists {
		c.mu.Unlock()
		return
	}
	ch, cancel := c.hub.bus.Subscribe(topic)
	c.subs[topic] = cancel
	c.mu.Unlock()

	go c.forward(ctx, topic, ch)
	c.sendSnapshot(ctx, topic)
}

// forward relays bus events for topic to the client's send queue until ctx
// is canceled (connection closing) or the channel is abandoned by
// unsubscribe — the Bus never closes subscriber channels itself, so this
// goroutine exits only via ctx.
func (c *Client) forward(ctx context.Context, topic string, ch <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			event := liveEvent(topic)
			if ev.Type == eventbus.TypeLagged {
				event = laggedEvent(topic)
			}
			c.enqueue(ServerMessage{Event: event, Data: ev.Data})
		}
	}
}

func (c *Client) unsubscribe(topic string) {
	c.mu.Lock()
	cancel, ok := c.subs[topic]
	if ok {
		delete(c.subs, topic)
	}
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *Client) sendSnapshot(ctx context.Context, topic string) {
	if c.hub.snapshots == nil {
		return
	}
	data, err := c.hub.snapshots.Snapshot(ctx, topic)
	if err != nil {
		return
	}
	c.enqueue(ServerMessage{Event: snapshotEvent(topic), Data: data})
}

func (c *Client) enqueue(msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		// Write-side buffer full: drop rather than block the hub's
		// forwarding goroutines; the client's next snapshot call will
		// resync it (spec §4.3 reconnection semantics apply here too).
	}
}
