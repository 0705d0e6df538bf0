package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/c360studio/shopfloor/events"
)

const (
	// clientBufferSize is the per-client send queue. A client that cannot
	// keep up is dropped; it recovers current state through polling.
	clientBufferSize = 32

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Terminals live on the shop LAN; the API carries no credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans change notifications out to connected websocket terminals. It
// subscribes to the event subject space on NATS and forwards each message
// verbatim, so terminals see the same payloads the notifier published.
type Hub struct {
	logger *slog.Logger
	conn   *nats.Conn
	sub    *nats.Subscription

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(conn *nats.Conn, logger *slog.Logger) (*Hub, error) {
	return &Hub{
		logger:  logger,
		conn:    conn,
		clients: make(map[*wsClient]struct{}),
	}, nil
}

// start subscribes to the event subject space. Without a NATS connection the
// hub still accepts websocket clients; they just receive nothing.
func (h *Hub) start() {
	if h.conn == nil {
		return
	}
	sub, err := h.conn.Subscribe(events.SubjectWildcard, func(msg *nats.Msg) {
		h.broadcast(msg.Data)
	})
	if err != nil {
		h.logger.Error("Failed to subscribe to events", "subject", events.SubjectWildcard, "error", err)
		return
	}
	h.sub = sub
}

func (h *Hub) stop() {
	if h.sub != nil {
		_ = h.sub.Unsubscribe()
	}

	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
}

// broadcast queues data on every client. Clients with a full queue are
// dropped rather than blocking delivery to the rest.
func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	var slow []*wsClient
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow websocket client", "remote", c.conn.RemoteAddr())
		close(c.send)
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}

// handleWS upgrades the connection and streams events until the client goes
// away.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, clientBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	wsClientsGauge.Inc()
	go c.writeLoop()
	c.readLoop(h)
	wsClientsGauge.Dec()
}

// readLoop consumes (and discards) client frames so pongs are processed and
// disconnects are noticed.
func (c *wsClient) readLoop(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
