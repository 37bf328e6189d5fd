// Package ws relays store events from the signal bus to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256

	// replayLimit stays below sendBufferSize so a replay never blocks.
	replayLimit   = 100
	replayTimeout = 5 * time.Second
)

// lotPattern matches every per-lot channel on the bus.
const lotPattern = "store:lot:*"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	// send carries hub broadcasts and is closed by the hub; direct carries
	// replies to this client and is never closed.
	send   chan []byte
	direct chan []byte
	subs   map[string]bool
	mu     sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to change its channels:
//
//	{"action":"subscribe","channels":["store:lot:0xABC...:7"]}
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// envelope is what clients receive.
type envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans store events out to subscribed WebSocket clients. Every client
// starts subscribed to domain.ChannelEvents.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	status     func() any
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

type broadcastMsg struct {
	channel string
	data    []byte
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	// Status, if set, is included in the greeting.
	Status func() any
}

// NewHub creates a hub bridging bus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	status := cfg.Status
	if status == nil {
		status = func() any { return nil }
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		status: func() any {
			return map[string]any{
				"mode":           mode,
				"uptime_seconds": max(0, int64(time.Since(startedAt).Seconds())),
				"chain":          status(),
			}
		},
		logger:    logger.With(slog.String("component", "ws_hub")),
		startedAt: startedAt,
	}
}

// Run subscribes to the bus and runs the hub loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.relay(ctx, domain.ChannelEvents, func([]byte) string { return domain.ChannelEvents })
	go h.relay(ctx, lotPattern, lotChannelOf)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			frame, err := json.Marshal(envelope{Type: "event", Channel: msg.channel, Payload: msg.data})
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.channel) {
					select {
					case c.send <- frame:
					default:
						h.logger.Warn("dropping message for slow client", slog.String("channel", msg.channel))
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// lotChannelOf recovers the concrete per-lot channel of an event payload,
// which pattern subscriptions do not report.
func lotChannelOf(data []byte) string {
	var evt domain.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return ""
	}
	return domain.LotChannel(evt.Lot())
}

func (h *Hub) relay(ctx context.Context, pattern string, channelOf func([]byte) string) {
	msgCh, err := h.bus.Subscribe(ctx, pattern)
	if err != nil {
		h.logger.Error("subscribe failed",
			slog.String("channel", pattern),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("subscribed", slog.String("channel", pattern))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("subscription closed", slog.String("channel", pattern))
				return
			}
			channel := channelOf(data)
			if channel == "" {
				h.logger.Warn("undecodable event dropped", slog.String("channel", pattern))
				continue
			}
			select {
			case h.broadcast <- broadcastMsg{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the client. A last_id query
// parameter replays retained stream entries after that id ("0" for all of
// them) as "replay" frames before live events.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		direct: make(chan []byte, 8),
		subs:   map[string]bool{domain.ChannelEvents: true},
	}
	if lastID := r.URL.Query().Get("last_id"); lastID != "" {
		c.replay(r.Context(), lastID)
	}

	h.register <- c
	c.greet()

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err != nil || sub.Action == "" {
			continue
		}
		c.handleSubscription(sub)
		c.ack(sub)
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range msg.Channels {
		if !validChannel(ch) {
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.subs[ch] = true
		case "unsubscribe":
			delete(c.subs, ch)
		}
	}
}

func validChannel(ch string) bool {
	return ch == domain.ChannelEvents || strings.HasPrefix(ch, "store:lot:")
}

func (c *client) subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	return out
}

// replay queues stream entries after lastID on send. It runs before the
// client is registered, so the hub cannot have closed send yet.
func (c *client) replay(ctx context.Context, lastID string) {
	ctx, cancel := context.WithTimeout(ctx, replayTimeout)
	defer cancel()

	msgs, err := c.hub.bus.StreamRead(ctx, domain.StreamEvents, lastID, replayLimit)
	if err != nil {
		c.hub.logger.Warn("stream replay failed",
			slog.String("last_id", lastID),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, m := range msgs {
		frame, err := json.Marshal(envelope{Type: "replay", Channel: domain.ChannelEvents, ID: m.ID, Payload: m.Payload})
		if err != nil {
			continue
		}
		select {
		case c.send <- frame:
		default:
			return
		}
	}
}

func (c *client) greet() {
	payload, err := json.Marshal(c.hub.status())
	if err != nil {
		return
	}
	c.enqueue(envelope{Type: "hello", Payload: payload})
}

func (c *client) ack(msg subscribeMsg) {
	payload, err := json.Marshal(map[string]any{"action": msg.Action, "channels": c.subscriptions()})
	if err != nil {
		return
	}
	c.enqueue(envelope{Type: "subscriptions", Payload: payload})
}

func (c *client) enqueue(e envelope) {
	frame, err := json.Marshal(e)
	if err != nil {
		return
	}
	select {
	case c.direct <- frame:
	default:
	}
}

// isSubscribed matches channel exactly or against a trailing-* subscription.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case message := <-c.direct:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
