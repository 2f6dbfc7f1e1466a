// Package hub fans real-time events out to websocket clients, either to
// everyone or to the clients watching one server.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event names carried in Envelope.Event.
const (
	EventMetric = "metric"
	EventAlert  = "alert"
)

const (
	writeTimeout      = 5 * time.Second
	defaultSendBuffer = 64
)

// ErrClientBacklogged is returned when at least one recipient's send buffer
// was full and the event was dropped for it.
var ErrClientBacklogged = errors.New("client send buffer full")

// ServerGroup names the group of clients subscribed to one server.
func ServerGroup(serverID int64) string {
	return fmt.Sprintf("server:%d", serverID)
}

// Envelope is the frame written to clients.
type Envelope struct {
	Event   string    `json:"event"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

// controlFrame is what clients send to change their subscriptions.
type controlFrame struct {
	Action string `json:"action"` // "join" or "leave"
	Server int64  `json:"server"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(r.Host), strings.TrimSpace(u.Host))
	},
}

type client struct {
	send   chan Envelope
	groups map[string]struct{} // guarded by Hub.mu
}

// Hub tracks connected clients and their group memberships.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	logger     *slog.Logger
	now        func() time.Time
	sendBuffer int
}

// New creates an empty hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		logger:     logger,
		now:        time.Now,
		sendBuffer: defaultSendBuffer,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GroupSize returns the number of clients in group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if _, ok := c.groups[group]; ok {
			n++
		}
	}
	return n
}

// PublishToGroup delivers an event to every client in group.
func (h *Hub) PublishToGroup(ctx context.Context, group, event string, payload any) error {
	return h.publish(ctx, event, payload, func(c *client) bool {
		_, ok := c.groups[group]
		return ok
	})
}

// PublishToAll delivers an event to every connected client.
func (h *Hub) PublishToAll(ctx context.Context, event string, payload any) error {
	return h.publish(ctx, event, payload, func(*client) bool { return true })
}

func (h *Hub) publish(ctx context.Context, event string, payload any, match func(*client) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := Envelope{Event: event, Payload: payload, SentAt: h.now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()

	matched, dropped := 0, 0
	for c := range h.clients {
		if !match(c) {
			continue
		}
		matched++
		select {
		case c.send <- env:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%s: %w for %d of %d clients", event, ErrClientBacklogged, dropped, matched)
	}
	return nil
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) register(groups []string) (*client, bool) {
	c := &client{
		send:   make(chan Envelope, h.sendBuffer),
		groups: make(map[string]struct{}, len(groups)),
	}
	for _, g := range groups {
		c.groups[g] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) setMembership(c *client, group string, member bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if member {
		c.groups[group] = struct{}{}
	} else {
		delete(c.groups, group)
	}
}

// ServeHTTP upgrades the request to a websocket. Each ?server=ID query
// parameter subscribes the client to that server's group.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var groups []string
	for _, v := range r.URL.Query()["server"] {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, fmt.Sprintf("invalid server id %q", v), http.StatusBadRequest)
			return
		}
		groups = append(groups, ServerGroup(id))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c, ok := h.register(groups)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		return
	}
	defer h.unregister(c)
	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr, "groups", groups)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readControl(conn, c)
	}()

	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(env); err != nil {
				h.logger.Debug("websocket write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

// readControl applies join and leave frames until the connection drops.
// Malformed frames are ignored.
func (h *Hub) readControl(conn *websocket.Conn, c *client) {
	// The HTTP server's read timeout survives the hijack.
	_ = conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame controlFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Server <= 0 {
			continue
		}
		switch strings.ToLower(frame.Action) {
		case "join":
			h.setMembership(c, ServerGroup(frame.Server), true)
		case "leave":
			h.setMembership(c, ServerGroup(frame.Server), false)
		}
	}
}
