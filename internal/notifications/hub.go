package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"socialgraph/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	// ErrServerConnLimit is returned when the hub is full.
	ErrServerConnLimit = errors.New("server connection limit reached")
	// ErrUserConnLimit is returned when a user has too many open connections.
	ErrUserConnLimit = errors.New("user connection limit reached")
)

// Message is the envelope of every frame the server writes.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Encode marshals a frame.
func Encode(msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Payload: payload})
}

// Hub maps uid to its open websocket clients and pushes graph events to the
// participants of each event only.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	shutdown   chan struct{}
	stopOnce   sync.Once
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		conns:    make(map[string]map[*Client]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "graph hub" }

// Register a connection for a given uid. Returns the Client or error if limits exceeded.
func (h *Hub) Register(uid string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, ErrServerConnLimit
	}

	m, ok := h.conns[uid]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[uid] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrUserConnLimit
	}

	client := NewClient(h, conn, uid)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()
	return client, nil
}

// UnregisterClient removes client. It is safe to call more than once.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.UserID]
	if !ok {
		return
	}
	if _, exists := m[client]; exists {
		delete(m, client)
		h.totalConns--
		observability.WebSocketConnectionsTotal.Dec()
	}
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
}

// Connections returns the number of open clients for uid.
func (h *Hub) Connections(uid string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[uid])
}

// SendTo writes a raw frame to every client of uid.
func (h *Hub) SendTo(uid string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[uid] {
		c.TrySend(frame)
	}
}

// Deliver pushes ev to the clients of its participants.
func (h *Hub) Deliver(ev Event) {
	frame, err := Encode(string(ev.Type), ev)
	if err != nil {
		observability.Logger.Error("failed to encode graph event", slog.String("error", err.Error()))
		return
	}
	for _, uid := range ev.Participants {
		h.SendTo(uid, frame)
	}
}

// Run delivers events from sub until ctx is done, the hub shuts down, or the
// subscription is cancelled.
func (h *Hub) Run(ctx context.Context, sub *Subscription) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.shutdown:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Type == EventStreamDegraded || ev.Type == EventPresenceChanged {
				// presence reaches friends through their directory views
				continue
			}
			h.Deliver(ev)
		}
	}
}

// Shutdown gracefully closes all websocket connections
func (h *Hub) Shutdown(_ context.Context) error {
	h.stopOnce.Do(func() {
		close(h.shutdown)

		h.mu.Lock()
		for uid, userConns := range h.conns {
			for client := range userConns {
				if client.Conn == nil {
					continue
				}
				if err := client.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
					observability.Logger.Warn("failed to write close message",
						slog.String("user_id", uid),
						slog.String("error", err.Error()),
					)
				}
				_ = client.Conn.Close()
			}
		}
		observability.WebSocketConnectionsTotal.Sub(float64(h.totalConns))
		h.conns = make(map[string]map[*Client]struct{})
		h.totalConns = 0
		h.mu.Unlock()
	})
	return nil
}
