package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/facelog/internal/observability"
)

const writeWait = 10 * time.Second

var ErrHubClosed = errors.New("hub closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboards are served from other origins
	},
}

// MessageHandler answers one inbound client message. A nil reply sends nothing.
type MessageHandler func(ctx context.Context, msg []byte) []byte

// Client is one subscriber handle. The hub never closes send; done tells the
// write pump to stop, so a publish racing an unsubscribe cannot panic.
type Client struct {
	id      string
	channel string
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

func (c *Client) ID() string { return c.id }

// Messages delivers what the hub published to this client.
func (c *Client) Messages() <-chan []byte { return c.send }

// Done is closed once the client is unsubscribed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) stop() bool {
	stopped := false
	c.once.Do(func() {
		close(c.done)
		stopped = true
	})
	return stopped
}

// Hub keeps one room of subscribers per channel name and fans published
// payloads out to them. Publishing never blocks on a slow client: a client
// whose buffer is full is dropped.
type Hub struct {
	bufferSize int

	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	closed bool
}

func NewHub(bufferSize int) *Hub {
	if bufferSize < 1 {
		bufferSize = 64
	}
	return &Hub{
		bufferSize: bufferSize,
		rooms:      make(map[string]map[*Client]struct{}),
	}
}

// Subscribe adds a new client to channel.
func (h *Hub) Subscribe(channel string) (*Client, error) {
	c := &Client{
		id:      uuid.NewString(),
		channel: channel,
		send:    make(chan []byte, h.bufferSize),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	room, ok := h.rooms[channel]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[channel] = room
	}
	room[c] = struct{}{}
	observability.WSConnections.WithLabelValues(channel).Inc()
	slog.Debug("ws client subscribed", "channel", channel, "client_id", c.id)
	return c, nil
}

// Unsubscribe removes c from its room. It is safe to call more than once.
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.channel]; ok {
		if _, member := room[c]; member {
			delete(room, c)
			observability.WSConnections.WithLabelValues(c.channel).Dec()
		}
		if len(room) == 0 {
			delete(h.rooms, c.channel)
		}
	}
	h.mu.Unlock()

	if c.stop() {
		slog.Debug("ws client unsubscribed", "channel", c.channel, "client_id", c.id)
	}
}

// Count returns the number of subscribers of channel.
func (h *Hub) Count(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[channel])
}

// Publish marshals payload once and delivers it to every current subscriber
// of channel.
func (h *Hub) Publish(_ context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal live payload: %w", err)
	}
	return h.Broadcast(channel, data)
}

// Broadcast delivers an already encoded message.
func (h *Hub) Broadcast(channel string, data []byte) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	room := h.rooms[channel]
	targets := make([]*Client, 0, len(room))
	for c := range room {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			observability.LiveDropped.Inc()
			slog.Warn("ws client buffer full, dropping", "channel", channel, "client_id", c.id)
			h.Unsubscribe(c)
		}
	}
	return nil
}

// Close unsubscribes every client and rejects further use.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Client
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.Unsubscribe(c)
	}
}

// Serve upgrades the request and subscribes the connection to channel.
// onMessage may be nil for publish-only channels.
func (h *Hub) Serve(c *gin.Context, channel string, onMessage MessageHandler) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client, err := h.Subscribe(channel)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	go writePump(conn, client)
	go readPump(ctx, h, conn, client, onMessage)
}

func writePump(conn *websocket.Conn, c *Client) {
	defer conn.Close()
	for {
		select {
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readPump detects disconnection and hands inbound messages to onMessage.
func readPump(ctx context.Context, h *Hub, conn *websocket.Conn, c *Client, onMessage MessageHandler) {
	defer h.Unsubscribe(c)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if onMessage == nil {
			continue
		}
		reply := onMessage(ctx, msg)
		if reply == nil {
			continue
		}
		select {
		case c.send <- reply:
		case <-c.done:
			return
		}
	}
}
