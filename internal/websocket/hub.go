package syncws

import (
	"context"
	"encoding/json"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/profilesync"
	"go.uber.org/zap"
)

const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeError    = "error"
)

// Hub fans profile snapshots out to every open socket of the affected user.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	direct     chan directMessage
	done       chan struct{}
	logger     *zap.Logger
}

type directMessage struct {
	client  *Client
	payload []byte
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

type snapshotSource interface {
	Snapshot(userID string) (profilesync.Snapshot, bool)
}

type Message struct {
	Type      string                `json:"type"`
	UserID    string                `json:"user_id"`
	Snapshot  *profilesync.Snapshot `json:"snapshot,omitempty"`
	Content   string                `json:"content,omitempty"`
	Timestamp string                `json:"timestamp"`
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 64),
		direct:     make(chan directMessage, 16),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then closes
// every client's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for userID, set := range h.clients {
			for client := range set {
				close(client.send)
			}
			delete(h.clients, userID)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case message := <-h.broadcast:
			h.deliver(message)
		case message := <-h.direct:
			h.sendToClient(message.client, message.payload)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues a snapshot for the user's sockets. It never blocks once the
// hub has stopped.
func (h *Hub) Publish(userID string, snapshot profilesync.Snapshot) {
	message := &Message{
		Type:      MessageTypeSnapshot,
		UserID:    userID,
		Snapshot:  &snapshot,
		Timestamp: formatTimestamp(time.Now()),
	}
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

func (h *Hub) deliver(message *Message) {
	encoded, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Encode hub message", zap.Error(err))
		return
	}
	h.sendToUser(message.UserID, encoded)
}

func (h *Hub) sendToUser(userID string, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- payload:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) sendToClient(client *Client, payload []byte) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, registered := set[client]; !registered {
		return
	}
	select {
	case client.send <- payload:
	default:
		delete(set, client)
		close(client.send)
		if len(set) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

// ReadPump answers {"type":"snapshot"} requests with the current state and
// unregisters the client when the socket closes.
func (c *Client) ReadPump(source snapshotSource) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	if snapshot, ok := source.Snapshot(c.userID); ok {
		c.write(&Message{Type: MessageTypeSnapshot, UserID: c.userID, Snapshot: &snapshot})
	}

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil {
			c.write(&Message{Type: MessageTypeError, UserID: c.userID, Content: "invalid message payload"})
			continue
		}
		if incoming.Type != MessageTypeSnapshot {
			c.write(&Message{Type: MessageTypeError, UserID: c.userID, Content: "unsupported message type"})
			continue
		}

		snapshot, ok := source.Snapshot(c.userID)
		if !ok {
			c.write(&Message{Type: MessageTypeError, UserID: c.userID, Content: "no active session"})
			continue
		}
		c.write(&Message{Type: MessageTypeSnapshot, UserID: c.userID, Snapshot: &snapshot})
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// write queues a reply for this client only. The hub owns the send queue, so
// the reply goes through it.
func (c *Client) write(message *Message) {
	message.Timestamp = formatTimestamp(time.Now())
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}
	select {
	case c.hub.direct <- directMessage{client: c, payload: payload}:
	case <-c.hub.done:
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
