package devserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/chatclient/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// frame is the push envelope shared with the client subscriber.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// inFrame is what a client sends upstream: join/leave for a conversation.
type inFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

type client struct {
	conn      *websocket.Conn
	accountID string
	send      chan frame
	once      sync.Once
}

func (c *client) close() {
	c.once.Do(func() { c.conn.Close() })
}

// Hub tracks connected dev clients and which conversations each one
// joined, and broadcasts push frames to conversation rooms.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{} // conversationID -> members
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		rooms:   make(map[string]map[*client]struct{}),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the connection and runs read/write pumps until error.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		http.Error(w, "account_id required", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("devserver ws upgrade: %v", err)
		return
	}
	c := &client{conn: conn, accountID: accountID, send: make(chan frame, 64)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	for id, room := range h.rooms {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, id)
		}
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(1 << 16)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in inFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			continue
		}
		switch in.Type {
		case "join":
			h.mu.Lock()
			room, ok := h.rooms[in.ConversationID]
			if !ok {
				room = make(map[*client]struct{})
				h.rooms[in.ConversationID] = room
			}
			room[c] = struct{}{}
			h.mu.Unlock()
		case "leave":
			h.mu.Lock()
			if room, ok := h.rooms[in.ConversationID]; ok {
				delete(room, c)
				if len(room) == 0 {
					delete(h.rooms, in.ConversationID)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
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

// Broadcast delivers a frame to every client joined to the conversation,
// including the sender's own connection (that is the echo).
func (h *Hub) Broadcast(conversationID string, f frame) {
	h.mu.RLock()
	room := h.rooms[conversationID]
	targets := make([]*client, 0, len(room))
	for c := range room {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- f:
		default:
			// Slow dev client; drop it.
			h.remove(c)
		}
	}
}
