// Package devserver is an in-memory stand-in for the chat backend: enough
// REST and push surface for the client to run end-to-end with no external
// services. Nothing persists across restarts.
package devserver

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// wireAttachment is an attachment as the backend reports it.
type wireAttachment struct {
	RemoteURL string `json:"remote_url"`
	Kind      string `json:"kind"`
	Name      string `json:"name,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// wireMessage is a stored message in wire shape.
type wireMessage struct {
	ID             string           `json:"id"`
	TempID         string           `json:"temp_id,omitempty"`
	ConversationID string           `json:"conversation_id"`
	SenderID       string           `json:"sender_id"`
	Content        string           `json:"content"`
	Attachments    []wireAttachment `json:"attachments,omitempty"`
	SentAt         time.Time        `json:"sent_at"`
	IsRecalled     bool             `json:"is_recalled,omitempty"`
	IsPinned       bool             `json:"is_pinned,omitempty"`
	ReplyToID      string           `json:"reply_to_id,omitempty"`
}

// Store keeps conversations and their messages, oldest first.
type Store struct {
	mu            sync.RWMutex
	conversations map[string][]wireMessage
}

func NewStore() *Store {
	return &Store{conversations: make(map[string][]wireMessage)}
}

// EnsureConversation returns a durable id for the given one, allocating a
// fresh conversation when the client addressed a placeholder.
func (st *Store) EnsureConversation(id string, placeholder bool) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	if placeholder {
		durable := uuid.New().String()
		st.conversations[durable] = nil
		return durable
	}
	if _, ok := st.conversations[id]; !ok {
		st.conversations[id] = nil
	}
	return id
}

// Append stores a message and returns it with its assigned id.
func (st *Store) Append(m wireMessage) wireMessage {
	st.mu.Lock()
	defer st.mu.Unlock()
	m.ID = uuid.New().String()
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	st.conversations[m.ConversationID] = append(st.conversations[m.ConversationID], m)
	return m
}

// Page returns up to limit messages ending at cursor (an index into the
// oldest-first list; empty cursor means the newest page).
func (st *Store) Page(conversationID, cursor string, limit int) (items []wireMessage, olderCursor string, hasMore bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	msgs := st.conversations[conversationID]
	end := len(msgs)
	if cursor != "" {
		if n, err := strconv.Atoi(cursor); err == nil && n >= 0 && n <= len(msgs) {
			end = n
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	items = append(items, msgs[start:end]...)
	return items, strconv.Itoa(start), start > 0
}

// Context returns the page surrounding one message.
func (st *Store) Context(conversationID, messageID string, limit int) (items []wireMessage, olderCursor string, hasMore bool, found bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	msgs := st.conversations[conversationID]
	idx := -1
	for i := range msgs {
		if msgs[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, "", false, false
	}
	start := idx - limit/2
	if start < 0 {
		start = 0
	}
	end := start + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	items = append(items, msgs[start:end]...)
	return items, strconv.Itoa(start), start > 0, true
}

// Mutate applies fn to the stored message, returning false when it does
// not exist.
func (st *Store) Mutate(conversationID, messageID string, fn func(*wireMessage)) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	msgs := st.conversations[conversationID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			fn(&msgs[i])
			return true
		}
	}
	return false
}
