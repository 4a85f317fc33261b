// Package transport is the boundary to the backend: a REST client for
// request/response calls, a websocket subscriber for push delivery, and the
// payload normalization adapter that turns loosely-shaped wire payloads
// into canonical model types. The engine never inspects raw payloads.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/chatclient/internal/model"
)

// ErrRealtimeNotReady is returned by Join while the realtime channel is not
// connected; the engine retries with a bounded timer.
var ErrRealtimeNotReady = errors.New("realtime channel not ready")

// AttachmentUpload describes one local file picked for sending.
type AttachmentUpload struct {
	Path      string
	Name      string
	Kind      model.AttachmentKind
	SizeBytes int64
}

// SendRequest carries one outgoing message. TempID is the client-generated
// correlation key echoed back by the server.
type SendRequest struct {
	ConversationID string
	TempID         string
	Content        string
	Attachments    []AttachmentUpload
	ReplyToID      string
}

// SendResult is the server's confirmation of a send. ConversationID is the
// durable id, which differs from the request id when the conversation was
// addressed by a placeholder.
type SendResult struct {
	ServerID       string
	ConversationID string
	SentAt         time.Time
	// Attachments carry canonical remote URLs in request order.
	Attachments []model.AttachmentRef
}

// MessagesPage is one page of history, oldest first.
type MessagesPage struct {
	Items        []model.MessageView
	OlderCursor  string
	HasMoreOlder bool
}

// Backend is the request/response side of the server connection.
type Backend interface {
	SendMessage(ctx context.Context, req SendRequest) (*SendResult, error)
	GetMessagesPage(ctx context.Context, conversationID, cursor string, pageSize int) (*MessagesPage, error)
	// GetMessageContext returns the page containing messageID (jump-to-message).
	GetMessageContext(ctx context.Context, conversationID, messageID string, pageSize int) (*MessagesPage, error)
	React(ctx context.Context, conversationID, messageID, emoji string, added bool) error
	SetPinned(ctx context.Context, conversationID, messageID string, pinned bool) error
	RecallMessage(ctx context.Context, conversationID, messageID string) error
	MarkSeen(ctx context.Context, conversationID, messageID string) error
}

// Realtime is the publish/subscribe side: per-conversation join state.
type Realtime interface {
	Join(conversationID string) error
	Leave(conversationID string)
}

// EventHandler receives normalized push events. Implemented by the engine;
// the subscriber dispatches into it from its read loop.
type EventHandler interface {
	HandleMessage(msg model.MessageView)
	HandleSeen(ev model.SeenEvent)
	HandleReaction(ev model.ReactionEvent)
	HandlePin(ev model.PinEvent)
	HandleRecall(ev model.RecallEvent)
	HandleTyping(ev model.TypingEvent)
}
