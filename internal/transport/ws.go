package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/chatclient/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufSize    = 64
	redialInterval = 2 * time.Second
)

// outFrame is what the client sends upstream: join/leave for a
// conversation's realtime room.
type outFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Subscriber maintains the push connection: it dials, reads frames,
// normalizes payloads and dispatches into the EventHandler. It redials with
// a fixed interval and replays join state after reconnecting, so the
// engine's view of "joined" survives transport hiccups.
type Subscriber struct {
	url       string
	accountID string
	handler   EventHandler

	mu        sync.Mutex
	connected bool
	joined    map[string]struct{}

	send chan outFrame
}

func NewSubscriber(wsURL, accountID string) *Subscriber {
	return &Subscriber{
		url:       wsURL,
		accountID: accountID,
		joined:    make(map[string]struct{}),
		send:      make(chan outFrame, sendBufSize),
	}
}

// SetHandler wires the event sink. Must be called before Run; the engine
// and the subscriber reference each other, so the handler is attached after
// both exist.
func (s *Subscriber) SetHandler(h EventHandler) { s.handler = h }

// Join subscribes to a conversation's push events. Returns
// ErrRealtimeNotReady while disconnected; the engine retries with a bounded
// timer.
func (s *Subscriber) Join(conversationID string) error {
	s.mu.Lock()
	s.joined[conversationID] = struct{}{}
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		return ErrRealtimeNotReady
	}
	select {
	case s.send <- outFrame{Type: "join", ConversationID: conversationID}:
		return nil
	default:
		return ErrRealtimeNotReady
	}
}

// Leave unsubscribes from a conversation.
func (s *Subscriber) Leave(conversationID string) {
	s.mu.Lock()
	delete(s.joined, conversationID)
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		return
	}
	select {
	case s.send <- outFrame{Type: "leave", ConversationID: conversationID}:
	default:
	}
}

// Run dials and pumps until ctx is cancelled, redialing on failure.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		if err := s.runOnce(ctx); err != nil {
			logger.Errorf("ws session: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(redialInterval):
		}
	}
}

func (s *Subscriber) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url+"?account_id="+s.accountID, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.mu.Lock()
	s.connected = true
	rejoin := make([]string, 0, len(s.joined))
	for id := range s.joined {
		rejoin = append(rejoin, id)
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	// Replay join state from before the disconnect.
	for _, id := range rejoin {
		select {
		case s.send <- outFrame{Type: "join", ConversationID: id}:
		default:
		}
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	go func() { writeErr <- s.writePump(pumpCtx, conn) }()

	readErr := s.readPump(pumpCtx, conn)
	cancel()
	<-writeErr
	return readErr
}

func (s *Subscriber) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
		s.dispatch(raw)
	}
}

func (s *Subscriber) writePump(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, nil)
			return nil
		case f := <-s.send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			data, err := json.Marshal(f)
			if err != nil {
				logger.Errorf("ws marshal frame: %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// dispatch decodes one push frame and routes it into the handler.
func (s *Subscriber) dispatch(raw []byte) {
	if s.handler == nil {
		return
	}
	evType, rawPayload, err := DecodeFrame(raw)
	if err != nil {
		logger.Errorf("ws decode frame: %v", err)
		return
	}
	switch evType {
	case EventNewMessage:
		msg, err := NormalizeMessage(rawPayload, s.accountID)
		if err != nil {
			logger.Errorf("ws normalize message: %v", err)
			return
		}
		s.handler.HandleMessage(msg)
	case EventMessageSeen:
		ev, err := NormalizeSeen(rawPayload)
		if err != nil {
			logger.Errorf("ws normalize seen: %v", err)
			return
		}
		s.handler.HandleSeen(ev)
	case EventReactionAdded, EventReactionRemoved:
		ev, err := NormalizeReaction(rawPayload, evType == EventReactionAdded)
		if err != nil {
			logger.Errorf("ws normalize reaction: %v", err)
			return
		}
		s.handler.HandleReaction(ev)
	case EventMessagePinned, EventMessageUnpinned:
		ev, err := NormalizePin(rawPayload, evType == EventMessagePinned)
		if err != nil {
			logger.Errorf("ws normalize pin: %v", err)
			return
		}
		s.handler.HandlePin(ev)
	case EventMessageRecalled:
		ev, err := NormalizeRecall(rawPayload)
		if err != nil {
			logger.Errorf("ws normalize recall: %v", err)
			return
		}
		s.handler.HandleRecall(ev)
	case EventTyping:
		ev, err := NormalizeTyping(rawPayload)
		if err != nil {
			return
		}
		s.handler.HandleTyping(ev)
	default:
		logger.Debugf("ws unknown event type %q", evType)
	}
}
