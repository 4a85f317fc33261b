package transport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chatclient/internal/model"
)

type EventType string

const (
	EventNewMessage      EventType = "new_message"
	EventMessageSeen     EventType = "message_seen"
	EventReactionAdded   EventType = "reaction_added"
	EventReactionRemoved EventType = "reaction_removed"
	EventMessagePinned   EventType = "message_pinned"
	EventMessageUnpinned EventType = "message_unpinned"
	EventMessageRecalled EventType = "message_recalled"
	EventTyping          EventType = "typing"
)

// frame is the push envelope: {"type": ..., "payload": {...}}.
type frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// payload is a field-name-tolerant view of a raw JSON object. Backend
// variants emit camelCase, PascalCase or snake_case for the same field;
// keys are folded (lowercased, underscores stripped) so "serverId",
// "ServerId" and "server_id" all resolve the same way. This adapter is the
// only place in the client that tolerates that.
type payload map[string]json.RawMessage

func fold(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", ""))
}

func parsePayload(raw json.RawMessage) (payload, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("transport.parsePayload: %w", err)
	}
	p := make(payload, len(m))
	for k, v := range m {
		p[fold(k)] = v
	}
	return p, nil
}

func (p payload) raw(key string) (json.RawMessage, bool) {
	v, ok := p[fold(key)]
	return v, ok
}

func (p payload) str(key string) string {
	v, ok := p.raw(key)
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(v, &s) != nil {
		return ""
	}
	return s
}

func (p payload) strAny(keys ...string) string {
	for _, k := range keys {
		if s := p.str(k); s != "" {
			return s
		}
	}
	return ""
}

func (p payload) int64(key string) int64 {
	v, ok := p.raw(key)
	if !ok {
		return 0
	}
	var n int64
	if json.Unmarshal(v, &n) != nil {
		return 0
	}
	return n
}

func (p payload) boolAny(keys ...string) bool {
	for _, k := range keys {
		v, ok := p.raw(k)
		if !ok {
			continue
		}
		var b bool
		if json.Unmarshal(v, &b) == nil && b {
			return true
		}
	}
	return false
}

func (p payload) timeAny(keys ...string) time.Time {
	for _, k := range keys {
		s := p.str(k)
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// DecodeFrame splits a push frame into its event type and raw payload.
func DecodeFrame(data []byte) (EventType, json.RawMessage, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return "", nil, fmt.Errorf("transport.DecodeFrame: %w", err)
	}
	if f.Type == "" {
		return "", nil, fmt.Errorf("transport.DecodeFrame: missing type")
	}
	return f.Type, f.Payload, nil
}

// NormalizeMessage builds the canonical MessageView from a raw message
// payload. selfID determines IsOwn; Status is left untouched (StatusNone),
// the engine decides indicators.
func NormalizeMessage(raw json.RawMessage, selfID string) (model.MessageView, error) {
	p, err := parsePayload(raw)
	if err != nil {
		return model.MessageView{}, err
	}
	m := model.MessageView{
		ServerID:       p.strAny("server_id", "id", "message_id"),
		TempID:         p.strAny("temp_id", "client_temp_id"),
		ConversationID: p.strAny("conversation_id", "chat_id"),
		SenderID:       p.strAny("sender_id", "from_id"),
		SenderName:     p.strAny("sender_name", "sender_username"),
		Content:        p.str("content"),
		SentAt:         p.timeAny("sent_at", "created_at"),
		IsRecalled:     p.boolAny("is_recalled", "recalled"),
		IsPinned:       p.boolAny("is_pinned", "pinned"),
	}
	m.IsOwn = m.SenderID != "" && m.SenderID == selfID
	if m.ServerID == "" && m.TempID == "" {
		return model.MessageView{}, fmt.Errorf("transport.NormalizeMessage: message without id")
	}
	if m.ConversationID == "" {
		return model.MessageView{}, fmt.Errorf("transport.NormalizeMessage: message without conversation id")
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}

	if rawAtts, ok := p.raw("attachments"); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawAtts, &items); err == nil {
			for _, item := range items {
				ap, err := parsePayload(item)
				if err != nil {
					continue
				}
				m.Attachments = append(m.Attachments, model.AttachmentRef{
					RemoteURL: ap.strAny("remote_url", "url", "file_url"),
					Kind:      normalizeKind(ap.strAny("kind", "type", "content_type")),
					Name:      ap.strAny("name", "file_name"),
					SizeBytes: ap.int64("size_bytes"),
				})
			}
		}
	}

	if rawReply, ok := p.raw("reply_to"); ok && string(rawReply) != "null" {
		rp, err := parsePayload(rawReply)
		if err == nil {
			ref := model.ReplyRef{
				MessageID:  rp.strAny("message_id", "id"),
				Preview:    rp.strAny("preview", "content"),
				SenderID:   rp.str("sender_id"),
				SenderName: rp.strAny("sender_name", "sender_username"),
			}
			if ref.MessageID != "" {
				m.ReplyTo = &ref
			}
		}
	}
	return m, nil
}

func normalizeKind(kind string) model.AttachmentKind {
	switch strings.ToLower(kind) {
	case "image", "photo":
		return model.AttachmentImage
	case "video":
		return model.AttachmentVideo
	default:
		return model.AttachmentDocument
	}
}

// NormalizeSeen builds a canonical seen receipt.
func NormalizeSeen(raw json.RawMessage) (model.SeenEvent, error) {
	p, err := parsePayload(raw)
	if err != nil {
		return model.SeenEvent{}, err
	}
	ev := model.SeenEvent{
		ConversationID: p.strAny("conversation_id", "chat_id"),
		MessageID:      p.str("message_id"),
		AccountID:      p.strAny("account_id", "user_id"),
	}
	if ev.ConversationID == "" || ev.MessageID == "" || ev.AccountID == "" {
		return model.SeenEvent{}, fmt.Errorf("transport.NormalizeSeen: incomplete receipt")
	}
	ev.Member = model.MemberInfo{
		AccountID: ev.AccountID,
		Username:  p.strAny("username", "member_name"),
		AvatarURL: p.str("avatar_url"),
	}
	if rawMember, ok := p.raw("member"); ok && string(rawMember) != "null" {
		mp, err := parsePayload(rawMember)
		if err == nil {
			ev.Member.Username = mp.strAny("username", "name")
			ev.Member.AvatarURL = mp.str("avatar_url")
		}
	}
	return ev, nil
}

// NormalizeReaction builds a canonical reaction event; added tells add from
// remove (the wire uses separate event types).
func NormalizeReaction(raw json.RawMessage, added bool) (model.ReactionEvent, error) {
	p, err := parsePayload(raw)
	if err != nil {
		return model.ReactionEvent{}, err
	}
	ev := model.ReactionEvent{
		ConversationID: p.strAny("conversation_id", "chat_id"),
		MessageID:      p.str("message_id"),
		AccountID:      p.strAny("account_id", "user_id"),
		Emoji:          p.str("emoji"),
		Added:          added,
	}
	if ev.ConversationID == "" || ev.MessageID == "" || ev.Emoji == "" {
		return model.ReactionEvent{}, fmt.Errorf("transport.NormalizeReaction: incomplete event")
	}
	return ev, nil
}

// NormalizePin builds a canonical pin event.
func NormalizePin(raw json.RawMessage, pinned bool) (model.PinEvent, error) {
	p, err := parsePayload(raw)
	if err != nil {
		return model.PinEvent{}, err
	}
	ev := model.PinEvent{
		ConversationID: p.strAny("conversation_id", "chat_id"),
		MessageID:      p.str("message_id"),
		AccountID:      p.strAny("account_id", "user_id", "pinned_by"),
		Pinned:         pinned,
	}
	if ev.ConversationID == "" || ev.MessageID == "" {
		return model.PinEvent{}, fmt.Errorf("transport.NormalizePin: incomplete event")
	}
	return ev, nil
}

// NormalizeRecall builds a canonical recall event.
func NormalizeRecall(raw json.RawMessage) (model.RecallEvent, error) {
	p, err := parsePayload(raw)
	if err != nil {
		return model.RecallEvent{}, err
	}
	ev := model.RecallEvent{
		ConversationID: p.strAny("conversation_id", "chat_id"),
		MessageID:      p.str("message_id"),
	}
	if ev.ConversationID == "" || ev.MessageID == "" {
		return model.RecallEvent{}, fmt.Errorf("transport.NormalizeRecall: incomplete event")
	}
	return ev, nil
}

// NormalizeTyping builds a canonical typing event.
func NormalizeTyping(raw json.RawMessage) (model.TypingEvent, error) {
	p, err := parsePayload(raw)
	if err != nil {
		return model.TypingEvent{}, err
	}
	ev := model.TypingEvent{
		ConversationID: p.strAny("conversation_id", "chat_id"),
		AccountID:      p.strAny("account_id", "user_id"),
	}
	if ev.ConversationID == "" || ev.AccountID == "" {
		return model.TypingEvent{}, fmt.Errorf("transport.NormalizeTyping: incomplete event")
	}
	return ev, nil
}
