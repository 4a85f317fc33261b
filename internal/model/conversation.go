package model

import "strings"

// PlaceholderPrefix marks an ephemeral conversation id minted by the client
// for the first message to a new peer, before the server reveals the durable
// id.
const PlaceholderPrefix = "new-"

// IsPlaceholderID reports whether a conversation id is client-local and
// still awaiting promotion to a durable server id.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// SeenEvent is a read receipt delivered over the realtime channel: an
// account has read up to MessageID in a conversation.
type SeenEvent struct {
	ConversationID string     `json:"conversation_id"`
	MessageID      string     `json:"message_id"`
	AccountID      string     `json:"account_id"`
	Member         MemberInfo `json:"member"`
}

// ReactionEvent is broadcast when a reaction is added or removed.
type ReactionEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	AccountID      string `json:"account_id"`
	Emoji          string `json:"emoji"`
	Added          bool   `json:"added"`
}

// PinEvent is broadcast when a message is pinned or unpinned.
type PinEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	AccountID      string `json:"account_id"`
	Pinned         bool   `json:"pinned"`
}

// RecallEvent is broadcast when the sender recalls a message.
type RecallEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// TypingEvent is broadcast while a member is typing.
type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	AccountID      string `json:"account_id"`
}
