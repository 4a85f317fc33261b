package model

import "time"

type MessageStatus string

const (
	// StatusNone is used for remote messages and for own messages that have
	// been confirmed and seen; no indicator is shown.
	StatusNone    MessageStatus = ""
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentDocument AttachmentKind = "document"
)

// AttachmentRef points at one attachment of a message. LocalURL is a
// client-minted spool handle rendered before upload confirmation; once
// RemoteURL is set the local handle is no longer authoritative and may be
// revoked.
type AttachmentRef struct {
	LocalURL  string         `json:"local_url,omitempty"`
	RemoteURL string         `json:"remote_url,omitempty"`
	Kind      AttachmentKind `json:"kind"`
	Name      string         `json:"name,omitempty"`
	SizeBytes int64          `json:"size_bytes,omitempty"`
}

// ReplyRef is the reply link rendered above a message: enough of the quoted
// message to draw the preview without fetching it.
type ReplyRef struct {
	MessageID  string `json:"message_id"`
	Preview    string `json:"preview"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
}

// ReactionGroup is aggregated reaction info for display.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"` // account IDs
}

// MemberInfo identifies a conversation member on a seen receipt.
type MemberInfo struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// MessageView is the canonical client-side representation of one message,
// own or remote. Exactly one of TempID/ServerID may be empty, never both:
// an optimistic message carries TempID until confirmation assigns ServerID,
// and ServerID is never cleared once set. A message with StatusSent always
// has a ServerID.
type MessageView struct {
	TempID         string          `json:"temp_id,omitempty"`
	ServerID       string          `json:"server_id,omitempty"`
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	SenderName     string          `json:"sender_name,omitempty"`
	IsOwn          bool            `json:"is_own"`
	Content        string          `json:"content"`
	Attachments    []AttachmentRef `json:"attachments,omitempty"`
	Status         MessageStatus   `json:"status,omitempty"`
	SentAt         time.Time       `json:"sent_at"`
	IsRecalled     bool            `json:"is_recalled,omitempty"`
	IsPinned       bool            `json:"is_pinned,omitempty"`
	Reactions      []ReactionGroup `json:"reactions,omitempty"`
	ReplyTo        *ReplyRef       `json:"reply_to,omitempty"`
	SeenBy         []MemberInfo    `json:"seen_by,omitempty"`
}

// Key returns the stable identity of the message: ServerID once confirmed,
// TempID before that.
func (m *MessageView) Key() string {
	if m.ServerID != "" {
		return m.ServerID
	}
	return m.TempID
}

// Confirmed reports whether the server has acknowledged the message.
func (m *MessageView) Confirmed() bool { return m.ServerID != "" }

// Clone returns a deep copy safe to hand to the render layer.
func (m *MessageView) Clone() MessageView {
	cp := *m
	if m.Attachments != nil {
		cp.Attachments = make([]AttachmentRef, len(m.Attachments))
		copy(cp.Attachments, m.Attachments)
	}
	if m.Reactions != nil {
		cp.Reactions = make([]ReactionGroup, len(m.Reactions))
		for i, g := range m.Reactions {
			cp.Reactions[i] = g
			cp.Reactions[i].Users = append([]string(nil), g.Users...)
		}
	}
	if m.SeenBy != nil {
		cp.SeenBy = append([]MemberInfo(nil), m.SeenBy...)
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		cp.ReplyTo = &r
	}
	return cp
}

// AddSeen records that an account has seen the message. Last write wins for
// a duplicate account.
func (m *MessageView) AddSeen(member MemberInfo) {
	for i := range m.SeenBy {
		if m.SeenBy[i].AccountID == member.AccountID {
			m.SeenBy[i] = member
			return
		}
	}
	m.SeenBy = append(m.SeenBy, member)
}

// ApplyReaction updates the aggregated reaction groups for one account.
func (m *MessageView) ApplyReaction(accountID, emoji string, added bool) {
	for i := range m.Reactions {
		g := &m.Reactions[i]
		if g.Emoji != emoji {
			continue
		}
		idx := -1
		for j, uid := range g.Users {
			if uid == accountID {
				idx = j
				break
			}
		}
		if added {
			if idx < 0 {
				g.Users = append(g.Users, accountID)
				g.Count++
			}
			return
		}
		if idx >= 0 {
			g.Users = append(g.Users[:idx], g.Users[idx+1:]...)
			g.Count--
			if g.Count <= 0 {
				m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			}
		}
		return
	}
	if added {
		m.Reactions = append(m.Reactions, ReactionGroup{Emoji: emoji, Count: 1, Users: []string{accountID}})
	}
}
