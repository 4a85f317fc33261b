// Package session holds the mutable state of open conversations. Nothing
// here locks: all access is serialized by the engine, which is the only
// writer (the render layer only ever sees cloned snapshots).
package session

import (
	"time"

	"github.com/chatclient/internal/model"
)

// Session is one open conversation: its rendered messages in delivery
// order, pagination cursor and realtime join state.
type Session struct {
	ID string

	// Messages are ordered by delivery, not necessarily by send time.
	Messages []*model.MessageView

	OlderCursor  string
	HasMoreOlder bool

	ReplyDraft *model.ReplyRef

	Joined       bool
	JoinAttempts int
	joinTimer    *time.Timer

	lastActive time.Time
}

func New(id string) *Session {
	return &Session{ID: id, lastActive: time.Now()}
}

// Touch marks the session as recently used for eviction ordering.
func (s *Session) Touch() { s.lastActive = time.Now() }

// LastActive returns the last time the session was used.
func (s *Session) LastActive() time.Time { return s.lastActive }

// Append adds a message at the tail (newest position).
func (s *Session) Append(m *model.MessageView) {
	s.Messages = append(s.Messages, m)
}

// Prepend inserts older messages before the current head, preserving their
// given order.
func (s *Session) Prepend(older []*model.MessageView) {
	if len(older) == 0 {
		return
	}
	merged := make([]*model.MessageView, 0, len(older)+len(s.Messages))
	merged = append(merged, older...)
	merged = append(merged, s.Messages...)
	s.Messages = merged
}

// FindByTempID returns the rendered message carrying tempID, if any.
func (s *Session) FindByTempID(tempID string) *model.MessageView {
	if tempID == "" {
		return nil
	}
	for _, m := range s.Messages {
		if m.TempID == tempID {
			return m
		}
	}
	return nil
}

// FindByServerID returns the rendered message with serverID, if any.
func (s *Session) FindByServerID(serverID string) *model.MessageView {
	if serverID == "" {
		return nil
	}
	for _, m := range s.Messages {
		if m.ServerID == serverID {
			return m
		}
	}
	return nil
}

// Remove deletes the message with the given key (server or temp id) from
// the rendered list. Returns true if something was removed.
func (s *Session) Remove(key string) bool {
	for i, m := range s.Messages {
		if m.Key() == key {
			s.Messages = append(s.Messages[:i], s.Messages[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot deep-copies the rendered messages for the render layer.
func (s *Session) Snapshot() []model.MessageView {
	out := make([]model.MessageView, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = m.Clone()
	}
	return out
}

// SetJoinTimer replaces a pending join retry timer, stopping the old one.
func (s *Session) SetJoinTimer(t *time.Timer) {
	if s.joinTimer != nil {
		s.joinTimer.Stop()
	}
	s.joinTimer = t
}

// StopJoinTimer cancels any pending join retry.
func (s *Session) StopJoinTimer() {
	if s.joinTimer != nil {
		s.joinTimer.Stop()
		s.joinTimer = nil
	}
}
