package engine

import (
	"strings"
	"time"

	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/session"
)

// normalizeContent trims and collapses whitespace runs; comparison stays
// case-sensitive.
func normalizeContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// HandleMessage reconciles an inbound push message against the rendered
// state. Matching priority, first match wins, each inbound message matches
// at most one optimistic entry:
//
//  1. exact tempId equality;
//  2. for an own message without tempId, normalized-content equality against
//     a rendered own pending/sent message (note: two rapid sends with
//     identical trimmed text can mis-match here; long-standing behavior,
//     kept deliberately);
//  3. for an attachment-only message, attachment-count equality against a
//     content-less own pending message;
//  4. an already-rendered serverId is a duplicate echo, discarded;
//  5. otherwise it is a genuinely new message and is appended.
func (e *Engine) HandleMessage(msg model.MessageView) {
	defer logger.DeferLogDuration("engine.HandleMessage", time.Now())()
	e.mu.Lock()
	msg.IsOwn = msg.SenderID == e.opts.SelfID
	s := e.dir.Get(msg.ConversationID)
	if s == nil && msg.IsOwn {
		// An own echo under an id we do not know yet can be the first
		// confirmation of a placeholder conversation: the echo reveals the
		// durable id before the REST response does.
		s = e.adoptPlaceholderLocked(&msg)
	}
	if s == nil {
		e.mu.Unlock()
		logger.Debugf("engine: push message for closed conversation %s, dropped", msg.ConversationID)
		return
	}

	if matched := e.matchEchoLocked(s, &msg); matched != nil {
		e.promoteLocked(s, matched, msg.ServerID, msg.Attachments)
		notify := e.changedLocked(s)
		e.mu.Unlock()
		notify()
		return
	}

	if msg.ServerID != "" && s.FindByServerID(msg.ServerID) != nil {
		// Duplicate echo: the REST confirmation (or an earlier frame)
		// already delivered this serverId. Not an error.
		e.mu.Unlock()
		return
	}

	e.clearSentLocked(s, nil)
	appended := msg
	appended.ConversationID = s.ID
	appended.Status = model.StatusNone
	s.Append(&appended)
	s.Touch()

	// A receipt may have raced ahead of the message it targets.
	e.queue.ApplyAndDrain(s.ID, appended.ServerID, func(accountID, messageID string, member model.MemberInfo) {
		e.applySeenLocked(s, messageID, member)
	})

	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()
}

// adoptPlaceholderLocked scans placeholder sessions for an optimistic
// message the inbound own echo could belong to; on a match the placeholder
// is promoted to the echo's conversation id and its session returned.
func (e *Engine) adoptPlaceholderLocked(msg *model.MessageView) *session.Session {
	for _, ps := range e.dir.All() {
		if !model.IsPlaceholderID(ps.ID) {
			continue
		}
		if e.matchEchoLocked(ps, msg) != nil {
			return e.promoteConversationLocked(ps, msg.ConversationID)
		}
	}
	return nil
}

// matchEchoLocked finds the optimistic message an inbound payload echoes,
// or nil. Only unconfirmed messages are promotable; a content match against
// an already-confirmed message is treated as a duplicate by the caller's
// serverId check.
func (e *Engine) matchEchoLocked(s *session.Session, msg *model.MessageView) *model.MessageView {
	if msg.TempID != "" {
		if m := s.FindByTempID(msg.TempID); m != nil && !m.Confirmed() {
			return m
		}
		return nil
	}
	if !msg.IsOwn {
		return nil
	}

	if norm := normalizeContent(msg.Content); norm != "" {
		for _, m := range s.Messages {
			if !m.IsOwn || m.Confirmed() {
				continue
			}
			if m.Status != model.StatusPending && m.Status != model.StatusSent {
				continue
			}
			if normalizeContent(m.Content) == norm {
				return m
			}
		}
		return nil
	}

	// Attachment-only: no content on either side, count must agree.
	if len(msg.Attachments) == 0 {
		return nil
	}
	for _, m := range s.Messages {
		if !m.IsOwn || m.Confirmed() || m.Status != model.StatusPending {
			continue
		}
		if m.Content == "" && len(m.Attachments) == len(msg.Attachments) {
			return m
		}
	}
	return nil
}
