package engine

import (
	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
)

// HandleSeen applies a push read receipt. A receipt whose target message is
// not rendered yet (still on an unloaded page, or an optimistic message
// awaiting its serverId) waits in the pending queue instead of being
// dropped. Receipts for conversations with no open session are discarded:
// their read state is reflected in server history whenever the conversation
// is opened.
func (e *Engine) HandleSeen(ev model.SeenEvent) {
	e.mu.Lock()
	s := e.dir.Get(ev.ConversationID)
	if s == nil {
		e.mu.Unlock()
		return
	}
	if s.FindByServerID(ev.MessageID) == nil {
		// Queue under the session's current id so a later promotion re-keys
		// this entry along with everything else.
		e.queue.Enqueue(s.ID, ev.MessageID, ev.AccountID, ev.Member)
		e.mu.Unlock()
		return
	}
	e.applySeenLocked(s, ev.MessageID, ev.Member)
	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()
}

// HandleReaction applies a push reaction add/remove.
func (e *Engine) HandleReaction(ev model.ReactionEvent) {
	e.mu.Lock()
	s := e.dir.Get(ev.ConversationID)
	if s == nil {
		e.mu.Unlock()
		return
	}
	m := s.FindByServerID(ev.MessageID)
	if m == nil {
		e.mu.Unlock()
		return
	}
	m.ApplyReaction(ev.AccountID, ev.Emoji, ev.Added)
	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()
}

// HandlePin applies a push pin/unpin.
func (e *Engine) HandlePin(ev model.PinEvent) {
	e.mu.Lock()
	s := e.dir.Get(ev.ConversationID)
	if s == nil {
		e.mu.Unlock()
		return
	}
	m := s.FindByServerID(ev.MessageID)
	if m == nil {
		e.mu.Unlock()
		return
	}
	m.IsPinned = ev.Pinned
	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()
}

// HandleRecall marks a message recalled; content is blanked, the bubble
// stays.
func (e *Engine) HandleRecall(ev model.RecallEvent) {
	e.mu.Lock()
	s := e.dir.Get(ev.ConversationID)
	if s == nil {
		e.mu.Unlock()
		return
	}
	m := s.FindByServerID(ev.MessageID)
	if m == nil {
		e.mu.Unlock()
		return
	}
	m.IsRecalled = true
	m.Content = ""
	m.Attachments = nil
	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()
}

// HandleTyping forwards a typing event to the render layer; no message
// state is touched.
func (e *Engine) HandleTyping(ev model.TypingEvent) {
	if ev.AccountID == e.opts.SelfID {
		return
	}
	e.mu.Lock()
	open := e.dir.Has(ev.ConversationID)
	notifier := e.notifier
	e.mu.Unlock()
	if open && notifier != nil {
		notifier.Typing(ev.ConversationID, ev.AccountID)
	}
}

// React toggles own reaction on a message. The push echo carries the
// authoritative update; on REST success the same mutation is applied
// locally so the UI does not wait for the round-trip.
func (e *Engine) React(conversationID, messageID, emoji string, added bool) {
	go func() {
		ctx, cancel := e.sendCtx()
		defer cancel()
		if err := e.backend.React(ctx, conversationID, messageID, emoji, added); err != nil {
			logger.Errorf("engine react msg=%s: %v", messageID, err)
			return
		}
		e.HandleReaction(model.ReactionEvent{
			ConversationID: conversationID,
			MessageID:      messageID,
			AccountID:      e.opts.SelfID,
			Emoji:          emoji,
			Added:          added,
		})
	}()
}

// SetPinned pins or unpins a message.
func (e *Engine) SetPinned(conversationID, messageID string, pinned bool) {
	go func() {
		ctx, cancel := e.sendCtx()
		defer cancel()
		if err := e.backend.SetPinned(ctx, conversationID, messageID, pinned); err != nil {
			logger.Errorf("engine pin msg=%s: %v", messageID, err)
			return
		}
		e.HandlePin(model.PinEvent{
			ConversationID: conversationID,
			MessageID:      messageID,
			AccountID:      e.opts.SelfID,
			Pinned:         pinned,
		})
	}()
}

// Recall asks the server to recall an own message.
func (e *Engine) Recall(conversationID, messageID string) {
	go func() {
		ctx, cancel := e.sendCtx()
		defer cancel()
		if err := e.backend.RecallMessage(ctx, conversationID, messageID); err != nil {
			logger.Errorf("engine recall msg=%s: %v", messageID, err)
			return
		}
		e.HandleRecall(model.RecallEvent{ConversationID: conversationID, MessageID: messageID})
	}()
}

// Hide removes a message from the local view only. Hiding an unconfirmed
// own message cancels its retry state and releases its attachment handles.
func (e *Engine) Hide(conversationID, messageKey string) {
	e.mu.Lock()
	s := e.dir.Get(conversationID)
	if s == nil {
		e.mu.Unlock()
		return
	}
	var removedTemp string
	if m := s.FindByTempID(messageKey); m != nil && !m.Confirmed() {
		removedTemp = m.TempID
	}
	if !s.Remove(messageKey) {
		e.mu.Unlock()
		return
	}
	if removedTemp != "" {
		delete(e.outbound, removedTemp)
		e.attachments.RevokeScope(removedTemp)
	}
	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()
}

// MarkConversationSeen reports the newest rendered remote message as read.
func (e *Engine) MarkConversationSeen(conversationID string) {
	e.mu.Lock()
	s := e.dir.Get(conversationID)
	if s == nil {
		e.mu.Unlock()
		return
	}
	var latest string
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if !m.IsOwn && m.ServerID != "" {
			latest = m.ServerID
			break
		}
	}
	id := s.ID
	e.mu.Unlock()
	if latest == "" {
		return
	}

	go func() {
		ctx, cancel := e.sendCtx()
		defer cancel()
		if err := e.backend.MarkSeen(ctx, id, latest); err != nil {
			logger.Errorf("engine mark seen conv=%s: %v", id, err)
		}
	}()
}
