package engine

import (
	"fmt"
	"time"

	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/session"
	"github.com/chatclient/internal/transport"
)

// LoadOlder fetches the next page of history above the current head.
func (e *Engine) LoadOlder(conversationID string) error {
	e.mu.Lock()
	s := e.dir.Get(conversationID)
	if s == nil {
		e.mu.Unlock()
		return fmt.Errorf("engine.LoadOlder: conversation %s not open", conversationID)
	}
	if len(s.Messages) > 0 && !s.HasMoreOlder {
		e.mu.Unlock()
		return nil
	}
	cursor := s.OlderCursor
	e.mu.Unlock()

	return e.loadPage(conversationID, cursor, len(cursor) == 0)
}

// loadPage fetches one history page and merges it in. The fetch happens
// outside the engine lock; the session is re-resolved afterwards and the
// page is discarded if the session closed or another load won the race.
func (e *Engine) loadPage(conversationID, cursor string, initial bool) error {
	defer logger.DeferLogDuration("engine.loadPage", time.Now())()
	ctx, cancel := e.pageCtx()
	page, err := e.backend.GetMessagesPage(ctx, conversationID, cursor, e.opts.PageSize)
	cancel()
	if err != nil {
		return fmt.Errorf("engine.loadPage: %w", err)
	}

	e.mu.Lock()
	s := e.dir.Get(conversationID)
	if s == nil {
		e.mu.Unlock()
		return nil
	}
	if !initial && s.OlderCursor != cursor {
		// A concurrent load already advanced the cursor; drop this page.
		e.mu.Unlock()
		return nil
	}
	added := e.mergeOlderLocked(s, page)
	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()
	logger.Debugf("engine: loaded %d older messages for %s", added, conversationID)
	return nil
}

// mergeOlderLocked prepends a history page, skipping messages that are
// already rendered (an echo can land while the page is in flight), then
// speculatively drains receipts for everything that just became renderable.
func (e *Engine) mergeOlderLocked(s *session.Session, page *transport.MessagesPage) int {
	older := make([]*model.MessageView, 0, len(page.Items))
	for i := range page.Items {
		item := page.Items[i]
		if item.ServerID != "" && s.FindByServerID(item.ServerID) != nil {
			continue
		}
		item.ConversationID = s.ID
		item.Status = model.StatusNone
		older = append(older, &item)
	}
	s.Prepend(older)
	s.OlderCursor = page.OlderCursor
	s.HasMoreOlder = page.HasMoreOlder

	for _, m := range older {
		if m.ServerID == "" {
			continue
		}
		e.queue.ApplyAndDrain(s.ID, m.ServerID, func(accountID, messageID string, member model.MemberInfo) {
			e.applySeenLocked(s, messageID, member)
		})
	}
	return len(older)
}

// JumpToMessage scrolls the view to a specific message, loading its
// surrounding page when it is not rendered. Unconfirmed own messages are
// carried over so optimistic state survives the jump.
func (e *Engine) JumpToMessage(conversationID, messageID string) error {
	e.mu.Lock()
	s := e.dir.Get(conversationID)
	if s == nil {
		e.mu.Unlock()
		return fmt.Errorf("engine.JumpToMessage: conversation %s not open", conversationID)
	}
	if s.FindByServerID(messageID) != nil {
		e.queue.ApplyAndDrain(s.ID, messageID, func(accountID, msgID string, member model.MemberInfo) {
			e.applySeenLocked(s, msgID, member)
		})
		notify := e.changedLocked(s)
		e.mu.Unlock()
		notify()
		return nil
	}
	e.mu.Unlock()

	ctx, cancel := e.pageCtx()
	page, err := e.backend.GetMessageContext(ctx, conversationID, messageID, e.opts.PageSize)
	cancel()
	if err != nil {
		return fmt.Errorf("engine.JumpToMessage: %w", err)
	}

	e.mu.Lock()
	s = e.dir.Get(conversationID)
	if s == nil {
		e.mu.Unlock()
		return nil
	}

	var keep []*model.MessageView
	for _, m := range s.Messages {
		if m.IsOwn && !m.Confirmed() {
			keep = append(keep, m)
		}
	}
	replaced := make([]*model.MessageView, 0, len(page.Items)+len(keep))
	for i := range page.Items {
		item := page.Items[i]
		item.ConversationID = s.ID
		item.Status = model.StatusNone
		replaced = append(replaced, &item)
	}
	replaced = append(replaced, keep...)
	s.Messages = replaced
	s.OlderCursor = page.OlderCursor
	s.HasMoreOlder = page.HasMoreOlder
	s.Touch()

	for _, m := range replaced {
		if m.ServerID == "" {
			continue
		}
		e.queue.ApplyAndDrain(s.ID, m.ServerID, func(accountID, msgID string, member model.MemberInfo) {
			e.applySeenLocked(s, msgID, member)
		})
	}
	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()
	return nil
}
