package engine

import (
	"strings"
	"time"

	"github.com/chatclient/internal/attach"
	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/session"
	"github.com/chatclient/internal/transport"
	"github.com/google/uuid"
)

// Send renders an outgoing message optimistically and issues the network
// send asynchronously. Returns the message's tempId, or "" when both
// content and attachments are empty (a no-op by contract). Network failure
// marks the message Failed; RetrySend re-uses the same tempId and files.
func (e *Engine) Send(conversationID, content string, files []transport.AttachmentUpload) (string, error) {
	defer logger.DeferLogDuration("engine.Send", time.Now())()
	if strings.TrimSpace(content) == "" && len(files) == 0 {
		return "", nil
	}

	e.mu.Lock()
	s := e.dir.Get(conversationID)
	if s == nil {
		var evicted *session.Session
		s, evicted = e.dir.Create(conversationID)
		if evicted != nil {
			e.teardownLocked(evicted)
		}
		e.joinLocked(s)
	}
	s.Touch()

	tempID := uuid.New().String()
	atts := make([]model.AttachmentRef, 0, len(files))
	for _, f := range files {
		url, err := e.attachments.Mint(tempID, f.Path)
		if err != nil {
			e.attachments.RevokeScope(tempID)
			e.mu.Unlock()
			return "", err
		}
		atts = append(atts, model.AttachmentRef{
			LocalURL:  url,
			Kind:      f.Kind,
			Name:      f.Name,
			SizeBytes: f.SizeBytes,
		})
	}

	msg := &model.MessageView{
		TempID:         tempID,
		ConversationID: s.ID,
		SenderID:       e.opts.SelfID,
		IsOwn:          true,
		Content:        content,
		Attachments:    atts,
		Status:         model.StatusPending,
		SentAt:         time.Now().UTC(),
		ReplyTo:        s.ReplyDraft,
	}
	s.ReplyDraft = nil

	// A newer own message is on its way; the previous delivered-unseen
	// indicator comes off now.
	e.clearSentLocked(s, nil)
	s.Append(msg)

	req := transport.SendRequest{
		ConversationID: s.ID,
		TempID:         tempID,
		Content:        content,
		Attachments:    files,
	}
	if msg.ReplyTo != nil {
		req.ReplyToID = msg.ReplyTo.MessageID
	}
	e.outbound[tempID] = &outbound{conversationID: s.ID, req: req}

	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()

	go e.performSend(tempID)
	return tempID, nil
}

// RetrySend re-issues a failed send. The stored request is reused as-is: no
// new tempId, no re-minted attachments.
func (e *Engine) RetrySend(tempID string) {
	e.mu.Lock()
	ob, ok := e.outbound[tempID]
	if !ok {
		e.mu.Unlock()
		return
	}
	s := e.resolveConversationLocked(ob.conversationID)
	if s == nil {
		delete(e.outbound, tempID)
		e.attachments.RevokeScope(tempID)
		e.mu.Unlock()
		return
	}
	m := s.FindByTempID(tempID)
	if m == nil || m.Confirmed() {
		e.mu.Unlock()
		return
	}
	m.Status = model.StatusPending
	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()

	go e.performSend(tempID)
}

func (e *Engine) performSend(tempID string) {
	e.mu.Lock()
	ob, ok := e.outbound[tempID]
	if !ok {
		e.mu.Unlock()
		return
	}
	req := ob.req
	// The conversation may have been promoted since the message was queued;
	// address the durable id when we have one.
	if s := e.resolveConversationLocked(ob.conversationID); s != nil {
		req.ConversationID = s.ID
	}
	e.mu.Unlock()

	ctx, cancel := e.sendCtx()
	res, err := e.backend.SendMessage(ctx, req)
	cancel()

	if err != nil {
		e.failSend(tempID, err)
		return
	}
	e.confirmSend(tempID, res)
}

func (e *Engine) failSend(tempID string, sendErr error) {
	e.mu.Lock()
	ob, ok := e.outbound[tempID]
	if !ok {
		e.mu.Unlock()
		return
	}
	s := e.resolveConversationLocked(ob.conversationID)
	if s == nil {
		// Session closed mid-flight: discard the result, the scope was
		// already purged by teardown.
		delete(e.outbound, tempID)
		e.mu.Unlock()
		return
	}
	m := s.FindByTempID(tempID)
	if m == nil || m.Confirmed() {
		// The push echo already promoted this message; the late REST
		// failure is moot.
		delete(e.outbound, tempID)
		e.mu.Unlock()
		return
	}
	logger.Errorf("engine send temp=%s: %v", tempID, sendErr)
	// Attachments stay registered: the retry needs them.
	m.Status = model.StatusFailed
	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()
}

func (e *Engine) confirmSend(tempID string, res *transport.SendResult) {
	e.mu.Lock()
	ob, ok := e.outbound[tempID]
	if !ok {
		e.mu.Unlock()
		return
	}
	s := e.resolveConversationLocked(ob.conversationID)
	if s == nil {
		delete(e.outbound, tempID)
		e.mu.Unlock()
		return
	}

	// The response may reveal the durable id of a placeholder conversation;
	// re-key everything before touching the message so queued receipts and
	// scopes land under the new id.
	if res.ConversationID != "" && res.ConversationID != s.ID && model.IsPlaceholderID(s.ID) {
		s = e.promoteConversationLocked(s, res.ConversationID)
	}

	m := s.FindByTempID(tempID)
	if m != nil {
		e.promoteLocked(s, m, res.ServerID, res.Attachments)
	}
	delete(e.outbound, tempID)
	notify := e.changedLocked(s)
	e.mu.Unlock()
	notify()
}

// promoteLocked assigns the authoritative server identity to an optimistic
// message, swaps local attachment handles for canonical URLs, drains
// receipts that were waiting on the new serverId and re-applies indicator
// exclusivity. Idempotent: the REST confirmation and the push echo both
// call it, whichever loses the race is a no-op.
func (e *Engine) promoteLocked(s *session.Session, m *model.MessageView, serverID string, canonical []model.AttachmentRef) {
	if m.Confirmed() {
		return
	}
	m.ServerID = serverID
	e.clearSentLocked(s, m)
	m.Status = model.StatusSent

	for i := range m.Attachments {
		if i < len(canonical) && canonical[i].RemoteURL != "" {
			m.Attachments[i].RemoteURL = canonical[i].RemoteURL
		}
	}
	allSwapped := true
	for i := range m.Attachments {
		if m.Attachments[i].LocalURL != "" && m.Attachments[i].RemoteURL == "" {
			allSwapped = false
			break
		}
	}
	// Never release a local handle that is still the only source for
	// visible media.
	if allSwapped {
		e.attachments.RevokeScope(m.TempID)
	}

	e.queue.ApplyAndDrain(s.ID, serverID, func(accountID, messageID string, member model.MemberInfo) {
		e.applySeenLocked(s, messageID, member)
	})
}

// promoteConversationLocked re-keys a placeholder conversation to its
// durable id: directory entry (preserving session identity), queued
// receipts, preview attachment scope, in-flight sends, realtime join. Runs
// to completion under the engine lock, so no event can observe a half-moved
// state; the directory keeps an alias so events addressed to the old id
// still resolve.
func (e *Engine) promoteConversationLocked(s *session.Session, durableID string) *session.Session {
	oldID := s.ID
	if existing := e.dir.Get(durableID); existing != nil && existing != s {
		// The durable conversation is somehow already open; fold the
		// placeholder into it rather than holding two sessions.
		logger.Errorf("engine: placeholder %s promoted to already-open %s", oldID, durableID)
		e.teardownLocked(s)
		return existing
	}
	logger.Infof("engine: promoting conversation %s -> %s", oldID, durableID)

	s.StopJoinTimer()
	e.realtime.Leave(oldID)
	promoted := e.dir.Rekey(oldID, durableID)
	if promoted == nil {
		return s
	}
	e.queue.Rekey(oldID, durableID)
	e.attachments.RekeyScope(attach.PreviewScope(oldID), attach.PreviewScope(durableID))
	for _, ob := range e.outbound {
		if ob.conversationID == oldID {
			ob.conversationID = durableID
			ob.req.ConversationID = durableID
		}
	}
	for _, m := range promoted.Messages {
		m.ConversationID = durableID
	}

	promoted.Joined = false
	promoted.JoinAttempts = 0
	e.joinLocked(promoted)
	return promoted
}

// clearSentLocked enforces indicator exclusivity: at most one own message
// per conversation shows the delivered-unseen indicator.
func (e *Engine) clearSentLocked(s *session.Session, except *model.MessageView) {
	for _, m := range s.Messages {
		if m == except {
			continue
		}
		if m.IsOwn && m.Status == model.StatusSent {
			m.Status = model.StatusNone
		}
	}
}

// applySeenLocked records a receipt on a rendered message; a receipt on the
// indicator-bearing message retires the indicator.
func (e *Engine) applySeenLocked(s *session.Session, messageID string, member model.MemberInfo) {
	m := s.FindByServerID(messageID)
	if m == nil {
		return
	}
	m.AddSeen(member)
	if m.IsOwn && m.Status == model.StatusSent {
		m.Status = model.StatusNone
	}
}
