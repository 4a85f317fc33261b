// Package engine is the message delivery reconciliation core: it owns the
// optimistic send lifecycle, matches realtime echoes against rendered
// messages, applies deferred seen receipts and promotes placeholder
// conversation ids to durable ones.
//
// All state mutation goes through engine entry points under one mutex;
// operations run to completion, and asynchronous completions (REST
// responses, push frames, retry timers) re-enter through the same entry
// points. Nothing else mutates a session's message list.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/chatclient/internal/attach"
	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/receipts"
	"github.com/chatclient/internal/session"
	"github.com/chatclient/internal/transport"
)

// Notifier receives change notifications for the render layer. The
// snapshot is a deep copy: rendering never aliases engine state and never
// round-trips through markup to recover it.
type Notifier interface {
	SessionChanged(conversationID string, snapshot []model.MessageView)
	Typing(conversationID, accountID string)
}

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	SelfID            string
	PageSize          int
	SendTimeout       time.Duration
	PageTimeout       time.Duration
	JoinRetryInterval time.Duration
	JoinRetryAttempts int
}

func (o *Options) withDefaults() {
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 15 * time.Second
	}
	if o.PageTimeout <= 0 {
		o.PageTimeout = 10 * time.Second
	}
	if o.JoinRetryInterval <= 0 {
		o.JoinRetryInterval = 1500 * time.Millisecond
	}
	if o.JoinRetryAttempts <= 0 {
		o.JoinRetryAttempts = 10
	}
}

// outbound is one in-flight (or failed, retryable) send, keyed by tempId.
// The request keeps the original attachment files so a retry re-uses them
// under the same tempId.
type outbound struct {
	conversationID string
	req            transport.SendRequest
}

type Engine struct {
	mu sync.Mutex

	opts     Options
	backend  transport.Backend
	realtime transport.Realtime
	notifier Notifier

	dir         *session.Directory
	attachments *attach.Registry
	queue       *receipts.Queue

	outbound map[string]*outbound
}

func New(backend transport.Backend, realtime transport.Realtime, notifier Notifier,
	dir *session.Directory, attachments *attach.Registry, queue *receipts.Queue, opts Options) *Engine {
	opts.withDefaults()
	return &Engine{
		opts:        opts,
		backend:     backend,
		realtime:    realtime,
		notifier:    notifier,
		dir:         dir,
		attachments: attachments,
		queue:       queue,
		outbound:    make(map[string]*outbound),
	}
}

// changedLocked captures a snapshot for emission after the lock is
// released; notifications never run under the engine mutex.
func (e *Engine) changedLocked(s *session.Session) func() {
	if e.notifier == nil {
		return func() {}
	}
	id := s.ID
	snap := s.Snapshot()
	return func() { e.notifier.SessionChanged(id, snap) }
}

// Open creates (or touches) the session for a conversation, joins its
// realtime room and loads the first page of history. Placeholder
// conversations have no history to load.
func (e *Engine) Open(conversationID string) error {
	e.mu.Lock()
	if s := e.dir.Get(conversationID); s != nil {
		s.Touch()
		e.mu.Unlock()
		return nil
	}
	s, evicted := e.dir.Create(conversationID)
	if evicted != nil {
		logger.Infof("engine: evicting session %s (open cap reached)", evicted.ID)
		e.teardownLocked(evicted)
	}
	e.joinLocked(s)
	e.mu.Unlock()

	if model.IsPlaceholderID(conversationID) {
		return nil
	}
	return e.loadPage(conversationID, "", true)
}

// Close tears a session down: leaves its realtime room, purges its
// attachment scopes and queued receipts. Results of in-flight sends for the
// conversation are discarded when they complete.
func (e *Engine) Close(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.dir.Get(conversationID)
	if s == nil {
		return
	}
	e.teardownLocked(s)
}

func (e *Engine) teardownLocked(s *session.Session) {
	s.StopJoinTimer()
	e.realtime.Leave(s.ID)
	e.queue.DropConversation(s.ID)
	e.attachments.RevokeScope(attach.PreviewScope(s.ID))
	for _, m := range s.Messages {
		if m.TempID != "" {
			e.attachments.RevokeScope(m.TempID)
		}
	}
	for tempID, ob := range e.outbound {
		if e.resolveConversationLocked(ob.conversationID) == s {
			delete(e.outbound, tempID)
			e.attachments.RevokeScope(tempID)
		}
	}
	e.dir.Remove(s.ID)
}

// resolveConversationLocked maps a possibly-stale conversation id (taken
// before a promotion) to its current session.
func (e *Engine) resolveConversationLocked(conversationID string) *session.Session {
	return e.dir.Get(conversationID)
}

// SetReplyDraft records the reply context the next Send will consume.
func (e *Engine) SetReplyDraft(conversationID, messageKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.dir.Get(conversationID)
	if s == nil {
		return
	}
	var target *model.MessageView
	if m := s.FindByServerID(messageKey); m != nil {
		target = m
	} else if m := s.FindByTempID(messageKey); m != nil {
		target = m
	}
	if target == nil {
		return
	}
	preview := target.Content
	if len(preview) > 120 {
		preview = preview[:117] + "..."
	}
	s.ReplyDraft = &model.ReplyRef{
		MessageID:  target.Key(),
		Preview:    preview,
		SenderID:   target.SenderID,
		SenderName: target.SenderName,
	}
}

// ClearReplyDraft drops any pending reply context.
func (e *Engine) ClearReplyDraft(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.dir.Get(conversationID); s != nil {
		s.ReplyDraft = nil
	}
}

// TrackPreview registers a compose-time preview handle under the
// conversation's preview scope (attachment picked but not yet sent).
func (e *Engine) TrackPreview(conversationID, srcPath string) (string, error) {
	return e.attachments.Mint(attach.PreviewScope(conversationID), srcPath)
}

// Snapshot returns the current rendered state of a conversation, or nil if
// it is not open.
func (e *Engine) Snapshot(conversationID string) []model.MessageView {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.dir.Get(conversationID)
	if s == nil {
		return nil
	}
	return s.Snapshot()
}

func (e *Engine) sendCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.opts.SendTimeout)
}

func (e *Engine) pageCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.opts.PageTimeout)
}
