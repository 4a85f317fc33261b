// Package receipts holds seen receipts that arrived before their target
// message was rendered, so no read state is ever dropped while a page is
// still loading.
package receipts

import "github.com/chatclient/internal/model"

type entry struct {
	accountID string
	member    model.MemberInfo
}

// Queue is a per-conversation, per-message queue of deferred seen receipts.
// Not safe for concurrent use; the engine serializes access.
type Queue struct {
	pending map[string]map[string][]entry // conversationID -> messageID -> receipts
}

func NewQueue() *Queue {
	return &Queue{pending: make(map[string]map[string][]entry)}
}

// Enqueue defers a receipt until its target message becomes renderable.
// Duplicate (accountID, messageID) entries are harmless: last write wins
// when applied.
func (q *Queue) Enqueue(conversationID, messageID, accountID string, member model.MemberInfo) {
	byMsg, ok := q.pending[conversationID]
	if !ok {
		byMsg = make(map[string][]entry)
		q.pending[conversationID] = byMsg
	}
	byMsg[messageID] = append(byMsg[messageID], entry{accountID: accountID, member: member})
}

// ApplyAndDrain invokes applyFn for every queued receipt targeting
// messageID and removes them. Safe to call speculatively when nothing is
// queued.
func (q *Queue) ApplyAndDrain(conversationID, messageID string, applyFn func(accountID, messageID string, member model.MemberInfo)) {
	byMsg, ok := q.pending[conversationID]
	if !ok {
		return
	}
	list, ok := byMsg[messageID]
	if !ok {
		return
	}
	delete(byMsg, messageID)
	if len(byMsg) == 0 {
		delete(q.pending, conversationID)
	}
	for _, e := range list {
		applyFn(e.accountID, messageID, e.member)
	}
}

// Rekey moves all receipts queued under one conversation id to another.
// Used when a placeholder conversation is promoted to its durable id.
func (q *Queue) Rekey(oldID, newID string) {
	byMsg, ok := q.pending[oldID]
	if !ok {
		return
	}
	delete(q.pending, oldID)
	dst, ok := q.pending[newID]
	if !ok {
		q.pending[newID] = byMsg
		return
	}
	for msgID, list := range byMsg {
		dst[msgID] = append(dst[msgID], list...)
	}
}

// DropConversation clears everything queued for a conversation; called on
// session teardown so the queue never grows for a closed conversation.
func (q *Queue) DropConversation(conversationID string) {
	delete(q.pending, conversationID)
}

// Len reports how many receipts are queued for a conversation.
func (q *Queue) Len(conversationID string) int {
	n := 0
	for _, list := range q.pending[conversationID] {
		n += len(list)
	}
	return n
}
