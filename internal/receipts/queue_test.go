package receipts

import (
	"testing"

	"github.com/chatclient/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestApplyAndDrainExactlyOnce(t *testing.T) {
	q := NewQueue()
	q.Enqueue("c1", "m1", "acc-1", model.MemberInfo{AccountID: "acc-1"})
	q.Enqueue("c1", "m1", "acc-2", model.MemberInfo{AccountID: "acc-2"})
	q.Enqueue("c1", "m2", "acc-1", model.MemberInfo{AccountID: "acc-1"})

	var applied []string
	q.ApplyAndDrain("c1", "m1", func(accountID, messageID string, member model.MemberInfo) {
		applied = append(applied, accountID)
	})
	assert.Equal(t, []string{"acc-1", "acc-2"}, applied)

	// The second drain finds nothing.
	q.ApplyAndDrain("c1", "m1", func(accountID, messageID string, member model.MemberInfo) {
		t.Fatalf("receipt applied twice for %s", accountID)
	})
	assert.Equal(t, 1, q.Len("c1"))
}

func TestSpeculativeDrainIsSafe(t *testing.T) {
	q := NewQueue()
	q.ApplyAndDrain("unknown", "m1", func(string, string, model.MemberInfo) {
		t.Fatal("nothing was queued")
	})
}

func TestRekey(t *testing.T) {
	q := NewQueue()
	q.Enqueue("new-42", "m1", "acc-1", model.MemberInfo{AccountID: "acc-1"})
	q.Rekey("new-42", "C9")

	assert.Equal(t, 0, q.Len("new-42"))
	assert.Equal(t, 1, q.Len("C9"))

	var applied int
	q.ApplyAndDrain("C9", "m1", func(string, string, model.MemberInfo) { applied++ })
	assert.Equal(t, 1, applied)
}

func TestRekeyMergesIntoExisting(t *testing.T) {
	q := NewQueue()
	q.Enqueue("old", "m1", "acc-1", model.MemberInfo{})
	q.Enqueue("new", "m1", "acc-2", model.MemberInfo{})
	q.Rekey("old", "new")
	assert.Equal(t, 2, q.Len("new"))
}

func TestDropConversation(t *testing.T) {
	q := NewQueue()
	q.Enqueue("c1", "m1", "acc-1", model.MemberInfo{})
	q.Enqueue("c1", "m2", "acc-1", model.MemberInfo{})
	q.DropConversation("c1")
	assert.Equal(t, 0, q.Len("c1"))
}
