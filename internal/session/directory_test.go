package session

import (
	"testing"
	"time"

	"github.com/chatclient/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	d := NewDirectory(4)
	s, evicted := d.Create("c1")
	require.NotNil(t, s)
	assert.Nil(t, evicted)
	assert.Same(t, s, d.Get("c1"))
	assert.Nil(t, d.Get("c2"))
}

func TestEvictionPicksLeastRecentlyUsed(t *testing.T) {
	d := NewDirectory(2)
	s1, _ := d.Create("c1")
	s2, _ := d.Create("c2")
	time.Sleep(time.Millisecond)
	s1.Touch()

	s3, evicted := d.Create("c3")
	require.NotNil(t, evicted)
	assert.Same(t, s2, evicted, "c2 is the least recently used")
	assert.NotSame(t, s3, evicted)
}

func TestEvictionNeverPicksJustCreated(t *testing.T) {
	d := NewDirectory(1)
	d.Create("c1")
	s2, evicted := d.Create("c2")
	require.NotNil(t, evicted)
	assert.NotSame(t, s2, evicted)
}

func TestRekeyPreservesIdentityAndAlias(t *testing.T) {
	d := NewDirectory(4)
	s, _ := d.Create("new-42")
	got := d.Rekey("new-42", "C9")
	require.Same(t, s, got)

	assert.Equal(t, "C9", s.ID)
	// Both ids resolve to the same session during the transition window.
	assert.Same(t, s, d.Get("C9"))
	assert.Same(t, s, d.Get("new-42"))
	assert.Equal(t, 1, d.Len())
}

func TestRemoveCleansAliases(t *testing.T) {
	d := NewDirectory(4)
	d.Create("new-42")
	d.Rekey("new-42", "C9")

	removed := d.Remove("new-42")
	require.NotNil(t, removed)
	assert.Nil(t, d.Get("C9"))
	assert.Nil(t, d.Get("new-42"))
	assert.Equal(t, 0, d.Len())
}

func TestSessionFindAndRemove(t *testing.T) {
	s := New("c1")
	s.Append(&model.MessageView{TempID: "t1", ConversationID: "c1"})
	s.Append(&model.MessageView{ServerID: "m1", ConversationID: "c1"})

	assert.NotNil(t, s.FindByTempID("t1"))
	assert.NotNil(t, s.FindByServerID("m1"))
	assert.Nil(t, s.FindByTempID(""))
	assert.Nil(t, s.FindByServerID(""))

	assert.True(t, s.Remove("t1"))
	assert.False(t, s.Remove("t1"))
	assert.Len(t, s.Messages, 1)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := New("c1")
	s.Append(&model.MessageView{ServerID: "m1", Content: "hi", SeenBy: []model.MemberInfo{{AccountID: "a"}}})

	snap := s.Snapshot()
	snap[0].Content = "mutated"
	snap[0].SeenBy[0].AccountID = "b"

	assert.Equal(t, "hi", s.Messages[0].Content)
	assert.Equal(t, "a", s.Messages[0].SeenBy[0].AccountID)
}
