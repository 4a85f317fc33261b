package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMessageFieldCasing(t *testing.T) {
	variants := []string{
		`{"id":"m1","conversationId":"c1","senderId":"u1","content":"hi","sentAt":"2026-01-02T15:04:05Z"}`,
		`{"Id":"m1","ConversationId":"c1","SenderId":"u1","Content":"hi","SentAt":"2026-01-02T15:04:05Z"}`,
		`{"id":"m1","conversation_id":"c1","sender_id":"u1","content":"hi","sent_at":"2026-01-02T15:04:05Z"}`,
	}
	for _, raw := range variants {
		m, err := NormalizeMessage(json.RawMessage(raw), "u1")
		require.NoError(t, err, raw)
		assert.Equal(t, "m1", m.ServerID)
		assert.Equal(t, "c1", m.ConversationID)
		assert.Equal(t, "u1", m.SenderID)
		assert.True(t, m.IsOwn)
		assert.Equal(t, "hi", m.Content)
		assert.Equal(t, 2026, m.SentAt.Year())
	}
}

func TestNormalizeMessageTempIDAndAttachments(t *testing.T) {
	raw := `{
		"id":"m2","chat_id":"c1","sender_id":"u2","tempId":"t-9","content":"",
		"attachments":[{"Url":"https://cdn/x.png","Kind":"image","name":"x.png","size_bytes":123}]
	}`
	m, err := NormalizeMessage(json.RawMessage(raw), "u1")
	require.NoError(t, err)
	assert.Equal(t, "t-9", m.TempID)
	assert.False(t, m.IsOwn)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "https://cdn/x.png", m.Attachments[0].RemoteURL)
	assert.Equal(t, "x.png", m.Attachments[0].Name)
	assert.EqualValues(t, 123, m.Attachments[0].SizeBytes)
}

func TestNormalizeMessageRejectsIncomplete(t *testing.T) {
	_, err := NormalizeMessage(json.RawMessage(`{"content":"hi","conversation_id":"c1"}`), "u1")
	assert.Error(t, err, "message without any id")

	_, err = NormalizeMessage(json.RawMessage(`{"id":"m1","content":"hi"}`), "u1")
	assert.Error(t, err, "message without conversation id")
}

func TestNormalizeMessageReplyTo(t *testing.T) {
	raw := `{"id":"m3","conversation_id":"c1","sender_id":"u2",
		"reply_to":{"MessageId":"m1","Preview":"orig","sender_id":"u1"}}`
	m, err := NormalizeMessage(json.RawMessage(raw), "u1")
	require.NoError(t, err)
	require.NotNil(t, m.ReplyTo)
	assert.Equal(t, "m1", m.ReplyTo.MessageID)
	assert.Equal(t, "orig", m.ReplyTo.Preview)
}

func TestDecodeFrame(t *testing.T) {
	evType, payload, err := DecodeFrame([]byte(`{"type":"new_message","payload":{"id":"m1"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventNewMessage, evType)
	assert.JSONEq(t, `{"id":"m1"}`, string(payload))

	_, _, err = DecodeFrame([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}

func TestNormalizeSeen(t *testing.T) {
	raw := `{"ConversationId":"c1","MessageId":"m1","AccountId":"u2",
		"member":{"username":"bob","avatar_url":"http://a/av.png"}}`
	ev, err := NormalizeSeen(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "c1", ev.ConversationID)
	assert.Equal(t, "m1", ev.MessageID)
	assert.Equal(t, "u2", ev.AccountID)
	assert.Equal(t, "bob", ev.Member.Username)

	_, err = NormalizeSeen(json.RawMessage(`{"conversation_id":"c1"}`))
	assert.Error(t, err)
}

func TestNormalizeReactionAndPin(t *testing.T) {
	ev, err := NormalizeReaction(json.RawMessage(`{"chat_id":"c1","message_id":"m1","user_id":"u2","emoji":"👍"}`), true)
	require.NoError(t, err)
	assert.True(t, ev.Added)
	assert.Equal(t, "👍", ev.Emoji)

	pin, err := NormalizePin(json.RawMessage(`{"conversation_id":"c1","message_id":"m1","pinned_by":"u2"}`), false)
	require.NoError(t, err)
	assert.False(t, pin.Pinned)
	assert.Equal(t, "u2", pin.AccountID)
}
