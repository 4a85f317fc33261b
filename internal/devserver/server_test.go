package devserver

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	srv := NewServer()
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, srv
}

func TestSendAndPageRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	client := transport.NewRestClient(ts.URL, "alice")

	res, err := client.SendMessage(context.Background(), transport.SendRequest{
		ConversationID: "conv-1",
		TempID:         "t-1",
		Content:        "hello",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.ServerID)
	assert.Equal(t, "conv-1", res.ConversationID)
	assert.False(t, res.SentAt.IsZero())

	page, err := client.GetMessagesPage(context.Background(), "conv-1", "", 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, res.ServerID, page.Items[0].ServerID)
	assert.Equal(t, "t-1", page.Items[0].TempID)
	assert.Equal(t, "hello", page.Items[0].Content)
	assert.True(t, page.Items[0].IsOwn, "sender sees the message as own")
	assert.False(t, page.HasMoreOlder)
}

func TestPlaceholderGetsDurableConversation(t *testing.T) {
	ts, _ := newTestServer(t)
	client := transport.NewRestClient(ts.URL, "alice")

	res, err := client.SendMessage(context.Background(), transport.SendRequest{
		ConversationID: "new-42",
		TempID:         "t-1",
		Content:        "first contact",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.ConversationID)
	assert.False(t, model.IsPlaceholderID(res.ConversationID))
	assert.NotEqual(t, "new-42", res.ConversationID)

	// History lives under the durable id only.
	page, err := client.GetMessagesPage(context.Background(), res.ConversationID, "", 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestMultipartSendAssignsRemoteURLs(t *testing.T) {
	ts, _ := newTestServer(t)
	client := transport.NewRestClient(ts.URL, "alice")

	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o644))

	res, err := client.SendMessage(context.Background(), transport.SendRequest{
		ConversationID: "conv-1",
		TempID:         "t-1",
		Attachments: []transport.AttachmentUpload{
			{Path: path, Name: "photo.png", Kind: model.AttachmentImage},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Attachments, 1)
	assert.True(t, strings.HasPrefix(res.Attachments[0].RemoteURL, "http://"))
	assert.Equal(t, model.AttachmentImage, res.Attachments[0].Kind)
	assert.Equal(t, "photo.png", res.Attachments[0].Name)
}

func TestPagingWalksBackwards(t *testing.T) {
	ts, _ := newTestServer(t)
	client := transport.NewRestClient(ts.URL, "alice")

	for i := 0; i < 5; i++ {
		_, err := client.SendMessage(context.Background(), transport.SendRequest{
			ConversationID: "conv-1",
			TempID:         "t-" + strings.Repeat("x", i+1),
			Content:        "msg",
		})
		require.NoError(t, err)
	}

	page, err := client.GetMessagesPage(context.Background(), "conv-1", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.True(t, page.HasMoreOlder)

	seen := len(page.Items)
	for page.HasMoreOlder {
		page, err = client.GetMessagesPage(context.Background(), "conv-1", page.OlderCursor, 2)
		require.NoError(t, err)
		seen += len(page.Items)
	}
	assert.Equal(t, 5, seen)
}

func TestContextEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	client := transport.NewRestClient(ts.URL, "alice")

	var target string
	for i := 0; i < 7; i++ {
		res, err := client.SendMessage(context.Background(), transport.SendRequest{
			ConversationID: "conv-1",
			TempID:         "t-" + strings.Repeat("y", i+1),
			Content:        "msg",
		})
		require.NoError(t, err)
		if i == 3 {
			target = res.ServerID
		}
	}

	page, err := client.GetMessageContext(context.Background(), "conv-1", target, 4)
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	found := false
	for _, m := range page.Items {
		if m.ServerID == target {
			found = true
		}
	}
	assert.True(t, found, "context page contains the target message")

	_, err = client.GetMessageContext(context.Background(), "conv-1", "no-such-id", 4)
	require.Error(t, err)
}

func TestRecallMutatesStore(t *testing.T) {
	ts, _ := newTestServer(t)
	client := transport.NewRestClient(ts.URL, "alice")

	res, err := client.SendMessage(context.Background(), transport.SendRequest{
		ConversationID: "conv-1", TempID: "t-1", Content: "regret",
	})
	require.NoError(t, err)
	require.NoError(t, client.RecallMessage(context.Background(), "conv-1", res.ServerID))

	page, err := client.GetMessagesPage(context.Background(), "conv-1", "", 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].IsRecalled)
	assert.Empty(t, page.Items[0].Content)
}

// collector implements transport.EventHandler for push assertions.
type collector struct {
	mu       sync.Mutex
	messages []model.MessageView
	seen     []model.SeenEvent
}

func (c *collector) HandleMessage(msg model.MessageView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *collector) HandleSeen(ev model.SeenEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, ev)
}

func (c *collector) HandleReaction(model.ReactionEvent) {}
func (c *collector) HandlePin(model.PinEvent)           {}
func (c *collector) HandleRecall(model.RecallEvent)     {}
func (c *collector) HandleTyping(model.TypingEvent)     {}

func (c *collector) messageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *collector) seenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func TestPushDeliveryEndToEnd(t *testing.T) {
	ts, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	col := &collector{}
	sub := transport.NewSubscriber(wsURL, "alice")
	sub.SetHandler(col)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	require.Eventually(t, func() bool {
		return sub.Join("conv-1") == nil
	}, 5*time.Second, 20*time.Millisecond)

	// The join frame is in flight; repeat the send until the room delivers.
	peer := transport.NewRestClient(ts.URL, "bob")
	require.Eventually(t, func() bool {
		_, err := peer.SendMessage(context.Background(), transport.SendRequest{
			ConversationID: "conv-1", TempID: "t-1", Content: "hi alice",
		})
		return err == nil && col.messageCount() > 0
	}, 5*time.Second, 50*time.Millisecond)

	col.mu.Lock()
	first := col.messages[0]
	col.mu.Unlock()
	assert.Equal(t, "conv-1", first.ConversationID)
	assert.Equal(t, "bob", first.SenderID)
	assert.False(t, first.IsOwn)
	assert.Equal(t, "hi alice", first.Content)

	require.NoError(t, peer.MarkSeen(context.Background(), "conv-1", "some-message"))
	require.Eventually(t, func() bool {
		return col.seenCount() > 0
	}, 5*time.Second, 20*time.Millisecond)

	col.mu.Lock()
	ev := col.seen[0]
	col.mu.Unlock()
	assert.Equal(t, "bob", ev.AccountID)
	assert.Equal(t, "bob", ev.Member.AccountID)
	assert.Equal(t, "user-bob", ev.Member.Username)
}
