package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/chatclient/internal/model"
)

// RestClient implements Backend against the chat HTTP API.
type RestClient struct {
	BaseURL    string
	AccountID  string
	HTTPClient *http.Client
}

func NewRestClient(baseURL, accountID string) *RestClient {
	return &RestClient{
		BaseURL:    baseURL,
		AccountID:  accountID,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *RestClient) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	endpoint := fmt.Sprintf("%s/api/conversations/%s/messages", c.BaseURL, url.PathEscape(req.ConversationID))

	var body io.Reader
	contentType := "application/json"
	if len(req.Attachments) > 0 {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		mw.WriteField("temp_id", req.TempID)
		mw.WriteField("content", req.Content)
		if req.ReplyToID != "" {
			mw.WriteField("reply_to_id", req.ReplyToID)
		}
		for _, att := range req.Attachments {
			f, err := os.Open(att.Path)
			if err != nil {
				return nil, fmt.Errorf("rest.SendMessage open attachment: %w", err)
			}
			part, err := mw.CreateFormFile("files", att.Name)
			if err == nil {
				_, err = io.Copy(part, f)
			}
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("rest.SendMessage write attachment: %w", err)
			}
			mw.WriteField("kinds", string(att.Kind))
		}
		if err := mw.Close(); err != nil {
			return nil, fmt.Errorf("rest.SendMessage close multipart: %w", err)
		}
		body = buf
		contentType = mw.FormDataContentType()
	} else {
		payload, err := json.Marshal(map[string]string{
			"temp_id":     req.TempID,
			"content":     req.Content,
			"reply_to_id": req.ReplyToID,
		})
		if err != nil {
			return nil, fmt.Errorf("rest.SendMessage marshal: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	raw, err := c.do(ctx, http.MethodPost, endpoint, body, contentType)
	if err != nil {
		return nil, err
	}

	p, err := parsePayload(raw)
	if err != nil {
		return nil, fmt.Errorf("rest.SendMessage: %w", err)
	}
	res := &SendResult{
		ServerID:       p.strAny("server_id", "id", "message_id"),
		ConversationID: p.strAny("conversation_id", "chat_id"),
		SentAt:         p.timeAny("sent_at", "created_at"),
	}
	if res.ServerID == "" {
		return nil, fmt.Errorf("rest.SendMessage: response without server id")
	}
	if rawAtts, ok := p.raw("attachments"); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawAtts, &items); err == nil {
			for _, item := range items {
				ap, err := parsePayload(item)
				if err != nil {
					continue
				}
				res.Attachments = append(res.Attachments, model.AttachmentRef{
					RemoteURL: ap.strAny("remote_url", "url", "file_url"),
					Kind:      normalizeKind(ap.strAny("kind", "type")),
					Name:      ap.strAny("name", "file_name"),
					SizeBytes: ap.int64("size_bytes"),
				})
			}
		}
	}
	return res, nil
}

func (c *RestClient) GetMessagesPage(ctx context.Context, conversationID, cursor string, pageSize int) (*MessagesPage, error) {
	endpoint := fmt.Sprintf("%s/api/conversations/%s/messages?cursor=%s&limit=%d",
		c.BaseURL, url.PathEscape(conversationID), url.QueryEscape(cursor), pageSize)
	return c.getPage(ctx, endpoint)
}

func (c *RestClient) GetMessageContext(ctx context.Context, conversationID, messageID string, pageSize int) (*MessagesPage, error) {
	endpoint := fmt.Sprintf("%s/api/conversations/%s/messages/%s/context?limit=%d",
		c.BaseURL, url.PathEscape(conversationID), url.PathEscape(messageID), pageSize)
	return c.getPage(ctx, endpoint)
}

func (c *RestClient) getPage(ctx context.Context, endpoint string) (*MessagesPage, error) {
	raw, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}
	p, err := parsePayload(raw)
	if err != nil {
		return nil, fmt.Errorf("rest.getPage: %w", err)
	}
	page := &MessagesPage{
		OlderCursor:  p.str("older_cursor"),
		HasMoreOlder: p.boolAny("has_more_older"),
	}
	if rawItems, ok := p.raw("items"); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawItems, &items); err != nil {
			return nil, fmt.Errorf("rest.getPage items: %w", err)
		}
		for _, item := range items {
			m, err := NormalizeMessage(item, c.AccountID)
			if err != nil {
				continue
			}
			page.Items = append(page.Items, m)
		}
	}
	return page, nil
}

func (c *RestClient) React(ctx context.Context, conversationID, messageID, emoji string, added bool) error {
	endpoint := fmt.Sprintf("%s/api/conversations/%s/messages/%s/reactions",
		c.BaseURL, url.PathEscape(conversationID), url.PathEscape(messageID))
	method := http.MethodPost
	if !added {
		method = http.MethodDelete
		endpoint += "?emoji=" + url.QueryEscape(emoji)
	}
	var body io.Reader
	if added {
		payload, _ := json.Marshal(map[string]string{"emoji": emoji})
		body = bytes.NewReader(payload)
	}
	_, err := c.do(ctx, method, endpoint, body, "application/json")
	return err
}

func (c *RestClient) SetPinned(ctx context.Context, conversationID, messageID string, pinned bool) error {
	endpoint := fmt.Sprintf("%s/api/conversations/%s/messages/%s/pin",
		c.BaseURL, url.PathEscape(conversationID), url.PathEscape(messageID))
	method := http.MethodPost
	if !pinned {
		method = http.MethodDelete
	}
	_, err := c.do(ctx, method, endpoint, nil, "")
	return err
}

func (c *RestClient) RecallMessage(ctx context.Context, conversationID, messageID string) error {
	endpoint := fmt.Sprintf("%s/api/conversations/%s/messages/%s",
		c.BaseURL, url.PathEscape(conversationID), url.PathEscape(messageID))
	_, err := c.do(ctx, http.MethodDelete, endpoint, nil, "")
	return err
}

func (c *RestClient) MarkSeen(ctx context.Context, conversationID, messageID string) error {
	endpoint := fmt.Sprintf("%s/api/conversations/%s/seen", c.BaseURL, url.PathEscape(conversationID))
	payload, _ := json.Marshal(map[string]string{"message_id": messageID})
	_, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), "application/json")
	return err
}

func (c *RestClient) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("rest request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Account-ID", c.AccountID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rest %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("rest read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rest %s %s: status %s: %s", method, endpoint, resp.Status, truncate(data, 200))
	}
	if len(data) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(data), nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
