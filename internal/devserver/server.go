package devserver

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

// Server glues the in-memory store and the push hub behind the same HTTP
// surface the real backend exposes.
type Server struct {
	store *Store
	hub   *Hub
}

func NewServer() *Server {
	return &Server{store: NewStore(), hub: NewHub()}
}

// Router builds the REST + ws routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "X-Account-ID"},
	}))

	r.Get("/ws", s.hub.ServeWS)
	r.Route("/api/conversations/{id}", func(r chi.Router) {
		r.Post("/messages", s.sendMessage)
		r.Get("/messages", s.getMessages)
		r.Get("/messages/{messageID}/context", s.getContext)
		r.Post("/messages/{messageID}/reactions", s.addReaction)
		r.Delete("/messages/{messageID}/reactions", s.removeReaction)
		r.Post("/messages/{messageID}/pin", s.pin)
		r.Delete("/messages/{messageID}/pin", s.unpin)
		r.Delete("/messages/{messageID}", s.recall)
		r.Post("/seen", s.markSeen)
	})
	return r
}

func accountID(r *http.Request) string {
	return r.Header.Get("X-Account-ID")
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("devserver writeJSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sender := accountID(r)
	if sender == "" {
		writeError(w, http.StatusUnauthorized, "X-Account-ID required")
		return
	}
	reqConvID := chi.URLParam(r, "id")
	convID := s.store.EnsureConversation(reqConvID, model.IsPlaceholderID(reqConvID))

	msg := wireMessage{ConversationID: convID, SenderID: sender}

	ct := r.Header.Get("Content-Type")
	if len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "bad multipart body")
			return
		}
		msg.TempID = r.FormValue("temp_id")
		msg.Content = r.FormValue("content")
		msg.ReplyToID = r.FormValue("reply_to_id")
		kinds := r.MultipartForm.Value["kinds"]
		for i, fh := range r.MultipartForm.File["files"] {
			att := wireAttachment{
				RemoteURL: "http://" + r.Host + "/files/" + uuid.New().String(),
				Kind:      "document",
				Name:      fh.Filename,
				SizeBytes: fh.Size,
			}
			if i < len(kinds) {
				att.Kind = kinds[i]
			}
			drainPart(fh)
			msg.Attachments = append(msg.Attachments, att)
		}
	} else {
		var body struct {
			TempID    string `json:"temp_id"`
			Content   string `json:"content"`
			ReplyToID string `json:"reply_to_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "bad json body")
			return
		}
		msg.TempID = body.TempID
		msg.Content = body.Content
		msg.ReplyToID = body.ReplyToID
	}
	if msg.Content == "" && len(msg.Attachments) == 0 {
		writeError(w, http.StatusBadRequest, "content or files required")
		return
	}

	stored := s.store.Append(msg)
	s.hub.Broadcast(convID, frame{Type: "new_message", Payload: stored})

	writeJSON(w, http.StatusCreated, map[string]any{
		"server_id":       stored.ID,
		"conversation_id": convID,
		"sent_at":         stored.SentAt.Format(time.RFC3339Nano),
		"attachments":     stored.Attachments,
	})
}

// drainPart reads the upload so the connection can be reused; the dev
// backend does not keep file bytes.
func drainPart(fh *multipart.FileHeader) {
	f, err := fh.Open()
	if err != nil {
		return
	}
	io.Copy(io.Discard, f)
	f.Close()
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 50)
	items, older, hasMore := s.store.Page(convID, r.URL.Query().Get("cursor"), limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"items":          items,
		"older_cursor":   older,
		"has_more_older": hasMore,
	})
}

func (s *Server) getContext(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	messageID := chi.URLParam(r, "messageID")
	limit := queryInt(r, "limit", 50)
	items, older, hasMore, found := s.store.Context(convID, messageID, limit)
	if !found {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":          items,
		"older_cursor":   older,
		"has_more_older": hasMore,
	})
}

func (s *Server) addReaction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Emoji == "" {
		writeError(w, http.StatusBadRequest, "emoji required")
		return
	}
	s.broadcastReaction(w, r, body.Emoji, true)
}

func (s *Server) removeReaction(w http.ResponseWriter, r *http.Request) {
	emoji := r.URL.Query().Get("emoji")
	if emoji == "" {
		writeError(w, http.StatusBadRequest, "emoji required")
		return
	}
	s.broadcastReaction(w, r, emoji, false)
}

func (s *Server) broadcastReaction(w http.ResponseWriter, r *http.Request, emoji string, added bool) {
	convID := chi.URLParam(r, "id")
	messageID := chi.URLParam(r, "messageID")
	evType := "reaction_removed"
	if added {
		evType = "reaction_added"
	}
	s.hub.Broadcast(convID, frame{Type: evType, Payload: map[string]string{
		"conversation_id": convID,
		"message_id":      messageID,
		"account_id":      accountID(r),
		"emoji":           emoji,
	}})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) pin(w http.ResponseWriter, r *http.Request)   { s.setPinned(w, r, true) }
func (s *Server) unpin(w http.ResponseWriter, r *http.Request) { s.setPinned(w, r, false) }

func (s *Server) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	convID := chi.URLParam(r, "id")
	messageID := chi.URLParam(r, "messageID")
	if !s.store.Mutate(convID, messageID, func(m *wireMessage) { m.IsPinned = pinned }) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	evType := "message_unpinned"
	if pinned {
		evType = "message_pinned"
	}
	s.hub.Broadcast(convID, frame{Type: evType, Payload: map[string]string{
		"conversation_id": convID,
		"message_id":      messageID,
		"account_id":      accountID(r),
	}})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) recall(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	messageID := chi.URLParam(r, "messageID")
	found := s.store.Mutate(convID, messageID, func(m *wireMessage) {
		m.IsRecalled = true
		m.Content = ""
		m.Attachments = nil
	})
	if !found {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	s.hub.Broadcast(convID, frame{Type: "message_recalled", Payload: map[string]string{
		"conversation_id": convID,
		"message_id":      messageID,
	}})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) markSeen(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	var body struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MessageID == "" {
		writeError(w, http.StatusBadRequest, "message_id required")
		return
	}
	acc := accountID(r)
	s.hub.Broadcast(convID, frame{Type: "message_seen", Payload: map[string]any{
		"conversation_id": convID,
		"message_id":      body.MessageID,
		"account_id":      acc,
		"member":          map[string]string{"account_id": acc, "username": fmt.Sprintf("user-%s", acc)},
	}})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
