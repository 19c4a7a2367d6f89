package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/havenito/Twitter-Like/internal/chat"
	"github.com/havenito/Twitter-Like/internal/models"
)

// CreateMessageRequest is the stateless create/fallback submission body.
// It is the retry path when a push acknowledgement is lost, so it runs the
// same ingestion algorithm as the push channel, dedup included.
type CreateMessageRequest struct {
	ConversationID int64  `json:"conversationId"`
	SenderID       int64  `json:"senderId"`
	RecipientID    int64  `json:"recipientId"`
	Content        string `json:"content"`
	ReplyToID      *int64 `json:"replyToId"`
	ClientTempID   string `json:"clientTempId"`
}

// CreateMessageResponse returns the authoritative persisted record.
type CreateMessageResponse struct {
	Success      bool            `json:"success"`
	Message      *models.Message `json:"message"`
	Duplicate    bool            `json:"duplicate,omitempty"`
	ClientTempID string          `json:"clientTempId,omitempty"`
}

// CreateMessage handles POST /api/messages. 201 on insert, 200 when the
// submission matched an existing row inside the dedup window.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.service.Send(r.Context(), chat.SendRequest{
		SenderID:       req.SenderID,
		RecipientID:    req.RecipientID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		ReplyToID:      req.ReplyToID,
		ClientTempID:   req.ClientTempID,
		Path:           "http",
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	h.JSON(w, status, CreateMessageResponse{
		Success:      true,
		Message:      res.Message,
		Duplicate:    res.Duplicate,
		ClientTempID: req.ClientTempID,
	})
}

// MessageListResponse wraps an ascending message slice.
type MessageListResponse struct {
	Messages []models.Message `json:"messages"`
}

// GetConversationMessages handles
// GET /api/conversations/{conversationId}/messages?since=<ISO-8601>&after_id=<id>.
// since filters strictly greater-than; after_id is the explicit cursor and
// wins when both are present.
func (h *Handler) GetConversationMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := urlID(r, "conversationId")
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID")
		return
	}
	since, ok := sinceParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "since must be an ISO-8601 timestamp")
		return
	}
	afterID, ok := afterIDParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "after_id must be a message id")
		return
	}

	messages, err := h.service.ConversationMessages(r.Context(), conversationID, since, afterID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	h.JSON(w, http.StatusOK, MessageListResponse{Messages: messages})
}

// NewMessagesResponse is the poll-for-new-messages payload. Timestamp is the
// server's current time, handed back so the client can use it as the next
// since value.
type NewMessagesResponse struct {
	Success   bool             `json:"success"`
	Messages  []models.Message `json:"messages"`
	Timestamp string           `json:"timestamp"`
	Count     int              `json:"count"`
}

// GetNewMessages handles GET /api/users/{userId}/messages/new.
// Without since or after_id, only a fixed short lookback window is scanned;
// clients that cannot tolerate loss should pass after_id.
func (h *Handler) GetNewMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlID(r, "userId")
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	since, ok := sinceParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "since must be an ISO-8601 timestamp")
		return
	}
	afterID, ok := afterIDParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "after_id must be a message id")
		return
	}

	messages, err := h.service.NewMessagesForUser(r.Context(), userID, since, afterID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	h.JSON(w, http.StatusOK, NewMessagesResponse{
		Success:   true,
		Messages:  messages,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Count:     len(messages),
	})
}
