package handlers

import (
	"net/http"

	"github.com/havenito/Twitter-Like/internal/models"
)

// ConversationListResponse lists a user's conversations, most recently
// active first.
type ConversationListResponse struct {
	UserID             int64                        `json:"userId"`
	Conversations      []models.ConversationSummary `json:"conversations"`
	TotalConversations int                          `json:"totalConversations"`
}

// GetUserConversations handles GET /api/users/{userId}/conversations.
// The list is resolved from the explicit participant-pair columns, so it is
// exact for any id range.
func (h *Handler) GetUserConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlID(r, "userId")
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	conversations, err := h.service.UserConversations(r.Context(), userID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if conversations == nil {
		conversations = []models.ConversationSummary{}
	}
	h.JSON(w, http.StatusOK, ConversationListResponse{
		UserID:             userID,
		Conversations:      conversations,
		TotalConversations: len(conversations),
	})
}
