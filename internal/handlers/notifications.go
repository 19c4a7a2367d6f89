package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/havenito/Twitter-Like/internal/models"
	"github.com/havenito/Twitter-Like/internal/notify"
)

// CreateNotificationRequest is posted by the surrounding services (posts,
// comments, follows, moderation) when something notification-worthy happens.
// This service owns the push channel, so dispatch funnels through here.
type CreateNotificationRequest struct {
	UserID    int64                   `json:"userId"`
	Kind      models.NotificationKind `json:"kind"`
	ActorID   int64                   `json:"actorId"`
	SubjectID int64                   `json:"subjectId"`
}

var validKinds = map[models.NotificationKind]bool{
	models.NotifyComment:        true,
	models.NotifyReply:          true,
	models.NotifyReplyToReply:   true,
	models.NotifyFollow:         true,
	models.NotifyFollowRequest:  true,
	models.NotifyFollowAccepted: true,
	models.NotifyReport:         true,
}

// CreateNotificationResponse returns the persisted notification.
type CreateNotificationResponse struct {
	Success      bool                 `json:"success"`
	Notification *models.Notification `json:"notification"`
}

// CreateNotification handles POST /api/notifications. The notification is
// persisted first; if the target user has a live session it is also pushed.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == 0 || req.ActorID == 0 {
		h.Error(w, http.StatusBadRequest, "userId and actorId are required")
		return
	}
	if !validKinds[req.Kind] {
		h.Error(w, http.StatusBadRequest, "unknown notification kind")
		return
	}

	n, err := h.sink.Dispatch(r.Context(), notify.Event{
		Kind:      req.Kind,
		TargetID:  req.UserID,
		ActorID:   req.ActorID,
		SubjectID: req.SubjectID,
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, CreateNotificationResponse{
		Success:      true,
		Notification: n,
	})
}
