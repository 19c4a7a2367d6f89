// Package notify is the single dispatch point for notification events raised
// by the surrounding CRUD handlers (comments, replies, follows, reports).
// One tagged event type replaces the per-handler fan-out the original system
// copy-pasted: every event is persisted through the notification sink, and
// pushed live when the target user currently has a session.
package notify

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/havenito/Twitter-Like/internal/conversation"
	"github.com/havenito/Twitter-Like/internal/hub"
	"github.com/havenito/Twitter-Like/internal/metrics"
	"github.com/havenito/Twitter-Like/internal/models"
	"github.com/havenito/Twitter-Like/internal/store"
)

// Event is one notification-worthy occurrence. It carries only the ids needed
// to resolve display text lazily on the reading side.
type Event struct {
	Kind      models.NotificationKind
	TargetID  int64 // user to notify
	ActorID   int64 // user who triggered the event
	SubjectID int64 // post, comment, or report the event refers to; 0 when n/a
}

// Sink persists notification events and pushes them to connected targets.
type Sink struct {
	store    store.NotificationStore
	registry hub.Registry
	logger   zerolog.Logger
}

// NewSink creates a notification sink. registry may be nil when no push
// transport exists (batch tooling, tests).
func NewSink(store store.NotificationStore, registry hub.Registry, logger zerolog.Logger) *Sink {
	return &Sink{store: store, registry: registry, logger: logger}
}

// Dispatch persists the event and, if the target user is currently connected,
// pushes a live "notification" frame to their personal room. Persistence
// failure is the caller's problem; push failure is logged and swallowed.
func (s *Sink) Dispatch(ctx context.Context, ev Event) (*models.Notification, error) {
	n, err := s.store.InsertNotification(ctx, &models.Notification{
		UserID:    ev.TargetID,
		Kind:      ev.Kind,
		ActorID:   ev.ActorID,
		SubjectID: ev.SubjectID,
	})
	if err != nil {
		return nil, err
	}

	metrics.NotificationsDispatched.WithLabelValues(string(ev.Kind)).Inc()

	if s.registry != nil {
		s.push(n)
	}
	return n, nil
}

type frame struct {
	Type string               `json:"type"`
	Data *models.Notification `json:"data"`
}

func (s *Sink) push(n *models.Notification) {
	data, err := json.Marshal(frame{Type: "notification", Data: n})
	if err != nil {
		s.logger.Error().Err(err).Msg("notification marshal failed")
		return
	}
	delivered := s.registry.BroadcastToRoom(conversation.UserRoom(n.UserID), data, nil)
	if delivered > 0 {
		s.logger.Debug().
			Int64("user_id", n.UserID).
			Str("kind", string(n.Kind)).
			Int("sessions", delivered).
			Msg("notification pushed live")
	}
}
