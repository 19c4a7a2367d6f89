// Package ws is the push-channel transport: it upgrades HTTP connections,
// pumps frames in and out, and dispatches inbound events to the chat service
// and the connection registry.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/havenito/Twitter-Like/internal/chat"
	"github.com/havenito/Twitter-Like/internal/conversation"
	"github.com/havenito/Twitter-Like/internal/hub"
	"github.com/havenito/Twitter-Like/internal/metrics"
	"github.com/havenito/Twitter-Like/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxFrame   = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server handles WebSocket connections for the realtime messaging channel.
type Server struct {
	registry hub.Registry
	service  *chat.Service
	logger   zerolog.Logger
}

// NewServer creates the WebSocket server.
func NewServer(registry hub.Registry, service *chat.Service, logger zerolog.Logger) *Server {
	return &Server{registry: registry, service: service, logger: logger}
}

// HandleWebSocket upgrades the connection, registers a session, greets the
// client, and runs the pumps until disconnect.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := s.registry.Register()
	c := &client{server: s, session: sess, conn: conn}

	c.sendEvent(TypeStatus, StatusEvent{Message: "connected"})

	go c.writePump()
	c.readPump()
}

// client couples one WebSocket connection to its registry session.
type client struct {
	server  *Server
	session *hub.Session
	conn    *websocket.Conn
	userID  int64 // set by join_user; read only by the read pump
}

func (c *client) readPump() {
	defer func() {
		c.server.registry.Unregister(c.session)
		c.conn.Close()
		c.server.logger.Debug().Str("session", c.session.ID).Int64("user_id", c.userID).Msg("client disconnected")
	}()

	c.conn.SetReadLimit(maxFrame)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Warn().Err(err).Str("session", c.session.ID).Msg("websocket read error")
			}
			return
		}
		c.dispatch(raw)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.session.Outbox():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame. A malformed or failed event answers the
// caller with an error frame; it never tears the connection down.
func (c *client) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError("invalid frame")
		return
	}

	switch env.Type {
	case TypeJoinUser:
		var ev JoinUserEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.UserID == 0 {
			c.sendError("userId is required")
			return
		}
		c.userID = ev.UserID
		c.server.registry.SetUser(c.session, ev.UserID)
		c.server.registry.Join(c.session, conversation.UserRoom(ev.UserID))
		c.sendEvent(TypeStatus, StatusEvent{Message: "joined " + conversation.UserRoom(ev.UserID)})

	case TypeJoinConversation:
		var ev JoinConversationEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.ConversationID == 0 {
			c.sendError("conversationId is required")
			return
		}
		c.server.registry.Join(c.session, conversation.Room(ev.ConversationID))
		c.sendEvent(TypeStatus, StatusEvent{Message: "joined " + conversation.Room(ev.ConversationID)})

	case TypeLeaveConversation:
		var ev LeaveConversationEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.ConversationID == 0 {
			c.sendError("conversationId is required")
			return
		}
		c.server.registry.Leave(c.session, conversation.Room(ev.ConversationID))
		c.sendEvent(TypeStatus, StatusEvent{Message: "left " + conversation.Room(ev.ConversationID)})

	case TypeSendMessage:
		var ev SendMessageEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			c.sendError("invalid send_message payload")
			return
		}
		c.handleSend(ev)

	case TypeTyping:
		var ev TypingEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.ConversationID == 0 || ev.UserID == 0 {
			return // typing is best-effort; bad frames are simply ignored
		}
		c.handleTyping(ev)

	default:
		c.sendError("unknown event type")
	}
}

func (c *client) handleSend(ev SendMessageEvent) {
	res, err := c.server.service.Send(context.Background(), chat.SendRequest{
		SenderID:       ev.SenderID,
		RecipientID:    ev.RecipientID,
		ConversationID: ev.ConversationID,
		Content:        ev.Content,
		ReplyToID:      ev.ReplyToID,
		ClientTempID:   ev.ClientTempID,
		Origin:         c.session,
		Path:           "ws",
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrValidation):
			c.sendError("missing or invalid message data")
		case errors.Is(err, chat.ErrNotFound):
			c.sendError("user not found")
		default:
			c.server.logger.Error().Err(err).Str("session", c.session.ID).Msg("send failed")
			c.sendError("failed to send message")
		}
		return
	}

	c.sendEvent(TypeMessageSent, MessageSentEvent{
		Success:        true,
		MessageID:      res.Message.ID,
		ConversationID: res.Message.ConversationID,
		Timestamp:      res.Message.SentAt.UTC().Format(time.RFC3339Nano),
		ClientTempID:   ev.ClientTempID,
		MessageData:    res.Message,
	})
}

func (c *client) handleTyping(ev TypingEvent) {
	metrics.TypingEvents.Inc()
	env, err := NewEnvelope(TypeUserTyping, UserTypingEvent{
		UserID:         ev.UserID,
		IsTyping:       ev.IsTyping,
		ConversationID: ev.ConversationID,
	})
	if err != nil {
		return
	}
	data, _ := json.Marshal(env)
	c.server.registry.BroadcastToRoom(conversation.Room(ev.ConversationID), data, c.session)
}

func (c *client) sendEvent(t EventType, payload interface{}) {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		c.server.logger.Error().Err(err).Str("type", string(t)).Msg("envelope marshal failed")
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.server.registry.Send(c.session, data)
}

func (c *client) sendError(msg string) {
	c.sendEvent(TypeError, ErrorEvent{Message: msg})
}

// FanOut implements chat.FanOut over the registry: new_message to the
// conversation room (origin excluded), message_notification to the
// recipient's personal room.
type FanOut struct {
	registry hub.Registry
	logger   zerolog.Logger
}

// NewFanOut creates the live-delivery side of message ingestion.
func NewFanOut(registry hub.Registry, logger zerolog.Logger) *FanOut {
	return &FanOut{registry: registry, logger: logger}
}

// MessageCreated delivers the persisted record to the conversation room.
func (f *FanOut) MessageCreated(msg *models.Message, origin *hub.Session) {
	env, err := NewEnvelope(TypeNewMessage, msg)
	if err != nil {
		f.logger.Error().Err(err).Msg("new_message marshal failed")
		return
	}
	data, _ := json.Marshal(env)
	delivered := f.registry.BroadcastToRoom(conversation.Room(msg.ConversationID), data, origin)
	f.logger.Debug().
		Int64("message_id", msg.ID).
		Int("sessions", delivered).
		Msg("new_message fanned out")
}

// RecipientNotified emits the unread-badge event to the recipient's room.
func (f *FanOut) RecipientNotified(recipientID int64, msg *models.Message) {
	env, err := NewEnvelope(TypeMessageNotification, MessageNotificationEvent{
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Timestamp:      msg.SentAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		f.logger.Error().Err(err).Msg("message_notification marshal failed")
		return
	}
	data, _ := json.Marshal(env)
	f.registry.BroadcastToRoom(conversation.UserRoom(recipientID), data, nil)
}
