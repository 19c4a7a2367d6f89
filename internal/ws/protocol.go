package ws

import (
	"encoding/json"

	"github.com/havenito/Twitter-Like/internal/models"
)

// EventType identifies the type of a push-channel frame.
type EventType string

const (
	// Client -> Server
	TypeJoinUser          EventType = "join_user"
	TypeJoinConversation  EventType = "join_conversation"
	TypeLeaveConversation EventType = "leave_conversation"
	TypeSendMessage       EventType = "send_message"
	TypeTyping            EventType = "typing"

	// Server -> Client
	TypeStatus              EventType = "status"
	TypeNewMessage          EventType = "new_message"
	TypeMessageNotification EventType = "message_notification"
	TypeMessageSent         EventType = "message_sent"
	TypeUserTyping          EventType = "user_typing"
	TypeNotification        EventType = "notification"
	TypeError               EventType = "error"
)

// Envelope wraps every frame with a type field.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope around a payload.
func NewEnvelope(t EventType, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: t, Data: raw}, nil
}

// JoinUserEvent announces the session's user and joins their personal room.
type JoinUserEvent struct {
	UserID int64 `json:"userId"`
}

// JoinConversationEvent joins a conversation room.
type JoinConversationEvent struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

// LeaveConversationEvent leaves a conversation room.
type LeaveConversationEvent struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

// SendMessageEvent submits a message over the push channel.
type SendMessageEvent struct {
	SenderID       int64  `json:"senderId"`
	RecipientID    int64  `json:"recipientId"`
	Content        string `json:"content"`
	ConversationID int64  `json:"conversationId,omitempty"`
	ReplyToID      *int64 `json:"replyToId,omitempty"`
	ClientTempID   string `json:"clientTempId,omitempty"`
}

// TypingEvent relays a typing indicator. Best-effort, never persisted.
type TypingEvent struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
	IsTyping       bool  `json:"isTyping"`
}

// StatusEvent is an informational server message.
type StatusEvent struct {
	Message string `json:"message"`
}

// MessageNotificationEvent drives unread indicators on the recipient side;
// distinct from new_message, which drives the live thread view.
type MessageNotificationEvent struct {
	ConversationID int64  `json:"conversationId"`
	SenderID       int64  `json:"senderId"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
}

// MessageSentEvent acknowledges a send to its caller with the authoritative
// record, echoing the client's temporary id for optimistic-copy reconciliation.
type MessageSentEvent struct {
	Success        bool            `json:"success"`
	MessageID      int64           `json:"messageId"`
	ConversationID int64           `json:"conversationId"`
	Timestamp      string          `json:"timestamp"`
	ClientTempID   string          `json:"clientTempId,omitempty"`
	MessageData    *models.Message `json:"messageData"`
}

// UserTypingEvent fans a typing indicator out to the conversation room.
type UserTypingEvent struct {
	UserID         int64 `json:"userId"`
	IsTyping       bool  `json:"isTyping"`
	ConversationID int64 `json:"conversationId"`
}

// ErrorEvent reports a failure to the caller. The push channel never uses
// status codes; this is its entire error surface.
type ErrorEvent struct {
	Message string `json:"message"`
}
