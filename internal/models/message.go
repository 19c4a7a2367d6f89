package models

import "time"

// Message is one direct message inside a two-party conversation.
// Messages are immutable once inserted; the store assigns ID and SentAt.
// Per conversation, ascending ID order and ascending SentAt order coincide.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"` // always UTC, serializes with a trailing "Z"
	ReplyToID      *int64    `json:"replyToId"`

	// Explicit participant pair (sorted ascending). This is the real partition
	// key; ConversationID is derived from it and can always be recomputed.
	UserLow  int64 `json:"-"`
	UserHigh int64 `json:"-"`
}

// ConversationSummary describes one entry in a user's conversation list.
type ConversationSummary struct {
	ConversationID int64    `json:"conversationId"`
	OtherUser      *User    `json:"otherUser"`
	LastMessage    *Message `json:"lastMessage"`
	TotalMessages  int64    `json:"totalMessages"`
}
