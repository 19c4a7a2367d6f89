package store

import (
	"context"
	"time"

	"github.com/havenito/Twitter-Like/internal/models"
)

// MessageStore is the durable, ordered record of direct messages.
// Both PostgresStore and SQLiteStore implement this interface.
type MessageStore interface {
	// InsertMessage persists a message, assigning its id and its UTC sent_at.
	// The returned record is the authoritative row.
	InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error)

	// GetMessage returns a message by id, or (nil, nil) when absent.
	GetMessage(ctx context.Context, id int64) (*models.Message, error)

	// FindRecentDuplicate returns a message with the same
	// (conversation_id, sender_id, content) inserted within the window,
	// or nil if none exists.
	FindRecentDuplicate(ctx context.Context, conversationID, senderID int64, content string, window time.Duration) (*models.Message, error)

	// ConversationMessages returns a conversation's messages ascending.
	// afterID > 0 is a strict id cursor and takes precedence; otherwise a
	// non-nil since filters strictly greater-than on sent_at.
	ConversationMessages(ctx context.Context, conversationID int64, since *time.Time, afterID int64) ([]models.Message, error)

	// NewMessagesForUser returns messages addressed to the user across all
	// their conversations, excluding messages they authored, ascending.
	NewMessagesForUser(ctx context.Context, userID int64, since time.Time, afterID int64) ([]models.Message, error)

	// UserConversations lists every conversation the user participates in,
	// most recently active first.
	UserConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
}

// UserDirectory is the read side of the account service's user table. The
// messaging core never creates or mutates users; it only checks existence
// and resolves display fields.
type UserDirectory interface {
	// GetUserByID returns (nil, nil) when the user does not exist.
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// NotificationStore is the persisted-notification sink consumed by the
// notify dispatcher.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) (*models.Notification, error)
}

// DataStore bundles everything a single relational backend provides.
type DataStore interface {
	MessageStore
	UserDirectory
	NotificationStore

	Close()
	Ping(ctx context.Context) error
}
