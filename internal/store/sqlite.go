package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/havenito/Twitter-Like/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/havenito.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/havenito.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_loc=UTC")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL,
		user_low INTEGER NOT NULL,
		user_high INTEGER NOT NULL,
		sender_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		sent_at DATETIME NOT NULL,
		reply_to_id INTEGER REFERENCES messages(id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		actor_id INTEGER NOT NULL,
		subject_id INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		seen INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_user_low ON messages(user_low, sent_at);
	CREATE INDEX IF NOT EXISTS idx_messages_user_high ON messages(user_high, sent_at);
	CREATE INDEX IF NOT EXISTS idx_messages_dedup ON messages(conversation_id, sender_id, sent_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const messageColumns = `id, conversation_id, user_low, user_high, sender_id, content, sent_at, reply_to_id`

func scanMessage(row interface {
	Scan(dest ...interface{}) error
}) (*models.Message, error) {
	msg := &models.Message{}
	var replyTo sql.NullInt64
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.UserLow,
		&msg.UserHigh,
		&msg.SenderID,
		&msg.Content,
		&msg.SentAt,
		&replyTo,
	)
	if err != nil {
		return nil, err
	}
	if replyTo.Valid {
		msg.ReplyToID = &replyTo.Int64
	}
	msg.SentAt = msg.SentAt.UTC()
	return msg, nil
}

// InsertMessage persists a message, assigning id and sent_at.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	sentAt := time.Now().UTC()

	var replyTo interface{}
	if msg.ReplyToID != nil {
		replyTo = *msg.ReplyToID
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, user_low, user_high, sender_id, content, sent_at, reply_to_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ConversationID, msg.UserLow, msg.UserHigh, msg.SenderID, msg.Content, sentAt, replyTo)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetMessage(ctx, id)
}

// GetMessage returns a message by id, or (nil, nil) when absent.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = ?
	`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// FindRecentDuplicate returns the most recent identical submission inside the
// window, or nil.
func (s *SQLiteStore) FindRecentDuplicate(ctx context.Context, conversationID, senderID int64, content string, window time.Duration) (*models.Message, error) {
	threshold := time.Now().UTC().Add(-window)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND sender_id = ? AND content = ? AND sent_at >= ?
		ORDER BY id DESC LIMIT 1
	`, conversationID, senderID, content, threshold)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// ConversationMessages returns a conversation's messages in ascending order.
func (s *SQLiteStore) ConversationMessages(ctx context.Context, conversationID int64, since *time.Time, afterID int64) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ?`
	args := []interface{}{conversationID}

	if afterID > 0 {
		query += ` AND id > ?`
		args = append(args, afterID)
	} else if since != nil {
		query += ` AND sent_at > ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY id ASC`

	return s.queryMessages(ctx, query, args...)
}

// NewMessagesForUser returns messages addressed to the user across every
// conversation they participate in, excluding their own, ascending.
func (s *SQLiteStore) NewMessagesForUser(ctx context.Context, userID int64, since time.Time, afterID int64) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE (user_low = ? OR user_high = ?) AND sender_id != ?`
	args := []interface{}{userID, userID, userID}

	if afterID > 0 {
		query += ` AND id > ?`
		args = append(args, afterID)
	} else {
		query += ` AND sent_at > ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY sent_at ASC, id ASC`

	return s.queryMessages(ctx, query, args...)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...interface{}) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// UserConversations lists the user's conversations, most recently active first.
func (s *SQLiteStore) UserConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_low, user_high, COUNT(*) AS total, MAX(id) AS last_id
		FROM messages
		WHERE user_low = ? OR user_high = ?
		GROUP BY conversation_id, user_low, user_high
		ORDER BY last_id DESC
	`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type convRow struct {
		convID, userLow, userHigh, total, lastID int64
	}
	var convs []convRow
	for rows.Next() {
		var c convRow
		if err := rows.Scan(&c.convID, &c.userLow, &c.userHigh, &c.total, &c.lastID); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		otherID := c.userLow
		if otherID == userID {
			otherID = c.userHigh
		}

		other, err := s.GetUserByID(ctx, otherID)
		if err != nil {
			return nil, err
		}
		last, err := s.GetMessage(ctx, c.lastID)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, models.ConversationSummary{
			ConversationID: c.convID,
			OtherUser:      other,
			LastMessage:    last,
			TotalMessages:  c.total,
		})
	}
	return summaries, nil
}

// GetUserByID retrieves a user by id. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, first_name, last_name, created_at
		FROM users WHERE id = ?
	`, id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateUser inserts a user row. Account management normally owns this table;
// the method exists for development seeding and tests.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email string) (*models.User, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, created_at) VALUES (?, ?, ?)
	`, username, email, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

// InsertNotification persists a notification row, assigning id and created_at.
func (s *SQLiteStore) InsertNotification(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	createdAt := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, kind, actor_id, subject_id, created_at, seen)
		VALUES (?, ?, ?, ?, ?, 0)
	`, n.UserID, n.Kind, n.ActorID, n.SubjectID, createdAt)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	out := *n
	out.ID = id
	out.CreatedAt = createdAt
	out.Seen = false
	return &out, nil
}
