package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/havenito/Twitter-Like/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL,
		user_low BIGINT NOT NULL,
		user_high BIGINT NOT NULL,
		sender_id BIGINT NOT NULL,
		content TEXT NOT NULL,
		sent_at TIMESTAMPTZ NOT NULL,
		reply_to_id BIGINT REFERENCES messages(id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		kind TEXT NOT NULL,
		actor_id BIGINT NOT NULL,
		subject_id BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		seen BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_user_low ON messages(user_low, sent_at);
	CREATE INDEX IF NOT EXISTS idx_messages_user_high ON messages(user_high, sent_at);
	CREATE INDEX IF NOT EXISTS idx_messages_dedup ON messages(conversation_id, sender_id, sent_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, id);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) scanMessageRow(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.UserLow,
		&msg.UserHigh,
		&msg.SenderID,
		&msg.Content,
		&msg.SentAt,
		&msg.ReplyToID,
	)
	if err != nil {
		return nil, err
	}
	msg.SentAt = msg.SentAt.UTC()
	return msg, nil
}

// InsertMessage persists a message, assigning id and sent_at.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, user_low, user_high, sender_id, content, sent_at, reply_to_id)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
		RETURNING `+messageColumns+`
	`, msg.ConversationID, msg.UserLow, msg.UserHigh, msg.SenderID, msg.Content, msg.ReplyToID)
	return s.scanMessageRow(row)
}

// GetMessage returns a message by id, or (nil, nil) when absent.
func (s *PostgresStore) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := s.scanMessageRow(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// FindRecentDuplicate returns the most recent identical submission inside the
// window, or nil.
func (s *PostgresStore) FindRecentDuplicate(ctx context.Context, conversationID, senderID int64, content string, window time.Duration) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND sender_id = $2 AND content = $3 AND sent_at >= now() - $4::interval
		ORDER BY id DESC LIMIT 1
	`, conversationID, senderID, content, fmt.Sprintf("%d milliseconds", window.Milliseconds()))
	msg, err := s.scanMessageRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// ConversationMessages returns a conversation's messages in ascending order.
func (s *PostgresStore) ConversationMessages(ctx context.Context, conversationID int64, since *time.Time, afterID int64) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1`
	args := []interface{}{conversationID}

	if afterID > 0 {
		query += ` AND id > $2`
		args = append(args, afterID)
	} else if since != nil {
		query += ` AND sent_at > $2`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY id ASC`

	return s.queryMessages(ctx, query, args...)
}

// NewMessagesForUser returns messages addressed to the user across every
// conversation they participate in, excluding their own, ascending.
func (s *PostgresStore) NewMessagesForUser(ctx context.Context, userID int64, since time.Time, afterID int64) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE (user_low = $1 OR user_high = $1) AND sender_id != $1`
	args := []interface{}{userID}

	if afterID > 0 {
		query += ` AND id > $2`
		args = append(args, afterID)
	} else {
		query += ` AND sent_at > $2`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY sent_at ASC, id ASC`

	return s.queryMessages(ctx, query, args...)
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...interface{}) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := s.scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// UserConversations lists the user's conversations, most recently active first.
func (s *PostgresStore) UserConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id, user_low, user_high, COUNT(*) AS total, MAX(id) AS last_id
		FROM messages
		WHERE user_low = $1 OR user_high = $1
		GROUP BY conversation_id, user_low, user_high
		ORDER BY last_id DESC
	`, userID)
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
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, first_name, last_name, created_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateUser inserts a user row. Account management normally owns this table;
// the method exists for development seeding and tests.
func (s *PostgresStore) CreateUser(ctx context.Context, username, email string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email)
		VALUES ($1, $2)
		RETURNING id, username, email, first_name, last_name, created_at
	`, username, email).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// InsertNotification persists a notification row, assigning id and created_at.
func (s *PostgresStore) InsertNotification(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	out := *n
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, kind, actor_id, subject_id, created_at, seen)
		VALUES ($1, $2, $3, $4, now(), FALSE)
		RETURNING id, created_at, seen
	`, n.UserID, n.Kind, n.ActorID, n.SubjectID).Scan(&out.ID, &out.CreatedAt, &out.Seen)
	if err != nil {
		return nil, err
	}
	out.CreatedAt = out.CreatedAt.UTC()
	return &out, nil
}
