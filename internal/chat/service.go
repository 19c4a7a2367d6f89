// Package chat implements message ingestion: validation, conversation
// addressing, duplicate suppression, and persist-then-broadcast. Both the
// push-channel send and the stateless HTTP create go through the same path
// and carry identical semantics.
package chat

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/havenito/Twitter-Like/internal/conversation"
	"github.com/havenito/Twitter-Like/internal/hub"
	"github.com/havenito/Twitter-Like/internal/metrics"
	"github.com/havenito/Twitter-Like/internal/models"
	"github.com/havenito/Twitter-Like/internal/store"
)

// FanOut receives a committed message for live delivery. Implementations are
// best-effort: failures are logged by the implementation and never roll back
// the commit.
type FanOut interface {
	// MessageCreated delivers the record to the conversation room, excluding
	// the originating session (nil for the HTTP path).
	MessageCreated(msg *models.Message, origin *hub.Session)
	// RecipientNotified emits the lightweight unread-badge event to the
	// recipient's personal room, regardless of room membership.
	RecipientNotified(recipientID int64, msg *models.Message)
}

// NopFanOut discards delivery; used when no push transport is wired.
type NopFanOut struct{}

func (NopFanOut) MessageCreated(*models.Message, *hub.Session) {}
func (NopFanOut) RecipientNotified(int64, *models.Message)     {}

// SendRequest is one message submission from either entry point.
type SendRequest struct {
	SenderID       int64
	RecipientID    int64 // optional when ConversationID is supplied
	ConversationID int64 // optional; derived from the pair when zero
	Content        string
	ReplyToID      *int64
	ClientTempID   string
	Origin         *hub.Session // excluded from the room broadcast; nil on HTTP
	Path           string       // "ws" or "http", for metrics only
}

// SendResult is the authoritative outcome of a submission.
type SendResult struct {
	Message *models.Message
	// Duplicate is true when the submission collapsed into an existing row.
	// Idempotent success, not an error: the caller gets the original record.
	Duplicate bool
}

// Service owns the shared ingestion algorithm and the read paths behind the
// polling fallback.
type Service struct {
	messages store.MessageStore
	users    store.UserDirectory
	fanout   FanOut
	logger   zerolog.Logger

	dedupWindow  time.Duration
	pollLookback time.Duration

	// Per-dedup-key locks serialize racing submissions (push retry vs HTTP
	// fallback) so exactly one row wins; the loser re-reads the winner.
	mu    sync.Mutex
	locks map[string]*dedupLock
}

type dedupLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates the ingestion service.
func NewService(messages store.MessageStore, users store.UserDirectory, fanout FanOut, logger zerolog.Logger, dedupWindow, pollLookback time.Duration) *Service {
	if fanout == nil {
		fanout = NopFanOut{}
	}
	return &Service{
		messages:     messages,
		users:        users,
		fanout:       fanout,
		logger:       logger,
		dedupWindow:  dedupWindow,
		pollLookback: pollLookback,
		locks:        make(map[string]*dedupLock),
	}
}

// Send runs the shared ingestion algorithm: validate, address, suppress
// duplicates, persist, then fan out. Durability always precedes delivery.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.SenderID == 0 || req.Content == "" {
		return nil, validationf("senderId and content are required")
	}
	if req.RecipientID == 0 && req.ConversationID == 0 {
		return nil, validationf("recipientId or conversationId is required")
	}
	if req.RecipientID != 0 && req.RecipientID == req.SenderID {
		return nil, validationf("cannot send a message to yourself")
	}

	recipientID := req.RecipientID
	if recipientID == 0 {
		lo, hi, ok := conversation.Extract(req.ConversationID)
		if !ok {
			return nil, validationf("conversationId %d does not address a participant pair", req.ConversationID)
		}
		recipientID = lo
		if recipientID == req.SenderID {
			recipientID = hi
		}
		if recipientID == req.SenderID {
			return nil, validationf("sender is both participants of conversation %d", req.ConversationID)
		}
	}

	sender, err := s.users.GetUserByID(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, notFoundf("sender %d", req.SenderID)
	}
	recipient, err := s.users.GetUserByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, notFoundf("recipient %d", recipientID)
	}

	lo, hi := req.SenderID, recipientID
	if lo > hi {
		lo, hi = hi, lo
	}
	conversationID := req.ConversationID
	if conversationID == 0 {
		conversationID = conversation.Derive(req.SenderID, recipientID)
	}
	// A client-supplied conversation id is trusted as-is and is not
	// cross-checked against the pair; the explicit lo/hi columns keep the
	// listing paths correct regardless.

	// A reply must reference a message in the same conversation.
	if req.ReplyToID != nil {
		parent, err := s.messages.GetMessage(ctx, *req.ReplyToID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.ConversationID != conversationID {
			return nil, validationf("replyToId %d does not reference a message in conversation %d", *req.ReplyToID, conversationID)
		}
	}

	unlock := s.lockDedupKey(conversationID, req.SenderID, req.Content)
	defer unlock()

	existing, err := s.messages.FindRecentDuplicate(ctx, conversationID, req.SenderID, req.Content, s.dedupWindow)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.DuplicatesSuppressed.Inc()
		s.logger.Info().
			Int64("message_id", existing.ID).
			Int64("conversation_id", conversationID).
			Msg("duplicate submission collapsed into existing message")
		return &SendResult{Message: existing, Duplicate: true}, nil
	}

	msg, err := s.messages.InsertMessage(ctx, &models.Message{
		ConversationID: conversationID,
		UserLow:        lo,
		UserHigh:       hi,
		SenderID:       req.SenderID,
		Content:        req.Content,
		ReplyToID:      req.ReplyToID,
	})
	if err != nil {
		// Nothing was committed, so nothing is broadcast.
		return nil, err
	}

	metrics.MessagesPersisted.WithLabelValues(req.Path).Inc()
	s.logger.Info().
		Int64("message_id", msg.ID).
		Int64("conversation_id", msg.ConversationID).
		Int64("sender_id", msg.SenderID).
		Str("path", req.Path).
		Msg("message persisted")

	// Commit is durable; live delivery from here on is best-effort.
	s.fanout.MessageCreated(msg, req.Origin)
	s.fanout.RecipientNotified(recipientID, msg)

	return &SendResult{Message: msg}, nil
}

// lockDedupKey takes the short-lived lock for one dedup key and returns its
// release func. The lock spans check-then-insert only.
func (s *Service) lockDedupKey(conversationID, senderID int64, content string) func() {
	h := fnv.New64a()
	h.Write([]byte(content))
	key := fmt.Sprintf("%d:%d:%x", conversationID, senderID, h.Sum64())

	s.mu.Lock()
	l := s.locks[key]
	if l == nil {
		l = &dedupLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// ConversationMessages returns a conversation's history ascending. afterID is
// the explicit last-seen-id cursor and wins over since when both are given.
func (s *Service) ConversationMessages(ctx context.Context, conversationID int64, since *time.Time, afterID int64) ([]models.Message, error) {
	return s.messages.ConversationMessages(ctx, conversationID, since, afterID)
}

// NewMessagesForUser returns messages addressed to the user, never their own.
// With no cursor and no since, it falls back to a fixed lookback window; the
// window couples poll frequency to loss risk, which is why the afterID cursor
// exists.
func (s *Service) NewMessagesForUser(ctx context.Context, userID int64, since *time.Time, afterID int64) ([]models.Message, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFoundf("user %d", userID)
	}

	from := time.Now().UTC().Add(-s.pollLookback)
	if since != nil {
		from = since.UTC()
	}
	return s.messages.NewMessagesForUser(ctx, userID, from, afterID)
}

// UserConversations lists the user's conversations with their last message.
func (s *Service) UserConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFoundf("user %d", userID)
	}
	return s.messages.UserConversations(ctx, userID)
}
