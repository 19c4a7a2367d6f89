package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenito/Twitter-Like/internal/chat"
	"github.com/havenito/Twitter-Like/internal/conversation"
	"github.com/havenito/Twitter-Like/internal/models"
	"github.com/havenito/Twitter-Like/internal/notify"
	"github.com/havenito/Twitter-Like/internal/store"
)

type fixture struct {
	router *chi.Mux
	db     *store.SQLiteStore
	userA  int64
	userB  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	a, err := db.CreateUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	b, err := db.CreateUser(ctx, "bob", "bob@example.com")
	require.NoError(t, err)

	service := chat.NewService(db, db, nil, zerolog.Nop(), 5*time.Second, 30*time.Second)
	sink := notify.NewSink(db, nil, zerolog.Nop())
	h := NewHandler(service, sink, db, nil)

	r := chi.NewRouter()
	r.Post("/api/messages", h.CreateMessage)
	r.Post("/api/notifications", h.CreateNotification)
	r.Get("/api/conversations/{conversationId}/messages", h.GetConversationMessages)
	r.Get("/api/users/{userId}/conversations", h.GetUserConversations)
	r.Get("/api/users/{userId}/messages/new", h.GetNewMessages)

	return &fixture{router: r, db: db, userA: a.ID, userB: b.ID}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestCreateMessage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/messages", CreateMessageRequest{
		SenderID:     f.userA,
		RecipientID:  f.userB,
		Content:      "hello",
		ClientTempID: "tmp-9",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateMessageResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, "tmp-9", resp.ClientTempID)
	require.NotNil(t, resp.Message)
	assert.Equal(t, conversation.Derive(f.userA, f.userB), resp.Message.ConversationID)
	assert.Positive(t, resp.Message.ID)
}

func TestCreateMessageDuplicateReturns200(t *testing.T) {
	f := newFixture(t)
	body := CreateMessageRequest{SenderID: f.userA, RecipientID: f.userB, Content: "retry me"}

	first := f.do(t, http.MethodPost, "/api/messages", body)
	require.Equal(t, http.StatusCreated, first.Code)
	var firstResp CreateMessageResponse
	decode(t, first, &firstResp)

	second := f.do(t, http.MethodPost, "/api/messages", body)
	require.Equal(t, http.StatusOK, second.Code)
	var secondResp CreateMessageResponse
	decode(t, second, &secondResp)
	assert.True(t, secondResp.Duplicate)
	assert.Equal(t, firstResp.Message.ID, secondResp.Message.ID)
}

func TestCreateMessageValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/messages", CreateMessageRequest{
		SenderID: f.userA, RecipientID: f.userB,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/messages", CreateMessageRequest{
		SenderID: f.userA, RecipientID: f.userA, Content: "to myself",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMessageUnknownRecipient(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/messages", CreateMessageRequest{
		SenderID: f.userA, RecipientID: 9999, Content: "hi",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var errResp map[string]string
	decode(t, rec, &errResp)
	assert.Contains(t, errResp["error"], "recipient")
}

func TestCreateMessageMalformedBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewBufferString("{nope"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversationMessages(t *testing.T) {
	f := newFixture(t)
	convID := conversation.Derive(f.userA, f.userB)

	for _, content := range []string{"one", "two", "three"} {
		rec := f.do(t, http.MethodPost, "/api/messages", CreateMessageRequest{
			SenderID: f.userA, RecipientID: f.userB, Content: content,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", convID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessageListResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, "one", resp.Messages[0].Content)
	assert.Equal(t, "three", resp.Messages[2].Content)

	// after_id cursor returns only later rows.
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages?after_id=%d", convID, resp.Messages[0].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tail MessageListResponse
	decode(t, rec, &tail)
	require.Len(t, tail.Messages, 2)
	assert.Equal(t, "two", tail.Messages[0].Content)
}

func TestGetConversationMessagesEmpty(t *testing.T) {
	f := newFixture(t)
	convID := conversation.Derive(f.userA, f.userB)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", convID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}

func TestGetConversationMessagesBadParams(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/conversations/abc/messages", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/conversations/5/messages?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/conversations/5/messages?after_id=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUserConversations(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/messages", CreateMessageRequest{
		SenderID: f.userA, RecipientID: f.userB, Content: "start",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/conversations", f.userA), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationListResponse
	decode(t, rec, &resp)
	assert.Equal(t, f.userA, resp.UserID)
	assert.Equal(t, 1, resp.TotalConversations)
	require.Len(t, resp.Conversations, 1)
	require.NotNil(t, resp.Conversations[0].OtherUser)
	assert.Equal(t, f.userB, resp.Conversations[0].OtherUser.ID)
	require.NotNil(t, resp.Conversations[0].LastMessage)
	assert.Equal(t, "start", resp.Conversations[0].LastMessage.Content)
}

func TestGetUserConversationsUnknownUser(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/users/9999/conversations", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetNewMessages(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/messages", CreateMessageRequest{
		SenderID: f.userB, RecipientID: f.userA, Content: "for alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/messages", CreateMessageRequest{
		SenderID: f.userA, RecipientID: f.userB, Content: "own message",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/messages/new", f.userA), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp NewMessagesResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "for alice", resp.Messages[0].Content)
	assert.Equal(t, f.userB, resp.Messages[0].SenderID)

	// Timestamp is handed back for use as the next since value. RFC3339
	// drops sub-second precision, so round up a full second to stay strictly
	// past the row just written.
	next, err := time.Parse(time.RFC3339Nano, resp.Timestamp)
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/messages/new?since=%s", f.userA, next.Add(time.Second).Format(time.RFC3339)), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var again NewMessagesResponse
	decode(t, rec, &again)
	assert.Equal(t, 0, again.Count)
	assert.Empty(t, again.Messages)
}

func TestCreateNotification(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/notifications", CreateNotificationRequest{
		UserID:    f.userA,
		Kind:      models.NotifyFollow,
		ActorID:   f.userB,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateNotificationResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Notification)
	assert.Positive(t, resp.Notification.ID)
	assert.Equal(t, models.NotifyFollow, resp.Notification.Kind)
	assert.False(t, resp.Notification.Seen)
}

func TestCreateNotificationValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/notifications", CreateNotificationRequest{
		UserID: f.userA, ActorID: f.userB, Kind: "poke",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/notifications", CreateNotificationRequest{
		Kind: models.NotifyComment, ActorID: f.userB,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNewMessagesCursor(t *testing.T) {
	f := newFixture(t)

	first := f.do(t, http.MethodPost, "/api/messages", CreateMessageRequest{
		SenderID: f.userB, RecipientID: f.userA, Content: "first",
	})
	require.Equal(t, http.StatusCreated, first.Code)
	var firstResp CreateMessageResponse
	decode(t, first, &firstResp)

	second := f.do(t, http.MethodPost, "/api/messages", CreateMessageRequest{
		SenderID: f.userB, RecipientID: f.userA, Content: "second",
	})
	require.Equal(t, http.StatusCreated, second.Code)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/messages/new?after_id=%d", f.userA, firstResp.Message.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp NewMessagesResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "second", resp.Messages[0].Content)
}
