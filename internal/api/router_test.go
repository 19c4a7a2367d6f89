package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenito/Twitter-Like/internal/chat"
	"github.com/havenito/Twitter-Like/internal/config"
	"github.com/havenito/Twitter-Like/internal/handlers"
	"github.com/havenito/Twitter-Like/internal/hub"
	"github.com/havenito/Twitter-Like/internal/notify"
	"github.com/havenito/Twitter-Like/internal/store"
	"github.com/havenito/Twitter-Like/internal/ws"
)

// newRouterTestServer assembles the full production router, middleware chain
// included, over a temp SQLite store.
func newRouterTestServer(t *testing.T) (*httptest.Server, int64, int64) {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "router.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	alice, err := db.CreateUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	bob, err := db.CreateUser(ctx, "bob", "bob@example.com")
	require.NoError(t, err)

	cfg := &config.Config{
		Env:            "test",
		AllowedOrigins: []string{"*"},
	}

	registry := hub.NewHub(zerolog.Nop())
	fanout := ws.NewFanOut(registry, zerolog.Nop())
	service := chat.NewService(db, db, fanout, zerolog.Nop(), 5*time.Second, 30*time.Second)
	sink := notify.NewSink(db, registry, zerolog.Nop())
	wsServer := ws.NewServer(registry, service, zerolog.Nop())

	router := NewRouter(zerolog.Nop(), cfg, db, nil, service, sink, wsServer)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, alice.ID, bob.ID
}

func readFrame(t *testing.T, conn *websocket.Conn) *ws.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env ws.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return &env
}

func writeFrame(t *testing.T, conn *websocket.Conn, typ ws.EventType, payload interface{}) {
	t.Helper()
	env, err := ws.NewEnvelope(typ, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

// The upgrade must survive every response-writer wrapper in the middleware
// chain; a wrapper that hides http.Hijacker kills the whole push channel.
func TestRouterWebSocketUpgrade(t *testing.T) {
	ts, _, _ := newRouterTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "upgrade failed through the assembled router")
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	env := readFrame(t, conn)
	assert.Equal(t, ws.TypeStatus, env.Type)
}

func TestRouterWebSocketSendRoundTrip(t *testing.T) {
	ts, alice, bob := newRouterTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readFrame(t, conn)
	require.Equal(t, ws.TypeStatus, env.Type)

	writeFrame(t, conn, ws.TypeJoinUser, ws.JoinUserEvent{UserID: alice})
	env = readFrame(t, conn)
	require.Equal(t, ws.TypeStatus, env.Type)

	writeFrame(t, conn, ws.TypeSendMessage, ws.SendMessageEvent{
		SenderID:    alice,
		RecipientID: bob,
		Content:     "through the router",
	})

	env = readFrame(t, conn)
	require.Equal(t, ws.TypeMessageSent, env.Type)
	var ack ws.MessageSentEvent
	require.NoError(t, json.Unmarshal(env.Data, &ack))
	assert.True(t, ack.Success)
	assert.Positive(t, ack.MessageID)

	// The row is visible through the HTTP surface of the same router.
	resp, err := http.Get(ts.URL + "/api/conversations/" + strconv.FormatInt(ack.ConversationID, 10) + "/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list handlers.MessageListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "through the router", list.Messages[0].Content)
}

func TestRouterHTTPSurface(t *testing.T) {
	ts, alice, bob := newRouterTestServer(t)

	body, err := json.Marshal(handlers.CreateMessageRequest{
		SenderID:    alice,
		RecipientID: bob,
		Content:     "over http",
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	metricsResp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}
