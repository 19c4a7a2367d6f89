package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenito/Twitter-Like/internal/conversation"
	"github.com/havenito/Twitter-Like/internal/hub"
	"github.com/havenito/Twitter-Like/internal/models"
)

type fakeNotificationStore struct {
	nextID int64
	rows   []*models.Notification
	err    error
}

func (f *fakeNotificationStore) InsertNotification(_ context.Context, n *models.Notification) (*models.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	out := *n
	out.ID = f.nextID
	f.rows = append(f.rows, &out)
	return &out, nil
}

func TestDispatchPersistsAndPushes(t *testing.T) {
	st := &fakeNotificationStore{}
	h := hub.NewHub(zerolog.Nop())
	sink := NewSink(st, h, zerolog.Nop())

	session := h.Register()
	h.SetUser(session, 7)
	h.Join(session, conversation.UserRoom(7))

	n, err := sink.Dispatch(context.Background(), Event{
		Kind:      models.NotifyFollow,
		TargetID:  7,
		ActorID:   3,
	})
	require.NoError(t, err)
	assert.Positive(t, n.ID)
	require.Len(t, st.rows, 1)

	select {
	case data := <-session.Outbox():
		var f struct {
			Type string               `json:"type"`
			Data *models.Notification `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &f))
		assert.Equal(t, "notification", f.Type)
		assert.Equal(t, models.NotifyFollow, f.Data.Kind)
		assert.Equal(t, int64(3), f.Data.ActorID)
	default:
		t.Fatal("expected a live frame for the connected target")
	}
}

func TestDispatchPersistsWhenTargetOffline(t *testing.T) {
	st := &fakeNotificationStore{}
	h := hub.NewHub(zerolog.Nop())
	sink := NewSink(st, h, zerolog.Nop())

	other := h.Register()
	h.SetUser(other, 99)
	h.Join(other, conversation.UserRoom(99))

	_, err := sink.Dispatch(context.Background(), Event{
		Kind:     models.NotifyComment,
		TargetID: 7,
		ActorID:  3,
	})
	require.NoError(t, err)
	require.Len(t, st.rows, 1, "persistence must not depend on presence")

	select {
	case <-other.Outbox():
		t.Fatal("unrelated session must not receive the notification")
	default:
	}
}

func TestDispatchWithoutRegistry(t *testing.T) {
	st := &fakeNotificationStore{}
	sink := NewSink(st, nil, zerolog.Nop())

	n, err := sink.Dispatch(context.Background(), Event{
		Kind:      models.NotifyReport,
		TargetID:  1,
		ActorID:   2,
		SubjectID: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), n.SubjectID)
}

func TestDispatchStoreFailure(t *testing.T) {
	st := &fakeNotificationStore{err: errors.New("insert failed")}
	sink := NewSink(st, hub.NewHub(zerolog.Nop()), zerolog.Nop())

	_, err := sink.Dispatch(context.Background(), Event{Kind: models.NotifyReply, TargetID: 1})
	assert.Error(t, err)
}
