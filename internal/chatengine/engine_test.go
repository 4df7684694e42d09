package chatengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/realtime/internal/apperr"
	"github.com/collabhub/realtime/internal/domain"
	"github.com/collabhub/realtime/internal/store"
	"github.com/collabhub/realtime/internal/wsproto"
)

// fakeConn is a no-op wsConnection: tests never drive the real goroutines,
// they call handle() directly and inspect the session's send channel.
type fakeConn struct{}

func (fakeConn) ReadMessage() (int, []byte, error)   { return 0, nil, nil }
func (fakeConn) WriteMessage(int, []byte) error      { return nil }
func (fakeConn) Close() error                        { return nil }
func (fakeConn) SetWriteDeadline(time.Time) error    { return nil }

func newTestEngine() *Engine {
	return New(Config{Store: store.NewMemoryStore()})
}

func newTestSession(e *Engine, userID domain.UserID) *Session {
	return newSession(e, fakeConn{}, &domain.User{UserID: userID, DisplayName: string(userID)})
}

func drain(t *testing.T, s *Session) wsproto.Envelope {
	t.Helper()
	select {
	case env := <-s.send:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return wsproto.Envelope{}
	}
}

func send(t *testing.T, s *Session, event string, payload any) {
	t.Helper()
	env, err := wsproto.New(event, payload)
	require.NoError(t, err)
	handle(context.Background(), s, env)
}

// S1 — create public chat, two joiners, one message.
func TestScenario_PublicRoomCreateJoinMessage(t *testing.T) {
	e := newTestEngine()
	u1 := newTestSession(e, "U1")
	u2 := newTestSession(e, "U2")
	u3 := newTestSession(e, "U3")

	send(t, u1, EventRoomCreate, roomCreatePayload{Name: "General", Kind: "group", Visibility: "public"})
	created := drain(t, u1)
	assert.Equal(t, EventRoomCreated, created.Event)
	var createdView roomView
	require.NoError(t, created.Decode(&createdView))
	require.NotEmpty(t, createdView.ID)
	assert.Empty(t, createdView.Code) // group/public rooms never carry a code

	send(t, u2, EventRoomJoin, roomJoinPayload{RoomID: createdView.ID})
	joined := drain(t, u2)
	assert.Equal(t, EventRoomJoined, joined.Event)

	userJoined := drain(t, u1)
	assert.Equal(t, EventRoomUserJoined, userJoined.Event)

	send(t, u3, EventRoomJoin, roomJoinPayload{RoomID: createdView.ID})
	drain(t, u3)       // room:joined
	drain(t, u1)       // room:user-joined (u3) to u1
	drain(t, u2)       // room:user-joined (u3) to u2

	send(t, u2, EventMessageSend, messageSendPayload{RoomID: createdView.ID, Content: "hi"})
	for _, s := range []*Session{u1, u2, u3} {
		env := drain(t, s)
		require.Equal(t, EventMessageNew, env.Event)
		var m messageView
		require.NoError(t, env.Decode(&m))
		assert.Equal(t, "U2", m.SenderID)
		assert.Equal(t, "hi", m.Content)
	}

	page, err := e.store.ListMessages(context.Background(), store.MessageQuery{RoomID: domain.RoomID(createdView.ID), Limit: 50})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
}

// S2 — private room by code.
func TestScenario_PrivateRoomByCode(t *testing.T) {
	e := newTestEngine()
	u1 := newTestSession(e, "U1")
	u2 := newTestSession(e, "U2")
	u3 := newTestSession(e, "U3")

	send(t, u1, EventRoomCreate, roomCreatePayload{Name: "X", Kind: "group", Visibility: "private"})
	created := drain(t, u1)
	var createdView roomView
	require.NoError(t, created.Decode(&createdView))
	assert.Regexp(t, `^[A-Z0-9]{6}$`, createdView.Code)

	send(t, u2, EventRoomJoinByCode, roomJoinByCodePayload{Code: createdView.Code})
	joined := drain(t, u2)
	assert.Equal(t, EventRoomJoined, joined.Event)

	userJoined := drain(t, u1)
	assert.Equal(t, EventRoomUserJoined, userJoined.Event)

	send(t, u3, EventRoomJoinByCode, roomJoinByCodePayload{Code: "AAAAAA"})
	errEnv := drain(t, u3)
	assert.Equal(t, "error", errEnv.Event)
	var payload wsproto.ErrorPayload
	require.NoError(t, errEnv.Decode(&payload))
	assert.Equal(t, string(apperr.CodeRoomNotFound), payload.Code)
}

// S3 — presence across multiple sessions of the same user.
func TestScenario_PresenceAcrossSessions(t *testing.T) {
	e := newTestEngine()
	observer := newTestSession(e, "OBSERVER")
	e.trackPresence(observer.UserID(), observer)

	s1 := newTestSession(e, "U1")
	first := e.trackPresence(s1.UserID(), s1)
	assert.True(t, first)
	e.broadcastUserOnline(context.Background(), s1.UserID())
	online := drain(t, observer)
	assert.Equal(t, EventUserOnline, online.Event)

	s2 := newTestSession(e, "U1")
	second := e.trackPresence(s2.UserID(), s2)
	assert.False(t, second, "second concurrent session must not report first=true")

	lastAfterS1 := e.dropPresence(s1.UserID(), s1)
	assert.False(t, lastAfterS1, "one remaining session means not last")

	lastAfterS2 := e.dropPresence(s2.UserID(), s2)
	assert.True(t, lastAfterS2)
}

func TestMessageSend_RequiresParticipant(t *testing.T) {
	e := newTestEngine()
	u1 := newTestSession(e, "U1")
	u2 := newTestSession(e, "U2")

	send(t, u1, EventRoomCreate, roomCreatePayload{Name: "R", Kind: "group", Visibility: "public"})
	created := drain(t, u1)
	var view roomView
	require.NoError(t, created.Decode(&view))

	send(t, u2, EventMessageSend, messageSendPayload{RoomID: view.ID, Content: "hi"})
	errEnv := drain(t, u2)
	assert.Equal(t, "error", errEnv.Event)
	var payload wsproto.ErrorPayload
	require.NoError(t, errEnv.Decode(&payload))
	assert.Equal(t, string(apperr.CodeNotParticipant), payload.Code)
}

func TestMessagesGet_ReturnsChronologicalOrder(t *testing.T) {
	e := newTestEngine()
	u1 := newTestSession(e, "U1")

	send(t, u1, EventRoomCreate, roomCreatePayload{Name: "R", Kind: "group", Visibility: "public"})
	created := drain(t, u1)
	var view roomView
	require.NoError(t, created.Decode(&view))

	send(t, u1, EventMessageSend, messageSendPayload{RoomID: view.ID, Content: "first"})
	drain(t, u1)
	send(t, u1, EventMessageSend, messageSendPayload{RoomID: view.ID, Content: "second"})
	drain(t, u1)

	send(t, u1, EventMessagesGet, messagesGetPayload{RoomID: view.ID})
	listEnv := drain(t, u1)
	assert.Equal(t, EventMessagesList, listEnv.Event)

	var body struct {
		Messages []messageView `json:"messages"`
	}
	require.NoError(t, listEnv.Decode(&body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "first", body.Messages[0].Content)
	assert.Equal(t, "second", body.Messages[1].Content)
}

func TestMessagesGet_EmptyLimitIsNotAnError(t *testing.T) {
	e := newTestEngine()
	u1 := newTestSession(e, "U1")

	send(t, u1, EventRoomCreate, roomCreatePayload{Name: "R", Kind: "group", Visibility: "public"})
	created := drain(t, u1)
	var view roomView
	require.NoError(t, created.Decode(&view))

	zero := 0
	send(t, u1, EventMessagesGet, messagesGetPayload{RoomID: view.ID, Limit: &zero})
	listEnv := drain(t, u1)
	assert.Equal(t, EventMessagesList, listEnv.Event)

	var body struct {
		Messages []messageView `json:"messages"`
	}
	require.NoError(t, listEnv.Decode(&body))
	assert.Empty(t, body.Messages)
}
