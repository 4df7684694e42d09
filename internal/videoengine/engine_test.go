package videoengine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/realtime/internal/apperr"
	"github.com/collabhub/realtime/internal/domain"
	"github.com/collabhub/realtime/internal/store"
	"github.com/collabhub/realtime/internal/wsproto"
)

type fakeConn struct{}

func (fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, nil }
func (fakeConn) WriteMessage(int, []byte) error    { return nil }
func (fakeConn) Close() error                      { return nil }
func (fakeConn) SetWriteDeadline(time.Time) error  { return nil }

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

func rawSignalPayload(t *testing.T, kind, targetUserID string, inner any) signalPayload {
	t.Helper()
	raw, err := json.Marshal(inner)
	require.NoError(t, err)
	return signalPayload{Kind: kind, TargetUserID: targetUserID, Payload: raw}
}

// S4 — video signaling with target.
func TestScenario_SignalingWithTarget(t *testing.T) {
	e := newTestEngine()
	host := newTestSession(e, "U1")
	joiner := newTestSession(e, "U2")

	send(t, host, EventRoomCreate, roomCreatePayload{Name: "Standup"})
	created := drain(t, host)
	var room roomView
	require.NoError(t, created.Decode(&room))

	send(t, joiner, EventRoomJoin, roomJoinPayload{RoomID: room.ID})
	joined := drain(t, joiner)
	assert.Equal(t, EventRoomJoined, joined.Event)
	drain(t, host) // video:user:joined

	payload := rawSignalPayload(t, SignalOffer, "U2", map[string]any{"sdp": "v=0..."})
	payload.RoomID = room.ID
	send(t, host, EventSignal, payload)

	delivered := drain(t, joiner)
	assert.Equal(t, EventSignal, delivered.Event)
	var body struct {
		FromUserID string         `json:"fromUserId"`
		Payload    map[string]any `json:"payload"`
		Metadata   map[string]any `json:"metadata"`
	}
	require.NoError(t, delivered.Decode(&body))
	assert.Equal(t, "U1", body.FromUserID)
	assert.Equal(t, "v=0...", body.Payload["sdp"])
	assert.Equal(t, "camera", body.Metadata["streamType"])
}

// S5 — screen-share renegotiation hint.
func TestScenario_ScreenShareRenegotiation(t *testing.T) {
	e := newTestEngine()
	host := newTestSession(e, "U1")
	joiner := newTestSession(e, "U2")

	send(t, host, EventRoomCreate, roomCreatePayload{Name: "Standup"})
	created := drain(t, host)
	var room roomView
	require.NoError(t, created.Decode(&room))

	send(t, joiner, EventRoomJoin, roomJoinPayload{RoomID: room.ID})
	drain(t, joiner)
	drain(t, host)

	send(t, host, EventToggleScreen, togglePayload{RoomID: room.ID, Enabled: true})
	drain(t, host) // video:screen:toggled to host (broadcast includes sender)

	toggled := drain(t, joiner)
	assert.Equal(t, EventScreenToggled, toggled.Event)
	negotiation := drain(t, joiner)
	assert.Equal(t, EventScreenNegotiationNeed, negotiation.Event)

	payload := rawSignalPayload(t, SignalOffer, "U2", map[string]any{"sdp": "v=0 screen"})
	payload.RoomID = room.ID
	send(t, host, EventSignal, payload)
	delivered := drain(t, joiner)
	var body struct {
		Metadata map[string]any `json:"metadata"`
	}
	require.NoError(t, delivered.Decode(&body))
	assert.Equal(t, "screen", body.Metadata["streamType"])
}

// S6 — host-only end.
func TestScenario_HostOnlyEnd(t *testing.T) {
	e := newTestEngine()
	host := newTestSession(e, "U1")
	joiner := newTestSession(e, "U2")

	send(t, host, EventRoomCreate, roomCreatePayload{Name: "Standup"})
	created := drain(t, host)
	var room roomView
	require.NoError(t, created.Decode(&room))

	send(t, joiner, EventRoomJoin, roomJoinPayload{RoomID: room.ID})
	drain(t, joiner)
	drain(t, host)

	send(t, joiner, EventRoomEnd, roomEndPayload{RoomID: room.ID})
	errEnv := drain(t, joiner)
	assert.Equal(t, "error", errEnv.Event)
	var errPayload wsproto.ErrorPayload
	require.NoError(t, errEnv.Decode(&errPayload))
	assert.Equal(t, string(apperr.CodeUnauthorized), errPayload.Code)

	send(t, host, EventRoomEnd, roomEndPayload{RoomID: room.ID})
	hostEnded := drain(t, host)
	assert.Equal(t, EventRoomEnded, hostEnded.Event)
	joinerEnded := drain(t, joiner)
	assert.Equal(t, EventRoomEnded, joinerEnded.Event)

	// Second end from the host is a silent no-op.
	send(t, host, EventRoomEnd, roomEndPayload{RoomID: room.ID})
	select {
	case env := <-host.send:
		t.Fatalf("expected no envelope for repeated video:room:end, got %v", env)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRoomJoin_CapacityEnforced(t *testing.T) {
	e := newTestEngine()
	host := newTestSession(e, "U1")
	send(t, host, EventRoomCreate, roomCreatePayload{Name: "Full room"})
	created := drain(t, host)
	var room roomView
	require.NoError(t, created.Decode(&room))

	for i := 0; i < DefaultMaxParticipants-1; i++ {
		s := newTestSession(e, domain.UserID("U"+string(rune('2'+i))))
		send(t, s, EventRoomJoin, roomJoinPayload{RoomID: room.ID})
		drain(t, s)  // room:joined
		drain(t, host) // video:user:joined (also queued to earlier joiners, which are not drained)
		// drain anything else queued to this joiner
		for {
			select {
			case <-s.send:
				continue
			default:
			}
			break
		}
	}

	overflow := newTestSession(e, "OVERFLOW")
	send(t, overflow, EventRoomJoin, roomJoinPayload{RoomID: room.ID})
	errEnv := drain(t, overflow)
	assert.Equal(t, "error", errEnv.Event)
	var errPayload wsproto.ErrorPayload
	require.NoError(t, errEnv.Decode(&errPayload))
	assert.Equal(t, string(apperr.CodeRoomFull), errPayload.Code)
}

func TestSignal_OfferWithoutTargetRejected(t *testing.T) {
	e := newTestEngine()
	host := newTestSession(e, "U1")
	send(t, host, EventRoomCreate, roomCreatePayload{Name: "R"})
	created := drain(t, host)
	var room roomView
	require.NoError(t, created.Decode(&room))

	payload := rawSignalPayload(t, SignalOffer, "", map[string]any{"sdp": "v=0..."})
	payload.RoomID = room.ID
	send(t, host, EventSignal, payload)

	errEnv := drain(t, host)
	var errPayload wsproto.ErrorPayload
	require.NoError(t, errEnv.Decode(&errPayload))
	assert.Equal(t, string(apperr.CodeMustIncludeTarget), errPayload.Code)
}

func TestSignal_ICECandidateWithoutTargetBroadcasts(t *testing.T) {
	e := newTestEngine()
	host := newTestSession(e, "U1")
	joiner := newTestSession(e, "U2")

	send(t, host, EventRoomCreate, roomCreatePayload{Name: "R"})
	created := drain(t, host)
	var room roomView
	require.NoError(t, created.Decode(&room))

	send(t, joiner, EventRoomJoin, roomJoinPayload{RoomID: room.ID})
	drain(t, joiner)
	drain(t, host)

	payload := rawSignalPayload(t, SignalICECandidate, "", map[string]any{"candidate": "candidate:1 1 UDP"})
	payload.RoomID = room.ID
	send(t, host, EventSignal, payload)

	delivered := drain(t, joiner)
	assert.Equal(t, EventSignal, delivered.Event)
}

func TestSignal_InvalidStructureRejected(t *testing.T) {
	e := newTestEngine()
	host := newTestSession(e, "U1")
	send(t, host, EventRoomCreate, roomCreatePayload{Name: "R"})
	created := drain(t, host)
	var room roomView
	require.NoError(t, created.Decode(&room))

	payload := rawSignalPayload(t, SignalOffer, "U2", map[string]any{"sdp": ""})
	payload.RoomID = room.ID
	send(t, host, EventSignal, payload)

	errEnv := drain(t, host)
	var errPayload wsproto.ErrorPayload
	require.NoError(t, errEnv.Decode(&errPayload))
	assert.Equal(t, string(apperr.CodeInvalidSignalStructure), errPayload.Code)
}

func TestRoomLeave_IsIdempotent(t *testing.T) {
	e := newTestEngine()
	host := newTestSession(e, "U1")
	send(t, host, EventRoomCreate, roomCreatePayload{Name: "R"})
	created := drain(t, host)
	var room roomView
	require.NoError(t, created.Decode(&room))

	send(t, host, EventRoomLeave, roomLeavePayload{RoomID: room.ID})
	left := drain(t, host)
	assert.Equal(t, EventRoomLeft, left.Event)

	send(t, host, EventRoomLeave, roomLeavePayload{RoomID: room.ID})
	leftAgain := drain(t, host)
	assert.Equal(t, EventRoomLeft, leftAgain.Event)
}
