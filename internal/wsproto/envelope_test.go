package wsproto

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type offerPayload struct {
	TargetUserID string `json:"targetUserId"`
	SDP          string `json:"sdp"`
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := New("signal:offer", offerPayload{TargetUserID: "u2", SDP: "v=0..."})
	require.NoError(t, err)
	assert.Equal(t, "signal:offer", env.Event)

	var decoded offerPayload
	require.NoError(t, env.Decode(&decoded))
	assert.Equal(t, "u2", decoded.TargetUserID)
}

func TestEnvelopeDecode_EmptyPayload(t *testing.T) {
	env := Envelope{Event: "ping"}
	var out map[string]any
	assert.Error(t, env.Decode(&out))
}

func TestQueryToken(t *testing.T) {
	r := &http.Request{URL: &url.URL{RawQuery: "token=abc123"}}
	assert.Equal(t, "abc123", QueryToken(r))

	r2 := &http.Request{URL: &url.URL{}}
	assert.Empty(t, QueryToken(r2))
}

func TestNewError(t *testing.T) {
	env := NewError("ROOM_NOT_FOUND", "no such room")
	assert.Equal(t, "error", env.Event)

	var payload ErrorPayload
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, "ROOM_NOT_FOUND", payload.Code)
}
