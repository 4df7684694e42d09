// Package wsproto defines the duplex wire envelope shared by the chat and
// video engines: a named event carrying a JSON payload, framed over
// gorilla/websocket (spec §6: "concrete framing is left to the
// implementation", browser-compatible duplex transport).
//
// Grounded on the teacher's gorilla/websocket usage in
// internal/v1/session/{hub,client}.go, generalized from that package's
// ad hoc per-message structs to one shared envelope used by both engines.
package wsproto

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is the wire shape of every duplex message in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New builds an Envelope, marshaling payload to JSON.
func New(event string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Payload: raw}, nil
}

// MustNew is New, panicking on a marshal failure — only safe for payload
// types that are always marshalable (no channels, funcs, cyclic pointers).
func MustNew(event string, payload any) Envelope {
	e, err := New(event, payload)
	if err != nil {
		panic(err)
	}
	return e
}

// Decode unmarshals an Envelope's payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %q has no payload", e.Event)
	}
	return json.Unmarshal(e.Payload, dst)
}

// ErrorPayload is the payload of an "error" event (spec §7 propagation
// policy: validation/policy errors surface to the offending client as an
// error event, never a disconnect).
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError builds an "error" event envelope.
func NewError(code, message string) Envelope {
	return MustNew("error", ErrorPayload{Code: code, Message: message})
}

// QueryToken extracts the handshake token from the upgrade request's query
// string. Both engines authenticate from the `token` query parameter alone,
// at upgrade time; a token sent later in an AuthEvent frame is not read.
func QueryToken(r *http.Request) string {
	return r.URL.Query().Get("token")
}

// AuthEvent is the event name of a credential frame. Both engines'
// dispatchers accept it and drop it without reading its token.
const AuthEvent = "auth"

// AuthPayload is AuthEvent's payload shape: `{"auth": {"token": "..."}}`
// flattened to the envelope's payload field.
type AuthPayload struct {
	Token string `json:"token"`
}
