// Package videoengine implements the video signaling engine (spec §4.4):
// room admission (authenticated or anonymous), host-only lifecycle, WebRTC
// signaling relay and media-state toggles over the shared duplex envelope.
//
// Grounded on the same RoseWrightdev/Video-Conferencing
// backend/go/internal/v1/session Hub→Room→Client shape as the chat engine,
// here generalized to rooms that relay opaque signaling payloads instead of
// fanning out chat messages.
package videoengine

import (
	"encoding/json"

	"github.com/collabhub/realtime/internal/domain"
)

// Client→server event names (spec §4.4.5).
const (
	EventRoomCreate   = "video:room:create"
	EventRoomJoin     = "video:room:join"
	EventRoomLeave    = "video:room:leave"
	EventRoomEnd      = "video:room:end"
	EventSignal       = "video:signal"
	EventToggleAudio  = "video:toggle-audio"
	EventToggleVideo  = "video:toggle-video"
	EventToggleScreen = "video:toggle-screen"
	EventScreenStart  = "video:screen:start"
	EventScreenStop   = "video:screen:stop"
	EventStreamReady  = "video:stream:ready"
)

// Server→client event names.
const (
	EventRoomCreated           = "video:room:created"
	EventRoomJoined            = "video:room:joined"
	EventRoomLeft              = "video:room:left"
	EventRoomEnded             = "video:room:ended"
	EventUserJoined            = "video:user:joined"
	EventUserLeft              = "video:user:left"
	EventAudioToggled          = "video:audio:toggled"
	EventVideoToggled          = "video:video:toggled"
	EventScreenToggled         = "video:screen:toggled"
	EventScreenStarted         = "video:screen:started"
	EventScreenStopped         = "video:screen:stopped"
	EventScreenNegotiationNeed = "video:screen:negotiation:needed"
)

// Signal kinds (spec §4.4.3).
const (
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
)

// Payload shapes, named after the event that carries them.

type roomCreatePayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// WithChat opts into creating an associated private ChatRoom linked via
	// videoRoomId (spec §4.4.2: "optionally create an associated private
	// ChatRoom").
	WithChat bool `json:"withChat,omitempty"`
}

type roomJoinPayload struct {
	RoomID string `json:"roomId,omitempty"`
	Code   string `json:"code,omitempty"`
}

type roomLeavePayload struct {
	RoomID string `json:"roomId"`
}

type roomEndPayload struct {
	RoomID string `json:"roomId"`
}

type signalPayload struct {
	Kind         string          `json:"signalKind"`
	RoomID       string          `json:"roomId"`
	TargetUserID string          `json:"targetUserId,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

type togglePayload struct {
	RoomID  string `json:"roomId"`
	Enabled bool   `json:"enabled"`
}

type screenStartStopPayload struct {
	RoomID string `json:"roomId"`
}

type streamReadyPayload struct {
	RoomID     string `json:"roomId"`
	StreamID   string `json:"streamId,omitempty"`
	StreamType string `json:"streamType,omitempty"`
	ScreenSharing *bool `json:"screenSharing,omitempty"`
}

// roomView is the wire shape of a VideoRoom.
type roomView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	HostID          string `json:"hostId"`
	MaxParticipants int    `json:"maxParticipants"`
	Code            string `json:"code"`
	ChatRoomID      string `json:"chatRoomId,omitempty"`
	ChatRoomCode    string `json:"chatRoomCode,omitempty"`
	CreatedAt       int64  `json:"createdAt"`
	UpdatedAt       int64  `json:"updatedAt"`
}

func toRoomView(r *domain.VideoRoom) roomView {
	return roomView{
		ID: string(r.ID), Name: r.Name, Description: r.Description, HostID: string(r.HostID),
		MaxParticipants: r.MaxParticipants, Code: r.Code, ChatRoomID: string(r.ChatRoomID),
		ChatRoomCode: r.ChatRoomCode, CreatedAt: r.CreatedAt.UnixMilli(), UpdatedAt: r.UpdatedAt.UnixMilli(),
	}
}

// participantView is the media-state snapshot attached to video:user:joined
// and video:room:joined (spec §4.4.2: "includes media-state snapshot").
type participantView struct {
	UserID        string `json:"userId"`
	SocketID      string `json:"socketId"`
	DisplayName   string `json:"displayName,omitempty"`
	AudioEnabled  bool   `json:"audioEnabled"`
	VideoEnabled  bool   `json:"videoEnabled"`
	ScreenSharing bool   `json:"screenSharing"`
}

func toParticipantView(p *domain.VideoParticipant) participantView {
	return participantView{
		UserID: string(p.UserID), SocketID: p.SocketID, DisplayName: p.DisplayName,
		AudioEnabled: p.AudioEnabled, VideoEnabled: p.VideoEnabled, ScreenSharing: p.ScreenSharing,
	}
}
