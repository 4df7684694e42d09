// Package chatengine implements the chat room/message/presence engine
// (spec §4.3): session lifecycle, room codes, membership, messaging and
// the duplex event surface.
//
// Grounded on RoseWrightdev/Video-Conferencing backend/go/internal/v1/session's
// Hub→Room→Client shape, generalized from video rooms to chat rooms and
// rewritten around the store.Store contract in place of the teacher's
// protobuf/SFU-coupled session package (see this repo's design notes for
// why that package could not be reused directly).
package chatengine

import "github.com/collabhub/realtime/internal/domain"

// Client→server event names (spec §4.3.5).
const (
	EventRoomCreate      = "room:create"
	EventRoomJoin        = "room:join"
	EventRoomJoinByCode  = "room:join-by-code"
	EventRoomLeave       = "room:leave"
	EventRoomGet         = "room:get"
	EventMessageSend     = "message:send"
	EventMessagesGet     = "messages:get"
)

// Server→client event names.
const (
	EventRoomsList      = "rooms:list"
	EventRoomCreated    = "room:created"
	EventRoomJoined     = "room:joined"
	EventRoomLeft       = "room:left"
	EventRoomDetails    = "room:details"
	EventRoomUserJoined = "room:user-joined"
	EventRoomUserLeft   = "room:user-left"
	EventMessageNew     = "message:new"
	EventMessagesList   = "messages:list"
	EventUserOnline     = "user:online"
	EventUserOffline    = "user:offline"
)

// Payload shapes, named after the event that carries them.

type roomCreatePayload struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Kind         string          `json:"kind"`
	Visibility   string          `json:"visibility"`
	Participants []string        `json:"participants,omitempty"`
}

type roomJoinPayload struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code,omitempty"`
}

type roomJoinByCodePayload struct {
	Code string `json:"code"`
}

type roomLeavePayload struct {
	RoomID string `json:"roomId"`
}

type roomGetPayload struct {
	RoomID string `json:"roomId"`
}

type messageSendPayload struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
}

type messagesGetPayload struct {
	RoomID string `json:"roomId"`
	// Limit is a pointer so an explicit 0 (boundary case: "return nothing")
	// can be distinguished from an omitted field (defaults to 50).
	Limit  *int   `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// roomView is the wire shape of a ChatRoom. Code is omitted entirely for
// non-participants of a public room (see handleRoomGet's redaction rule).
type roomView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Kind         string   `json:"kind"`
	Visibility   string   `json:"visibility"`
	Code         string   `json:"code,omitempty"`
	Participants []string `json:"participants"`
	CreatedBy    string   `json:"createdBy"`
	CreatedAt    int64    `json:"createdAt"`
	UpdatedAt    int64    `json:"updatedAt"`
	VideoRoomID  string   `json:"videoRoomId,omitempty"`
}

func toRoomView(r *domain.ChatRoom, redactCode bool) roomView {
	participants := make([]string, len(r.Participants))
	for i, p := range r.Participants {
		participants[i] = string(p)
	}
	code := r.Code
	if redactCode {
		code = ""
	}
	return roomView{
		ID: string(r.ID), Name: r.Name, Description: r.Description, Kind: string(r.Kind),
		Visibility: string(r.Visibility), Code: code, Participants: participants,
		CreatedBy: string(r.CreatedBy), CreatedAt: r.CreatedAt.UnixMilli(), UpdatedAt: r.UpdatedAt.UnixMilli(),
		VideoRoomID: string(r.VideoRoomID),
	}
}

type messageView struct {
	ID           string `json:"id"`
	RoomID       string `json:"roomId"`
	SenderID     string `json:"senderId"`
	SenderName   string `json:"senderName,omitempty"`
	SenderAvatar string `json:"senderAvatar,omitempty"`
	Content      string `json:"content"`
	Kind         string `json:"kind"`
	Timestamp    int64  `json:"timestamp"`
}

func toMessageView(m *domain.ChatMessage) messageView {
	return messageView{
		ID: string(m.ID), RoomID: string(m.RoomID), SenderID: string(m.SenderID),
		SenderName: m.SenderName, SenderAvatar: m.SenderAvatar, Content: m.Content,
		Kind: string(m.Kind), Timestamp: m.Timestamp.UnixMilli(),
	}
}
