// Package domain defines the persisted and transient entities shared across
// the chat engine, video engine and their Store backend. See data model
// §3 of the specification.
package domain

import "time"

// UserID is an opaque, unique identifier for an authenticated (or anonymous)
// user, derived from token verification. Never persisted by the core itself.
type UserID string

// RoomID and MessageID are server-assigned opaque identifiers.
type RoomID string
type MessageID string

// RoomKind classifies a ChatRoom's conversational shape.
type RoomKind string

const (
	RoomKindDirect  RoomKind = "direct"
	RoomKindGroup   RoomKind = "group"
	RoomKindChannel RoomKind = "channel"
)

// Visibility governs who may discover and join a room without a code.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// MessageKind classifies a ChatMessage's payload shape.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindImage  MessageKind = "image"
	MessageKindFile   MessageKind = "file"
	MessageKindSystem MessageKind = "system"
)

// User is the transient, per-session descriptor produced by token
// verification. It is never stored by the core.
type User struct {
	UserID      UserID
	DisplayName string
	Email       string
	AvatarURL   string
	// Anonymous is set for video-engine sessions admitted without a token
	// (see the video engine's documented authentication exception).
	Anonymous bool
}

// ChatRoom is a persisted room. Invariant: Visibility == private iff Code is
// non-empty and globally unique among rooms; CreatedBy is a member at
// creation time.
type ChatRoom struct {
	ID           RoomID
	Name         string
	Description  string
	Kind         RoomKind
	Visibility   Visibility
	Code         string // 6-char uppercase alphanumeric; empty unless private
	Participants []UserID
	CreatedBy    UserID
	CreatedAt    time.Time
	UpdatedAt    time.Time
	VideoRoomID  RoomID // weak back-reference, empty if none
}

// HasParticipant reports whether userID is a current member.
func (r *ChatRoom) HasParticipant(userID UserID) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ChatMessage is a persisted message. Invariant: SenderID was a participant
// of RoomID at the moment of insertion.
type ChatMessage struct {
	ID            MessageID
	RoomID        RoomID
	SenderID      UserID
	SenderName    string
	SenderAvatar  string
	Content       string
	Kind          MessageKind
	Timestamp     time.Time
	Metadata      map[string]any
}

// VideoRoom is a persisted signaling room. Invariant: len(Participants) <=
// MaxParticipants; HostID is a member at creation time.
type VideoRoom struct {
	ID              RoomID
	Name            string
	Description     string
	HostID          UserID
	Participants    []UserID
	MaxParticipants int
	Visibility      Visibility // always "public" on the current create path
	Code            string     // 6-char alphanumeric, always present
	ChatRoomID      RoomID     // weak back-reference, empty if none
	ChatRoomCode    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasParticipant reports whether userID is a current member.
func (r *VideoRoom) HasParticipant(userID UserID) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// VideoParticipant is a persisted per-(room,user) media-state record, keyed
// "<roomID>_<userID>". Invariant: exists iff userID is in VideoRoom.Participants.
type VideoParticipant struct {
	RoomID        RoomID
	UserID        UserID
	SocketID      string
	DisplayName   string
	Email         string
	AudioEnabled  bool
	VideoEnabled  bool
	ScreenSharing bool
	JoinedAt      time.Time
}

// Key returns the Store's composite key for this record.
func (p *VideoParticipant) Key() string {
	return string(p.RoomID) + "_" + string(p.UserID)
}
