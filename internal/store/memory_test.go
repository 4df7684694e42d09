package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/realtime/internal/apperr"
	"github.com/collabhub/realtime/internal/domain"
)

func TestMemoryStore_RoomLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	room := &domain.ChatRoom{
		ID: "room-1", Name: "general", Kind: domain.RoomKindGroup,
		Visibility: domain.VisibilityPublic, CreatedBy: "u1",
		Participants: []domain.UserID{"u1"}, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, s.CreateRoom(ctx, room))

	got, err := s.GetRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "general", got.Name)

	require.NoError(t, s.AddParticipant(ctx, "room-1", "u2"))
	got, _ = s.GetRoom(ctx, "room-1")
	assert.True(t, got.HasParticipant("u2"))

	require.NoError(t, s.RemoveParticipant(ctx, "room-1", "u2"))
	got, _ = s.GetRoom(ctx, "room-1")
	assert.False(t, got.HasParticipant("u2"))

	_, err = s.GetRoom(ctx, "missing")
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeRoomNotFound, appErr.Code)
}

func TestMemoryStore_ListRoomsFiltersByVisibilityAndParticipant(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateRoom(ctx, &domain.ChatRoom{
		ID: "pub-1", Visibility: domain.VisibilityPublic, Participants: []domain.UserID{"u1"}, UpdatedAt: time.Now(),
	}))
	require.NoError(t, s.CreateRoom(ctx, &domain.ChatRoom{
		ID: "priv-1", Visibility: domain.VisibilityPrivate, Code: "ABC123", Participants: []domain.UserID{"u2"}, UpdatedAt: time.Now(),
	}))

	rooms, err := s.ListRooms(ctx, RoomQuery{Visibility: domain.VisibilityPublic})
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
	assert.Equal(t, domain.RoomID("pub-1"), rooms[0].ID)

	byCode, err := s.GetRoomByCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("priv-1"), byCode.ID)
}

func TestMemoryStore_MessagesPagination(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateRoom(ctx, &domain.ChatRoom{ID: "room-1", Visibility: domain.VisibilityPublic}))

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMessage(ctx, &domain.ChatMessage{
			ID: domain.MessageID("m" + string(rune('0'+i))), RoomID: "room-1",
			SenderID: "u1", Content: "hi", Kind: domain.MessageKindText,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	page, err := s.ListMessages(ctx, MessageQuery{RoomID: "room-1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
	assert.NotEmpty(t, page.NextCursor)

	page2, err := s.ListMessages(ctx, MessageQuery{RoomID: "room-1", Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, page2.Messages, 2)
	assert.NotEqual(t, page.Messages[0].ID, page2.Messages[0].ID)
}

func TestMemoryStore_VideoRoomCapacity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateVideoRoom(ctx, &domain.VideoRoom{
		ID: "vr-1", HostID: "host", MaxParticipants: 2, Participants: []domain.UserID{"host"},
	}))

	require.NoError(t, s.AddVideoParticipant(ctx, "vr-1", "guest"))

	err := s.AddVideoParticipant(ctx, "vr-1", "overflow")
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeRoomFull, appErr.Code)
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Now().Truncate(time.Millisecond)
	id := domain.MessageID("msg-42")

	encoded := EncodeCursor(ts, id)
	decodedTS, decodedID, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, ts.UnixMilli(), decodedTS.UnixMilli())
	assert.Equal(t, id, decodedID)
}

func TestDecodeCursor_Empty(t *testing.T) {
	ts, id, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
	assert.Empty(t, id)
}

func TestDecodeCursor_Malformed(t *testing.T) {
	_, _, err := DecodeCursor("not-valid-base64!!")
	assert.Error(t, err)
}
