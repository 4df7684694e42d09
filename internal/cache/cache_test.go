package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/collabhub/realtime/internal/domain"
)

func TestRoomCache_ListRoundTrip(t *testing.T) {
	c := NewRoomCache(50 * time.Millisecond)

	_, ok := c.GetList("public")
	assert.False(t, ok)

	rooms := []domain.ChatRoom{{ID: "r1"}, {ID: "r2"}}
	c.PutList("public", rooms)

	got, ok := c.GetList("public")
	assert.True(t, ok)
	assert.Equal(t, rooms, got)
}

func TestRoomCache_ExpiresAfterTTL(t *testing.T) {
	c := NewRoomCache(10 * time.Millisecond)
	c.PutList("public", []domain.ChatRoom{{ID: "r1"}})

	time.Sleep(20 * time.Millisecond)

	_, ok := c.GetList("public")
	assert.False(t, ok)
}

func TestRoomCache_InvalidateRoomClearsListAndRoom(t *testing.T) {
	c := NewRoomCache(time.Minute)
	c.PutList("public", []domain.ChatRoom{{ID: "r1"}})
	c.PutRoom(domain.ChatRoom{ID: "r1", Name: "general"})

	c.InvalidateRoom("r1")

	_, ok := c.GetRoom("r1")
	assert.False(t, ok)
	_, ok = c.GetList("public")
	assert.False(t, ok)
}
