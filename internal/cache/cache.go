// Package cache provides the short-TTL read cache sitting in front of the
// Store for the chat engine's public room list and single-room lookups,
// per the expanded specification's caching design.
//
// Grounded on the teacher's mutex-protected in-memory registry idiom
// (internal/v1/session/hub.go): a single RWMutex guarding plain maps,
// locks held only across in-memory work.
package cache

import (
	"sync"
	"time"

	"github.com/collabhub/realtime/internal/domain"
)

// DefaultTTL is the cache lifetime for both the public room list and
// single-room entries.
const DefaultTTL = 30 * time.Second

type roomListEntry struct {
	rooms     []domain.ChatRoom
	expiresAt time.Time
}

type roomEntry struct {
	room      domain.ChatRoom
	expiresAt time.Time
}

// RoomCache caches the public room list and individual room reads. Any
// mutation that touches a room's participants, or any message insert for
// that room, invalidates both the list cache and that room's entry.
type RoomCache struct {
	mu   sync.RWMutex
	list map[string]roomListEntry // keyed by a query fingerprint
	room map[domain.RoomID]roomEntry
	life time.Duration
}

// NewRoomCache builds a RoomCache with the given TTL (DefaultTTL if zero).
func NewRoomCache(ttl time.Duration) *RoomCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RoomCache{
		list: make(map[string]roomListEntry),
		room: make(map[domain.RoomID]roomEntry),
		life: ttl,
	}
}

// GetList returns a cached room list for the given query fingerprint, or
// ok=false if absent or expired.
func (c *RoomCache) GetList(fingerprint string) ([]domain.ChatRoom, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.list[fingerprint]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.rooms, true
}

// PutList caches a room list under a query fingerprint.
func (c *RoomCache) PutList(fingerprint string, rooms []domain.ChatRoom) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list[fingerprint] = roomListEntry{rooms: rooms, expiresAt: time.Now().Add(c.life)}
}

// GetRoom returns a cached single room, or ok=false if absent or expired.
func (c *RoomCache) GetRoom(id domain.RoomID) (domain.ChatRoom, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.room[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return domain.ChatRoom{}, false
	}
	return entry.room, true
}

// PutRoom caches a single room read.
func (c *RoomCache) PutRoom(room domain.ChatRoom) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room[room.ID] = roomEntry{room: room, expiresAt: time.Now().Add(c.life)}
}

// InvalidateRoom drops any cached entry for a room, and clears the whole
// list cache (a participant or message change can affect ordering or
// membership filters the list cache can't selectively invalidate).
func (c *RoomCache) InvalidateRoom(id domain.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.room, id)
	c.list = make(map[string]roomListEntry)
}
