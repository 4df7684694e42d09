package videoengine

import (
	"sync"
	"time"

	"github.com/collabhub/realtime/internal/domain"
)

// dedupeTracker implements the optional duplicate-signal suppression
// profile (spec §4.4.3): within a window, an identical (kind, sender,
// target, payload-prefix) signal in the same room is dropped. Disabled by
// default (see Engine.dedupe == nil); offers/answers must not rely on it.
type dedupeTracker struct {
	window time.Duration

	mu   sync.Mutex
	seen map[domain.RoomID]map[string]time.Time
}

func newDedupeTracker(window time.Duration) *dedupeTracker {
	return &dedupeTracker{window: window, seen: make(map[domain.RoomID]map[string]time.Time)}
}

const dedupePayloadPrefixLen = 32

// isDuplicate reports whether this signal was already observed in the room
// within the window, recording it for the next call either way.
func (d *dedupeTracker) isDuplicate(roomID domain.RoomID, kind string, sender, target domain.UserID, payload []byte) bool {
	prefix := payload
	if len(prefix) > dedupePayloadPrefixLen {
		prefix = prefix[:dedupePayloadPrefixLen]
	}
	key := kind + "|" + string(sender) + "|" + string(target) + "|" + string(prefix)

	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	room, ok := d.seen[roomID]
	if !ok {
		room = make(map[string]time.Time)
		d.seen[roomID] = room
	}
	if last, ok := room[key]; ok && now.Sub(last) < d.window {
		room[key] = now
		return true
	}
	room[key] = now
	return false
}
