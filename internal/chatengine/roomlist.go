package chatengine

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/collabhub/realtime/internal/domain"
	"github.com/collabhub/realtime/internal/logging"
	"github.com/collabhub/realtime/internal/store"
	"github.com/collabhub/realtime/internal/wsproto"
)

const publicRoomListCacheKey = "public"

// sendRoomList composes and sends the authenticated user's visible room set
// (spec §4.3.3): every public room, plus every private room the user is a
// participant of, deduplicated by id and sorted by updatedAt descending.
// The public portion is cached; the private portion never is.
func sendRoomList(ctx context.Context, s *Session) {
	engine := s.engine
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	public, ok := engine.cache.GetList(publicRoomListCacheKey)
	if !ok {
		fetched, err := engine.store.ListRooms(opCtx, store.RoomQuery{Visibility: domain.VisibilityPublic})
		if err != nil {
			logging.Warn(ctx, "chat: failed to list public rooms", zap.Error(err))
			s.enqueue(wsproto.NewError("STORE_UNAVAILABLE", "failed to load room list"))
			return
		}
		public = fetched
		engine.cache.PutList(publicRoomListCacheKey, public)
	}

	private, err := engine.store.ListRooms(opCtx, store.RoomQuery{
		Visibility:    domain.VisibilityPrivate,
		ParticipantID: s.UserID(),
	})
	if err != nil {
		logging.Warn(ctx, "chat: failed to list private rooms", zap.Error(err))
		private = nil
	}

	merged := make(map[domain.RoomID]domain.ChatRoom, len(public)+len(private))
	for _, r := range public {
		merged[r.ID] = r
	}
	for _, r := range private {
		merged[r.ID] = r
	}
	rooms := make([]domain.ChatRoom, 0, len(merged))
	for _, r := range merged {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt) })

	views := make([]roomView, len(rooms))
	for i, r := range rooms {
		views[i] = toRoomView(&r, !r.HasParticipant(s.UserID()))
	}
	s.enqueue(wsproto.MustNew(EventRoomsList, map[string]any{"rooms": views}))
}
