package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/collabhub/realtime/internal/apperr"
	"github.com/collabhub/realtime/internal/domain"
)

// MemoryStore is a process-local Store, used when FIRESTORE_PROJECT_ID and
// FIRESTORE_EMULATOR_HOST are both unset (single-instance dev mode). It
// reuses the same mutex-protected-map pattern as the engines' own session
// registries, rather than an external dependency for data that never
// leaves the process.
type MemoryStore struct {
	mu sync.RWMutex

	rooms        map[domain.RoomID]*domain.ChatRoom
	roomsByCode  map[string]domain.RoomID
	messages     map[domain.RoomID][]domain.ChatMessage
	videoRooms   map[domain.RoomID]*domain.VideoRoom
	videoByCode  map[string]domain.RoomID
	participants map[string]*domain.VideoParticipant
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:        make(map[domain.RoomID]*domain.ChatRoom),
		roomsByCode:  make(map[string]domain.RoomID),
		messages:     make(map[domain.RoomID][]domain.ChatMessage),
		videoRooms:   make(map[domain.RoomID]*domain.VideoRoom),
		videoByCode:  make(map[string]domain.RoomID),
		participants: make(map[string]*domain.VideoParticipant),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) CreateRoom(ctx context.Context, room *domain.ChatRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *room
	s.rooms[room.ID] = &cp
	if room.Code != "" {
		s.roomsByCode[room.Code] = room.ID
	}
	return nil
}

func (s *MemoryStore) GetRoom(ctx context.Context, id domain.RoomID) (*domain.ChatRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, apperr.New(apperr.CodeRoomNotFound, "chat room not found")
	}
	cp := *room
	return &cp, nil
}

func (s *MemoryStore) GetRoomByCode(ctx context.Context, code string) (*domain.ChatRoom, error) {
	s.mu.RLock()
	id, ok := s.roomsByCode[code]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.CodeRoomNotFound, "chat room not found for code")
	}
	return s.GetRoom(ctx, id)
}

func (s *MemoryStore) ListRooms(ctx context.Context, q RoomQuery) ([]domain.ChatRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ChatRoom
	for _, r := range s.rooms {
		if r.Visibility != q.Visibility {
			continue
		}
		if q.ParticipantID != "" && !r.HasParticipant(q.ParticipantID) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) AddParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return apperr.New(apperr.CodeRoomNotFound, "chat room not found")
	}
	if !room.HasParticipant(userID) {
		room.Participants = append(room.Participants, userID)
		room.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) TouchRoom(ctx context.Context, roomID domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return apperr.New(apperr.CodeRoomNotFound, "chat room not found")
	}
	room.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) RemoveParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return apperr.New(apperr.CodeRoomNotFound, "chat room not found")
	}
	for i, p := range room.Participants {
		if p == userID {
			room.Participants = append(room.Participants[:i], room.Participants[i+1:]...)
			room.UpdatedAt = time.Now()
			break
		}
	}
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return apperr.New(apperr.CodeRoomNotFound, "chat room not found")
	}
	cp := *msg
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], cp)
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, q MessageQuery) (MessagePage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[q.RoomID]
	sorted := make([]domain.ChatMessage, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })

	cursorTS, cursorID, err := DecodeCursor(q.Cursor)
	if err != nil {
		return MessagePage{}, apperr.New(apperr.CodeValidation, "malformed pagination cursor")
	}

	start := 0
	if q.Cursor != "" {
		for i, m := range sorted {
			if m.Timestamp.Before(cursorTS) || (m.Timestamp.Equal(cursorTS) && m.ID < cursorID) {
				start = i
				break
			}
			start = i + 1
		}
	}

	// Limit is honored literally: callers resolve an omitted limit to a
	// default before calling in; 0 here means "return nothing" (spec
	// boundary case), not "use the default".
	limit := q.Limit
	if limit < 0 {
		limit = 0
	}
	if start > len(sorted) {
		start = len(sorted)
	}
	end := start + limit
	if end > len(sorted) {
		end = len(sorted)
	}

	page := sorted[start:end]
	var next string
	if end < len(sorted) && len(page) > 0 {
		last := page[len(page)-1]
		next = EncodeCursor(last.Timestamp, last.ID)
	}
	return MessagePage{Messages: page, NextCursor: next}, nil
}

func (s *MemoryStore) CreateVideoRoom(ctx context.Context, room *domain.VideoRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *room
	s.videoRooms[room.ID] = &cp
	if room.Code != "" {
		s.videoByCode[room.Code] = room.ID
	}
	return nil
}

func (s *MemoryStore) GetVideoRoom(ctx context.Context, id domain.RoomID) (*domain.VideoRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.videoRooms[id]
	if !ok {
		return nil, apperr.New(apperr.CodeRoomNotFound, "video room not found")
	}
	cp := *room
	return &cp, nil
}

func (s *MemoryStore) GetVideoRoomByCode(ctx context.Context, code string) (*domain.VideoRoom, error) {
	s.mu.RLock()
	id, ok := s.videoByCode[code]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.CodeRoomNotFound, "video room not found for code")
	}
	return s.GetVideoRoom(ctx, id)
}

func (s *MemoryStore) AddVideoParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.videoRooms[roomID]
	if !ok {
		return apperr.New(apperr.CodeRoomNotFound, "video room not found")
	}
	if room.HasParticipant(userID) {
		return nil
	}
	if room.MaxParticipants > 0 && len(room.Participants) >= room.MaxParticipants {
		return apperr.New(apperr.CodeRoomFull, "video room is at capacity")
	}
	room.Participants = append(room.Participants, userID)
	room.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) RemoveVideoParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.videoRooms[roomID]
	if !ok {
		return apperr.New(apperr.CodeRoomNotFound, "video room not found")
	}
	for i, p := range room.Participants {
		if p == userID {
			room.Participants = append(room.Participants[:i], room.Participants[i+1:]...)
			room.UpdatedAt = time.Now()
			break
		}
	}
	return nil
}

func (s *MemoryStore) DeleteVideoRoom(ctx context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.videoRooms[id]
	if !ok {
		return nil
	}
	delete(s.videoRooms, id)
	delete(s.videoByCode, room.Code)
	for _, p := range room.Participants {
		delete(s.participants, (&domain.VideoParticipant{RoomID: id, UserID: p}).Key())
	}
	return nil
}

func (s *MemoryStore) PutVideoParticipant(ctx context.Context, p *domain.VideoParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.participants[p.Key()] = &cp
	return nil
}

func (s *MemoryStore) GetVideoParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (*domain.VideoParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := (&domain.VideoParticipant{RoomID: roomID, UserID: userID}).Key()
	p, ok := s.participants[key]
	if !ok {
		return nil, apperr.New(apperr.CodeTargetUserNotFound, "video participant state not found")
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) DeleteVideoParticipantState(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := (&domain.VideoParticipant{RoomID: roomID, UserID: userID}).Key()
	delete(s.participants, key)
	return nil
}
