package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/collabhub/realtime/internal/apperr"
	"github.com/collabhub/realtime/internal/domain"
	"github.com/collabhub/realtime/internal/metrics"
)

// Collection names, matching the persisted layout in the expanded
// specification's external interfaces section.
const (
	collRooms        = "rooms"
	collMessages     = "messages"
	collVideoRooms   = "videoRooms"
	collVideoParties = "videoParticipants"
)

// FirestoreStore is the production Store, backed by Firestore's native
// atomic array operations, server timestamps and indexed queries.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an already-constructed Firestore client (built
// against a real project or the FIRESTORE_EMULATOR_HOST emulator).
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	_, err := s.client.Collection(collRooms).Limit(1).Documents(ctx).Next()
	if err != nil && err != iterator.Done {
		return err
	}
	return nil
}

// instrument times a single Store call and feeds the shared Prometheus
// histogram, regardless of which concrete operation ran.
func instrument(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return err
}

// roomDoc mirrors domain.ChatRoom with Firestore struct tags and a
// server-assigned update timestamp.
type roomDoc struct {
	Name         string            `firestore:"name"`
	Description  string            `firestore:"description"`
	Kind         string            `firestore:"kind"`
	Visibility   string            `firestore:"visibility"`
	Code         string            `firestore:"code"`
	Participants []string          `firestore:"participants"`
	CreatedBy    string            `firestore:"createdBy"`
	CreatedAt    time.Time         `firestore:"createdAt"`
	UpdatedAt    time.Time         `firestore:"updatedAt,serverTimestamp"`
	VideoRoomID  string            `firestore:"videoRoomId,omitempty"`
}

func toRoomDoc(r *domain.ChatRoom) roomDoc {
	participants := make([]string, len(r.Participants))
	for i, p := range r.Participants {
		participants[i] = string(p)
	}
	return roomDoc{
		Name: r.Name, Description: r.Description, Kind: string(r.Kind),
		Visibility: string(r.Visibility), Code: r.Code, Participants: participants,
		CreatedBy: string(r.CreatedBy), CreatedAt: r.CreatedAt, VideoRoomID: string(r.VideoRoomID),
	}
}

func fromRoomDoc(id string, d roomDoc) *domain.ChatRoom {
	participants := make([]domain.UserID, len(d.Participants))
	for i, p := range d.Participants {
		participants[i] = domain.UserID(p)
	}
	return &domain.ChatRoom{
		ID: domain.RoomID(id), Name: d.Name, Description: d.Description,
		Kind: domain.RoomKind(d.Kind), Visibility: domain.Visibility(d.Visibility),
		Code: d.Code, Participants: participants, CreatedBy: domain.UserID(d.CreatedBy),
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt, VideoRoomID: domain.RoomID(d.VideoRoomID),
	}
}

func (s *FirestoreStore) CreateRoom(ctx context.Context, room *domain.ChatRoom) error {
	return withRetry(ctx, "create_room", func(ctx context.Context) error {
		return instrument("create_room", func() error {
			_, err := s.client.Collection(collRooms).Doc(string(room.ID)).Set(ctx, toRoomDoc(room))
			return err
		})
	})
}

func (s *FirestoreStore) GetRoom(ctx context.Context, id domain.RoomID) (*domain.ChatRoom, error) {
	var out *domain.ChatRoom
	err := withRetry(ctx, "get_room", func(ctx context.Context) error {
		return instrument("get_room", func() error {
			snap, err := s.client.Collection(collRooms).Doc(string(id)).Get(ctx)
			if isNotFound(err) {
				return apperr.New(apperr.CodeRoomNotFound, "chat room not found")
			}
			if err != nil {
				return err
			}
			var d roomDoc
			if err := snap.DataTo(&d); err != nil {
				return err
			}
			out = fromRoomDoc(snap.Ref.ID, d)
			return nil
		})
	})
	return out, err
}

func (s *FirestoreStore) GetRoomByCode(ctx context.Context, code string) (*domain.ChatRoom, error) {
	var out *domain.ChatRoom
	err := withRetry(ctx, "get_room_by_code", func(ctx context.Context) error {
		return instrument("get_room_by_code", func() error {
			iter := s.client.Collection(collRooms).Where("code", "==", code).Limit(1).Documents(ctx)
			defer iter.Stop()
			snap, err := iter.Next()
			if err == iterator.Done {
				return apperr.New(apperr.CodeRoomNotFound, "chat room not found for code")
			}
			if err != nil {
				return err
			}
			var d roomDoc
			if err := snap.DataTo(&d); err != nil {
				return err
			}
			out = fromRoomDoc(snap.Ref.ID, d)
			return nil
		})
	})
	return out, err
}

func (s *FirestoreStore) ListRooms(ctx context.Context, q RoomQuery) ([]domain.ChatRoom, error) {
	var out []domain.ChatRoom
	err := withRetry(ctx, "list_rooms", func(ctx context.Context) error {
		return instrument("list_rooms", func() error {
			query := s.client.Collection(collRooms).Where("visibility", "==", string(q.Visibility))
			if q.ParticipantID != "" {
				query = query.Where("participants", "array-contains", string(q.ParticipantID))
			}
			query = query.OrderBy("updatedAt", firestore.Desc)
			if q.Limit > 0 {
				query = query.Limit(q.Limit)
			}
			iter := query.Documents(ctx)
			defer iter.Stop()
			for {
				snap, err := iter.Next()
				if err == iterator.Done {
					break
				}
				if err != nil {
					return err
				}
				var d roomDoc
				if err := snap.DataTo(&d); err != nil {
					return err
				}
				out = append(out, *fromRoomDoc(snap.Ref.ID, d))
			}
			return nil
		})
	})
	return out, err
}

func (s *FirestoreStore) AddParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	return withRetry(ctx, "add_participant", func(ctx context.Context) error {
		return instrument("add_participant", func() error {
			_, err := s.client.Collection(collRooms).Doc(string(roomID)).Update(ctx, []firestore.Update{
				{Path: "participants", Value: firestore.ArrayUnion(string(userID))},
				{Path: "updatedAt", Value: firestore.ServerTimestamp},
			})
			if isNotFound(err) {
				return apperr.New(apperr.CodeRoomNotFound, "chat room not found")
			}
			return err
		})
	})
}

func (s *FirestoreStore) TouchRoom(ctx context.Context, roomID domain.RoomID) error {
	return withRetry(ctx, "touch_room", func(ctx context.Context) error {
		return instrument("touch_room", func() error {
			_, err := s.client.Collection(collRooms).Doc(string(roomID)).Update(ctx, []firestore.Update{
				{Path: "updatedAt", Value: firestore.ServerTimestamp},
			})
			if isNotFound(err) {
				return apperr.New(apperr.CodeRoomNotFound, "chat room not found")
			}
			return err
		})
	})
}

func (s *FirestoreStore) RemoveParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	return withRetry(ctx, "remove_participant", func(ctx context.Context) error {
		return instrument("remove_participant", func() error {
			_, err := s.client.Collection(collRooms).Doc(string(roomID)).Update(ctx, []firestore.Update{
				{Path: "participants", Value: firestore.ArrayRemove(string(userID))},
				{Path: "updatedAt", Value: firestore.ServerTimestamp},
			})
			if isNotFound(err) {
				return apperr.New(apperr.CodeRoomNotFound, "chat room not found")
			}
			return err
		})
	})
}

type messageDoc struct {
	RoomID       string         `firestore:"roomId"`
	SenderID     string         `firestore:"senderId"`
	SenderName   string         `firestore:"senderName"`
	SenderAvatar string         `firestore:"senderAvatar,omitempty"`
	Content      string         `firestore:"content"`
	Kind         string         `firestore:"kind"`
	Timestamp    time.Time      `firestore:"timestamp,serverTimestamp"`
	Metadata     map[string]any `firestore:"metadata,omitempty"`
}

func (s *FirestoreStore) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	return withRetry(ctx, "append_message", func(ctx context.Context) error {
		return instrument("append_message", func() error {
			doc := messageDoc{
				RoomID: string(msg.RoomID), SenderID: string(msg.SenderID), SenderName: msg.SenderName,
				SenderAvatar: msg.SenderAvatar, Content: msg.Content, Kind: string(msg.Kind), Metadata: msg.Metadata,
			}
			_, err := s.client.Collection(collMessages).Doc(string(msg.ID)).Set(ctx, doc)
			return err
		})
	})
}

func (s *FirestoreStore) ListMessages(ctx context.Context, q MessageQuery) (MessagePage, error) {
	var page MessagePage
	err := withRetry(ctx, "list_messages", func(ctx context.Context) error {
		return instrument("list_messages", func() error {
			// Limit is honored literally: callers resolve an omitted limit to
			// a default before calling in; 0 here means "return nothing"
			// (spec boundary case), not "use the default".
			limit := q.Limit
			if limit < 0 {
				limit = 0
			}
			if limit == 0 {
				page.Messages = nil
				return nil
			}
			query := s.client.Collection(collMessages).
				Where("roomId", "==", string(q.RoomID)).
				OrderBy("timestamp", firestore.Desc).
				Limit(limit + 1)

			if q.Cursor != "" {
				ts, id, err := DecodeCursor(q.Cursor)
				if err != nil {
					return apperr.New(apperr.CodeValidation, "malformed pagination cursor")
				}
				query = query.StartAfter(ts, string(id))
			}

			iter := query.Documents(ctx)
			defer iter.Stop()
			var msgs []domain.ChatMessage
			for {
				snap, err := iter.Next()
				if err == iterator.Done {
					break
				}
				if err != nil {
					return err
				}
				var d messageDoc
				if err := snap.DataTo(&d); err != nil {
					return err
				}
				msgs = append(msgs, domain.ChatMessage{
					ID: domain.MessageID(snap.Ref.ID), RoomID: domain.RoomID(d.RoomID),
					SenderID: domain.UserID(d.SenderID), SenderName: d.SenderName, SenderAvatar: d.SenderAvatar,
					Content: d.Content, Kind: domain.MessageKind(d.Kind), Timestamp: d.Timestamp, Metadata: d.Metadata,
				})
			}
			if len(msgs) > limit {
				last := msgs[limit-1]
				page.NextCursor = EncodeCursor(last.Timestamp, last.ID)
				msgs = msgs[:limit]
			}
			page.Messages = msgs
			return nil
		})
	})
	return page, err
}

type videoRoomDoc struct {
	Name            string    `firestore:"name"`
	Description     string    `firestore:"description"`
	HostID          string    `firestore:"hostId"`
	Participants    []string  `firestore:"participants"`
	MaxParticipants int       `firestore:"maxParticipants"`
	Visibility      string    `firestore:"visibility"`
	Code            string    `firestore:"code"`
	ChatRoomID      string    `firestore:"chatRoomId,omitempty"`
	ChatRoomCode    string    `firestore:"chatRoomCode,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt,serverTimestamp"`
}

func toVideoRoomDoc(r *domain.VideoRoom) videoRoomDoc {
	participants := make([]string, len(r.Participants))
	for i, p := range r.Participants {
		participants[i] = string(p)
	}
	return videoRoomDoc{
		Name: r.Name, Description: r.Description, HostID: string(r.HostID), Participants: participants,
		MaxParticipants: r.MaxParticipants, Visibility: string(r.Visibility), Code: r.Code,
		ChatRoomID: string(r.ChatRoomID), ChatRoomCode: r.ChatRoomCode, CreatedAt: r.CreatedAt,
	}
}

func fromVideoRoomDoc(id string, d videoRoomDoc) *domain.VideoRoom {
	participants := make([]domain.UserID, len(d.Participants))
	for i, p := range d.Participants {
		participants[i] = domain.UserID(p)
	}
	return &domain.VideoRoom{
		ID: domain.RoomID(id), Name: d.Name, Description: d.Description, HostID: domain.UserID(d.HostID),
		Participants: participants, MaxParticipants: d.MaxParticipants, Visibility: domain.Visibility(d.Visibility),
		Code: d.Code, ChatRoomID: domain.RoomID(d.ChatRoomID), ChatRoomCode: d.ChatRoomCode,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func (s *FirestoreStore) CreateVideoRoom(ctx context.Context, room *domain.VideoRoom) error {
	return withRetry(ctx, "create_video_room", func(ctx context.Context) error {
		return instrument("create_video_room", func() error {
			_, err := s.client.Collection(collVideoRooms).Doc(string(room.ID)).Set(ctx, toVideoRoomDoc(room))
			return err
		})
	})
}

func (s *FirestoreStore) GetVideoRoom(ctx context.Context, id domain.RoomID) (*domain.VideoRoom, error) {
	var out *domain.VideoRoom
	err := withRetry(ctx, "get_video_room", func(ctx context.Context) error {
		return instrument("get_video_room", func() error {
			snap, err := s.client.Collection(collVideoRooms).Doc(string(id)).Get(ctx)
			if isNotFound(err) {
				return apperr.New(apperr.CodeRoomNotFound, "video room not found")
			}
			if err != nil {
				return err
			}
			var d videoRoomDoc
			if err := snap.DataTo(&d); err != nil {
				return err
			}
			out = fromVideoRoomDoc(snap.Ref.ID, d)
			return nil
		})
	})
	return out, err
}

func (s *FirestoreStore) GetVideoRoomByCode(ctx context.Context, code string) (*domain.VideoRoom, error) {
	var out *domain.VideoRoom
	err := withRetry(ctx, "get_video_room_by_code", func(ctx context.Context) error {
		return instrument("get_video_room_by_code", func() error {
			iter := s.client.Collection(collVideoRooms).Where("code", "==", code).Limit(1).Documents(ctx)
			defer iter.Stop()
			snap, err := iter.Next()
			if err == iterator.Done {
				return apperr.New(apperr.CodeRoomNotFound, "video room not found for code")
			}
			if err != nil {
				return err
			}
			var d videoRoomDoc
			if err := snap.DataTo(&d); err != nil {
				return err
			}
			out = fromVideoRoomDoc(snap.Ref.ID, d)
			return nil
		})
	})
	return out, err
}

// AddVideoParticipant runs inside a Firestore transaction so the capacity
// check and the join are atomic, matching the video engine's documented
// compare-and-set join semantics.
func (s *FirestoreStore) AddVideoParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	return withRetry(ctx, "add_video_participant", func(ctx context.Context) error {
		return instrument("add_video_participant", func() error {
			ref := s.client.Collection(collVideoRooms).Doc(string(roomID))
			return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
				snap, err := tx.Get(ref)
				if isNotFound(err) {
					return apperr.New(apperr.CodeRoomNotFound, "video room not found")
				}
				if err != nil {
					return err
				}
				var d videoRoomDoc
				if err := snap.DataTo(&d); err != nil {
					return err
				}
				for _, p := range d.Participants {
					if p == string(userID) {
						return nil // already a member
					}
				}
				if d.MaxParticipants > 0 && len(d.Participants) >= d.MaxParticipants {
					return apperr.New(apperr.CodeRoomFull, "video room is at capacity")
				}
				return tx.Update(ref, []firestore.Update{
					{Path: "participants", Value: firestore.ArrayUnion(string(userID))},
					{Path: "updatedAt", Value: firestore.ServerTimestamp},
				})
			})
		})
	})
}

func (s *FirestoreStore) RemoveVideoParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	return withRetry(ctx, "remove_video_participant", func(ctx context.Context) error {
		return instrument("remove_video_participant", func() error {
			_, err := s.client.Collection(collVideoRooms).Doc(string(roomID)).Update(ctx, []firestore.Update{
				{Path: "participants", Value: firestore.ArrayRemove(string(userID))},
				{Path: "updatedAt", Value: firestore.ServerTimestamp},
			})
			if isNotFound(err) {
				return nil // already gone, RemoveVideoParticipant is idempotent
			}
			return err
		})
	})
}

func (s *FirestoreStore) DeleteVideoRoom(ctx context.Context, id domain.RoomID) error {
	return withRetry(ctx, "delete_video_room", func(ctx context.Context) error {
		return instrument("delete_video_room", func() error {
			_, err := s.client.Collection(collVideoRooms).Doc(string(id)).Delete(ctx)
			return err
		})
	})
}

type videoParticipantDoc struct {
	RoomID        string    `firestore:"roomId"`
	UserID        string    `firestore:"userId"`
	SocketID      string    `firestore:"socketId"`
	DisplayName   string    `firestore:"displayName"`
	Email         string    `firestore:"email,omitempty"`
	AudioEnabled  bool      `firestore:"audioEnabled"`
	VideoEnabled  bool      `firestore:"videoEnabled"`
	ScreenSharing bool      `firestore:"screenSharing"`
	JoinedAt      time.Time `firestore:"joinedAt"`
}

func (s *FirestoreStore) PutVideoParticipant(ctx context.Context, p *domain.VideoParticipant) error {
	return withRetry(ctx, "put_video_participant", func(ctx context.Context) error {
		return instrument("put_video_participant", func() error {
			doc := videoParticipantDoc{
				RoomID: string(p.RoomID), UserID: string(p.UserID), SocketID: p.SocketID,
				DisplayName: p.DisplayName, Email: p.Email, AudioEnabled: p.AudioEnabled,
				VideoEnabled: p.VideoEnabled, ScreenSharing: p.ScreenSharing, JoinedAt: p.JoinedAt,
			}
			_, err := s.client.Collection(collVideoParties).Doc(p.Key()).Set(ctx, doc)
			return err
		})
	})
}

func (s *FirestoreStore) GetVideoParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (*domain.VideoParticipant, error) {
	var out *domain.VideoParticipant
	key := (&domain.VideoParticipant{RoomID: roomID, UserID: userID}).Key()
	err := withRetry(ctx, "get_video_participant", func(ctx context.Context) error {
		return instrument("get_video_participant", func() error {
			snap, err := s.client.Collection(collVideoParties).Doc(key).Get(ctx)
			if isNotFound(err) {
				return apperr.New(apperr.CodeTargetUserNotFound, "video participant state not found")
			}
			if err != nil {
				return err
			}
			var d videoParticipantDoc
			if err := snap.DataTo(&d); err != nil {
				return err
			}
			out = &domain.VideoParticipant{
				RoomID: domain.RoomID(d.RoomID), UserID: domain.UserID(d.UserID), SocketID: d.SocketID,
				DisplayName: d.DisplayName, Email: d.Email, AudioEnabled: d.AudioEnabled,
				VideoEnabled: d.VideoEnabled, ScreenSharing: d.ScreenSharing, JoinedAt: d.JoinedAt,
			}
			return nil
		})
	})
	return out, err
}

func (s *FirestoreStore) DeleteVideoParticipantState(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	key := (&domain.VideoParticipant{RoomID: roomID, UserID: userID}).Key()
	return withRetry(ctx, "delete_video_participant_state", func(ctx context.Context) error {
		return instrument("delete_video_participant_state", func() error {
			_, err := s.client.Collection(collVideoParties).Doc(key).Delete(ctx)
			return err
		})
	})
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
