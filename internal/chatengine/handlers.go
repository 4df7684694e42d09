package chatengine

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/collabhub/realtime/internal/apperr"
	"github.com/collabhub/realtime/internal/domain"
	"github.com/collabhub/realtime/internal/logging"
	"github.com/collabhub/realtime/internal/metrics"
	"github.com/collabhub/realtime/internal/store"
	"github.com/collabhub/realtime/internal/wsproto"
)

// handle is the single dispatcher every inbound frame passes through,
// matching the teacher's router method on Room: one place that maps an
// event name to its typed handler, rather than scattering socket.on calls.
func handle(ctx context.Context, s *Session, env wsproto.Envelope) {
	var err error
	switch env.Event {
	case EventRoomCreate:
		err = handleRoomCreate(ctx, s, env)
	case EventRoomJoin:
		err = handleRoomJoin(ctx, s, env)
	case EventRoomJoinByCode:
		err = handleRoomJoinByCode(ctx, s, env)
	case EventRoomLeave:
		err = handleRoomLeave(ctx, s, env)
	case EventRoomGet:
		err = handleRoomGet(ctx, s, env)
	case EventMessageSend:
		err = handleMessageSend(ctx, s, env)
	case EventMessagesGet:
		err = handleMessagesGet(ctx, s, env)
	case wsproto.AuthEvent:
		return // auth frames are ignored; the session authenticated from the upgrade query token
	default:
		s.enqueue(wsproto.NewError(string(apperr.CodeValidation), "unknown event: "+env.Event))
		return
	}
	if err != nil {
		emitError(s, env.Event, err)
	}
}

func emitError(s *Session, event string, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.New(apperr.CodeStoreUnavailable, err.Error())
	}
	metrics.EventsTotal.WithLabelValues("chat", event, "error").Inc()
	logging.Warn(context.Background(), "chat: event failed", zap.String("event", event), zap.String("code", string(appErr.Code)))
	s.enqueue(wsproto.NewError(string(appErr.Code), appErr.Message))
}

func recordSuccess(event string) {
	metrics.EventsTotal.WithLabelValues("chat", event, "ok").Inc()
}

// --- room:create ---

func handleRoomCreate(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p roomCreatePayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed room:create payload")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperr.New(apperr.CodeValidation, "name is required")
	}
	kind := domain.RoomKind(p.Kind)
	switch kind {
	case domain.RoomKindDirect, domain.RoomKindGroup, domain.RoomKindChannel:
	default:
		return apperr.New(apperr.CodeValidation, "invalid kind")
	}
	visibility := domain.Visibility(p.Visibility)
	switch visibility {
	case domain.VisibilityPublic, domain.VisibilityPrivate:
	default:
		return apperr.New(apperr.CodeValidation, "invalid visibility")
	}

	engine := s.engine
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	code := ""
	if visibility == domain.VisibilityPrivate {
		generated, err := generateRoomCode(opCtx, func(c context.Context, candidate string) (bool, error) {
			_, err := engine.store.GetRoomByCode(c, candidate)
			if err == nil {
				return true, nil
			}
			if appErr, ok := apperr.As(err); ok && appErr.Code == apperr.CodeRoomNotFound {
				return false, nil
			}
			return false, err
		})
		if err != nil {
			return err
		}
		code = generated
	}

	participants := []domain.UserID{s.UserID()}
	seen := map[domain.UserID]struct{}{s.UserID(): {}}
	for _, raw := range p.Participants {
		id := domain.UserID(raw)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}

	now := time.Now()
	room := &domain.ChatRoom{
		ID:           domain.RoomID(newID()),
		Name:         p.Name,
		Description:  p.Description,
		Kind:         kind,
		Visibility:   visibility,
		Code:         code,
		Participants: participants,
		CreatedBy:    s.UserID(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := engine.store.CreateRoom(opCtx, room); err != nil {
		return err
	}
	engine.cache.InvalidateRoom(room.ID)

	s.enqueue(wsproto.MustNew(EventRoomCreated, toRoomView(room, false)))
	if visibility == domain.VisibilityPublic {
		// Broadcast to every other connected session, not just this room's
		// subscribers: a brand-new room has no subscribers yet besides the
		// creator, so the room-scoped broadcast would never reach anyone
		// (spec §4.3.4 — every connected session must learn a public room
		// was created, not just future joiners).
		env := wsproto.MustNew(EventRoomCreated, toRoomView(room, true))
		engine.mu.Lock()
		var recipients []*Session
		for _, set := range engine.presence {
			for other := range set {
				if other != s {
					recipients = append(recipients, other)
				}
			}
		}
		engine.mu.Unlock()
		for _, other := range recipients {
			other.enqueue(env)
		}
	}
	engine.subscribe(room.ID, s)
	recordSuccess(EventRoomCreate)
	return nil
}

// --- room:join ---

func handleRoomJoin(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p roomJoinPayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed room:join payload")
	}
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	room, err := s.engine.store.GetRoom(opCtx, domain.RoomID(p.RoomID))
	if err != nil {
		return err
	}
	return joinRoom(opCtx, s, room, p.Code)
}

// --- room:join-by-code ---

func handleRoomJoinByCode(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p roomJoinByCodePayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed room:join-by-code payload")
	}
	code, err := normalizeCode(p.Code)
	if err != nil {
		return err
	}
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	room, storeErr := s.engine.store.GetRoomByCode(opCtx, code)
	if storeErr != nil {
		return storeErr
	}
	if room.Visibility != domain.VisibilityPrivate {
		return apperr.New(apperr.CodeNotPrivateRoom, "code does not resolve to a private room")
	}
	return joinRoom(opCtx, s, room, code)
}

func joinRoom(ctx context.Context, s *Session, room *domain.ChatRoom, suppliedCode string) error {
	engine := s.engine
	userID := s.UserID()

	alreadyMember := room.HasParticipant(userID)
	if !alreadyMember && room.Visibility == domain.VisibilityPrivate {
		code, err := normalizeCode(suppliedCode)
		if err != nil {
			return err
		}
		if code != strings.ToUpper(room.Code) {
			return apperr.New(apperr.CodeInvalidCode, "supplied code does not match room")
		}
	}

	if !alreadyMember {
		if err := engine.store.AddParticipant(ctx, room.ID, userID); err != nil {
			return err
		}
		room.Participants = append(room.Participants, userID)
		engine.cache.InvalidateRoom(room.ID)
	}

	engine.subscribe(room.ID, s)
	if !alreadyMember {
		engine.broadcastExcept(room.ID, s, EventRoomUserJoined, map[string]any{"roomId": string(room.ID), "userId": string(userID)})
	}
	s.enqueue(wsproto.MustNew(EventRoomJoined, toRoomView(room, false)))
	recordSuccess(EventRoomJoin)
	return nil
}

// --- room:leave ---

func handleRoomLeave(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p roomLeavePayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed room:leave payload")
	}
	roomID := domain.RoomID(p.RoomID)
	s.engine.unsubscribe(roomID, s)
	s.engine.broadcastExcept(roomID, s, EventRoomUserLeft, map[string]any{"roomId": p.RoomID, "userId": string(s.UserID())})
	s.enqueue(wsproto.MustNew(EventRoomLeft, map[string]any{"roomId": p.RoomID}))
	recordSuccess(EventRoomLeave)
	return nil
}

// --- room:get ---

func handleRoomGet(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p roomGetPayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed room:get payload")
	}
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	roomID := domain.RoomID(p.RoomID)
	var room *domain.ChatRoom
	if cached, hit := s.engine.cache.GetRoom(roomID); hit {
		room = &cached
	} else {
		fetched, err := s.engine.store.GetRoom(opCtx, roomID)
		if err != nil {
			return err
		}
		room = fetched
		s.engine.cache.PutRoom(*room)
	}

	userID := s.UserID()
	if room.HasParticipant(userID) {
		s.enqueue(wsproto.MustNew(EventRoomDetails, toRoomView(room, false)))
		recordSuccess(EventRoomGet)
		return nil
	}
	if room.Visibility == domain.VisibilityPrivate {
		return apperr.New(apperr.CodeNotParticipant, "room is private")
	}
	s.enqueue(wsproto.MustNew(EventRoomDetails, toRoomView(room, true)))
	recordSuccess(EventRoomGet)
	return nil
}

// --- message:send ---

func handleMessageSend(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p messageSendPayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed message:send payload")
	}
	if strings.TrimSpace(p.Content) == "" {
		return apperr.New(apperr.CodeValidation, "content is required")
	}
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	roomID := domain.RoomID(p.RoomID)
	room, err := s.engine.store.GetRoom(opCtx, roomID)
	if err != nil {
		return err
	}
	userID := s.UserID()
	if !room.HasParticipant(userID) {
		return apperr.New(apperr.CodeNotParticipant, "sender is not a participant of this room")
	}

	kind := domain.MessageKind(p.Kind)
	if kind == "" {
		kind = domain.MessageKindText
	}

	msg := &domain.ChatMessage{
		ID:        domain.MessageID(newID()),
		RoomID:    roomID,
		SenderID:  userID,
		Content:   p.Content,
		Kind:      kind,
		Timestamp: time.Now(),
	}
	if err := s.engine.store.AppendMessage(opCtx, msg); err != nil {
		return err
	}
	if err := s.engine.store.TouchRoom(opCtx, roomID); err != nil {
		// A failure here does not invalidate a message that is already
		// durably stored; the room's updatedAt simply lags.
		logging.Warn(opCtx, "chat: failed to touch room updatedAt after message send", zap.Error(err))
	}
	s.engine.cache.InvalidateRoom(roomID)

	view := toMessageView(msg)
	s.engine.broadcast(roomID, EventMessageNew, view)
	s.engine.publishToBus(opCtx, roomID, EventMessageNew, view, userID)
	recordSuccess(EventMessageSend)
	return nil
}

// --- messages:get ---

func handleMessagesGet(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p messagesGetPayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed messages:get payload")
	}
	limit := 50
	if p.Limit != nil {
		limit = *p.Limit
	}
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	roomID := domain.RoomID(p.RoomID)
	room, err := s.engine.store.GetRoom(opCtx, roomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(s.UserID()) {
		return apperr.New(apperr.CodeNotParticipant, "requester is not a participant of this room")
	}

	page, err := s.engine.store.ListMessages(opCtx, store.MessageQuery{RoomID: roomID, Limit: limit, Cursor: p.Cursor})
	if err != nil {
		return err
	}

	// The store returns newest-first pages; the wire contract is
	// chronological ascending order (spec §4.3.4).
	sort.Slice(page.Messages, func(i, j int) bool {
		return page.Messages[i].Timestamp.Before(page.Messages[j].Timestamp)
	})
	views := make([]messageView, len(page.Messages))
	for i := range page.Messages {
		views[i] = toMessageView(&page.Messages[i])
	}
	s.enqueue(wsproto.MustNew(EventMessagesList, map[string]any{
		"roomId":     p.RoomID,
		"messages":   views,
		"nextCursor": page.NextCursor,
	}))
	recordSuccess(EventMessagesGet)
	return nil
}
