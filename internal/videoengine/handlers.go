package videoengine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/collabhub/realtime/internal/apperr"
	"github.com/collabhub/realtime/internal/domain"
	"github.com/collabhub/realtime/internal/logging"
	"github.com/collabhub/realtime/internal/metrics"
	"github.com/collabhub/realtime/internal/wsproto"
)

// handle is the single dispatcher every inbound video frame passes through,
// matching the chat engine's handle/handlers.go shape.
func handle(ctx context.Context, s *Session, env wsproto.Envelope) {
	var err error
	switch env.Event {
	case EventRoomCreate:
		err = handleRoomCreate(ctx, s, env)
	case EventRoomJoin:
		err = handleRoomJoin(ctx, s, env)
	case EventRoomLeave:
		err = handleRoomLeaveEvent(ctx, s, env)
	case EventRoomEnd:
		err = handleRoomEnd(ctx, s, env)
	case EventSignal:
		err = handleSignal(ctx, s, env)
	case EventToggleAudio:
		err = handleToggle(ctx, s, env, EventAudioToggled, func(p *domain.VideoParticipant, enabled bool) { p.AudioEnabled = enabled })
	case EventToggleVideo:
		err = handleToggle(ctx, s, env, EventVideoToggled, func(p *domain.VideoParticipant, enabled bool) { p.VideoEnabled = enabled })
	case EventToggleScreen:
		err = handleToggleScreen(ctx, s, env)
	case EventScreenStart:
		err = handleScreenStartStop(ctx, s, env, true)
	case EventScreenStop:
		err = handleScreenStartStop(ctx, s, env, false)
	case EventStreamReady:
		err = handleStreamReady(ctx, s, env)
	case wsproto.AuthEvent:
		return
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
	metrics.EventsTotal.WithLabelValues("video", event, "error").Inc()
	logging.Warn(context.Background(), "video: event failed", zap.String("event", event), zap.String("code", string(appErr.Code)))
	s.enqueue(wsproto.NewError(string(appErr.Code), appErr.Message))
}

func recordSuccess(event string) {
	metrics.EventsTotal.WithLabelValues("video", event, "ok").Inc()
}

// --- video:room:create ---

func handleRoomCreate(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p roomCreatePayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed video:room:create payload")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperr.New(apperr.CodeValidation, "name is required")
	}

	engine := s.engine
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	code, err := generateRoomCode(opCtx, func(c context.Context, candidate string) (bool, error) {
		_, err := engine.store.GetVideoRoomByCode(c, candidate)
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

	now := time.Now()
	room := &domain.VideoRoom{
		ID: domain.RoomID(newID()), Name: p.Name, Description: p.Description, HostID: s.UserID(),
		Participants: []domain.UserID{s.UserID()}, MaxParticipants: DefaultMaxParticipants,
		// Video rooms stay public-only on the create path today; Visibility
		// is carried on the domain type for forward compatibility (see the
		// expanded spec's Open Question decision on private video rooms).
		Visibility: domain.VisibilityPublic, Code: code, CreatedAt: now, UpdatedAt: now,
	}

	if p.WithChat {
		chatCode, codeErr := generateRoomCode(opCtx, func(c context.Context, candidate string) (bool, error) {
			_, err := engine.store.GetRoomByCode(c, candidate)
			if err == nil {
				return true, nil
			}
			if appErr, ok := apperr.As(err); ok && appErr.Code == apperr.CodeRoomNotFound {
				return false, nil
			}
			return false, err
		})
		if codeErr == nil {
			chatRoom := &domain.ChatRoom{
				ID: domain.RoomID(newID()), Name: p.Name, Kind: domain.RoomKindGroup, Visibility: domain.VisibilityPrivate,
				Code: chatCode, Participants: []domain.UserID{s.UserID()}, CreatedBy: s.UserID(),
				CreatedAt: now, UpdatedAt: now, VideoRoomID: room.ID,
			}
			if createErr := engine.store.CreateRoom(opCtx, chatRoom); createErr == nil {
				room.ChatRoomID = chatRoom.ID
				room.ChatRoomCode = chatRoom.Code
			} else {
				logging.Warn(opCtx, "video: failed to create linked chat room", zap.Error(createErr))
			}
		}
	}

	if err := engine.store.CreateVideoRoom(opCtx, room); err != nil {
		return err
	}
	if err := engine.store.PutVideoParticipant(opCtx, &domain.VideoParticipant{
		RoomID: room.ID, UserID: s.UserID(), SocketID: s.SocketID(), DisplayName: s.DisplayName(),
		AudioEnabled: true, VideoEnabled: true, JoinedAt: now,
	}); err != nil {
		return err
	}

	engine.subscribe(room.ID, s)
	s.enqueue(wsproto.MustNew(EventRoomCreated, toRoomView(room)))
	recordSuccess(EventRoomCreate)
	return nil
}

// --- video:room:join ---

func handleRoomJoin(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p roomJoinPayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed video:room:join payload")
	}
	engine := s.engine
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	var room *domain.VideoRoom
	var err error
	if p.Code != "" {
		room, err = engine.store.GetVideoRoomByCode(opCtx, strings.ToUpper(strings.TrimSpace(p.Code)))
	} else if p.RoomID != "" {
		room, err = engine.store.GetVideoRoom(opCtx, domain.RoomID(p.RoomID))
	} else {
		return apperr.New(apperr.CodeValidation, "roomId or code is required")
	}
	if err != nil {
		return err
	}

	userID := s.UserID()
	if !room.HasParticipant(userID) {
		if err := engine.store.AddVideoParticipant(opCtx, room.ID, userID); err != nil {
			return err
		}
		room.Participants = append(room.Participants, userID)
	}
	participant := &domain.VideoParticipant{
		RoomID: room.ID, UserID: userID, SocketID: s.SocketID(), DisplayName: s.DisplayName(),
		AudioEnabled: true, VideoEnabled: true, JoinedAt: time.Now(),
	}
	if err := engine.store.PutVideoParticipant(opCtx, participant); err != nil {
		return err
	}

	if room.ChatRoomID != "" {
		if err := engine.store.AddParticipant(opCtx, room.ChatRoomID, userID); err != nil {
			logging.Warn(opCtx, "video: best-effort chat room add failed", zap.Error(err))
		}
	}

	snapshot := engine.snapshotParticipants(opCtx, room)

	engine.subscribe(room.ID, s)
	engine.broadcastExcept(room.ID, s, EventUserJoined, toParticipantView(participant))
	s.enqueue(wsproto.MustNew(EventRoomJoined, map[string]any{
		"room":         toRoomView(room),
		"participants": snapshot,
	}))
	recordSuccess(EventRoomJoin)
	return nil
}

// --- video:room:leave ---

func handleRoomLeaveEvent(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p roomLeavePayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed video:room:leave payload")
	}
	leaveRoom(ctx, s, domain.RoomID(p.RoomID))
	recordSuccess(EventRoomLeave)
	return nil
}

// leaveRoom is idempotent: a room or participant record that's already gone
// is treated as already-left rather than an error (spec §4.4.2 "Idempotent").
func leaveRoom(ctx context.Context, s *Session, roomID domain.RoomID) {
	engine := s.engine
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	userID := s.UserID()
	_ = engine.store.RemoveVideoParticipant(opCtx, roomID, userID)
	_ = engine.store.DeleteVideoParticipantState(opCtx, roomID, userID)
	engine.unsubscribe(roomID, s)
	engine.broadcastExcept(roomID, s, EventUserLeft, map[string]any{"roomId": string(roomID), "userId": string(userID)})
	s.enqueue(wsproto.MustNew(EventRoomLeft, map[string]any{"roomId": string(roomID)}))
}

// --- video:room:end ---

func handleRoomEnd(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p roomEndPayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed video:room:end payload")
	}
	engine := s.engine
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	roomID := domain.RoomID(p.RoomID)
	room, err := engine.store.GetVideoRoom(opCtx, roomID)
	if err != nil {
		// A second video:room:end from the same or another caller after the
		// room is already gone is a silent no-op (spec §8 round-trip case).
		if appErr, ok := apperr.As(err); ok && appErr.Code == apperr.CodeRoomNotFound {
			return nil
		}
		return err
	}
	if room.HostID != s.UserID() {
		return apperr.New(apperr.CodeUnauthorized, "only the host may end this room")
	}

	for _, participantID := range room.Participants {
		_ = engine.store.DeleteVideoParticipantState(opCtx, roomID, participantID)
	}
	if err := engine.store.DeleteVideoRoom(opCtx, roomID); err != nil {
		return err
	}

	engine.broadcast(roomID, EventRoomEnded, map[string]any{"roomId": string(roomID)})
	engine.unsubscribeAll(roomID)
	recordSuccess(EventRoomEnd)
	return nil
}

// --- video:signal ---

func handleSignal(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p signalPayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed video:signal payload")
	}
	switch p.Kind {
	case SignalOffer, SignalAnswer, SignalICECandidate:
	default:
		return apperr.New(apperr.CodeInvalidSignalType, "unknown signalKind: "+p.Kind)
	}
	if len(p.Payload) == 0 {
		return apperr.New(apperr.CodeMissingSignalData, "payload is required")
	}
	if err := validateSignalStructure(p.Kind, p.Payload); err != nil {
		return err
	}
	if (p.Kind == SignalOffer || p.Kind == SignalAnswer) && p.TargetUserID == "" {
		return apperr.New(apperr.CodeMustIncludeTarget, "offer/answer signals must include targetUserId")
	}

	engine := s.engine
	roomID := domain.RoomID(p.RoomID)
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	room, err := engine.store.GetVideoRoom(opCtx, roomID)
	if err != nil {
		return err
	}
	senderID := s.UserID()
	if !room.HasParticipant(senderID) {
		return apperr.New(apperr.CodeNotInRoom, "sender is not a participant of this room")
	}

	senderState, err := engine.store.GetVideoParticipant(opCtx, roomID, senderID)
	if err != nil {
		return err
	}
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["audioEnabled"] = senderState.AudioEnabled
	metadata["videoEnabled"] = senderState.VideoEnabled
	metadata["screenSharing"] = senderState.ScreenSharing
	streamType := "camera"
	if senderState.ScreenSharing {
		streamType = "screen"
	}
	metadata["streamType"] = streamType

	if engine.dedupe != nil && engine.dedupe.isDuplicate(roomID, p.Kind, senderID, domain.UserID(p.TargetUserID), p.Payload) {
		return nil
	}

	outbound := map[string]any{
		"signalKind":   p.Kind,
		"roomId":       p.RoomID,
		"fromUserId":   string(senderID),
		"payload":      json.RawMessage(p.Payload),
		"metadata":     metadata,
	}

	if p.TargetUserID != "" {
		target, ok := engine.sessionFor(roomID, domain.UserID(p.TargetUserID))
		if !ok {
			return apperr.New(apperr.CodeTargetUserNotFound, "target user is not connected to this room")
		}
		target.enqueue(wsproto.MustNew(EventSignal, outbound))
	} else {
		engine.broadcastExcept(roomID, s, EventSignal, outbound)
	}
	recordSuccess(EventSignal)
	return nil
}

// validateSignalStructure applies the structural (not cryptographic)
// payload checks from spec §4.4.3.
func validateSignalStructure(kind string, raw json.RawMessage) error {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return apperr.New(apperr.CodeInvalidSignalStructure, "payload must be a JSON object")
	}
	switch kind {
	case SignalOffer, SignalAnswer:
		sdp, ok := fields["sdp"].(string)
		if !ok || sdp == "" {
			return apperr.New(apperr.CodeInvalidSignalStructure, "payload.sdp must be a non-empty string")
		}
	case SignalICECandidate:
		candidate, ok := fields["candidate"].(string)
		if !ok || candidate == "" {
			return apperr.New(apperr.CodeInvalidSignalStructure, "payload.candidate must be a non-empty string")
		}
		if v, present := fields["sdpMLineIndex"]; present && v != nil {
			if _, ok := v.(float64); !ok {
				return apperr.New(apperr.CodeInvalidSignalStructure, "payload.sdpMLineIndex must be an integer")
			}
		}
		if v, present := fields["sdpMid"]; present && v != nil {
			if _, ok := v.(string); !ok {
				return apperr.New(apperr.CodeInvalidSignalStructure, "payload.sdpMid must be a string")
			}
		}
	}
	return nil
}

// --- media state toggles ---

func handleToggle(ctx context.Context, s *Session, env wsproto.Envelope, broadcastEvent string, apply func(*domain.VideoParticipant, bool)) error {
	var p togglePayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed toggle payload")
	}
	engine := s.engine
	roomID := domain.RoomID(p.RoomID)
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	userID := s.UserID()
	participant, err := engine.store.GetVideoParticipant(opCtx, roomID, userID)
	if err != nil {
		return err
	}
	apply(participant, p.Enabled)
	if err := engine.store.PutVideoParticipant(opCtx, participant); err != nil {
		return err
	}

	engine.broadcast(roomID, broadcastEvent, map[string]any{"roomId": p.RoomID, "userId": string(userID), "enabled": p.Enabled})
	recordSuccess(env.Event)
	return nil
}

func handleToggleScreen(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p togglePayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed video:toggle-screen payload")
	}
	engine := s.engine
	roomID := domain.RoomID(p.RoomID)
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	userID := s.UserID()
	participant, err := engine.store.GetVideoParticipant(opCtx, roomID, userID)
	if err != nil {
		return err
	}
	participant.ScreenSharing = p.Enabled
	if err := engine.store.PutVideoParticipant(opCtx, participant); err != nil {
		return err
	}

	engine.broadcast(roomID, EventScreenToggled, map[string]any{"roomId": p.RoomID, "userId": string(userID), "enabled": p.Enabled})
	if p.Enabled {
		// Peers need to initiate a fresh peer connection for the new
		// screen-share stream (spec §4.4.4).
		engine.broadcastExcept(roomID, s, EventScreenNegotiationNeed, map[string]any{"roomId": p.RoomID, "userId": string(userID)})
	}
	recordSuccess(EventToggleScreen)
	return nil
}

func handleScreenStartStop(ctx context.Context, s *Session, env wsproto.Envelope, starting bool) error {
	var p screenStartStopPayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed screen start/stop payload")
	}
	engine := s.engine
	roomID := domain.RoomID(p.RoomID)
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	userID := s.UserID()
	participant, err := engine.store.GetVideoParticipant(opCtx, roomID, userID)
	if err != nil {
		return err
	}
	participant.ScreenSharing = starting
	if err := engine.store.PutVideoParticipant(opCtx, participant); err != nil {
		return err
	}

	event := EventScreenStopped
	wireEvent := EventScreenStop
	if starting {
		event = EventScreenStarted
		wireEvent = EventScreenStart
	}
	engine.broadcast(roomID, event, map[string]any{"roomId": p.RoomID, "userId": string(userID)})
	if starting {
		engine.broadcastExcept(roomID, s, EventScreenNegotiationNeed, map[string]any{"roomId": p.RoomID, "userId": string(userID)})
	}
	recordSuccess(wireEvent)
	return nil
}

// --- video:stream:ready ---

func handleStreamReady(ctx context.Context, s *Session, env wsproto.Envelope) error {
	var p streamReadyPayload
	if err := env.Decode(&p); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed video:stream:ready payload")
	}
	engine := s.engine
	roomID := domain.RoomID(p.RoomID)
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	userID := s.UserID()
	streamID := p.StreamID
	if streamID == "" {
		streamID = newID()
	}
	streamType := p.StreamType
	if p.ScreenSharing != nil {
		participant, err := engine.store.GetVideoParticipant(opCtx, roomID, userID)
		if err == nil {
			participant.ScreenSharing = *p.ScreenSharing
			_ = engine.store.PutVideoParticipant(opCtx, participant)
		}
		if streamType == "" && *p.ScreenSharing {
			streamType = "screen"
		}
	}
	if streamType == "" {
		streamType = "camera"
	}

	engine.broadcast(roomID, EventStreamReady, map[string]any{
		"roomId": p.RoomID, "userId": string(userID), "streamId": streamID, "streamType": streamType,
	})
	recordSuccess(EventStreamReady)
	return nil
}

// snapshotParticipants gathers the current media-state record for every
// participant of room, skipping any that cannot be read (best-effort, not
// an error condition for the join response as a whole).
func (e *Engine) snapshotParticipants(ctx context.Context, room *domain.VideoRoom) []participantView {
	out := make([]participantView, 0, len(room.Participants))
	for _, userID := range room.Participants {
		p, err := e.store.GetVideoParticipant(ctx, room.ID, userID)
		if err != nil {
			continue
		}
		out = append(out, toParticipantView(p))
	}
	return out
}
