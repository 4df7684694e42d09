package chatengine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collabhub/realtime/internal/domain"
	"github.com/collabhub/realtime/internal/logging"
	"github.com/collabhub/realtime/internal/metrics"
	"github.com/collabhub/realtime/internal/wsproto"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// wsConnection is the minimal set of *websocket.Conn methods Session
// depends on, grounded on the teacher's client.go wsConnection interface:
// easy to fake in tests without a real socket.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Session is the chat engine's Client-equivalent: one subscribed duplex
// connection, its outbound queue, and the user it authenticated as.
type Session struct {
	conn   wsConnection
	send   chan wsproto.Envelope
	engine *Engine

	mu   sync.RWMutex
	user *domain.User
}

func newSession(e *Engine, conn wsConnection, user *domain.User) *Session {
	return &Session{
		conn:   conn,
		send:   make(chan wsproto.Envelope, sendBufferSize),
		engine: e,
		user:   user,
	}
}

// UserID returns the authenticated identity of this session.
func (s *Session) UserID() domain.UserID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.UserID
}

// enqueue queues env for delivery without blocking the caller; a full
// buffer drops the message rather than stall the broadcasting goroutine,
// matching the teacher's sendProto select/default pattern.
func (s *Session) enqueue(env wsproto.Envelope) {
	select {
	case s.send <- env:
	default:
		logging.Warn(context.Background(), "chat: session send buffer full, dropping event",
			zap.String("event", env.Event), zap.String("user_id", string(s.UserID())))
	}
}

// readPump reads client frames and dispatches them to the handler table.
// Runs in its own goroutine; returns (and triggers cleanup) on any read
// error or close frame.
func (s *Session) readPump() {
	ctx := logging.WithUser(context.Background(), string(s.UserID()))
	defer s.disconnect(ctx)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env wsproto.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.enqueue(wsproto.NewError("VALIDATION_ERROR", "malformed frame"))
			continue
		}

		started := time.Now()
		handle(ctx, s, env)
		metrics.EventProcessingDuration.WithLabelValues("chat", env.Event).Observe(time.Since(started).Seconds())
	}
}

// writePump drains the outbound queue onto the socket. Runs in its own
// goroutine; exits when the engine closes send.
func (s *Session) writePump() {
	defer s.conn.Close()
	for env := range s.send {
		data, err := json.Marshal(env)
		if err != nil {
			logging.Error(context.Background(), "chat: failed to marshal outgoing envelope", zap.Error(err))
			continue
		}
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	s.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// disconnect unsubscribes the session from every room it was listening on
// and retires its presence, broadcasting room:user-left/user:offline as
// appropriate. It never mutates a room's persisted participant list.
func (s *Session) disconnect(ctx context.Context) {
	metrics.ActiveDuplexConnections.WithLabelValues("chat").Dec()
	for _, roomID := range s.engine.roomsSubscribedBy(s) {
		s.engine.unsubscribe(roomID, s)
		s.engine.broadcastExcept(roomID, s, EventRoomUserLeft, map[string]any{"roomId": string(roomID), "userId": string(s.UserID())})
	}
	if s.engine.dropPresence(s.UserID(), s) {
		s.engine.broadcastUserOffline(ctx, s.UserID())
	}
	close(s.send)
}
