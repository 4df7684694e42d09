package videoengine

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
// depends on, grounded on the teacher's client.go wsConnection interface.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Session is one subscribed video-signaling connection: its outbound queue,
// the user it authenticated (or synthesized anonymously) as, and a
// connection-scoped socketId distinct from the user's identity so the same
// user can hold multiple simultaneous sessions with independent routing.
type Session struct {
	conn     wsConnection
	send     chan wsproto.Envelope
	engine   *Engine
	socketID string

	mu   sync.RWMutex
	user *domain.User
}

func newSession(e *Engine, conn wsConnection, user *domain.User) *Session {
	return &Session{
		conn:     conn,
		send:     make(chan wsproto.Envelope, sendBufferSize),
		engine:   e,
		socketID: newSocketID(),
		user:     user,
	}
}

// UserID returns the authenticated (or anonymous) identity of this session.
func (s *Session) UserID() domain.UserID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.UserID
}

// DisplayName returns the session's display name for participant snapshots.
func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.DisplayName
}

// SocketID returns this connection's routing identifier.
func (s *Session) SocketID() string {
	return s.socketID
}

// enqueue queues env for delivery without blocking the caller; a full
// buffer drops the message rather than stall the broadcasting goroutine.
func (s *Session) enqueue(env wsproto.Envelope) {
	select {
	case s.send <- env:
	default:
		logging.Warn(context.Background(), "video: session send buffer full, dropping event",
			zap.String("event", env.Event), zap.String("user_id", string(s.UserID())))
	}
}

// readPump reads client frames and dispatches them to the handler table.
// Signals from this session are processed and enqueued to their targets one
// at a time, in the order they arrive on this socket, which is what gives
// the per-(sender, target) ordering guarantee (spec §5).
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
		metrics.EventProcessingDuration.WithLabelValues("video", env.Event).Observe(time.Since(started).Seconds())
	}
}

// writePump drains the outbound queue onto the socket.
func (s *Session) writePump() {
	defer s.conn.Close()
	for env := range s.send {
		data, err := json.Marshal(env)
		if err != nil {
			logging.Error(context.Background(), "video: failed to marshal outgoing envelope", zap.Error(err))
			continue
		}
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	s.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// disconnect leaves every video room this session was subscribed to,
// mirroring handleRoomLeave's bookkeeping, then retires the send queue.
func (s *Session) disconnect(ctx context.Context) {
	metrics.ActiveDuplexConnections.WithLabelValues("video").Dec()
	for _, roomID := range s.engine.roomsSubscribedBy(s) {
		leaveRoom(ctx, s, roomID)
	}
	close(s.send)
}
