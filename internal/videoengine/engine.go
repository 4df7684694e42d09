package videoengine

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collabhub/realtime/internal/authn"
	"github.com/collabhub/realtime/internal/domain"
	"github.com/collabhub/realtime/internal/logging"
	"github.com/collabhub/realtime/internal/metrics"
	"github.com/collabhub/realtime/internal/store"
	"github.com/collabhub/realtime/internal/wsproto"
)

// DefaultMaxParticipants is forced on every room created via the public
// create path (spec §4.4.2: "maxParticipants forced to 8").
const DefaultMaxParticipants = 8

// Engine is the video engine's Hub-equivalent: the process-wide registry of
// subscribed sessions per room, grounded on the same teacher
// internal/v1/session.Hub shape the chat engine reuses.
type Engine struct {
	mu          sync.Mutex
	subscribers map[domain.RoomID]map[*Session]struct{}
	byUser      map[domain.RoomID]map[domain.UserID]*Session // for targeted signal routing

	dedupe *dedupeTracker // nil unless Config.SignalDedupeWindow > 0

	store          store.Store
	verifier       authn.Verifier
	allowedOrigins []string
}

// Config bundles Engine construction dependencies.
type Config struct {
	Store          store.Store
	Verifier       authn.Verifier
	AllowedOrigins []string
	// SignalDedupeWindow enables the optional duplicate-signal suppression
	// profile (spec §4.4.3); zero (the default) disables it.
	SignalDedupeWindow time.Duration
}

// New builds an Engine.
func New(cfg Config) *Engine {
	e := &Engine{
		subscribers:    make(map[domain.RoomID]map[*Session]struct{}),
		byUser:         make(map[domain.RoomID]map[domain.UserID]*Session),
		store:          cfg.Store,
		verifier:       cfg.Verifier,
		allowedOrigins: cfg.AllowedOrigins,
	}
	if cfg.SignalDedupeWindow > 0 {
		e.dedupe = newDedupeTracker(cfg.SignalDedupeWindow)
	}
	return e
}

var upgradeWriteBufferPool = &sync.Pool{
	New: func() any { return make([]byte, 4096) },
}

// ServeWs authenticates the handshake (accepting an anonymous admission per
// spec §4.4.1, unlike the chat engine) and upgrades the connection.
func (e *Engine) ServeWs(c *gin.Context) {
	var user *domain.User
	cred := authn.HandshakeCredential{QueryToken: c.Query("token")}
	if verified, appErr := authn.FromHandshake(e.verifier, cred); appErr == nil {
		user = verified
	} else {
		user = authn.Anonymous(newSocketID())
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return authn.OriginAllowed(r.Header.Get("Origin"), e.allowedOrigins)
		},
		WriteBufferPool: upgradeWriteBufferPool,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "video: failed to upgrade connection", zap.Error(err))
		return
	}

	session := newSession(e, conn, user)
	metrics.ActiveDuplexConnections.WithLabelValues("video").Inc()
	go session.writePump()
	go session.readPump()
}

// subscribe records a session as a room's signaling listener and indexes it
// by user for targeted routing.
func (e *Engine) subscribe(roomID domain.RoomID, s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.subscribers[roomID]
	if !ok {
		set = make(map[*Session]struct{})
		e.subscribers[roomID] = set
		metrics.ActiveRooms.WithLabelValues("video").Inc()
	}
	set[s] = struct{}{}
	byUser, ok := e.byUser[roomID]
	if !ok {
		byUser = make(map[domain.UserID]*Session)
		e.byUser[roomID] = byUser
	}
	byUser[s.UserID()] = s
	metrics.RoomParticipants.WithLabelValues("video", string(roomID)).Set(float64(len(set)))
}

// unsubscribe drops a session from a room's listener set.
func (e *Engine) unsubscribe(roomID domain.RoomID, s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unsubscribeLocked(roomID, s)
}

func (e *Engine) unsubscribeLocked(roomID domain.RoomID, s *Session) {
	set, ok := e.subscribers[roomID]
	if ok {
		delete(set, s)
		if len(set) == 0 {
			delete(e.subscribers, roomID)
			metrics.ActiveRooms.WithLabelValues("video").Dec()
		} else {
			metrics.RoomParticipants.WithLabelValues("video", string(roomID)).Set(float64(len(set)))
		}
	}
	if byUser, ok := e.byUser[roomID]; ok {
		if byUser[s.UserID()] == s {
			delete(byUser, s.UserID())
		}
		if len(byUser) == 0 {
			delete(e.byUser, roomID)
		}
	}
}

// unsubscribeAll clears every listener of a room at once, used by
// video:room:end.
func (e *Engine) unsubscribeAll(roomID domain.RoomID) []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, hadSubscribers := e.subscribers[roomID]
	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	delete(e.subscribers, roomID)
	delete(e.byUser, roomID)
	if hadSubscribers {
		metrics.ActiveRooms.WithLabelValues("video").Dec()
	}
	return out
}

// roomsSubscribedBy returns every room a session currently listens on.
func (e *Engine) roomsSubscribedBy(s *Session) []domain.RoomID {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.RoomID
	for roomID, set := range e.subscribers {
		if _, ok := set[s]; ok {
			out = append(out, roomID)
		}
	}
	return out
}

// sessionFor resolves a room's subscriber by userId, used for both
// presence-sensitive operations and signal routing.
func (e *Engine) sessionFor(roomID domain.RoomID, userID domain.UserID) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byUser, ok := e.byUser[roomID]
	if !ok {
		return nil, false
	}
	s, ok := byUser[userID]
	return s, ok
}

// broadcast fans an envelope out to every subscriber of roomID.
func (e *Engine) broadcast(roomID domain.RoomID, event string, payload any) {
	env, err := wsproto.New(event, payload)
	if err != nil {
		logging.Error(context.Background(), "video: failed to encode broadcast envelope", zap.Error(err))
		return
	}
	e.mu.Lock()
	recipients := make([]*Session, 0, len(e.subscribers[roomID]))
	for s := range e.subscribers[roomID] {
		recipients = append(recipients, s)
	}
	e.mu.Unlock()
	for _, s := range recipients {
		s.enqueue(env)
	}
}

// broadcastExcept is broadcast, skipping the acting session.
func (e *Engine) broadcastExcept(roomID domain.RoomID, except *Session, event string, payload any) {
	env, err := wsproto.New(event, payload)
	if err != nil {
		logging.Error(context.Background(), "video: failed to encode broadcast envelope", zap.Error(err))
		return
	}
	e.mu.Lock()
	recipients := make([]*Session, 0, len(e.subscribers[roomID]))
	for s := range e.subscribers[roomID] {
		if s == except {
			continue
		}
		recipients = append(recipients, s)
	}
	e.mu.Unlock()
	for _, s := range recipients {
		s.enqueue(env)
	}
}

// withTimeout bounds a Store call issued from the event loop.
func withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 5*time.Second)
}
