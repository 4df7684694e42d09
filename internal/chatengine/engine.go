package chatengine

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collabhub/realtime/internal/authn"
	"github.com/collabhub/realtime/internal/bus"
	"github.com/collabhub/realtime/internal/cache"
	"github.com/collabhub/realtime/internal/domain"
	"github.com/collabhub/realtime/internal/logging"
	"github.com/collabhub/realtime/internal/metrics"
	"github.com/collabhub/realtime/internal/store"
	"github.com/collabhub/realtime/internal/wsproto"
)

// Engine is the chat engine's Hub-equivalent: the process-wide registry of
// subscribed sessions and per-room membership, grounded on the teacher's
// internal/v1/session.Hub (mutex-protected maps, no per-room goroutines).
type Engine struct {
	mu          sync.Mutex
	subscribers map[domain.RoomID]map[*Session]struct{}
	presence    map[domain.UserID]map[*Session]struct{}
	busRelays   map[domain.RoomID]context.CancelFunc // one Redis subscription per room with local subscribers

	store    store.Store
	cache    *cache.RoomCache
	verifier authn.Verifier
	bus      *bus.Service // optional; nil runs single-instance, no cross-pod fanout

	allowedOrigins []string
}

// Config bundles Engine construction dependencies.
type Config struct {
	Store          store.Store
	Cache          *cache.RoomCache
	Verifier       authn.Verifier
	Bus            *bus.Service // optional
	AllowedOrigins []string
}

// New builds an Engine.
func New(cfg Config) *Engine {
	c := cfg.Cache
	if c == nil {
		c = cache.NewRoomCache(cache.DefaultTTL)
	}
	return &Engine{
		subscribers:    make(map[domain.RoomID]map[*Session]struct{}),
		presence:       make(map[domain.UserID]map[*Session]struct{}),
		busRelays:      make(map[domain.RoomID]context.CancelFunc),
		store:          cfg.Store,
		cache:          c,
		verifier:       cfg.Verifier,
		bus:            cfg.Bus,
		allowedOrigins: cfg.AllowedOrigins,
	}
}

var upgradeWriteBufferPool = &sync.Pool{
	New: func() any { return make([]byte, 4096) },
}

// ServeWs authenticates the handshake and upgrades the connection, matching
// the teacher's Hub.ServeWs flow: token-then-upgrade, never the reverse.
func (e *Engine) ServeWs(c *gin.Context) {
	cred := authn.HandshakeCredential{QueryToken: c.Query("token")}
	user, appErr := authn.FromHandshake(e.verifier, cred)
	if appErr != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": appErr.Code, "message": appErr.Message})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return authn.OriginAllowed(r.Header.Get("Origin"), e.allowedOrigins)
		},
		WriteBufferPool: upgradeWriteBufferPool,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "chat: failed to upgrade connection", zap.Error(err))
		return
	}

	session := newSession(e, conn, user)
	metrics.ActiveDuplexConnections.WithLabelValues("chat").Inc()
	go session.writePump()

	ctx := logging.WithUser(c.Request.Context(), string(user.UserID))
	if e.trackPresence(user.UserID, session) {
		e.broadcastUserOnline(ctx, user.UserID)
	}
	sendRoomList(ctx, session)

	go session.readPump()
}

// subscribe records a session as listening on roomID, for fanout. The first
// local subscriber of a room also opens this room's Redis relay (spec §5
// cross-instance fan-out), so events published by other pods reach sessions
// connected here.
func (e *Engine) subscribe(roomID domain.RoomID, s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.subscribers[roomID]
	if !ok {
		set = make(map[*Session]struct{})
		e.subscribers[roomID] = set
		metrics.ActiveRooms.WithLabelValues("chat").Inc()
		e.startBusRelayLocked(roomID)
	}
	set[s] = struct{}{}
	metrics.RoomParticipants.WithLabelValues("chat", string(roomID)).Set(float64(len(set)))
}

// unsubscribe drops a session from a room's listener set. It never touches
// the persisted participants list (spec §4.3.4: leave unsubscribes only).
// When the last local subscriber leaves, this room's Redis relay is stopped.
func (e *Engine) unsubscribe(roomID domain.RoomID, s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.subscribers[roomID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(e.subscribers, roomID)
		metrics.ActiveRooms.WithLabelValues("chat").Dec()
		e.stopBusRelayLocked(roomID)
		return
	}
	metrics.RoomParticipants.WithLabelValues("chat", string(roomID)).Set(float64(len(set)))
}

// startBusRelayLocked opens this room's Redis subscription, re-broadcasting
// every message another pod publishes to this pod's local subscribers. Must
// be called with e.mu held. No-op in single-instance mode (e.bus == nil).
func (e *Engine) startBusRelayLocked(roomID domain.RoomID) {
	if e.bus == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.busRelays[roomID] = cancel
	e.bus.Subscribe(ctx, string(roomID), nil, func(p bus.PubSubPayload) {
		e.relayFromBus(roomID, p)
	})
}

// stopBusRelayLocked closes this room's Redis subscription. Must be called
// with e.mu held.
func (e *Engine) stopBusRelayLocked(roomID domain.RoomID) {
	cancel, ok := e.busRelays[roomID]
	if !ok {
		return
	}
	cancel()
	delete(e.busRelays, roomID)
}

// relayFromBus delivers a message received from another pod to this pod's
// local subscribers of roomID. Every pod subscribed to a room's channel,
// including the one that published the message, receives it back from
// Redis; a message is skipped here if its sender is currently subscribed
// locally, since that means this pod is the one that published it and
// already delivered it via the local broadcast in publishToBus's caller.
func (e *Engine) relayFromBus(roomID domain.RoomID, p bus.PubSubPayload) {
	e.mu.Lock()
	originatedHere := false
	for s := range e.subscribers[roomID] {
		if string(s.UserID()) == p.SenderID {
			originatedHere = true
			break
		}
	}
	e.mu.Unlock()
	if originatedHere {
		return
	}
	e.broadcast(roomID, p.Event, p.Payload)
}

// trackPresence registers sess under userID and reports whether this is the
// user's first concurrent session (caller should broadcast user:online).
func (e *Engine) trackPresence(userID domain.UserID, s *Session) (firstSession bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.presence[userID]
	if !ok {
		set = make(map[*Session]struct{})
		e.presence[userID] = set
	}
	firstSession = len(set) == 0
	set[s] = struct{}{}
	return firstSession
}

// dropPresence unregisters sess from userID and reports whether this was the
// user's last concurrent session (caller should broadcast user:offline).
func (e *Engine) dropPresence(userID domain.UserID, s *Session) (lastSession bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.presence[userID]
	if !ok {
		return true
	}
	delete(set, s)
	if len(set) == 0 {
		delete(e.presence, userID)
		return true
	}
	return false
}

// roomsSubscribedBy returns every room a session is currently a listener of.
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

// broadcast fans an envelope out to every session subscribed to roomID,
// including the sender. Non-blocking per session, matching the teacher's
// sendProto select/default pattern.
func (e *Engine) broadcast(roomID domain.RoomID, event string, payload any) {
	env, err := wsproto.New(event, payload)
	if err != nil {
		logging.Error(context.Background(), "chat: failed to encode broadcast envelope", zap.Error(err))
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

// broadcastExcept is broadcast, skipping one session (the actor whose own
// action triggered the event — that session gets its own direct reply).
func (e *Engine) broadcastExcept(roomID domain.RoomID, except *Session, event string, payload any) {
	env, err := wsproto.New(event, payload)
	if err != nil {
		logging.Error(context.Background(), "chat: failed to encode broadcast envelope", zap.Error(err))
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

// broadcastUserOnline notifies every connected session that userID just
// attached its first concurrent session (spec §4.3.1).
func (e *Engine) broadcastUserOnline(ctx context.Context, userID domain.UserID) {
	e.broadcastToAllExceptUser(userID, EventUserOnline, map[string]any{"userId": string(userID)})
}

// broadcastUserOffline notifies every connected session that userID's last
// concurrent session just disconnected.
func (e *Engine) broadcastUserOffline(ctx context.Context, userID domain.UserID) {
	e.broadcastToAllExceptUser(userID, EventUserOffline, map[string]any{"userId": string(userID)})
}

// broadcastToAllExceptUser fans a presence event out to every currently
// connected session other than the subject user's own sessions.
func (e *Engine) broadcastToAllExceptUser(subject domain.UserID, event string, payload any) {
	env, err := wsproto.New(event, payload)
	if err != nil {
		logging.Error(context.Background(), "chat: failed to encode presence envelope", zap.Error(err))
		return
	}
	e.mu.Lock()
	recipients := make([]*Session, 0)
	for userID, set := range e.presence {
		if userID == subject {
			continue
		}
		for s := range set {
			recipients = append(recipients, s)
		}
	}
	e.mu.Unlock()
	for _, s := range recipients {
		s.enqueue(env)
	}
}

// publishToBus replicates an event to other pods via the optional Redis
// bus, for deployments running more than one chat instance. A publish
// failure is logged and otherwise ignored: the local broadcast already
// reached every session on this instance.
func (e *Engine) publishToBus(ctx context.Context, roomID domain.RoomID, event string, payload any, senderID domain.UserID) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, string(roomID), event, payload, string(senderID), nil); err != nil {
		logging.Warn(ctx, "chat: bus publish failed", zap.String("event", event), zap.Error(err))
	}
}

// withTimeout bounds a Store call issued from the event loop.
func withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 5*time.Second)
}
