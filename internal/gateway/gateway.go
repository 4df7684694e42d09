// Package gateway implements the edge gateway (spec §4.1): path-based
// request routing, upgrade-aware duplex proxying, and per-backend circuit
// breaking. It is the single externally reachable endpoint; it performs no
// auth enforcement, caching or retries of its own (spec's explicit
// Non-goals for this component).
//
// Grounded on the teacher's cmd/v1/session/main.go router assembly (gin,
// CORS, Recovery, graceful shutdown) and on internal/bus/redis.go's
// gobreaker wiring, generalized from one dependency (Redis) to three HTTP
// upstreams.
package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/collabhub/realtime/internal/middleware"
)

// Config names the three upstreams the gateway routes to.
type Config struct {
	AuthServiceURL  string
	ChatServiceURL  string
	VideoServiceURL string
}

// Gateway holds one backend per upstream.
type Gateway struct {
	auth  *backend
	chat  *backend
	video *backend
}

// New builds a Gateway from Config.
func New(cfg Config) (*Gateway, error) {
	auth, err := newBackend("auth", cfg.AuthServiceURL)
	if err != nil {
		return nil, err
	}
	chat, err := newBackend("chat", cfg.ChatServiceURL)
	if err != nil {
		return nil, err
	}
	video, err := newBackend("video", cfg.VideoServiceURL)
	if err != nil {
		return nil, err
	}
	return &Gateway{auth: auth, chat: chat, video: video}, nil
}

// Router builds the gin.Engine implementing the routing table in spec §4.1.
func (g *Gateway) Router(allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = allowedOrigins
	corsCfg.AllowCredentials = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))
	router.Use(middleware.CorrelationID())

	router.GET("/health", g.handleHealth)
	router.GET("/api-docs", handleDocsIndex)
	router.GET("/api-docs/:service", handleDocsService)

	router.Any("/api/auth/*rest", g.proxyTo(g.auth, "/api/auth", "/auth"))
	router.Any("/api/chat/*rest", g.proxyTo(g.chat, "/api/chat", ""))
	router.Any("/api/video/*rest", g.proxyTo(g.video, "/api/video", ""))

	// Fallback rule (spec §4.1): "an upgrade with only a default duplex path
	// and no identifying path maps to Chat."
	router.NoRoute(func(c *gin.Context) {
		if isUpgrade(c.Request) {
			g.chat.ServeDuplex(c.Writer, c.Request)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	})

	return router
}

// proxyTo builds the handler for one routing-table row: rewrite the
// request's path, then dispatch to the upgrade or request/response path
// depending on what the client asked for.
func (g *Gateway) proxyTo(b *backend, stripPrefix, prependPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rewritePath(c.Request, stripPrefix, prependPrefix)
		if isUpgrade(c.Request) {
			b.ServeDuplex(c.Writer, c.Request)
			return
		}
		b.ServeHTTP(c.Writer, c.Request)
	}
}

// rewritePath applies the routing table's "strip X, prepend Y" rule in
// place (spec §4.1's table column 4).
func rewritePath(r *http.Request, stripPrefix, prependPrefix string) {
	path := strings.TrimPrefix(r.URL.Path, stripPrefix)
	if prependPrefix != "" {
		path = prependPrefix + path
	}
	if path == "" {
		path = "/"
	}
	r.URL.Path = path
}

func (g *Gateway) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "gateway",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"backends": gin.H{
			"auth":  g.auth.target.String(),
			"chat":  g.chat.target.String(),
			"video": g.video.target.String(),
		},
	})
}
