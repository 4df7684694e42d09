// Command video runs the video signaling engine: room/participant
// lifecycle, WebRTC offer/answer/ICE relay and screen-share state (spec §4.4).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/collabhub/realtime/internal/bootstrap"
	"github.com/collabhub/realtime/internal/config"
	"github.com/collabhub/realtime/internal/health"
	"github.com/collabhub/realtime/internal/logging"
	"github.com/collabhub/realtime/internal/tracing"
	"github.com/collabhub/realtime/internal/videoengine"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// no .env file is fine outside local development
	}

	cfg, err := config.Load(os.Getenv, "video")
	if err != nil {
		panic(err)
	}
	if err := logging.Initialize("video", cfg.Env == "development"); err != nil {
		panic(err)
	}
	logger := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); addr != "" {
		tp, err := tracing.InitTracer(ctx, "video", addr)
		if err != nil {
			logger.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	st, closeStore, err := bootstrap.BuildStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to build store", zap.Error(err))
	}
	defer closeStore()

	verifier, err := bootstrap.BuildVerifier(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to build verifier", zap.Error(err))
	}

	_, redisClient, err := bootstrap.BuildBus(cfg)
	if err != nil {
		logger.Fatal("failed to build bus", zap.Error(err))
	}

	rl, err := bootstrap.BuildRateLimiter(cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to build rate limiter", zap.Error(err))
	}

	var dedupeWindow time.Duration
	if os.Getenv("VIDEO_SIGNAL_DEDUPE_WINDOW_MS") != "" {
		dedupeWindow = 250 * time.Millisecond
	}

	engine := videoengine.New(videoengine.Config{
		Store:              st,
		Verifier:           verifier,
		AllowedOrigins:     cfg.CORSOrigins,
		SignalDedupeWindow: dedupeWindow,
	})

	router := gin.Default()
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.CORSOrigins
	corsCfg.AllowCredentials = true
	router.Use(cors.New(corsCfg))
	router.Use(otelgin.Middleware("video"))
	router.Use(rl.GlobalMiddleware())

	healthHandler := health.NewHandler(st, nil)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", engine.ServeWs)

	rooms := router.Group("/rooms")
	rooms.Use(rl.MiddlewareForEndpoint("rooms"))
	{
		rooms.GET("/:roomId", engine.GetRoomHTTP)
		rooms.GET("/:roomId/participants", engine.ListParticipantsHTTP)
		rooms.GET("/:roomId/participants/:userId/screen-sharing", engine.ScreenSharingStatusHTTP)
	}

	srv := &http.Server{Addr: ":" + cfg.VideoPort, Handler: router}

	go func() {
		logger.Info("video engine starting", zap.String("port", cfg.VideoPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("video server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down video engine")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
