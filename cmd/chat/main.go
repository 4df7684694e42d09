// Command chat runs the chat realtime engine: duplex room messaging,
// presence and the read-through room cache (spec §4.3).
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
	"github.com/collabhub/realtime/internal/cache"
	"github.com/collabhub/realtime/internal/chatengine"
	"github.com/collabhub/realtime/internal/config"
	"github.com/collabhub/realtime/internal/health"
	"github.com/collabhub/realtime/internal/logging"
	"github.com/collabhub/realtime/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// no .env file is fine outside local development
	}

	cfg, err := config.Load(os.Getenv, "chat")
	if err != nil {
		panic(err)
	}
	if err := logging.Initialize("chat", cfg.Env == "development"); err != nil {
		panic(err)
	}
	logger := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); addr != "" {
		tp, err := tracing.InitTracer(ctx, "chat", addr)
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

	busService, redisClient, err := bootstrap.BuildBus(cfg)
	if err != nil {
		logger.Fatal("failed to build bus", zap.Error(err))
	}
	if busService != nil {
		defer busService.Close()
	}

	rl, err := bootstrap.BuildRateLimiter(cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to build rate limiter", zap.Error(err))
	}

	engine := chatengine.New(chatengine.Config{
		Store:          st,
		Cache:          cache.NewRoomCache(cache.DefaultTTL),
		Verifier:       verifier,
		Bus:            busService,
		AllowedOrigins: cfg.CORSOrigins,
	})

	router := gin.Default()
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.CORSOrigins
	corsCfg.AllowCredentials = true
	router.Use(cors.New(corsCfg))
	router.Use(otelgin.Middleware("chat"))
	router.Use(rl.GlobalMiddleware())

	healthHandler := health.NewHandler(st, busService)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", engine.ServeWs)

	srv := &http.Server{Addr: ":" + cfg.ChatPort, Handler: router}

	go func() {
		logger.Info("chat engine starting", zap.String("port", cfg.ChatPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("chat server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down chat engine")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
