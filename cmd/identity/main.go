// Command identity runs the self-hosted identity service: email/password
// and Google-passthrough accounts, bcrypt hashing, HS256 session tokens
// (spec §1 identity contract, DESIGN.md "self-hosted identity" decision).
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

	"github.com/collabhub/realtime/internal/config"
	"github.com/collabhub/realtime/internal/identity"
	"github.com/collabhub/realtime/internal/logging"
	"github.com/collabhub/realtime/internal/middleware"
	"github.com/collabhub/realtime/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// no .env file is fine outside local development
	}

	cfg, err := config.Load(os.Getenv, "identity")
	if err != nil {
		panic(err)
	}
	if err := logging.Initialize("identity", cfg.Env == "development"); err != nil {
		panic(err)
	}
	logger := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); addr != "" {
		tp, err := tracing.InitTracer(ctx, "identity", addr)
		if err != nil {
			logger.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	accounts := identity.NewAccountStore()
	tokens := identity.NewTokenIssuer(cfg.IdentityJWTSecret)
	svc := identity.NewService(accounts, tokens)

	router := gin.Default()
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.CORSOrigins
	corsCfg.AllowCredentials = true
	router.Use(cors.New(corsCfg))
	router.Use(otelgin.Middleware("identity"))
	router.Use(middleware.CorrelationID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "identity"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	svc.Routes(router)

	srv := &http.Server{Addr: ":" + cfg.AuthPort, Handler: router}

	go func() {
		logger.Info("identity service starting", zap.String("port", cfg.AuthPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("identity server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down identity service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
