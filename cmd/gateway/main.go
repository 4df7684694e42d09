// Command gateway runs the edge gateway: HTTP/WS routing, duplex proxying
// and per-backend circuit breaking (spec §4.1). It holds no Store, Bus or
// Verifier of its own — those belong to the backends it fronts.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/collabhub/realtime/internal/config"
	"github.com/collabhub/realtime/internal/gateway"
	"github.com/collabhub/realtime/internal/logging"
	"github.com/collabhub/realtime/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// no .env file is fine outside local development
	}

	cfg, err := config.Load(os.Getenv, "gateway")
	if err != nil {
		panic(err)
	}
	if err := logging.Initialize("gateway", cfg.Env == "development"); err != nil {
		panic(err)
	}
	logger := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); addr != "" {
		tp, err := tracing.InitTracer(ctx, "gateway", addr)
		if err != nil {
			logger.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	gw, err := gateway.New(gateway.Config{
		AuthServiceURL:  cfg.AuthServiceURL,
		ChatServiceURL:  cfg.ChatServiceURL,
		VideoServiceURL: cfg.VideoServiceURL,
	})
	if err != nil {
		logger.Fatal("failed to build gateway", zap.Error(err))
	}

	router := gw.Router(cfg.CORSOrigins)
	router.Use(otelgin.Middleware("gateway"))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: ":" + cfg.GatewayPort, Handler: router}

	go func() {
		logger.Info("gateway starting", zap.String("port", cfg.GatewayPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("gateway server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
