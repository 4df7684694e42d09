// Package health exposes liveness/readiness probes shared by every service.
//
// Grounded on RoseWrightdev/Video-Conferencing backend/go/internal/v1/health/handler.go,
// with the SFU gRPC health check replaced by Store/Bus reachability checks
// per the expanded specification's design notes (§14): this system relays
// signaling only, it has no media-plane dependency to probe.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/collabhub/realtime/internal/bus"
	"github.com/collabhub/realtime/internal/logging"
)

// StoreChecker is satisfied by the Store implementation in use; a Ping
// confirms connectivity without doing real work.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

// Handler serves liveness/readiness endpoints.
type Handler struct {
	store StoreChecker
	bus   *bus.Service
}

// NewHandler builds a Handler. Either dependency may be nil (single-instance
// dev mode, or a service that doesn't use the Bus).
func NewHandler(store StoreChecker, busService *bus.Service) *Handler {
	return &Handler{store: store, bus: busService}
}

type livenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type readinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness reports the process is alive. No dependency checks: GET /health/live.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, livenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness reports whether every critical dependency is reachable:
// GET /health/ready. 503 if any check fails.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	storeStatus := h.checkStore(ctx)
	checks["store"] = storeStatus
	if storeStatus != "healthy" {
		allHealthy = false
	}

	busStatus := h.checkBus(ctx)
	checks["bus"] = busStatus
	if busStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, readinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkStore(ctx context.Context) string {
	if h.store == nil {
		return "healthy"
	}
	if err := h.store.Ping(ctx); err != nil {
		logging.Error(ctx, "store health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) checkBus(ctx context.Context) string {
	if h.bus == nil {
		return "healthy" // single-instance mode, no Bus configured
	}
	if err := h.bus.Ping(ctx); err != nil {
		logging.Error(ctx, "bus health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

// MarshalJSON exists so readinessResponse keeps a stable field order.
func (r readinessResponse) MarshalJSON() ([]byte, error) {
	type alias readinessResponse
	return json.Marshal(&struct{ *alias }{alias: (*alias)(&r)})
}
