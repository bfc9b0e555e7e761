package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	domainService "github.com/sentineliq/riskd/internal/domain/service"
)

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	redisClient *redis.Client
	ledger      domainService.LedgerStore
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(redisClient *redis.Client, ledger domainService.LedgerStore) *HealthHandler {
	return &HealthHandler{redisClient: redisClient, ledger: ledger}
}

// Healthz handles GET /healthz. Liveness only.
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz handles GET /readyz. Redis being down is reported but not fatal:
// the engine fails open without it. The ledger is the hard dependency.
func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	status := http.StatusOK

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		checks["redis"] = "degraded: " + err.Error()
	} else {
		checks["redis"] = "ok"
	}

	if _, err := h.ledger.Head(ctx); err != nil {
		checks["ledger"] = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["ledger"] = "ok"
	}

	c.JSON(status, gin.H{"status": httpStatusWord(status), "checks": checks})
}

func httpStatusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "unavailable"
}
