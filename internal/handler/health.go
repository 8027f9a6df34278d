package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/chungtau/txn-webhook/internal/model"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	store       Pinger
	redisClient *redis.Client
	nowFn       func() time.Time
}

// NewHealthHandler creates a new health handler; redisClient may be nil
func NewHealthHandler(store Pinger, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		store:       store,
		redisClient: redisClient,
		nowFn:       time.Now,
	}
}

// Liveness handles GET / and GET /health
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "HEALTHY",
		"current_time": model.FormatTimestamp(h.nowFn()),
	})
}

// Readiness handles GET /health/ready (checks dependencies)
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := make(map[string]string)
	healthy := true

	// The store is required
	if err := h.store.Ping(c.Request.Context()); err != nil {
		checks["store"] = "unhealthy: " + err.Error()
		healthy = false
	} else {
		checks["store"] = "healthy"
	}

	// Redis only backs rate limiting, so it never fails readiness
	if h.redisClient != nil {
		if err := h.redisClient.Ping(c.Request.Context()).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	status := http.StatusOK
	statusText := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusText = "not ready"
	}

	c.JSON(status, gin.H{
		"status":       statusText,
		"checks":       checks,
		"current_time": model.FormatTimestamp(h.nowFn()),
	})
}
