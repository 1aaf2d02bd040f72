package api

import (
	"context"
	"time"

	"github.com/Egham-7/support-resilience/internal/services/circuitbreaker"
	"github.com/Egham-7/support-resilience/internal/services/database"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"
	statusDisabled  = "disabled"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	redisClient *redis.Client
	db          *database.DB
	breakers    []*circuitbreaker.CircuitBreaker
}

// NewHealthHandler creates a new health check handler. redisClient and db
// may be nil when those dependencies are not configured.
func NewHealthHandler(redisClient *redis.Client, db *database.DB, breakers ...*circuitbreaker.CircuitBreaker) *HealthHandler {
	return &HealthHandler{
		redisClient: redisClient,
		db:          db,
		breakers:    breakers,
	}
}

// HealthCheck returns the health status of the service and its dependencies.
// Disabled dependencies do not degrade the status.
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	redisStatus := h.checkRedis()
	dbStatus := h.checkDatabase()

	breakers := make(fiber.Map, len(h.breakers))
	breakerOpen := false
	for _, cb := range h.breakers {
		state := cb.GetState()
		breakers[cb.ServiceName()] = state.String()
		if state != circuitbreaker.Closed {
			breakerOpen = true
		}
	}

	overallStatus := statusHealthy
	statusCode := fiber.StatusOK
	if redisStatus == statusUnhealthy || dbStatus == statusUnhealthy || breakerOpen {
		overallStatus = statusDegraded
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": fiber.Map{
			"redis":            redisStatus,
			"database":         dbStatus,
			"circuit_breakers": breakers,
		},
	})
}

// checkRedis verifies Redis connectivity
func (h *HealthHandler) checkRedis() string {
	if h.redisClient == nil {
		return statusDisabled
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		return statusUnhealthy
	}
	return statusHealthy
}

func (h *HealthHandler) checkDatabase() string {
	if h.db == nil {
		return statusDisabled
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return statusUnhealthy
	}
	return statusHealthy
}
