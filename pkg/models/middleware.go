package models

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RateLimitConfig configures the admin server's sliding-window limiter
type RateLimitConfig struct {
	Max        int
	Expiration time.Duration
	// KeyFunc groups requests; the client IP is used when nil.
	KeyFunc func(*fiber.Ctx) string
}

// TimeoutConfig bounds every admin request
type TimeoutConfig struct {
	Timeout time.Duration
}
