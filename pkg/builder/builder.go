package builder

import (
	"github.com/Egham-7/support-resilience/internal/config"
	pkgmodels "github.com/Egham-7/support-resilience/pkg/models"

	"github.com/gofiber/fiber/v2"
)

type Builder struct {
	cfg             *config.Config
	middlewares     []fiber.Handler
	rateLimitConfig *pkgmodels.RateLimitConfig
	timeoutConfig   *pkgmodels.TimeoutConfig
}

// New starts from the defaults: memory and file tiers only, no remote cache
// and no database
func New() *Builder {
	return &Builder{
		cfg:         config.Default(),
		middlewares: []fiber.Handler{},
	}
}

// Build fills any knob still unset and returns the configuration
func (b *Builder) Build() *config.Config {
	b.cfg.ApplyDefaults()
	return b.cfg
}

func (b *Builder) GetMiddlewares() []fiber.Handler {
	return b.middlewares
}

func (b *Builder) GetRateLimitConfig() *pkgmodels.RateLimitConfig {
	return b.rateLimitConfig
}

func (b *Builder) GetTimeoutConfig() *pkgmodels.TimeoutConfig {
	return b.timeoutConfig
}
