package builder

import "github.com/Egham-7/support-resilience/internal/models"

func (b *Builder) WithFallback(cfg models.FallbackConfig) *Builder {
	defaults := models.DefaultFallbackConfig()
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = defaults.TimeoutMs
	}
	if cfg.CacheTTLSeconds == 0 {
		cfg.CacheTTLSeconds = defaults.CacheTTLSeconds
	}
	if cfg.CircuitBreaker.FailureThreshold == 0 {
		cfg.CircuitBreaker.FailureThreshold = defaults.CircuitBreaker.FailureThreshold
	}
	if cfg.CircuitBreaker.CooldownMs == 0 {
		cfg.CircuitBreaker.CooldownMs = defaults.CircuitBreaker.CooldownMs
	}

	b.cfg.Fallback = cfg
	return b
}
