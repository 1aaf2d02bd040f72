package models

import "time"

// Fallback result sources beyond the cache layers
const (
	SourcePrimary = "primary"
	SourceDefault = "default"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	FailureThreshold int `json:"failure_threshold,omitzero" yaml:"failure_threshold,omitempty"` // Consecutive failures before opening circuit
	CooldownMs       int `json:"cooldown_ms,omitzero" yaml:"cooldown_ms,omitempty"`             // Time to wait before allowing a half-open probe
}

// Cooldown returns the open-state duration
func (c CircuitBreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// FallbackConfig holds the execute-with-fallback configuration
type FallbackConfig struct {
	TimeoutMs       int                  `json:"timeout_ms,omitzero" yaml:"timeout_ms,omitempty"`               // Primary operation timeout in milliseconds
	CacheTTLSeconds int                  `json:"cache_ttl_seconds,omitzero" yaml:"cache_ttl_seconds,omitempty"` // TTL of values cached after a primary success
	CircuitBreaker  CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// DefaultFallbackConfig returns the fallback defaults
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		TimeoutMs:       5000,
		CacheTTLSeconds: 3600,
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 3,
			CooldownMs:       60000,
		},
	}
}

// Timeout returns the primary operation timeout
func (c FallbackConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// CacheTTL returns the TTL for successful primary results
func (c FallbackConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// CircuitBreakerSnapshot is a point-in-time view of a breaker
type CircuitBreakerSnapshot struct {
	Service       string     `json:"service"`
	State         string     `json:"state"`
	FailureCount  int        `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitzero"`
	Threshold     int        `json:"threshold"`
	Cooldown      string     `json:"cooldown"`
	Opens         int64      `json:"opens"`
	Closes        int64      `json:"closes"`
	Skipped       int64      `json:"skipped"`
}
