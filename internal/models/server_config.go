package models

import "time"

// ServerConfig holds admin server configuration
type ServerConfig struct {
	Port           string `json:"port,omitzero" yaml:"port"`
	AllowedOrigins string `json:"allowed_origins,omitzero" yaml:"allowed_origins"`
	Environment    string `json:"environment,omitzero" yaml:"environment"`
	LogLevel       string `json:"log_level,omitzero" yaml:"log_level"`
	// ShutdownTimeoutSeconds bounds graceful shutdown of the admin server
	// and the cleanup schedulers.
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds,omitzero" yaml:"shutdown_timeout_seconds"`
}

func (c ServerConfig) ShutdownTimeout() time.Duration { return seconds(c.ShutdownTimeoutSeconds) }
