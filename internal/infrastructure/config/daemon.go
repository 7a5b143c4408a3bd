package config

import "time"

// DaemonConfig holds daemon service configuration
type DaemonConfig struct {
	// HTTP listen address for ingest, queries, and subscriptions (host:port)
	Address string `mapstructure:"address" validate:"required"`

	// PID file location
	PIDFile string `mapstructure:"pid_file"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`
}
