package config

import "time"

// RoutingConfig holds routing backend configuration
type RoutingConfig struct {
	// Primary Valhalla-compatible endpoint (scheme://host:port)
	PrimaryURL string `mapstructure:"primary_url" validate:"required,url"`

	// Optional fallback endpoint tried when the primary fails
	FallbackURL string `mapstructure:"fallback_url" validate:"omitempty,url"`

	// Per-request timeout
	Timeout time.Duration `mapstructure:"timeout" validate:"required"`

	// Route cache entries and freshness
	CacheSize int           `mapstructure:"cache_size" validate:"min=1"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}
