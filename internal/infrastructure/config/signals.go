package config

import "time"

// SignalsConfig holds traffic and weather provider configuration
type SignalsConfig struct {
	Traffic SignalProviderConfig `mapstructure:"traffic"`
	Weather SignalProviderConfig `mapstructure:"weather"`
}

// SignalProviderConfig holds one provider's endpoint and cache tuning
type SignalProviderConfig struct {
	// Provider endpoint; empty disables the provider (treated as a missing signal)
	URL string `mapstructure:"url" validate:"omitempty,url"`

	// Cache freshness window
	TTL time.Duration `mapstructure:"ttl"`

	// Cache capacity in spatial buckets
	CacheSize int `mapstructure:"cache_size" validate:"min=1"`

	// Spatial bucket edge in degrees
	BucketDeg float64 `mapstructure:"bucket_deg" validate:"gt=0"`

	// Per-request timeout
	Timeout time.Duration `mapstructure:"timeout"`
}
