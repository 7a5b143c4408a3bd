package config

import "time"

// SetDefaults sets default values for all configuration fields
func SetDefaults(cfg *Config) {
	// Database defaults
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "fleettrack"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "fleettrack"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Pool.MaxOpen == 0 {
		cfg.Database.Pool.MaxOpen = 25
	}
	if cfg.Database.Pool.MaxIdle == 0 {
		cfg.Database.Pool.MaxIdle = 5
	}
	if cfg.Database.Pool.MaxLifetime == 0 {
		cfg.Database.Pool.MaxLifetime = 5 * time.Minute
	}

	// Routing defaults
	if cfg.Routing.PrimaryURL == "" {
		cfg.Routing.PrimaryURL = "http://localhost:8002"
	}
	if cfg.Routing.Timeout == 0 {
		cfg.Routing.Timeout = 10 * time.Second
	}
	if cfg.Routing.CacheSize == 0 {
		cfg.Routing.CacheSize = 512
	}
	if cfg.Routing.CacheTTL == 0 {
		cfg.Routing.CacheTTL = 5 * time.Minute
	}

	// Signal provider defaults
	if cfg.Signals.Traffic.TTL == 0 {
		cfg.Signals.Traffic.TTL = 2 * time.Minute
	}
	if cfg.Signals.Traffic.CacheSize == 0 {
		cfg.Signals.Traffic.CacheSize = 1024
	}
	if cfg.Signals.Traffic.BucketDeg == 0 {
		cfg.Signals.Traffic.BucketDeg = 0.05
	}
	if cfg.Signals.Traffic.Timeout == 0 {
		cfg.Signals.Traffic.Timeout = 2 * time.Second
	}
	if cfg.Signals.Weather.TTL == 0 {
		cfg.Signals.Weather.TTL = 10 * time.Minute
	}
	if cfg.Signals.Weather.CacheSize == 0 {
		cfg.Signals.Weather.CacheSize = 512
	}
	if cfg.Signals.Weather.BucketDeg == 0 {
		cfg.Signals.Weather.BucketDeg = 0.1
	}
	if cfg.Signals.Weather.Timeout == 0 {
		cfg.Signals.Weather.Timeout = 2 * time.Second
	}

	// Tracking pipeline defaults
	if cfg.Tracking.Position.MaxAccuracyM == 0 {
		cfg.Tracking.Position.MaxAccuracyM = 50
	}
	if cfg.Tracking.Snap.MaxCrossTrackM == 0 {
		cfg.Tracking.Snap.MaxCrossTrackM = 60
	}
	if cfg.Tracking.Snap.MinProgressToleranceM == 0 {
		cfg.Tracking.Snap.MinProgressToleranceM = 20
	}
	if cfg.Tracking.Snap.MaxEdgeSpeedKPH == 0 {
		cfg.Tracking.Snap.MaxEdgeSpeedKPH = 140
	}
	if cfg.Tracking.Snap.SpeedFilterAlpha == 0 {
		cfg.Tracking.Snap.SpeedFilterAlpha = 0.4
	}
	if cfg.Tracking.Dwell.RadiusM == 0 {
		cfg.Tracking.Dwell.RadiusM = 80
	}
	if cfg.Tracking.Dwell.StoppedSpeedKPH == 0 {
		cfg.Tracking.Dwell.StoppedSpeedKPH = 5
	}
	if cfg.Tracking.Dwell.MinDepartureGap == 0 {
		cfg.Tracking.Dwell.MinDepartureGap = 60 * time.Second
	}
	if cfg.Tracking.ETA.Alpha == 0 {
		cfg.Tracking.ETA.Alpha = 0.3
	}
	if cfg.Tracking.ETA.ConfidenceHighDevMin == 0 {
		cfg.Tracking.ETA.ConfidenceHighDevMin = 5
	}
	if cfg.Tracking.ETA.ConfidenceMediumDevMin == 0 {
		cfg.Tracking.ETA.ConfidenceMediumDevMin = 15
	}
	if cfg.Tracking.ETA.MinSpeedKPH == 0 {
		cfg.Tracking.ETA.MinSpeedKPH = 5
	}
	if cfg.Tracking.ETA.OffRouteStopM == 0 {
		cfg.Tracking.ETA.OffRouteStopM = 500
	}
	if cfg.Tracking.Classifier.MinScore == 0 {
		cfg.Tracking.Classifier.MinScore = 0.4
	}
	if cfg.Tracking.Classifier.TrafficFactorThreshold == 0 {
		cfg.Tracking.Classifier.TrafficFactorThreshold = 0.6
	}
	if cfg.Tracking.Classifier.LateThresholdMin == 0 {
		cfg.Tracking.Classifier.LateThresholdMin = 10
	}
	if cfg.Tracking.Classifier.PrecipThresholdMM == 0 {
		cfg.Tracking.Classifier.PrecipThresholdMM = 2.5
	}
	if cfg.Tracking.Classifier.HOSDriveLimit == 0 {
		cfg.Tracking.Classifier.HOSDriveLimit = 11 * time.Hour
	}
	if cfg.Tracking.Classifier.HOSWarningWindow == 0 {
		cfg.Tracking.Classifier.HOSWarningWindow = 90 * time.Minute
	}
	if cfg.Tracking.Classifier.VehicleIssueWindow == 0 {
		cfg.Tracking.Classifier.VehicleIssueWindow = 30 * time.Minute
	}
	if cfg.Tracking.Classifier.OffRouteRejects == 0 {
		cfg.Tracking.Classifier.OffRouteRejects = 3
	}
	if cfg.Tracking.Reroute.MinSavingMin == 0 {
		cfg.Tracking.Reroute.MinSavingMin = 10
	}
	if cfg.Tracking.Reroute.ProposalTTL == 0 {
		cfg.Tracking.Reroute.ProposalTTL = 15 * time.Minute
	}
	if cfg.Tracking.Reroute.Alternatives == 0 {
		cfg.Tracking.Reroute.Alternatives = 3
	}
	if cfg.Tracking.Reroute.DetourMaxPct == 0 {
		cfg.Tracking.Reroute.DetourMaxPct = 30
	}
	if cfg.Tracking.Reroute.DetourPenalty == 0 {
		cfg.Tracking.Reroute.DetourPenalty = 5 * time.Minute
	}
	if cfg.Tracking.Queue.PerShipmentCapacity == 0 {
		cfg.Tracking.Queue.PerShipmentCapacity = 64
	}
	if cfg.Tracking.Queue.DegradedBufferCap == 0 {
		cfg.Tracking.Queue.DegradedBufferCap = 200
	}
	if cfg.Tracking.Subscriber.Buffer == 0 {
		cfg.Tracking.Subscriber.Buffer = 32
	}
	if cfg.Tracking.Ingest.MaxPastWindow == 0 {
		cfg.Tracking.Ingest.MaxPastWindow = 24 * time.Hour
	}
	if cfg.Tracking.Ingest.MaxFutureSkew == 0 {
		cfg.Tracking.Ingest.MaxFutureSkew = 5 * time.Minute
	}
	if cfg.Tracking.Ingest.VehicleRate == 0 {
		cfg.Tracking.Ingest.VehicleRate = 10
	}
	if cfg.Tracking.Ingest.VehicleBurst == 0 {
		cfg.Tracking.Ingest.VehicleBurst = 20
	}
	if cfg.Tracking.Ingest.AdmissionTimeout == 0 {
		cfg.Tracking.Ingest.AdmissionTimeout = 250 * time.Millisecond
	}

	// Daemon defaults
	if cfg.Daemon.Address == "" {
		cfg.Daemon.Address = "localhost:8080"
	}
	if cfg.Daemon.PIDFile == "" {
		cfg.Daemon.PIDFile = "/tmp/fleettrack-daemon.pid"
	}
	if cfg.Daemon.ShutdownTimeout == 0 {
		cfg.Daemon.ShutdownTimeout = 30 * time.Second
	}

	// Metrics defaults
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "localhost"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.Rotation.MaxSize == 0 {
		cfg.Logging.Rotation.MaxSize = 100 // MB
	}
	if cfg.Logging.Rotation.MaxBackups == 0 {
		cfg.Logging.Rotation.MaxBackups = 3
	}
	if cfg.Logging.Rotation.MaxAge == 0 {
		cfg.Logging.Rotation.MaxAge = 28 // days
	}
}
