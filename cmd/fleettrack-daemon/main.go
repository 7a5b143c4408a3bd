package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/andrescamacho/fleettrack-go/internal/adapters/httpapi"
	"github.com/andrescamacho/fleettrack-go/internal/adapters/metrics"
	"github.com/andrescamacho/fleettrack-go/internal/adapters/persistence"
	routingadapter "github.com/andrescamacho/fleettrack-go/internal/adapters/routing"
	signalsadapter "github.com/andrescamacho/fleettrack-go/internal/adapters/signals"
	apptracking "github.com/andrescamacho/fleettrack-go/internal/application/tracking"
	domainrouting "github.com/andrescamacho/fleettrack-go/internal/domain/routing"
	domainsignals "github.com/andrescamacho/fleettrack-go/internal/domain/signals"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/infrastructure/config"
	"github.com/andrescamacho/fleettrack-go/internal/infrastructure/database"
	"github.com/andrescamacho/fleettrack-go/internal/infrastructure/logging"
	"github.com/andrescamacho/fleettrack-go/internal/infrastructure/pidfile"
)

var (
	configPath string
	forceStart bool
)

func main() {
	root := &cobra.Command{
		Use:   "fleettrack-daemon",
		Short: "Real-time shipment tracking daemon",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: search standard locations)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracking daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveDaemon()
		},
	}
	serve.Flags().BoolVar(&forceStart, "force", false, "Kill any existing daemon and start a new one")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveDaemon() error {
	cfg := config.MustLoadConfig(configPath)

	pf := pidfile.New(cfg.Daemon.PIDFile)
	if err := pf.Acquire(); err != nil {
		if !forceStart {
			return fmt.Errorf("failed to acquire PID file lock: %w (use --force to kill the existing daemon)", err)
		}
		if killErr := pf.KillExisting(); killErr != nil {
			return fmt.Errorf("failed to kill existing daemon: %w", killErr)
		}
		// Give the old process a moment to release the file
		time.Sleep(500 * time.Millisecond)
		if err := pf.Acquire(); err != nil {
			return fmt.Errorf("failed to acquire PID file lock after kill: %w", err)
		}
	}
	defer func() {
		_ = pf.Release()
	}()

	return run(cfg)
}

func run(cfg *config.Config) error {
	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()
	logger.Log("info", "starting fleettrack daemon", map[string]interface{}{
		"address": cfg.Daemon.Address,
	})

	// Metrics endpoint on its own listener so scrapes never contend with
	// the ingest path
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Log("error", "metrics server failed", map[string]interface{}{"error": err.Error()})
			}
		}()
		logger.Log("info", "metrics endpoint listening", map[string]interface{}{
			"address": metricsServer.Addr,
			"path":    cfg.Metrics.Path,
		})
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Log("info", "database connected", map[string]interface{}{"type": cfg.Database.Type})

	repo := persistence.NewGormTrackingRepository(db)
	clock := shared.NewRealClock()
	ids := shared.NewUUIDGenerator()
	hub := apptracking.NewHub(cfg.Tracking.Subscriber.Buffer)

	router := routingadapter.NewHTTPRoutingClient(routingadapter.HTTPRoutingClientConfig{
		PrimaryURL:  cfg.Routing.PrimaryURL,
		FallbackURL: cfg.Routing.FallbackURL,
		Timeout:     cfg.Routing.Timeout,
		CacheSize:   cfg.Routing.CacheSize,
		CacheTTL:    cfg.Routing.CacheTTL,
	}, ids, clock)

	var traffic domainsignals.TrafficProvider
	if cfg.Signals.Traffic.URL != "" {
		fetch := signalsadapter.NewHTTPTrafficFetcher(cfg.Signals.Traffic.URL, cfg.Signals.Traffic.Timeout, clock)
		traffic = signalsadapter.NewCachingTrafficProvider(fetch, cfg.Signals.Traffic.CacheSize, cfg.Signals.Traffic.TTL, cfg.Signals.Traffic.BucketDeg)
	}
	var weather domainsignals.WeatherProvider
	if cfg.Signals.Weather.URL != "" {
		fetch := signalsadapter.NewHTTPWeatherFetcher(cfg.Signals.Weather.URL, cfg.Signals.Weather.Timeout, clock)
		weather = signalsadapter.NewCachingWeatherProvider(fetch, cfg.Signals.Weather.CacheSize, cfg.Signals.Weather.TTL, cfg.Signals.Weather.BucketDeg)
	}

	snapper := apptracking.NewSnapper(apptracking.SnapperConfig{
		MaxAccuracyM:          cfg.Tracking.Position.MaxAccuracyM,
		MaxCrossTrackM:        cfg.Tracking.Snap.MaxCrossTrackM,
		MinProgressToleranceM: cfg.Tracking.Snap.MinProgressToleranceM,
		MaxEdgeSpeedKPH:       cfg.Tracking.Snap.MaxEdgeSpeedKPH,
		SpeedFilterAlpha:      cfg.Tracking.Snap.SpeedFilterAlpha,
	})
	estimator := apptracking.NewEstimator(apptracking.ETAConfig{
		Alpha:         cfg.Tracking.ETA.Alpha,
		HighDevMin:    cfg.Tracking.ETA.ConfidenceHighDevMin,
		MediumDevMin:  cfg.Tracking.ETA.ConfidenceMediumDevMin,
		MinSpeedKPH:   cfg.Tracking.ETA.MinSpeedKPH,
		OffRouteStopM: cfg.Tracking.ETA.OffRouteStopM,
	}, ids)
	classifier := apptracking.NewClassifier(apptracking.ClassifierConfig{
		MinScore:               cfg.Tracking.Classifier.MinScore,
		TrafficFactorThreshold: cfg.Tracking.Classifier.TrafficFactorThreshold,
		LateThresholdMin:       cfg.Tracking.Classifier.LateThresholdMin,
		PrecipThresholdMM:      cfg.Tracking.Classifier.PrecipThresholdMM,
		HOSDriveLimit:          cfg.Tracking.Classifier.HOSDriveLimit,
		HOSWarningWindow:       cfg.Tracking.Classifier.HOSWarningWindow,
		VehicleIssueWindow:     cfg.Tracking.Classifier.VehicleIssueWindow,
		OffRouteRejects:        cfg.Tracking.Classifier.OffRouteRejects,
	}, ids)
	evaluator := apptracking.NewEvaluator(apptracking.RerouteConfig{
		MinSavingMin:  cfg.Tracking.Reroute.MinSavingMin,
		ProposalTTL:   cfg.Tracking.Reroute.ProposalTTL,
		Alternatives:  cfg.Tracking.Reroute.Alternatives,
		DetourMaxPct:  cfg.Tracking.Reroute.DetourMaxPct,
		DetourPenalty: cfg.Tracking.Reroute.DetourPenalty,
	}, router, repo, ids, domainrouting.DefaultTruckProfile())

	actorCfg := apptracking.DefaultActorConfig()
	actorCfg.QueueCapacity = cfg.Tracking.Queue.PerShipmentCapacity
	actorCfg.DegradedBufferCap = cfg.Tracking.Queue.DegradedBufferCap
	actorCfg.SignalTimeout = cfg.Signals.Traffic.Timeout
	actorCfg.LateThresholdMin = cfg.Tracking.Classifier.LateThresholdMin
	actorCfg.TrafficFactorThreshold = cfg.Tracking.Classifier.TrafficFactorThreshold

	registry := apptracking.NewRegistry(actorCfg, apptracking.ActorDeps{
		Repo:       repo,
		Publisher:  hub,
		Snapper:    snapper,
		Estimator:  estimator,
		Classifier: classifier,
		Evaluator:  evaluator,
		Traffic:    traffic,
		Weather:    weather,
		Clock:      clock,
		Dwell: apptracking.DwellConfig{
			RadiusM:         cfg.Tracking.Dwell.RadiusM,
			StoppedSpeedKPH: cfg.Tracking.Dwell.StoppedSpeedKPH,
			MinDepartureGap: cfg.Tracking.Dwell.MinDepartureGap,
		},
		Logger: logger,
	})
	registry.Start(context.Background())
	defer registry.Close()

	resumeCtx, cancelResume := context.WithTimeout(context.Background(), 30*time.Second)
	err = registry.ResumeActive(resumeCtx)
	cancelResume()
	if err != nil {
		return fmt.Errorf("failed to resume active shipments: %w", err)
	}
	logger.Log("info", "resumed active shipments", map[string]interface{}{
		"actors": registry.ActorCount(),
	})

	gateway := apptracking.NewGateway(apptracking.GatewayConfig{
		MaxPastWindow:    cfg.Tracking.Ingest.MaxPastWindow,
		MaxFutureSkew:    cfg.Tracking.Ingest.MaxFutureSkew,
		VehicleRate:      rate.Limit(cfg.Tracking.Ingest.VehicleRate),
		VehicleBurst:     cfg.Tracking.Ingest.VehicleBurst,
		AdmissionTimeout: cfg.Tracking.Ingest.AdmissionTimeout,
	}, registry, clock)
	service := apptracking.NewService(repo, registry, hub, clock, ids)

	api := httpapi.NewServer(gateway, service, registry, logger, clock.Now())
	server := &http.Server{
		Addr:              cfg.Daemon.Address,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log("info", "daemon listening", map[string]interface{}{"address": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("daemon server error: %w", err)
	case sig := <-stop:
		logger.Log("info", "shutting down", map[string]interface{}{"signal": sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log("warn", "server shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	// Deferred registry.Close drains actors before the database handle
	// goes away
	logger.Log("info", "daemon stopped", nil)
	return nil
}
