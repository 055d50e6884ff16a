package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rizrmd/travel-sub003/internal/api"
	"github.com/rizrmd/travel-sub003/internal/database"
	"github.com/rizrmd/travel-sub003/internal/server"
	"github.com/rizrmd/travel-sub003/pkg/alerting"
	"github.com/rizrmd/travel-sub003/pkg/anomaly"
	"github.com/rizrmd/travel-sub003/pkg/cache"
	"github.com/rizrmd/travel-sub003/pkg/config"
	"github.com/rizrmd/travel-sub003/pkg/logger"
	"github.com/rizrmd/travel-sub003/pkg/metrics"
	"github.com/rizrmd/travel-sub003/pkg/scheduler"
)

const serviceVersion = "1.0.0"

// appConfig is the top-level configuration tree loaded from defaults, the
// YAML file, and TRAVEL_-prefixed environment variables.
type appConfig struct {
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" default:"json"`

	Server   *server.Config   `yaml:"server"`
	Database *database.Config `yaml:"database"`
	Cache    *cache.Config    `yaml:"cache"`

	Collector  *metrics.CollectorConfig   `yaml:"collector"`
	Detector   *anomaly.DetectorConfig    `yaml:"detector"`
	Dispatcher *alerting.DispatcherConfig `yaml:"dispatcher"`
	Scheduler  *scheduler.Config          `yaml:"scheduler"`

	Channels struct {
		Email *alerting.EmailConfig `yaml:"email"`
		Slack *alerting.SlackConfig `yaml:"slack"`
		SMS   *alerting.SMSConfig   `yaml:"sms"`
	} `yaml:"channels"`

	// Platform contacts receive alerts for platform-scope anomalies and
	// back-fill tenants with no contacts of their own.
	Platform alerting.Contacts `yaml:"platform"`

	Tasks struct {
		SystemMetricsInterval time.Duration `yaml:"system_metrics_interval" env:"SYSTEM_METRICS_INTERVAL" default:"1m"`
		TenantMetricsInterval time.Duration `yaml:"tenant_metrics_interval" env:"TENANT_METRICS_INTERVAL" default:"10m"`
		DetectionInterval     time.Duration `yaml:"detection_interval" env:"DETECTION_INTERVAL" default:"15m"`
		PruneSchedule         string        `yaml:"prune_schedule" env:"PRUNE_SCHEDULE" default:"0 3 * * *"`
	} `yaml:"tasks"`
}

func main() {
	var (
		configFile = flag.String("config", "", "Path to YAML configuration file")
		logLevel   = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("travel-observability server v%s\n", serviceVersion)
		os.Exit(0)
	}

	if err := config.ValidateConfigPath(*configFile); err != nil {
		log.Fatalf("Invalid config file: %v", err)
	}

	cfg := &appConfig{
		Server:     server.DefaultConfig(),
		Cache:      cache.DefaultConfig(),
		Collector:  metrics.DefaultCollectorConfig(),
		Detector:   anomaly.DefaultDetectorConfig(),
		Dispatcher: alerting.DefaultDispatcherConfig(),
		Scheduler:  scheduler.DefaultConfig(),
	}
	cfg.Channels.Email = alerting.DefaultEmailConfig()
	cfg.Channels.Slack = alerting.DefaultSlackConfig()
	cfg.Channels.SMS = alerting.DefaultSMSConfig()

	loader := config.NewLoader("TRAVEL")
	if err := loader.Load(*configFile, cfg); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLogLevel(cfg.LogLevel),
		Format:  logger.ParseLogFormat(cfg.LogFormat),
		Output:  os.Stdout,
		Service: "travel-observability",
		Version: serviceVersion,
	})
	logger.SetDefault(appLogger)

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal("Server failed: %v", err)
	}
}

func run(cfg *appConfig, appLogger *logger.Logger) error {
	appLogger.WithFields(map[string]interface{}{
		"host":     cfg.Database.Host,
		"database": cfg.Database.Database,
	}).Info("Connecting to database")

	db, err := database.New(cfg.Database, cfg.Platform)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelHealth()
	if err := db.HealthCheck(healthCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	cacheStore, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheStore.Close()

	// Dispatch before collection so the queue sampler sees a live queue.
	dispatcher := alerting.NewDispatcher(cfg.Dispatcher, db.Alerts, db.Tenants, cacheStore, appLogger)
	dispatcher.RegisterSender(alerting.NewEmailSender(cfg.Channels.Email))
	dispatcher.RegisterSender(alerting.NewSlackSender(cfg.Channels.Slack))
	dispatcher.RegisterSender(alerting.NewSMSSender(cfg.Channels.SMS))
	dispatcher.Start()
	defer dispatcher.Stop()

	latency := metrics.NewLatencyRecorder(4096)

	collector := metrics.NewCollector(cfg.Collector, db.Metrics, db.Tenants, db.Stats, cacheStore, appLogger)
	collector.RegisterSampler(metrics.NewHostSampler())
	collector.RegisterSampler(metrics.NewDatabaseSampler(db.Connection()))
	collector.RegisterSampler(metrics.NewCacheSampler(&cacheHitRatio{cacheStore}))
	collector.RegisterSampler(metrics.NewAppSampler(latency, dispatcher))

	detector := anomaly.NewDetector(
		cfg.Detector,
		db.Anomalies,
		db.Tenants,
		database.NewTenantMetricSource(db.Metrics),
		database.NewSystemMetricSource(db.Metrics),
		db.Stats,
		dispatcher,
		appLogger,
	)

	sched := scheduler.New(cfg.Scheduler, appLogger)
	if err := registerTasks(sched, cfg, collector, detector); err != nil {
		return fmt.Errorf("failed to register scheduled tasks: %w", err)
	}
	sched.Start()

	monitoring := api.NewMonitoringController(collector, db.Metrics, sched, dispatcher, db)
	anomalies := api.NewAnomalyController(db.Anomalies, db.Alerts, dispatcher)

	srv, err := server.New(cfg.Server, appLogger, monitoring, latency, anomalies)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		appLogger.Error("Scheduler shutdown incomplete: %v", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func registerTasks(sched *scheduler.Scheduler, cfg *appConfig, collector *metrics.Collector, detector *anomaly.Detector) error {
	if err := sched.RegisterInterval("collect-system-metrics", cfg.Tasks.SystemMetricsInterval, collector.CollectSystemMetrics); err != nil {
		return err
	}
	if err := sched.RegisterInterval("collect-tenant-metrics", cfg.Tasks.TenantMetricsInterval, collector.CollectTenantMetrics); err != nil {
		return err
	}
	if err := sched.RegisterInterval("detect-anomalies", cfg.Tasks.DetectionInterval, detector.RunCycle); err != nil {
		return err
	}
	return sched.Register("prune-metrics", cfg.Tasks.PruneSchedule, collector.PruneExpired)
}

// cacheHitRatio adapts cache statistics to the hit-rate sampler
type cacheHitRatio struct {
	cache cache.Cache
}

func (c *cacheHitRatio) HitRatio(ctx context.Context) (float64, error) {
	stats, err := c.cache.GetStats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.HitRatio, nil
}
