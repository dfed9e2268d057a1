package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/api"
	"github.com/frostdev-ops/rm-alert-engine/internal/api/handlers"
	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/cache"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/clock"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/dedup"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/insights"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metrics"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/monitor"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/notify"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/scheduler"
	"github.com/frostdev-ops/rm-alert-engine/internal/database"
	"github.com/frostdev-ops/rm-alert-engine/internal/database/postgres"
	"github.com/frostdev-ops/rm-alert-engine/internal/kafka"
	"github.com/frostdev-ops/rm-alert-engine/internal/websocket"
	"github.com/frostdev-ops/rm-alert-engine/pkg/logger"
	"github.com/frostdev-ops/rm-alert-engine/pkg/version"
)

// alertStore is satisfied by both the sqlite and postgres alert repositories
type alertStore interface {
	alerts.Repository
	handlers.AlertStore
}

func main() {
	// Load configuration
	cfg, err := config.LoadFrom(os.Getenv("RM_ALERT_CONFIG"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("Alert engine exited with error")
		log.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.BatchLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"version": version.GetVersion(),
		"driver":  cfg.Database.Driver,
	}).Info("Starting alert engine")

	// Dedup history and metric samples always live in SQLite; alerts may
	// live in Postgres instead
	sqliteCfg := cfg.Database
	if sqliteCfg.Driver == "postgres" {
		sqliteCfg.Driver = "sqlite"
	}
	db, err := database.Initialize(sqliteCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB, cfg.Database.MigrationsPath); err != nil {
			return err
		}
	}

	repos := database.NewRepositories(db, log.Logger)
	health := metrics.NewHealthChecker(5 * time.Second)
	health.Register("sqlite", metrics.PingCheck(db.PingContext))
	health.Register("system", metrics.SystemResourceCheck(metrics.ResourceLimits{
		MemoryPercent: 90,
		DiskPercent:   90,
		DiskPath:      filepath.Dir(sqliteCfg.Path),
	}))

	var store alertStore = repos.Alerts
	if cfg.Database.Driver == "postgres" {
		pool, err := postgres.Connect(ctx, cfg.Database.DSN, cfg.Database.MaxConnections)
		if err != nil {
			return err
		}
		defer pool.Close()

		pgRepo := postgres.NewAlertRepository(pool, log.Logger)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		store = pgRepo
		health.Register("postgres", metrics.PingCheck(pool.Ping))
	}

	clk := clock.New()
	sched := scheduler.New(clk, log.Logger)

	// Notification fan-out
	channel := notify.NewChannel(log.Logger, 10*time.Second)
	channel.Subscribe(notify.AllTopics, "log", notify.LogSink(log.Logger))

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub(websocket.HubConfig{
		PingInterval:   time.Duration(cfg.WebSocket.PingInterval) * time.Second,
		PongTimeout:    time.Duration(cfg.WebSocket.PongTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.WebSocket.WriteTimeout) * time.Second,
		MaxMessageSize: int64(cfg.WebSocket.MaxMessageSize),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log.Logger)
	go hub.Run(hubCtx)
	channel.Subscribe(notify.AllTopics, "websocket", notify.WebsocketSink(hub))

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(kafka.OptionsFromConfig(cfg.Kafka), log.Logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka producer: %w", err)
		}
		channel.Subscribe(notify.AllTopics, "kafka", notify.KafkaSink(producer))
	}

	// Alert lifecycle
	manager := alerts.NewManager(
		monitor.ManagerConfigFromConfig(cfg.Monitoring),
		sched,
		log.Logger,
		alerts.WithClock(clk),
		alerts.WithRepository(store),
		alerts.WithPublisher(channel),
	)

	specs, err := monitor.SpecsFromConfig(cfg.Monitoring.Thresholds)
	if err != nil {
		return err
	}

	dedupCfg := monitor.DedupConfigFromConfig(cfg.Dedup)
	var history dedup.History = repos.Insights
	if cfg.Redis.Enabled {
		redisHistory, err := cache.NewRedisHistory(cfg.Redis, log.Logger)
		if err != nil {
			return err
		}
		defer redisHistory.Close()
		history = redisHistory
		health.Register("redis", metrics.PingCheck(redisHistory.Ping))
	}
	filter := dedup.NewFilter(dedupCfg, history, log.Logger, dedup.WithClock(clk))
	orchestrator := insights.NewOrchestrator(
		insights.Config{ProducerTimeout: config.ParseDuration(cfg.Analysis.ProducerTimeout, 30*time.Second)},
		filter,
		manager,
		log.Logger,
		insights.WithClock(clk),
		insights.WithPublisher(channel),
	)
	for _, tc := range monitor.TrendConfigsFromConfig(cfg.Analysis.TrendProducers) {
		trend, err := insights.NewTrendProducer(tc, repos.Samples, clk)
		if err != nil {
			return err
		}
		if err := orchestrator.Register(trend); err != nil {
			return err
		}
	}

	service, err := monitor.NewService(monitor.ServiceConfig{
		MonitoringEnabled: cfg.Monitoring.Enabled,
		AnalysisEnabled:   cfg.Analysis.Enabled,
		CheckInterval:     time.Duration(cfg.Monitoring.CheckIntervalMinutes) * time.Minute,
		AnalysisInterval:  time.Duration(cfg.Analysis.IntervalMinutes) * time.Minute,
		MetricWindow:      config.ParseDuration(cfg.Monitoring.MetricWindow, 24*time.Hour),
		Specs:             specs,
		Manager:           manager,
		Orchestrator:      orchestrator,
		Source:            repos.Samples,
		Scheduler:         sched,
		Repository:        store,
		Clock:             clk,
	}, log.Logger)
	if err != nil {
		return err
	}

	// Retention of dedup history and metric samples
	retention := database.RetentionPolicy{
		InsightHistory: retentionWindow(dedupCfg),
		MetricSamples:  time.Duration(cfg.Database.SampleRetentionDays) * 24 * time.Hour,
	}
	if err := sched.Every("retention", time.Hour, func() {
		pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		_, _ = repos.Prune(pruneCtx, retention, clk.Now(), log.Logger)
	}); err != nil {
		return err
	}

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitoring service: %w", err)
	}

	router := api.NewRouter(cfg, handlers.Dependencies{
		Service: service,
		Store:   store,
		Samples: repos.Samples,
		Hub:     hub,
		Health:  health,
	}, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down alert engine...")
	case err := <-serverErr:
		log.WithError(err).Error("HTTP server failed")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server forced to shutdown")
	}
	if err := service.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to stop monitoring service")
	}
	if err := channel.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Pending notifications were dropped")
	}
	stopHub()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.WithError(err).Warn("Failed to close kafka producer")
		}
	}

	log.Info("Alert engine exited")
	return nil
}

// retentionWindow keeps insight history as long as any dedup rule looks back
func retentionWindow(cfg dedup.Config) time.Duration {
	window := cfg.HoursBack
	if cfg.FuzzyWindow > window {
		window = cfg.FuzzyWindow
	}
	if cfg.RateLimit.Window > window {
		window = cfg.RateLimit.Window
	}
	return window
}
