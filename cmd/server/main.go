package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentinel-ops/sentinel-backend-go/internal/api"
	"github.com/sentinel-ops/sentinel-backend-go/internal/api/handlers"
	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/alerting"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/audit"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/delivery"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/metrics"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/onboarding"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/rules"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/scheduler"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database"
	"github.com/sentinel-ops/sentinel-backend-go/internal/websocket"
	"github.com/sentinel-ops/sentinel-backend-go/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	logger.Configure(log, cfg.Logging.Level, cfg.Logging.Format)

	log.WithFields(map[string]interface{}{
		"port": cfg.Server.Port,
		"mode": cfg.Server.Mode,
	}).Info("Starting alerting service")

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	repos := database.NewRepositories(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Live alert feed
	hub := websocket.NewHub(log)
	go hub.Run()

	auditor := audit.NewLogger(repos.Audit, log)
	dispatcher := delivery.NewDispatcher(cfg.Delivery, repos.Delivery, auditor, log)
	suppressor := alerting.NewSuppressor(cfg.Alerting.Suppressions, log)
	machine := alerting.NewMachine(repos.Alert, repos.Delivery, auditor, dispatcher, suppressor, hub, log)

	// Metric sources
	registry := metrics.NewRegistry()
	discovery := onboarding.NewService(cfg.Onboarding, repos.Resource, log)

	if cfg.Sources.AWS.Enabled {
		cw, err := metrics.NewCloudWatchSource(ctx, cfg.Sources.AWS, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize CloudWatch source")
		}
		registry.Register("aws", cw)
		discovery.RegisterAWS(cw)
	}
	if cfg.Sources.Prometheus.Enabled {
		prom := metrics.NewPrometheusSource(cfg.Sources.Prometheus, log)
		registry.Register("prometheus", prom)
		discovery.RegisterPrometheus(prom)
	}
	if cfg.Sources.Local.Enabled {
		local := metrics.NewLocalSource(log)
		registry.Register("local", local)
		discovery.RegisterLocal(local)
	}

	// Threshold rules with hot reload
	loader := rules.NewLoader(cfg.Alerting, log)
	if err := loader.Load(); err != nil {
		log.WithError(err).Fatal("Failed to load threshold rules")
	}
	watchStop := make(chan struct{})
	if err := loader.Watch(watchStop); err != nil {
		log.WithError(err).Warn("Rules hot reload unavailable")
	}

	engine := scheduler.NewEngine(cfg.Scheduler, registry, loader, machine, repos.Resource, repos.Alert, auditor, log)
	if err := engine.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start evaluation engine")
	}
	if err := discovery.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start resource discovery")
	}

	h := handlers.NewHandlers(cfg, db, repos, machine, auditor, loader, discovery, hub, log)
	router := api.NewRouter(cfg, h, hub, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")

	close(watchStop)
	discovery.Stop()
	engine.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
	hub.Stop()

	log.Info("Shutdown complete")
}
