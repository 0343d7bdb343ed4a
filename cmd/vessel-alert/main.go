package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/vessel-alert-engine/internal/alerts"
	"github.com/mr1hm/vessel-alert-engine/internal/api"
	"github.com/mr1hm/vessel-alert-engine/internal/config"
	"github.com/mr1hm/vessel-alert-engine/internal/contacts"
	"github.com/mr1hm/vessel-alert-engine/internal/escalation"
	"github.com/mr1hm/vessel-alert-engine/internal/geo"
	"github.com/mr1hm/vessel-alert-engine/internal/ingestion"
	"github.com/mr1hm/vessel-alert-engine/internal/logging"
	"github.com/mr1hm/vessel-alert-engine/internal/monitor"
	"github.com/mr1hm/vessel-alert-engine/internal/notify"
	"github.com/mr1hm/vessel-alert-engine/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup("vessel-alert", cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	store, err := repository.NewSQLiteStore(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.SeedDefaultPolicies(ctx); err != nil {
		logging.Fatalf("Failed to seed escalation policies: %v", err)
	}

	// Notification pipeline
	registry := notify.NewRegistry(cfg.Delivery.ProviderRatePerSec, notify.LogProviders()...)
	dispatcher := notify.NewDispatcher(store, registry, cfg.Delivery.MaxAttempts, cfg.Worker.Count, cfg.Worker.BufferSize)
	dispatcher.Start(ctx)

	// Re-queue deliveries that were pending when the last process died.
	if n, err := dispatcher.RecoverUnsent(ctx); err != nil {
		slog.Error("delivery recovery failed", "error", err)
	} else if n > 0 {
		slog.Info("recovered unsent deliveries", "count", n)
	}

	resolver := contacts.NewResolver(store)
	scheduler := escalation.NewScheduler(store, resolver, dispatcher, cfg.Escalation.PollInterval)
	scheduler.Start(ctx)

	broadcaster := alerts.NewBroadcaster()
	manager := alerts.NewManager(store, resolver, dispatcher, scheduler, broadcaster,
		cfg.Delivery.AlertTTL, cfg.Delivery.DuplicateWindow)

	// Proximity sweep over the active fleet
	mon := monitor.NewMonitor(store, manager, geo.Bands(cfg.Zones.RadiusBands()),
		cfg.Monitor.SweepInterval, cfg.Monitor.PositionMaxAge,
		cfg.Worker.Count, cfg.Worker.BufferSize)
	mon.Start(ctx)

	// Upstream feeds
	ingest := ingestion.NewManager(cfg, store)
	ingest.Start(ctx)

	go runExpirySweep(ctx, manager, cfg.Monitor.SweepInterval)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RatePerSec, cfg.Server.RateBurst))

	handler := api.NewHandler(manager, store, broadcaster)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	ingest.Stop()
	mon.Stop()
	scheduler.Stop()
	dispatcher.Stop()
	broadcaster.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

// runExpirySweep periodically persists expired status for alerts past
// their TTL so list queries and metrics stay honest.
func runExpirySweep(ctx context.Context, manager *alerts.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := manager.SweepExpired(ctx); err != nil {
				slog.Error("expiry sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("expired stale alerts", "count", n)
			}
		}
	}
}
