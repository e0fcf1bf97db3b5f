// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/application/container"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/caching/cleanup"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/persistence/database"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
	"github.com/PrepDeckHQ/prepdeck-go/internal/presentation/http/server"
	"github.com/PrepDeckHQ/prepdeck-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete multi-tenant startup sequence
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("PrepDeck server starting...")

	// Step 1: Create the channeled logger before anything that logs
	logger, err := logging.NewChanneledLogger(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.Startup().Info("Channeled logging initialized")

	// Step 2: Initialize tenant system
	logger.Startup().Info("Initializing tenant system...")
	tenantManager := tenant.NewManager(logger)

	// Step 3: Load tenant registry to discover all tenants
	registry, err := tenant.LoadTenantRegistry()
	if err != nil {
		return fmt.Errorf("failed to load tenant registry: %w", err)
	}

	if len(registry.Tenants) == 0 {
		logger.Startup().Info("No tenants found in registry, creating default tenant")
		if err := tenant.RegisterTenant("default"); err != nil {
			return fmt.Errorf("failed to register default tenant: %w", err)
		}
		registry, err = tenant.LoadTenantRegistry()
		if err != nil {
			return fmt.Errorf("failed to reload registry: %w", err)
		}
	}

	logger.Startup().Info("Tenant registry loaded", "tenants", len(registry.Tenants))

	// Step 4: Pre-activate inactive tenants only
	if err := tenantManager.PreActivateAllTenants(); err != nil {
		return fmt.Errorf("tenant pre-activation failed: %w", err)
	}

	// Step 5: Validate tenant activation
	if err := tenantManager.ValidatePreActivation(); err != nil {
		return fmt.Errorf("tenant validation failed: %w", err)
	}

	activeCount, err := tenantManager.GetActiveTenantCount()
	if err != nil {
		return fmt.Errorf("failed to get active tenant count: %w", err)
	}
	logger.Startup().Info("Active tenant connections verified", "activeTenants", activeCount)

	// Step 6: Ensure the schema exists for every active tenant
	for tenantID, tenantInfo := range registry.Tenants {
		if tenantInfo.Status != "active" {
			continue
		}
		tenantCtx, err := tenantManager.NewContextFromID(tenantID)
		if err != nil {
			return fmt.Errorf("failed to open tenant %s: %w", tenantID, err)
		}
		if err := database.EnsureSchema(tenantCtx.Database.Conn); err != nil {
			return fmt.Errorf("schema migration failed for tenant %s: %w", tenantID, err)
		}
		logger.Startup().Info("Schema verified", "tenantId", tenantID)
	}

	// Step 7: Create dependency injection container
	appContainer := container.NewContainer(logger, tenantManager)
	logger.Startup().Info("Dependency injection container created with singleton services")

	// Step 8: Start the sysop activity broadcaster
	go appContainer.SysOpBroadcaster.Run()

	// Step 9: Start background cleanup worker
	cleanupWorker := cleanup.NewWorker(
		tenantManager.GetCacheManager(),
		cleanup.Config{
			Interval:      config.CleanupInterval,
			TenantTimeout: config.TenantTimeout,
		},
		logger,
	)
	cleanupWorker.Start(ctx)
	logger.Startup().Info("Background cleanup worker started",
		"interval", config.CleanupInterval,
		"tenantTimeout", config.TenantTimeout)

	// Step 10: Start HTTP server
	port := os.Getenv("PORT")
	if port == "" {
		port = config.Port
	}
	httpServer := server.New(port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"activeTenants", activeCount,
		"port", port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	// Cancel background tasks
	cancelBackgroundTasks()

	// Push pending draft edits to durable storage before closing connections
	logger.Shutdown().Info("Flushing pending draft writes...")
	appContainer.DraftService.FlushAll()

	// Stop server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	// Close tenant manager
	logger.Shutdown().Info("Closing tenant manager...")
	if err := tenantManager.Close(); err != nil {
		logger.Shutdown().Error("Error closing tenant manager", "error", err.Error())
	} else {
		logger.Shutdown().Info("Tenant manager closed successfully")
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
