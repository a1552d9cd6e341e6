package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/taskfleet/supervisor/agentclient"
	"github.com/taskfleet/supervisor/api"
	"github.com/taskfleet/supervisor/config"
	"github.com/taskfleet/supervisor/policy"
	"github.com/taskfleet/supervisor/registry"
	"github.com/taskfleet/supervisor/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting supervisor...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Registry file: %s", cfg.RegistryFile)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Sweep interval: %s", cfg.SweepInterval)

	// Initialize history store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Load the agent registry. An unreadable file degrades to an empty
	// registry rather than aborting startup.
	reg := registry.NewStore(cfg.RegistryFile)
	if err := reg.Load(); err != nil {
		log.Printf("ERROR: failed to load registry: %v", err)
	}

	// Initialize health reconciliation
	prober := registry.NewProber(cfg.ProbeTimeout)
	reconciler := registry.NewReconciler(reg, prober, db, cfg.SweepInterval)

	// Initialize agent client
	agentClient := agentclient.NewClient(cfg.AgentTimeout)

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize handlers
	h := api.NewHandler(reg, reconciler, agentClient, db, cfg, policyEngine)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Register routes
	h.RegisterRoutes(e)

	// Start periodic reconciliation sweeps
	sweepCtx, cancelSweeps := context.WithCancel(ctx)
	go reconciler.Run(sweepCtx)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Supervisor API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down supervisor...")

	// Stop sweeps first so no probe outlives the server
	cancelSweeps()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Supervisor stopped")
}
