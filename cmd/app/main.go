// Package main is the entrypoint for the email2snow-agent application.
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

	"github.com/cragr/email2snow-agent/internal/config"
	"github.com/cragr/email2snow-agent/internal/logging"
	"github.com/cragr/email2snow-agent/internal/servicenow"
	"github.com/cragr/email2snow-agent/internal/ticket"
	"github.com/cragr/email2snow-agent/internal/tracker"
	"github.com/cragr/email2snow-agent/internal/webhook"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("info").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting email2snow-agent")

	logger.Info("configuration loaded",
		"http_port", cfg.HTTPPort,
		"servicenow_instance_url", cfg.ServiceNowInstanceURL,
		"tracker_interval", cfg.TrackerInterval,
		"create_unknown_users", cfg.CreateUnknownUsers,
	)

	// Create ServiceNow client, intake agent and tracker
	snowClient := servicenow.NewClient(cfg, logging.WithComponent(logger, "servicenow"))
	agent := ticket.NewAgent(snowClient, cfg, logging.WithComponent(logger, "ticket"))
	ticketTracker := tracker.New(agent, logging.WithComponent(logger, "tracker"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !agent.ValidateConnection(ctx) {
		logger.Warn("ServiceNow connection validation failed, continuing startup")
	}

	// Setup HTTP routes
	intakeHandler := webhook.NewHandler(agent, ticketTracker, logging.WithComponent(logger, "webhook"))

	mux := http.NewServeMux()

	// Ticket intake endpoint
	mux.Handle("/tickets", intakeHandler)

	// Health and readiness probes
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", readyzHandler)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	addr := fmt.Sprintf(":%s", cfg.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Periodic tracker sweep
	go func() {
		ticker := time.NewTicker(cfg.TrackerInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ticketTracker.CheckAll(ctx)
			}
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// healthzHandler handles liveness probe requests.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// readyzHandler handles readiness probe requests.
func readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
