package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"

	"dev/bravebird/pageload-verifier/pkg/api"
	"dev/bravebird/pageload-verifier/pkg/config"
	"dev/bravebird/pageload-verifier/pkg/database"
	"dev/bravebird/pageload-verifier/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid logging configuration")
	}

	log.Info("Starting Page Verification API Server")

	// Initialize database
	var store api.Store
	db, err := database.New(cfg.MySQLDSN)
	if err != nil {
		log.WithError(err).Warn("Failed to connect to database, running without persistence")
	} else {
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(ctx)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("Failed to migrate database")
		}
		store = db
	}

	// Initialize Temporal client
	temporalClient, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create Temporal client")
	}
	defer temporalClient.Close()

	handlers := api.NewHandlers(store, temporalClient, api.Options{
		TaskQueue: cfg.TaskQueue,
		Headless:  cfg.Headless,
	}, log)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithField("port", cfg.Port).Info("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}

	log.Info("Server stopped")
}
