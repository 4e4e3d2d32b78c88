package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"dev/bravebird/pageload-verifier/pkg/config"
	"dev/bravebird/pageload-verifier/pkg/logging"
	"dev/bravebird/pageload-verifier/pkg/temporal/activities"
	"dev/bravebird/pageload-verifier/pkg/temporal/workflows"
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

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create Temporal client")
	}
	defer c.Close()

	// Create activities
	acts := activities.NewActivities(cfg, log)

	// Each activity owns a browser, so the pool is bounded by MaxConcurrent
	w := worker.New(c, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.MaxConcurrent,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	// Register workflows
	w.RegisterWorkflow(workflows.PageVerificationWorkflow)
	w.RegisterWorkflow(workflows.BatchVerificationWorkflow)

	// Register activities
	w.RegisterActivityWithOptions(acts.VerifyPageActivity, activity.RegisterOptions{Name: workflows.VerifyPageActivityName})

	log.WithFields(logrus.Fields{
		"task_queue":     cfg.TaskQueue,
		"temporal_host":  cfg.TemporalHost,
		"max_concurrent": cfg.MaxConcurrent,
	}).Info("Starting Temporal worker")

	// Start worker
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.WithError(err).Fatal("Worker failed")
	}
}
