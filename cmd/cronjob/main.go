package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"rentloop-backend/internal/app"
	"rentloop-backend/internal/config"
	"rentloop-backend/internal/jobs"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'sweep-stale-returns', 'all')")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Rentloop Cronjob Runner...", "log_level", cfg.Log.Level)
	if cfg.Storage.Driver == "memory" {
		logger.Warn("Memory storage is private to this process; run the server with -with-scheduler instead")
	}

	ctx := context.Background()

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer stores.Close()

	services := app.NewServices(stores, cfg)

	// Initialize Job Runner
	jobRunner, cleanup, err := app.NewJobRunner(ctx, stores, services, cfg)
	if err != nil {
		logger.Error("Failed to set up jobs", "error", err)
		log.Fatalf("Failed to set up jobs: %v", err)
	}
	defer cleanup()

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if !runJobOnce(jobRunner, *runOnce) {
			cleanup()
			stores.Close()
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once. It reports false for an unknown job name.
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) bool {
	switch jobName {
	case "sweep-stale-returns":
		jobRunner.SweepStaleReturns()
	case "mark-overdue-milestones":
		jobRunner.MarkOverdueMilestones()
	case "relay-activity-log":
		jobRunner.RelayActivityLog()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - sweep-stale-returns\n")
		fmt.Printf("  - mark-overdue-milestones\n")
		fmt.Printf("  - relay-activity-log\n")
		fmt.Printf("  - all\n")
		return false
	}
	return true
}
