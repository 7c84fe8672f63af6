package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "rentloop-backend/internal/api/grpc"
	httpapi "rentloop-backend/internal/api/http"
	"rentloop-backend/internal/app"
	"rentloop-backend/internal/config"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/scheduler"
	"rentloop-backend/internal/security"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	withScheduler := flag.Bool("with-scheduler", false, "Run the cron jobs in this process (single-node and memory storage setups)")
	flag.Parse()

	// A missing .env is fine; the environment may already be populated.
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
	logger.Info("Starting Rentloop order service...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "grpc_address", cfg.GetServerAddress(), "http_address", cfg.GetHTTPAddress(), "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Repositories
	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer stores.Close()

	// Initialize Services
	services := app.NewServices(stores, cfg)

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute)

	// Set up gRPC server
	lis, err := net.Listen("tcp", cfg.GetServerAddress())
	if err != nil {
		logger.Error("Failed to listen", "error", err, "address", cfg.GetServerAddress())
		log.Fatalf("Failed to listen: %v", err)
	}
	grpcServer, healthServer := api.NewServer(api.NewOrderHandler(services.Orders, services.Milestones), tokenManager)

	go func() {
		logger.Info("gRPC server listening", "address", cfg.GetServerAddress())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("Failed to serve gRPC", "error", err)
			stop()
		}
	}()

	// Set up HTTP JSON API
	var httpServer *http.Server
	if addr := cfg.GetHTTPAddress(); addr != "" {
		router := mux.NewRouter()
		httpapi.RegisterOrderRoutes(router,
			httpapi.NewOrderHandler(services.Orders, services.Milestones, services.Penalties),
			tokenManager,
			httpapi.RouterOptions{
				RateLimitRPS:   cfg.HTTP.RateLimitRPS,
				RateLimitBurst: cfg.HTTP.RateLimitBurst,
				RateLimitIdle:  time.Duration(cfg.HTTP.RateLimitIdleMinutes) * time.Minute,
				IdempotencyTTL: time.Duration(cfg.HTTP.IdempotencyTTLMinutes) * time.Minute,
			})
		httpServer = &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "address", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "error", err)
				stop()
			}
		}()
	}

	// Optional in-process scheduler
	var cronScheduler *scheduler.Scheduler
	if *withScheduler {
		runner, cleanup, err := app.NewJobRunner(ctx, stores, services, cfg)
		if err != nil {
			logger.Error("Failed to set up jobs", "error", err)
			log.Fatalf("Failed to set up jobs: %v", err)
		}
		defer cleanup()
		cronScheduler = scheduler.NewScheduler(runner)
		cronScheduler.Start()
	}

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down...")
	healthServer.SetServingStatus(api.OrderServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	if cronScheduler != nil {
		cronScheduler.Stop()
	}
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", "error", err)
		}
		cancel()
	}
	grpcServer.GracefulStop()
	logger.Info("Server stopped. Goodbye!")
}
