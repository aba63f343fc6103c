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

	"github.com/joho/godotenv"

	"github.com/cloudpulse/cloudpulse-monitor/internal/api"
	"github.com/cloudpulse/cloudpulse-monitor/internal/availability"
	"github.com/cloudpulse/cloudpulse-monitor/internal/cache"
	"github.com/cloudpulse/cloudpulse-monitor/internal/database"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/config"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/logging"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/metrics"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/tracing"
)

const version = "1.0.0"

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "cloudpulse-api",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	// Open without pinging: an unreachable database must not prevent
	// startup. The availability layer owns reachability from here on.
	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Error("Failed to initialize database handle", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	prober := availability.NewProber(db, cfg.Availability.ProbeTimeout, logger)
	availCache := availability.NewCache(prober, cfg.Availability.CheckInterval, logger)

	metricsService := metrics.NewMetrics(&metrics.Config{
		Namespace: cfg.Metrics.Namespace,
		Enabled:   cfg.Metrics.Enabled,
	})
	availCache.OnProbe(func(result availability.ProbeResult) {
		metricsService.RecordProbe(result.Success, result.Duration)
	})

	gate := availability.NewGate(availCache, availability.OpenerFunc(
		func(ctx context.Context) (availability.Handle, error) {
			return db.Conn(ctx)
		}), logger)

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}

	warmup := func(ctx context.Context) error {
		migrator, err := database.NewMigrator(&cfg.Database, migrationsPath)
		if err != nil {
			return err
		}
		defer migrator.Close()
		return migrator.Up()
	}

	bootstrapper := availability.NewBootstrapper(prober, availCache, availability.RetryPlan{
		MaxAttempts:       cfg.Availability.MaxAttempts,
		InitialDelay:      cfg.Availability.InitialDelay,
		BackoffMultiplier: cfg.Availability.BackoffMultiplier,
	}, warmup, logger)

	state := bootstrapper.Run(context.Background())
	logger.Info("Startup sequence finished", "boot_state", state.String())

	// Redis is optional: without it rate limiting and the status cache
	// are disabled, everything else works.
	var redisClient *cache.RedisClient
	if rc, err := cache.NewRedisClient(&cfg.Redis); err != nil {
		logger.Warn("Redis unavailable, continuing without it", "error", err.Error())
	} else {
		redisClient = rc
		defer redisClient.Close()
	}

	var tracingService *tracing.TracingService
	if cfg.Tracing.Enabled {
		tracingService, err = tracing.NewTracingService(&tracing.Config{
			ServiceName:    "cloudpulse-api",
			ServiceVersion: version,
			Environment:    cfg.Tracing.Environment,
			JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
			SamplingRate:   cfg.Tracing.SamplingRate,
			Enabled:        true,
		})
		if err != nil {
			logger.Warn("Tracing disabled", "error", err.Error())
			tracingService = nil
		}
	}

	collectorCtx, stopCollector := context.WithCancel(context.Background())
	collector := metrics.NewCollector(metricsService, db, func() bool {
		return availCache.Snapshot().Available
	}, 15*time.Second)
	go collector.Start(collectorCtx)

	repos := database.NewRepositories(db)

	router := api.NewRouter(api.Deps{
		Config:       cfg,
		Logger:       logger,
		Repos:        repos,
		Gate:         gate,
		Availability: availCache,
		Bootstrapper: bootstrapper,
		Redis:        redisClient,
		Metrics:      metricsService,
		Tracing:      tracingService,
		Version:      version,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting API server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	stopCollector()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err.Error())
	}

	if tracingService != nil {
		if err := tracingService.Shutdown(ctx); err != nil {
			logger.Warn("Tracing shutdown failed", "error", err.Error())
		}
	}

	logger.Info("Server exited")
}
