package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/cloudpulse/cloudpulse-monitor/internal/database"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/config"
	apperrors "github.com/cloudpulse/cloudpulse-monitor/pkg/errors"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/types"
)

// Seeds the database with the initial service fleet plus sample logs and
// metrics for local development. Existing services are left untouched.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repos := database.NewRepositories(db)

	if err := seedServices(ctx, repos.Services); err != nil {
		log.Fatalf("Failed to seed services: %v", err)
	}
	if err := seedLogs(ctx, repos.Logs); err != nil {
		log.Fatalf("Failed to seed logs: %v", err)
	}
	if err := seedMetrics(ctx, repos.Metrics); err != nil {
		log.Fatalf("Failed to seed metrics: %v", err)
	}

	log.Println("Database seeding completed successfully")
}

func seedServices(ctx context.Context, repo *database.ServiceRepository) error {
	services := []types.Service{
		{ID: "api-gateway", Name: "API Gateway", Status: types.ServiceStatusOnline, Uptime: 99.95},
		{ID: "user-service", Name: "User Service", Status: types.ServiceStatusOnline, Uptime: 99.87},
		{ID: "notification-service", Name: "Notification Service", Status: types.ServiceStatusDegraded, Uptime: 95.23},
		{ID: "payment-service", Name: "Payment Service", Status: types.ServiceStatusOnline, Uptime: 99.99},
		{ID: "analytics-service", Name: "Analytics Service", Status: types.ServiceStatusOffline, Uptime: 0.0},
	}

	for i := range services {
		existing, err := repo.GetByID(ctx, services[i].ID)
		if err != nil && !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return err
		}
		if existing != nil {
			continue
		}
		if err := repo.Create(ctx, &services[i]); err != nil {
			return err
		}
		log.Printf("Created service: %s", services[i].Name)
	}
	return nil
}

func seedLogs(ctx context.Context, repo *database.LogRepository) error {
	entries := []types.LogEntry{
		{Level: types.LogLevelInfo, Message: "Service started successfully", ServiceName: "api-gateway"},
		{Level: types.LogLevelWarning, Message: "High memory usage detected", ServiceName: "user-service"},
		{Level: types.LogLevelError, Message: "Database connection timeout", ServiceName: "notification-service"},
		{Level: types.LogLevelInfo, Message: "Payment processed successfully", ServiceName: "payment-service"},
		{Level: types.LogLevelError, Message: "Service unavailable", ServiceName: "analytics-service"},
	}

	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			return err
		}
	}
	log.Println("Sample logs created")
	return nil
}

func seedMetrics(ctx context.Context, repo *database.MetricRepository) error {
	samples := []types.Metric{
		{MetricName: "cpu_usage", Value: 45.2, Unit: "%"},
		{MetricName: "memory_usage", Value: 68.7, Unit: "%"},
		{MetricName: "network_traffic", Value: 342.5, Unit: "MB/s"},
		{MetricName: "disk_usage", Value: 78.3, Unit: "%"},
		{MetricName: "response_time", Value: 125.4, Unit: "ms"},
	}

	for i := range samples {
		if err := repo.Insert(ctx, &samples[i]); err != nil {
			return err
		}
	}
	log.Println("Sample metrics created")
	return nil
}
