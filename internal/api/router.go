package api

import (
	"github.com/gin-gonic/gin"

	"github.com/cloudpulse/cloudpulse-monitor/internal/availability"
	"github.com/cloudpulse/cloudpulse-monitor/internal/cache"
	"github.com/cloudpulse/cloudpulse-monitor/internal/database"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/config"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/logging"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/metrics"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/tracing"
)

// Deps bundles everything the router needs.
type Deps struct {
	Config       *config.Config
	Logger       *logging.Logger
	Repos        *database.Repositories
	Gate         *availability.Gate
	Availability *availability.Cache
	Bootstrapper *availability.Bootstrapper
	Redis        *cache.RedisClient
	Metrics      *metrics.Metrics
	Tracing      *tracing.TracingService
	Version      string
}

// NewRouter creates and configures the API router
func NewRouter(deps Deps) *gin.Engine {
	if deps.Config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(deps.Logger))
	router.Use(RecoveryMiddleware(deps.Logger))
	router.Use(CORSMiddleware(&deps.Config.Server))
	router.Use(SecurityHeadersMiddleware())
	if deps.Tracing != nil {
		router.Use(deps.Tracing.TracingMiddleware())
	}
	if deps.Metrics != nil {
		router.Use(deps.Metrics.PrometheusMiddleware())
	}
	router.Use(RateLimitMiddleware(deps.Redis, 100, 0))

	healthHandler := NewHealthHandler(deps.Availability, deps.Bootstrapper, deps.Redis, deps.Version)
	router.GET("/health", healthHandler.Health)
	router.GET("/readiness", healthHandler.Readiness)

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.GET("/api/v1", func(c *gin.Context) {
		SuccessResponse(c, map[string]interface{}{
			"name":    "CloudPulse Monitor API",
			"version": deps.Version,
			"status":  "ok",
		})
	})

	serviceHandler := NewServiceHandler(deps.Repos.Services, deps.Gate, deps.Logger, deps.Metrics)
	logHandler := NewLogHandler(deps.Repos.Logs, deps.Gate, deps.Logger, deps.Metrics)
	metricHandler := NewMetricHandler(deps.Repos.Metrics, deps.Gate, deps.Logger, deps.Metrics)
	statusHandler := NewStatusHandler(deps.Repos.Services, deps.Repos.Logs, deps.Gate, deps.Availability, deps.Redis, deps.Logger, deps.Metrics)

	v1 := router.Group("/api/v1")
	{
		services := v1.Group("/services")
		{
			services.GET("", serviceHandler.List)
			services.POST("", serviceHandler.Create)
			services.GET("/:id", serviceHandler.Get)
			services.GET("/:id/health", serviceHandler.Health)
			services.PATCH("/:id/status", serviceHandler.UpdateStatus)
		}

		logs := v1.Group("/logs")
		{
			logs.GET("", logHandler.List)
			logs.POST("", logHandler.Create)
			logs.GET("/levels", logHandler.Levels)
			logs.GET("/services", logHandler.Services)
			logs.GET("/stats", logHandler.Stats)
		}

		metricsGroup := v1.Group("/metrics")
		{
			metricsGroup.GET("/system", metricHandler.System)
			metricsGroup.POST("", metricHandler.Create)
			metricsGroup.GET("/:name/history", metricHandler.History)
			metricsGroup.GET("/:name/summary", metricHandler.Summary)
		}

		status := v1.Group("/status")
		{
			status.GET("", statusHandler.System)
			status.GET("/detailed", statusHandler.Detailed)
			status.GET("/uptime", statusHandler.Uptime)
			status.GET("/availability", statusHandler.Availability)
		}

		admin := v1.Group("/admin")
		{
			admin.POST("/availability/reset", statusHandler.ResetAvailability)
			admin.DELETE("/logs", logHandler.Purge)
		}
	}

	return router
}
