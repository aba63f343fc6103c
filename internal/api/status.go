package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cloudpulse/cloudpulse-monitor/internal/availability"
	"github.com/cloudpulse/cloudpulse-monitor/internal/cache"
	"github.com/cloudpulse/cloudpulse-monitor/internal/database"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/errors"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/logging"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/metrics"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/types"
)

const statusCacheKey = "system_status"
const statusCacheTTL = 10 * time.Second

// StatusHandler serves the aggregate system status endpoints.
type StatusHandler struct {
	services     *database.ServiceRepository
	logs         *database.LogRepository
	gate         *availability.Gate
	availability *availability.Cache
	redis        *cache.RedisClient
	logger       *logging.Logger
	metrics      *metrics.Metrics
	startTime    time.Time
}

// NewStatusHandler creates a status handler. redis may be nil, which
// disables the read-through cache.
func NewStatusHandler(services *database.ServiceRepository, logs *database.LogRepository, gate *availability.Gate, availCache *availability.Cache, redis *cache.RedisClient, logger *logging.Logger, m *metrics.Metrics) *StatusHandler {
	return &StatusHandler{
		services:     services,
		logs:         logs,
		gate:         gate,
		availability: availCache,
		redis:        redis,
		logger:       logger,
		metrics:      m,
		startTime:    time.Now(),
	}
}

// computeHealth folds service statuses and the recent error count into an
// overall verdict and score.
func computeHealth(services []types.Service, recentErrors int64) (string, float64) {
	if len(services) == 0 {
		return "warning", 50.0
	}

	var online, degraded, offline int
	for _, svc := range services {
		switch svc.Status {
		case types.ServiceStatusOnline:
			online++
		case types.ServiceStatusDegraded:
			degraded++
		case types.ServiceStatusOffline:
			offline++
		}
	}

	score := float64(online*100+degraded*50) / float64(len(services))

	penalty := float64(recentErrors) * 2
	if penalty > 30 {
		penalty = 30
	}
	score -= penalty
	if score < 0 {
		score = 0
	}

	switch {
	case offline > 0 || score < 50:
		return "critical", score
	case degraded > 0 || score < 80 || recentErrors > 10:
		return "warning", score
	default:
		return "healthy", score
	}
}

func (h *StatusHandler) buildStatus(ctx context.Context) (types.SystemStatus, error) {
	session, err := h.gate.Acquire(ctx)
	if err != nil {
		if errors.IsConnectivityError(err) {
			h.metrics.RecordGateRejection()
		}
		return types.SystemStatus{}, err
	}
	defer session.Release()

	services, err := h.services.List(ctx)
	if err != nil {
		return types.SystemStatus{}, err
	}
	if len(services) == 0 {
		services = defaultFleet()
	}

	oneHourAgo := time.Now().Add(-time.Hour)
	recent, err := h.logs.List(ctx, database.LogFilter{
		Level: types.LogLevelError,
		Since: oneHourAgo,
		Limit: 1000,
	})
	if err != nil {
		return types.SystemStatus{}, err
	}
	recentErrors := int64(len(recent))

	overall, score := computeHealth(services, recentErrors)

	var online int
	for _, svc := range services {
		if svc.Status == types.ServiceStatusOnline {
			online++
		}
	}

	return types.SystemStatus{
		OverallStatus:  overall,
		HealthScore:    score,
		ServicesOnline: online,
		ServicesTotal:  len(services),
		CriticalAlerts: recentErrors,
		LastUpdated:    time.Now().UTC(),
	}, nil
}

// System returns the aggregate system status. Served from the Redis
// read-through cache when warm, degrades to a synthetic verdict when the
// database is unreachable.
func (h *StatusHandler) System(c *gin.Context) {
	ctx := c.Request.Context()

	if h.redis != nil {
		var cached types.SystemStatus
		if err := h.redis.GetJSON(ctx, statusCacheKey, &cached); err == nil {
			SuccessResponse(c, cached)
			return
		}
	}

	status, degraded, err := availability.ResolveRead(ctx, h.logger,
		h.buildStatus,
		fallbackSystemStatus,
	)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if degraded {
		h.metrics.RecordFallback("status")
		FallbackResponse(c, status)
		return
	}

	if h.redis != nil {
		if err := h.redis.SetJSON(ctx, statusCacheKey, status, statusCacheTTL); err != nil {
			h.logger.Warn("Failed to cache system status",
				"error", err.Error(),
			)
		}
	}

	SuccessResponse(c, status)
}

// SystemStatusDetail extends the aggregate status with the per-service
// breakdown and log counts behind it.
type SystemStatusDetail struct {
	Status       types.SystemStatus  `json:"status"`
	Services     []types.Service     `json:"services"`
	LogStats     types.LogStats      `json:"log_stats"`
	Availability availability.Status `json:"availability"`
}

func (h *StatusHandler) buildDetail(ctx context.Context) (SystemStatusDetail, error) {
	session, err := h.gate.Acquire(ctx)
	if err != nil {
		if errors.IsConnectivityError(err) {
			h.metrics.RecordGateRejection()
		}
		return SystemStatusDetail{}, err
	}
	defer session.Release()

	services, err := h.services.List(ctx)
	if err != nil {
		return SystemStatusDetail{}, err
	}
	if len(services) == 0 {
		services = defaultFleet()
	}

	stats, err := h.logs.Stats(ctx)
	if err != nil {
		return SystemStatusDetail{}, err
	}

	overall, score := computeHealth(services, stats.Errors)

	var online int
	for _, svc := range services {
		if svc.Status == types.ServiceStatusOnline {
			online++
		}
	}

	return SystemStatusDetail{
		Status: types.SystemStatus{
			OverallStatus:  overall,
			HealthScore:    score,
			ServicesOnline: online,
			ServicesTotal:  len(services),
			CriticalAlerts: stats.Errors,
			LastUpdated:    time.Now().UTC(),
		},
		Services:     services,
		LogStats:     *stats,
		Availability: h.availability.Snapshot(),
	}, nil
}

// Detailed returns the full status breakdown: aggregate verdict, the service
// fleet it was computed from, and log level counts.
func (h *StatusHandler) Detailed(c *gin.Context) {
	detail, degraded, err := availability.ResolveRead(c.Request.Context(), h.logger,
		h.buildDetail,
		func() SystemStatusDetail {
			return SystemStatusDetail{
				Status:       fallbackSystemStatus(),
				Services:     defaultFleet(),
				LogStats:     types.LogStats{},
				Availability: h.availability.Snapshot(),
			}
		},
	)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if degraded {
		h.metrics.RecordFallback("status")
		FallbackResponse(c, detail)
		return
	}
	SuccessResponse(c, detail)
}

// Uptime reports how long the process has been serving. It never touches
// the database, so it stays useful during an outage.
func (h *StatusHandler) Uptime(c *gin.Context) {
	elapsed := time.Since(h.startTime)
	SuccessResponse(c, gin.H{
		"uptime_seconds": int64(elapsed.Seconds()),
		"uptime_hours":   elapsed.Hours(),
		"started_at":     h.startTime.UTC(),
		"availability":   h.availability.Snapshot(),
	})
}

// ResetAvailability discards the cached availability verdict so the next
// request re-probes immediately. Intended for operators after a known
// database restart.
func (h *StatusHandler) ResetAvailability(c *gin.Context) {
	h.availability.Reset()
	if h.redis != nil {
		_, _ = h.redis.Del(c.Request.Context(), statusCacheKey)
	}

	h.logger.Info("Availability state reset requested")
	SuccessResponse(c, gin.H{"reset": true})
}

// Availability reports the raw cached verdict without forcing a probe.
func (h *StatusHandler) Availability(c *gin.Context) {
	SuccessResponse(c, h.availability.Snapshot())
}
