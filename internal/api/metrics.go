package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cloudpulse/cloudpulse-monitor/internal/availability"
	"github.com/cloudpulse/cloudpulse-monitor/internal/database"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/errors"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/logging"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/metrics"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/types"
)

// MetricHandler serves the system metric endpoints.
type MetricHandler struct {
	repo    *database.MetricRepository
	gate    *availability.Gate
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewMetricHandler creates a metric handler.
func NewMetricHandler(repo *database.MetricRepository, gate *availability.Gate, logger *logging.Logger, m *metrics.Metrics) *MetricHandler {
	return &MetricHandler{
		repo:    repo,
		gate:    gate,
		logger:  logger,
		metrics: m,
	}
}

// System returns the current system metrics snapshot assembled from the
// latest sample of each metric.
func (h *MetricHandler) System(c *gin.Context) {
	snapshot, degraded, err := availability.ResolveRead(c.Request.Context(), h.logger,
		func(ctx context.Context) (types.SystemMetrics, error) {
			session, err := h.gate.Acquire(ctx)
			if err != nil {
				h.recordRejection(err)
				return types.SystemMetrics{}, err
			}
			defer session.Release()

			latest, err := h.repo.Latest(ctx)
			if err != nil {
				return types.SystemMetrics{}, err
			}
			return assembleSystemMetrics(latest), nil
		},
		fallbackSystemMetrics,
	)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if degraded {
		h.metrics.RecordFallback("metrics")
		FallbackResponse(c, snapshot)
		return
	}
	SuccessResponse(c, snapshot)
}

// assembleSystemMetrics folds the latest per-metric samples into the
// dashboard snapshot shape.
func assembleSystemMetrics(latest []types.Metric) types.SystemMetrics {
	snapshot := types.SystemMetrics{
		OverallHealth: "healthy",
		Timestamp:     time.Now().UTC(),
	}

	for _, m := range latest {
		switch m.MetricName {
		case "cpu_usage":
			snapshot.CPUUsage = m.Value
		case "memory_usage":
			snapshot.MemoryUsage = m.Value
		case "network_traffic":
			snapshot.NetworkTraffic = m.Value
		case "container_count":
			snapshot.ContainerCount = int(m.Value)
		}
		if m.Timestamp.After(snapshot.Timestamp) {
			snapshot.Timestamp = m.Timestamp
		}
	}

	switch {
	case snapshot.CPUUsage > 90 || snapshot.MemoryUsage > 90:
		snapshot.OverallHealth = "critical"
	case snapshot.CPUUsage > 75 || snapshot.MemoryUsage > 80:
		snapshot.OverallHealth = "warning"
	}

	return snapshot
}

// History returns samples for one metric over a time window.
func (h *MetricHandler) History(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		BadRequestResponse(c, "metric name is required")
		return
	}

	hours := 1
	if v := c.Query("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 168 {
			ErrorResponseFromError(c, errors.NewValidationError("hours must be between 1 and 168"))
			return
		}
		hours = n
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 10000 {
			ErrorResponseFromError(c, errors.NewValidationError("limit must be between 1 and 10000"))
			return
		}
		limit = n
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	history, degraded, err := availability.ResolveRead(c.Request.Context(), h.logger,
		func(ctx context.Context) ([]types.Metric, error) {
			session, err := h.gate.Acquire(ctx)
			if err != nil {
				h.recordRejection(err)
				return nil, err
			}
			defer session.Release()
			return h.repo.History(ctx, name, since, limit)
		},
		func() []types.Metric { return []types.Metric{} },
	)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if degraded {
		h.metrics.RecordFallback("metrics")
		FallbackResponse(c, history)
		return
	}
	SuccessResponse(c, history)
}

// Summary returns min, max, and average for one metric over a window.
func (h *MetricHandler) Summary(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		BadRequestResponse(c, "metric name is required")
		return
	}

	hours := 24
	if v := c.Query("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 168 {
			ErrorResponseFromError(c, errors.NewValidationError("hours must be between 1 and 168"))
			return
		}
		hours = n
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	summary, degraded, err := availability.ResolveRead(c.Request.Context(), h.logger,
		func(ctx context.Context) (*types.MetricSummary, error) {
			session, err := h.gate.Acquire(ctx)
			if err != nil {
				h.recordRejection(err)
				return nil, err
			}
			defer session.Release()
			return h.repo.Summary(ctx, name, since)
		},
		func() *types.MetricSummary { return &types.MetricSummary{MetricName: name} },
	)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if degraded {
		h.metrics.RecordFallback("metrics")
		FallbackResponse(c, summary)
		return
	}
	SuccessResponse(c, summary)
}

// CreateMetricRequest is the payload for ingesting a metric sample.
type CreateMetricRequest struct {
	MetricName string     `json:"metric_name" binding:"required,min=1,max=50"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit" binding:"max=20"`
	Timestamp  *time.Time `json:"timestamp"`
}

// Create ingests one metric sample.
func (h *MetricHandler) Create(c *gin.Context) {
	var req CreateMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, err.Error())
		return
	}

	metric := &types.Metric{
		MetricName: req.MetricName,
		Value:      req.Value,
		Unit:       req.Unit,
	}
	if req.Timestamp != nil {
		metric.Timestamp = *req.Timestamp
	}

	err := h.gate.WithSession(c.Request.Context(), func(ctx context.Context) error {
		return h.repo.Insert(ctx, metric)
	})
	if err != nil {
		h.recordRejection(err)
		ErrorResponseFromError(c, err)
		return
	}

	CreatedResponse(c, metric)
}

func (h *MetricHandler) recordRejection(err error) {
	if errors.IsConnectivityError(err) {
		h.metrics.RecordGateRejection()
	}
}
