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

// LogHandler serves the log endpoints.
type LogHandler struct {
	repo    *database.LogRepository
	gate    *availability.Gate
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewLogHandler creates a log handler.
func NewLogHandler(repo *database.LogRepository, gate *availability.Gate, logger *logging.Logger, m *metrics.Metrics) *LogHandler {
	return &LogHandler{
		repo:    repo,
		gate:    gate,
		logger:  logger,
		metrics: m,
	}
}

func parseLogFilter(c *gin.Context) (database.LogFilter, error) {
	filter := database.LogFilter{
		Level:       c.Query("level"),
		ServiceName: c.Query("service"),
	}

	if filter.Level != "" && !types.ValidLogLevel(filter.Level) {
		return filter, errors.NewValidationError("level must be one of info, warning, error")
	}

	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, errors.NewValidationError("since must be an RFC3339 timestamp")
		}
		filter.Since = t
	}
	if until := c.Query("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return filter, errors.NewValidationError("until must be an RFC3339 timestamp")
		}
		filter.Until = t
	}

	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > 1000 {
			return filter, errors.NewValidationError("limit must be between 1 and 1000")
		}
		filter.Limit = n
	}
	if offset := c.Query("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return filter, errors.NewValidationError("offset must be a non-negative integer")
		}
		filter.Offset = n
	}

	return filter, nil
}

// List returns log entries newest first. Degrades to an empty payload when
// the database is unreachable.
func (h *LogHandler) List(c *gin.Context) {
	filter, err := parseLogFilter(c)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	logs, degraded, err := availability.ResolveRead(c.Request.Context(), h.logger,
		func(ctx context.Context) ([]types.LogEntry, error) {
			session, err := h.gate.Acquire(ctx)
			if err != nil {
				h.recordRejection(err)
				return nil, err
			}
			defer session.Release()
			return h.repo.List(ctx, filter)
		},
		fallbackLogs,
	)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if degraded {
		h.metrics.RecordFallback("logs")
		FallbackResponse(c, logs)
		return
	}
	SuccessResponseWithMeta(c, logs, &Meta{
		Pagination: &Pagination{
			Limit:  filter.Limit,
			Offset: filter.Offset,
			Count:  len(logs),
		},
	})
}

// CreateLogRequest is the payload for ingesting a log entry.
type CreateLogRequest struct {
	Level       string     `json:"level" binding:"required"`
	Message     string     `json:"message" binding:"required,min=1,max=1000"`
	ServiceName string     `json:"service_name" binding:"required,min=1,max=100"`
	Timestamp   *time.Time `json:"timestamp"`
}

// Create ingests one log entry. Writes fail loud when the database is
// unreachable.
func (h *LogHandler) Create(c *gin.Context) {
	var req CreateLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, err.Error())
		return
	}
	if !types.ValidLogLevel(req.Level) {
		ErrorResponseFromError(c, errors.NewValidationError("level must be one of info, warning, error"))
		return
	}

	entry := &types.LogEntry{
		Level:       req.Level,
		Message:     req.Message,
		ServiceName: req.ServiceName,
	}
	if req.Timestamp != nil {
		entry.Timestamp = *req.Timestamp
	}

	err := h.gate.WithSession(c.Request.Context(), func(ctx context.Context) error {
		return h.repo.Create(ctx, entry)
	})
	if err != nil {
		h.recordRejection(err)
		ErrorResponseFromError(c, err)
		return
	}

	CreatedResponse(c, entry)
}

// Levels returns the log levels the ingest endpoint accepts.
func (h *LogHandler) Levels(c *gin.Context) {
	SuccessResponse(c, []string{types.LogLevelInfo, types.LogLevelWarning, types.LogLevelError})
}

// Purge deletes log entries older than the given cutoff. Like all writes it
// fails loud when the database is unreachable.
func (h *LogHandler) Purge(c *gin.Context) {
	before := c.Query("before")
	if before == "" {
		BadRequestResponse(c, "before query parameter is required")
		return
	}
	cutoff, err := time.Parse(time.RFC3339, before)
	if err != nil {
		ErrorResponseFromError(c, errors.NewValidationError("before must be an RFC3339 timestamp"))
		return
	}

	var deleted int64
	err = h.gate.WithSession(c.Request.Context(), func(ctx context.Context) error {
		n, err := h.repo.DeleteBefore(ctx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		h.recordRejection(err)
		ErrorResponseFromError(c, err)
		return
	}

	h.logger.Info("Purged log entries",
		"deleted", deleted,
		"cutoff", cutoff.Format(time.RFC3339),
	)
	SuccessResponse(c, gin.H{"deleted": deleted, "before": cutoff})
}

// Services returns the distinct service names seen in logs.
func (h *LogHandler) Services(c *gin.Context) {
	names, degraded, err := availability.ResolveRead(c.Request.Context(), h.logger,
		func(ctx context.Context) ([]string, error) {
			session, err := h.gate.Acquire(ctx)
			if err != nil {
				h.recordRejection(err)
				return nil, err
			}
			defer session.Release()
			return h.repo.ServiceNames(ctx)
		},
		func() []string { return []string{} },
	)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if degraded {
		h.metrics.RecordFallback("logs")
		FallbackResponse(c, names)
		return
	}
	SuccessResponse(c, names)
}

// Stats returns aggregate log counts per level.
func (h *LogHandler) Stats(c *gin.Context) {
	stats, degraded, err := availability.ResolveRead(c.Request.Context(), h.logger,
		func(ctx context.Context) (*types.LogStats, error) {
			session, err := h.gate.Acquire(ctx)
			if err != nil {
				h.recordRejection(err)
				return nil, err
			}
			defer session.Release()
			return h.repo.Stats(ctx)
		},
		func() *types.LogStats { return &types.LogStats{} },
	)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if degraded {
		h.metrics.RecordFallback("logs")
		FallbackResponse(c, stats)
		return
	}
	SuccessResponse(c, stats)
}

func (h *LogHandler) recordRejection(err error) {
	if errors.IsConnectivityError(err) {
		h.metrics.RecordGateRejection()
	}
}
