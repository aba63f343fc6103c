package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cloudpulse/cloudpulse-monitor/internal/availability"
	"github.com/cloudpulse/cloudpulse-monitor/internal/database"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/errors"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/logging"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/metrics"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/types"
)

// ServiceHandler serves the monitored-service endpoints.
type ServiceHandler struct {
	repo    *database.ServiceRepository
	gate    *availability.Gate
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewServiceHandler creates a service handler.
func NewServiceHandler(repo *database.ServiceRepository, gate *availability.Gate, logger *logging.Logger, m *metrics.Metrics) *ServiceHandler {
	return &ServiceHandler{
		repo:    repo,
		gate:    gate,
		logger:  logger,
		metrics: m,
	}
}

// List returns all monitored services, degrading to the default fleet when
// the database is unreachable.
func (h *ServiceHandler) List(c *gin.Context) {
	services, degraded, err := availability.ResolveRead(c.Request.Context(), h.logger,
		func(ctx context.Context) ([]types.Service, error) {
			session, err := h.gate.Acquire(ctx)
			if err != nil {
				h.recordRejection(err)
				return nil, err
			}
			defer session.Release()
			return h.repo.List(ctx)
		},
		defaultFleet,
	)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if len(services) == 0 {
		// Fresh installs have no rows yet; serve the default fleet so
		// the dashboard renders something meaningful.
		services = defaultFleet()
	}

	if degraded {
		h.metrics.RecordFallback("services")
		FallbackResponse(c, services)
		return
	}
	SuccessResponse(c, services)
}

// Get returns a single service by ID.
func (h *ServiceHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequestResponse(c, "service id is required")
		return
	}

	service, degraded, err := availability.ResolveRead(c.Request.Context(), h.logger,
		func(ctx context.Context) (*types.Service, error) {
			session, err := h.gate.Acquire(ctx)
			if err != nil {
				h.recordRejection(err)
				return nil, err
			}
			defer session.Release()
			return h.repo.GetByID(ctx, id)
		},
		func() *types.Service {
			return fallbackService(id)
		},
	)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	if service == nil {
		NotFoundResponse(c, "service not found")
		return
	}

	if degraded {
		h.metrics.RecordFallback("services")
		FallbackResponse(c, service)
		return
	}
	SuccessResponse(c, service)
}

// ServiceHealth is the payload of a per-service health check.
type ServiceHealth struct {
	ServiceID      string    `json:"service_id"`
	ServiceName    string    `json:"service_name"`
	Healthy        bool      `json:"is_healthy"`
	Status         string    `json:"status"`
	Uptime         float64   `json:"uptime"`
	ResponseTimeMS float64   `json:"response_time_ms"`
	LastChecked    time.Time `json:"last_checked"`
}

// Health performs a health check on a single service. A service counts as
// healthy only while its recorded status is online.
func (h *ServiceHandler) Health(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequestResponse(c, "service id is required")
		return
	}

	start := time.Now()
	service, degraded, err := availability.ResolveRead(c.Request.Context(), h.logger,
		func(ctx context.Context) (*types.Service, error) {
			session, err := h.gate.Acquire(ctx)
			if err != nil {
				h.recordRejection(err)
				return nil, err
			}
			defer session.Release()
			return h.repo.GetByID(ctx, id)
		},
		func() *types.Service {
			return fallbackService(id)
		},
	)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	if service == nil {
		NotFoundResponse(c, "service not found")
		return
	}

	health := ServiceHealth{
		ServiceID:      service.ID,
		ServiceName:    service.Name,
		Healthy:        service.Status == types.ServiceStatusOnline,
		Status:         service.Status,
		Uptime:         service.Uptime,
		ResponseTimeMS: float64(time.Since(start).Microseconds()) / 1000.0,
		LastChecked:    time.Now().UTC(),
	}

	if degraded {
		h.metrics.RecordFallback("services")
		FallbackResponse(c, health)
		return
	}
	SuccessResponse(c, health)
}

// CreateServiceRequest is the payload for registering a service.
type CreateServiceRequest struct {
	ID     string  `json:"id"`
	Name   string  `json:"name" binding:"required,min=1,max=100"`
	Status string  `json:"status" binding:"required"`
	Uptime float64 `json:"uptime" binding:"min=0,max=100"`
}

// Create registers a new monitored service. Writes never degrade; an
// unreachable database yields 503.
func (h *ServiceHandler) Create(c *gin.Context) {
	var req CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, err.Error())
		return
	}
	if !types.ValidServiceStatus(req.Status) {
		ErrorResponseFromError(c, errors.NewValidationError("status must be one of online, degraded, offline"))
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	service := &types.Service{
		ID:     req.ID,
		Name:   req.Name,
		Status: req.Status,
		Uptime: req.Uptime,
	}

	err := h.gate.WithSession(c.Request.Context(), func(ctx context.Context) error {
		return h.repo.Create(ctx, service)
	})
	if err != nil {
		h.recordRejection(err)
		ErrorResponseFromError(c, err)
		return
	}

	CreatedResponse(c, service)
}

// UpdateStatusRequest is the payload for a status update.
type UpdateStatusRequest struct {
	Status string  `json:"status" binding:"required"`
	Uptime float64 `json:"uptime" binding:"min=0,max=100"`
}

// UpdateStatus updates the status and uptime of a service.
func (h *ServiceHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		BadRequestResponse(c, "service id is required")
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, err.Error())
		return
	}
	if !types.ValidServiceStatus(req.Status) {
		ErrorResponseFromError(c, errors.NewValidationError("status must be one of online, degraded, offline"))
		return
	}

	err := h.gate.WithSession(c.Request.Context(), func(ctx context.Context) error {
		return h.repo.UpdateStatus(ctx, id, req.Status, req.Uptime)
	})
	if err != nil {
		h.recordRejection(err)
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, gin.H{"id": id, "status": req.Status, "uptime": req.Uptime})
}

func (h *ServiceHandler) recordRejection(err error) {
	if errors.IsConnectivityError(err) {
		h.metrics.RecordGateRejection()
	}
}
