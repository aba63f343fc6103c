package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cloudpulse/cloudpulse-monitor/internal/availability"
	"github.com/cloudpulse/cloudpulse-monitor/internal/cache"
)

// HealthHandler serves liveness and readiness endpoints backed by the
// availability cache.
type HealthHandler struct {
	availability *availability.Cache
	bootstrapper *availability.Bootstrapper
	redis        *cache.RedisClient
	version      string
	startTime    time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(availCache *availability.Cache, bootstrapper *availability.Bootstrapper, redis *cache.RedisClient, version string) *HealthHandler {
	return &HealthHandler{
		availability: availCache,
		bootstrapper: bootstrapper,
		redis:        redis,
		version:      version,
		startTime:    time.Now(),
	}
}

// DatabaseHealth describes the database portion of the health payload.
type DatabaseHealth struct {
	Status      string     `json:"status"`
	Available   bool       `json:"available"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
}

// HealthStatus is the full health payload.
type HealthStatus struct {
	Status        string         `json:"status"`
	Service       string         `json:"service"`
	Version       string         `json:"version"`
	BootState     string         `json:"boot_state"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Timestamp     time.Time      `json:"timestamp"`
	Database      DatabaseHealth `json:"database"`
	Redis         string         `json:"redis,omitempty"`
}

func (h *HealthHandler) buildStatus(c *gin.Context) HealthStatus {
	// Consults the cached verdict, probing only when the window expired.
	available := h.availability.IsAvailable(c.Request.Context())
	snapshot := h.availability.Snapshot()

	dbStatus := "disconnected"
	overall := "degraded"
	if available {
		dbStatus = "connected"
		overall = "healthy"
	}

	status := HealthStatus{
		Status:        overall,
		Service:       "cloudpulse-api",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC(),
		Database: DatabaseHealth{
			Status:    dbStatus,
			Available: available,
		},
	}

	if h.bootstrapper != nil {
		status.BootState = h.bootstrapper.State().String()
	}
	if !snapshot.LastChecked.IsZero() {
		t := snapshot.LastChecked
		status.Database.LastChecked = &t
	}
	if h.redis != nil {
		status.Redis = "connected"
		if err := h.redis.Health(c.Request.Context()); err != nil {
			status.Redis = "disconnected"
		}
	}

	return status
}

// Health reports service health. Always 200; the database block carries the
// availability verdict so dashboards can render degraded state.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(200, h.buildStatus(c))
}

// Readiness reports 200 only while the database is reachable, 503 otherwise.
func (h *HealthHandler) Readiness(c *gin.Context) {
	status := h.buildStatus(c)
	code := 200
	if !status.Database.Available {
		code = 503
	}
	c.JSON(code, status)
}
