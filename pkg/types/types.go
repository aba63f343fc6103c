package types

import (
	"time"
)

// Service status values
const (
	ServiceStatusOnline   = "online"
	ServiceStatusDegraded = "degraded"
	ServiceStatusOffline  = "offline"
)

// Log levels accepted by the logs API
const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

// Service represents a monitored service and its current health
type Service struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Status      string    `json:"status" db:"status"`
	Uptime      float64   `json:"uptime" db:"uptime"`
	LastChecked time.Time `json:"last_checked" db:"last_checked"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// LogEntry represents a single application or system log record
type LogEntry struct {
	ID          int64     `json:"id" db:"id"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	Level       string    `json:"level" db:"level"`
	Message     string    `json:"message" db:"message"`
	ServiceName string    `json:"service_name" db:"service_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Metric represents a historical performance metric sample
type Metric struct {
	ID         int64     `json:"id" db:"id"`
	MetricName string    `json:"metric_name" db:"metric_name"`
	Value      float64   `json:"value" db:"value"`
	Unit       string    `json:"unit" db:"unit"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}

// SystemMetrics is the point-in-time snapshot served by the metrics API
type SystemMetrics struct {
	CPUUsage       float64   `json:"cpu_usage"`
	MemoryUsage    float64   `json:"memory_usage"`
	NetworkTraffic float64   `json:"network_traffic"`
	ContainerCount int       `json:"container_count"`
	OverallHealth  string    `json:"overall_health"`
	Timestamp      time.Time `json:"timestamp"`
}

// MetricSummary holds min/avg/max aggregates for one metric over a window
type MetricSummary struct {
	MetricName string  `json:"metric_name" db:"metric_name"`
	Avg        float64 `json:"avg" db:"avg"`
	Min        float64 `json:"min" db:"min"`
	Max        float64 `json:"max" db:"max"`
	Samples    int64   `json:"samples" db:"samples"`
}

// LogStats aggregates log counts per level over a window
type LogStats struct {
	Total    int64 `json:"total" db:"total"`
	Errors   int64 `json:"errors" db:"errors"`
	Warnings int64 `json:"warnings" db:"warnings"`
	Info     int64 `json:"info" db:"info"`
}

// SystemStatus is the aggregate health view served by the status API
type SystemStatus struct {
	OverallStatus  string    `json:"overall_status"`
	HealthScore    float64   `json:"health_score"`
	ServicesOnline int       `json:"services_online"`
	ServicesTotal  int       `json:"services_total"`
	CriticalAlerts int64     `json:"critical_alerts"`
	LastUpdated    time.Time `json:"last_updated"`
}

// ValidServiceStatus reports whether s is a recognized service status
func ValidServiceStatus(s string) bool {
	switch s {
	case ServiceStatusOnline, ServiceStatusDegraded, ServiceStatusOffline:
		return true
	}
	return false
}

// ValidLogLevel reports whether l is a recognized log level
func ValidLogLevel(l string) bool {
	switch l {
	case LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	}
	return false
}
