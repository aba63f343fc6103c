package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/cloudpulse/cloudpulse-monitor/pkg/errors"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/types"
)

// classifyError maps driver failures onto the application error taxonomy so
// callers can distinguish connectivity loss from domain errors.
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(operation).WithCause(err)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return apperrors.NewConnectionLostError(fmt.Sprintf("connection lost during %s", operation)).WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.NewConnectionLostError(fmt.Sprintf("connection lost during %s", operation)).WithCause(err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 is connection exception, class 57 covers server
		// shutdown and cancellation.
		class := string(pqErr.Code.Class())
		if class == "08" || class == "57" {
			return apperrors.NewConnectionLostError(fmt.Sprintf("connection lost during %s", operation)).WithCause(err)
		}
		if pqErr.Code.Name() == "unique_violation" {
			return apperrors.NewConflictError(pqErr.Detail).WithCause(err)
		}
	}
	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "broken pipe") {
		return apperrors.NewConnectionLostError(fmt.Sprintf("connection lost during %s", operation)).WithCause(err)
	}
	return apperrors.NewInternalError(fmt.Sprintf("%s failed", operation)).WithCause(err)
}

// ServiceRepository handles monitored service rows.
type ServiceRepository struct {
	db *DB
}

func NewServiceRepository(db *DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// List returns all services ordered by name.
func (r *ServiceRepository) List(ctx context.Context) ([]types.Service, error) {
	query := `
		SELECT id, name, status, uptime, last_checked, created_at, updated_at
		FROM services
		ORDER BY name`

	services := []types.Service{}
	if err := r.db.SelectContext(ctx, &services, query); err != nil {
		return nil, classifyError("list services", err)
	}
	return services, nil
}

// GetByID returns a single service.
func (r *ServiceRepository) GetByID(ctx context.Context, id string) (*types.Service, error) {
	query := `
		SELECT id, name, status, uptime, last_checked, created_at, updated_at
		FROM services
		WHERE id = $1`

	var service types.Service
	if err := r.db.GetContext(ctx, &service, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("service")
		}
		return nil, classifyError("get service", err)
	}
	return &service, nil
}

// Create inserts a new service row.
func (r *ServiceRepository) Create(ctx context.Context, service *types.Service) error {
	query := `
		INSERT INTO services (id, name, status, uptime, last_checked, created_at, updated_at)
		VALUES (:id, :name, :status, :uptime, :last_checked, :created_at, :updated_at)`

	now := time.Now()
	if service.CreatedAt.IsZero() {
		service.CreatedAt = now
	}
	service.UpdatedAt = now
	if service.LastChecked.IsZero() {
		service.LastChecked = now
	}

	if _, err := r.db.NamedExecContext(ctx, query, service); err != nil {
		return classifyError("create service", err)
	}
	return nil
}

// UpdateStatus updates the status and uptime of an existing service.
func (r *ServiceRepository) UpdateStatus(ctx context.Context, id, status string, uptime float64) error {
	query := `
		UPDATE services
		SET status = $2, uptime = $3, last_checked = $4, updated_at = $4
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status, uptime, time.Now())
	if err != nil {
		return classifyError("update service status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return classifyError("update service status", err)
	}
	if rows == 0 {
		return apperrors.NewNotFoundError("service")
	}
	return nil
}

// LogFilter narrows log queries.
type LogFilter struct {
	Level       string
	ServiceName string
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

// LogRepository handles log entry rows.
type LogRepository struct {
	db *DB
}

func NewLogRepository(db *DB) *LogRepository {
	return &LogRepository{db: db}
}

// List returns log entries newest first, filtered and paginated.
func (r *LogRepository) List(ctx context.Context, filter LogFilter) ([]types.LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, service_name, created_at
		FROM logs
		WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.Level != "" {
		query += fmt.Sprintf(" AND level = $%d", argIndex)
		args = append(args, filter.Level)
		argIndex++
	}
	if filter.ServiceName != "" {
		query += fmt.Sprintf(" AND service_name = $%d", argIndex)
		args = append(args, filter.ServiceName)
		argIndex++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIndex)
		args = append(args, filter.Since)
		argIndex++
	}
	if !filter.Until.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIndex)
		args = append(args, filter.Until)
		argIndex++
	}

	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)
	argIndex++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	logs := []types.LogEntry{}
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, classifyError("list logs", err)
	}
	return logs, nil
}

// Create inserts a log entry and fills in the generated ID.
func (r *LogRepository) Create(ctx context.Context, entry *types.LogEntry) error {
	query := `
		INSERT INTO logs (timestamp, level, message, service_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	now := time.Now()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	if err := r.db.GetContext(ctx, &entry.ID, query,
		entry.Timestamp, entry.Level, entry.Message, entry.ServiceName, entry.CreatedAt); err != nil {
		return classifyError("create log entry", err)
	}
	return nil
}

// ServiceNames returns the distinct service names present in logs.
func (r *LogRepository) ServiceNames(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT service_name FROM logs ORDER BY service_name`

	names := []string{}
	if err := r.db.SelectContext(ctx, &names, query); err != nil {
		return nil, classifyError("list log services", err)
	}
	return names, nil
}

// Stats counts log entries per level.
func (r *LogRepository) Stats(ctx context.Context) (*types.LogStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE level = 'error') AS errors,
			COUNT(*) FILTER (WHERE level = 'warning') AS warnings,
			COUNT(*) FILTER (WHERE level = 'info') AS info
		FROM logs`

	var stats types.LogStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, classifyError("log stats", err)
	}
	return &stats, nil
}

// DeleteBefore removes log entries older than the cutoff and reports how
// many rows went away.
func (r *LogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, classifyError("delete logs", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, classifyError("delete logs", err)
	}
	return rows, nil
}

// MetricRepository handles metric sample rows.
type MetricRepository struct {
	db *DB
}

func NewMetricRepository(db *DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// Latest returns the most recent sample per metric name.
func (r *MetricRepository) Latest(ctx context.Context) ([]types.Metric, error) {
	query := `
		SELECT DISTINCT ON (metric_name) id, metric_name, value, unit, timestamp
		FROM metrics
		ORDER BY metric_name, timestamp DESC`

	metrics := []types.Metric{}
	if err := r.db.SelectContext(ctx, &metrics, query); err != nil {
		return nil, classifyError("latest metrics", err)
	}
	return metrics, nil
}

// History returns samples for one metric within the window, oldest first.
func (r *MetricRepository) History(ctx context.Context, name string, since time.Time, limit int) ([]types.Metric, error) {
	if limit <= 0 || limit > 10000 {
		limit = 500
	}

	query := `
		SELECT id, metric_name, value, unit, timestamp
		FROM metrics
		WHERE metric_name = $1 AND timestamp >= $2
		ORDER BY timestamp ASC
		LIMIT $3`

	metrics := []types.Metric{}
	if err := r.db.SelectContext(ctx, &metrics, query, name, since, limit); err != nil {
		return nil, classifyError("metric history", err)
	}
	return metrics, nil
}

// Insert records one metric sample.
func (r *MetricRepository) Insert(ctx context.Context, metric *types.Metric) error {
	query := `
		INSERT INTO metrics (metric_name, value, unit, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now()
	}

	if err := r.db.GetContext(ctx, &metric.ID, query,
		metric.MetricName, metric.Value, metric.Unit, metric.Timestamp); err != nil {
		return classifyError("insert metric", err)
	}
	return nil
}

// Summary aggregates one metric over the window.
func (r *MetricRepository) Summary(ctx context.Context, name string, since time.Time) (*types.MetricSummary, error) {
	query := `
		SELECT
			$1 AS metric_name,
			COALESCE(AVG(value), 0) AS avg,
			COALESCE(MIN(value), 0) AS min,
			COALESCE(MAX(value), 0) AS max,
			COUNT(*) AS samples
		FROM metrics
		WHERE metric_name = $1 AND timestamp >= $2`

	var summary types.MetricSummary
	if err := r.db.GetContext(ctx, &summary, query, name, since); err != nil {
		return nil, classifyError("metric summary", err)
	}
	return &summary, nil
}

// Repositories bundles the per-table repositories for wiring.
type Repositories struct {
	Services *ServiceRepository
	Logs     *LogRepository
	Metrics  *MetricRepository
}

// NewRepositories creates the repository bundle over one database handle.
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Services: NewServiceRepository(db),
		Logs:     NewLogRepository(db),
		Metrics:  NewMetricRepository(db),
	}
}
