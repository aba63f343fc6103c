package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cloudpulse/cloudpulse-monitor/pkg/errors"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/types"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &DB{DB: sqlx.NewDb(mockDB, "sqlmock")}, mock
}

func TestServiceRepositoryList(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewServiceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "status", "uptime", "last_checked", "created_at", "updated_at"}).
		AddRow("api-gateway", "API Gateway", "online", 99.95, now, now, now).
		AddRow("user-service", "User Service", "degraded", 95.2, now, now, now)

	mock.ExpectQuery(`SELECT id, name, status, uptime, last_checked, created_at, updated_at\s+FROM services`).
		WillReturnRows(rows)

	services, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "api-gateway", services[0].ID)
	assert.Equal(t, "degraded", services[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceRepositoryGetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewServiceRepository(db)

	mock.ExpectQuery(`SELECT id, name, status, uptime, last_checked, created_at, updated_at\s+FROM services\s+WHERE id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	service, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, service)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestServiceRepositoryListConnectionLost(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewServiceRepository(db)

	mock.ExpectQuery(`SELECT id, name, status, uptime, last_checked, created_at, updated_at\s+FROM services`).
		WillReturnError(driver.ErrBadConn)

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConnectivityError(err), "driver failures must classify as connectivity loss")
	assert.Equal(t, "CONNECTION_LOST", apperrors.GetCode(err))
}

func TestServiceRepositoryUpdateStatusNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewServiceRepository(db)

	mock.ExpectExec(`UPDATE services`).
		WithArgs("ghost", "online", 99.9, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "ghost", "online", 99.9)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestServiceRepositoryUpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewServiceRepository(db)

	mock.ExpectExec(`UPDATE services`).
		WithArgs("api-gateway", "degraded", 97.5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "api-gateway", "degraded", 97.5)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRepositoryCreateFillsID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLogRepository(db)

	mock.ExpectQuery(`INSERT INTO logs`).
		WithArgs(sqlmock.AnyArg(), "error", "Database connection timeout", "notification-service", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))

	entry := &types.LogEntry{
		Level:       "error",
		Message:     "Database connection timeout",
		ServiceName: "notification-service",
	}
	err := repo.Create(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, int64(17), entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestLogRepositoryListWithFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLogRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "timestamp", "level", "message", "service_name", "created_at"}).
		AddRow(int64(1), now, "error", "boom", "api-gateway", now)

	mock.ExpectQuery(`SELECT id, timestamp, level, message, service_name, created_at\s+FROM logs`).
		WithArgs("error", "api-gateway", 50).
		WillReturnRows(rows)

	logs, err := repo.List(context.Background(), LogFilter{
		Level:       "error",
		ServiceName: "api-gateway",
		Limit:       50,
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "boom", logs[0].Message)
}

func TestLogRepositoryStats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLogRepository(db)

	rows := sqlmock.NewRows([]string{"total", "errors", "warnings", "info"}).
		AddRow(int64(100), int64(7), int64(13), int64(80))

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\) AS total`).WillReturnRows(rows)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), stats.Total)
	assert.Equal(t, int64(7), stats.Errors)
}

func TestMetricRepositorySummary(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMetricRepository(db)

	since := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"metric_name", "avg", "min", "max", "samples"}).
		AddRow("cpu_usage", 45.5, 12.0, 93.2, int64(120))

	mock.ExpectQuery(`SELECT`).
		WithArgs("cpu_usage", since).
		WillReturnRows(rows)

	summary, err := repo.Summary(context.Background(), "cpu_usage", since)
	require.NoError(t, err)
	assert.Equal(t, "cpu_usage", summary.MetricName)
	assert.Equal(t, 45.5, summary.Avg)
	assert.Equal(t, int64(120), summary.Samples)
}

func TestMetricRepositoryInsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMetricRepository(db)

	mock.ExpectQuery(`INSERT INTO metrics`).
		WithArgs("cpu_usage", 45.2, "%", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	metric := &types.Metric{MetricName: "cpu_usage", Value: 45.2, Unit: "%"}
	err := repo.Insert(context.Background(), metric)
	require.NoError(t, err)
	assert.Equal(t, int64(3), metric.ID)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"bad conn", driver.ErrBadConn, "CONNECTION_LOST"},
		{"deadline", context.DeadlineExceeded, "TIMEOUT"},
		{"refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), "CONNECTION_LOST"},
		{"plain", errors.New("syntax error"), "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError("test op", tt.err)
			assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
		})
	}
}
