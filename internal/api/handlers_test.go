package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudpulse/cloudpulse-monitor/internal/availability"
	"github.com/cloudpulse/cloudpulse-monitor/internal/database"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/logging"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLogger(&logging.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	logger.SetOutput(io.Discard)
	return logger
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics(&metrics.Config{Enabled: false})
}

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(ctx context.Context) error {
	return p.err
}

type stubHandle struct{}

func (stubHandle) Close() error { return nil }

// newGateFixture wires a cache and gate around the given ping outcome using a
// short staleness window so each test starts from a fresh probe.
func newGateFixture(t *testing.T, pingErr error) (*availability.Cache, *availability.Gate) {
	t.Helper()
	logger := testLogger(t)
	prober := availability.NewProber(&stubPinger{err: pingErr}, time.Second, logger)
	cache := availability.NewCache(prober, time.Minute, logger)
	opener := availability.OpenerFunc(func(ctx context.Context) (availability.Handle, error) {
		return stubHandle{}, nil
	})
	return cache, availability.NewGate(cache, opener, logger)
}

func newMockRepos(t *testing.T) (*database.Repositories, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := &database.DB{DB: sqlx.NewDb(mockDB, "sqlmock")}
	return database.NewRepositories(db), mock
}

func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthAlways200WhenDatabaseDown(t *testing.T) {
	cache, _ := newGateFixture(t, errors.New("connection refused"))
	handler := NewHealthHandler(cache, nil, nil, "1.0.0")

	router := gin.New()
	router.GET("/health", handler.Health)

	w := performRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "disconnected", status.Database.Status)
	assert.False(t, status.Database.Available)
	assert.NotNil(t, status.Database.LastChecked)
}

func TestHealthReportsConnected(t *testing.T) {
	cache, _ := newGateFixture(t, nil)
	handler := NewHealthHandler(cache, nil, nil, "1.0.0")

	router := gin.New()
	router.GET("/health", handler.Health)

	w := performRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "connected", status.Database.Status)
	assert.True(t, status.Database.Available)
}

func TestReadinessReturns503WhenUnavailable(t *testing.T) {
	cache, _ := newGateFixture(t, errors.New("connection refused"))
	handler := NewHealthHandler(cache, nil, nil, "1.0.0")

	router := gin.New()
	router.GET("/readiness", handler.Readiness)

	w := performRequest(router, http.MethodGet, "/readiness", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadinessReturns200WhenAvailable(t *testing.T) {
	cache, _ := newGateFixture(t, nil)
	handler := NewHealthHandler(cache, nil, nil, "1.0.0")

	router := gin.New()
	router.GET("/readiness", handler.Readiness)

	w := performRequest(router, http.MethodGet, "/readiness", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServiceListDegradesToDefaultFleet(t *testing.T) {
	_, gate := newGateFixture(t, errors.New("connection refused"))
	repos, _ := newMockRepos(t)
	handler := NewServiceHandler(repos.Services, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.GET("/services", handler.List)

	w := performRequest(router, http.MethodGet, "/services", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.True(t, resp.Meta.Fallback)

	services, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, services, len(defaultFleet()))
}

func TestServiceListHealthyPath(t *testing.T) {
	_, gate := newGateFixture(t, nil)
	repos, mock := newMockRepos(t)
	handler := NewServiceHandler(repos.Services, gate, testLogger(t), testMetrics())

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "status", "uptime", "last_checked", "created_at", "updated_at"}).
		AddRow("api-gateway", "API Gateway", "online", 99.95, now, now, now)
	mock.ExpectQuery(`SELECT id, name, status`).WillReturnRows(rows)

	router := gin.New()
	router.GET("/services", handler.List)

	w := performRequest(router, http.MethodGet, "/services", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Meta)

	services, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, services, 1)
}

func TestServiceListEmptyTableServesDefaultFleet(t *testing.T) {
	_, gate := newGateFixture(t, nil)
	repos, mock := newMockRepos(t)
	handler := NewServiceHandler(repos.Services, gate, testLogger(t), testMetrics())

	mock.ExpectQuery(`SELECT id, name, status`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "uptime", "last_checked", "created_at", "updated_at"}))

	router := gin.New()
	router.GET("/services", handler.List)

	w := performRequest(router, http.MethodGet, "/services", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Meta, "seeded defaults are not a degraded response")

	services, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, services, len(defaultFleet()))
}

func TestServiceGetUnknownIDDegraded404(t *testing.T) {
	_, gate := newGateFixture(t, errors.New("connection refused"))
	repos, _ := newMockRepos(t)
	handler := NewServiceHandler(repos.Services, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.GET("/services/:id", handler.Get)

	w := performRequest(router, http.MethodGet, "/services/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServiceGetKnownIDDegraded(t *testing.T) {
	_, gate := newGateFixture(t, errors.New("connection refused"))
	repos, _ := newMockRepos(t)
	handler := NewServiceHandler(repos.Services, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.GET("/services/:id", handler.Get)

	w := performRequest(router, http.MethodGet, "/services/api-gateway", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.True(t, resp.Meta.Fallback)
}

func TestServiceHealthKnownIDDegraded(t *testing.T) {
	_, gate := newGateFixture(t, errors.New("connection refused"))
	repos, _ := newMockRepos(t)
	handler := NewServiceHandler(repos.Services, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.GET("/services/:id/health", handler.Health)

	w := performRequest(router, http.MethodGet, "/services/api-gateway/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.True(t, resp.Meta.Fallback)

	health, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "api-gateway", health["service_id"])
	assert.Equal(t, "API Gateway", health["service_name"])
	assert.Equal(t, true, health["is_healthy"])
}

func TestServiceHealthUnknownIDDegraded404(t *testing.T) {
	_, gate := newGateFixture(t, errors.New("connection refused"))
	repos, _ := newMockRepos(t)
	handler := NewServiceHandler(repos.Services, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.GET("/services/:id/health", handler.Health)

	w := performRequest(router, http.MethodGet, "/services/nonexistent/health", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServiceHealthReflectsStoredStatus(t *testing.T) {
	_, gate := newGateFixture(t, nil)
	repos, mock := newMockRepos(t)
	handler := NewServiceHandler(repos.Services, gate, testLogger(t), testMetrics())

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "status", "uptime", "last_checked", "created_at", "updated_at"}).
		AddRow("user-service", "User Service", "degraded", 92.5, now, now, now)
	mock.ExpectQuery(`SELECT id, name, status`).WithArgs("user-service").WillReturnRows(rows)

	router := gin.New()
	router.GET("/services/:id/health", handler.Health)

	w := performRequest(router, http.MethodGet, "/services/user-service/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Meta)

	health, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "degraded", health["status"])
	assert.Equal(t, false, health["is_healthy"])
	assert.Equal(t, 92.5, health["uptime"])
}

func TestServiceCreateFailsLoudWhenUnavailable(t *testing.T) {
	_, gate := newGateFixture(t, errors.New("connection refused"))
	repos, _ := newMockRepos(t)
	handler := NewServiceHandler(repos.Services, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.POST("/services", handler.Create)

	w := performRequest(router, http.MethodPost, "/services", CreateServiceRequest{
		Name:   "Payment Service",
		Status: "online",
		Uptime: 99.9,
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONNECTION_UNAVAILABLE", resp.Error.Code)
}

func TestServiceCreateRejectsInvalidStatus(t *testing.T) {
	_, gate := newGateFixture(t, nil)
	repos, _ := newMockRepos(t)
	handler := NewServiceHandler(repos.Services, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.POST("/services", handler.Create)

	w := performRequest(router, http.MethodPost, "/services", CreateServiceRequest{
		Name:   "Payment Service",
		Status: "exploded",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestServiceUpdateStatusFailsLoudWhenUnavailable(t *testing.T) {
	_, gate := newGateFixture(t, errors.New("connection refused"))
	repos, _ := newMockRepos(t)
	handler := NewServiceHandler(repos.Services, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.PATCH("/services/:id/status", handler.UpdateStatus)

	w := performRequest(router, http.MethodPatch, "/services/api-gateway/status", UpdateStatusRequest{
		Status: "degraded",
		Uptime: 95.0,
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogListDegradesToEmpty(t *testing.T) {
	_, gate := newGateFixture(t, errors.New("connection refused"))
	repos, _ := newMockRepos(t)
	handler := NewLogHandler(repos.Logs, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.GET("/logs", handler.List)

	w := performRequest(router, http.MethodGet, "/logs", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.True(t, resp.Meta.Fallback)

	logs, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Empty(t, logs)
}

func TestLogListRejectsInvalidLevel(t *testing.T) {
	_, gate := newGateFixture(t, nil)
	repos, _ := newMockRepos(t)
	handler := NewLogHandler(repos.Logs, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.GET("/logs", handler.List)

	w := performRequest(router, http.MethodGet, "/logs?level=critical", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogListRejectsOversizedLimit(t *testing.T) {
	_, gate := newGateFixture(t, nil)
	repos, _ := newMockRepos(t)
	handler := NewLogHandler(repos.Logs, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.GET("/logs", handler.List)

	w := performRequest(router, http.MethodGet, "/logs?limit=5000", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogCreateFailsLoudWhenUnavailable(t *testing.T) {
	_, gate := newGateFixture(t, errors.New("connection refused"))
	repos, _ := newMockRepos(t)
	handler := NewLogHandler(repos.Logs, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.POST("/logs", handler.Create)

	w := performRequest(router, http.MethodPost, "/logs", CreateLogRequest{
		Level:       "error",
		Message:     "request failed",
		ServiceName: "api-gateway",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONNECTION_UNAVAILABLE", resp.Error.Code)
}

func TestLogLevels(t *testing.T) {
	_, gate := newGateFixture(t, nil)
	repos, _ := newMockRepos(t)
	handler := NewLogHandler(repos.Logs, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.GET("/logs/levels", handler.Levels)

	w := performRequest(router, http.MethodGet, "/logs/levels", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	levels, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, levels, 3)
}

func TestLogPurgeRequiresCutoff(t *testing.T) {
	_, gate := newGateFixture(t, nil)
	repos, _ := newMockRepos(t)
	handler := NewLogHandler(repos.Logs, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.DELETE("/admin/logs", handler.Purge)

	w := performRequest(router, http.MethodDelete, "/admin/logs", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogPurgeDeletesOldEntries(t *testing.T) {
	_, gate := newGateFixture(t, nil)
	repos, mock := newMockRepos(t)
	handler := NewLogHandler(repos.Logs, gate, testLogger(t), testMetrics())

	mock.ExpectExec(`DELETE FROM logs`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 42))

	router := gin.New()
	router.DELETE("/admin/logs", handler.Purge)

	cutoff := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	w := performRequest(router, http.MethodDelete, "/admin/logs?before="+cutoff, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(42), data["deleted"])
}

func TestLogPurgeFailsLoudWhenUnavailable(t *testing.T) {
	_, gate := newGateFixture(t, errors.New("connection refused"))
	repos, _ := newMockRepos(t)
	handler := NewLogHandler(repos.Logs, gate, testLogger(t), testMetrics())

	router := gin.New()
	router.DELETE("/admin/logs", handler.Purge)

	cutoff := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	w := performRequest(router, http.MethodDelete, "/admin/logs?before="+cutoff, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogListHealthyPathIncludesPagination(t *testing.T) {
	_, gate := newGateFixture(t, nil)
	repos, mock := newMockRepos(t)
	handler := NewLogHandler(repos.Logs, gate, testLogger(t), testMetrics())

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "timestamp", "level", "message", "service_name", "created_at"}).
		AddRow(int64(1), now, "info", "started", "api-gateway", now)
	mock.ExpectQuery(`SELECT id, timestamp, level`).WillReturnRows(rows)

	router := gin.New()
	router.GET("/logs", handler.List)

	w := performRequest(router, http.MethodGet, "/logs?limit=10", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.False(t, resp.Meta.Fallback)
	require.NotNil(t, resp.Meta.Pagination)
	assert.Equal(t, 10, resp.Meta.Pagination.Limit)
	assert.Equal(t, 1, resp.Meta.Pagination.Count)
}
