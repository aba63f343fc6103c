package api

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudpulse/cloudpulse-monitor/internal/cache"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/config"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *cache.RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	client, err := cache.NewRedisClient(&config.RedisConfig{
		Host:     mr.Host(),
		Port:     port,
		PoolSize: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func newRateLimitedRouter(client *cache.RedisClient, limit int, window time.Duration) *gin.Engine {
	router := gin.New()
	router.Use(RateLimitMiddleware(client, limit, window))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestRateLimitBlocksBurstOverLimit(t *testing.T) {
	mr, client := newTestRedis(t)
	router := newRateLimitedRouter(client, 3, time.Minute)

	for i := 0; i < 3; i++ {
		w := performRequest(router, http.MethodGet, "/ping", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
	}

	w := performRequest(router, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Error.Code)

	// A fresh window clears the counter.
	mr.FastForward(61 * time.Second)
	w = performRequest(router, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitWindowExpiresForSteadyClients(t *testing.T) {
	mr, client := newTestRedis(t)
	router := newRateLimitedRouter(client, 3, time.Minute)

	// A client pacing itself under the limit must never be throttled.
	// The counter expires one window after creation rather than having
	// its TTL refreshed on every hit.
	for i := 0; i < 8; i++ {
		w := performRequest(router, http.MethodGet, "/ping", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		mr.FastForward(30 * time.Second)
	}
}

func TestRateLimitNilClientPassesThrough(t *testing.T) {
	router := newRateLimitedRouter(nil, 1, time.Minute)

	for i := 0; i < 5; i++ {
		w := performRequest(router, http.MethodGet, "/ping", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitFailsOpenWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	router := newRateLimitedRouter(client, 1, time.Minute)

	mr.Close()

	w := performRequest(router, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
