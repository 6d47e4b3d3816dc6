package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, c *Checker, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestChecker_Health(t *testing.T) {
	healthy := PingerFunc(func(context.Context) error { return nil })
	down := PingerFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("all healthy", func(t *testing.T) {
		c := NewChecker("1.2.3", map[string]Pinger{"database": healthy, "redis": nil})
		rec, body := serve(t, c, "/api/v1/health")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "1.2.3", body["version"])
		checks := body["checks"].(map[string]any)
		assert.Contains(t, checks, "database")
		assert.NotContains(t, checks, "redis")
	})

	t.Run("one dependency down", func(t *testing.T) {
		c := NewChecker("1.2.3", map[string]Pinger{"database": healthy, "redis": down})
		rec, body := serve(t, c, "/api/v1/health")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unhealthy", body["status"])
		redis := body["checks"].(map[string]any)["redis"].(map[string]any)
		assert.Equal(t, "connection refused", redis["message"])
	})
}

func TestChecker_LiveAndReady(t *testing.T) {
	c := NewChecker("dev", nil)

	rec, body := serve(t, c, "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", body["status"])

	rec, _ = serve(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.SetReady(true)
	rec, body = serve(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}
