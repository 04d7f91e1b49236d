package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAllHealthy(t *testing.T) {
	h := NewHealthChecker("1.0.0", "workers")
	h.Update("workers", true, "")
	h.Update("store", true, "")

	health := h.Health()
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Len(t, health.Components, 2)
	assert.Equal(t, "1.0.0", health.Version)
}

func TestHealthOneUnhealthy(t *testing.T) {
	h := NewHealthChecker("dev")
	h.Update("workers", true, "")
	h.Update("store", false, "connection refused")

	health := h.Health()
	assert.Equal(t, StatusUnhealthy, health.Status)
	assert.Equal(t, "unhealthy: connection refused", health.Components["store"])
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *HealthChecker)
		want    string
		message string
	}{
		{
			name:    "critical component missing",
			setup:   func(h *HealthChecker) { h.Update("dispatcher", true, "") },
			want:    StatusNotReady,
			message: "waiting for workers initialization",
		},
		{
			name: "critical component unhealthy",
			setup: func(h *HealthChecker) {
				h.Update("dispatcher", true, "")
				h.Update("workers", false, "no ready workers")
			},
			want:    StatusNotReady,
			message: "waiting for workers",
		},
		{
			name: "all critical ready",
			setup: func(h *HealthChecker) {
				h.Update("dispatcher", true, "")
				h.Update("workers", true, "")
				h.Update("store", false, "ignored for readiness")
			},
			want: StatusReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("dev", "dispatcher", "workers")
			tt.setup(h)

			ready := h.Readiness()
			assert.Equal(t, tt.want, ready.Status)
			assert.Equal(t, tt.message, ready.Message)
		})
	}
}

func TestHealthHandlers(t *testing.T) {
	h := NewHealthChecker("dev", "workers")

	rec := httptest.NewRecorder()
	h.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.Update("workers", true, "")
	rec = httptest.NewRecorder()
	h.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, StatusReady, body.Status)

	h.Update("store", false, "disk full")
	rec = httptest.NewRecorder()
	h.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLivenessHandler(t *testing.T) {
	h := NewHealthChecker("dev", "workers")

	rec := httptest.NewRecorder()
	h.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestUpdateReplacesComponent(t *testing.T) {
	h := NewHealthChecker("dev")
	h.Update("workers", false, "none ready")
	h.Update("workers", true, "")

	c, ok := h.Component("workers")
	require.True(t, ok)
	assert.True(t, c.Healthy)
	assert.Empty(t, c.Message)
}
