package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

func okChecker() HealthChecker { return checkerFunc(func(context.Context) error { return nil }) }

func failingChecker(msg string) HealthChecker {
	return checkerFunc(func(context.Context) error { return errors.New(msg) })
}

func blockingChecker() HealthChecker {
	return checkerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
}

func withGlobalManager(t *testing.T, m *HealthManager) {
	t.Helper()
	globalMu.Lock()
	prev := globalHealthManager
	globalHealthManager = m
	globalMu.Unlock()
	t.Cleanup(func() {
		globalMu.Lock()
		globalHealthManager = prev
		globalMu.Unlock()
	})
}

func TestHealthManager_HealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		checkers   map[string]HealthChecker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name:       "all healthy",
			checkers:   map[string]HealthChecker{"stage_table": okChecker(), "identity": okChecker()},
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
			wantChecks: map[string]string{"stage_table": StatusHealthy, "identity": StatusHealthy},
		},
		{
			name:       "slow checker degrades",
			checkers:   map[string]HealthChecker{"identity": okChecker(), "telemetry": blockingChecker()},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantChecks: map[string]string{"identity": StatusHealthy, "telemetry": StatusTimeout},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewHealthManager("0.4.0")
			m.timeout = 20 * time.Millisecond
			for name, c := range tt.checkers {
				m.RegisterChecker(name, c)
			}

			rec := httptest.NewRecorder()
			m.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "0.4.0", resp.Version)
			if tt.wantChecks == nil {
				assert.Empty(t, resp.Checks)
			} else {
				assert.Equal(t, tt.wantChecks, resp.Checks)
			}
		})
	}
}

func TestHealthManager_UnhealthyIsServiceUnavailable(t *testing.T) {
	m := NewHealthManager("0.4.0")
	m.RegisterChecker("identity", okChecker())
	m.RegisterChecker("stage_table", failingChecker("duplicate stage"))

	rec := httptest.NewRecorder()
	m.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)

	checks, ok := body.Error.Details["checks"].(map[string]any)
	require.True(t, ok, "details should carry per-check results")
	assert.Equal(t, StatusUnhealthy, checks["stage_table"])
	assert.Equal(t, StatusHealthy, checks["identity"])
}

func TestHealthManager_RegisterReplaces(t *testing.T) {
	m := NewHealthManager("dev")
	m.RegisterChecker("telemetry", failingChecker("not initialized"))
	m.RegisterChecker("telemetry", okChecker())

	assert.Equal(t, map[string]string{"telemetry": StatusHealthy}, m.runChecks(context.Background()))
}

func TestHealthManager_Uptime(t *testing.T) {
	m := NewHealthManager("dev")
	m.nowFunc = func() time.Time { return m.started.Add(90 * time.Second) }

	rec := httptest.NewRecorder()
	m.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "1m30s", resp.Uptime)
}

func TestDetermineOverallStatus(t *testing.T) {
	m := NewHealthManager("dev")
	tests := []struct {
		checks map[string]string
		want   string
	}{
		{checks: nil, want: StatusHealthy},
		{checks: map[string]string{"a": StatusHealthy}, want: StatusHealthy},
		{checks: map[string]string{"a": StatusHealthy, "b": StatusTimeout}, want: StatusDegraded},
		{checks: map[string]string{"a": StatusTimeout, "b": StatusUnhealthy}, want: StatusUnhealthy},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.determineOverallStatus(tt.checks), "%v", tt.checks)
	}
}

func TestGlobalHandlers(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"/health":         HealthHandler,
		"/health/live":    LivenessHandler,
		"/health/ready":   ReadinessHandler,
		"/health/startup": StartupHandler,
	}

	t.Run("not initialized", func(t *testing.T) {
		withGlobalManager(t, nil)
		require.Nil(t, GetHealthManager())
		for path, h := range handlers {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		}
	})

	t.Run("initialized", func(t *testing.T) {
		withGlobalManager(t, nil)
		m := InitHealthManager("0.4.0")
		require.Same(t, m, GetHealthManager())
		for path, h := range handlers {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rec.Code, path)
		}
	})

	t.Run("readiness fails with a failing checker", func(t *testing.T) {
		withGlobalManager(t, nil)
		InitHealthManager("0.4.0").RegisterChecker("identity", failingChecker("missing binary name"))

		rec := httptest.NewRecorder()
		ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		rec = httptest.NewRecorder()
		LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
