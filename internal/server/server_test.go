package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/genoroute/internal/errors"
	"github.com/3leaps/genoroute/internal/observability"
	"github.com/3leaps/genoroute/internal/server/handlers"
)

func TestServer_Routes(t *testing.T) {
	handlers.InitHealthManager("0.4.0")
	srv := New("127.0.0.1", 0)

	tests := []struct {
		method   string
		path     string
		wantCode int
		wantErr  string
	}{
		{method: http.MethodGet, path: "/health", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/health/live", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/health/ready", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/health/startup", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/version", wantCode: http.StatusOK},
		{method: http.MethodPost, path: "/version", wantCode: http.StatusMethodNotAllowed, wantErr: apperrors.CodeMethodNotAllowed},
		{method: http.MethodGet, path: "/v2/route", wantCode: http.StatusNotFound, wantErr: apperrors.CodeNotFound},
		{method: http.MethodGet, path: "/debug/pprof/", wantCode: http.StatusNotFound, wantErr: apperrors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr == "" {
				return
			}
			var body apperrors.HTTPErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantErr, body.Error.Code)
			assert.Equal(t, rec.Header().Get(apperrors.RequestIDHeader), body.Error.RequestID)
		})
	}
}

func TestServer_MountProfiler(t *testing.T) {
	srv := New("127.0.0.1", 0)
	srv.MountProfiler()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	tel, _, err := observability.NewTelemetry("test")
	require.NoError(t, err)

	srv := New("127.0.0.1", 0)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics are not served until mounted")

	srv.MountMetrics(tel)
	tel.Metrics().Recovery(req.Context(), "not_failed")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "genoroute_recovery_outcomes_total")
}

func TestServer_MountAPI(t *testing.T) {
	srv := New("127.0.0.1", 0)
	srv.MountAPI(handlers.NewAPI(map[string]handlers.Router{}, nil, nil))

	req := httptest.NewRequest(http.MethodPost, "/v1/route/liftover", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)

	// Route exists, so GET is rejected rather than unknown.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/recover", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Addr(t *testing.T) {
	srv := New("127.0.0.1", 8080)
	assert.Equal(t, 8080, srv.Port())
	assert.Equal(t, "127.0.0.1:8080", srv.Addr())
	assert.Equal(t, "[::1]:9090", New("::1", 9090).Addr())
	assert.NoError(t, New("127.0.0.1", 0).Shutdown(context.Background()))
}
