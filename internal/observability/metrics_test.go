package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, tel *Telemetry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewTelemetry(t *testing.T) {
	tel, exporter, err := NewTelemetry("genoroute-test")
	require.NoError(t, err)
	require.NotNil(t, tel)
	require.NotNil(t, exporter)
	require.NotNil(t, tel.Metrics())
	defer func() { _ = tel.Shutdown(context.Background()) }()

	assert.NotNil(t, tel.Handler())
}

func TestMetrics_Exported(t *testing.T) {
	ctx := context.Background()
	tel, _, err := NewTelemetry("genoroute-test")
	require.NoError(t, err)
	defer func() { _ = tel.Shutdown(ctx) }()

	m := tel.Metrics()
	m.Decision(ctx, "liftover", "intersect", "submitted")
	m.Decision(ctx, "liftover", "", "skipped")
	m.SubmitError(ctx, "cassandra", "cassandra", "ClientException")
	m.Recovery(ctx, "host_reclaimed")
	m.TagApplied(ctx, "archive")
	m.RecordHTTPRequest(ctx, http.MethodPost, "/v1/route/liftover", 200, 0.01)

	body := scrape(t, tel)
	assert.Contains(t, body, "genoroute_routing_decisions_total")
	assert.Contains(t, body, `pipeline="liftover"`)
	assert.Contains(t, body, `stage="none"`)
	assert.Contains(t, body, "genoroute_submit_errors_total")
	assert.Contains(t, body, "genoroute_recovery_outcomes_total")
	assert.Contains(t, body, `reason="host_reclaimed"`)
	assert.Contains(t, body, "genoroute_tags_applied_total")
	assert.Contains(t, body, `path="/v1/route/{pipeline}"`)
}

func TestTelemetry_RegistriesAreIsolated(t *testing.T) {
	ctx := context.Background()
	a, _, err := NewTelemetry("a")
	require.NoError(t, err)
	b, _, err := NewTelemetry("b")
	require.NoError(t, err)

	a.Metrics().TagApplied(ctx, "delete")

	assert.Contains(t, scrape(t, a), `rule="delete"`)
	assert.NotContains(t, scrape(t, b), `rule="delete"`)
}

func TestInitTelemetry(t *testing.T) {
	origTelemetry, origExporter := TelemetrySystem, PrometheusExporter
	defer func() {
		TelemetrySystem, PrometheusExporter = origTelemetry, origExporter
	}()

	tel, err := InitTelemetry("genoroute-test")
	require.NoError(t, err)
	assert.Same(t, tel, TelemetrySystem)
	assert.NotNil(t, PrometheusExporter)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/v1/route/", "/v1/route/"},
		{"/v1/route/cassandra", "/v1/route/{pipeline}"},
		{"/v1/recover", "/v1/recover"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizePath(tt.input))
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		profile string
		wantErr bool
	}{
		{"structured info", "info", "STRUCTURED", false},
		{"console debug", "debug", "console", false},
		{"default profile", "warn", "", false},
		{"bad level", "loud", "STRUCTURED", true},
		{"bad profile", "info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.profile)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	InitCLILogger("test", true)
	require.NotNil(t, CLILogger)
	assert.True(t, CLILogger.Core().Enabled(-1))

	InitCLILogger("test", false)
	assert.False(t, CLILogger.Core().Enabled(-1))
}
