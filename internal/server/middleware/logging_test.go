package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel zapcore.Level
		wantMsg   string
	}{
		{name: "implicit ok", status: 0, wantLevel: zapcore.DebugLevel, wantMsg: "request served"},
		{name: "accepted", status: http.StatusAccepted, wantLevel: zapcore.DebugLevel, wantMsg: "request served"},
		{name: "bad gateway", status: http.StatusBadGateway, wantLevel: zapcore.WarnLevel, wantMsg: "request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			h := RequestID(Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte("{}"))
			})))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/tag", nil))

			entries := logs.All()
			require.Len(t, entries, 1)
			e := entries[0]
			assert.Equal(t, tt.wantLevel, e.Level)
			assert.Equal(t, tt.wantMsg, e.Message)

			fields := e.ContextMap()
			want := tt.status
			if want == 0 {
				want = http.StatusOK
			}
			assert.EqualValues(t, want, fields["status"])
			assert.Equal(t, "/v1/tag", fields["path"])
			assert.EqualValues(t, 2, fields["bytes"])
			assert.NotEmpty(t, fields["request_id"])
		})
	}
}

func TestMetrics_NoTelemetryPassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	Metrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
