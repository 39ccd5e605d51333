package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/genoroute/pkg/event"
	"github.com/3leaps/genoroute/pkg/job"
	"github.com/3leaps/genoroute/pkg/provider"
	"github.com/3leaps/genoroute/pkg/stage"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
		wantExit   int
	}{
		{
			name:       "unsupported source",
			err:        fmt.Errorf("unwrap: %w", event.ErrUnsupportedEventSource),
			wantCode:   CodeUnsupportedSource,
			wantStatus: http.StatusBadRequest,
			wantExit:   int(foundry.ExitInvalidArgument),
		},
		{
			name:       "batch size",
			err:        event.ErrBatchSize,
			wantCode:   CodeInvalidEvent,
			wantStatus: http.StatusBadRequest,
			wantExit:   int(foundry.ExitInvalidArgument),
		},
		{
			name:       "malformed",
			err:        event.ErrMalformedEvent,
			wantCode:   CodeInvalidEvent,
			wantStatus: http.StatusBadRequest,
			wantExit:   int(foundry.ExitInvalidArgument),
		},
		{
			name:       "unknown pipeline",
			err:        stage.ErrUnknownPipeline,
			wantCode:   CodeNotFound,
			wantStatus: http.StatusNotFound,
			wantExit:   int(foundry.ExitInvalidArgument),
		},
		{
			name:       "submission",
			err:        &job.SubmissionError{JobName: "j", Queue: "q", Err: assert.AnError},
			wantCode:   CodeSubmissionFailed,
			wantStatus: http.StatusBadGateway,
			wantExit:   int(foundry.ExitExternalServiceUnavailable),
		},
		{
			name:       "access denied",
			err:        &provider.ProviderError{Op: "List", Err: provider.ErrAccessDenied},
			wantCode:   CodeAccessDenied,
			wantStatus: http.StatusBadGateway,
			wantExit:   int(foundry.ExitExternalServiceUnavailable),
		},
		{
			name:       "throttled",
			err:        &provider.ProviderError{Op: "List", Err: provider.ErrThrottled},
			wantCode:   CodeThrottled,
			wantStatus: http.StatusServiceUnavailable,
			wantExit:   int(foundry.ExitExternalServiceUnavailable),
		},
		{
			name:       "other provider failure",
			err:        &provider.ProviderError{Op: "List", Err: provider.ErrProviderUnavailable},
			wantCode:   CodeExternalService,
			wantStatus: http.StatusBadGateway,
			wantExit:   int(foundry.ExitExternalServiceUnavailable),
		},
		{
			name:       "cancelled",
			err:        context.Canceled,
			wantCode:   CodeInternal,
			wantStatus: http.StatusServiceUnavailable,
			wantExit:   int(foundry.ExitSignalInt),
		},
		{
			name:       "unknown",
			err:        assert.AnError,
			wantCode:   CodeInternal,
			wantStatus: http.StatusInternalServerError,
			wantExit:   int(foundry.ExitExternalServiceUnavailable),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantExit, got.ExitCode)
			assert.Equal(t, tt.wantExit, ExitCode(tt.err))
		})
	}

	assert.Nil(t, Classify(nil))
	assert.Equal(t, 0, ExitCode(nil))
}

func TestClassify_PassesAppErrorThrough(t *testing.T) {
	orig := NewInvalidInputError("bad body", assert.AnError)
	got := Classify(fmt.Errorf("decode: %w", orig))
	assert.Same(t, orig, got)
}

func TestClassify_SubmissionDetails(t *testing.T) {
	got := Classify(&job.SubmissionError{JobName: "cassandra_s1", Queue: "reports-queue-prod", Code: "ClientException", Err: assert.AnError})
	assert.Equal(t, "cassandra_s1", got.Details["job_name"])
	assert.Equal(t, "reports-queue-prod", got.Details["job_queue"])
	assert.Equal(t, "ClientException", got.Details["service_code"])
}

func TestWrapInternal(t *testing.T) {
	err := WrapInternal(context.Background(), assert.AnError, "boom")
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.ErrorIs(t, err, assert.AnError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = WrapInternal(ctx, assert.AnError, "boom")
	assert.Equal(t, int(foundry.ExitSignalInt), err.ExitCode)
}

func TestRespondWithError(t *testing.T) {
	t.Run("client error includes cause", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rec.Header().Set(RequestIDHeader, "req-1")
		req := httptest.NewRequest(http.MethodPost, "/v1/recover", nil)

		RespondWithError(rec, req, fmt.Errorf("decode: %w", event.ErrMalformedEvent))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, CodeInvalidEvent, body.Error.Code)
		assert.Contains(t, body.Error.Message, "decode")
		assert.Equal(t, "req-1", body.Error.RequestID)
	})

	t.Run("server error hides cause", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/tag", nil)

		RespondWithError(rec, req, fmt.Errorf("secret detail: %w", assert.AnError))

		var body HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal error", body.Error.Message)
	})
}
