// Package middleware provides HTTP middleware for the genoroute server.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/genoroute/internal/errors"
	"github.com/3leaps/genoroute/internal/observability"
)

// ErrorResponse is the JSON body written for recovered panics.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery converts panics into a 500 error response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			requestID := GetRequestID(r.Context())
			observability.CLILogger.Error("panic serving request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID),
				zap.Any("panic", rec))

			envelope := gferrors.NewErrorEnvelope(apperrors.CodeInternal, fmt.Sprintf("panic: %v", rec))
			if requestID != "" {
				envelope = envelope.WithCorrelationID(requestID)
			}
			writeErrorResponse(w, envelope, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

// writeErrorResponse renders a gofulmen envelope in the server's error shape.
// Envelope context becomes the details map.
func writeErrorResponse(w http.ResponseWriter, envelope *gferrors.ErrorEnvelope, status int) {
	body := apperrors.ErrorBody{Code: apperrors.CodeInternal, Message: http.StatusText(status)}

	if raw, err := json.Marshal(envelope); err == nil {
		var fields map[string]any
		if json.Unmarshal(raw, &fields) == nil {
			if s, ok := fields["code"].(string); ok && s != "" {
				body.Code = s
			}
			if s, ok := fields["message"].(string); ok && s != "" {
				body.Message = s
			}
			if s, ok := fields["correlation_id"].(string); ok {
				body.RequestID = s
			}
			for _, key := range []string{"context", "details"} {
				if m, ok := fields[key].(map[string]any); ok && len(m) > 0 {
					body.Details = m
					break
				}
			}
		}
	}
	if body.RequestID == "" {
		body.RequestID = w.Header().Get(apperrors.RequestIDHeader)
	}

	apperrors.WriteError(w, status, body)
}
