package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/3leaps/genoroute/internal/errors"
)

type requestIDKey struct{}

// MaxRequestIDLength bounds caller-supplied request IDs.
const MaxRequestIDLength = 128

// RequestID propagates X-Request-ID, generating a UUID when absent.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(apperrors.RequestIDHeader)
		if id == "" || len(id) > MaxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(apperrors.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
