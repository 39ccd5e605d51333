// Package errors maps genoroute failures to HTTP responses and exit codes.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/3leaps/genoroute/pkg/event"
	"github.com/3leaps/genoroute/pkg/job"
	"github.com/3leaps/genoroute/pkg/provider"
	"github.com/3leaps/genoroute/pkg/stage"
)

// Error codes carried in HTTP error bodies.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidEvent       = "INVALID_EVENT"
	CodeUnsupportedSource  = "UNSUPPORTED_SOURCE"
	CodeSubmissionFailed   = "SUBMISSION_FAILED"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeThrottled          = "THROTTLED"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// RequestIDHeader is echoed into error bodies when present on the response.
const RequestIDHeader = "X-Request-ID"

// ErrorBody is the payload under "error".
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON body of every error response.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// AppError is a classified failure with its HTTP status and exit code.
type AppError struct {
	Code     string
	Message  string
	Status   int
	ExitCode int
	Details  map[string]any
	Err      error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns e with details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Status: http.StatusNotFound, ExitCode: int(foundry.ExitInvalidArgument)}
}

func NewMethodNotAllowedError(message string) *AppError {
	return &AppError{Code: CodeMethodNotAllowed, Message: message, Status: http.StatusMethodNotAllowed, ExitCode: int(foundry.ExitInvalidArgument)}
}

// NewInvalidInputError reports a request or event the caller must fix.
func NewInvalidInputError(message string, err error) *AppError {
	return &AppError{Code: CodeInvalidRequest, Message: message, Status: http.StatusBadRequest, ExitCode: int(foundry.ExitInvalidArgument), Err: err}
}

// NewExternalServiceError reports a dependency outside genoroute failing.
func NewExternalServiceError(message string) *AppError {
	return &AppError{Code: CodeExternalService, Message: message, Status: http.StatusBadGateway, ExitCode: int(foundry.ExitExternalServiceUnavailable)}
}

func NewServiceUnavailableError(message string, details map[string]any) *AppError {
	return &AppError{Code: CodeServiceUnavailable, Message: message, Status: http.StatusServiceUnavailable, ExitCode: int(foundry.ExitExternalServiceUnavailable), Details: details}
}

// WrapInternal classifies err as an internal failure unless ctx was cancelled.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	if ctx != nil && ctx.Err() != nil {
		return &AppError{Code: CodeInternal, Message: message, Status: http.StatusServiceUnavailable, ExitCode: int(foundry.ExitSignalInt), Err: err}
	}
	return internal(err, message)
}

func internal(err error, message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError, ExitCode: int(foundry.ExitExternalServiceUnavailable), Err: err}
}

// Classify maps any error to an AppError. AppErrors pass through unchanged.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	invalid := func(code, msg string) *AppError {
		return &AppError{Code: code, Message: msg, Status: http.StatusBadRequest, ExitCode: int(foundry.ExitInvalidArgument), Err: err}
	}
	upstream := func(code, msg string, status int) *AppError {
		return &AppError{Code: code, Message: msg, Status: status, ExitCode: int(foundry.ExitExternalServiceUnavailable), Err: err}
	}

	var subErr *job.SubmissionError
	switch {
	case stderrors.Is(err, event.ErrUnsupportedEventSource):
		return invalid(CodeUnsupportedSource, "unsupported event source")
	case stderrors.Is(err, event.ErrBatchSize), stderrors.Is(err, event.ErrMalformedEvent):
		return invalid(CodeInvalidEvent, "invalid event")
	case stderrors.Is(err, stage.ErrUnknownPipeline):
		return &AppError{Code: CodeNotFound, Message: "unknown pipeline", Status: http.StatusNotFound, ExitCode: int(foundry.ExitInvalidArgument), Err: err}
	case stderrors.As(err, &subErr):
		e := upstream(CodeSubmissionFailed, "job submission failed", http.StatusBadGateway)
		e.WithDetails(map[string]any{"job_name": subErr.JobName, "job_queue": subErr.Queue})
		if subErr.Code != "" {
			e.Details["service_code"] = subErr.Code
		}
		return e
	case stderrors.Is(err, job.ErrSubmission):
		return upstream(CodeSubmissionFailed, "job submission failed", http.StatusBadGateway)
	case provider.IsAccessDenied(err):
		return upstream(CodeAccessDenied, "storage access denied", http.StatusBadGateway)
	case provider.IsThrottled(err):
		return upstream(CodeThrottled, "storage request throttled", http.StatusServiceUnavailable)
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: CodeInternal, Message: "request cancelled", Status: http.StatusServiceUnavailable, ExitCode: int(foundry.ExitSignalInt), Err: err}
	}

	var provErr *provider.ProviderError
	if stderrors.As(err, &provErr) {
		return upstream(CodeExternalService, fmt.Sprintf("storage %s failed", provErr.Op), http.StatusBadGateway)
	}

	return internal(err, "internal error")
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return Classify(err).ExitCode
}

// RespondWithError writes err as an HTTPErrorResponse.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := Classify(err)
	message := appErr.Message
	if appErr.Status < http.StatusInternalServerError && appErr.Err != nil {
		message = appErr.Error()
	}
	WriteError(w, appErr.Status, ErrorBody{
		Code:      appErr.Code,
		Message:   message,
		RequestID: w.Header().Get(RequestIDHeader),
		Details:   appErr.Details,
	})
}

// WriteError writes body with status as JSON.
func WriteError(w http.ResponseWriter, status int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: body})
}
