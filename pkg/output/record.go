// Package output provides JSONL audit records for routing, recovery and
// tagging runs.
//
// Each line is a typed envelope holding one decision, recovery outcome, tag
// application, error or run summary. Lines are self-contained and can be
// parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/genoroute/pkg/job"
	"github.com/3leaps/genoroute/pkg/provider"
)

// Record type constants follow the pattern genoroute.<type>.v<version>.
const (
	TypeDecision = "genoroute.decision.v1"
	TypeRecovery = "genoroute.recovery.v1"
	TypeTag      = "genoroute.tag.v1"
	TypeError    = "genoroute.error.v1"
	TypeSummary  = "genoroute.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "genoroute.decision.v1").
	Type string `json:"type"`

	// TS is the time the record was written.
	TS time.Time `json:"ts"`

	// RunID correlates every record produced by one invocation.
	RunID string `json:"run_id"`

	// Provider identifies the storage provider (e.g., "s3", "file").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// DecisionRecord is the payload for one routing decision.
type DecisionRecord struct {
	Pipeline string `json:"pipeline"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`

	// Decision is one of submitted, skipped, not_ready, ambiguous, dry_run.
	Decision string `json:"decision"`

	Stage   string `json:"stage,omitempty"`
	Reason  string `json:"reason,omitempty"`
	JobName string `json:"job_name,omitempty"`
	JobID   string `json:"job_id,omitempty"`

	// Sibling is the resolved companion artifact, for fused stages.
	Sibling string `json:"sibling,omitempty"`

	// Spec is the derived job, present for submitted and dry_run decisions.
	Spec *job.Spec `json:"spec,omitempty"`
}

// RecoveryRecord is the payload for one failure-recovery outcome.
type RecoveryRecord struct {
	JobName        string  `json:"job_name"`
	JobID          string  `json:"job_id"`
	JobQueue       string  `json:"job_queue"`
	JobStatus      string  `json:"job_status"`
	JobDefinition  string  `json:"job_definition"`
	RuntimeMinutes float64 `json:"runtime_minutes"`
	JobDatetime    string  `json:"job_datetime,omitempty"`
	Attempts       int     `json:"attempts"`

	Container  *JobContainer     `json:"container,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`

	Resubmitted bool   `json:"resubmitted"`
	NewJobName  string `json:"new_job_name,omitempty"`
	NewJobID    string `json:"new_job_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// JobContainer is the container section of a recovered job.
type JobContainer struct {
	Image    string   `json:"image,omitempty"`
	Command  []string `json:"command,omitempty"`
	ExitCode *int     `json:"exit_code,omitempty"`
}

// TagRecord is the payload for one lifecycle tag application.
type TagRecord struct {
	Bucket string         `json:"bucket"`
	Key    string         `json:"key"`
	Rule   string         `json:"rule"`
	Tags   []provider.Tag `json:"tags"`
	DryRun bool           `json:"dry_run,omitempty"`
}

// ErrorRecord is the payload for errors.
//
// Errors are emitted as records so a replay run continues past bad envelopes.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Source identifies the input that failed (file:line, request id).
	Source string `json:"source,omitempty"`

	// Key is the object key related to this error, if known.
	Key string `json:"key,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeInvalidEvent      = "INVALID_EVENT"
	ErrCodeUnsupportedSource = "UNSUPPORTED_SOURCE"
	ErrCodeSubmission        = "SUBMISSION_FAILED"
	ErrCodeAccessDenied      = "ACCESS_DENIED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeThrottled         = "THROTTLED"
	ErrCodeInternal          = "INTERNAL"
)

// SummaryRecord is the payload for the final record of a run.
type SummaryRecord struct {
	Events int64 `json:"events"`

	// Decisions counts events by decision or recovery reason.
	Decisions map[string]int64 `json:"decisions,omitempty"`

	Errors int64 `json:"errors"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
