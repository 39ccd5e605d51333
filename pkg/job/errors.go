package job

import (
	"errors"
	"fmt"
)

// ErrSubmission indicates the batch service rejected a job submission.
var ErrSubmission = errors.New("job submission failed")

// SubmissionError wraps a batch service failure with the job it concerned.
type SubmissionError struct {
	// JobName is the name of the rejected job.
	JobName string

	// Queue is the queue the job was submitted to.
	Queue string

	// Code is the service error code, if known (e.g. "ClientException").
	Code string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SubmissionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("submit %s to %s: %s: %v", e.JobName, e.Queue, e.Code, e.Err)
	}
	return fmt.Sprintf("submit %s to %s: %v", e.JobName, e.Queue, e.Err)
}

// Unwrap returns the underlying error.
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Is matches ErrSubmission so every SubmissionError classifies as a
// submission failure regardless of the wrapped cause.
func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmission
}
