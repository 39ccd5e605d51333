package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// Batch job statuses.
const (
	JobStatusSubmitted = "SUBMITTED"
	JobStatusPending   = "PENDING"
	JobStatusRunnable  = "RUNNABLE"
	JobStatusStarting  = "STARTING"
	JobStatusRunning   = "RUNNING"
	JobStatusSucceeded = "SUCCEEDED"
	JobStatusFailed    = "FAILED"
)

// JobStateChange is a decoded Batch "Job State Change" event.
type JobStateChange struct {
	ID         string
	Source     string
	DetailType string
	Time       time.Time
	Region     string
	Detail     JobDetail
}

// JobDetail is the detail section of a job state-change event.
type JobDetail struct {
	JobName       string            `json:"jobName"`
	JobID         string            `json:"jobId"`
	JobQueue      string            `json:"jobQueue"`
	JobDefinition string            `json:"jobDefinition"`
	Status        string            `json:"status"`
	StatusReason  string            `json:"statusReason,omitempty"`
	Container     Container         `json:"container"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	Attempts      []Attempt         `json:"attempts,omitempty"`
	CreatedAt     int64             `json:"createdAt,omitempty"`
	StartedAt     int64             `json:"startedAt,omitempty"`
	StoppedAt     int64             `json:"stoppedAt,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	PropagateTags bool              `json:"propagateTags,omitempty"`
}

// Container is the subset of container details genoroute reads.
type Container struct {
	Image         string   `json:"image,omitempty"`
	Command       []string `json:"command,omitempty"`
	Vcpus         int      `json:"vcpus,omitempty"`
	Memory        int      `json:"memory,omitempty"`
	ExitCode      *int     `json:"exitCode,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	LogStreamName string   `json:"logStreamName,omitempty"`
}

// Attempt is one execution attempt of a job.
type Attempt struct {
	Container    Container `json:"container"`
	StartedAt    int64     `json:"startedAt,omitempty"`
	StoppedAt    int64     `json:"stoppedAt,omitempty"`
	StatusReason string    `json:"statusReason,omitempty"`
}

// DecodeJobStateChange decodes and validates a Batch state-change event.
func DecodeJobStateChange(raw []byte) (*JobStateChange, error) {
	var cw events.CloudWatchEvent
	if err := json.Unmarshal(raw, &cw); err != nil {
		return nil, fmt.Errorf("%w: job state change: %v", ErrMalformedEvent, err)
	}
	if cw.Source != SourceBatch {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventSource, cw.Source)
	}
	if err := ValidateJobStateChange(raw); err != nil {
		return nil, err
	}

	var detail JobDetail
	if err := json.Unmarshal(cw.Detail, &detail); err != nil {
		return nil, fmt.Errorf("%w: job state change detail: %v", ErrMalformedEvent, err)
	}

	return &JobStateChange{
		ID:         cw.ID,
		Source:     cw.Source,
		DetailType: cw.DetailType,
		Time:       cw.Time,
		Region:     cw.Region,
		Detail:     detail,
	}, nil
}
