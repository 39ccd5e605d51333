// Package job defines the batch job specification produced by routing and
// recovery, and the Submitter contract used to dispatch it.
package job

import (
	"context"
	"maps"
	"slices"
)

// Spec is a fully derived batch job request.
//
// A Spec is built fresh for every event and never mutated after derivation.
// Two derivations from the same inputs must produce equal Specs.
type Spec struct {
	// Stage names the pipeline stage that produced the spec. Empty for
	// recovery resubmissions.
	Stage string `json:"stage,omitempty" yaml:"stage,omitempty"`

	// Name is the batch job name.
	Name string `json:"job_name" yaml:"job_name"`

	// Queue is the job queue name or ARN.
	Queue string `json:"job_queue" yaml:"job_queue"`

	// Definition is the job definition name or ARN.
	Definition string `json:"job_definition" yaml:"job_definition"`

	// Command is the ordered container command override.
	Command []string `json:"command" yaml:"command"`

	// Parameters are batch job parameters.
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// Tags are batch job tags.
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// PropagateTags copies job tags onto the underlying compute resources.
	PropagateTags bool `json:"propagate_tags" yaml:"propagate_tags"`

	// OutputLocation is the s3:// location the stage writes to.
	OutputLocation string `json:"output_location,omitempty" yaml:"output_location,omitempty"`

	// Inputs lists the s3:// artifacts the command reads.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
}

// Clone returns a deep copy of the spec.
func (s Spec) Clone() Spec {
	out := s
	out.Command = slices.Clone(s.Command)
	out.Inputs = slices.Clone(s.Inputs)
	out.Parameters = maps.Clone(s.Parameters)
	out.Tags = maps.Clone(s.Tags)
	return out
}

// Submission is the batch service's acknowledgement of a submitted job.
type Submission struct {
	JobID   string `json:"job_id"`
	JobName string `json:"job_name"`
	JobARN  string `json:"job_arn,omitempty"`
}

// Submitter dispatches job specs to a batch compute service.
//
// Implementations must return a *SubmissionError for any rejection so
// callers can classify failures with errors.Is(err, ErrSubmission).
type Submitter interface {
	Submit(ctx context.Context, spec Spec) (*Submission, error)
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, spec Spec) (*Submission, error)

// Submit calls f(ctx, spec).
func (f SubmitterFunc) Submit(ctx context.Context, spec Spec) (*Submission, error) {
	return f(ctx, spec)
}
