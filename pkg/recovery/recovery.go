// Package recovery resubmits batch jobs that failed because their spot host
// was reclaimed.
//
// The classifier reads a Batch job state-change event, flattens it into a
// Record, and resubmits the job once under ResubmitName when it failed with
// a host-reclaim reason. Nothing is persisted.
package recovery

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/genoroute/pkg/event"
	"github.com/3leaps/genoroute/pkg/job"
	"github.com/3leaps/genoroute/pkg/output"
)

// Outcome reasons.
const (
	ReasonResubmitted        = "host_reclaimed"
	ReasonNotFailed          = "not_failed"
	ReasonNotReclaimed       = "not_host_reclaimed"
	ReasonAlreadyResubmitted = "already_resubmitted"
	ReasonSubmitFailed       = "submission_failed"
	ReasonDryRun             = "dry_run"
)

var hostReclaimed = regexp.MustCompile(`^\bHost EC2\b.*\bterminated\b`)

// IsHostReclaimed reports whether a status reason says the job's EC2 host
// was terminated underneath it.
func IsHostReclaimed(reason string) bool {
	return hostReclaimed.MatchString(reason)
}

// ShortQueueName returns the queue name from a job queue ARN
// ("arn:...:job-queue/name" becomes "name"). Plain names are returned as is.
func ShortQueueName(queue string) string {
	if _, after, ok := strings.Cut(queue, "/"); ok {
		if name, _, _ := strings.Cut(after, "/"); name != "" {
			return name
		}
	}
	return queue
}

// Record is the flat view of a job state change. It omits the status reason.
type Record struct {
	JobName        string
	JobID          string
	JobQueue       string
	JobStatus      string
	JobDefinition  string
	RuntimeMinutes float64
	JobDatetime    time.Time
	Attempts       int
	Container      event.Container
	Parameters     map[string]string
}

// NewRecord flattens evt.
func NewRecord(evt *event.JobStateChange) Record {
	d := evt.Detail
	var runtime float64
	if d.StartedAt != 0 && d.StoppedAt != 0 {
		runtime = float64(d.StoppedAt-d.StartedAt) / 60000
	}
	return Record{
		JobName:        d.JobName,
		JobID:          d.JobID,
		JobQueue:       ShortQueueName(d.JobQueue),
		JobStatus:      d.Status,
		JobDefinition:  d.JobDefinition,
		RuntimeMinutes: runtime,
		JobDatetime:    evt.Time,
		Attempts:       len(d.Attempts),
		Container:      d.Container,
		Parameters:     d.Parameters,
	}
}

// Outcome is the result of classifying one state change.
type Outcome struct {
	Record      Record
	Resubmitted bool
	NewJobName  string
	NewJobID    string
	Reason      string

	// StatusReason is the raw batch status reason. It is logged but kept
	// out of the JSONL record.
	StatusReason string

	// Spec is the resubmission request, set whenever one was built.
	Spec *job.Spec
}

// Output converts the outcome to its JSONL payload.
func (o *Outcome) Output() *output.RecoveryRecord {
	rec := &output.RecoveryRecord{
		JobName:        o.Record.JobName,
		JobID:          o.Record.JobID,
		JobQueue:       o.Record.JobQueue,
		JobStatus:      o.Record.JobStatus,
		JobDefinition:  o.Record.JobDefinition,
		RuntimeMinutes: o.Record.RuntimeMinutes,
		Attempts:       o.Record.Attempts,
		Parameters:     o.Record.Parameters,
		Resubmitted:    o.Resubmitted,
		NewJobName:     o.NewJobName,
		NewJobID:       o.NewJobID,
		Reason:         o.Reason,
	}
	if !o.Record.JobDatetime.IsZero() {
		rec.JobDatetime = o.Record.JobDatetime.UTC().Format(time.RFC3339)
	}
	if c := o.Record.Container; c.Image != "" || len(c.Command) > 0 || c.ExitCode != nil {
		rec.Container = &output.JobContainer{Image: c.Image, Command: c.Command, ExitCode: c.ExitCode}
	}
	return rec
}

// Config configures the classifier.
type Config struct {
	// DryRun builds the resubmission without submitting it.
	DryRun bool
}

// Metrics receives recovery counters.
type Metrics interface {
	Recovery(ctx context.Context, reason string)
}

type nopMetrics struct{}

func (nopMetrics) Recovery(context.Context, string) {}

// Classifier decides whether failed jobs are resubmitted.
type Classifier struct {
	submitter job.Submitter
	config    Config
	logger    *zap.Logger
	metrics   Metrics
}

// New creates a classifier that resubmits through submitter.
func New(submitter job.Submitter, cfg Config) *Classifier {
	return &Classifier{
		submitter: submitter,
		config:    cfg,
		logger:    zap.NewNop(),
		metrics:   nopMetrics{},
	}
}

// WithLogger sets the outcome logger.
func (c *Classifier) WithLogger(l *zap.Logger) *Classifier {
	if l != nil {
		c.logger = l
	}
	return c
}

// WithMetrics sets the metrics sink.
func (c *Classifier) WithMetrics(m Metrics) *Classifier {
	if m != nil {
		c.metrics = m
	}
	return c
}

// OnJobStateChange decodes raw and classifies it.
func (c *Classifier) OnJobStateChange(ctx context.Context, raw []byte) (*Outcome, error) {
	evt, err := event.DecodeJobStateChange(raw)
	if err != nil {
		c.logger.Warn("rejected job state change", zap.Error(err))
		return nil, err
	}
	return c.Classify(ctx, evt)
}

// Classify applies the resubmission policy to a decoded event.
//
// A job is resubmitted only when its status is FAILED, its status reason
// is a host reclaim, and it is not itself a resubmission. A submission
// failure returns the outcome alongside the *job.SubmissionError.
func (c *Classifier) Classify(ctx context.Context, evt *event.JobStateChange) (*Outcome, error) {
	d := evt.Detail
	out := &Outcome{Record: NewRecord(evt), StatusReason: d.StatusReason}

	switch {
	case d.Status != event.JobStatusFailed:
		out.Reason = ReasonNotFailed
		return c.finish(ctx, out), nil
	case !IsHostReclaimed(d.StatusReason):
		out.Reason = ReasonNotReclaimed
		return c.finish(ctx, out), nil
	case job.IsResubmission(d.JobName):
		out.Reason = ReasonAlreadyResubmitted
		return c.finish(ctx, out), nil
	}

	spec := resubmission(evt)
	out.Spec = &spec
	out.NewJobName = spec.Name

	if c.config.DryRun {
		out.Reason = ReasonDryRun
		return c.finish(ctx, out), nil
	}

	sub, err := c.submitter.Submit(ctx, spec)
	if err != nil {
		var serr *job.SubmissionError
		if !errors.As(err, &serr) {
			serr = &job.SubmissionError{JobName: spec.Name, Queue: spec.Queue, Err: err}
		}
		out.Reason = ReasonSubmitFailed
		c.logger.Error("job resubmission failed",
			zap.String("job_name", d.JobName),
			zap.String("new_job_name", spec.Name),
			zap.String("job_queue", spec.Queue),
			zap.Error(serr),
		)
		return c.finish(ctx, out), serr
	}

	out.Resubmitted = true
	out.Reason = ReasonResubmitted
	out.NewJobID = sub.JobID
	return c.finish(ctx, out), nil
}

// resubmission rebuilds the failed job under its resubmission name.
func resubmission(evt *event.JobStateChange) job.Spec {
	d := evt.Detail
	spec := job.Spec{
		Name:       job.ResubmitName(d.JobName),
		Queue:      ShortQueueName(d.JobQueue),
		Definition: d.JobDefinition,
		Command:    d.Container.Command,
		Parameters: d.Parameters,
	}
	if len(d.Tags) > 0 {
		spec.Tags = d.Tags
		spec.PropagateTags = d.PropagateTags
	}
	return spec.Clone()
}

func (c *Classifier) finish(ctx context.Context, out *Outcome) *Outcome {
	c.metrics.Recovery(ctx, out.Reason)
	c.logger.Info("recovery outcome",
		zap.String("job_name", out.Record.JobName),
		zap.String("job_id", out.Record.JobID),
		zap.String("job_queue", out.Record.JobQueue),
		zap.String("job_status", out.Record.JobStatus),
		zap.Float64("runtime_minutes", out.Record.RuntimeMinutes),
		zap.Int("attempts", out.Record.Attempts),
		zap.Bool("resubmitted", out.Resubmitted),
		zap.String("new_job_name", out.NewJobName),
		zap.String("new_job_id", out.NewJobID),
		zap.String("reason", out.Reason),
		zap.String("status_reason", out.StatusReason),
	)
	return out
}
