// Package batch submits job specs to AWS Batch.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"github.com/3leaps/genoroute/pkg/job"
	"github.com/3leaps/genoroute/pkg/provider/s3"
)

// API is the subset of the Batch client used by Submitter.
type API interface {
	SubmitJob(ctx context.Context, in *awsbatch.SubmitJobInput, optFns ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error)
}

// Config configures a Batch submitter.
type Config struct {
	// AWS carries region, profile and credential settings. Endpoint, when
	// set, overrides the Batch endpoint.
	AWS s3.Config

	// RatePerSecond paces submissions. Zero disables pacing.
	RatePerSecond float64

	// Burst is the limiter burst size. Values below 1 are treated as 1.
	Burst int
}

// Submitter implements job.Submitter on top of SubmitJob.
type Submitter struct {
	client  API
	limiter *rate.Limiter
}

var _ job.Submitter = (*Submitter)(nil)

// New creates a Submitter using the shared AWS credential chain.
func New(ctx context.Context, cfg Config) (*Submitter, error) {
	if err := cfg.AWS.Validate(); err != nil {
		return nil, err
	}
	awsCfg, err := s3.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := awsbatch.NewFromConfig(awsCfg, func(o *awsbatch.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client. Only the pacing fields of cfg are used.
func NewWithClient(client API, cfg Config) *Submitter {
	s := &Submitter{client: client}
	if cfg.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.Burst, 1))
	}
	return s
}

// Submit sends spec to AWS Batch. Rejections are returned as *job.SubmissionError.
func (s *Submitter) Submit(ctx context.Context, spec job.Spec) (*job.Submission, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &job.SubmissionError{JobName: spec.Name, Queue: spec.Queue, Err: err}
		}
	}

	out, err := s.client.SubmitJob(ctx, buildInput(spec))
	if err != nil {
		return nil, wrapError(spec, err)
	}

	return &job.Submission{
		JobID:   aws.ToString(out.JobId),
		JobName: aws.ToString(out.JobName),
		JobARN:  aws.ToString(out.JobArn),
	}, nil
}

func buildInput(spec job.Spec) *awsbatch.SubmitJobInput {
	in := &awsbatch.SubmitJobInput{
		JobName:       aws.String(spec.Name),
		JobQueue:      aws.String(spec.Queue),
		JobDefinition: aws.String(spec.Definition),
		PropagateTags: aws.Bool(spec.PropagateTags),
	}
	if len(spec.Parameters) > 0 {
		in.Parameters = spec.Parameters
	}
	if len(spec.Tags) > 0 {
		in.Tags = spec.Tags
	}
	if len(spec.Command) > 0 {
		in.ContainerOverrides = &types.ContainerOverrides{Command: spec.Command}
	}
	return in
}

func wrapError(spec job.Spec, err error) error {
	se := &job.SubmissionError{JobName: spec.Name, Queue: spec.Queue, Err: err}

	var clientErr *types.ClientException
	var serverErr *types.ServerException
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &clientErr):
		se.Code = "ClientException"
	case errors.As(err, &serverErr):
		se.Code = "ServerException"
	case errors.As(err, &apiErr):
		se.Code = apiErr.ErrorCode()
	}
	return se
}
