// Package router turns object-created notifications into at most one batch
// job submission.
//
// A Router serves one stage.Pipeline. For each notification it unwraps the
// SNS envelope, applies the key scope, selects the first matching rule,
// resolves the rule's sibling artifact when it has one, derives the job spec
// and submits it. Routing is stateless: every decision is re-derived from
// the key and, for fused stages, one sibling listing.
package router

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/genoroute/pkg/artifact"
	"github.com/3leaps/genoroute/pkg/event"
	"github.com/3leaps/genoroute/pkg/job"
	"github.com/3leaps/genoroute/pkg/match"
	"github.com/3leaps/genoroute/pkg/provider"
	"github.com/3leaps/genoroute/pkg/stage"
)

// ErrListerRequired is returned by New when a pipeline has sibling-dependent
// stages but no Lister was supplied.
var ErrListerRequired = errors.New("pipeline requires a lister for sibling lookup")

// Config configures router behavior.
type Config struct {
	// SiblingMaxPages bounds how many listing pages a sibling lookup reads.
	// Default: 1
	SiblingMaxPages int

	// DryRun derives and reports specs without submitting them.
	DryRun bool
}

// DefaultConfig returns the default router configuration.
func DefaultConfig() Config {
	return Config{SiblingMaxPages: 1}
}

// Metrics receives routing counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Decision(ctx context.Context, pipeline, stage, decision string)
	SubmitError(ctx context.Context, pipeline, stage, code string)
}

type nopMetrics struct{}

func (nopMetrics) Decision(context.Context, string, string, string) {}
func (nopMetrics) SubmitError(context.Context, string, string, string) {}

// Router routes notifications for one pipeline.
//
// A Router holds no per-event state and is safe for concurrent use.
type Router struct {
	pipeline  stage.Pipeline
	lister    provider.Lister
	submitter job.Submitter
	config    Config

	scope   *match.Scope
	logger  *zap.Logger
	metrics Metrics
}

// New creates a router for pipeline p.
//
// lister may be nil only when no stage in p needs a sibling lookup.
func New(p stage.Pipeline, lister provider.Lister, submitter job.Submitter, cfg Config) (*Router, error) {
	if submitter == nil {
		return nil, errors.New("router: submitter is required")
	}
	rules, err := p.Rules()
	if err != nil {
		return nil, err
	}
	if lister == nil {
		for _, r := range rules {
			if r.Sibling != nil {
				return nil, fmt.Errorf("%w: %s needs %s siblings", ErrListerRequired, r.Stage, r.Sibling.Suffix)
			}
		}
	}
	if cfg.SiblingMaxPages <= 0 {
		cfg.SiblingMaxPages = DefaultConfig().SiblingMaxPages
	}

	return &Router{
		pipeline:  p,
		lister:    lister,
		submitter: submitter,
		config:    cfg,
		scope:     match.All(),
		logger:    zap.NewNop(),
		metrics:   nopMetrics{},
	}, nil
}

// WithScope restricts routing to keys admitted by s.
func (r *Router) WithScope(s *match.Scope) *Router {
	if s != nil {
		r.scope = s
	}
	return r
}

// WithLogger sets the decision logger.
func (r *Router) WithLogger(l *zap.Logger) *Router {
	if l != nil {
		r.logger = l
	}
	return r
}

// WithMetrics sets the metrics sink.
func (r *Router) WithMetrics(m Metrics) *Router {
	if m != nil {
		r.metrics = m
	}
	return r
}

// Pipeline returns the pipeline this router serves.
func (r *Router) Pipeline() stage.Pipeline {
	return r.pipeline
}

// Route handles one raw SNS-wrapped notification.
//
// Envelope errors (event.ErrMalformedEvent, event.ErrBatchSize,
// event.ErrUnsupportedEventSource) and submission failures are returned.
// Soft skips are reported in the Result with a nil error.
func (r *Router) Route(ctx context.Context, raw []byte) (*Result, error) {
	n, err := event.UnwrapS3(raw)
	if err != nil {
		r.logger.Warn("rejected notification", zap.String("pipeline", r.pipeline.Name), zap.Error(err))
		return nil, err
	}
	return r.RouteLocation(ctx, n.Location)
}

// RouteLocation routes an already-unwrapped bucket/key.
func (r *Router) RouteLocation(ctx context.Context, loc artifact.Location) (*Result, error) {
	res := &Result{Pipeline: r.pipeline.Name, Bucket: loc.Bucket, Key: loc.Key}

	if ok, why := r.scope.Check(string(loc.Key)); !ok {
		res.Decision = DecisionSkipped
		res.Reason = ReasonOutOfScope + ":" + why
		return r.finish(ctx, res), nil
	}

	rule, ok := r.pipeline.Select(loc.Key)
	if !ok {
		res.Decision = DecisionSkipped
		res.Reason = ReasonNoMatch
		return r.finish(ctx, res), nil
	}
	res.Stage = rule.Stage

	in := stage.Input{Bucket: loc.Bucket, Key: loc.Key}
	if rule.Sibling != nil {
		sib, err := r.resolveSibling(ctx, rule, loc)
		if err != nil {
			if soft := softSkip(res, err); soft {
				return r.finish(ctx, res), nil
			}
			return nil, err
		}
		in.Sibling = sib
		res.Sibling = sib
	}

	spec, err := rule.Derive(in)
	if err != nil {
		if soft := softSkip(res, err); soft {
			return r.finish(ctx, res), nil
		}
		return nil, err
	}
	res.Spec = &spec
	res.JobName = spec.Name

	if r.config.DryRun {
		res.Decision = DecisionDryRun
		return r.finish(ctx, res), nil
	}

	sub, err := r.submitter.Submit(ctx, spec)
	if err != nil {
		serr := asSubmissionError(spec, err)
		r.metrics.SubmitError(ctx, r.pipeline.Name, rule.Stage.String(), serr.Code)
		r.logger.Error("job submission failed",
			zap.String("pipeline", r.pipeline.Name),
			zap.String("bucket", loc.Bucket),
			zap.String("key", string(loc.Key)),
			zap.String("stage", rule.Stage.String()),
			zap.String("job_name", spec.Name),
			zap.String("job_queue", spec.Queue),
			zap.Error(serr),
		)
		return nil, serr
	}

	res.Decision = DecisionSubmitted
	res.JobID = sub.JobID
	if sub.JobName != "" {
		res.JobName = sub.JobName
	}
	return r.finish(ctx, res), nil
}

func (r *Router) resolveSibling(ctx context.Context, rule stage.Rule, loc artifact.Location) (artifact.Key, error) {
	res, err := stage.ResolveSibling(ctx, r.lister, loc.Bucket, loc.Key, *rule.Sibling, r.config.SiblingMaxPages)
	if res != nil && res.Truncated {
		r.logger.Warn("sibling listing truncated",
			zap.String("pipeline", r.pipeline.Name),
			zap.String("stage", rule.Stage.String()),
			zap.String("bucket", loc.Bucket),
			zap.String("prefix", res.Prefix),
			zap.Int("pages", res.Pages),
			zap.Int("matches", len(res.Matches)),
		)
	}
	if err != nil {
		return "", err
	}
	return res.Key, nil
}

// softSkip classifies err as a logged skip, filling res. It reports false for
// errors that must propagate.
func softSkip(res *Result, err error) bool {
	switch {
	case errors.Is(err, stage.ErrClassificationAmbiguous):
		res.Decision = DecisionAmbiguous
		res.Reason = ReasonSiblingAmbiguous
	case errors.Is(err, artifact.ErrShallowKey):
		res.Decision = DecisionNotReady
		res.Reason = ReasonShallowKey
	case errors.Is(err, stage.ErrNotReady):
		res.Decision = DecisionNotReady
		res.Reason = ReasonSiblingMissing
	default:
		return false
	}
	res.Detail = err.Error()
	return true
}

func asSubmissionError(spec job.Spec, err error) *job.SubmissionError {
	var serr *job.SubmissionError
	if errors.As(err, &serr) {
		return serr
	}
	return &job.SubmissionError{JobName: spec.Name, Queue: spec.Queue, Err: err}
}

func (r *Router) finish(ctx context.Context, res *Result) *Result {
	r.metrics.Decision(ctx, res.Pipeline, res.StageName(), string(res.Decision))

	fields := []zap.Field{
		zap.String("pipeline", res.Pipeline),
		zap.String("bucket", res.Bucket),
		zap.String("key", string(res.Key)),
		zap.String("stage", res.StageName()),
		zap.String("decision", string(res.Decision)),
		zap.String("job_name", res.JobName),
		zap.String("job_id", res.JobID),
	}
	if res.Reason != "" {
		fields = append(fields, zap.String("reason", res.Reason))
	}
	if res.Detail != "" {
		fields = append(fields, zap.String("detail", res.Detail))
	}
	if res.Sibling != "" {
		fields = append(fields, zap.String("sibling", string(res.Sibling)))
	}
	r.logger.Info("routing decision", fields...)
	return res
}
