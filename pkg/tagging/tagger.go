package tagging

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/genoroute/pkg/artifact"
	"github.com/3leaps/genoroute/pkg/event"
	"github.com/3leaps/genoroute/pkg/output"
	"github.com/3leaps/genoroute/pkg/provider"
)

// Metrics receives tagging counters.
type Metrics interface {
	TagApplied(ctx context.Context, rule string)
}

type nopMetrics struct{}

func (nopMetrics) TagApplied(context.Context, string) {}

// Result describes one tag application.
type Result struct {
	Bucket string
	Key    string
	Rule   Rule
	Tags   []provider.Tag
	DryRun bool
}

// Record converts the result to its JSONL payload.
func (r *Result) Record() *output.TagRecord {
	return &output.TagRecord{
		Bucket: r.Bucket,
		Key:    r.Key,
		Rule:   string(r.Rule),
		Tags:   r.Tags,
		DryRun: r.DryRun,
	}
}

// Tagger applies the lifecycle policy through an ObjectTagger.
type Tagger struct {
	store   provider.ObjectTagger
	dryRun  bool
	logger  *zap.Logger
	metrics Metrics
}

// NewTagger creates a tagger writing through store. store may be nil when
// dryRun is set.
func NewTagger(store provider.ObjectTagger, dryRun bool) (*Tagger, error) {
	if store == nil && !dryRun {
		return nil, errors.New("tagging: object tagger is required")
	}
	return &Tagger{store: store, dryRun: dryRun, logger: zap.NewNop(), metrics: nopMetrics{}}, nil
}

// WithLogger sets the tag logger.
func (t *Tagger) WithLogger(l *zap.Logger) *Tagger {
	if l != nil {
		t.logger = l
	}
	return t
}

// WithMetrics sets the metrics sink.
func (t *Tagger) WithMetrics(m Metrics) *Tagger {
	if m != nil {
		t.metrics = m
	}
	return t
}

// Apply unwraps an SNS-wrapped notification and tags its object.
func (t *Tagger) Apply(ctx context.Context, raw []byte) (*Result, error) {
	n, err := event.UnwrapS3(raw)
	if err != nil {
		t.logger.Warn("rejected notification", zap.Error(err))
		return nil, err
	}
	return t.ApplyObject(ctx, n.Bucket, string(n.Key))
}

// ApplyObject tags bucket/key according to the policy. Store errors are
// wrapped with the object URI.
func (t *Tagger) ApplyObject(ctx context.Context, bucket, key string) (*Result, error) {
	rule, tags := For(bucket, key)
	res := &Result{Bucket: bucket, Key: key, Rule: rule, Tags: tags, DryRun: t.dryRun}

	if !t.dryRun {
		if err := t.store.PutObjectTagging(ctx, bucket, key, tags); err != nil {
			t.logger.Error("tagging failed",
				zap.String("bucket", bucket),
				zap.String("key", key),
				zap.String("rule", string(rule)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("tag %s: %w", artifact.URI(bucket, key), err)
		}
	}

	t.metrics.TagApplied(ctx, string(rule))
	t.logger.Info("tags applied",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("rule", string(rule)),
		zap.Any("tags", tags),
		zap.Bool("dry_run", t.dryRun),
	)
	return res, nil
}
