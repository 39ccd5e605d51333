package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/genoroute/internal/config"
	"github.com/3leaps/genoroute/internal/observability"
	"github.com/3leaps/genoroute/pkg/job"
	"github.com/3leaps/genoroute/pkg/match"
	"github.com/3leaps/genoroute/pkg/provider"
	"github.com/3leaps/genoroute/pkg/provider/batch"
	"github.com/3leaps/genoroute/pkg/provider/file"
	"github.com/3leaps/genoroute/pkg/provider/s3"
	"github.com/3leaps/genoroute/pkg/recovery"
	"github.com/3leaps/genoroute/pkg/router"
	"github.com/3leaps/genoroute/pkg/stage"
	"github.com/3leaps/genoroute/pkg/tagging"
)

// clients are the storage and batch handles shared by one process.
type clients struct {
	lister    provider.Lister
	store     provider.ObjectTagger
	submitter job.Submitter
	provider  provider.ProviderType
}

// newClients builds AWS clients from cfg. A non-empty localDir replaces
// S3 with a directory tree and Batch with a recording dry-run submitter.
func newClients(ctx context.Context, cfg *config.Config, localDir string) (*clients, error) {
	if localDir != "" {
		fp, err := file.New(file.Config{BaseDir: localDir})
		if err != nil {
			return nil, fmt.Errorf("open local dir: %w", err)
		}
		return &clients{lister: fp, store: fp, submitter: &job.DryRunSubmitter{}, provider: provider.ProviderFile}, nil
	}

	awsCfg := s3.Config{
		Region:         cfg.AWS.Region,
		Profile:        cfg.AWS.Profile,
		Endpoint:       cfg.AWS.Endpoint,
		ForcePathStyle: cfg.AWS.ForcePathStyle,
	}
	sp, err := s3.New(ctx, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	batchAWS := awsCfg
	batchAWS.Endpoint = cfg.AWS.BatchEndpoint
	sub, err := batch.New(ctx, batch.Config{
		AWS:           batchAWS,
		RatePerSecond: cfg.Submit.Rate,
		Burst:         cfg.Submit.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("create batch client: %w", err)
	}

	return &clients{lister: sp, store: sp, submitter: sub, provider: provider.ProviderS3}, nil
}

// wiring builds routers, the classifier and the tagger over clients.
type wiring struct {
	cfg     *config.Config
	clients *clients
	logger  *zap.Logger
	metrics *observability.Metrics
}

func (w wiring) router(pipeline string) (*router.Router, error) {
	p, err := stage.PipelineByName(pipeline)
	if err != nil {
		return nil, err
	}
	scope, err := match.New(w.cfg.Routing.Scope)
	if err != nil {
		return nil, fmt.Errorf("routing scope: %w", err)
	}
	rt, err := router.New(p, w.clients.lister, w.clients.submitter, router.Config{
		SiblingMaxPages: w.cfg.Routing.SiblingMaxPages,
		DryRun:          w.cfg.Routing.DryRun,
	})
	if err != nil {
		return nil, err
	}
	rt.WithScope(scope).WithLogger(w.logger)
	if w.metrics != nil {
		rt.WithMetrics(w.metrics)
	}
	return rt, nil
}

func (w wiring) routers() (map[string]*router.Router, error) {
	out := make(map[string]*router.Router)
	for _, name := range stage.PipelineNames() {
		rt, err := w.router(name)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", name, err)
		}
		out[name] = rt
	}
	return out, nil
}

func (w wiring) classifier() *recovery.Classifier {
	c := recovery.New(w.clients.submitter, recovery.Config{DryRun: w.cfg.Recovery.DryRun}).WithLogger(w.logger)
	if w.metrics != nil {
		c.WithMetrics(w.metrics)
	}
	return c
}

func (w wiring) tagger() (*tagging.Tagger, error) {
	t, err := tagging.NewTagger(w.clients.store, w.cfg.Tagging.DryRun)
	if err != nil {
		return nil, err
	}
	t.WithLogger(w.logger)
	if w.metrics != nil {
		t.WithMetrics(w.metrics)
	}
	return t, nil
}
