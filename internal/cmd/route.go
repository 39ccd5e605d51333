package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/genoroute/internal/config"
	"github.com/3leaps/genoroute/internal/observability"
	"github.com/3leaps/genoroute/pkg/artifact"
	"github.com/3leaps/genoroute/pkg/output"
	"github.com/3leaps/genoroute/pkg/stage"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route artifact notifications to pipeline stages (JSONL)",
	Long: `Route SNS-wrapped S3 object-created notifications through a pipeline.

Input is one notification envelope per line, read from --input or stdin.
Use --bucket with one or more --key flags to route objects directly.

Each input produces a genoroute.decision.v1 record. Invalid envelopes and
submission failures are emitted as genoroute.error.v1 records, and the run
ends with a genoroute.summary.v1 record.

Examples:
  genoroute route -p liftover < events.jsonl
  genoroute route -p cassandra --bucket run-bucket --key proj/s1/dragen/s1.bam --dry-run
  genoroute route -p liftover -i events.jsonl --local-dir ./fixtures`,
	RunE: runRoute,
}

var (
	routePipeline string
	routeInput    string
	routeBucket   string
	routeKeys     []string
	routeDryRun   bool
	routeLocalDir string
	routeOutput   string
	routeRate     float64
	routeWorkers  int
)

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().StringVarP(&routePipeline, "pipeline", "p", "", "Pipeline to route through ("+strings.Join(stage.PipelineNames(), "|")+"; default from config)")
	routeCmd.Flags().StringVarP(&routeInput, "input", "i", "", "Notification JSONL file (default: stdin)")
	routeCmd.Flags().StringVar(&routeBucket, "bucket", "", "Bucket for --key")
	routeCmd.Flags().StringSliceVar(&routeKeys, "key", nil, "Object key to route directly (repeatable)")
	routeCmd.Flags().BoolVar(&routeDryRun, "dry-run", false, "Build job specs without submitting")
	routeCmd.Flags().StringVar(&routeLocalDir, "local-dir", "", "Resolve siblings against a local directory tree instead of S3")
	routeCmd.Flags().StringVarP(&routeOutput, "output", "o", "", "Output file (default: stdout)")
	routeCmd.Flags().Float64Var(&routeRate, "rate", -1, "Submissions per second (0 = unlimited; default from config)")
	routeCmd.Flags().IntVar(&routeWorkers, "workers", 0, "Concurrent routing workers (default from config)")
}

func runRoute(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	base, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	cfg, err := routeConfigFor(base, routePipeline, routeDryRun)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --pipeline", err)
	}
	if routeRate >= 0 {
		cfg.Submit.Rate = routeRate
	}
	if routeWorkers > 0 {
		cfg.Workers = routeWorkers
	}
	if len(routeKeys) > 0 && routeBucket == "" {
		return exitError(foundry.ExitInvalidArgument, "Invalid arguments", fmt.Errorf("--key requires --bucket"))
	}
	if routeBucket != "" && len(routeKeys) == 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid arguments", fmt.Errorf("--bucket requires at least one --key"))
	}

	cl, err := newClients(ctx, &cfg, routeLocalDir)
	if err != nil {
		return exitFor("Failed to create clients", err)
	}
	rt, err := wiring{cfg: &cfg, clients: cl, logger: observability.CLILogger}.router(cfg.Routing.Pipeline)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to build router", err)
	}

	out, err := openOutput(cmd, routeOutput)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open output", err)
	}
	defer func() { _ = out.Close() }()

	w := output.NewJSONLWriter(out, uuid.New().String(), string(cl.provider))
	defer func() { _ = w.Close() }()

	stats := newReplayStats()
	emit := func(source string, res routeOutcome) {
		if res.err != nil {
			stats.fail(w, source, res.key, res.err)
			return
		}
		stats.decision(res.decision)
		if err := w.WriteDecision(context.Background(), res.record); err != nil {
			observability.CLILogger.Warn("failed to write decision", zap.Error(err))
		}
	}

	if len(routeKeys) > 0 {
		for _, key := range routeKeys {
			if ctx.Err() != nil {
				break
			}
			res, err := rt.RouteLocation(ctx, artifact.Location{Bucket: routeBucket, Key: artifact.Key(key)})
			emit(artifact.URI(routeBucket, key), newRouteOutcome(key, res, err))
		}
		return stats.finish(ctx, w, "Route")
	}

	in, err := openInput(cmd, routeInput)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Failed to open input", err)
	}
	defer func() { _ = in.Close() }()

	err = replay(ctx, in, routeInput, cfg.Workers, func(ctx context.Context, ln replayLine) {
		res, err := rt.Route(ctx, ln.raw)
		emit(ln.source, newRouteOutcome("", res, err))
	})
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read input", err)
	}
	return stats.finish(ctx, w, "Route")
}

// routeOutcome flattens a router result or error for emission.
type routeOutcome struct {
	key      string
	decision string
	record   *output.DecisionRecord
	err      error
}

type decisionResult interface {
	Record() *output.DecisionRecord
}

func newRouteOutcome(key string, res decisionResult, err error) routeOutcome {
	if err != nil {
		return routeOutcome{key: key, err: err}
	}
	rec := res.Record()
	return routeOutcome{key: rec.Key, decision: rec.Decision, record: rec}
}

// routeConfigFor applies the --pipeline and --dry-run overrides to base.
func routeConfigFor(base *config.Config, pipeline string, dryRun bool) (config.Config, error) {
	cfg := *base
	if pipeline != "" {
		cfg.Routing.Pipeline = pipeline
	}
	if _, err := stage.PipelineByName(cfg.Routing.Pipeline); err != nil {
		return cfg, err
	}
	if dryRun {
		cfg.Routing.DryRun = true
	}
	return cfg, nil
}
