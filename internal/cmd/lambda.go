package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/genoroute/internal/config"
	"github.com/3leaps/genoroute/internal/observability"
)

var (
	lambdaMode     string
	lambdaPipeline string
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run as an AWS Lambda function",
	Long: `Start the Lambda runtime loop. Must run inside the Lambda execution
environment.

Modes:
  route    SNS-wrapped S3 notifications, routed through --pipeline
  recover  EventBridge Batch job state-change events
  tag      SNS-wrapped S3 notifications, tagged with lifecycle policy

Mode and pipeline default to GENOROUTE_LAMBDA_MODE and GENOROUTE_PIPELINE.`,
	RunE: runLambda,
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
	lambdaCmd.Flags().StringVar(&lambdaMode, "mode", "", "Handler mode (route|recover|tag)")
	lambdaCmd.Flags().StringVarP(&lambdaPipeline, "pipeline", "p", "", "Pipeline for route mode")
}

// lambdaHandler handles one raw invocation payload. The returned value is
// the JSONL payload of the outcome.
type lambdaHandler func(ctx context.Context, payload json.RawMessage) (any, error)

func newLambdaHandler(mode, pipeline string, w wiring) (lambdaHandler, error) {
	switch mode {
	case config.LambdaModeRoute:
		rt, err := w.router(pipeline)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, payload json.RawMessage) (any, error) {
			res, err := rt.Route(ctx, payload)
			if err != nil {
				return nil, err
			}
			return res.Record(), nil
		}, nil

	case config.LambdaModeRecover:
		c := w.classifier()
		return func(ctx context.Context, payload json.RawMessage) (any, error) {
			out, err := c.OnJobStateChange(ctx, payload)
			if err != nil {
				return nil, err
			}
			return out.Output(), nil
		}, nil

	case config.LambdaModeTag:
		t, err := w.tagger()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, payload json.RawMessage) (any, error) {
			res, err := t.Apply(ctx, payload)
			if err != nil {
				return nil, err
			}
			return res.Record(), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown lambda mode %q (use route, recover or tag)", mode)
}

func runLambda(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	mode, pipeline := cfg.Lambda.Mode, cfg.Routing.Pipeline
	if lambdaMode != "" {
		mode = lambdaMode
	}
	if lambdaPipeline != "" {
		pipeline = lambdaPipeline
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}

	cl, err := newClients(ctx, cfg, "")
	if err != nil {
		return exitFor("Failed to create clients", err)
	}
	h, err := newLambdaHandler(mode, pipeline, wiring{cfg: cfg, clients: cl, logger: logger})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid lambda configuration", err)
	}

	logger.Info("starting lambda runtime", zap.String("mode", mode), zap.String("pipeline", pipeline))
	lambda.StartWithOptions(h, lambda.WithEnableSIGTERM(func() { _ = logger.Sync() }))
	return nil
}
