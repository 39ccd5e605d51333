package cmd

import (
	"context"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/genoroute/internal/observability"
	"github.com/3leaps/genoroute/pkg/job"
	"github.com/3leaps/genoroute/pkg/output"
	"github.com/3leaps/genoroute/pkg/provider"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Resubmit batch jobs lost to reclaimed hosts (JSONL)",
	Long: `Classify Batch job state-change events and resubmit jobs whose spot host
was reclaimed.

Input is one EventBridge "Batch Job State Change" event per line, read from
--input or stdin. A job is resubmitted once, under its name with the
_lambdaResub suffix, when it FAILED with a "Host EC2 ... terminated" reason.

Each event produces a genoroute.recovery.v1 record.

Examples:
  genoroute recover < job-events.jsonl
  genoroute recover -i job-events.jsonl --dry-run`,
	RunE: runRecover,
}

var (
	recoverInput  string
	recoverDryRun bool
	recoverOutput string
)

func init() {
	rootCmd.AddCommand(recoverCmd)
	recoverCmd.Flags().StringVarP(&recoverInput, "input", "i", "", "Job state-change JSONL file (default: stdin)")
	recoverCmd.Flags().BoolVar(&recoverDryRun, "dry-run", false, "Build resubmissions without submitting")
	recoverCmd.Flags().StringVarP(&recoverOutput, "output", "o", "", "Output file (default: stdout)")
}

func runRecover(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	base, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	cfg := *base
	if recoverDryRun {
		cfg.Recovery.DryRun = true
	}

	// Dry runs need no AWS client.
	cl := &clients{submitter: &job.DryRunSubmitter{}, provider: provider.ProviderBatch}
	if !cfg.Recovery.DryRun {
		if cl, err = newClients(ctx, &cfg, ""); err != nil {
			return exitFor("Failed to create clients", err)
		}
	}
	classifier := wiring{cfg: &cfg, clients: cl, logger: observability.CLILogger}.classifier()

	out, err := openOutput(cmd, recoverOutput)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open output", err)
	}
	defer func() { _ = out.Close() }()

	w := output.NewJSONLWriter(out, uuid.New().String(), string(provider.ProviderBatch))
	defer func() { _ = w.Close() }()

	in, err := openInput(cmd, recoverInput)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Failed to open input", err)
	}
	defer func() { _ = in.Close() }()

	stats := newReplayStats()
	err = replay(ctx, in, recoverInput, cfg.Workers, func(ctx context.Context, ln replayLine) {
		outcome, err := classifier.OnJobStateChange(ctx, ln.raw)
		if outcome != nil {
			if werr := w.WriteRecovery(context.Background(), outcome.Output()); werr != nil {
				observability.CLILogger.Warn("failed to write recovery record", zap.Error(werr))
			}
		}
		if err != nil {
			key := ""
			if outcome != nil {
				key = outcome.Record.JobName
			}
			stats.fail(w, ln.source, key, err)
			return
		}
		stats.decision(outcome.Reason)
	})
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read input", err)
	}
	return stats.finish(ctx, w, "Recover")
}
