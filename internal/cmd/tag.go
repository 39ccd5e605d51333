package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/genoroute/internal/observability"
	"github.com/3leaps/genoroute/pkg/artifact"
	"github.com/3leaps/genoroute/pkg/output"
	"github.com/3leaps/genoroute/pkg/tagging"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Apply lifecycle tags to new artifacts (JSONL)",
	Long: `Apply the lifecycle tag policy to objects named by S3 notifications.

Input is one SNS-wrapped notification per line, read from --input or stdin.
Use --bucket with one or more --key flags to tag objects directly.

Each object produces a genoroute.tag.v1 record naming the matched rule.

Examples:
  genoroute tag < events.jsonl
  genoroute tag --bucket run-bucket --key proj/s1/s1.vcf.gz --dry-run`,
	RunE: runTag,
}

var (
	tagInput    string
	tagBucket   string
	tagKeys     []string
	tagDryRun   bool
	tagLocalDir string
	tagOutput   string
)

func init() {
	rootCmd.AddCommand(tagCmd)
	tagCmd.Flags().StringVarP(&tagInput, "input", "i", "", "Notification JSONL file (default: stdin)")
	tagCmd.Flags().StringVar(&tagBucket, "bucket", "", "Bucket for --key")
	tagCmd.Flags().StringSliceVar(&tagKeys, "key", nil, "Object key to tag directly (repeatable)")
	tagCmd.Flags().BoolVar(&tagDryRun, "dry-run", false, "Report tags without writing them")
	tagCmd.Flags().StringVar(&tagLocalDir, "local-dir", "", "Write tags to a local directory tree instead of S3")
	tagCmd.Flags().StringVarP(&tagOutput, "output", "o", "", "Output file (default: stdout)")
}

func runTag(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	base, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	cfg := *base
	if tagDryRun {
		cfg.Tagging.DryRun = true
	}
	if (len(tagKeys) > 0) != (tagBucket != "") {
		return exitError(foundry.ExitInvalidArgument, "Invalid arguments", fmt.Errorf("--bucket and --key must be used together"))
	}

	cl, err := newClients(ctx, &cfg, tagLocalDir)
	if err != nil {
		return exitFor("Failed to create clients", err)
	}
	tagger, err := wiring{cfg: &cfg, clients: cl, logger: observability.CLILogger}.tagger()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to build tagger", err)
	}

	out, err := openOutput(cmd, tagOutput)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open output", err)
	}
	defer func() { _ = out.Close() }()

	w := output.NewJSONLWriter(out, uuid.New().String(), string(cl.provider))
	defer func() { _ = w.Close() }()

	stats := newReplayStats()
	emit := func(source, key string, res *tagging.Result, err error) {
		if err != nil {
			stats.fail(w, source, key, err)
			return
		}
		stats.decision(string(res.Rule))
		if werr := w.WriteTag(context.Background(), res.Record()); werr != nil {
			observability.CLILogger.Warn("failed to write tag record", zap.Error(werr))
		}
	}

	if len(tagKeys) > 0 {
		for _, key := range tagKeys {
			if ctx.Err() != nil {
				break
			}
			res, err := tagger.ApplyObject(ctx, tagBucket, key)
			emit(artifact.URI(tagBucket, key), key, res, err)
		}
		return stats.finish(ctx, w, "Tag")
	}

	in, err := openInput(cmd, tagInput)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Failed to open input", err)
	}
	defer func() { _ = in.Close() }()

	err = replay(ctx, in, tagInput, cfg.Workers, func(ctx context.Context, ln replayLine) {
		res, err := tagger.Apply(ctx, ln.raw)
		emit(ln.source, "", res, err)
	})
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read input", err)
	}
	return stats.finish(ctx, w, "Tag")
}
