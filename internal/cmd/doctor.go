package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/genoroute/internal/errors"
	"github.com/3leaps/genoroute/internal/observability"
	"github.com/3leaps/genoroute/pkg/stage"
)

var doctorAWS bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the runtime, the stage table and, with --aws,
the AWS credential chain.

Examples:
  genoroute doctor          # Runtime and stage table checks
  genoroute doctor --aws    # Also check AWS credentials and region`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorAWS, "aws", false, "Check AWS credentials and region")
}

func runDoctor(cmd *cobra.Command, _ []string) {
	bannerName := "doctor"
	if id := GetAppIdentity(); id != nil && id.BinaryName != "" {
		bannerName = id.BinaryName + " doctor"
	}
	log := observability.CLILogger
	log.Info("=== " + bannerName + " ===")
	log.Info("")

	ok := true
	n, total := 1, 4
	if doctorAWS {
		total = 6
	}

	goVersion := runtime.Version()
	log.Info(fmt.Sprintf("[%d/%d] Checking Go runtime... ✅ %s %s/%s", n, total, goVersion, runtime.GOOS, runtime.GOARCH),
		zap.String("go_version", goVersion))
	n++

	version := crucible.GetVersion()
	if version.Crucible == "" || version.Gofulmen == "" {
		log.Error(fmt.Sprintf("[%d/%d] Checking Fulmen libraries... ❌ Cannot read library versions", n, total))
		ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible",
			apperrors.NewExternalServiceError("Crucible metadata unavailable"))
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking Fulmen libraries... ✅ crucible v%s, gofulmen v%s", n, total, version.Crucible, version.Gofulmen),
		zap.String("crucible_version", version.Crucible),
		zap.String("gofulmen_version", version.Gofulmen))
	n++

	if err := checkStageTable(); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking stage table... ❌ %v", n, total, err))
		ok = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking stage table... ✅ %d pipelines", n, total, len(stage.Pipelines())))
	}
	n++

	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", n, total), zap.Error(err))
		ExitWithCode(log, foundry.ExitFileNotFound, "Cannot find config directory",
			apperrors.WrapInternal(cmd.Context(), err, "Cannot find config directory"))
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", n, total, configDir), zap.String("config_dir", configDir))
	n++

	if doctorAWS {
		ok = runAWSChecks(cmd.Context(), n, total) && ok
	}

	log.Info("")
	if ok {
		log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")
}

// checkStageTable builds every rule of every pipeline.
func checkStageTable() error {
	for _, p := range stage.Pipelines() {
		if _, err := p.Rules(); err != nil {
			return err
		}
	}
	return nil
}

func runAWSChecks(ctx context.Context, n, total int) bool {
	log := observability.CLILogger
	log.Info("")
	log.Info("AWS Checks:")

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", n, total), zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot retrieve credentials", n, total), zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ %s", n, total, source),
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("credential_source", source))
	n++

	region, from := cfg.Region, "config"
	if region == "" {
		region, from = imdsRegion(ctx), "instance metadata"
	}
	if region == "" {
		log.Warn(fmt.Sprintf("[%d/%d] Checking AWS region... ⚠️  No region configured (set AWS_REGION or GENOROUTE_AWS_REGION)", n, total))
		return false
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking AWS region... ✅ %s (%s)", n, total, region, from),
		zap.String("region", region))
	return true
}

// imdsRegion asks the instance metadata service for the region, returning
// "" off EC2 or on timeout.
func imdsRegion(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, err := imds.New(imds.Options{}).GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return ""
	}
	return out.Region
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printAWSCredentialsHelp() {
	log := observability.CLILogger
	log.Info("")
	log.Info("To configure AWS credentials:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	log.Info("  2. Run 'aws configure' to set up a profile, or")
	log.Info("  3. Use the Lambda execution role or an instance profile")
	log.Info("")
	log.Info("For local emulators (moto, LocalStack), also set:")
	log.Info("  - GENOROUTE_AWS_ENDPOINT and GENOROUTE_BATCH_ENDPOINT")
	log.Info("")
}
