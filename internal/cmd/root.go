// Package cmd implements the genoroute command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/genoroute/internal/config"
	apperrors "github.com/3leaps/genoroute/internal/errors"
	"github.com/3leaps/genoroute/internal/observability"
)

// VersionInfo is build metadata injected by main.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var (
	versionInfo = VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
	appIdentity *config.Identity
	appConfig   *config.Config

	verbose    bool
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "genoroute",
	Short: "Route genomics pipeline artifacts to batch jobs",
	Long: `genoroute turns object-created notifications for pipeline artifacts into
batch job submissions, resubmits jobs lost to reclaimed hosts, and tags new
artifacts with lifecycle policy.

Configuration is read from genoroute.yaml (or $GENOROUTE_CONFIG) and
GENOROUTE_* environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: genoroute.yaml in the project or user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug|info|warn|error)")
}

// SetVersionInfo records build metadata for the version command and server.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity set during startup, or nil before it.
func GetAppIdentity() *config.Identity {
	return appIdentity
}

// Execute runs the root command and exits with the mapped code on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		code := exitCodeOf(err)
		observability.CLILogger.Error(err.Error(), zap.Int("exit_code", code))
		_ = observability.CLILogger.Sync()
		os.Exit(code)
	}
}

func initRuntime(cmd *cobra.Command, _ []string) error {
	id := config.DefaultIdentity
	appIdentity = &id

	observability.InitCLILogger(id.BinaryName, verbose)

	if configPath != "" {
		if err := os.Setenv(config.ConfigFileEnv, configPath); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --config", err)
		}
	}

	var overrides []map[string]any
	if logLevel != "" {
		overrides = append(overrides, map[string]any{"logging": map[string]any{"level": logLevel}})
	}
	if verbose {
		overrides = append(overrides, map[string]any{"logging": map[string]any{"level": "debug"}})
	}

	cfg, err := config.Load(cmd.Context(), overrides...)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	appConfig = cfg

	observability.CLILogger.Debug("configuration loaded",
		zap.String("source", cfg.Source),
		zap.String("pipeline", cfg.Routing.Pipeline),
		zap.String("log_level", cfg.Logging.Level))
	return nil
}

// setDefaults registers config defaults on the global viper instance.
func setDefaults() {
	config.SetDefaults(viper.GetViper())
}

// ExitCodeError carries a process exit code with its cause.
type ExitCodeError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (exit code %d): %v", e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (exit code %d)", e.Message, e.Code)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

func exitError(code int, message string, err error) error {
	return &ExitCodeError{Code: code, Message: message, Err: err}
}

// exitFor wraps err with the exit code its classification implies.
func exitFor(message string, err error) error {
	return exitError(apperrors.ExitCode(err), message, err)
}

func exitCodeOf(err error) int {
	var ece *ExitCodeError
	if errors.As(err, &ece) {
		return ece.Code
	}
	return apperrors.ExitCode(err)
}

// ExitWithCode logs message and terminates the process.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	logger.Error(message, zap.Int("exit_code", code), zap.Error(err))
	_ = logger.Sync()
	os.Exit(code)
}

// currentConfig returns the loaded config, loading defaults if the root
// pre-run did not execute (as in direct test calls).
func currentConfig(ctx context.Context) (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	appConfig = cfg
	return cfg, nil
}
