// Package config loads genoroute configuration from layered sources.
//
// Layers, lowest precedence first: built-in defaults, a YAML config file,
// GENOROUTE_* environment variables, then runtime overrides passed to Load.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/pathfinder"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/genoroute/pkg/match"
	"github.com/3leaps/genoroute/pkg/stage"
)

// Identity names the binary and its configuration surfaces.
type Identity struct {
	BinaryName string
	ConfigName string
	EnvPrefix  string
}

// DefaultIdentity is the identity of the genoroute binary.
var DefaultIdentity = Identity{
	BinaryName: "genoroute",
	ConfigName: "genoroute",
	EnvPrefix:  "GENOROUTE",
}

// ConfigFileEnv names the environment variable holding an explicit config path.
const ConfigFileEnv = "GENOROUTE_CONFIG"

// Config is the fully resolved configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Debug    DebugConfig    `mapstructure:"debug"`
	Workers  int            `mapstructure:"workers"`
	AWS      AWSConfig      `mapstructure:"aws"`
	Routing  RoutingConfig  `mapstructure:"routing"`
	Recovery RecoveryConfig `mapstructure:"recovery"`
	Tagging  TaggingConfig  `mapstructure:"tagging"`
	Submit   SubmitConfig   `mapstructure:"submit"`
	Lambda   LambdaConfig   `mapstructure:"lambda"`

	// Source is the config file that was read, if any.
	Source string `mapstructure:"-"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// AWSConfig is shared by the S3 and Batch clients.
type AWSConfig struct {
	Region         string `mapstructure:"region"`
	Profile        string `mapstructure:"profile"`
	Endpoint       string `mapstructure:"endpoint"`
	BatchEndpoint  string `mapstructure:"batch_endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// RoutingConfig controls the artifact router.
type RoutingConfig struct {
	// Pipeline is the pipeline routed by "genoroute lambda" and "genoroute route"
	// when no --pipeline flag is given.
	Pipeline        string       `mapstructure:"pipeline"`
	SiblingMaxPages int          `mapstructure:"sibling_max_pages"`
	DryRun          bool         `mapstructure:"dry_run"`
	Scope           match.Config `mapstructure:"scope"`
}

type RecoveryConfig struct {
	DryRun bool `mapstructure:"dry_run"`
}

type TaggingConfig struct {
	DryRun bool `mapstructure:"dry_run"`
}

// SubmitConfig paces job submissions. Rate 0 disables pacing.
type SubmitConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

// LambdaConfig selects the handler run by "genoroute lambda".
type LambdaConfig struct {
	Mode string `mapstructure:"mode"`
}

// Lambda handler modes.
const (
	LambdaModeRoute   = "route"
	LambdaModeRecover = "recover"
	LambdaModeTag     = "tag"
)

var (
	configMu    sync.RWMutex
	appIdentity *Identity
	appConfig   *Config
)

// Load resolves configuration from all layers and stores it for GetConfig.
//
// Each overrides map is applied in order and takes precedence over every
// other layer. Nested maps address nested keys.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	defer configMu.Unlock()

	if appIdentity == nil {
		id := DefaultIdentity
		appIdentity = &id
	}

	v := viper.New()
	SetDefaults(v)

	source, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	for _, spec := range envSpecsLocked() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = source
	cfg.Logging.Profile = strings.ToUpper(cfg.Logging.Profile)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently loaded config, or nil before Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// ErrInvalidConfig marks a config that decoded but failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	if c.Routing.SiblingMaxPages < 1 {
		return fmt.Errorf("%w: routing.sibling_max_pages must be >= 1", ErrInvalidConfig)
	}
	if c.Routing.Pipeline != "" {
		if _, err := stage.PipelineByName(c.Routing.Pipeline); err != nil {
			return fmt.Errorf("%w: routing.pipeline: %v", ErrInvalidConfig, err)
		}
	}
	if c.Submit.Rate < 0 {
		return fmt.Errorf("%w: submit.rate must be >= 0", ErrInvalidConfig)
	}
	switch c.Lambda.Mode {
	case LambdaModeRoute, LambdaModeRecover, LambdaModeTag:
	default:
		return fmt.Errorf("%w: lambda.mode %q", ErrInvalidConfig, c.Lambda.Mode)
	}
	return nil
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)

	v.SetDefault("workers", 4)

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.batch_endpoint", "")
	v.SetDefault("aws.force_path_style", false)

	v.SetDefault("routing.pipeline", "")
	v.SetDefault("routing.sibling_max_pages", 1)
	v.SetDefault("routing.dry_run", false)
	v.SetDefault("routing.scope.includes", []string{"**"})
	v.SetDefault("routing.scope.excludes", []string{})
	v.SetDefault("routing.scope.key_regex", "")
	v.SetDefault("routing.scope.include_hidden", true)

	v.SetDefault("recovery.dry_run", false)
	v.SetDefault("tagging.dry_run", false)

	v.SetDefault("submit.rate", 0)
	v.SetDefault("submit.burst", 1)

	v.SetDefault("lambda.mode", LambdaModeRoute)
}

type envSpec struct {
	Name string
	Path string
}

var envPaths = []struct{ suffix, path string }{
	{"HOST", "server.host"},
	{"PORT", "server.port"},
	{"READ_TIMEOUT", "server.read_timeout"},
	{"WRITE_TIMEOUT", "server.write_timeout"},
	{"IDLE_TIMEOUT", "server.idle_timeout"},
	{"SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
	{"LOG_LEVEL", "logging.level"},
	{"LOG_PROFILE", "logging.profile"},
	{"METRICS_ENABLED", "metrics.enabled"},
	{"METRICS_PORT", "metrics.port"},
	{"HEALTH_ENABLED", "health.enabled"},
	{"DEBUG_ENABLED", "debug.enabled"},
	{"PPROF_ENABLED", "debug.pprof_enabled"},
	{"WORKERS", "workers"},
	{"AWS_REGION", "aws.region"},
	{"AWS_PROFILE", "aws.profile"},
	{"AWS_ENDPOINT", "aws.endpoint"},
	{"BATCH_ENDPOINT", "aws.batch_endpoint"},
	{"AWS_FORCE_PATH_STYLE", "aws.force_path_style"},
	{"PIPELINE", "routing.pipeline"},
	{"SIBLING_MAX_PAGES", "routing.sibling_max_pages"},
	{"ROUTING_DRY_RUN", "routing.dry_run"},
	{"ROUTING_INCLUDES", "routing.scope.includes"},
	{"ROUTING_EXCLUDES", "routing.scope.excludes"},
	{"RECOVERY_DRY_RUN", "recovery.dry_run"},
	{"TAGGING_DRY_RUN", "tagging.dry_run"},
	{"SUBMIT_RATE", "submit.rate"},
	{"SUBMIT_BURST", "submit.burst"},
	{"LAMBDA_MODE", "lambda.mode"},
}

func getEnvSpecs() []envSpec {
	configMu.RLock()
	defer configMu.RUnlock()
	return envSpecsLocked()
}

func envSpecsLocked() []envSpec {
	if appIdentity == nil || appIdentity.EnvPrefix == "" {
		return []envSpec{}
	}
	specs := make([]envSpec, 0, len(envPaths))
	for _, e := range envPaths {
		specs = append(specs, envSpec{Name: appIdentity.EnvPrefix + "_" + e.suffix, Path: e.path})
	}
	return specs
}

// readConfigFile merges the first config file found into v and returns its path.
func readConfigFile(v *viper.Viper) (string, error) {
	if explicit := os.Getenv(ConfigFileEnv); explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.MergeInConfig(); err != nil {
			return "", fmt.Errorf("read config %s: %w", explicit, err)
		}
		return explicit, nil
	}

	candidates := userConfigPathsLocked()
	if root, err := findProjectRoot(); err == nil {
		candidates = append([]string{filepath.Join(root, appIdentity.ConfigName+".yaml")}, candidates...)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return "", fmt.Errorf("read config %s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}

func getUserConfigPaths() []string {
	configMu.RLock()
	defer configMu.RUnlock()
	return userConfigPathsLocked()
}

func userConfigPathsLocked() []string {
	if appIdentity == nil || appIdentity.ConfigName == "" {
		return []string{}
	}
	name := appIdentity.ConfigName
	dir := gfconfig.GetAppConfigDir(name)
	return []string{
		filepath.Join(dir, name+".yaml"),
		filepath.Join(dir, name+".yml"),
	}
}

// projectRootMarkers identify a checkout root.
var projectRootMarkers = []string{"go.mod", ".git"}

// findProjectRoot returns the nearest ancestor of the working directory
// holding a project marker. Under CI the workspace boundary replaces the
// home directory as the traversal ceiling.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	var opts []pathfinder.FindOption
	if hint, ok := pathfinder.DetectCIBoundaryHint(cwd); ok {
		opts = append(opts, pathfinder.WithBoundary(hint.Boundary))
	}
	return pathfinder.FindRepositoryRoot(cwd, projectRootMarkers, opts...)
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
