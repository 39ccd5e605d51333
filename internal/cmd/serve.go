package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/3leaps/genoroute/internal/observability"
	"github.com/3leaps/genoroute/internal/server"
	"github.com/3leaps/genoroute/internal/server/handlers"
)

var (
	serveHost     string
	servePort     int
	serveLocalDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the event endpoints over HTTP",
	Long: `Start the HTTP server.

Endpoints:
  POST /v1/route/{pipeline}  SNS-wrapped S3 notification
  POST /v1/recover           Batch job state-change event
  POST /v1/tag               SNS-wrapped S3 notification
  GET  /health[/live|/ready|/startup], /version, /metrics

The server drains in-flight requests on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
	serveCmd.Flags().StringVar(&serveLocalDir, "local-dir", "", "Use a local directory tree instead of S3, with dry-run submission")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	host, port := cfg.Server.Host, cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}

	id := GetAppIdentity()
	if id == nil {
		return exitError(foundry.ExitInvalidArgument, "Identity not initialized", errors.New("root pre-run did not execute"))
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	defer func() { _ = logger.Sync() }()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		telemetry, err := observability.InitTelemetry(id.BinaryName)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to initialize telemetry", err)
		}
		defer func() { _ = telemetry.Shutdown(context.Background()) }()
		metrics = telemetry.Metrics()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigs := signals.NewManager()
	defer sigs.Stop()

	cl, err := newClients(ctx, cfg, serveLocalDir)
	if err != nil {
		return exitFor("Failed to create clients", err)
	}
	wr := wiring{cfg: cfg, clients: cl, logger: logger, metrics: metrics}
	routers, err := wr.routers()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to build routers", err)
	}
	tagger, err := wr.tagger()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to build tagger", err)
	}
	apiRouters := make(map[string]handlers.Router, len(routers))
	for name, rt := range routers {
		apiRouters[name] = rt
	}

	handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("identity", identityHealthChecker{
		binaryName: id.BinaryName,
		envPrefix:  id.EnvPrefix,
		configName: id.ConfigName,
	})
	health.RegisterChecker("signals", signalHealthChecker{})
	health.RegisterChecker("stage_table", stageTableHealthChecker{})
	if cfg.Metrics.Enabled {
		health.RegisterChecker("telemetry", telemetryHealthChecker{})
	}

	srv := server.New(host, port).
		WithLogger(logger).
		WithTimeouts(server.Timeouts{
			Read:     cfg.Server.ReadTimeout,
			Write:    cfg.Server.WriteTimeout,
			Idle:     cfg.Server.IdleTimeout,
			Shutdown: cfg.Server.ShutdownTimeout,
		})
	srv.MountAPI(handlers.NewAPI(apiRouters, wr.classifier(), tagger).WithLogger(logger))
	if cfg.Debug.PprofEnabled {
		srv.MountProfiler()
	}

	servers := []*server.Server{srv}
	if cfg.Metrics.Enabled {
		if sharesMainPort(cfg.Metrics.Port, port) {
			srv.MountMetrics(observability.TelemetrySystem)
		} else {
			ms := server.New(host, cfg.Metrics.Port).WithLogger(logger)
			ms.MountMetrics(observability.TelemetrySystem)
			servers = append(servers, ms)
		}
	}

	logger.Info("starting server",
		zap.String("addr", srv.Addr()),
		zap.String("provider", string(cl.provider)),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.String("version", versionInfo.Version))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(s.Start)
	}
	g.Go(func() error { return shutdownOnSignal(gctx, sigs, cancel, logger) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		var errs []error
		for _, s := range servers {
			if err := s.Shutdown(context.Background()); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	return nil
}

// shutdownOnSignal cancels the serve context on SIGINT or SIGTERM. It
// returns nil once ctx ends without a signal.
func shutdownOnSignal(ctx context.Context, m *signals.Manager, cancel context.CancelFunc, logger *zap.Logger) error {
	for _, sig := range []os.Signal{syscall.SIGINT, syscall.SIGTERM} {
		if _, err := m.Handle(sig, func(_ context.Context, s os.Signal) error {
			logger.Info("signal received", zap.String("signal", s.String()))
			return nil
		}); err != nil {
			return fmt.Errorf("register %s: %w", sig, err)
		}
	}
	m.OnShutdown(func(context.Context) error {
		cancel()
		return nil
	})

	err := m.Listen(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sharesMainPort reports whether /metrics is mounted on the API server
// rather than a dedicated listener.
func sharesMainPort(metricsPort, serverPort int) bool {
	return metricsPort == 0 || metricsPort == serverPort
}

// stageTableHealthChecker fails when a pipeline's stage rules are invalid.
type stageTableHealthChecker struct{}

func (stageTableHealthChecker) CheckHealth(context.Context) error {
	return checkStageTable()
}

// signalHealthChecker reports healthy while the process is serving.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(context.Context) error {
	return nil
}

type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return observability.ErrTelemetryNotInitialized
	}
	return nil
}

// identityHealthChecker checks the application identity is complete.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(context.Context) error {
	switch {
	case c.binaryName == "":
		return fmt.Errorf("identity: missing binary name")
	case c.envPrefix == "":
		return fmt.Errorf("identity: missing env prefix")
	case c.configName == "":
		return fmt.Errorf("identity: missing config name")
	}
	return nil
}
