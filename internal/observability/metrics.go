package observability

import (
	"context"
	"errors"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/3leaps/genoroute/pkg/recovery"
	"github.com/3leaps/genoroute/pkg/router"
	"github.com/3leaps/genoroute/pkg/tagging"
)

// Process-wide telemetry, set by InitTelemetry. Nil until then.
var (
	TelemetrySystem    *Telemetry
	PrometheusExporter *prometheus.Exporter
)

// ErrTelemetryNotInitialized is returned by health checks before InitTelemetry.
var ErrTelemetryNotInitialized = errors.New("telemetry system not initialized")

// Telemetry owns the meter provider and the registry it exports to.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry
	metrics  *Metrics
}

// NewTelemetry builds a meter provider exporting to a private Prometheus registry.
func NewTelemetry(serviceName string) (*Telemetry, *prometheus.Exporter, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	m, err := newMetrics(provider.Meter(serviceName))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, nil, err
	}

	return &Telemetry{provider: provider, registry: registry, metrics: m}, exporter, nil
}

// InitTelemetry builds telemetry and installs it as TelemetrySystem.
func InitTelemetry(serviceName string) (*Telemetry, error) {
	t, exporter, err := NewTelemetry(serviceName)
	if err != nil {
		return nil, err
	}
	TelemetrySystem = t
	PrometheusExporter = exporter
	return t, nil
}

// Metrics returns the instrument set.
func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

// Handler serves the registry in Prometheus text format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// Metrics records routing, recovery, tagging and HTTP signals.
type Metrics struct {
	RoutingDecisions metric.Int64Counter
	SubmitErrors     metric.Int64Counter
	RecoveryOutcomes metric.Int64Counter
	TagsApplied      metric.Int64Counter

	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
}

var (
	_ router.Metrics   = (*Metrics)(nil)
	_ recovery.Metrics = (*Metrics)(nil)
	_ tagging.Metrics  = (*Metrics)(nil)
)

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RoutingDecisions, err = meter.Int64Counter(
		"genoroute_routing_decisions_total",
		metric.WithDescription("Routing decisions by pipeline, stage and outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.SubmitErrors, err = meter.Int64Counter(
		"genoroute_submit_errors_total",
		metric.WithDescription("Rejected job submissions by pipeline, stage and error code"),
	)
	if err != nil {
		return nil, err
	}

	m.RecoveryOutcomes, err = meter.Int64Counter(
		"genoroute_recovery_outcomes_total",
		metric.WithDescription("Job state-change classifications by reason"),
	)
	if err != nil {
		return nil, err
	}

	m.TagsApplied, err = meter.Int64Counter(
		"genoroute_tags_applied_total",
		metric.WithDescription("Object tag sets applied by rule"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Decision implements router.Metrics.
func (m *Metrics) Decision(ctx context.Context, pipeline, stage, decision string) {
	m.RoutingDecisions.Add(ctx, 1, metric.WithAttributes(pipelineAttr(pipeline), stageAttr(stage), decisionAttr(decision)))
}

// SubmitError implements router.Metrics.
func (m *Metrics) SubmitError(ctx context.Context, pipeline, stage, code string) {
	m.SubmitErrors.Add(ctx, 1, metric.WithAttributes(pipelineAttr(pipeline), stageAttr(stage), codeAttr(code)))
}

// Recovery implements recovery.Metrics.
func (m *Metrics) Recovery(ctx context.Context, reason string) {
	m.RecoveryOutcomes.Add(ctx, 1, metric.WithAttributes(reasonAttr(reason)))
}

// TagApplied implements tagging.Metrics.
func (m *Metrics) TagApplied(ctx context.Context, rule string) {
	m.TagsApplied.Add(ctx, 1, metric.WithAttributes(ruleAttr(rule)))
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(methodAttr(method), pathAttr(path), statusAttr(statusCode))
	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
}
