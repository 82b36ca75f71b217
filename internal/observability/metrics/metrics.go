package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	transitions     metric.Int64Counter
	certifications  metric.Int64Counter
	ruleViolations  metric.Int64Counter
	reconcileDrift  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "certify"
	}
	meter := provider.Meter(name)

	transitions, err := meter.Int64Counter("certify_status_transitions_total")
	if err != nil {
		return nil, err
	}
	certifications, err := meter.Int64Counter("certify_certifications_total")
	if err != nil {
		return nil, err
	}
	ruleViolations, err := meter.Int64Counter("certify_rule_violations_total")
	if err != nil {
		return nil, err
	}
	reconcileDrift, err := meter.Int64Counter("certify_reconcile_drift_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transitions:    transitions,
		certifications: certifications,
		ruleViolations: ruleViolations,
		reconcileDrift: reconcileDrift,
	}, nil
}

// RecordTransition increments the transition counter for a from/to pair.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", strings.TrimSpace(from)),
		attribute.String("to", strings.TrimSpace(to)),
	)
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCertification increments the count-eligible certification counter.
func (m *Metrics) RecordCertification(ctx context.Context, certificateType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("certificate_type", strings.TrimSpace(certificateType)))
	m.certifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRuleViolation increments the rejected transition counter.
func (m *Metrics) RecordRuleViolation(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", strings.TrimSpace(from)),
		attribute.String("to", strings.TrimSpace(to)),
	)
	m.ruleViolations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconcileDrift counts aggregate keys corrected by reconciliation.
func (m *Metrics) RecordReconcileDrift(ctx context.Context, keys int64) {
	if m == nil || keys <= 0 {
		return
	}
	m.reconcileDrift.Add(ctx, keys)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"from":             {},
	"to":               {},
	"certificate_type": {},
	"endpoint":         {},
	"status_code":      {},
	"reason":           {},
	"job":              {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
