// Package telemetry exports per-session metrics over OTLP.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blackwell-systems/feedbackwatch/internal/session"
)

const serviceName = "feedbackwatch"

// Config holds OTLP exporter settings.
type Config struct {
	Enabled  bool
	Endpoint string
	Insecure bool
	Version  string
}

// Sink receives finished sessions and is closed on shutdown.
type Sink interface {
	SessionEnded(r session.Record)
	Close(ctx context.Context) error
}

// New returns an OTLP Exporter when enabled, and NoOp otherwise. Setup
// failures are logged and degrade to NoOp.
func New(ctx context.Context, cfg Config, logger *slog.Logger) Sink {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return NoOp{}
	}
	exp, err := NewExporter(ctx, cfg)
	if err != nil {
		logger.Warn("telemetry disabled", "endpoint", cfg.Endpoint, "err", err)
		return NoOp{}
	}
	return exp
}

// Exporter records session metrics into an OpenTelemetry meter provider.
type Exporter struct {
	provider      *sdkmetric.MeterProvider
	sessionsTotal metric.Int64Counter
	feedbackTotal metric.Int64Counter
	riskTotal     metric.Int64Counter
	durationHist  metric.Float64Histogram
}

// NewExporter creates an exporter pushing to an OTLP gRPC collector.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("telemetry: endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts,
			otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating resource: %w", err)
	}
	return newExporter(sdkmetric.NewPeriodicReader(exp), res)
}

func newExporter(reader sdkmetric.Reader, res *resource.Resource) (*Exporter, error) {
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter(serviceName)

	e := &Exporter{provider: provider}
	var err error
	if e.sessionsTotal, err = meter.Int64Counter("feedbackwatch_sessions_total",
		metric.WithDescription("Finished monitored sessions"),
		metric.WithUnit("{session}")); err != nil {
		return nil, fmt.Errorf("telemetry: sessions counter: %w", err)
	}
	if e.feedbackTotal, err = meter.Int64Counter("feedbackwatch_feedback_calls_total",
		metric.WithDescription("Interactive feedback calls in finished sessions"),
		metric.WithUnit("{call}")); err != nil {
		return nil, fmt.Errorf("telemetry: feedback counter: %w", err)
	}
	if e.riskTotal, err = meter.Int64Counter("feedbackwatch_risk_indicators_total",
		metric.WithDescription("Risk indicators raised in finished sessions"),
		metric.WithUnit("{indicator}")); err != nil {
		return nil, fmt.Errorf("telemetry: risk counter: %w", err)
	}
	if e.durationHist, err = meter.Float64Histogram("feedbackwatch_session_duration_seconds",
		metric.WithDescription("Session duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("telemetry: duration histogram: %w", err)
	}
	return e, nil
}

// SessionEnded records one finished session.
func (e *Exporter) SessionEnded(r session.Record) {
	ctx := context.Background()
	opt := metric.WithAttributes(
		attribute.String("project_name", r.ProjectName),
		attribute.String("end_reason", r.EndReason),
		attribute.Bool("auto_terminated", r.AutoTerminated),
	)
	e.sessionsTotal.Add(ctx, 1, opt)
	e.feedbackTotal.Add(ctx, int64(r.InteractiveFeedbackCalls), opt)
	e.riskTotal.Add(ctx, int64(len(r.RiskIndicators)), opt)
	e.durationHist.Record(ctx, r.DurationSeconds, opt)
}

// Close flushes pending metrics and shuts the provider down.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}

// NoOp discards everything.
type NoOp struct{}

func (NoOp) SessionEnded(session.Record) {}
func (NoOp) Close(context.Context) error { return nil }
