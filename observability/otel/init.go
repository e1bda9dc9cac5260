// Package otel installs the OpenTelemetry providers gamed reports through.
package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Resource attribute keys describing the game a gamed process hosts.
const (
	AttrGameOwner    = attribute.Key("savings.owner")
	AttrGameToken    = attribute.Key("savings.token")
	AttrGameStrategy = attribute.Key("savings.strategy")
	AttrGameSegments = attribute.Key("savings.deposit_count")
)

// Config is the telemetry section of gamed.yaml.
type Config struct {
	ServiceName string            `yaml:"service_name" env:"SERVICE_NAME"`
	Environment string            `yaml:"environment" env:"ENVIRONMENT"`
	Endpoint    string            `yaml:"endpoint" env:"ENDPOINT"`
	Insecure    bool              `yaml:"insecure" env:"INSECURE"`
	Headers     map[string]string `yaml:"headers" env:"HEADERS"`
	Metrics     bool              `yaml:"metrics" env:"METRICS"`
	Traces      bool              `yaml:"traces" env:"TRACES"`
	// SampleRatio is the fraction of root spans kept. Zero keeps every span.
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
	// MetricInterval is the push period in seconds. Zero means 15.
	MetricInterval int `yaml:"metric_interval" env:"METRIC_INTERVAL"`
}

// Game identifies the hosted game on every exported span and metric.
type Game struct {
	Owner        string
	Token        string
	Strategy     string
	DepositCount uint64
}

func (g Game) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if g.Owner != "" {
		attrs = append(attrs, AttrGameOwner.String(g.Owner))
	}
	if g.Token != "" {
		attrs = append(attrs, AttrGameToken.String(g.Token))
	}
	if g.Strategy != "" {
		attrs = append(attrs, AttrGameStrategy.String(g.Strategy))
	}
	if g.DepositCount > 0 {
		attrs = append(attrs, AttrGameSegments.Int64(int64(g.DepositCount)))
	}
	return attrs
}

func (c *Config) validate() error {
	if c.ServiceName == "" {
		return errors.New("service name required for telemetry")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample ratio %v outside [0, 1]", c.SampleRatio)
	}
	if c.MetricInterval < 0 {
		return fmt.Errorf("metric interval %d must not be negative", c.MetricInterval)
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = 15
	}
	return nil
}

// NewResource describes the gamed process hosting game.
func NewResource(cfg Config, game Game) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(cfg.ServiceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	attrs = append(attrs, game.attributes()...)
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// Init installs the global providers for game and returns their combined
// shutdown. With traces and metrics both disabled only the propagator is set.
func Init(ctx context.Context, cfg Config, game Game) (func(context.Context) error, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	res, err := NewResource(cfg, game)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	var stops shutdowns
	if cfg.Traces {
		tp, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		stops = append(stops, tp.Shutdown)
	}
	if cfg.Metrics {
		mp, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			_ = stops.run(ctx)
			return nil, err
		}
		otel.SetMeterProvider(mp)
		stops = append(stops, mp.Shutdown)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return stops.run, nil
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(2*time.Second)),
	), nil
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(time.Duration(cfg.MetricInterval)*time.Second))
	return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil
}

// shutdowns stops providers in reverse start order and keeps the first error.
type shutdowns []func(context.Context) error

func (s shutdowns) run(ctx context.Context) error {
	var first error
	for i := len(s) - 1; i >= 0; i-- {
		if err := s[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
