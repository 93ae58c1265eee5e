package otelcol

import (
	"context"
	"time"

	"creatorpay-engine/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol", fx.Provide(ProvideTracerProvider))

func defaultTraceProviderOption(cfg *config.Config) ([]sdktrace.TracerProviderOption, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		return nil, err
	}

	return []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}, nil
}

func ProvideTrace(exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append(opts, sdktrace.WithBatcher(exporter))

	return sdktrace.NewTracerProvider(opts...)
}

// ProvideTracerProvider exports spans over OTLP/HTTP when OTEL.ADDR is set and
// falls back to the global no-op provider otherwise.
func ProvideTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	if cfg.Otel.Addr == "" {
		zap.L().Info("[Otel] OTEL.ADDR not set, tracing disabled")
		return otel.GetTracerProvider(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Otel.Addr),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if cfg.Otel.Insecure {
		clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}

	opts, err := defaultTraceProviderOption(cfg)
	if err != nil {
		return nil, err
	}

	tp := ProvideTrace(exporter, opts...)
	otel.SetTracerProvider(tp)

	zap.L().Info("[Otel] exporting traces", zap.String("endpoint", cfg.Otel.Addr))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}
