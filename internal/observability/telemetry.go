package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// shutdownTimeout bounds how long Cleanup waits for exporters to drain.
const shutdownTimeout = 5 * time.Second

// Telemetry owns the OTel providers for the macro server. With the "none"
// exporter it is an inert value whose providers are no-ops, so the server
// wires it unconditionally and never branches on whether telemetry is on.
type Telemetry struct {
	config         *Config
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metrics        *Metrics

	// closers run in registration order on shutdown: tracer provider,
	// metric reader flush, meter provider.
	closers   []func(context.Context) error
	closeOnce sync.Once
}

// Init builds providers from the config and registers them as the OTel
// globals. It returns the Telemetry manager and a cleanup function suitable
// for defer.
func Init(ctx context.Context, cfg *Config) (*Telemetry, func(), error) {
	tel := &Telemetry{config: cfg}
	if !cfg.ShouldEnable() {
		return tel, func() {}, nil
	}

	if cfg.TracesEnabled {
		tp, err := initTracerProvider(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		tel.tracerProvider = tp
		tel.closers = append(tel.closers, shutdownOf(tp))
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsEnabled {
		mp, reader, err := initMeterProvider(ctx, cfg)
		if err != nil {
			tel.close(ctx)
			return nil, nil, err
		}
		tel.meterProvider = mp
		// Flush the periodic reader before its provider goes down, or the
		// final interval of measurements is lost.
		tel.closers = append(tel.closers, flushOf(reader), shutdownOf(mp))
		otel.SetMeterProvider(mp)

		metrics, err := InitMetrics(mp)
		if err != nil {
			tel.close(ctx)
			return nil, nil, err
		}
		tel.metrics = metrics
	}

	return tel, tel.Cleanup, nil
}

// shutdownOf adapts a provider's optional Shutdown method to a closer.
// The SDK types expose it; the noop and interface types do not.
func shutdownOf(v any) func(context.Context) error {
	return func(ctx context.Context) error {
		if s, ok := v.(interface{ Shutdown(context.Context) error }); ok {
			return s.Shutdown(ctx)
		}
		return nil
	}
}

// flushOf adapts a reader's optional ForceFlush method to a closer.
func flushOf(v any) func(context.Context) error {
	return func(ctx context.Context) error {
		if f, ok := v.(interface{ ForceFlush(context.Context) error }); ok {
			return f.ForceFlush(ctx)
		}
		return nil
	}
}

// close runs the registered closers in order and returns the first error.
func (t *Telemetry) close(ctx context.Context) error {
	var first error
	for _, closer := range t.closers {
		if err := closer(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// TracerProvider returns the tracer provider (or noop if disabled).
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t.tracerProvider != nil {
		return t.tracerProvider
	}
	return trace.NewNoopTracerProvider()
}

// MeterProvider returns the meter provider (or noop if disabled).
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t.meterProvider != nil {
		return t.meterProvider
	}
	return otel.GetMeterProvider()
}

// Metrics returns the metric instruments, nil when metrics are disabled.
// The executor's sink and the HTTP middleware both nil-check through here.
func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

// Shutdown flushes and closes all providers. Safe to call more than once;
// only the first call does work.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var err error
	t.closeOnce.Do(func() {
		err = t.close(ctx)
	})
	return err
}

// Cleanup is the defer-friendly form of Shutdown.
func (t *Telemetry) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = t.Shutdown(ctx)
}

// Config returns the telemetry configuration.
func (t *Telemetry) Config() *Config {
	return t.config
}
