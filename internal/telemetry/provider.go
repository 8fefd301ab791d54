package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ProviderConfig configures the optional OpenTelemetry SDK bootstrap used by
// [InitMeterProvider]. Callers who already run their own OTel SDK should
// skip this and pass their existing [sdkmetric.MeterProvider]-compatible
// provider straight to [NewOTelBridge].
type ProviderConfig struct {
	// ServiceName is the service name reported in exported metrics.
	// Default: "callecho".
	ServiceName string
}

// InitMeterProvider builds a minimal OTel SDK meter provider with a
// Prometheus exporter bridge, following the same construction shape as the
// corpus's own OTel bootstrap: a Prometheus reader attached to an SDK
// meter provider so metrics remain scrapeable via a standard /metrics
// endpoint without the engine itself ever opening a listener.
//
// Returns a shutdown function that flushes and closes the exporter. The
// caller is responsible for invoking it during application shutdown.
func InitMeterProvider(cfg ProviderConfig) (mp *sdkmetric.MeterProvider, shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "callecho"
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExp),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	)

	shutdown = func(ctx context.Context) error {
		var errs []error
		if e := provider.Shutdown(ctx); e != nil {
			errs = append(errs, e)
		}
		return errors.Join(errs...)
	}

	return provider, shutdown, nil
}
