package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OTelBridge is a ready-made [Hooks] implementation that records engine
// events against OpenTelemetry instruments. It is deliberately NOT wired
// into the engine by default: a caller who wants OTel observability
// constructs one and passes its Hooks() result to NewEngine, exactly like
// any other caller-supplied Hooks value. The engine's hot path never
// imports this type.
type OTelBridge struct {
	metrics *Metrics
	tracer  trace.Tracer
}

// NewOTelBridge builds an [OTelBridge] against the given meter and tracer
// providers, following the same construction shape as the rest of the
// corpus's OTel integrations (a [metric.MeterProvider] produces named
// instruments once, up front).
func NewOTelBridge(mp metric.MeterProvider, tp trace.TracerProvider) (*OTelBridge, error) {
	met, err := NewMetrics(mp)
	if err != nil {
		return nil, err
	}
	return &OTelBridge{
		metrics: met,
		tracer:  tp.Tracer(meterName),
	}, nil
}

// Hooks returns the [Hooks] value wired to this bridge's instruments.
func (b *OTelBridge) Hooks() Hooks {
	return Hooks{
		OnChunkProcessed: b.onChunkProcessed,
		OnMasterLoaded:   b.onMasterLoaded,
		OnFinalize:       b.onFinalize,
		OnInternalError:  b.onInternalError,
	}
}

func (b *OTelBridge) onChunkProcessed(e ChunkEvent) {
	ctx := context.Background()
	b.metrics.ChunkDuration.Record(ctx, e.Duration.Seconds())
}

func (b *OTelBridge) onMasterLoaded(e MasterLoadEvent) {
	ctx := context.Background()
	status := "ok"
	if e.Err != nil {
		status = "error"
	}
	b.metrics.MasterLoadLatency.Record(ctx, e.Duration.Seconds(),
		metric.WithAttributes(Attr("status", status)))
	if e.CacheHit {
		b.metrics.MasterCacheHits.Add(ctx, 1)
	} else {
		b.metrics.MasterCacheMisses.Add(ctx, 1)
	}
}

func (b *OTelBridge) onFinalize(e FinalizeEvent) {
	ctx, span := b.tracer.Start(context.Background(), "acoustic.finalize")
	defer span.End()
	b.metrics.FinalizeDuration.Record(ctx, e.Duration.Seconds())
}

func (b *OTelBridge) onInternalError(e ErrorEvent) {
	b.metrics.InternalErrors.Add(context.Background(), 1, metric.WithAttributes(Attr("op", e.Op)))
}
