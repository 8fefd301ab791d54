package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all callecho metrics.
const meterName = "github.com/MrWong99/callecho"

// latencyBuckets are histogram bucket boundaries (seconds) sized for the
// engine's hot-path latency budgets (single-digit milliseconds per chunk,
// tens of milliseconds for finalize).
var latencyBuckets = []float64{
	0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 0.5, 1,
}

// Metrics holds the OpenTelemetry instruments an [OTelBridge] records
// against. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation. This is a caller-side adapter:
// nothing in the engine's hot path refers to this type; the engine only
// calls the plain [Hooks] callbacks.
type Metrics struct {
	ChunkDuration     metric.Float64Histogram
	FinalizeDuration  metric.Float64Histogram
	MasterLoadLatency metric.Float64Histogram

	MasterCacheHits   metric.Int64Counter
	MasterCacheMisses metric.Int64Counter
	InternalErrors    metric.Int64Counter
	ActiveSessions    metric.Int64UpDownCounter
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChunkDuration, err = m.Float64Histogram("callecho.chunk.duration",
		metric.WithDescription("Latency of a single process_chunk call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("callecho.finalize.duration",
		metric.WithDescription("Latency of a finalize call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MasterLoadLatency, err = m.Float64Histogram("callecho.master_load.duration",
		metric.WithDescription("Latency of load_master_call, cache hit or miss."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MasterCacheHits, err = m.Int64Counter("callecho.master_cache.hits",
		metric.WithDescription("Master-call cache hits."),
	); err != nil {
		return nil, err
	}
	if met.MasterCacheMisses, err = m.Int64Counter("callecho.master_cache.misses",
		metric.WithDescription("Master-call cache misses (first decode)."),
	); err != nil {
		return nil, err
	}
	if met.InternalErrors, err = m.Int64Counter("callecho.internal_errors",
		metric.WithDescription("Invariant violations surfaced as KindInternal."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("callecho.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Attr is a convenience alias for attribute.String to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}
