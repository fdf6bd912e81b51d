// Package telemetry wraps the OpenTelemetry metrics the rest of sdval
// records. It never configures an exporter or a MeterProvider — callers
// that want the counters to go anywhere supply their own metric.Meter,
// keeping the library itself I/O-free.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the counters sdval's scanner, conversion engine, and
// wview package record against a caller-supplied meter.
type Metrics struct {
	scans         metric.Int64Counter
	scanFailures  metric.Int64Counter
	conversions   metric.Int64Counter
	conversionRej metric.Int64Counter
	flattenBytes  metric.Int64Counter
	arenaReclaims metric.Int64Counter
}

// New builds a Metrics from meter. meter may be nil, in which case every
// recording method is a no-op — this lets internal callers always hold a
// non-nil *Metrics without special-casing "telemetry not configured".
func New(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return &Metrics{}, nil
	}
	scans, err := meter.Int64Counter("sdval.scans", metric.WithDescription("scans performed, by type kind"))
	if err != nil {
		return nil, err
	}
	scanFailures, err := meter.Int64Counter("sdval.scan_failures", metric.WithDescription("scans that failed, by type kind"))
	if err != nil {
		return nil, err
	}
	conversions, err := meter.Int64Counter("sdval.conversions", metric.WithDescription("conversions performed"))
	if err != nil {
		return nil, err
	}
	conversionRej, err := meter.Int64Counter("sdval.conversions_rejected", metric.WithDescription("conversions rejected, by policy gap"))
	if err != nil {
		return nil, err
	}
	flattenBytes, err := meter.Int64Counter("sdval.flatten_bytes", metric.WithDescription("bytes produced by wview flatten"))
	if err != nil {
		return nil, err
	}
	arenaReclaims, err := meter.Int64Counter("sdval.arena_chunks_reclaimed", metric.WithDescription("chunks reclaimed on arena reset"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		scans:         scans,
		scanFailures:  scanFailures,
		conversions:   conversions,
		conversionRej: conversionRej,
		flattenBytes:  flattenBytes,
		arenaReclaims: arenaReclaims,
	}, nil
}

func (m *Metrics) ScanPerformed(kind string) {
	if m == nil || m.scans == nil {
		return
	}
	m.scans.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) ScanFailed(kind string) {
	if m == nil || m.scanFailures == nil {
		return
	}
	m.scanFailures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) ConversionPerformed() {
	if m == nil || m.conversions == nil {
		return
	}
	m.conversions.Add(context.Background(), 1)
}

func (m *Metrics) ConversionRejected(reason string) {
	if m == nil || m.conversionRej == nil {
		return
	}
	m.conversionRej.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) FlattenBytes(n int64) {
	if m == nil || m.flattenBytes == nil {
		return
	}
	m.flattenBytes.Add(context.Background(), n)
}

func (m *Metrics) ArenaChunksReclaimed(n int64) {
	if m == nil || m.arenaReclaims == nil {
		return
	}
	m.arenaReclaims.Add(context.Background(), n)
}
