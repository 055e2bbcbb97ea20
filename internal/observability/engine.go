package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Decision outcomes recorded per admission check.
const (
	OutcomeAllowed  = "allowed"
	OutcomeBlocked  = "blocked"
	OutcomeFailOpen = "fail_open"
	OutcomeBypassed = "bypassed"
)

// EngineMetrics records admission-control activity on the global meter
// provider. All methods are safe for concurrent use and cheap enough for the
// per-request hot path.
type EngineMetrics struct {
	decisions metric.Int64Counter
	warnings  metric.Int64Counter
	fallbacks metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewEngineMetrics registers the admission-control instruments.
func NewEngineMetrics() (*EngineMetrics, error) {
	meter := otel.Meter("gatekeeper/engine")

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Admission decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	warnings, err := meter.Int64Counter(
		"ratelimit.warnings",
		metric.WithDescription("Threshold warnings emitted"),
		metric.WithUnit("{warning}"),
	)
	if err != nil {
		return nil, err
	}

	fallbacks, err := meter.Int64Counter(
		"ratelimit.fallback.consumptions",
		metric.WithDescription("Consumptions served by the insurance store"),
		metric.WithUnit("{consumption}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"ratelimit.consume.duration",
		metric.WithDescription("Duration of quota consumption calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{
		decisions: decisions,
		warnings:  warnings,
		fallbacks: fallbacks,
		duration:  duration,
	}, nil
}

// RecordDecision counts one admission decision and its consumption latency.
func (m *EngineMetrics) RecordDecision(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.decisions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordWarning counts one threshold warning.
func (m *EngineMetrics) RecordWarning(ctx context.Context) {
	if m == nil {
		return
	}
	m.warnings.Add(ctx, 1)
}

// RecordFallback counts one consumption served by the insurance store.
func (m *EngineMetrics) RecordFallback(ctx context.Context) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1)
}
