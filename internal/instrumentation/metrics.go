package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod = "method"
	attrStatus = "status"
	attrCode   = "code"
	attrTool   = "tool"
	attrPath   = "path"
	attrEvent  = "event"
)

// Metrics records gateway observability metrics. The zero value is a no-op
// recorder, as is a nil pointer, so callers never have to guard.
type Metrics struct {
	meter metric.Meter

	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram
	activeSessions  metric.Int64ObservableGauge

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	brokerCallsTotal   metric.Int64Counter
	brokerCallDuration metric.Float64Histogram

	authEventsTotal metric.Int64Counter
}

// NewMetrics creates a metrics recorder on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}
	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"mcp_requests_total",
		metric.WithDescription("Total number of dispatched protocol requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create mcp_requests_total counter: %w", err)
	}

	m.requestDuration, err = meter.Float64Histogram(
		"mcp_request_duration_seconds",
		metric.WithDescription("Protocol request dispatch duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("create mcp_request_duration_seconds histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64ObservableGauge(
		"mcp_active_sessions",
		metric.WithDescription("Number of live sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create mcp_active_sessions gauge: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of tool executions"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("create mcp_tool_duration_seconds histogram: %w", err)
	}

	m.brokerCallsTotal, err = meter.Int64Counter(
		"upstox_api_calls_total",
		metric.WithDescription("Total number of Upstox API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create upstox_api_calls_total counter: %w", err)
	}

	m.brokerCallDuration, err = meter.Float64Histogram(
		"upstox_api_call_duration_seconds",
		metric.WithDescription("Upstox API call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("create upstox_api_call_duration_seconds histogram: %w", err)
	}

	m.authEventsTotal, err = meter.Int64Counter(
		"upstox_auth_events_total",
		metric.WithDescription("Total number of auth state transitions"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create upstox_auth_events_total counter: %w", err)
	}

	return m, nil
}

// RecordRequest records one dispatched protocol request. A zero errorCode
// means success.
func (m *Metrics) RecordRequest(ctx context.Context, method, status string, errorCode int, duration time.Duration) {
	if m == nil || m.requestsTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrStatus, status),
		attribute.Int(attrCode, errorCode),
	}
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrMethod, method),
	))
}

// ObserveActiveSessions wires count as the source of the live-session gauge.
// Sampling at scrape time keeps the gauge exact no matter how a session went
// away: explicit end, idle sweep, or a rejected request.
func (m *Metrics) ObserveActiveSessions(count func() int64) error {
	if m == nil || m.activeSessions == nil {
		return nil
	}
	_, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.activeSessions, count())
		return nil
	}, m.activeSessions)
	if err != nil {
		return fmt.Errorf("register mcp_active_sessions callback: %w", err)
	}
	return nil
}

// RecordToolInvocation records one tool execution.
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrTool, tool),
	))
}

// RecordBrokerCall records one Upstox API call.
func (m *Metrics) RecordBrokerCall(ctx context.Context, path, status string, duration time.Duration) {
	if m == nil || m.brokerCallsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrPath, path),
		attribute.String(attrStatus, status),
	)
	m.brokerCallsTotal.Add(ctx, 1, attrs)
	m.brokerCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrPath, path),
	))
}

// RecordAuthEvent records one auth state transition (exchange, injection,
// logout).
func (m *Metrics) RecordAuthEvent(ctx context.Context, event, status string) {
	if m == nil || m.authEventsTotal == nil {
		return
	}
	m.authEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrEvent, event),
		attribute.String(attrStatus, status),
	))
}
