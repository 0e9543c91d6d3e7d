package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service's instruments.
type Metrics struct {
	HTTPRequestsTotal metric.Int64Counter
	HTTPDurationMs    metric.Float64Histogram

	AppointmentOperations metric.Int64Counter
	FollowUpOperations    metric.Int64Counter
	NotificationsTotal    metric.Int64Counter
	AuthFailuresTotal     metric.Int64Counter
	SweepProcessed        metric.Int64Counter
}

// InitMetrics creates the instruments on the global meter provider.
func InitMetrics() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider())
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("github.com/hackgods/clinic-appointments")
	m := &Metrics{}

	var err error
	if m.HTTPRequestsTotal, err = meter.Int64Counter("http_server_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.HTTPDurationMs, err = meter.Float64Histogram("http_server_duration_milliseconds",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.AppointmentOperations, err = meter.Int64Counter("appointment_operations_total",
		metric.WithDescription("Appointment lifecycle operations"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, err
	}
	if m.FollowUpOperations, err = meter.Int64Counter("follow_up_operations_total",
		metric.WithDescription("Follow-up lifecycle operations"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, err
	}
	if m.NotificationsTotal, err = meter.Int64Counter("notifications_total",
		metric.WithDescription("Notification dispatch outcomes"),
		metric.WithUnit("{notification}")); err != nil {
		return nil, err
	}
	if m.AuthFailuresTotal, err = meter.Int64Counter("auth_failures_total",
		metric.WithDescription("Requests rejected for missing or invalid identity"),
		metric.WithUnit("{failure}")); err != nil {
		return nil, err
	}
	if m.SweepProcessed, err = meter.Int64Counter("follow_up_sweep_processed_total",
		metric.WithDescription("Follow-ups moved to OVERDUE by the sweep"),
		metric.WithUnit("{follow_up}")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("http_method", method),
		attribute.String("http_route", route),
		attribute.Int("http_status_code", statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPDurationMs.Record(ctx, durationMs, attrs)
}

func (m *Metrics) RecordAppointmentOperation(ctx context.Context, operation string) {
	m.AppointmentOperations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *Metrics) RecordFollowUpOperation(ctx context.Context, operation string) {
	m.FollowUpOperations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *Metrics) RecordNotification(ctx context.Context, topic, result string) {
	m.NotificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("result", result),
	))
}

func (m *Metrics) RecordAuthFailure(ctx context.Context, reason string) {
	m.AuthFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordSweep(ctx context.Context, processed int) {
	m.SweepProcessed.Add(ctx, int64(processed))
}
