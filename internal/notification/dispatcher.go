package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/messaging"
	"github.com/hackgods/clinic-appointments/internal/profile"
)

const serviceName = "appointment-service"

var ErrNotificationFailed = apperr.New(apperr.ErrUnavailable, "notification could not be delivered")

var tracer = otel.Tracer("github.com/hackgods/clinic-appointments/notification")

// MetricsRecorder counts dispatch outcomes per topic.
type MetricsRecorder interface {
	RecordNotification(ctx context.Context, topic, result string)
}

type Dispatcher struct {
	publisher messaging.Publisher
	profiles  profile.Lookup
	metrics   MetricsRecorder
	log       zerolog.Logger
	now       func() time.Time
}

func NewDispatcher(publisher messaging.Publisher, profiles profile.Lookup, metrics MetricsRecorder, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		profiles:  profiles,
		metrics:   metrics,
		log:       log.With().Str("component", "notification").Logger(),
		now:       time.Now,
	}
}

// Dispatch resolves the recipient, builds the envelope and publishes it on
// n.Topic keyed by the recipient id. With BestEffort a failure is logged
// and nil is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification, delivery Delivery) error {
	ctx, span := tracer.Start(ctx, "notification.Dispatch", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("notification.topic", n.Topic),
		attribute.String("notification.type", string(n.Type)),
		attribute.String("notification.delivery", delivery.String()),
	)

	err := d.send(ctx, n)
	if err == nil {
		d.record(ctx, n.Topic, "published")
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "dispatch failed")

	if delivery == BestEffort {
		d.record(ctx, n.Topic, "dropped")
		d.log.Warn().Err(err).
			Str("topic", n.Topic).
			Str("type", string(n.Type)).
			Str("recipient_id", n.RecipientID.String()).
			Msg("best-effort notification not delivered")
		return nil
	}

	d.record(ctx, n.Topic, "failed")
	return fmt.Errorf("%w: %s to %s: %w", ErrNotificationFailed, n.Type, n.RecipientRole, err)
}

// DispatchAll sends every notification and joins the failures.
func (d *Dispatcher) DispatchAll(ctx context.Context, delivery Delivery, ns ...Notification) error {
	var errs []error
	for _, n := range ns {
		if err := d.Dispatch(ctx, n, delivery); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, n Notification) error {
	email, name, err := d.resolve(ctx, n.RecipientRole, n.RecipientID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	ev := Event{
		EventID:        uuid.NewString(),
		Type:           n.Type,
		RecipientID:    n.RecipientID,
		RecipientRole:  n.RecipientRole,
		RecipientEmail: email,
		RecipientName:  name,
		Subject:        n.Subject,
		Payload:        n.Payload,
		Timestamp:      d.now().UTC(),
		ServiceName:    serviceName,
	}

	return d.publisher.Publish(ctx, n.Topic, n.RecipientID.String(), ev)
}

func (d *Dispatcher) resolve(ctx context.Context, role RecipientRole, id uuid.UUID) (email, name string, err error) {
	switch role {
	case RecipientDoctor:
		doc, err := d.profiles.GetDoctor(ctx, id)
		if err != nil {
			return "", "", err
		}
		return doc.Email, doc.FullName(), nil
	case RecipientPatient:
		p, err := d.profiles.GetPatient(ctx, id)
		if err != nil {
			return "", "", err
		}
		return p.Email, p.FullName(), nil
	default:
		return "", "", apperr.New(apperr.ErrIllegalState, fmt.Sprintf("unknown recipient role %q", role))
	}
}

func (d *Dispatcher) record(ctx context.Context, topic, result string) {
	if d.metrics != nil {
		d.metrics.RecordNotification(ctx, topic, result)
	}
}
