package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/followup"
)

type AppointmentService interface {
	RequestAppointment(ctx context.Context, req appointment.BookingRequest) (*appointment.Detail, error)
	RequestEmergencyAppointment(ctx context.Context, req appointment.EmergencyRequest) (*appointment.Detail, error)
	UpdateAppointmentStatus(ctx context.Context, upd appointment.StatusUpdate) (*appointment.Detail, error)
	GetAppointment(ctx context.Context, scope appointment.Scope, id uuid.UUID) (*appointment.Detail, error)
	List(ctx context.Context, scope appointment.Scope, f appointment.ListFilter) (*appointment.DetailPage, error)
	ListUpcoming(ctx context.Context, scope appointment.Scope, from *time.Time) ([]appointment.Detail, error)
	ListBetween(ctx context.Context, scope appointment.Scope, from, to time.Time) ([]appointment.Detail, error)
}

type FollowUpService interface {
	Schedule(ctx context.Context, req followup.ScheduleRequest) (*followup.Detail, error)
	UpdateStatus(ctx context.Context, scope appointment.Scope, ch followup.StatusChange) (*followup.Detail, error)
	Reschedule(ctx context.Context, req followup.RescheduleRequest) (*followup.Detail, error)
	ProcessOverdue(ctx context.Context) (int, error)
	Get(ctx context.Context, scope appointment.Scope, id uuid.UUID) (*followup.Detail, error)
	List(ctx context.Context, scope appointment.Scope, f followup.ListFilter) (*followup.DetailPage, error)
	ListBetween(ctx context.Context, scope appointment.Scope, from, to time.Time) ([]followup.Detail, error)
	ListUrgent(ctx context.Context, doctorID uuid.UUID, level int) ([]followup.Detail, error)
	Summary(ctx context.Context, scope appointment.Scope, patientID uuid.UUID) (*followup.Summary, error)
}

// Metrics is what the router records; *telemetry.Metrics satisfies it.
type Metrics interface {
	HTTPMetrics
	auth.MetricsRecorder
}

type RouterConfig struct {
	Appointments AppointmentService
	FollowUps    FollowUpService
	Permissions  auth.Permissions
	Health       *HealthHandler
	Validate     *validator.Validate
	Metrics      Metrics
	Log          zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Validate == nil {
		cfg.Validate = NewValidator()
	}
	var httpMetrics HTTPMetrics
	var authMetrics auth.MetricsRecorder
	if cfg.Metrics != nil {
		httpMetrics, authMetrics = cfg.Metrics, cfg.Metrics
	}

	h := &handlers{
		appointments: cfg.Appointments,
		followUps:    cfg.FollowUps,
		validate:     cfg.Validate,
		log:          cfg.Log.With().Str("component", "api").Logger(),
	}
	perm := func(p string) func(http.Handler) http.Handler {
		return auth.RequirePermission(p, cfg.Permissions, cfg.Log)
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(RecoverMiddleware(cfg.Log))
	r.Use(LoggingMiddleware(cfg.Log, httpMetrics))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(authMetrics, cfg.Log))

		r.Route("/appointments", func(r chi.Router) {
			r.With(perm("appointment:create")).Post("/", h.requestAppointment)
			r.With(perm("appointment:emergency")).Post("/emergency", h.requestEmergencyAppointment)
			r.With(perm("appointment:view")).Get("/patient", h.listFor(appointment.RolePatient))
			r.With(perm("appointment:view")).Get("/doctor", h.listFor(appointment.RoleDoctor))
			r.With(perm("appointment:view")).Get("/upcoming", h.listUpcoming)
			r.With(perm("appointment:view")).Get("/range", h.listAppointmentRange)
			r.With(perm("appointment:view")).Get("/{id}", h.getAppointment)
			r.With(perm("appointment:update-status")).Patch("/{id}/status", h.updateAppointmentStatus)
		})

		r.Route("/follow-ups", func(r chi.Router) {
			r.With(perm("follow-up:create")).Post("/", h.scheduleFollowUp)
			r.With(perm("follow-up:view")).Get("/", h.listFollowUps)
			r.With(perm("follow-up:view")).Get("/range", h.listFollowUpRange)
			r.With(perm("follow-up:view")).Get("/urgent", h.listUrgentFollowUps)
			r.With(perm("follow-up:view")).Get("/patient/{patientId}/summary", h.followUpSummary)
			r.With(perm("follow-up:sweep")).Post("/overdue/process", h.processOverdue)
			r.With(perm("follow-up:view")).Get("/{id}", h.getFollowUp)
			r.With(perm("follow-up:update-status")).Patch("/{id}/status", h.updateFollowUpStatus)
			r.With(perm("follow-up:reschedule")).Post("/{id}/reschedule", h.rescheduleFollowUp)
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(auth.Middleware(authMetrics, cfg.Log))
		r.Use(perm("internal:read"))

		r.Get("/appointments", h.internalListAppointments)
		r.Get("/appointments/{id}", h.internalGetAppointment)
	})

	return r
}
