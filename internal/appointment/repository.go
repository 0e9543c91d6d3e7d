package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/apperr"
)

var (
	ErrAppointmentNotFound     = apperr.New(apperr.ErrNotFound, "appointment not found")
	ErrTimeSlotNotAvailable    = apperr.New(apperr.ErrConflict, "time slot not available")
	ErrSlotBeingBooked         = apperr.New(apperr.ErrConflict, "time slot is currently being booked, please retry")
	ErrInvalidTimeRange        = apperr.New(apperr.ErrInvalidRequest, "start time must be before end time")
	ErrEmergencyNotBookable    = apperr.New(apperr.ErrInvalidRequest, "emergency visits are requested through emergency triage")
	ErrInvalidStatusTransition = apperr.New(apperr.ErrIllegalState, "invalid status transition")
	ErrUnknownStatus           = apperr.New(apperr.ErrIllegalState, "unknown appointment status")
	ErrNoDoctorAvailable       = apperr.New(apperr.ErrUnavailable, "no doctor available for emergency triage")
)

// Query selects appointments for list reads. Nil / zero fields are ignored.
type Query struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Statuses  []Status
	Date      *time.Time
	From      *time.Time // inclusive
	To        *time.Time // inclusive
	Limit     int
	Offset    int
}

// Repository contains all store interactions needed by the lifecycle service.
type Repository interface {
	// Create persists a new appointment. An overlapping blocking booking
	// for the same doctor and day fails with ErrTimeSlotNotAvailable.
	Create(ctx context.Context, a *Appointment) error

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByIDForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error)

	// For conflict checks: blocking appointments of doctorID on date, minus excludeID.
	FindConflictCandidates(ctx context.Context, doctorID uuid.UUID, date time.Time, excludeID uuid.UUID) ([]Appointment, error)

	List(ctx context.Context, q Query) ([]Appointment, int, error)

	// Update writes status, notes, doctor notes, cancellation reason and updated_at.
	Update(ctx context.Context, a *Appointment) error
}
