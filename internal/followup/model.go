package followup

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/pagination"
	"github.com/hackgods/clinic-appointments/internal/profile"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusOverdue   Status = "OVERDUE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled, StatusOverdue:
		return true
	}
	return false
}

// Open reports whether the follow-up still awaits a visit.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusOverdue
}

const (
	MinUrgency = 1
	MaxUrgency = 5
)

var (
	ErrFollowUpNotFound            = apperr.New(apperr.ErrNotFound, "follow-up not found")
	ErrOriginalAppointmentNotFound = apperr.New(apperr.ErrNotFound, "original appointment not found")
	ErrDuplicateFollowUp           = apperr.New(apperr.ErrConflict, "a follow-up already exists for this appointment on that date")
	ErrPatientMismatch             = apperr.New(apperr.ErrInvalidRequest, "patient does not match the original appointment")
	ErrDateNotInFuture             = apperr.New(apperr.ErrInvalidRequest, "recommended date must be in the future")
	ErrAppointmentNotYetHeld       = apperr.New(apperr.ErrInvalidRequest, "follow-ups can only be scheduled after the original appointment")
	ErrInvalidStatusTransition     = apperr.New(apperr.ErrIllegalState, "invalid follow-up status transition")
	ErrUnknownStatus               = apperr.New(apperr.ErrIllegalState, "unknown follow-up status")
	ErrConcurrentUpdate            = apperr.New(apperr.ErrConflict, "follow-up was changed by another request")
)

type FollowUp struct {
	ID                    uuid.UUID  `json:"id"`
	OriginalAppointmentID uuid.UUID  `json:"original_appointment_id"`
	DoctorID              uuid.UUID  `json:"doctor_id"`
	PatientID             uuid.UUID  `json:"patient_id"`
	RecommendedDate       time.Time  `json:"recommended_date"`
	Reason                string     `json:"reason"`
	Status                Status     `json:"status"`
	Notes                 string     `json:"notes"`
	UrgencyLevel          int        `json:"urgency_level"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	CompletedBy           *uuid.UUID `json:"completed_by,omitempty"`
	CancellationReason    *string    `json:"cancellation_reason,omitempty"`
}

// Detail is a follow-up joined with the appointment it came from and the
// live profiles of both parties.
type Detail struct {
	FollowUp
	OriginalAppointment appointment.Appointment `json:"original_appointment"`
	Doctor              *profile.Doctor         `json:"doctor"`
	Patient             *profile.Patient        `json:"patient"`
}

type DetailPage struct {
	Items []Detail        `json:"items"`
	Meta  pagination.Meta `json:"meta"`
}

// Summary is a patient's follow-up overview.
type Summary struct {
	PatientID uuid.UUID      `json:"patient_id"`
	Total     int            `json:"total"`
	ByStatus  map[Status]int `json:"by_status"`
	Next      *Detail        `json:"next,omitempty"`
	Overdue   []Detail       `json:"overdue"`
}

type ScheduleRequest struct {
	OriginalAppointmentID uuid.UUID
	DoctorID              uuid.UUID
	PatientID             uuid.UUID
	RecommendedDate       time.Time
	Reason                string
	Notes                 string
	UrgencyLevel          int
}

type StatusChange struct {
	FollowUpID         uuid.UUID
	Status             Status
	Notes              *string
	CancellationReason *string
}

type RescheduleRequest struct {
	FollowUpID uuid.UUID
	DoctorID   uuid.UUID
	NewDate    time.Time
	Notes      *string
}

type ListFilter struct {
	Status Status
	Page   pagination.Params
}

var transitions = map[Status][]Status{
	StatusPending: {StatusCompleted, StatusCancelled, StatusOverdue},
	StatusOverdue: {StatusCompleted, StatusCancelled},
}

// CheckTransition validates from -> to. OVERDUE -> PENDING is not a
// status update; it goes through Reschedule.
func CheckTransition(from, to Status) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: %s -> %s", ErrUnknownStatus, from, to)
	}
	if from == to {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
}
