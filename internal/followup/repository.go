package followup

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Query selects follow-ups. Nil / zero fields are ignored.
type Query struct {
	DoctorID   *uuid.UUID
	PatientID  *uuid.UUID
	Statuses   []Status
	From       *time.Time // inclusive
	To         *time.Time // inclusive
	MinUrgency int
	Limit      int
	Offset     int
}

type Repository interface {
	// Create fails with ErrDuplicateFollowUp when the appointment already
	// has a follow-up on the same date.
	Create(ctx context.Context, f *FollowUp) error
	GetByID(ctx context.Context, id uuid.UUID) (*FollowUp, error)
	ExistsFor(ctx context.Context, appointmentID uuid.UUID, date time.Time, excludeID uuid.UUID) (bool, error)
	List(ctx context.Context, q Query) ([]FollowUp, int, error)

	// FindOverdue returns PENDING follow-ups recommended strictly before today.
	FindOverdue(ctx context.Context, today time.Time) ([]FollowUp, error)

	// MarkOverdue moves one follow-up from PENDING to OVERDUE. It reports
	// false when the row was no longer PENDING.
	MarkOverdue(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// Update writes status, notes, recommended date, completion and
	// cancellation fields, provided the stored status is still expected.
	// Otherwise it fails with ErrConcurrentUpdate.
	Update(ctx context.Context, f *FollowUp, expected Status) error
}
