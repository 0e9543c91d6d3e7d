package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Overlaps reports whether the candidate window [start, end) collides with c.
func Overlaps(c Appointment, start, end TimeOfDay) bool {
	return (c.StartTime <= start && start < c.EndTime) ||
		(c.StartTime < end && end <= c.EndTime) ||
		(start <= c.StartTime && end >= c.EndTime)
}

// Validator answers availability questions for a doctor's day. It only
// reads; the booking path pairs it with the doctor-day lock and the
// store's exclusion constraint.
type Validator struct {
	repo Repository
}

func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo}
}

// IsAvailable returns ErrInvalidTimeRange when start >= end.
func (v *Validator) IsAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end TimeOfDay, excludeID uuid.UUID) (bool, error) {
	if start >= end {
		return false, ErrInvalidTimeRange
	}

	candidates, err := v.repo.FindConflictCandidates(ctx, doctorID, DateOf(date), excludeID)
	if err != nil {
		return false, fmt.Errorf("load conflict candidates: %w", err)
	}

	for _, c := range candidates {
		if c.ID == excludeID || !c.Status.Blocking() {
			continue
		}
		if Overlaps(c, start, end) {
			return false, nil
		}
	}
	return true, nil
}
