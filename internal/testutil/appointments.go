package testutil

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

// AppointmentStore is an in-memory appointment.Repository. Create rejects
// overlapping blocking REGULAR bookings the way the Postgres exclusion
// constraint does.
type AppointmentStore struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]appointment.Appointment
	err   error
	now   func() time.Time
	Calls map[string]int
}

var _ appointment.Repository = (*AppointmentStore)(nil)

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{
		byID:  make(map[uuid.UUID]appointment.Appointment),
		now:   time.Now,
		Calls: make(map[string]int),
	}
}

// FailWith makes every call return err until cleared with nil.
func (s *AppointmentStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Put stores a directly, bypassing the overlap check.
func (s *AppointmentStore) Put(a appointment.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
		a.UpdatedAt = a.CreatedAt
	}
	a.Date = appointment.DateOf(a.Date)
	s.byID[a.ID] = a
}

func (s *AppointmentStore) All() []appointment.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]appointment.Appointment, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	sortAppointments(out)
	return out
}

func (s *AppointmentStore) Create(_ context.Context, a *appointment.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["Create"]++
	if s.err != nil {
		return s.err
	}

	if a.Type == appointment.TypeRegular && a.Status.Blocking() {
		for _, c := range s.byID {
			if c.DoctorID == a.DoctorID && c.Date.Equal(a.Date) && c.Type == appointment.TypeRegular &&
				c.Status.Blocking() && c.StartTime < a.EndTime && a.StartTime < c.EndTime {
				return appointment.ErrTimeSlotNotAvailable
			}
		}
	}

	a.CreatedAt = s.now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	cp.Symptoms = slices.Clone(a.Symptoms)
	s.byID[a.ID] = cp
	return nil
}

func (s *AppointmentStore) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["GetByID"]++
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.byID[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *AppointmentStore) GetByIDForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*appointment.Appointment, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, appointment.ErrAppointmentNotFound
	}
	return a, nil
}

func (s *AppointmentStore) FindConflictCandidates(_ context.Context, doctorID uuid.UUID, date time.Time, excludeID uuid.UUID) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["FindConflictCandidates"]++
	if s.err != nil {
		return nil, s.err
	}
	var out []appointment.Appointment
	for _, a := range s.byID {
		if a.DoctorID == doctorID && a.Date.Equal(appointment.DateOf(date)) && a.Status.Blocking() && a.ID != excludeID {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (s *AppointmentStore) List(_ context.Context, q appointment.Query) ([]appointment.Appointment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["List"]++
	if s.err != nil {
		return nil, 0, s.err
	}

	var matched []appointment.Appointment
	for _, a := range s.byID {
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, a.Status) {
			continue
		}
		if q.Date != nil && !a.Date.Equal(appointment.DateOf(*q.Date)) {
			continue
		}
		if q.From != nil && a.Date.Before(appointment.DateOf(*q.From)) {
			continue
		}
		if q.To != nil && a.Date.After(appointment.DateOf(*q.To)) {
			continue
		}
		matched = append(matched, a)
	}
	sortAppointments(matched)

	total := len(matched)
	if q.Limit > 0 {
		lo := min(q.Offset, total)
		hi := min(lo+q.Limit, total)
		matched = matched[lo:hi]
	}
	return matched, total, nil
}

func (s *AppointmentStore) Update(_ context.Context, a *appointment.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["Update"]++
	if s.err != nil {
		return s.err
	}
	cur, ok := s.byID[a.ID]
	if !ok {
		return appointment.ErrAppointmentNotFound
	}
	cur.Status = a.Status
	cur.Notes = a.Notes
	cur.DoctorNotes = a.DoctorNotes
	cur.CancellationReason = a.CancellationReason
	cur.UpdatedAt = s.now()
	a.UpdatedAt = cur.UpdatedAt
	s.byID[a.ID] = cur
	return nil
}

func sortAppointments(as []appointment.Appointment) {
	slices.SortFunc(as, func(a, b appointment.Appointment) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if a.StartTime != b.StartTime {
			return int(a.StartTime - b.StartTime)
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
}
