package testutil

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/followup"
)

// FollowUpStore is an in-memory followup.Repository enforcing the
// one-per-(appointment, date) rule.
type FollowUpStore struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]followup.FollowUp
	err      error
	markErrs map[uuid.UUID]error
	now      func() time.Time

	// BeforeMark runs before every MarkOverdue call, outside the lock.
	BeforeMark func(id uuid.UUID)
}

var _ followup.Repository = (*FollowUpStore)(nil)

func NewFollowUpStore() *FollowUpStore {
	return &FollowUpStore{
		byID:     make(map[uuid.UUID]followup.FollowUp),
		markErrs: make(map[uuid.UUID]error),
		now:      time.Now,
	}
}

func (s *FollowUpStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// FailMark makes MarkOverdue fail for one id.
func (s *FollowUpStore) FailMark(id uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markErrs[id] = err
}

func (s *FollowUpStore) Put(f followup.FollowUp) followup.FollowUp {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.UrgencyLevel == 0 {
		f.UrgencyLevel = 1
	}
	f.RecommendedDate = appointment.DateOf(f.RecommendedDate)
	s.byID[f.ID] = f
	return f
}

func (s *FollowUpStore) Get(id uuid.UUID) followup.FollowUp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *FollowUpStore) All() []followup.FollowUp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]followup.FollowUp, 0, len(s.byID))
	for _, f := range s.byID {
		out = append(out, f)
	}
	sortFollowUps(out)
	return out
}

func (s *FollowUpStore) Create(_ context.Context, f *followup.FollowUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, cur := range s.byID {
		if cur.OriginalAppointmentID == f.OriginalAppointmentID && cur.RecommendedDate.Equal(f.RecommendedDate) {
			return followup.ErrDuplicateFollowUp
		}
	}
	f.CreatedAt = s.now()
	f.UpdatedAt = f.CreatedAt
	s.byID[f.ID] = *f
	return nil
}

func (s *FollowUpStore) GetByID(_ context.Context, id uuid.UUID) (*followup.FollowUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	f, ok := s.byID[id]
	if !ok {
		return nil, followup.ErrFollowUpNotFound
	}
	return &f, nil
}

func (s *FollowUpStore) ExistsFor(_ context.Context, appointmentID uuid.UUID, date time.Time, excludeID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	for _, f := range s.byID {
		if f.OriginalAppointmentID == appointmentID && f.RecommendedDate.Equal(appointment.DateOf(date)) && f.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *FollowUpStore) List(_ context.Context, q followup.Query) ([]followup.FollowUp, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, 0, s.err
	}

	var matched []followup.FollowUp
	for _, f := range s.byID {
		if q.DoctorID != nil && f.DoctorID != *q.DoctorID {
			continue
		}
		if q.PatientID != nil && f.PatientID != *q.PatientID {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, f.Status) {
			continue
		}
		if q.From != nil && f.RecommendedDate.Before(appointment.DateOf(*q.From)) {
			continue
		}
		if q.To != nil && f.RecommendedDate.After(appointment.DateOf(*q.To)) {
			continue
		}
		if q.MinUrgency > 0 && f.UrgencyLevel < q.MinUrgency {
			continue
		}
		matched = append(matched, f)
	}
	sortFollowUps(matched)

	total := len(matched)
	if q.Limit > 0 {
		lo := min(q.Offset, total)
		hi := min(lo+q.Limit, total)
		matched = matched[lo:hi]
	}
	return matched, total, nil
}

func (s *FollowUpStore) FindOverdue(_ context.Context, today time.Time) ([]followup.FollowUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []followup.FollowUp
	for _, f := range s.byID {
		if f.Status == followup.StatusPending && f.RecommendedDate.Before(appointment.DateOf(today)) {
			out = append(out, f)
		}
	}
	sortFollowUps(out)
	return out, nil
}

func (s *FollowUpStore) MarkOverdue(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if s.BeforeMark != nil {
		s.BeforeMark(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.markErrs[id]; err != nil {
		return false, err
	}
	f, ok := s.byID[id]
	if !ok || f.Status != followup.StatusPending {
		return false, nil
	}
	f.Status = followup.StatusOverdue
	f.UpdatedAt = at
	s.byID[id] = f
	return true, nil
}

func (s *FollowUpStore) Update(_ context.Context, f *followup.FollowUp, expected followup.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	current, ok := s.byID[f.ID]
	if !ok {
		return followup.ErrFollowUpNotFound
	}
	if current.Status != expected {
		return followup.ErrConcurrentUpdate
	}
	f.UpdatedAt = s.now()
	s.byID[f.ID] = *f
	return nil
}

func sortFollowUps(fs []followup.FollowUp) {
	slices.SortFunc(fs, func(a, b followup.FollowUp) int {
		if c := a.RecommendedDate.Compare(b.RecommendedDate); c != 0 {
			return c
		}
		if a.UrgencyLevel != b.UrgencyLevel {
			return b.UrgencyLevel - a.UrgencyLevel
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
}
