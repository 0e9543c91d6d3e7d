package followup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/messaging"
	"github.com/hackgods/clinic-appointments/internal/notification"
	"github.com/hackgods/clinic-appointments/internal/profile"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

const CachePrefix = "followups:"

type Notifier interface {
	DispatchAll(ctx context.Context, delivery notification.Delivery, ns ...notification.Notification) error
}

type OperationRecorder interface {
	RecordFollowUpOperation(ctx context.Context, operation string)
}

type Options struct {
	ReadCacheTTL time.Duration
	Now          func() time.Time
	Metrics      OperationRecorder
}

type Service struct {
	repo         Repository
	appointments appointment.Repository
	profiles     profile.Lookup
	notifier     Notifier
	cache        redisclient.Cache
	opts         Options
	log          zerolog.Logger
}

func NewService(
	repo Repository,
	appointments appointment.Repository,
	profiles profile.Lookup,
	notifier Notifier,
	cache redisclient.Cache,
	opts Options,
	log zerolog.Logger,
) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReadCacheTTL <= 0 {
		opts.ReadCacheTTL = 2 * time.Minute
	}
	return &Service{
		repo:         repo,
		appointments: appointments,
		profiles:     profiles,
		notifier:     notifier,
		cache:        cache,
		opts:         opts,
		log:          log.With().Str("component", "followup").Logger(),
	}
}

func (s *Service) today() time.Time {
	return appointment.DateOf(s.opts.Now())
}

// Schedule creates a PENDING follow-up against an appointment the doctor owns
// that is dated today or earlier.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*Detail, error) {
	if req.UrgencyLevel == 0 {
		req.UrgencyLevel = MinUrgency
	}
	if req.UrgencyLevel < MinUrgency || req.UrgencyLevel > MaxUrgency {
		return nil, apperr.Invalid("urgency level must be between %d and %d", MinUrgency, MaxUrgency)
	}

	orig, err := s.appointments.GetByIDForDoctor(ctx, req.OriginalAppointmentID, req.DoctorID)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return nil, ErrOriginalAppointmentNotFound
		}
		return nil, fmt.Errorf("load original appointment: %w", err)
	}
	if orig.PatientID != req.PatientID {
		return nil, ErrPatientMismatch
	}
	if appointment.DateOf(orig.Date).After(s.today()) {
		return nil, ErrAppointmentNotYetHeld
	}

	date := appointment.DateOf(req.RecommendedDate)
	if !date.After(s.today()) {
		return nil, ErrDateNotInFuture
	}

	exists, err := s.repo.ExistsFor(ctx, orig.ID, date, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("check duplicate follow-up: %w", err)
	}
	if exists {
		return nil, ErrDuplicateFollowUp
	}

	f := &FollowUp{
		ID:                    uuid.New(),
		OriginalAppointmentID: orig.ID,
		DoctorID:              req.DoctorID,
		PatientID:             req.PatientID,
		RecommendedDate:       date,
		Reason:                req.Reason,
		Status:                StatusPending,
		Notes:                 req.Notes,
		UrgencyLevel:          req.UrgencyLevel,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("create follow-up: %w", err)
	}

	redisclient.Invalidate(ctx, s.cache, s.log, CachePrefix)
	s.record(ctx, "schedule")
	s.log.Info().
		Str("follow_up_id", f.ID.String()).
		Str("appointment_id", orig.ID.String()).
		Str("recommended_date", date.Format(appointment.DateLayout)).
		Msg("follow-up scheduled")

	detail, err := s.join(ctx, *f, orig)
	if err != nil {
		return nil, err
	}

	_ = s.notifier.DispatchAll(ctx, notification.BestEffort, notification.Notification{
		Type:          notification.EventFollowUpScheduled,
		Topic:         messaging.TopicFollowUpSchedule,
		RecipientID:   f.PatientID,
		RecipientRole: notification.RecipientPatient,
		Subject:       "Follow-up recommended by " + detail.Doctor.FullName(),
		Payload:       followUpPayload(detail),
	})

	return detail, nil
}

// UpdateStatus applies a status change visible to scope. COMPLETED stamps
// completion; COMPLETED and CANCELLED notify both parties, OVERDUE only
// the patient.
func (s *Service) UpdateStatus(ctx context.Context, scope appointment.Scope, ch StatusChange) (*Detail, error) {
	f, err := s.loadForUpdate(ctx, scope, ch.FollowUpID)
	if err != nil {
		return nil, err
	}

	previous := f.Status
	if err := CheckTransition(previous, ch.Status); err != nil {
		return nil, err
	}

	f.Status = ch.Status
	if ch.Notes != nil {
		f.Notes = *ch.Notes
	}
	switch ch.Status {
	case StatusCompleted:
		if previous != StatusCompleted {
			now := s.opts.Now()
			f.CompletedAt = &now
			if scope.UserID != uuid.Nil {
				by := scope.UserID
				f.CompletedBy = &by
			}
		}
	case StatusCancelled:
		if ch.CancellationReason != nil {
			f.CancellationReason = ch.CancellationReason
		}
	}

	detail, err := s.join(ctx, *f, nil)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, f, previous); err != nil {
		return nil, fmt.Errorf("update follow-up: %w", err)
	}
	detail.FollowUp = *f

	redisclient.Invalidate(ctx, s.cache, s.log, CachePrefix)
	s.record(ctx, "update_status")

	if previous == ch.Status {
		return detail, nil
	}

	s.log.Info().
		Str("follow_up_id", f.ID.String()).
		Str("from", string(previous)).
		Str("to", string(ch.Status)).
		Msg("follow-up status changed")

	payload := followUpPayload(detail)
	payload["previous_status"] = string(previous)

	eventType := notification.EventFollowUpStatusUpdated
	if ch.Status == StatusOverdue {
		eventType = notification.EventFollowUpOverdue
	}
	ns := []notification.Notification{{
		Type:          eventType,
		Topic:         messaging.TopicFollowUpUpdateStatus,
		RecipientID:   f.PatientID,
		RecipientRole: notification.RecipientPatient,
		Subject:       "Your follow-up is now " + strings.ToLower(string(ch.Status)),
		Payload:       payload,
	}}
	if ch.Status == StatusCompleted || ch.Status == StatusCancelled {
		ns = append(ns, notification.Notification{
			Type:          eventType,
			Topic:         messaging.TopicFollowUpUpdateStatus,
			RecipientID:   f.DoctorID,
			RecipientRole: notification.RecipientDoctor,
			Subject:       "Follow-up with " + detail.Patient.FullName() + " is now " + strings.ToLower(string(ch.Status)),
			Payload:       payload,
		})
	}
	_ = s.notifier.DispatchAll(ctx, notification.BestEffort, ns...)

	return detail, nil
}

// Reschedule moves an open follow-up to a new future date and puts it back
// to PENDING. It is the only way out of OVERDUE other than closing it.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (*Detail, error) {
	f, err := s.loadForUpdate(ctx, appointment.Scope{Role: appointment.RoleDoctor, UserID: req.DoctorID}, req.FollowUpID)
	if err != nil {
		return nil, err
	}
	if !f.Status.Open() {
		return nil, fmt.Errorf("%w: cannot reschedule a %s follow-up", ErrInvalidStatusTransition, f.Status)
	}

	date := appointment.DateOf(req.NewDate)
	if !date.After(s.today()) {
		return nil, ErrDateNotInFuture
	}
	exists, err := s.repo.ExistsFor(ctx, f.OriginalAppointmentID, date, f.ID)
	if err != nil {
		return nil, fmt.Errorf("check duplicate follow-up: %w", err)
	}
	if exists {
		return nil, ErrDuplicateFollowUp
	}

	previousDate := f.RecommendedDate
	previous := f.Status
	f.RecommendedDate = date
	f.Status = StatusPending
	if req.Notes != nil {
		f.Notes = *req.Notes
	}

	detail, err := s.join(ctx, *f, nil)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, f, previous); err != nil {
		return nil, fmt.Errorf("reschedule follow-up: %w", err)
	}
	detail.FollowUp = *f

	redisclient.Invalidate(ctx, s.cache, s.log, CachePrefix)
	s.record(ctx, "reschedule")

	payload := followUpPayload(detail)
	payload["previous_date"] = previousDate.Format(appointment.DateLayout)
	_ = s.notifier.DispatchAll(ctx, notification.BestEffort, notification.Notification{
		Type:          notification.EventFollowUpRescheduled,
		Topic:         messaging.TopicFollowUpSchedule,
		RecipientID:   f.PatientID,
		RecipientRole: notification.RecipientPatient,
		Subject:       "Your follow-up was moved to " + date.Format(appointment.DateLayout),
		Payload:       payload,
	})

	return detail, nil
}

// ProcessOverdue moves every PENDING follow-up recommended before today to
// OVERDUE and notifies the patient. Re-running it changes nothing new. On
// cancellation it stops between records and returns what it has done.
func (s *Service) ProcessOverdue(ctx context.Context) (int, error) {
	today := s.today()
	candidates, err := s.repo.FindOverdue(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("find overdue follow-ups: %w", err)
	}

	processed := 0
	defer func() {
		if processed > 0 {
			redisclient.Invalidate(context.WithoutCancel(ctx), s.cache, s.log, CachePrefix)
		}
	}()

	for _, f := range candidates {
		if err := ctx.Err(); err != nil {
			s.log.Warn().Int("processed", processed).Int("remaining", len(candidates)-processed).Msg("overdue sweep interrupted")
			return processed, err
		}

		moved, err := s.repo.MarkOverdue(ctx, f.ID, s.opts.Now())
		if err != nil {
			s.log.Error().Err(err).Str("follow_up_id", f.ID.String()).Msg("failed to mark follow-up overdue")
			continue
		}
		if !moved {
			continue
		}
		processed++
		s.record(ctx, "overdue")

		f.Status = StatusOverdue
		payload := map[string]any{
			"follow_up_id":            f.ID.String(),
			"original_appointment_id": f.OriginalAppointmentID.String(),
			"doctor_id":               f.DoctorID.String(),
			"recommended_date":        f.RecommendedDate.Format(appointment.DateLayout),
			"reason":                  f.Reason,
			"urgency_level":           f.UrgencyLevel,
			"status":                  string(f.Status),
		}
		_ = s.notifier.DispatchAll(ctx, notification.BestEffort, notification.Notification{
			Type:          notification.EventFollowUpOverdue,
			Topic:         messaging.TopicFollowUpUpdateStatus,
			RecipientID:   f.PatientID,
			RecipientRole: notification.RecipientPatient,
			Subject:       "Your follow-up visit is overdue",
			Payload:       payload,
		})
	}

	s.log.Info().Int("candidates", len(candidates)).Int("processed", processed).Msg("overdue sweep finished")
	return processed, nil
}

// Reads

func (s *Service) Get(ctx context.Context, scope appointment.Scope, id uuid.UUID) (*Detail, error) {
	f, err := s.load(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, *f, nil)
}

type cachedPage struct {
	Items []FollowUp `json:"items"`
	Total int        `json:"total"`
}

func (s *Service) List(ctx context.Context, scope appointment.Scope, f ListFilter) (*DetailPage, error) {
	f.Page.Validate()
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Invalid("unknown status %q", f.Status)
	}

	q := scopeQuery(scope)
	if f.Status != "" {
		q.Statuses = []Status{f.Status}
	}
	q.Limit, q.Offset = f.Page.Size, f.Page.Offset()

	key := fmt.Sprintf("%slist:%s:%s:status=%s:page=%d:size=%d",
		CachePrefix, strings.ToLower(string(scope.Role)), scope.UserID, f.Status, f.Page.Page, f.Page.Size)
	page, err := redisclient.ReadThrough(ctx, s.cache, s.log, key, s.opts.ReadCacheTTL,
		func(ctx context.Context) (cachedPage, error) {
			items, total, err := s.repo.List(ctx, q)
			return cachedPage{Items: items, Total: total}, err
		})
	if err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}

	details, err := s.joinAll(ctx, page.Items)
	if err != nil {
		return nil, err
	}
	return &DetailPage{Items: details, Meta: f.Page.Meta(page.Total)}, nil
}

// ListBetween returns follow-ups recommended within [from, to].
func (s *Service) ListBetween(ctx context.Context, scope appointment.Scope, from, to time.Time) ([]Detail, error) {
	from, to = appointment.DateOf(from), appointment.DateOf(to)
	if to.Before(from) {
		return nil, apperr.Invalid("range end %s is before start %s",
			to.Format(appointment.DateLayout), from.Format(appointment.DateLayout))
	}
	q := scopeQuery(scope)
	q.From, q.To = &from, &to

	key := fmt.Sprintf("%srange:%s:%s:%s:%s", CachePrefix, strings.ToLower(string(scope.Role)), scope.UserID,
		from.Format(appointment.DateLayout), to.Format(appointment.DateLayout))
	return s.listAll(ctx, key, q)
}

// ListUrgent returns a doctor's open follow-ups at or above level.
func (s *Service) ListUrgent(ctx context.Context, doctorID uuid.UUID, level int) ([]Detail, error) {
	if level < MinUrgency || level > MaxUrgency {
		return nil, apperr.Invalid("urgency level must be between %d and %d", MinUrgency, MaxUrgency)
	}
	q := Query{DoctorID: &doctorID, Statuses: []Status{StatusPending, StatusOverdue}, MinUrgency: level}

	key := fmt.Sprintf("%surgent:%s:%d", CachePrefix, doctorID, level)
	return s.listAll(ctx, key, q)
}

// Summary counts a patient's follow-ups by status and picks out the next
// pending one and everything overdue. Doctors only see their own follow-ups.
func (s *Service) Summary(ctx context.Context, scope appointment.Scope, patientID uuid.UUID) (*Summary, error) {
	if scope.Role == appointment.RolePatient && scope.UserID != patientID {
		return nil, ErrFollowUpNotFound
	}
	q := Query{PatientID: &patientID}
	if scope.Role == appointment.RoleDoctor {
		id := scope.UserID
		q.DoctorID = &id
	}

	key := fmt.Sprintf("%ssummary:%s:%s:%s", CachePrefix, patientID, strings.ToLower(string(scope.Role)), scope.UserID)
	items, err := redisclient.ReadThrough(ctx, s.cache, s.log, key, s.opts.ReadCacheTTL,
		func(ctx context.Context) ([]FollowUp, error) {
			items, _, err := s.repo.List(ctx, q)
			return items, err
		})
	if err != nil {
		return nil, fmt.Errorf("load follow-ups: %w", err)
	}

	sum := &Summary{
		PatientID: patientID,
		Total:     len(items),
		ByStatus:  map[Status]int{StatusPending: 0, StatusCompleted: 0, StatusCancelled: 0, StatusOverdue: 0},
		Overdue:   []Detail{},
	}
	today := s.today()
	var next *FollowUp
	var overdue []FollowUp
	for i := range items {
		f := items[i]
		sum.ByStatus[f.Status]++
		switch f.Status {
		case StatusOverdue:
			overdue = append(overdue, f)
		case StatusPending:
			if !f.RecommendedDate.Before(today) && (next == nil || f.RecommendedDate.Before(next.RecommendedDate)) {
				next = &items[i]
			}
		}
	}

	if next != nil {
		d, err := s.join(ctx, *next, nil)
		if err != nil {
			return nil, err
		}
		sum.Next = d
	}
	if len(overdue) > 0 {
		if sum.Overdue, err = s.joinAll(ctx, overdue); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

func (s *Service) listAll(ctx context.Context, key string, q Query) ([]Detail, error) {
	items, err := redisclient.ReadThrough(ctx, s.cache, s.log, key, s.opts.ReadCacheTTL,
		func(ctx context.Context) ([]FollowUp, error) {
			items, _, err := s.repo.List(ctx, q)
			return items, err
		})
	if err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	return s.joinAll(ctx, items)
}

func (s *Service) load(ctx context.Context, scope appointment.Scope, id uuid.UUID) (*FollowUp, error) {
	f, err := redisclient.ReadThrough(ctx, s.cache, s.log, CachePrefix+"id:"+id.String(), s.opts.ReadCacheTTL,
		func(ctx context.Context) (*FollowUp, error) {
			return s.repo.GetByID(ctx, id)
		})
	if err != nil {
		return nil, fmt.Errorf("load follow-up: %w", err)
	}
	return visibleTo(scope, f)
}

// loadForUpdate reads from the store, never the read cache, so transitions
// are checked against the stored status.
func (s *Service) loadForUpdate(ctx context.Context, scope appointment.Scope, id uuid.UUID) (*FollowUp, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load follow-up: %w", err)
	}
	return visibleTo(scope, f)
}

func visibleTo(scope appointment.Scope, f *FollowUp) (*FollowUp, error) {
	switch scope.Role {
	case appointment.RoleDoctor:
		if f.DoctorID != scope.UserID {
			return nil, ErrFollowUpNotFound
		}
	case appointment.RolePatient:
		if f.PatientID != scope.UserID {
			return nil, ErrFollowUpNotFound
		}
	}
	return f, nil
}

func scopeQuery(scope appointment.Scope) Query {
	var q Query
	id := scope.UserID
	switch scope.Role {
	case appointment.RolePatient:
		q.PatientID = &id
	case appointment.RoleDoctor:
		q.DoctorID = &id
	}
	return q
}

// join attaches the originating appointment and both profiles. A missing
// appointment is a broken link and fails the read.
func (s *Service) join(ctx context.Context, f FollowUp, orig *appointment.Appointment) (*Detail, error) {
	if orig == nil {
		var err error
		orig, err = s.appointments.GetByID(ctx, f.OriginalAppointmentID)
		if err != nil {
			if errors.Is(err, appointment.ErrAppointmentNotFound) {
				return nil, fmt.Errorf("%w: follow-up %s", ErrOriginalAppointmentNotFound, f.ID)
			}
			return nil, fmt.Errorf("load original appointment: %w", err)
		}
	}

	doctor, err := s.profiles.GetDoctor(ctx, f.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("enrich follow-up %s: %w", f.ID, err)
	}
	patient, err := s.profiles.GetPatient(ctx, f.PatientID)
	if err != nil {
		return nil, fmt.Errorf("enrich follow-up %s: %w", f.ID, err)
	}

	return &Detail{FollowUp: f, OriginalAppointment: *orig, Doctor: doctor, Patient: patient}, nil
}

func (s *Service) joinAll(ctx context.Context, items []FollowUp) ([]Detail, error) {
	out := make([]Detail, 0, len(items))
	for _, f := range items {
		d, err := s.join(ctx, f, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, op string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordFollowUpOperation(ctx, op)
	}
}

func followUpPayload(d *Detail) map[string]any {
	p := map[string]any{
		"follow_up_id":            d.ID.String(),
		"original_appointment_id": d.OriginalAppointmentID.String(),
		"doctor_id":               d.DoctorID.String(),
		"doctor_name":             d.Doctor.FullName(),
		"patient_id":              d.PatientID.String(),
		"patient_name":            d.Patient.FullName(),
		"recommended_date":        d.RecommendedDate.Format(appointment.DateLayout),
		"reason":                  d.Reason,
		"urgency_level":           d.UrgencyLevel,
		"status":                  string(d.Status),
	}
	if d.CancellationReason != nil {
		p["cancellation_reason"] = *d.CancellationReason
	}
	return p
}
