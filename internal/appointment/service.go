package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/messaging"
	"github.com/hackgods/clinic-appointments/internal/notification"
	"github.com/hackgods/clinic-appointments/internal/profile"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

// CachePrefix is dropped wholesale on every appointment write.
const CachePrefix = "appointments:"

// Notifier is the subset of notification.Dispatcher the lifecycle needs.
type Notifier interface {
	DispatchAll(ctx context.Context, delivery notification.Delivery, ns ...notification.Notification) error
}

type OperationRecorder interface {
	RecordAppointmentOperation(ctx context.Context, operation string)
}

type Options struct {
	ReadCacheTTL      time.Duration
	MeetingBaseURL    string
	StrictTransitions bool
	Now               func() time.Time
	Metrics           OperationRecorder
}

type Service struct {
	repo      Repository
	validator *Validator
	locker    redisclient.Locker
	profiles  profile.Lookup
	notifier  Notifier
	cache     redisclient.Cache
	triage    Triage
	opts      Options
	log       zerolog.Logger
}

// NewService wires the appointment lifecycle. cache may be nil.
func NewService(
	repo Repository,
	locker redisclient.Locker,
	profiles profile.Lookup,
	notifier Notifier,
	cache redisclient.Cache,
	triage Triage,
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
		repo:      repo,
		validator: NewValidator(repo),
		locker:    locker,
		profiles:  profiles,
		notifier:  notifier,
		cache:     cache,
		triage:    triage,
		opts:      opts,
		log:       log.With().Str("component", "appointment").Logger(),
	}
}

// RequestAppointment books a PENDING visit for the patient. The availability
// check and the insert run under a per doctor-day lock; the store's exclusion
// constraint backs it up.
func (s *Service) RequestAppointment(ctx context.Context, req BookingRequest) (*Detail, error) {
	if err := s.validateBooking(req); err != nil {
		return nil, err
	}

	doctor, patient, err := s.loadProfiles(ctx, req.DoctorID, req.PatientID)
	if err != nil {
		return nil, err
	}

	date := DateOf(req.Date)
	appt := &Appointment{
		ID:        uuid.New(),
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    StatusPending,
		Type:      TypeRegular,
		Reason:    req.Reason,
		Symptoms:  req.Symptoms,
		Priority:  req.Priority,
		IsVirtual: req.IsVirtual,
	}
	if appt.Priority == 0 {
		appt.Priority = MinPriority
	}
	if appt.IsVirtual {
		appt.MeetingLink = s.meetingLink(appt.ID)
	}

	lockKey := req.DoctorID.String() + ":" + date.Format(DateLayout)
	err = s.locker.WithSlotLock(ctx, lockKey, func(lockCtx context.Context) error {
		ok, err := s.validator.IsAvailable(lockCtx, req.DoctorID, date, req.StartTime, req.EndTime, uuid.Nil)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTimeSlotNotAvailable
		}
		return s.repo.Create(lockCtx, appt)
	})
	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, ErrSlotBeingBooked
		case apperr.Kind(err) != nil:
			return nil, err
		default:
			return nil, apperr.Unavailable("reserve slot", err)
		}
	}

	redisclient.Invalidate(ctx, s.cache, s.log, CachePrefix)
	s.record(ctx, "request")
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("date", date.Format(DateLayout)).
		Str("window", appt.StartTime.String()+"-"+appt.EndTime.String()).
		Msg("appointment requested")

	detail := &Detail{Appointment: *appt, Doctor: doctor, Patient: patient}

	payload := appointmentPayload(detail)
	err = s.notifier.DispatchAll(ctx, notification.MustDeliver,
		notification.Notification{
			Type:          notification.EventAppointmentRequested,
			Topic:         messaging.TopicAppointmentRequest,
			RecipientID:   appt.DoctorID,
			RecipientRole: notification.RecipientDoctor,
			Subject:       "New appointment request from " + patient.FullName(),
			Payload:       payload,
		},
		notification.Notification{
			Type:          notification.EventAppointmentRequested,
			Topic:         messaging.TopicAppointmentRequest,
			RecipientID:   appt.PatientID,
			RecipientRole: notification.RecipientPatient,
			Subject:       "Your appointment request with " + doctor.FullName() + " was received",
			Payload:       payload,
		},
	)
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("appointment stored but notification failed")
		return nil, err
	}

	return detail, nil
}

func (s *Service) validateBooking(req BookingRequest) error {
	if req.DoctorID == uuid.Nil || req.PatientID == uuid.Nil {
		return apperr.Invalid("doctor and patient are required")
	}
	if req.StartTime >= req.EndTime {
		return ErrInvalidTimeRange
	}
	if req.StartTime < 0 || req.EndTime > EndOfDay {
		return apperr.Invalid("appointment window must lie within one day")
	}
	switch req.Type {
	case "", TypeRegular:
	case TypeEmergency:
		return ErrEmergencyNotBookable
	default:
		return apperr.Invalid("unknown appointment type %q", req.Type)
	}
	if err := validateClinical(req.Symptoms, req.Priority); err != nil {
		return err
	}
	if DateOf(req.Date).Before(DateOf(s.opts.Now())) {
		return apperr.Invalid("appointment date %s is in the past", req.Date.Format(DateLayout))
	}
	return nil
}

func validateClinical(symptoms []string, priority int) error {
	if len(symptoms) > MaxSymptoms {
		return apperr.Invalid("at most %d symptoms may be listed", MaxSymptoms)
	}
	if priority != 0 && (priority < MinPriority || priority > MaxPriority) {
		return apperr.Invalid("priority must be between %d and %d", MinPriority, MaxPriority)
	}
	return nil
}

// RequestEmergencyAppointment skips the availability check: triage picks a
// doctor and the visit is approved immediately for the next 30 minutes.
func (s *Service) RequestEmergencyAppointment(ctx context.Context, req EmergencyRequest) (*Detail, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.Invalid("patient is required")
	}
	if err := validateClinical(req.Symptoms, req.Priority); err != nil {
		return nil, err
	}

	doctorID, err := s.triage.Assign(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("triage: %w", err)
	}

	doctor, patient, err := s.loadProfiles(ctx, doctorID, req.PatientID)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	start := ClockOf(now)
	end := start + TimeOfDay(EmergencyWindow/time.Minute)
	if end > EndOfDay {
		end = EndOfDay
	}

	appt := &Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: req.PatientID,
		Date:      DateOf(now),
		StartTime: start,
		EndTime:   end,
		Status:    StatusApproved,
		Type:      TypeEmergency,
		Reason:    req.Description,
		Symptoms:  req.Symptoms,
		Priority:  req.Priority,
		IsVirtual: true,
	}
	if appt.Priority == 0 {
		appt.Priority = MaxPriority
	}
	appt.MeetingLink = s.meetingLink(appt.ID)

	if err := s.repo.Create(ctx, appt); err != nil {
		return nil, fmt.Errorf("create emergency appointment: %w", err)
	}

	redisclient.Invalidate(ctx, s.cache, s.log, CachePrefix)
	s.record(ctx, "emergency")
	s.log.Warn().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", doctorID.String()).
		Int("priority", appt.Priority).
		Msg("emergency appointment assigned")

	detail := &Detail{Appointment: *appt, Doctor: doctor, Patient: patient}

	payload := appointmentPayload(detail)
	payload["preferred_specialization"] = req.PreferredSpecialization
	err = s.notifier.DispatchAll(ctx, notification.MustDeliver,
		notification.Notification{
			Type:          notification.EventEmergencyAppointmentAssigned,
			Topic:         messaging.TopicEmergencyAppointmentRequest,
			RecipientID:   doctorID,
			RecipientRole: notification.RecipientDoctor,
			Subject:       "Emergency appointment assigned: " + patient.FullName(),
			Payload:       payload,
		},
		notification.Notification{
			Type:          notification.EventEmergencyAppointmentConfirmed,
			Topic:         messaging.TopicEmergencyAppointmentRequest,
			RecipientID:   req.PatientID,
			RecipientRole: notification.RecipientPatient,
			Subject:       "Emergency appointment confirmed with " + doctor.FullName(),
			Payload:       payload,
		},
	)
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("emergency appointment stored but notification failed")
		return nil, err
	}

	return detail, nil
}

// UpdateAppointmentStatus applies a doctor's status change. The patient
// hears about every actual change; the doctor only about a fresh cancellation.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, upd StatusUpdate) (*Detail, error) {
	appt, err := s.repo.GetByIDForDoctor(ctx, upd.AppointmentID, upd.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	previous := appt.Status
	if err := CheckTransition(previous, upd.Status, s.opts.StrictTransitions); err != nil {
		return nil, err
	}

	doctor, patient, err := s.loadProfiles(ctx, appt.DoctorID, appt.PatientID)
	if err != nil {
		return nil, err
	}

	appt.Status = upd.Status
	if upd.Notes != nil {
		appt.Notes = *upd.Notes
	}
	if upd.DoctorNotes != nil {
		appt.DoctorNotes = *upd.DoctorNotes
	}
	if upd.CancellationReason != nil {
		appt.CancellationReason = upd.CancellationReason
	}

	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	redisclient.Invalidate(ctx, s.cache, s.log, CachePrefix)
	s.record(ctx, "update_status")

	detail := &Detail{Appointment: *appt, Doctor: doctor, Patient: patient}
	if previous == upd.Status {
		return detail, nil
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("from", string(previous)).
		Str("to", string(upd.Status)).
		Msg("appointment status changed")

	payload := appointmentPayload(detail)
	payload["previous_status"] = string(previous)

	eventType := notification.EventAppointmentStatusUpdated
	if upd.Status == StatusCancelled {
		eventType = notification.EventAppointmentCancelled
	}

	ns := []notification.Notification{{
		Type:          eventType,
		Topic:         messaging.TopicAppointmentUpdateStatus,
		RecipientID:   appt.PatientID,
		RecipientRole: notification.RecipientPatient,
		Subject:       fmt.Sprintf("Your appointment with %s is now %s", doctor.FullName(), humanStatus(upd.Status)),
		Payload:       payload,
	}}
	if upd.Status == StatusCancelled && previous != StatusCancelled {
		ns = append(ns, notification.Notification{
			Type:          eventType,
			Topic:         messaging.TopicAppointmentUpdateStatus,
			RecipientID:   appt.DoctorID,
			RecipientRole: notification.RecipientDoctor,
			Subject:       "Appointment with " + patient.FullName() + " cancelled",
			Payload:       payload,
		})
	}

	if err := s.notifier.DispatchAll(ctx, notification.MustDeliver, ns...); err != nil {
		s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("status stored but notification failed")
		return nil, err
	}
	return detail, nil
}

// Reads

// GetAppointment returns the appointment if scope may see it.
func (s *Service) GetAppointment(ctx context.Context, scope Scope, id uuid.UUID) (*Detail, error) {
	appt, err := redisclient.ReadThrough(ctx, s.cache, s.log, CachePrefix+"id:"+id.String(), s.opts.ReadCacheTTL,
		func(ctx context.Context) (*Appointment, error) {
			return s.repo.GetByID(ctx, id)
		})
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !scope.Owns(appt) {
		return nil, ErrAppointmentNotFound
	}

	details, err := s.enrich(ctx, []Appointment{*appt})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

type cachedPage struct {
	Items []Appointment `json:"items"`
	Total int           `json:"total"`
}

// List pages through appointments visible to scope. Patient and doctor
// scopes see their own; admin and service scopes see everything.
func (s *Service) List(ctx context.Context, scope Scope, f ListFilter) (*DetailPage, error) {
	f.Page.Validate()
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Invalid("unknown status %q", f.Status)
	}

	q := scopeQuery(scope)
	if f.Status != "" {
		q.Statuses = []Status{f.Status}
	}
	dateKey := ""
	if f.Date != nil {
		d := DateOf(*f.Date)
		q.Date = &d
		dateKey = d.Format(DateLayout)
	}
	q.Limit, q.Offset = f.Page.Size, f.Page.Offset()

	key := fmt.Sprintf("%slist:%s:%s:status=%s:date=%s:page=%d:size=%d",
		CachePrefix, strings.ToLower(string(scope.Role)), scope.UserID, f.Status, dateKey, f.Page.Page, f.Page.Size)

	page, err := redisclient.ReadThrough(ctx, s.cache, s.log, key, s.opts.ReadCacheTTL,
		func(ctx context.Context) (cachedPage, error) {
			items, total, err := s.repo.List(ctx, q)
			return cachedPage{Items: items, Total: total}, err
		})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	details, err := s.enrich(ctx, page.Items)
	if err != nil {
		return nil, err
	}
	return &DetailPage{Items: details, Meta: f.Page.Meta(page.Total)}, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) (*DetailPage, error) {
	return s.List(ctx, Scope{Role: RolePatient, UserID: patientID}, f)
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) (*DetailPage, error) {
	return s.List(ctx, Scope{Role: RoleDoctor, UserID: doctorID}, f)
}

// ListUpcoming returns open appointments on or after from, or today when
// from is nil.
func (s *Service) ListUpcoming(ctx context.Context, scope Scope, from *time.Time) ([]Detail, error) {
	start := s.opts.Now()
	if from != nil {
		start = *from
	}
	return s.listUpcoming(ctx, scope, DateOf(start))
}

func (s *Service) listUpcoming(ctx context.Context, scope Scope, from time.Time) ([]Detail, error) {
	q := scopeQuery(scope)
	q.From = &from
	q.Statuses = []Status{StatusPending, StatusApproved, StatusInProgress}

	key := fmt.Sprintf("%supcoming:%s:%s:%s", CachePrefix, strings.ToLower(string(scope.Role)), scope.UserID, from.Format(DateLayout))
	return s.listAll(ctx, key, q)
}

// ListBetween returns appointments dated within [from, to].
func (s *Service) ListBetween(ctx context.Context, scope Scope, from, to time.Time) ([]Detail, error) {
	from, to = DateOf(from), DateOf(to)
	if to.Before(from) {
		return nil, apperr.Invalid("range end %s is before start %s", to.Format(DateLayout), from.Format(DateLayout))
	}
	q := scopeQuery(scope)
	q.From, q.To = &from, &to

	key := fmt.Sprintf("%srange:%s:%s:%s:%s", CachePrefix, strings.ToLower(string(scope.Role)), scope.UserID,
		from.Format(DateLayout), to.Format(DateLayout))
	return s.listAll(ctx, key, q)
}

func (s *Service) listAll(ctx context.Context, key string, q Query) ([]Detail, error) {
	items, err := redisclient.ReadThrough(ctx, s.cache, s.log, key, s.opts.ReadCacheTTL,
		func(ctx context.Context) ([]Appointment, error) {
			items, _, err := s.repo.List(ctx, q)
			return items, err
		})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return s.enrich(ctx, items)
}

func scopeQuery(scope Scope) Query {
	var q Query
	id := scope.UserID
	switch scope.Role {
	case RolePatient:
		q.PatientID = &id
	case RoleDoctor:
		q.DoctorID = &id
	}
	return q
}

// enrich attaches live profiles. Any lookup failure fails the whole read.
func (s *Service) enrich(ctx context.Context, items []Appointment) ([]Detail, error) {
	doctors := make(map[uuid.UUID]*profile.Doctor)
	patients := make(map[uuid.UUID]*profile.Patient)

	out := make([]Detail, 0, len(items))
	for _, a := range items {
		d, ok := doctors[a.DoctorID]
		if !ok {
			var err error
			if d, err = s.profiles.GetDoctor(ctx, a.DoctorID); err != nil {
				return nil, fmt.Errorf("enrich appointment %s: %w", a.ID, err)
			}
			doctors[a.DoctorID] = d
		}
		p, ok := patients[a.PatientID]
		if !ok {
			var err error
			if p, err = s.profiles.GetPatient(ctx, a.PatientID); err != nil {
				return nil, fmt.Errorf("enrich appointment %s: %w", a.ID, err)
			}
			patients[a.PatientID] = p
		}
		out = append(out, Detail{Appointment: a, Doctor: d, Patient: p})
	}
	return out, nil
}

func (s *Service) loadProfiles(ctx context.Context, doctorID, patientID uuid.UUID) (*profile.Doctor, *profile.Patient, error) {
	doctor, err := s.profiles.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, nil, fmt.Errorf("load doctor: %w", err)
	}
	patient, err := s.profiles.GetPatient(ctx, patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("load patient: %w", err)
	}
	return doctor, patient, nil
}

func (s *Service) meetingLink(id uuid.UUID) *string {
	link := strings.TrimRight(s.opts.MeetingBaseURL, "/") + "/" + id.String()
	return &link
}

func (s *Service) record(ctx context.Context, op string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordAppointmentOperation(ctx, op)
	}
}

func appointmentPayload(d *Detail) map[string]any {
	p := map[string]any{
		"appointment_id":   d.ID.String(),
		"doctor_id":        d.DoctorID.String(),
		"doctor_name":      d.Doctor.FullName(),
		"patient_id":       d.PatientID.String(),
		"patient_name":     d.Patient.FullName(),
		"appointment_date": d.Date.Format(DateLayout),
		"start_time":       d.StartTime.String(),
		"end_time":         d.EndTime.String(),
		"status":           string(d.Status),
		"type":             string(d.Type),
		"reason":           d.Reason,
		"is_virtual":       d.IsVirtual,
	}
	if d.MeetingLink != nil {
		p["meeting_link"] = *d.MeetingLink
	}
	if d.CancellationReason != nil {
		p["cancellation_reason"] = *d.CancellationReason
	}
	return p
}

func humanStatus(s Status) string {
	return strings.ToLower(strings.ReplaceAll(string(s), "_", " "))
}
