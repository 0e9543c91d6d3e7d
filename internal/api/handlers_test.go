package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/followup"
)

type mockAppointments struct {
	requestFn   func(ctx context.Context, req appointment.BookingRequest) (*appointment.Detail, error)
	emergencyFn func(ctx context.Context, req appointment.EmergencyRequest) (*appointment.Detail, error)
	updateFn    func(ctx context.Context, upd appointment.StatusUpdate) (*appointment.Detail, error)
	getFn       func(ctx context.Context, scope appointment.Scope, id uuid.UUID) (*appointment.Detail, error)
	listFn      func(ctx context.Context, scope appointment.Scope, f appointment.ListFilter) (*appointment.DetailPage, error)
	upcomingFn  func(ctx context.Context, scope appointment.Scope, from *time.Time) ([]appointment.Detail, error)
	betweenFn   func(ctx context.Context, scope appointment.Scope, from, to time.Time) ([]appointment.Detail, error)
}

func (m *mockAppointments) RequestAppointment(ctx context.Context, req appointment.BookingRequest) (*appointment.Detail, error) {
	return m.requestFn(ctx, req)
}

func (m *mockAppointments) RequestEmergencyAppointment(ctx context.Context, req appointment.EmergencyRequest) (*appointment.Detail, error) {
	return m.emergencyFn(ctx, req)
}

func (m *mockAppointments) UpdateAppointmentStatus(ctx context.Context, upd appointment.StatusUpdate) (*appointment.Detail, error) {
	return m.updateFn(ctx, upd)
}

func (m *mockAppointments) GetAppointment(ctx context.Context, scope appointment.Scope, id uuid.UUID) (*appointment.Detail, error) {
	return m.getFn(ctx, scope, id)
}

func (m *mockAppointments) List(ctx context.Context, scope appointment.Scope, f appointment.ListFilter) (*appointment.DetailPage, error) {
	return m.listFn(ctx, scope, f)
}

func (m *mockAppointments) ListUpcoming(ctx context.Context, scope appointment.Scope, from *time.Time) ([]appointment.Detail, error) {
	return m.upcomingFn(ctx, scope, from)
}

func (m *mockAppointments) ListBetween(ctx context.Context, scope appointment.Scope, from, to time.Time) ([]appointment.Detail, error) {
	return m.betweenFn(ctx, scope, from, to)
}

type mockFollowUps struct {
	scheduleFn   func(ctx context.Context, req followup.ScheduleRequest) (*followup.Detail, error)
	updateFn     func(ctx context.Context, scope appointment.Scope, ch followup.StatusChange) (*followup.Detail, error)
	rescheduleFn func(ctx context.Context, req followup.RescheduleRequest) (*followup.Detail, error)
	overdueFn    func(ctx context.Context) (int, error)
	getFn        func(ctx context.Context, scope appointment.Scope, id uuid.UUID) (*followup.Detail, error)
	listFn       func(ctx context.Context, scope appointment.Scope, f followup.ListFilter) (*followup.DetailPage, error)
	betweenFn    func(ctx context.Context, scope appointment.Scope, from, to time.Time) ([]followup.Detail, error)
	urgentFn     func(ctx context.Context, doctorID uuid.UUID, level int) ([]followup.Detail, error)
	summaryFn    func(ctx context.Context, scope appointment.Scope, patientID uuid.UUID) (*followup.Summary, error)
}

func (m *mockFollowUps) Schedule(ctx context.Context, req followup.ScheduleRequest) (*followup.Detail, error) {
	return m.scheduleFn(ctx, req)
}

func (m *mockFollowUps) UpdateStatus(ctx context.Context, scope appointment.Scope, ch followup.StatusChange) (*followup.Detail, error) {
	return m.updateFn(ctx, scope, ch)
}

func (m *mockFollowUps) Reschedule(ctx context.Context, req followup.RescheduleRequest) (*followup.Detail, error) {
	return m.rescheduleFn(ctx, req)
}

func (m *mockFollowUps) ProcessOverdue(ctx context.Context) (int, error) {
	return m.overdueFn(ctx)
}

func (m *mockFollowUps) Get(ctx context.Context, scope appointment.Scope, id uuid.UUID) (*followup.Detail, error) {
	return m.getFn(ctx, scope, id)
}

func (m *mockFollowUps) List(ctx context.Context, scope appointment.Scope, f followup.ListFilter) (*followup.DetailPage, error) {
	return m.listFn(ctx, scope, f)
}

func (m *mockFollowUps) ListBetween(ctx context.Context, scope appointment.Scope, from, to time.Time) ([]followup.Detail, error) {
	return m.betweenFn(ctx, scope, from, to)
}

func (m *mockFollowUps) ListUrgent(ctx context.Context, doctorID uuid.UUID, level int) ([]followup.Detail, error) {
	return m.urgentFn(ctx, doctorID, level)
}

func (m *mockFollowUps) Summary(ctx context.Context, scope appointment.Scope, patientID uuid.UUID) (*followup.Summary, error) {
	return m.summaryFn(ctx, scope, patientID)
}

func newTestRouter(t *testing.T, a *mockAppointments, f *mockFollowUps) http.Handler {
	t.Helper()
	perms, err := auth.LoadPermissions("")
	if err != nil {
		t.Fatalf("load permissions: %v", err)
	}
	if a == nil {
		a = &mockAppointments{}
	}
	if f == nil {
		f = &mockFollowUps{}
	}
	return NewRouter(RouterConfig{
		Appointments: a,
		FollowUps:    f,
		Permissions:  perms,
		Health:       NewHealthHandler("test", "dev"),
		Log:          zerolog.Nop(),
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any, role appointment.Role, userID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(auth.HeaderUserID, userID.String())
		req.Header.Set(auth.HeaderUserRole, string(role))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return e
}

func validBooking(doctorID uuid.UUID) BookAppointmentRequest {
	return BookAppointmentRequest{
		DoctorID:        doctorID.String(),
		AppointmentDate: "2025-06-01",
		StartTime:       "09:00",
		EndTime:         "09:30",
		Reason:          "checkup",
		Symptoms:        []string{"cough"},
	}
}

func TestRequestAppointment_Created(t *testing.T) {
	patientID, doctorID := uuid.New(), uuid.New()
	var got appointment.BookingRequest
	a := &mockAppointments{
		requestFn: func(_ context.Context, req appointment.BookingRequest) (*appointment.Detail, error) {
			got = req
			return &appointment.Detail{Appointment: appointment.Appointment{ID: uuid.New(), Status: appointment.StatusPending}}, nil
		},
	}
	h := newTestRouter(t, a, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/appointments", validBooking(doctorID), appointment.RolePatient, patientID)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got.PatientID != patientID || got.DoctorID != doctorID {
		t.Errorf("ids not taken from caller and body: %+v", got)
	}
	if got.StartTime != 9*60 || got.EndTime != 9*60+30 {
		t.Errorf("window = %s-%s", got.StartTime, got.EndTime)
	}
	if got.Date.Format(appointment.DateLayout) != "2025-06-01" {
		t.Errorf("date = %s", got.Date)
	}
}

func TestRequestAppointment_Validation(t *testing.T) {
	h := newTestRouter(t, &mockAppointments{}, nil)
	doctorID := uuid.New()

	tests := []struct {
		name   string
		mutate func(*BookAppointmentRequest)
		field  string
	}{
		{"bad doctor id", func(r *BookAppointmentRequest) { r.DoctorID = "nope" }, "doctor_id"},
		{"bad date", func(r *BookAppointmentRequest) { r.AppointmentDate = "01/06/2025" }, "appointment_date"},
		{"bad clock", func(r *BookAppointmentRequest) { r.StartTime = "9am" }, "start_time"},
		{"past midnight", func(r *BookAppointmentRequest) { r.EndTime = "24:30" }, "end_time"},
		{"priority out of range", func(r *BookAppointmentRequest) { r.Priority = 9 }, "priority"},
		{"too many symptoms", func(r *BookAppointmentRequest) { r.Symptoms = make([]string, 11) }, "symptoms"},
		{"unknown type", func(r *BookAppointmentRequest) { r.Type = "HOUSE_CALL" }, "type"},
		{"emergency on booking route", func(r *BookAppointmentRequest) { r.Type = "EMERGENCY" }, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validBooking(doctorID)
			tt.mutate(&req)
			rec := do(t, h, http.MethodPost, "/api/v1/appointments", req, appointment.RolePatient, uuid.New())
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			e := decodeError(t, rec)
			if e.Error != "validation_failed" || !strings.Contains(e.Details, tt.field) {
				t.Errorf("error = %+v, want mention of %s", e, tt.field)
			}
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/appointments", "{", appointment.RolePatient, uuid.New())
		if rec.Code != http.StatusBadRequest || decodeError(t, rec).Error != "invalid_request_body" {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestErrorKindMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{appointment.ErrAppointmentNotFound, http.StatusNotFound, "not_found"},
		{appointment.ErrInvalidTimeRange, http.StatusBadRequest, "invalid_request"},
		{appointment.ErrTimeSlotNotAvailable, http.StatusConflict, "conflict"},
		{apperr.Unavailable("get appointment", errors.New("dial tcp")), http.StatusServiceUnavailable, "unavailable"},
		{appointment.ErrInvalidStatusTransition, http.StatusUnprocessableEntity, "illegal_state"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			a := &mockAppointments{
				getFn: func(context.Context, appointment.Scope, uuid.UUID) (*appointment.Detail, error) {
					return nil, tt.err
				},
			}
			h := newTestRouter(t, a, nil)
			rec := do(t, h, http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), nil, appointment.RolePatient, uuid.New())
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if e := decodeError(t, rec); e.Error != tt.code || e.Details == "" {
				t.Errorf("body = %+v", e)
			}
		})
	}
}

func TestAuthAndPermissions(t *testing.T) {
	h := newTestRouter(t, &mockAppointments{}, &mockFollowUps{})

	t.Run("missing identity", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/appointments/upcoming", nil, "", uuid.Nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})
	t.Run("doctor cannot book", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/appointments", validBooking(uuid.New()), appointment.RoleDoctor, uuid.New())
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d", rec.Code)
		}
	})
	t.Run("patient cannot sweep", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/follow-ups/overdue/process", nil, appointment.RolePatient, uuid.New())
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d", rec.Code)
		}
	})
	t.Run("patient cannot read internal surface", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/internal/appointments", nil, appointment.RolePatient, uuid.New())
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d", rec.Code)
		}
	})
	t.Run("admin cannot update appointment status", func(t *testing.T) {
		body := UpdateAppointmentStatusRequest{Status: "APPROVED"}
		rec := do(t, h, http.MethodPatch, "/api/v1/appointments/"+uuid.NewString()+"/status", body, appointment.RoleAdmin, uuid.New())
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestUpdateAppointmentStatus_UsesCallerAsDoctor(t *testing.T) {
	doctorID, apptID := uuid.New(), uuid.New()
	var got appointment.StatusUpdate
	a := &mockAppointments{
		updateFn: func(_ context.Context, upd appointment.StatusUpdate) (*appointment.Detail, error) {
			got = upd
			return &appointment.Detail{}, nil
		},
	}
	h := newTestRouter(t, a, nil)
	reason := "patient travelling"
	body := UpdateAppointmentStatusRequest{Status: "CANCELLED", CancellationReason: &reason}

	rec := do(t, h, http.MethodPatch, "/api/v1/appointments/"+apptID.String()+"/status", body, appointment.RoleDoctor, doctorID)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got.AppointmentID != apptID || got.DoctorID != doctorID || got.Status != appointment.StatusCancelled {
		t.Errorf("update = %+v", got)
	}
	if got.CancellationReason == nil || *got.CancellationReason != reason {
		t.Errorf("cancellation reason not passed through")
	}

	rec = do(t, h, http.MethodPatch, "/api/v1/appointments/"+apptID.String()+"/status",
		map[string]string{"status": "ARCHIVED"}, appointment.RoleDoctor, doctorID)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status: status = %d", rec.Code)
	}
}

func TestListForPatientAndDoctor(t *testing.T) {
	var gotScope appointment.Scope
	var gotFilter appointment.ListFilter
	a := &mockAppointments{
		listFn: func(_ context.Context, scope appointment.Scope, f appointment.ListFilter) (*appointment.DetailPage, error) {
			gotScope, gotFilter = scope, f
			return &appointment.DetailPage{Meta: f.Page.Meta(0)}, nil
		},
	}
	h := newTestRouter(t, a, nil)

	patientID := uuid.New()
	rec := do(t, h, http.MethodGet, "/api/v1/appointments/patient?status=APPROVED&date=2025-06-01&page=2&size=5", nil, appointment.RolePatient, patientID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gotScope != (appointment.Scope{Role: appointment.RolePatient, UserID: patientID}) {
		t.Errorf("scope = %+v", gotScope)
	}
	if gotFilter.Status != appointment.StatusApproved || gotFilter.Page.Page != 2 || gotFilter.Page.Size != 5 {
		t.Errorf("filter = %+v", gotFilter)
	}
	if gotFilter.Date == nil || gotFilter.Date.Format(appointment.DateLayout) != "2025-06-01" {
		t.Errorf("date filter = %v", gotFilter.Date)
	}

	doctorID := uuid.New()
	rec = do(t, h, http.MethodGet, "/api/v1/appointments/doctor?userId="+doctorID.String(), nil, appointment.RoleAdmin, uuid.New())
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d", rec.Code)
	}
	if gotScope != (appointment.Scope{Role: appointment.RoleDoctor, UserID: doctorID}) {
		t.Errorf("admin scope = %+v", gotScope)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/appointments/doctor", nil, appointment.RoleAdmin, uuid.New()); rec.Code != http.StatusBadRequest {
		t.Errorf("admin without userId: status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/appointments/doctor", nil, appointment.RolePatient, uuid.New()); rec.Code != http.StatusForbidden {
		t.Errorf("patient on doctor list: status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/appointments/patient?status=LOST", nil, appointment.RolePatient, patientID); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: status = %d", rec.Code)
	}
}

func TestAppointmentRange_RequiresBothDates(t *testing.T) {
	var from, to time.Time
	a := &mockAppointments{
		betweenFn: func(_ context.Context, _ appointment.Scope, f, tt time.Time) ([]appointment.Detail, error) {
			from, to = f, tt
			return []appointment.Detail{}, nil
		},
	}
	h := newTestRouter(t, a, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/appointments/range?from=2025-06-01", nil, appointment.RoleDoctor, uuid.New())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing to: status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/appointments/range?from=2025-06-01&to=2025-06-07", nil, appointment.RoleDoctor, uuid.New())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if from.Day() != 1 || to.Day() != 7 {
		t.Errorf("range = %s..%s", from, to)
	}
}

func TestInternalList_ScopesByQuery(t *testing.T) {
	var gotScope appointment.Scope
	a := &mockAppointments{
		listFn: func(_ context.Context, scope appointment.Scope, f appointment.ListFilter) (*appointment.DetailPage, error) {
			gotScope = scope
			return &appointment.DetailPage{}, nil
		},
	}
	h := newTestRouter(t, a, nil)
	doctorID := uuid.New()

	rec := do(t, h, http.MethodGet, "/internal/appointments?role=DOCTOR&userId="+doctorID.String(), nil, appointment.RoleService, uuid.New())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotScope != (appointment.Scope{Role: appointment.RoleDoctor, UserID: doctorID}) {
		t.Errorf("scope = %+v", gotScope)
	}

	rec = do(t, h, http.MethodGet, "/internal/appointments", nil, appointment.RoleService, uuid.New())
	if rec.Code != http.StatusOK || gotScope.Role != appointment.RoleService {
		t.Errorf("unscoped: status = %d scope = %+v", rec.Code, gotScope)
	}

	rec = do(t, h, http.MethodGet, "/internal/appointments?role=ADMIN&userId="+doctorID.String(), nil, appointment.RoleService, uuid.New())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad role: status = %d", rec.Code)
	}
}

func TestScheduleFollowUp_UsesCallerAsDoctor(t *testing.T) {
	doctorID, apptID, patientID := uuid.New(), uuid.New(), uuid.New()
	var got followup.ScheduleRequest
	f := &mockFollowUps{
		scheduleFn: func(_ context.Context, req followup.ScheduleRequest) (*followup.Detail, error) {
			got = req
			return &followup.Detail{}, nil
		},
	}
	h := newTestRouter(t, nil, f)
	body := ScheduleFollowUpRequest{
		OriginalAppointmentID: apptID.String(),
		PatientID:             patientID.String(),
		RecommendedDate:       "2025-06-15",
		Reason:                "review bloods",
		UrgencyLevel:          3,
	}

	rec := do(t, h, http.MethodPost, "/api/v1/follow-ups", body, appointment.RoleDoctor, doctorID)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got.DoctorID != doctorID || got.OriginalAppointmentID != apptID || got.PatientID != patientID || got.UrgencyLevel != 3 {
		t.Errorf("schedule = %+v", got)
	}

	f.scheduleFn = func(context.Context, followup.ScheduleRequest) (*followup.Detail, error) {
		return nil, followup.ErrDuplicateFollowUp
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/follow-ups", body, appointment.RoleDoctor, doctorID); rec.Code != http.StatusConflict {
		t.Errorf("duplicate: status = %d", rec.Code)
	}

	body.Reason = ""
	if rec := do(t, h, http.MethodPost, "/api/v1/follow-ups", body, appointment.RoleDoctor, doctorID); rec.Code != http.StatusBadRequest {
		t.Errorf("missing reason: status = %d", rec.Code)
	}
}

func TestFollowUpRoutes(t *testing.T) {
	doctorID := uuid.New()
	var urgentLevel int
	var rescheduled followup.RescheduleRequest
	var change followup.StatusChange
	var summaryFor uuid.UUID
	f := &mockFollowUps{
		urgentFn: func(_ context.Context, id uuid.UUID, level int) ([]followup.Detail, error) {
			urgentLevel = level
			return []followup.Detail{}, nil
		},
		rescheduleFn: func(_ context.Context, req followup.RescheduleRequest) (*followup.Detail, error) {
			rescheduled = req
			return &followup.Detail{}, nil
		},
		updateFn: func(_ context.Context, _ appointment.Scope, ch followup.StatusChange) (*followup.Detail, error) {
			change = ch
			return &followup.Detail{}, nil
		},
		summaryFn: func(_ context.Context, _ appointment.Scope, patientID uuid.UUID) (*followup.Summary, error) {
			summaryFor = patientID
			return &followup.Summary{PatientID: patientID}, nil
		},
		overdueFn: func(context.Context) (int, error) { return 4, nil },
	}
	h := newTestRouter(t, nil, f)

	if rec := do(t, h, http.MethodGet, "/api/v1/follow-ups/urgent", nil, appointment.RoleDoctor, doctorID); rec.Code != http.StatusOK || urgentLevel != 4 {
		t.Errorf("urgent default: status = %d level = %d", rec.Code, urgentLevel)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/follow-ups/urgent?level=2", nil, appointment.RoleDoctor, doctorID); rec.Code != http.StatusOK || urgentLevel != 2 {
		t.Errorf("urgent level: status = %d level = %d", rec.Code, urgentLevel)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/follow-ups/urgent", nil, appointment.RolePatient, uuid.New()); rec.Code != http.StatusForbidden {
		t.Errorf("patient urgent: status = %d", rec.Code)
	}

	fuID := uuid.New()
	rec := do(t, h, http.MethodPost, "/api/v1/follow-ups/"+fuID.String()+"/reschedule",
		RescheduleFollowUpRequest{NewDate: "2025-07-01"}, appointment.RoleDoctor, doctorID)
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rescheduled.FollowUpID != fuID || rescheduled.DoctorID != doctorID || rescheduled.NewDate.Month() != time.July {
		t.Errorf("reschedule = %+v", rescheduled)
	}

	rec = do(t, h, http.MethodPatch, "/api/v1/follow-ups/"+fuID.String()+"/status",
		UpdateFollowUpStatusRequest{Status: "COMPLETED"}, appointment.RoleAdmin, uuid.New())
	if rec.Code != http.StatusOK || change.Status != followup.StatusCompleted || change.FollowUpID != fuID {
		t.Errorf("status change: code = %d change = %+v", rec.Code, change)
	}

	patientID := uuid.New()
	rec = do(t, h, http.MethodGet, "/api/v1/follow-ups/patient/"+patientID.String()+"/summary", nil, appointment.RolePatient, patientID)
	if rec.Code != http.StatusOK || summaryFor != patientID {
		t.Errorf("summary: code = %d patient = %s", rec.Code, summaryFor)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/follow-ups/overdue/process", nil, appointment.RoleService, uuid.New())
	if rec.Code != http.StatusOK {
		t.Fatalf("sweep status = %d", rec.Code)
	}
	var sweep SweepResponse
	if err := json.NewDecoder(rec.Body).Decode(&sweep); err != nil || sweep.Processed != 4 {
		t.Errorf("sweep = %+v err = %v", sweep, err)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	a := &mockAppointments{
		upcomingFn: func(_ context.Context, _ appointment.Scope, from *time.Time) ([]appointment.Detail, error) {
			if from != nil {
				t.Errorf("from = %v, want nil so the service picks today", from)
			}
			return nil, nil
		},
	}
	h := newTestRouter(t, a, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/upcoming", nil)
	req.Header.Set("X-Request-ID", "req-123")
	req.Header.Set(auth.HeaderUserID, uuid.NewString())
	req.Header.Set(auth.HeaderUserRole, "PATIENT")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q", got)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/appointments/upcoming", nil, appointment.RolePatient, uuid.New())
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}
}
