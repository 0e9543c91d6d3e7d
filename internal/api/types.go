package api

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/followup"
)

type BookAppointmentRequest struct {
	DoctorID        string   `json:"doctor_id" validate:"required,uuid"`
	AppointmentDate string   `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	StartTime       string   `json:"start_time" validate:"required,clock"`
	EndTime         string   `json:"end_time" validate:"required,clock"`
	Type            string   `json:"type" validate:"omitempty,oneof=REGULAR"`
	Reason          string   `json:"reason" validate:"max=500"`
	Symptoms        []string `json:"symptoms" validate:"max=10,dive,required,max=200"`
	Priority        int      `json:"priority" validate:"omitempty,min=1,max=5"`
	IsVirtual       bool     `json:"is_virtual"`
}

func (r BookAppointmentRequest) toDomain(patientID uuid.UUID) appointment.BookingRequest {
	date, _ := time.Parse(appointment.DateLayout, r.AppointmentDate)
	start, _ := appointment.ParseTimeOfDay(r.StartTime)
	end, _ := appointment.ParseTimeOfDay(r.EndTime)
	return appointment.BookingRequest{
		PatientID: patientID,
		DoctorID:  uuid.MustParse(r.DoctorID),
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Type:      appointment.Type(r.Type),
		Reason:    r.Reason,
		Symptoms:  r.Symptoms,
		Priority:  r.Priority,
		IsVirtual: r.IsVirtual,
	}
}

type EmergencyAppointmentRequest struct {
	Symptoms                []string `json:"symptoms" validate:"required,min=1,max=10,dive,required,max=200"`
	Description             string   `json:"description" validate:"max=1000"`
	PreferredSpecialization string   `json:"preferred_specialization" validate:"max=100"`
	Priority                int      `json:"priority" validate:"omitempty,min=1,max=5"`
}

func (r EmergencyAppointmentRequest) toDomain(patientID uuid.UUID) appointment.EmergencyRequest {
	return appointment.EmergencyRequest{
		PatientID:               patientID,
		Symptoms:                r.Symptoms,
		Description:             r.Description,
		PreferredSpecialization: r.PreferredSpecialization,
		Priority:                r.Priority,
	}
}

type UpdateAppointmentStatusRequest struct {
	Status             string  `json:"status" validate:"required,oneof=PENDING APPROVED IN_PROGRESS COMPLETED CANCELLED"`
	Notes              *string `json:"notes" validate:"omitempty,max=2000"`
	DoctorNotes        *string `json:"doctor_notes" validate:"omitempty,max=2000"`
	CancellationReason *string `json:"cancellation_reason" validate:"omitempty,max=500"`
}

type ScheduleFollowUpRequest struct {
	OriginalAppointmentID string `json:"original_appointment_id" validate:"required,uuid"`
	PatientID             string `json:"patient_id" validate:"required,uuid"`
	RecommendedDate       string `json:"recommended_date" validate:"required,datetime=2006-01-02"`
	Reason                string `json:"reason" validate:"required,max=500"`
	Notes                 string `json:"notes" validate:"max=2000"`
	UrgencyLevel          int    `json:"urgency_level" validate:"omitempty,min=1,max=5"`
}

func (r ScheduleFollowUpRequest) toDomain(doctorID uuid.UUID) followup.ScheduleRequest {
	date, _ := time.Parse(appointment.DateLayout, r.RecommendedDate)
	return followup.ScheduleRequest{
		OriginalAppointmentID: uuid.MustParse(r.OriginalAppointmentID),
		DoctorID:              doctorID,
		PatientID:             uuid.MustParse(r.PatientID),
		RecommendedDate:       date,
		Reason:                r.Reason,
		Notes:                 r.Notes,
		UrgencyLevel:          r.UrgencyLevel,
	}
}

type UpdateFollowUpStatusRequest struct {
	Status             string  `json:"status" validate:"required,oneof=PENDING COMPLETED CANCELLED OVERDUE"`
	Notes              *string `json:"notes" validate:"omitempty,max=2000"`
	CancellationReason *string `json:"cancellation_reason" validate:"omitempty,max=500"`
}

type RescheduleFollowUpRequest struct {
	NewDate string  `json:"new_date" validate:"required,datetime=2006-01-02"`
	Notes   *string `json:"notes" validate:"omitempty,max=2000"`
}

type SweepResponse struct {
	Processed int `json:"processed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// NewValidator returns a validator with the clinic's custom tags registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := appointment.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
