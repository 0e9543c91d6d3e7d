package appointment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/pagination"
	"github.com/hackgods/clinic-appointments/internal/profile"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Blocking reports whether an appointment in this status holds its slot.
func (s Status) Blocking() bool {
	return s == StatusPending || s == StatusApproved
}

type Type string

const (
	TypeRegular   Type = "REGULAR"
	TypeEmergency Type = "EMERGENCY"
)

const (
	MaxSymptoms = 10
	MinPriority = 1
	MaxPriority = 5

	// EmergencyWindow is the length of a triaged emergency visit.
	EmergencyWindow = 30 * time.Minute
)

// TimeOfDay is minutes since midnight. 24:00 (1440) is a valid end time.
type TimeOfDay int

const EndOfDay TimeOfDay = 24 * 60

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil || len(s) != 5 {
		return 0, fmt.Errorf("time %q must be HH:MM", s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// ClockOf returns the wall-clock minute of t.
func ClockOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const DateLayout = "2006-01-02"

type Appointment struct {
	ID                 uuid.UUID `json:"id"`
	DoctorID           uuid.UUID `json:"doctor_id"`
	PatientID          uuid.UUID `json:"patient_id"`
	Date               time.Time `json:"appointment_date"`
	StartTime          TimeOfDay `json:"start_time"`
	EndTime            TimeOfDay `json:"end_time"`
	Status             Status    `json:"status"`
	Type               Type      `json:"type"`
	Reason             string    `json:"reason"`
	Symptoms           []string  `json:"symptoms"`
	Notes              string    `json:"notes"`
	DoctorNotes        string    `json:"doctor_notes"`
	Priority           int       `json:"priority"`
	MeetingLink        *string   `json:"meeting_link,omitempty"`
	IsVirtual          bool      `json:"is_virtual"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Detail is an appointment enriched with live profile data.
type Detail struct {
	Appointment
	Doctor  *profile.Doctor  `json:"doctor"`
	Patient *profile.Patient `json:"patient"`
}

type DetailPage struct {
	Items []Detail        `json:"items"`
	Meta  pagination.Meta `json:"meta"`
}

// Role identifies the caller class for scoped reads.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
	RoleService Role = "SERVICE"
)

// Scope restricts reads to what the caller may see. Admin and service
// scopes are unrestricted.
type Scope struct {
	Role   Role
	UserID uuid.UUID
}

func (s Scope) Owns(a *Appointment) bool {
	switch s.Role {
	case RolePatient:
		return a.PatientID == s.UserID
	case RoleDoctor:
		return a.DoctorID == s.UserID
	case RoleAdmin, RoleService:
		return true
	}
	return false
}

// BookingRequest is a patient's request for a regular visit.
type BookingRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	StartTime TimeOfDay
	EndTime   TimeOfDay
	Type      Type
	Reason    string
	Symptoms  []string
	Priority  int
	IsVirtual bool
}

// EmergencyRequest asks triage to assign a doctor immediately.
type EmergencyRequest struct {
	PatientID               uuid.UUID
	Symptoms                []string
	Description             string
	PreferredSpecialization string
	Priority                int
}

// StatusUpdate is a doctor-initiated change. Nil pointers leave the
// stored value untouched.
type StatusUpdate struct {
	AppointmentID      uuid.UUID
	DoctorID           uuid.UUID
	Status             Status
	Notes              *string
	DoctorNotes        *string
	CancellationReason *string
}

// ListFilter narrows list reads. Zero values mean "any".
type ListFilter struct {
	Status Status
	Date   *time.Time
	Page   pagination.Params
}
