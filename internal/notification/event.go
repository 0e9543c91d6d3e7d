package notification

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAppointmentRequested          EventType = "APPOINTMENT_REQUESTED"
	EventAppointmentStatusUpdated      EventType = "APPOINTMENT_STATUS_UPDATED"
	EventAppointmentCancelled          EventType = "APPOINTMENT_CANCELLED"
	EventEmergencyAppointmentAssigned  EventType = "EMERGENCY_APPOINTMENT_ASSIGNED"
	EventEmergencyAppointmentConfirmed EventType = "EMERGENCY_APPOINTMENT_CONFIRMED"
	EventFollowUpScheduled             EventType = "FOLLOW_UP_SCHEDULED"
	EventFollowUpStatusUpdated         EventType = "FOLLOW_UP_STATUS_UPDATED"
	EventFollowUpOverdue               EventType = "FOLLOW_UP_OVERDUE"
	EventFollowUpRescheduled           EventType = "FOLLOW_UP_RESCHEDULED"
)

type RecipientRole string

const (
	RecipientDoctor  RecipientRole = "DOCTOR"
	RecipientPatient RecipientRole = "PATIENT"
)

// Event is the envelope put on the bus. Rendering and sending happen in
// a downstream consumer.
type Event struct {
	EventID        string         `json:"event_id"`
	Type           EventType      `json:"type"`
	RecipientID    uuid.UUID      `json:"recipient_id"`
	RecipientRole  RecipientRole  `json:"recipient_role"`
	RecipientEmail string         `json:"recipient_email"`
	RecipientName  string         `json:"recipient_name"`
	Subject        string         `json:"subject"`
	Payload        map[string]any `json:"payload"`
	Timestamp      time.Time      `json:"timestamp"`
	ServiceName    string         `json:"service_name"`
}

// Notification is what a lifecycle service asks the dispatcher to send.
type Notification struct {
	Type          EventType
	Topic         string
	RecipientID   uuid.UUID
	RecipientRole RecipientRole
	Subject       string
	Payload       map[string]any
}

// Delivery selects the reliability tier of a dispatch.
type Delivery int

const (
	// BestEffort logs publish failures and reports success to the caller.
	BestEffort Delivery = iota
	// MustDeliver returns publish failures to the caller.
	MustDeliver
)

func (d Delivery) String() string {
	if d == MustDeliver {
		return "must_deliver"
	}
	return "best_effort"
}
