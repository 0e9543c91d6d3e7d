package messaging

import "context"

// Topics consumed by the notification renderer.
const (
	TopicAppointmentRequest          = "appointment-request"
	TopicAppointmentUpdateStatus     = "appointment-update-status"
	TopicEmergencyAppointmentRequest = "emergency-appointment-request"
	TopicFollowUpSchedule            = "follow-up-schedule"
	TopicFollowUpUpdateStatus        = "follow-up-update-status"
)

// Publisher puts a message on a topic. key is the partition key: messages
// sharing a key are delivered in publish order.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
	Close() error
}

var _ Publisher = (*RabbitPublisher)(nil)
