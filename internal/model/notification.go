package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeEventApproval     NotificationType = "event_approval"
	NotificationTypeEventRegistration NotificationType = "event_registration"
	NotificationTypeEventUpdate       NotificationType = "event_update"
	NotificationTypeEventReminder     NotificationType = "event_reminder"
	NotificationTypeClubInvitation    NotificationType = "club_invitation"
	NotificationTypeClubApproval      NotificationType = "club_approval"
	NotificationTypeResourceBooking   NotificationType = "resource_booking"
	NotificationTypeBookingApproval   NotificationType = "booking_approval"
	NotificationTypeBookingReminder   NotificationType = "booking_reminder"
	NotificationTypeMessage           NotificationType = "message"
	NotificationTypeAnnouncement      NotificationType = "announcement"
	NotificationTypeSystem            NotificationType = "system"
	NotificationTypeOther             NotificationType = "other"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// Notification is one entry of the server-owned notification feed. The
// client never fabricates one; every record originates from a pull
// response or a push event.
type Notification struct {
	ID               uuid.UUID            `json:"id" validate:"required"`
	NotificationType NotificationType     `json:"notification_type"`
	Priority         NotificationPriority `json:"priority,omitempty"`
	Title            string               `json:"title"`
	Message          string               `json:"message"`
	Data             map[string]any       `json:"data,omitempty"`
	IsRead           bool                 `json:"is_read"`
	ReadAt           *time.Time           `json:"read_at,omitempty"`
	ExpiresAt        *time.Time           `json:"expires_at,omitempty"`
	CreatedAt        time.Time            `json:"created_at" validate:"required"`
}

// Validate checks the fields the store depends on. Presentation fields
// are left loose; the server owns them. An unknown or missing type
// falls back to "other" rather than failing.
func (n *Notification) Validate() error {
	if n.NotificationType == "" {
		n.NotificationType = NotificationTypeOther
	}
	return validateStruct("notification", n)
}
