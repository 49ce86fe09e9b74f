package enums

import "slices"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeMessage   NotificationType = "message"
	NotificationTypeProposal  NotificationType = "proposal"
	NotificationTypeGig       NotificationType = "gig"
	NotificationTypePayment   NotificationType = "payment"
	NotificationTypeReview    NotificationType = "review"
	NotificationTypeBadge     NotificationType = "badge"
	NotificationTypeEmergency NotificationType = "emergency"
	NotificationTypeDocument  NotificationType = "document"
	NotificationTypeSystem    NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeMessage,
	NotificationTypeProposal,
	NotificationTypeGig,
	NotificationTypePayment,
	NotificationTypeReview,
	NotificationTypeBadge,
	NotificationTypeEmergency,
	NotificationTypeDocument,
	NotificationTypeSystem,
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	return slices.Contains(validNotificationTypes, n)
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse("notification type", value, validNotificationTypes)
}
