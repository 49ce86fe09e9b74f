package enums

import "slices"

// GigStatus tracks a gig through moderation and delivery.
type GigStatus string

const (
	GigStatusPending    GigStatus = "pending"
	GigStatusOpen       GigStatus = "open"
	GigStatusRejected   GigStatus = "rejected"
	GigStatusInProgress GigStatus = "in_progress"
	GigStatusCompleted  GigStatus = "completed"
	GigStatusCancelled  GigStatus = "cancelled"
)

var validGigStatuses = []GigStatus{
	GigStatusPending,
	GigStatusOpen,
	GigStatusRejected,
	GigStatusInProgress,
	GigStatusCompleted,
	GigStatusCancelled,
}

// IsValid reports whether the value is a known GigStatus.
func (g GigStatus) IsValid() bool {
	return slices.Contains(validGigStatuses, g)
}

// ParseGigStatus converts raw input into a GigStatus.
func ParseGigStatus(value string) (GigStatus, error) {
	return parse("gig status", value, validGigStatuses)
}
