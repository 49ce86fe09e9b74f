package enums

import "slices"

// UserStatus maps to the user_status enum in Postgres.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

var validUserStatuses = []UserStatus{
	UserStatusActive,
	UserStatusSuspended,
}

// IsValid reports whether the value is a known UserStatus.
func (u UserStatus) IsValid() bool {
	return slices.Contains(validUserStatuses, u)
}

// ParseUserStatus converts raw input into a UserStatus.
func ParseUserStatus(value string) (UserStatus, error) {
	return parse("user status", value, validUserStatuses)
}
