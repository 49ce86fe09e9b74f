package enums

import "slices"

// EmergencyStatus tracks an emergency request from dispatch to completion.
type EmergencyStatus string

const (
	EmergencyStatusSearching EmergencyStatus = "searching"
	EmergencyStatusAccepted  EmergencyStatus = "accepted"
	EmergencyStatusEnRoute   EmergencyStatus = "en_route"
	EmergencyStatusArrived   EmergencyStatus = "arrived"
	EmergencyStatusCompleted EmergencyStatus = "completed"
	EmergencyStatusCancelled EmergencyStatus = "cancelled"
	EmergencyStatusExpired   EmergencyStatus = "expired"
)

var validEmergencyStatuses = []EmergencyStatus{
	EmergencyStatusSearching,
	EmergencyStatusAccepted,
	EmergencyStatusEnRoute,
	EmergencyStatusArrived,
	EmergencyStatusCompleted,
	EmergencyStatusCancelled,
	EmergencyStatusExpired,
}

// IsValid reports whether the value is a known EmergencyStatus.
func (e EmergencyStatus) IsValid() bool {
	return slices.Contains(validEmergencyStatuses, e)
}

// ParseEmergencyStatus converts raw input into a EmergencyStatus.
func ParseEmergencyStatus(value string) (EmergencyStatus, error) {
	return parse("emergency status", value, validEmergencyStatuses)
}

// IsTerminal reports whether no further transitions are possible.
func (e EmergencyStatus) IsTerminal() bool {
	switch e {
	case EmergencyStatusCompleted,
		EmergencyStatusCancelled,
		EmergencyStatusExpired:
		return true
	}
	return false
}
