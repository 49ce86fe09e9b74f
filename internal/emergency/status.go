package emergency

import "github.com/angelmondragon/gigmarket-backend/pkg/enums"

var transitions = map[enums.EmergencyStatus][]enums.EmergencyStatus{
	enums.EmergencyStatusSearching: {enums.EmergencyStatusAccepted, enums.EmergencyStatusCancelled, enums.EmergencyStatusExpired},
	enums.EmergencyStatusAccepted:  {enums.EmergencyStatusEnRoute, enums.EmergencyStatusArrived, enums.EmergencyStatusCancelled},
	enums.EmergencyStatusEnRoute:   {enums.EmergencyStatusArrived, enums.EmergencyStatusCancelled},
	enums.EmergencyStatusArrived:   {enums.EmergencyStatusCompleted, enums.EmergencyStatusCancelled},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to enums.EmergencyStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func sourcesFor(target enums.EmergencyStatus) []enums.EmergencyStatus {
	var out []enums.EmergencyStatus
	for from, nexts := range transitions {
		for _, next := range nexts {
			if next == target {
				out = append(out, from)
			}
		}
	}
	return out
}

// isActive reports whether a provider is assigned and the job is not finished.
func isActive(status enums.EmergencyStatus) bool {
	switch status {
	case enums.EmergencyStatusAccepted, enums.EmergencyStatusEnRoute, enums.EmergencyStatusArrived:
		return true
	}
	return false
}
