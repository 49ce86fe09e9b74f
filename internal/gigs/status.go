package gigs

import "github.com/angelmondragon/gigmarket-backend/pkg/enums"

var gigTransitions = map[enums.GigStatus][]enums.GigStatus{
	enums.GigStatusPending:    {enums.GigStatusOpen, enums.GigStatusRejected, enums.GigStatusCancelled},
	enums.GigStatusOpen:       {enums.GigStatusInProgress, enums.GigStatusCancelled},
	enums.GigStatusInProgress: {enums.GigStatusCompleted},
}

// CanTransition reports whether a gig may move from one status to another.
func CanTransition(from, to enums.GigStatus) bool {
	for _, next := range gigTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// sourcesFor lists every status that may legally move to target.
func sourcesFor(target enums.GigStatus) []enums.GigStatus {
	var out []enums.GigStatus
	for from, nexts := range gigTransitions {
		for _, next := range nexts {
			if next == target {
				out = append(out, from)
			}
		}
	}
	return out
}

// IsEditable reports whether the owner may still change or cancel the gig.
func IsEditable(status enums.GigStatus) bool {
	return status == enums.GigStatusPending || status == enums.GigStatusOpen
}
