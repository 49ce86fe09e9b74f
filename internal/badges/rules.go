package badges

import (
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

const (
	topRatedMinAverage    = 4.8
	topRatedMinReviews    = 5
	veteranMinGigs        = 25
	firstResponderMinJobs = 5
)

// Definition is the public description of a badge.
type Definition struct {
	Code        enums.BadgeCode `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
}

var catalog = map[enums.BadgeCode]Definition{
	enums.BadgeVerified:       {enums.BadgeVerified, "Verified", "Identity or licence document approved"},
	enums.BadgeTopRated:       {enums.BadgeTopRated, "Top rated", "Average rating of 4.8 or more across at least 5 reviews"},
	enums.BadgeFirstGig:       {enums.BadgeFirstGig, "First gig", "Completed a first gig"},
	enums.BadgeVeteran:        {enums.BadgeVeteran, "Veteran", "Completed 25 gigs"},
	enums.BadgeFirstResponder: {enums.BadgeFirstResponder, "First responder", "Completed 5 emergency requests"},
}

// Describe returns the catalog entry for code.
func Describe(code enums.BadgeCode) Definition {
	if def, ok := catalog[code]; ok {
		return def
	}
	return Definition{Code: code, Name: string(code)}
}

// Eligible lists every badge the profile currently qualifies for.
func Eligible(profile models.Profile) []enums.BadgeCode {
	var out []enums.BadgeCode
	if profile.IsVerified {
		out = append(out, enums.BadgeVerified)
	}
	if profile.RatingCount >= topRatedMinReviews && profile.RatingAvg >= topRatedMinAverage {
		out = append(out, enums.BadgeTopRated)
	}
	if profile.CompletedGigs >= 1 {
		out = append(out, enums.BadgeFirstGig)
	}
	if profile.CompletedGigs >= veteranMinGigs {
		out = append(out, enums.BadgeVeteran)
	}
	if profile.CompletedEmergencies >= firstResponderMinJobs {
		out = append(out, enums.BadgeFirstResponder)
	}
	return out
}
