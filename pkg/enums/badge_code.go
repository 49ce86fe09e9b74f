package enums

import "slices"

// BadgeCode identifies an earned profile badge.
type BadgeCode string

const (
	BadgeVerified       BadgeCode = "verified"
	BadgeTopRated       BadgeCode = "top_rated"
	BadgeFirstGig       BadgeCode = "first_gig"
	BadgeVeteran        BadgeCode = "veteran"
	BadgeFirstResponder BadgeCode = "first_responder"
)

var validBadgeCodes = []BadgeCode{
	BadgeVerified,
	BadgeTopRated,
	BadgeFirstGig,
	BadgeVeteran,
	BadgeFirstResponder,
}

// IsValid reports whether the value is a known BadgeCode.
func (b BadgeCode) IsValid() bool {
	return slices.Contains(validBadgeCodes, b)
}

// ParseBadgeCode converts raw input into a BadgeCode.
func ParseBadgeCode(value string) (BadgeCode, error) {
	return parse("badge code", value, validBadgeCodes)
}
