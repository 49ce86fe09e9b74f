package profiles

import (
	"strings"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

// Completion is the weighted checklist result for a profile.
type Completion struct {
	Percent int      `json:"percent"`
	Missing []string `json:"missing"`
}

type completionItem struct {
	key    string
	weight int
	done   func(p *models.Profile) bool
}

var clientChecklist = []completionItem{
	{key: "display_name", weight: 15, done: func(p *models.Profile) bool { return strings.TrimSpace(p.DisplayName) != "" }},
	{key: "avatar", weight: 20, done: func(p *models.Profile) bool { return hasText(p.AvatarURL) }},
	{key: "bio", weight: 20, done: func(p *models.Profile) bool { return hasText(p.Bio) }},
	{key: "phone", weight: 20, done: func(p *models.Profile) bool { return hasText(p.Phone) }},
	{key: "location", weight: 25, done: hasLocation},
}

var providerChecklist = []completionItem{
	{key: "avatar", weight: 15, done: func(p *models.Profile) bool { return hasText(p.AvatarURL) }},
	{key: "bio", weight: 15, done: func(p *models.Profile) bool { return hasText(p.Bio) }},
	{key: "phone", weight: 10, done: func(p *models.Profile) bool { return hasText(p.Phone) }},
	{key: "location", weight: 10, done: hasLocation},
	{key: "skills", weight: 15, done: func(p *models.Profile) bool { return len(p.Skills) > 0 }},
	{key: "hourly_rate", weight: 10, done: func(p *models.Profile) bool { return p.HourlyRateCents != nil && *p.HourlyRateCents > 0 }},
	{key: "verified_documents", weight: 15, done: func(p *models.Profile) bool { return p.IsVerified }},
	{key: "payouts", weight: 10, done: func(p *models.Profile) bool { return p.PayoutsEnabled }},
}

// CompletionService scores how complete a profile is.
type CompletionService struct{}

// Compute walks the role's checklist and returns the percent plus missing items in checklist order.
func (CompletionService) Compute(p *models.Profile) Completion {
	result := Completion{Missing: []string{}}
	if p == nil {
		return result
	}
	checklist := clientChecklist
	if p.IsProvider() {
		checklist = providerChecklist
	}

	total := 0
	earned := 0
	for _, item := range checklist {
		total += item.weight
		if item.done(p) {
			earned += item.weight
			continue
		}
		result.Missing = append(result.Missing, item.key)
	}
	if total > 0 {
		result.Percent = earned * 100 / total
	}
	return result
}

func hasText(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}

func hasLocation(p *models.Profile) bool {
	if hasText(p.City) {
		return true
	}
	return p.Lat != nil && p.Lng != nil
}
