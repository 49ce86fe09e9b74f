package categories

import (
	"github.com/lib/pq"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

type seedCategory struct {
	slug     string
	name     string
	icon     string
	keywords []string
}

var defaultCatalog = []seedCategory{
	{"plumbing", "Plumbing", "wrench", []string{"plumber", "leak", "pipe", "drain", "faucet", "toilet", "water heater", "clog"}},
	{"electrical", "Electrical", "bolt", []string{"electrician", "wiring", "outlet", "breaker", "light fixture", "socket", "power"}},
	{"cleaning", "Cleaning", "sparkles", []string{"clean", "cleaning", "maid", "housekeeping", "deep clean", "carpet", "windows"}},
	{"moving", "Moving & Hauling", "truck", []string{"move", "moving", "movers", "haul", "furniture", "boxes", "junk removal"}},
	{"handyman", "Handyman", "hammer", []string{"repair", "fix", "assemble", "mount", "tv mount", "shelves", "door"}},
	{"landscaping", "Landscaping", "leaf", []string{"lawn", "garden", "mow", "yard", "hedge", "tree", "landscaping"}},
	{"painting", "Painting", "brush", []string{"paint", "painter", "painting", "wall", "drywall", "ceiling"}},
	{"hvac", "Heating & Cooling", "fan", []string{"hvac", "air conditioning", "ac", "furnace", "heating", "thermostat"}},
	{"locksmith", "Locksmith", "key", []string{"lock", "locked out", "key", "locksmith", "deadbolt"}},
	{"auto-repair", "Auto Repair", "car", []string{"car", "auto", "mechanic", "tire", "battery", "brakes", "jump start", "tow"}},
	{"tutoring", "Tutoring", "book", []string{"tutor", "lesson", "homework", "math", "english", "exam"}},
	{"pet-care", "Pet Care", "paw", []string{"dog", "cat", "pet", "walk", "sitter", "grooming"}},
}

// DefaultCategories is the starter catalog loaded by gigctl seed-categories.
func DefaultCategories() []models.Category {
	out := make([]models.Category, 0, len(defaultCatalog))
	for i, seed := range defaultCatalog {
		icon := seed.icon
		out = append(out, models.Category{
			Slug:      seed.slug,
			Name:      seed.name,
			Icon:      &icon,
			Keywords:  pq.StringArray(normalizeKeywords(seed.keywords)),
			IsActive:  true,
			SortOrder: (i + 1) * 10,
		})
	}
	return out
}
