package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

func strPtr(v string) *string { return &v }

func TestCompletionEmptyClient(t *testing.T) {
	got := CompletionService{}.Compute(&models.Profile{Role: enums.UserRoleClient})
	assert.Equal(t, 0, got.Percent)
	assert.Equal(t, []string{"display_name", "avatar", "bio", "phone", "location"}, got.Missing)
}

func TestCompletionFullClient(t *testing.T) {
	got := CompletionService{}.Compute(&models.Profile{
		Role:        enums.UserRoleClient,
		DisplayName: "Dana",
		AvatarURL:   strPtr("https://cdn.example.com/a.png"),
		Bio:         strPtr("homeowner"),
		Phone:       strPtr("+15550100"),
		City:        strPtr("Austin"),
	})
	assert.Equal(t, 100, got.Percent)
	assert.Empty(t, got.Missing)
}

func TestCompletionProviderWeights(t *testing.T) {
	rate := int64(4500)
	got := CompletionService{}.Compute(&models.Profile{
		Role:            enums.UserRoleProvider,
		DisplayName:     "Sam",
		Bio:             strPtr("licensed plumber"),
		Skills:          []string{"plumbing"},
		HourlyRateCents: &rate,
		IsVerified:      true,
	})
	// bio 15 + skills 15 + hourly_rate 10 + verified 15
	assert.Equal(t, 55, got.Percent)
	assert.Equal(t, []string{"avatar", "phone", "location", "payouts"}, got.Missing)
}

func TestCompletionIgnoresBlankText(t *testing.T) {
	got := CompletionService{}.Compute(&models.Profile{
		Role:        enums.UserRoleClient,
		DisplayName: "Dana",
		Bio:         strPtr("   "),
	})
	assert.Contains(t, got.Missing, "bio")
}

func TestCompletionNilProfile(t *testing.T) {
	got := CompletionService{}.Compute(nil)
	assert.Equal(t, 0, got.Percent)
	assert.NotNil(t, got.Missing)
}
