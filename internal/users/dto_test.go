package users

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

func TestCreateUserDTONormalizesEmail(t *testing.T) {
	m := CreateUserDTO{Email: "  Ada@Example.COM ", PasswordHash: "h", Role: enums.UserRoleProvider}.ToModel()
	assert.Equal(t, "ada@example.com", m.Email)
	assert.Equal(t, enums.UserStatusActive, m.Status)
}

func TestFromModelFlagsSuspension(t *testing.T) {
	assert.Nil(t, FromModel(nil))
	dto := FromModel(&models.User{Email: "a@b.co", Status: enums.UserStatusSuspended, PasswordHash: "secret"})
	assert.True(t, dto.Suspended)
	assert.False(t, FromModel(&models.User{Status: enums.UserStatusActive}).Suspended)
}

func TestListFilterValidate(t *testing.T) {
	assert.NoError(t, ListFilter{}.Validate())
	assert.NoError(t, ListFilter{Role: enums.UserRoleAdmin, Status: enums.UserStatusActive}.Validate())
	assert.ErrorIs(t, ListFilter{Role: "root"}.Validate(), errBadRoleFilter)
	assert.ErrorIs(t, ListFilter{Status: "banned"}.Validate(), errBadStatusFilter)
	assert.Error(t, ListFilter{Cursor: "%%%"}.Validate())
}

func TestLikePatternEscapes(t *testing.T) {
	assert.Equal(t, `%ada%`, likePattern("ada"))
	assert.Equal(t, `%100\%\_off\\%`, likePattern(`100%_off\`))
}
