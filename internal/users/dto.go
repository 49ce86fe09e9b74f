package users

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// UserDTO is a user as admins and the owner see it. The password hash never
// leaves this package.
type UserDTO struct {
	ID          uuid.UUID        `json:"id"`
	Email       string           `json:"email"`
	Role        enums.UserRole   `json:"role"`
	Status      enums.UserStatus `json:"status"`
	Suspended   bool             `json:"suspended"`
	LastLoginAt *time.Time       `json:"last_login_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		Status:      u.Status,
		Suspended:   u.Status == enums.UserStatusSuspended,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// CreateUserDTO is what registration hands the repository. Email is stored
// trimmed and lower-cased; new accounts start active.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	Role         enums.UserRole
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		Email:        NormalizeEmail(c.Email),
		PasswordHash: c.PasswordHash,
		Role:         c.Role,
		Status:       enums.UserStatusActive,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	errBadRoleFilter   = errors.New("invalid role filter")
	errBadStatusFilter = errors.New("invalid status filter")
)

// ListFilter narrows the admin user search. Query is a case-insensitive
// substring of the email.
type ListFilter struct {
	Role   enums.UserRole
	Status enums.UserStatus
	Query  string
	Limit  int
	Cursor string
}

func (f ListFilter) Validate() error {
	switch {
	case f.Role != "" && !f.Role.IsValid():
		return errBadRoleFilter
	case f.Status != "" && !f.Status.IsValid():
		return errBadStatusFilter
	}
	_, err := pagination.ParseCursor(f.Cursor)
	return err
}

// likePattern escapes LIKE metacharacters in term so it only ever matches
// literally.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}
