package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/gigmarket-backend/internal/users"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/security"
	"gorm.io/gorm"
)

// AdminRegisterRequest contains the credentials for the operator-only admin creation flow.
type AdminRegisterRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=12"`
}

// AdminRegisterService creates admin accounts. It is only reachable from gigctl.
type AdminRegisterService interface {
	Register(ctx context.Context, req AdminRegisterRequest) (*users.UserDTO, error)
}

// AdminRegisterServiceParams names the dependencies for the admin register flow.
type AdminRegisterServiceParams struct {
	TxRunner           txRunner
	PasswordConfig     config.PasswordConfig
	UserRepoFactory    func(tx *gorm.DB) registerUserRepository
	ProfileRepoFactory func(tx *gorm.DB) registerProfileRepository
}

type adminRegisterService struct {
	tx             txRunner
	passwordCfg    config.PasswordConfig
	userFactory    func(tx *gorm.DB) registerUserRepository
	profileFactory func(tx *gorm.DB) registerProfileRepository
}

// NewAdminRegisterService builds the admin registration service.
func NewAdminRegisterService(params AdminRegisterServiceParams) (AdminRegisterService, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.UserRepoFactory == nil {
		params.UserRepoFactory = defaultUserRepoFactory
	}
	if params.ProfileRepoFactory == nil {
		params.ProfileRepoFactory = defaultProfileRepoFactory
	}
	return &adminRegisterService{
		tx:             params.TxRunner,
		passwordCfg:    params.PasswordConfig,
		userFactory:    params.UserRepoFactory,
		profileFactory: params.ProfileRepoFactory,
	}, nil
}

func (s *adminRegisterService) Register(ctx context.Context, req AdminRegisterRequest) (*users.UserDTO, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	firstName := strings.TrimSpace(req.FirstName)
	if firstName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "first_name is required")
	}
	if len(req.Password) < 12 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin passwords need at least 12 characters")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *users.UserDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := createAccount(ctx, s.userFactory(tx), s.profileFactory(tx), accountInput{
			email:        email,
			passwordHash: passwordHash,
			firstName:    firstName,
			lastName:     strings.TrimSpace(req.LastName),
			role:         enums.UserRoleAdmin,
		})
		if err != nil {
			return err
		}
		created = users.FromModel(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
