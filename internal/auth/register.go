package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/internal/users"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gigmarket-backend/pkg/security"
	"gorm.io/gorm"
)

// RegisterRequest contains the payload required to open a client or provider account.
type RegisterRequest struct {
	FirstName string         `json:"first_name" validate:"required,max=80"`
	LastName  string         `json:"last_name" validate:"required,max=80"`
	Email     string         `json:"email" validate:"required,email"`
	Password  string         `json:"password" validate:"required,min=8,max=128"`
	Role      enums.UserRole `json:"role" validate:"required,oneof=client provider"`
	AcceptTOS bool           `json:"accept_tos"`
}

// RegisterService handles the onboarding transaction.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type registerUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
}

type registerProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
}

func defaultUserRepoFactory(tx *gorm.DB) registerUserRepository {
	return users.NewRepository(tx)
}

func defaultProfileRepoFactory(tx *gorm.DB) registerProfileRepository {
	return profiles.NewRepository(tx)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	TxRunner           txRunner
	PasswordConfig     config.PasswordConfig
	Outbox             outboxEmitter
	UserRepoFactory    func(tx *gorm.DB) registerUserRepository
	ProfileRepoFactory func(tx *gorm.DB) registerProfileRepository
}

type registerService struct {
	tx             txRunner
	passwordCfg    config.PasswordConfig
	outbox         outboxEmitter
	userFactory    func(tx *gorm.DB) registerUserRepository
	profileFactory func(tx *gorm.DB) registerProfileRepository
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.UserRepoFactory == nil {
		params.UserRepoFactory = defaultUserRepoFactory
	}
	if params.ProfileRepoFactory == nil {
		params.ProfileRepoFactory = defaultProfileRepoFactory
	}
	return &registerService{
		tx:             params.TxRunner,
		passwordCfg:    params.PasswordConfig,
		outbox:         params.Outbox,
		userFactory:    params.UserRepoFactory,
		profileFactory: params.ProfileRepoFactory,
	}, nil
}

func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if req.Role != enums.UserRoleClient && req.Role != enums.UserRoleProvider {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be client or provider")
	}
	if !req.AcceptTOS {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "accept_tos must be true")
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
			firstName:    strings.TrimSpace(req.FirstName),
			lastName:     strings.TrimSpace(req.LastName),
			role:         req.Role,
		})
		if err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserRegistered,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID, Role: string(user.Role)},
			Data: payloads.UserRegisteredEvent{
				UserID:    user.ID,
				Email:     user.Email,
				FirstName: strings.TrimSpace(req.FirstName),
				Role:      user.Role,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit user registered")
		}

		created = users.FromModel(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

type accountInput struct {
	email        string
	passwordHash string
	firstName    string
	lastName     string
	role         enums.UserRole
}

// createAccount writes the user and its profile; both share the same ID.
func createAccount(ctx context.Context, userRepo registerUserRepository, profileRepo registerProfileRepository, in accountInput) (*models.User, error) {
	if _, err := userRepo.FindByEmail(ctx, in.email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
	}

	user, err := userRepo.Create(ctx, users.CreateUserDTO{
		Email:        in.email,
		PasswordHash: in.passwordHash,
		Role:         in.role,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}

	profile := &models.Profile{
		ID:          user.ID,
		Role:        in.role,
		FirstName:   in.firstName,
		LastName:    in.lastName,
		DisplayName: strings.TrimSpace(in.firstName + " " + initial(in.lastName)),
		Email:       in.email,
		Plan:        enums.PlanTierFree,
		Skills:      []string{},
		CategoryIDs: []string{},
	}
	if err := profileRepo.Create(ctx, profile); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create profile")
	}
	return user, nil
}

func initial(lastName string) string {
	trimmed := strings.TrimSpace(lastName)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(string([]rune(trimmed)[0])) + "."
}
