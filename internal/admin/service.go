package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/users"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// Service is the admin user-moderation surface.
type Service interface {
	ListUsers(ctx context.Context, filter users.ListFilter) (pagination.Page[users.UserDTO], error)
	Suspend(ctx context.Context, adminID, userID uuid.UUID) (*users.UserDTO, error)
	Reactivate(ctx context.Context, adminID, userID uuid.UUID) (*users.UserDTO, error)
}

type userStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, filter users.ListFilter) ([]models.User, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.UserStatus) error
}

type sessionRevoker interface {
	RevokeAll(ctx context.Context, userID uuid.UUID) error
}

type ServiceParams struct {
	Users    userStore
	Sessions sessionRevoker
	Logger   *logger.Logger
}

type service struct {
	users    userStore
	sessions sessionRevoker
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Users == nil:
		return nil, fmt.Errorf("users repository is required")
	case params.Sessions == nil:
		return nil, fmt.Errorf("session revoker is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	return &service{users: params.Users, sessions: params.Sessions, logg: params.Logger}, nil
}

func (s *service) ListUsers(ctx context.Context, filter users.ListFilter) (pagination.Page[users.UserDTO], error) {
	if err := filter.Validate(); err != nil {
		return pagination.Page[users.UserDTO]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user filter")
	}
	rows, err := s.users.List(ctx, filter)
	if err != nil {
		return pagination.Page[users.UserDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	dtos := make([]users.UserDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *users.FromModel(&rows[i]))
	}
	return pagination.BuildPage(dtos, filter.Limit, func(u users.UserDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
	}), nil
}

// Suspend blocks future logins and revokes every live session. Admin accounts
// are managed through the CLI and cannot be suspended here.
func (s *service) Suspend(ctx context.Context, adminID, userID uuid.UUID) (*users.UserDTO, error) {
	if adminID == userID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admins cannot suspend themselves")
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin accounts cannot be suspended")
	}
	if user.Status != enums.UserStatusSuspended {
		if err := s.users.UpdateStatus(ctx, userID, enums.UserStatusSuspended); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "suspend user")
		}
		user.Status = enums.UserStatusSuspended
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"admin_id": adminID, "user_id": userID})
	// Retrying is safe: the status update above is a no-op the second time.
	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		s.logg.Error(logCtx, "failed to revoke sessions for suspended user", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke sessions")
	}
	s.logg.Info(logCtx, "user suspended")
	return users.FromModel(user), nil
}

func (s *service) Reactivate(ctx context.Context, adminID, userID uuid.UUID) (*users.UserDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status != enums.UserStatusActive {
		if err := s.users.UpdateStatus(ctx, userID, enums.UserStatusActive); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reactivate user")
		}
		user.Status = enums.UserStatusActive
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"admin_id": adminID, "user_id": userID}), "user reactivated")
	return users.FromModel(user), nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}
