package badges

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
)

type Service interface {
	Evaluate(ctx context.Context, profileID uuid.UUID) ([]enums.BadgeCode, error)
	ListForProfile(ctx context.Context, profileID uuid.UUID) ([]BadgeDTO, error)
}

type BadgeDTO struct {
	Definition
	AwardedAt time.Time `json:"awarded_at"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type badgeRepository interface {
	ListForProfile(ctx context.Context, profileID uuid.UUID) ([]models.Badge, error)
	Award(ctx context.Context, profileID uuid.UUID, code enums.BadgeCode) (bool, error)
}

type profileReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	TxRunner       txRunner
	Repo           badgeRepository
	Outbox         outboxEmitter
	Logger         *logger.Logger
	RepoFactory    func(tx *gorm.DB) badgeRepository
	ProfileFactory func(tx *gorm.DB) profileReader
}

type service struct {
	tx             txRunner
	repo           badgeRepository
	outbox         outboxEmitter
	logg           *logger.Logger
	repoFactory    func(tx *gorm.DB) badgeRepository
	profileFactory func(tx *gorm.DB) profileReader
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, fmt.Errorf("tx runner is required")
	case params.Repo == nil:
		return nil, fmt.Errorf("badge repository is required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if params.RepoFactory == nil {
		params.RepoFactory = func(tx *gorm.DB) badgeRepository { return NewRepository(tx) }
	}
	if params.ProfileFactory == nil {
		params.ProfileFactory = func(tx *gorm.DB) profileReader { return profiles.NewRepository(tx) }
	}
	return &service{
		tx:             params.TxRunner,
		repo:           params.Repo,
		outbox:         params.Outbox,
		logg:           params.Logger,
		repoFactory:    params.RepoFactory,
		profileFactory: params.ProfileFactory,
	}, nil
}

// Evaluate awards every badge the profile qualifies for but does not hold
// yet. Re-running it is harmless.
func (s *service) Evaluate(ctx context.Context, profileID uuid.UUID) ([]enums.BadgeCode, error) {
	var awarded []enums.BadgeCode
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		awarded = nil
		profile, err := s.profileFactory(tx).FindByID(ctx, profileID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
		}
		repo := s.repoFactory(tx)
		for _, code := range Eligible(*profile) {
			created, err := repo.Award(ctx, profileID, code)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "award badge")
			}
			if !created {
				continue
			}
			awarded = append(awarded, code)
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBadgeAwarded,
				AggregateType: enums.AggregateBadge,
				AggregateID:   profileID,
				Data:          payloads.BadgeAwardedEvent{ProfileID: profileID, Code: code},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit badge event")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(awarded) > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"profile_id": profileID.String(),
			"badges":     awarded,
		}), "badges.awarded")
	}
	return awarded, nil
}

func (s *service) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]BadgeDTO, error) {
	rows, err := s.repo.ListForProfile(ctx, profileID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list badges")
	}
	out := make([]BadgeDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, BadgeDTO{Definition: Describe(row.Code), AwardedAt: row.AwardedAt})
	}
	return out, nil
}
