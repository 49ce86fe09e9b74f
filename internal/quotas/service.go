package quotas

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
)

// Service meters plan allowances and unlocks contact details.
type Service interface {
	Consume(ctx context.Context, tx *gorm.DB, profileID uuid.UUID, kind enums.QuotaKind) error
	Usage(ctx context.Context, profileID uuid.UUID) (*UsageDTO, error)
	ViewContact(ctx context.Context, viewerID, targetID uuid.UUID) (*profiles.ContactDTO, error)
	ContactUnlocked(ctx context.Context, viewerID, targetID uuid.UUID) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type usageRepository interface {
	Increment(ctx context.Context, profileID uuid.UUID, period string, kind enums.QuotaKind, limit int) (int, bool, error)
	UsageForPeriod(ctx context.Context, profileID uuid.UUID, period string) (map[enums.QuotaKind]int, error)
	InsertContactView(ctx context.Context, viewerID, targetID uuid.UUID) (bool, error)
	HasViewed(ctx context.Context, viewerID, targetID uuid.UUID) (bool, error)
}

type profileReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// ServiceParams bundles quota dependencies. The factories default to the
// gorm repositories bound to the caller's transaction.
type ServiceParams struct {
	TxRunner           txRunner
	Limits             Limits
	UsageRepoFactory   func(tx *gorm.DB) usageRepository
	ProfileRepoFactory func(tx *gorm.DB) profileReader
	UsageRepo          usageRepository
	ProfileRepo        profileReader
	Clock              func() time.Time
}

type service struct {
	tx             txRunner
	limits         Limits
	usageFactory   func(tx *gorm.DB) usageRepository
	profileFactory func(tx *gorm.DB) profileReader
	usage          usageRepository
	profiles       profileReader
	now            func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if params.UsageRepoFactory == nil {
		params.UsageRepoFactory = func(tx *gorm.DB) usageRepository { return NewRepository(tx) }
	}
	if params.ProfileRepoFactory == nil {
		params.ProfileRepoFactory = func(tx *gorm.DB) profileReader { return profiles.NewRepository(tx) }
	}
	if params.UsageRepo == nil || params.ProfileRepo == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if params.Limits.table == nil {
		return nil, fmt.Errorf("quota limits are required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		tx:             params.TxRunner,
		limits:         params.Limits,
		usageFactory:   params.UsageRepoFactory,
		profileFactory: params.ProfileRepoFactory,
		usage:          params.UsageRepo,
		profiles:       params.ProfileRepo,
		now:            clock,
	}, nil
}

// Consume spends one credit of kind inside tx. Exhausted allowances return
// QUOTA_EXCEEDED so the surrounding transaction rolls back.
func (s *service) Consume(ctx context.Context, tx *gorm.DB, profileID uuid.UUID, kind enums.QuotaKind) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "quota consume requires a transaction")
	}
	if !kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown quota kind")
	}

	profile, err := s.profileFactory(tx).FindByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile plan")
	}

	limit := s.limits.For(profile.Plan, kind)
	_, ok, err := s.usageFactory(tx).Increment(ctx, profileID, Period(s.now()), kind, limit)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment quota usage")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeQuotaExceeded, fmt.Sprintf("monthly %s allowance reached; upgrade your plan to continue", kind)).
			WithDetails(map[string]any{
				"kind":  kind,
				"plan":  profile.Plan,
				"limit": limit,
			})
	}
	return nil
}

func (s *service) Usage(ctx context.Context, profileID uuid.UUID) (*UsageDTO, error) {
	profile, err := s.profiles.FindByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}

	period := Period(s.now())
	used, err := s.usage.UsageForPeriod(ctx, profileID, period)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load quota usage")
	}

	out := &UsageDTO{Plan: profile.Plan, Period: period, Items: make([]KindUsage, 0, 3)}
	for _, kind := range []enums.QuotaKind{enums.QuotaKindContactView, enums.QuotaKindProposal, enums.QuotaKindResponse} {
		out.Items = append(out.Items, newKindUsage(kind, used[kind], s.limits.For(profile.Plan, kind)))
	}
	return out, nil
}

// ViewContact unlocks target's contact fields for viewer. Only the first
// unlock of a pair costs a credit; the insert and the charge share one transaction.
func (s *service) ViewContact(ctx context.Context, viewerID, targetID uuid.UUID) (*profiles.ContactDTO, error) {
	if viewerID == targetID {
		target, err := s.profiles.FindByID(ctx, targetID)
		if err != nil {
			return nil, mapProfileErr(err)
		}
		return profiles.ContactFromModel(target), nil
	}

	var contact *profiles.ContactDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		target, err := s.profileFactory(tx).FindByID(ctx, targetID)
		if err != nil {
			return mapProfileErr(err)
		}

		inserted, err := s.usageFactory(tx).InsertContactView(ctx, viewerID, targetID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record contact view")
		}
		if inserted {
			if err := s.Consume(ctx, tx, viewerID, enums.QuotaKindContactView); err != nil {
				return err
			}
		}

		contact = profiles.ContactFromModel(target)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contact, nil
}

// ContactUnlocked reports whether viewing target's contact would be free for
// viewer: their own profile, or one they already paid for.
func (s *service) ContactUnlocked(ctx context.Context, viewerID, targetID uuid.UUID) (bool, error) {
	if viewerID == targetID {
		return true, nil
	}
	seen, err := s.usage.HasViewed(ctx, viewerID, targetID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load contact view")
	}
	return seen, nil
}

func mapProfileErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
}
