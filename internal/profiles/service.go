package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

// Service exposes profile reads and owner updates.
type Service interface {
	GetMe(ctx context.Context, userID uuid.UUID) (*ProfileDTO, error)
	UpdateMe(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*ProfileDTO, error)
	GetPublic(ctx context.Context, profileID uuid.UUID) (*PublicProfileDTO, error)
	Completion(ctx context.Context, userID uuid.UUID) (*Completion, error)
	RefreshCompletion(ctx context.Context, profileID uuid.UUID) error
}

type profileRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type categoryLookup interface {
	CountActiveByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// ServiceParams bundles the dependencies of the profile service.
type ServiceParams struct {
	Repo       profileRepository
	Categories categoryLookup
}

type service struct {
	repo       profileRepository
	categories categoryLookup
	completion CompletionService
}

// NewService validates dependencies and builds the profile service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("profile repository is required")
	}
	if params.Categories == nil {
		return nil, fmt.Errorf("category lookup is required")
	}
	return &service{repo: params.Repo, categories: params.Categories}, nil
}

func (s *service) GetMe(ctx context.Context, userID uuid.UUID) (*ProfileDTO, error) {
	profile, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(profile), nil
}

func (s *service) GetPublic(ctx context.Context, profileID uuid.UUID) (*PublicProfileDTO, error) {
	profile, err := s.load(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return PublicFromModel(profile), nil
}

func (s *service) UpdateMe(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*ProfileDTO, error) {
	profile, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates, err := s.buildUpdates(ctx, profile, req)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return FromModel(profile), nil
	}

	completion := s.completion.Compute(profile)
	updates["completion_percent"] = completion.Percent
	profile.CompletionPercent = completion.Percent

	if err := s.repo.Update(ctx, userID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update profile")
	}
	return FromModel(profile), nil
}

func (s *service) Completion(ctx context.Context, userID uuid.UUID) (*Completion, error) {
	profile, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := s.completion.Compute(profile)
	return &result, nil
}

// RefreshCompletion recomputes and stores the percent after out-of-band changes
// such as document approval or payout onboarding.
func (s *service) RefreshCompletion(ctx context.Context, profileID uuid.UUID) error {
	profile, err := s.load(ctx, profileID)
	if err != nil {
		return err
	}
	result := s.completion.Compute(profile)
	if result.Percent == profile.CompletionPercent {
		return nil
	}
	if err := s.repo.Update(ctx, profileID, map[string]any{"completion_percent": result.Percent}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store completion")
	}
	return nil
}

// buildUpdates applies the request onto profile in memory and returns the column diff.
func (s *service) buildUpdates(ctx context.Context, profile *models.Profile, req UpdateProfileRequest) (map[string]any, error) {
	updates := map[string]any{}

	if req.FirstName != nil {
		profile.FirstName = strings.TrimSpace(*req.FirstName)
		updates["first_name"] = profile.FirstName
	}
	if req.LastName != nil {
		profile.LastName = strings.TrimSpace(*req.LastName)
		updates["last_name"] = profile.LastName
	}
	if req.DisplayName != nil {
		profile.DisplayName = strings.TrimSpace(*req.DisplayName)
		updates["display_name"] = profile.DisplayName
	}
	if req.Phone != nil {
		profile.Phone = optionalText(*req.Phone)
		updates["phone"] = profile.Phone
	}
	if req.Bio != nil {
		profile.Bio = optionalText(*req.Bio)
		updates["bio"] = profile.Bio
	}
	if req.AvatarURL != nil {
		profile.AvatarURL = optionalText(*req.AvatarURL)
		updates["avatar_url"] = profile.AvatarURL
	}
	if req.City != nil {
		profile.City = optionalText(*req.City)
		updates["city"] = profile.City
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lat and lng must be provided together")
	}
	if req.Lat != nil {
		profile.Lat, profile.Lng = req.Lat, req.Lng
		updates["lat"] = *req.Lat
		updates["lng"] = *req.Lng
	}

	providerOnly := req.Skills != nil || req.CategoryIDs != nil || req.HourlyRateCents != nil || req.EmergencyAvailable != nil
	if providerOnly && !profile.IsProvider() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only providers can set skills, categories, rates or emergency availability")
	}
	if req.Skills != nil {
		skills := normalizeSkills(*req.Skills)
		profile.Skills = skills
		updates["skills"] = profile.Skills
	}
	if req.CategoryIDs != nil {
		ids := dedupeIDs(*req.CategoryIDs)
		if len(ids) > 0 {
			count, err := s.categories.CountActiveByIDs(ctx, ids)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check categories")
			}
			if count != int64(len(ids)) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown or inactive category")
			}
		}
		values := make([]string, 0, len(ids))
		for _, id := range ids {
			values = append(values, id.String())
		}
		profile.CategoryIDs = values
		updates["category_ids"] = profile.CategoryIDs
	}
	if req.HourlyRateCents != nil {
		profile.HourlyRateCents = req.HourlyRateCents
		updates["hourly_rate_cents"] = *req.HourlyRateCents
	}
	if req.EmergencyAvailable != nil {
		profile.EmergencyAvailable = *req.EmergencyAvailable
		updates["emergency_available"] = *req.EmergencyAvailable
	}
	return updates, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}
	return profile, nil
}

func optionalText(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeSkills(raw []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(raw))
	for _, skill := range raw {
		s := strings.ToLower(strings.TrimSpace(skill))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
