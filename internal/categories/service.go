package categories

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Service manages the category catalog and classifies draft gigs.
type Service interface {
	List(ctx context.Context, includeInactive bool) ([]CategoryDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*CategoryDTO, error)
	Create(ctx context.Context, req CreateCategoryRequest) (*CategoryDTO, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateCategoryRequest) (*CategoryDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Suggest(ctx context.Context, req SuggestRequest) ([]Suggestion, error)
}

type categoryRepository interface {
	List(ctx context.Context, includeInactive bool) ([]models.Category, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	Create(ctx context.Context, category *models.Category) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// textGenerator is satisfied by pkg/genai.Client.
type textGenerator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

// ServiceParams bundles category service dependencies. Generator may be nil,
// in which case suggestions always use keyword scoring.
type ServiceParams struct {
	Repo      categoryRepository
	Generator textGenerator
	Logger    *logger.Logger
}

type service struct {
	repo      categoryRepository
	generator textGenerator
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("category repository is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		repo:      params.Repo,
		generator: params.Generator,
		logg:      params.Logger,
	}, nil
}

func (s *service) List(ctx context.Context, includeInactive bool) ([]CategoryDTO, error) {
	rows, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list categories")
	}
	out := make([]CategoryDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CategoryDTO, error) {
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "load category")
	}
	dto := FromModel(*category)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, req CreateCategoryRequest) (*CategoryDTO, error) {
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug must be lowercase letters, digits and dashes")
	}
	category := &models.Category{
		ID:          uuid.New(),
		Slug:        slug,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Icon:        req.Icon,
		Keywords:    pq.StringArray(normalizeKeywords(req.Keywords)),
		IsActive:    true,
		SortOrder:   req.SortOrder,
	}
	if err := s.repo.Create(ctx, category); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "category slug already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create category")
	}
	dto := FromModel(*category)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, req UpdateCategoryRequest) (*CategoryDTO, error) {
	updates := map[string]any{}
	if req.Slug != nil {
		slug := strings.ToLower(strings.TrimSpace(*req.Slug))
		if !slugPattern.MatchString(slug) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug must be lowercase letters, digits and dashes")
		}
		updates["slug"] = slug
	}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = req.Description
	}
	if req.Icon != nil {
		updates["icon"] = req.Icon
	}
	if req.Keywords != nil {
		updates["keywords"] = pq.StringArray(normalizeKeywords(*req.Keywords))
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.SortOrder != nil {
		updates["sort_order"] = *req.SortOrder
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "category slug already exists")
		}
		return nil, mapRepoError(err, "update category")
	}
	return s.Get(ctx, id)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if dbpkg.IsForeignKeyViolation(err) {
			return pkgerrors.New(pkgerrors.CodeConflict, "category is still used by gigs; deactivate it instead")
		}
		return mapRepoError(err, "delete category")
	}
	return nil
}

func mapRepoError(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}

func normalizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.Join(tokenize(kw), " ")
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
