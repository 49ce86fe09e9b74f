package seo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const viewsWindow = 30 * 24 * time.Hour

var pathPattern = regexp.MustCompile(`^/[a-z0-9/_-]*$`)

// Service manages SEO page metadata and the category landing dashboard.
type Service interface {
	ListPages(ctx context.Context) ([]PageDTO, error)
	GetPage(ctx context.Context, id uuid.UUID) (*PageDTO, error)
	CreatePage(ctx context.Context, req CreatePageRequest) (*PageDTO, error)
	UpdatePage(ctx context.Context, id uuid.UUID, req UpdatePageRequest) (*PageDTO, error)
	DeletePage(ctx context.Context, id uuid.UUID) error
	Dashboard(ctx context.Context) (*DashboardDTO, error)
}

type pageStore interface {
	List(ctx context.Context) ([]models.SEOPage, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.SEOPage, error)
	Create(ctx context.Context, page *models.SEOPage) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountOpenGigsByCategory(ctx context.Context) (map[uuid.UUID]int64, error)
	CountProvidersByCategory(ctx context.Context) (map[uuid.UUID]int64, error)
}

type categoryLister interface {
	List(ctx context.Context, includeInactive bool) ([]models.Category, error)
}

// viewCounter is satisfied by the analytics service.
type viewCounter interface {
	CategoryViews(ctx context.Context, since time.Time) (map[uuid.UUID]int64, error)
}

type ServiceParams struct {
	Repo       pageStore
	Categories categoryLister
	Views      viewCounter
	Logger     *logger.Logger
	Clock      func() time.Time
}

type service struct {
	repo       pageStore
	categories categoryLister
	views      viewCounter
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the SEO service. Views may be nil when BigQuery is not
// configured; the dashboard then reports zero views.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("seo repository is required")
	case params.Categories == nil:
		return nil, fmt.Errorf("category lister is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:       params.Repo,
		categories: params.Categories,
		views:      params.Views,
		logg:       params.Logger,
		now:        clock,
	}, nil
}

// LandingPath is the public URL of a category landing page.
func LandingPath(slug string) string {
	return "/categories/" + slug
}

func (s *service) ListPages(ctx context.Context) ([]PageDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list seo pages")
	}
	out := make([]PageDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

func (s *service) GetPage(ctx context.Context, id uuid.UUID) (*PageDTO, error) {
	page, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "load seo page")
	}
	dto := FromModel(*page)
	return &dto, nil
}

func (s *service) CreatePage(ctx context.Context, req CreatePageRequest) (*PageDTO, error) {
	path, err := normalizePath(req.Path)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	page := &models.SEOPage{
		ID:              uuid.New(),
		Path:            path,
		Title:           title,
		MetaDescription: strings.TrimSpace(req.MetaDescription),
		CategoryID:      req.CategoryID,
		NoIndex:         req.NoIndex,
	}
	if err := s.repo.Create(ctx, page); err != nil {
		return nil, mapWriteError(err, "create seo page")
	}
	dto := FromModel(*page)
	return &dto, nil
}

func (s *service) UpdatePage(ctx context.Context, id uuid.UUID, req UpdatePageRequest) (*PageDTO, error) {
	updates := map[string]any{}
	if req.Path != nil {
		path, err := normalizePath(*req.Path)
		if err != nil {
			return nil, err
		}
		updates["path"] = path
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
		}
		updates["title"] = title
	}
	if req.MetaDescription != nil {
		updates["meta_description"] = strings.TrimSpace(*req.MetaDescription)
	}
	if req.CategoryID != nil {
		updates["category_id"] = *req.CategoryID
	}
	if req.NoIndex != nil {
		updates["noindex"] = *req.NoIndex
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, mapWriteError(err, "update seo page")
	}
	return s.GetPage(ctx, id)
}

func (s *service) DeletePage(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoError(err, "delete seo page")
	}
	return nil
}

// Dashboard joins active categories with their landing page metadata,
// marketplace counts and warehouse views. A warehouse failure degrades to
// zero views instead of failing the page.
func (s *service) Dashboard(ctx context.Context) (*DashboardDTO, error) {
	var (
		categories []models.Category
		pages      []models.SEOPage
		openGigs   map[uuid.UUID]int64
		providers  map[uuid.UUID]int64
		views      map[uuid.UUID]int64
		viewsOK    bool
	)
	now := s.now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = s.categories.List(gctx, false)
		return err
	})
	g.Go(func() error {
		var err error
		pages, err = s.repo.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		openGigs, err = s.repo.CountOpenGigsByCategory(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		providers, err = s.repo.CountProvidersByCategory(gctx)
		return err
	})
	if s.views != nil {
		g.Go(func() error {
			counts, err := s.views.CategoryViews(gctx, now.Add(-viewsWindow))
			if err != nil {
				s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"error": err.Error()}), "category views unavailable")
				return nil
			}
			views, viewsOK = counts, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load seo dashboard")
	}

	byCategory := map[uuid.UUID]models.SEOPage{}
	byPath := map[string]models.SEOPage{}
	for _, page := range pages {
		if page.CategoryID != nil {
			byCategory[*page.CategoryID] = page
		}
		byPath[page.Path] = page
	}

	out := &DashboardDTO{
		Categories:     make([]CategoryStats, 0, len(categories)),
		ViewsAvailable: viewsOK,
		GeneratedAt:    now,
	}
	out.Totals.Pages = len(pages)
	for _, category := range categories {
		stats := CategoryStats{
			CategoryID:  category.ID,
			Slug:        category.Slug,
			Name:        category.Name,
			LandingPath: LandingPath(category.Slug),
			OpenGigs:    openGigs[category.ID],
			Providers:   providers[category.ID],
			Views30d:    views[category.ID],
		}
		page, ok := byCategory[category.ID]
		if !ok {
			page, ok = byPath[stats.LandingPath]
		}
		stats.HasPage = ok
		stats.MissingMeta = !ok || strings.TrimSpace(page.MetaDescription) == ""
		stats.NoIndex = ok && page.NoIndex

		out.Categories = append(out.Categories, stats)
		out.Totals.OpenGigs += stats.OpenGigs
		out.Totals.Providers += stats.Providers
		out.Totals.Views30d += stats.Views30d
		if stats.MissingMeta {
			out.Totals.MissingMeta++
		}
		if stats.NoIndex {
			out.Totals.NoIndex++
		}
	}
	out.Totals.Categories = len(out.Categories)

	sort.SliceStable(out.Categories, func(i, j int) bool {
		if out.Categories[i].Views30d != out.Categories[j].Views30d {
			return out.Categories[i].Views30d > out.Categories[j].Views30d
		}
		return out.Categories[i].OpenGigs > out.Categories[j].OpenGigs
	})
	return out, nil
}

func normalizePath(raw string) (string, error) {
	path := strings.ToLower(strings.TrimSpace(raw))
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if !pathPattern.MatchString(path) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "path must start with / and contain only lowercase letters, digits, dashes and underscores")
	}
	return path, nil
}

func mapWriteError(err error, action string) error {
	if dbpkg.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "an seo page already exists for this path")
	}
	if dbpkg.IsForeignKeyViolation(err) {
		return pkgerrors.New(pkgerrors.CodeValidation, "category does not exist")
	}
	return mapRepoError(err, action)
}

func mapRepoError(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "seo page not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}
