package seo

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

type memoryPages struct {
	rows      []models.SEOPage
	openGigs  map[uuid.UUID]int64
	providers map[uuid.UUID]int64
	createErr error
}

func (m *memoryPages) List(context.Context) ([]models.SEOPage, error) {
	return append([]models.SEOPage(nil), m.rows...), nil
}

func (m *memoryPages) FindByID(_ context.Context, id uuid.UUID) (*models.SEOPage, error) {
	for i := range m.rows {
		if m.rows[i].ID == id {
			cp := m.rows[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryPages) Create(_ context.Context, page *models.SEOPage) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.rows = append(m.rows, *page)
	return nil
}

func (m *memoryPages) Update(_ context.Context, id uuid.UUID, updates map[string]any) error {
	for i := range m.rows {
		if m.rows[i].ID != id {
			continue
		}
		if v, ok := updates["title"]; ok {
			m.rows[i].Title = v.(string)
		}
		if v, ok := updates["path"]; ok {
			m.rows[i].Path = v.(string)
		}
		if v, ok := updates["meta_description"]; ok {
			m.rows[i].MetaDescription = v.(string)
		}
		if v, ok := updates["noindex"]; ok {
			m.rows[i].NoIndex = v.(bool)
		}
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (m *memoryPages) Delete(_ context.Context, id uuid.UUID) error {
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memoryPages) CountOpenGigsByCategory(context.Context) (map[uuid.UUID]int64, error) {
	return m.openGigs, nil
}

func (m *memoryPages) CountProvidersByCategory(context.Context) (map[uuid.UUID]int64, error) {
	return m.providers, nil
}

type staticCategories []models.Category

func (s staticCategories) List(context.Context, bool) ([]models.Category, error) {
	return s, nil
}

type stubViews struct {
	counts map[uuid.UUID]int64
	err    error
	since  time.Time
}

func (s *stubViews) CategoryViews(_ context.Context, since time.Time) (map[uuid.UUID]int64, error) {
	s.since = since
	return s.counts, s.err
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, repo *memoryPages, cats staticCategories, views viewCounter) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Categories: cats,
		Views:      views,
		Logger:     logger.New(logger.Options{ServiceName: "seo-test", Output: io.Discard}),
		Clock:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc
}

func TestCreatePageNormalizesPath(t *testing.T) {
	repo := &memoryPages{}
	svc := newTestService(t, repo, nil, nil)

	page, err := svc.CreatePage(context.Background(), CreatePageRequest{Path: "  /Categories/Plumbing/ ", Title: " Plumbers near you "})
	require.NoError(t, err)
	assert.Equal(t, "/categories/plumbing", page.Path)
	assert.Equal(t, "Plumbers near you", page.Title)
	require.Len(t, repo.rows, 1)
}

func TestCreatePageRejectsBadPath(t *testing.T) {
	svc := newTestService(t, &memoryPages{}, nil, nil)

	for _, path := range []string{"categories/plumbing", "/with space", ""} {
		_, err := svc.CreatePage(context.Background(), CreatePageRequest{Path: path, Title: "x"})
		require.Error(t, err, path)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), path)
	}
}

func TestCreatePageDuplicatePathConflicts(t *testing.T) {
	repo := &memoryPages{createErr: &pgconn.PgError{Code: "23505"}}
	svc := newTestService(t, repo, nil, nil)

	_, err := svc.CreatePage(context.Background(), CreatePageRequest{Path: "/about", Title: "About"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestUpdatePage(t *testing.T) {
	id := uuid.New()
	repo := &memoryPages{rows: []models.SEOPage{{ID: id, Path: "/about", Title: "About"}}}
	svc := newTestService(t, repo, nil, nil)

	meta := "Who we are"
	noIndex := true
	page, err := svc.UpdatePage(context.Background(), id, UpdatePageRequest{MetaDescription: &meta, NoIndex: &noIndex})
	require.NoError(t, err)
	assert.Equal(t, "Who we are", page.MetaDescription)
	assert.True(t, page.NoIndex)

	blank := "  "
	_, err = svc.UpdatePage(context.Background(), id, UpdatePageRequest{Title: &blank})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.UpdatePage(context.Background(), uuid.New(), UpdatePageRequest{MetaDescription: &meta})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeletePageMissing(t *testing.T) {
	svc := newTestService(t, &memoryPages{}, nil, nil)
	err := svc.DeletePage(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDashboardJoinsCountsAndPages(t *testing.T) {
	plumbing := models.Category{ID: uuid.New(), Slug: "plumbing", Name: "Plumbing"}
	cleaning := models.Category{ID: uuid.New(), Slug: "cleaning", Name: "Cleaning"}
	tutoring := models.Category{ID: uuid.New(), Slug: "tutoring", Name: "Tutoring"}

	repo := &memoryPages{
		rows: []models.SEOPage{
			{ID: uuid.New(), Path: "/categories/plumbing", Title: "Plumbing", MetaDescription: "Find plumbers", CategoryID: &plumbing.ID},
			{ID: uuid.New(), Path: "/categories/cleaning", Title: "Cleaning", NoIndex: true},
		},
		openGigs:  map[uuid.UUID]int64{plumbing.ID: 4, cleaning.ID: 2},
		providers: map[uuid.UUID]int64{plumbing.ID: 3, tutoring.ID: 1},
	}
	views := &stubViews{counts: map[uuid.UUID]int64{cleaning.ID: 50, plumbing.ID: 10}}
	svc := newTestService(t, repo, staticCategories{plumbing, cleaning, tutoring}, views)

	dash, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.True(t, dash.ViewsAvailable)
	assert.Equal(t, fixedNow.Add(-30*24*time.Hour), views.since)
	require.Len(t, dash.Categories, 3)

	assert.Equal(t, "cleaning", dash.Categories[0].Slug)
	assert.True(t, dash.Categories[0].HasPage)
	assert.True(t, dash.Categories[0].MissingMeta)
	assert.True(t, dash.Categories[0].NoIndex)

	assert.Equal(t, "plumbing", dash.Categories[1].Slug)
	assert.False(t, dash.Categories[1].MissingMeta)
	assert.Equal(t, int64(4), dash.Categories[1].OpenGigs)
	assert.Equal(t, int64(3), dash.Categories[1].Providers)

	assert.Equal(t, "tutoring", dash.Categories[2].Slug)
	assert.False(t, dash.Categories[2].HasPage)
	assert.Equal(t, "/categories/tutoring", dash.Categories[2].LandingPath)

	assert.Equal(t, DashboardTotals{
		Categories:  3,
		Pages:       2,
		MissingMeta: 2,
		NoIndex:     1,
		OpenGigs:    6,
		Providers:   4,
		Views30d:    60,
	}, dash.Totals)
}

func TestDashboardDegradesWhenViewsFail(t *testing.T) {
	cat := models.Category{ID: uuid.New(), Slug: "moving", Name: "Moving"}
	repo := &memoryPages{openGigs: map[uuid.UUID]int64{cat.ID: 1}}
	svc := newTestService(t, repo, staticCategories{cat}, &stubViews{err: errors.New("bigquery down")})

	dash, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.False(t, dash.ViewsAvailable)
	require.Len(t, dash.Categories, 1)
	assert.Zero(t, dash.Categories[0].Views30d)
	assert.Equal(t, int64(1), dash.Totals.OpenGigs)
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
