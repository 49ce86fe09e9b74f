package gigs

import (
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type memoryGigRepo struct {
	rows map[uuid.UUID]*models.Gig
}

func newMemoryGigRepo() *memoryGigRepo {
	return &memoryGigRepo{rows: map[uuid.UUID]*models.Gig{}}
}

func (m *memoryGigRepo) Create(_ context.Context, gig *models.Gig) error {
	gig.CreatedAt = time.Now().UTC()
	cp := *gig
	m.rows[gig.ID] = &cp
	return nil
}

func (m *memoryGigRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Gig, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memoryGigRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Gig, error) {
	return m.FindByID(ctx, id)
}

func (m *memoryGigRepo) Update(_ context.Context, id uuid.UUID, updates map[string]any) error {
	row, ok := m.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["title"].(string); ok {
		row.Title = v
	}
	if v, ok := updates["budget_cents"].(int64); ok {
		row.BudgetCents = v
	}
	return nil
}

func (m *memoryGigRepo) Transition(_ context.Context, id uuid.UUID, from []enums.GigStatus, next enums.GigStatus, _ map[string]any) (bool, error) {
	row, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if row.Status == f {
			row.Status = next
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryGigRepo) filter(match func(*models.Gig) bool) []models.Gig {
	out := []models.Gig{}
	for _, row := range m.rows {
		if match(row) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memoryGigRepo) List(_ context.Context, filter ListFilter) ([]models.Gig, error) {
	return m.filter(func(g *models.Gig) bool { return filter.Status == "" || g.Status == filter.Status }), nil
}

func (m *memoryGigRepo) ListByClient(_ context.Context, clientID uuid.UUID, _ ListFilter) ([]models.Gig, error) {
	return m.filter(func(g *models.Gig) bool { return g.ClientID == clientID }), nil
}

func (m *memoryGigRepo) ListByProvider(_ context.Context, providerID uuid.UUID, _ ListFilter) ([]models.Gig, error) {
	return m.filter(func(g *models.Gig) bool { return g.ProviderID != nil && *g.ProviderID == providerID }), nil
}

type stubCategories struct {
	active map[uuid.UUID]bool
}

func (s stubCategories) CountActiveByIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if s.active[id] {
			n++
		}
	}
	return n, nil
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingOutbox) types() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

type stubStats struct {
	completed map[uuid.UUID]int
}

func (s *stubStats) IncrementCompletedGigs(_ context.Context, id uuid.UUID) error {
	s.completed[id]++
	return nil
}

type gigFixture struct {
	svc        Service
	repo       *memoryGigRepo
	outbox     *recordingOutbox
	stats      *stubStats
	categoryID uuid.UUID
	clientID   uuid.UUID
	adminID    uuid.UUID
}

func newGigFixture(t *testing.T) *gigFixture {
	t.Helper()
	repo := newMemoryGigRepo()
	box := &recordingOutbox{}
	stats := &stubStats{completed: map[uuid.UUID]int{}}
	categoryID := uuid.New()

	svc, err := NewService(ServiceParams{
		TxRunner:          stubTxRunner{},
		Repo:              repo,
		Categories:        stubCategories{active: map[uuid.UUID]bool{categoryID: true}},
		Outbox:            box,
		Logger:            logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		RepoFactory:       func(*gorm.DB) gigRepository { return repo },
		ProviderStatsRepo: func(*gorm.DB) providerStats { return stats },
	})
	require.NoError(t, err)
	return &gigFixture{svc: svc, repo: repo, outbox: box, stats: stats, categoryID: categoryID, clientID: uuid.New(), adminID: uuid.New()}
}

func (f *gigFixture) create(t *testing.T) *GigDTO {
	t.Helper()
	city := "  Austin "
	gig, err := f.svc.Create(context.Background(), f.clientID, CreateGigRequest{
		Title:       "Fix leaking kitchen sink",
		Description: "Water pools under the cabinet whenever the tap runs.",
		CategoryID:  f.categoryID,
		BudgetCents: 15000,
		City:        &city,
	})
	require.NoError(t, err)
	return gig
}

func TestCreateGigStartsPending(t *testing.T) {
	f := newGigFixture(t)
	gig := f.create(t)

	assert.Equal(t, enums.GigStatusPending, gig.Status)
	assert.Equal(t, "usd", gig.Currency)
	require.NotNil(t, gig.City)
	assert.Equal(t, "Austin", *gig.City)

	stored := f.repo.rows[gig.ID]
	require.NotNil(t, stored)
	assert.Equal(t, enums.GigStatusPending, stored.Status)
	assert.Equal(t, []enums.OutboxEventType{enums.EventGigCreated}, f.outbox.types())
	assert.Equal(t, gig.ID, f.outbox.events[0].AggregateID)
}

func TestCreateGigRejectsInactiveCategory(t *testing.T) {
	f := newGigFixture(t)
	_, err := f.svc.Create(context.Background(), f.clientID, CreateGigRequest{
		Title: "Paint fence", Description: "Twenty meters of wooden fence need paint.", CategoryID: uuid.New(), BudgetCents: 100,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, f.repo.rows)
}

func TestCreateGigRequiresCoordinatePair(t *testing.T) {
	f := newGigFixture(t)
	lat := 30.2
	_, err := f.svc.Create(context.Background(), f.clientID, CreateGigRequest{
		Title: "Paint fence", Description: "Twenty meters of wooden fence need paint.", CategoryID: f.categoryID, BudgetCents: 100, Lat: &lat,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestModerationFlow(t *testing.T) {
	f := newGigFixture(t)
	gig := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, Viewer{}, gig.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "pending gigs are hidden from the public")

	approved, err := f.svc.Approve(ctx, f.adminID, gig.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.GigStatusOpen, approved.Status)
	assert.NotNil(t, approved.ApprovedAt)

	_, err = f.svc.Reject(ctx, f.adminID, gig.ID, "spam")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	public, err := f.svc.Get(ctx, Viewer{}, gig.ID)
	require.NoError(t, err)
	assert.Equal(t, gig.ID, public.ID)

	assert.Equal(t, []enums.OutboxEventType{enums.EventGigCreated, enums.EventGigApproved, enums.EventGigViewed}, f.outbox.types())
	viewed, ok := f.outbox.events[2].Data.(payloads.GigViewedEvent)
	require.True(t, ok)
	assert.Nil(t, viewed.ViewerID)
	assert.Equal(t, "Austin", viewed.City)
}

func TestOwnerViewDoesNotRecordView(t *testing.T) {
	f := newGigFixture(t)
	gig := f.create(t)
	_, err := f.svc.Approve(context.Background(), f.adminID, gig.ID)
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), Viewer{UserID: f.clientID, Role: enums.UserRoleClient}, gig.ID)
	require.NoError(t, err)
	assert.NotContains(t, f.outbox.types(), enums.EventGigViewed)
}

func TestRejectStoresReason(t *testing.T) {
	f := newGigFixture(t)
	gig := f.create(t)

	_, err := f.svc.Reject(context.Background(), f.adminID, gig.ID, "  ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	rejected, err := f.svc.Reject(context.Background(), f.adminID, gig.ID, "Contact details in description")
	require.NoError(t, err)
	assert.Equal(t, enums.GigStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)

	owner, err := f.svc.Get(context.Background(), Viewer{UserID: f.clientID, Role: enums.UserRoleClient}, gig.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.GigStatusRejected, owner.Status)

	last := f.outbox.events[len(f.outbox.events)-1]
	assert.Equal(t, enums.EventGigRejected, last.EventType)
	assert.Equal(t, "Contact details in description", last.Data.(payloads.GigEvent).Reason)
}

func TestCancelOnlyByOwnerWhileEditable(t *testing.T) {
	f := newGigFixture(t)
	gig := f.create(t)

	_, err := f.svc.Cancel(context.Background(), uuid.New(), gig.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	cancelled, err := f.svc.Cancel(context.Background(), f.clientID, gig.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.GigStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = f.svc.Cancel(context.Background(), f.clientID, gig.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	title := "Updated title here"
	_, err = f.svc.Update(context.Background(), f.clientID, gig.ID, UpdateGigRequest{Title: &title})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCompleteCreditsProvider(t *testing.T) {
	f := newGigFixture(t)
	gig := f.create(t)
	providerID := uuid.New()
	row := f.repo.rows[gig.ID]
	row.Status = enums.GigStatusInProgress
	row.ProviderID = &providerID

	provider := Viewer{UserID: providerID, Role: enums.UserRoleProvider}
	visible, err := f.svc.Get(context.Background(), provider, gig.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.GigStatusInProgress, visible.Status)

	_, err = f.svc.Get(context.Background(), Viewer{UserID: uuid.New(), Role: enums.UserRoleProvider}, gig.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	done, err := f.svc.Complete(context.Background(), f.clientID, gig.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.GigStatusCompleted, done.Status)
	assert.Equal(t, 1, f.stats.completed[providerID])
	assert.Contains(t, f.outbox.types(), enums.EventGigCompleted)

	mine, err := f.svc.ListMine(context.Background(), provider, ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
}

func TestCompleteRequiresInProgress(t *testing.T) {
	f := newGigFixture(t)
	gig := f.create(t)
	_, err := f.svc.Complete(context.Background(), f.clientID, gig.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestListShowsOpenOnlyAndRejectsBadCursor(t *testing.T) {
	f := newGigFixture(t)
	pending := f.create(t)
	open := f.create(t)
	_, err := f.svc.Approve(context.Background(), f.adminID, open.ID)
	require.NoError(t, err)

	page, err := f.svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, open.ID, page.Items[0].ID)

	queue, err := f.svc.ListPending(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, queue.Items, 1)
	assert.Equal(t, pending.ID, queue.Items[0].ID)

	_, err = f.svc.List(context.Background(), ListFilter{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStatusMachine(t *testing.T) {
	assert.True(t, CanTransition(enums.GigStatusPending, enums.GigStatusOpen))
	assert.True(t, CanTransition(enums.GigStatusOpen, enums.GigStatusInProgress))
	assert.False(t, CanTransition(enums.GigStatusCompleted, enums.GigStatusCancelled))
	assert.False(t, CanTransition(enums.GigStatusInProgress, enums.GigStatusCancelled))
	assert.ElementsMatch(t, []enums.GigStatus{enums.GigStatusPending, enums.GigStatusOpen}, sourcesFor(enums.GigStatusCancelled))
}

func TestSearchTermsMatchLiterally(t *testing.T) {
	assert.Equal(t, `100\% fix\_it c:\\tmp`, likeEscaper.Replace(`100% fix_it c:\tmp`))
	assert.Equal(t, "plumber", likeEscaper.Replace("plumber"))
}
