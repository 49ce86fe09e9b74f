package gigs

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// Service covers the gig lifecycle from posting through moderation to completion.
type Service interface {
	Create(ctx context.Context, clientID uuid.UUID, req CreateGigRequest) (*GigDTO, error)
	List(ctx context.Context, filter ListFilter) (pagination.Page[GigDTO], error)
	Get(ctx context.Context, viewer Viewer, gigID uuid.UUID) (*GigDTO, error)
	ListMine(ctx context.Context, viewer Viewer, filter ListFilter) (pagination.Page[GigDTO], error)
	Update(ctx context.Context, clientID, gigID uuid.UUID, req UpdateGigRequest) (*GigDTO, error)
	Cancel(ctx context.Context, clientID, gigID uuid.UUID) (*GigDTO, error)
	Complete(ctx context.Context, clientID, gigID uuid.UUID) (*GigDTO, error)
	ListPending(ctx context.Context, filter ListFilter) (pagination.Page[GigDTO], error)
	Approve(ctx context.Context, adminID, gigID uuid.UUID) (*GigDTO, error)
	Reject(ctx context.Context, adminID, gigID uuid.UUID, reason string) (*GigDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gigRepository interface {
	Create(ctx context.Context, gig *models.Gig) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Gig, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Transition(ctx context.Context, id uuid.UUID, from []enums.GigStatus, next enums.GigStatus, extra map[string]any) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]models.Gig, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, filter ListFilter) ([]models.Gig, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, filter ListFilter) ([]models.Gig, error)
}

type providerStats interface {
	IncrementCompletedGigs(ctx context.Context, id uuid.UUID) error
}

type categoryLookup interface {
	CountActiveByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams bundles gig service dependencies.
type ServiceParams struct {
	TxRunner          txRunner
	Repo              gigRepository
	Categories        categoryLookup
	Outbox            outboxEmitter
	Logger            *logger.Logger
	Currency          string
	RepoFactory       func(tx *gorm.DB) gigRepository
	ProviderStatsRepo func(tx *gorm.DB) providerStats
}

type service struct {
	tx           txRunner
	repo         gigRepository
	categories   categoryLookup
	outbox       outboxEmitter
	logg         *logger.Logger
	currency     string
	repoFactory  func(tx *gorm.DB) gigRepository
	statsFactory func(tx *gorm.DB) providerStats
}

func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("gig repository is required")
	}
	if params.Categories == nil {
		return nil, fmt.Errorf("category lookup is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.RepoFactory == nil {
		params.RepoFactory = func(tx *gorm.DB) gigRepository { return NewRepository(tx) }
	}
	if params.ProviderStatsRepo == nil {
		params.ProviderStatsRepo = func(tx *gorm.DB) providerStats { return profiles.NewRepository(tx) }
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &service{
		tx:           params.TxRunner,
		repo:         params.Repo,
		categories:   params.Categories,
		outbox:       params.Outbox,
		logg:         params.Logger,
		currency:     currency,
		repoFactory:  params.RepoFactory,
		statsFactory: params.ProviderStatsRepo,
	}, nil
}

func (s *service) Create(ctx context.Context, clientID uuid.UUID, req CreateGigRequest) (*GigDTO, error) {
	if (req.Lat == nil) != (req.Lng == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lat and lng must be provided together")
	}
	if err := s.requireActiveCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	gig := &models.Gig{
		ID:          uuid.New(),
		ClientID:    clientID,
		CategoryID:  req.CategoryID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		BudgetCents: req.BudgetCents,
		Currency:    s.currency,
		City:        trimmedOrNil(req.City),
		Lat:         req.Lat,
		Lng:         req.Lng,
		IsUrgent:    req.IsUrgent,
		Status:      enums.GigStatusPending,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repoFactory(tx).Create(ctx, gig); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create gig")
		}
		return s.emit(ctx, tx, enums.EventGigCreated, gig, clientID, enums.UserRoleClient)
	})
	if err != nil {
		return nil, err
	}

	dto := FromModel(*gig)
	return &dto, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (pagination.Page[GigDTO], error) {
	filter.Status = enums.GigStatusOpen
	if err := checkCursor(filter); err != nil {
		return pagination.Page[GigDTO]{}, err
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return pagination.Page[GigDTO]{}, listError(err)
	}
	return toPage(rows, filter.Limit), nil
}

// Get returns open gigs to anyone. Other statuses are visible to the owner,
// the assigned provider and admins only. Public reads of open gigs record a view.
func (s *service) Get(ctx context.Context, viewer Viewer, gigID uuid.UUID) (*GigDTO, error) {
	gig, err := s.load(ctx, gigID)
	if err != nil {
		return nil, err
	}

	if gig.Status != enums.GigStatusOpen && !canSeePrivate(viewer, gig) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
	}

	if gig.Status == enums.GigStatusOpen && viewer.UserID != gig.ClientID {
		s.recordView(ctx, viewer, gig)
	}

	dto := FromModel(*gig)
	return &dto, nil
}

func (s *service) ListMine(ctx context.Context, viewer Viewer, filter ListFilter) (pagination.Page[GigDTO], error) {
	if err := checkCursor(filter); err != nil {
		return pagination.Page[GigDTO]{}, err
	}
	var (
		rows []models.Gig
		err  error
	)
	switch viewer.Role {
	case enums.UserRoleClient:
		rows, err = s.repo.ListByClient(ctx, viewer.UserID, filter)
	case enums.UserRoleProvider:
		rows, err = s.repo.ListByProvider(ctx, viewer.UserID, filter)
	default:
		return pagination.Page[GigDTO]{}, pkgerrors.New(pkgerrors.CodeForbidden, "only clients and providers have gigs")
	}
	if err != nil {
		return pagination.Page[GigDTO]{}, listError(err)
	}
	return toPage(rows, filter.Limit), nil
}

func (s *service) Update(ctx context.Context, clientID, gigID uuid.UUID, req UpdateGigRequest) (*GigDTO, error) {
	var out *models.Gig
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repoFactory(tx)
		gig, err := s.loadOwned(ctx, repo, clientID, gigID)
		if err != nil {
			return err
		}
		if !IsEditable(gig.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "gig can no longer be edited")
		}

		updates, err := s.buildUpdates(ctx, gig, req)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, gigID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update gig")
		}
		out = gig
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(*out)
	return &dto, nil
}

func (s *service) Cancel(ctx context.Context, clientID, gigID uuid.UUID) (*GigDTO, error) {
	now := time.Now().UTC()
	return s.transition(ctx, gigID, enums.GigStatusCancelled, func(gig *models.Gig) error {
		if gig.ClientID != clientID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
		}
		return nil
	}, map[string]any{"cancelled_at": now}, func(gig *models.Gig) { gig.CancelledAt = &now }, nil)
}

// Complete closes an in-progress gig and credits the provider.
func (s *service) Complete(ctx context.Context, clientID, gigID uuid.UUID) (*GigDTO, error) {
	now := time.Now().UTC()
	return s.transition(ctx, gigID, enums.GigStatusCompleted, func(gig *models.Gig) error {
		if gig.ClientID != clientID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
		}
		return nil
	}, map[string]any{"completed_at": now}, func(gig *models.Gig) { gig.CompletedAt = &now },
		func(ctx context.Context, tx *gorm.DB, gig *models.Gig) error {
			if gig.ProviderID != nil {
				if err := s.statsFactory(tx).IncrementCompletedGigs(ctx, *gig.ProviderID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update provider stats")
				}
			}
			return s.emit(ctx, tx, enums.EventGigCompleted, gig, clientID, enums.UserRoleClient)
		})
}

func (s *service) ListPending(ctx context.Context, filter ListFilter) (pagination.Page[GigDTO], error) {
	filter.Status = enums.GigStatusPending
	if err := checkCursor(filter); err != nil {
		return pagination.Page[GigDTO]{}, err
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return pagination.Page[GigDTO]{}, listError(err)
	}
	return toPage(rows, filter.Limit), nil
}

func (s *service) Approve(ctx context.Context, adminID, gigID uuid.UUID) (*GigDTO, error) {
	now := time.Now().UTC()
	return s.transition(ctx, gigID, enums.GigStatusOpen, nil,
		map[string]any{"approved_at": now, "rejection_reason": nil},
		func(gig *models.Gig) { gig.ApprovedAt = &now; gig.RejectionReason = nil },
		func(ctx context.Context, tx *gorm.DB, gig *models.Gig) error {
			return s.emit(ctx, tx, enums.EventGigApproved, gig, adminID, enums.UserRoleAdmin)
		})
}

func (s *service) Reject(ctx context.Context, adminID, gigID uuid.UUID, reason string) (*GigDTO, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}
	return s.transition(ctx, gigID, enums.GigStatusRejected, nil,
		map[string]any{"rejection_reason": reason},
		func(gig *models.Gig) { gig.RejectionReason = &reason },
		func(ctx context.Context, tx *gorm.DB, gig *models.Gig) error {
			return s.emit(ctx, tx, enums.EventGigRejected, gig, adminID, enums.UserRoleAdmin)
		})
}

// transition runs a guarded status change: authorize, conditional update,
// mirror the change in memory, then run side effects in the same transaction.
func (s *service) transition(
	ctx context.Context,
	gigID uuid.UUID,
	next enums.GigStatus,
	authorize func(gig *models.Gig) error,
	extra map[string]any,
	apply func(gig *models.Gig),
	after func(ctx context.Context, tx *gorm.DB, gig *models.Gig) error,
) (*GigDTO, error) {
	var out *models.Gig
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repoFactory(tx)
		gig, err := repo.FindByIDForUpdate(ctx, gigID)
		if err != nil {
			return mapLoadError(err)
		}
		if authorize != nil {
			if err := authorize(gig); err != nil {
				return err
			}
		}
		if !CanTransition(gig.Status, next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("gig cannot move from %s to %s", gig.Status, next))
		}

		ok, err := repo.Transition(ctx, gigID, sourcesFor(next), next, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update gig status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "gig status changed concurrently")
		}

		gig.Status = next
		if apply != nil {
			apply(gig)
		}
		if after != nil {
			if err := after(ctx, tx, gig); err != nil {
				return err
			}
		}
		out = gig
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(*out)
	return &dto, nil
}

func (s *service) buildUpdates(ctx context.Context, gig *models.Gig, req UpdateGigRequest) (map[string]any, error) {
	updates := map[string]any{}
	if req.Title != nil {
		gig.Title = strings.TrimSpace(*req.Title)
		updates["title"] = gig.Title
	}
	if req.Description != nil {
		gig.Description = strings.TrimSpace(*req.Description)
		updates["description"] = gig.Description
	}
	if req.CategoryID != nil && *req.CategoryID != gig.CategoryID {
		if err := s.requireActiveCategory(ctx, *req.CategoryID); err != nil {
			return nil, err
		}
		gig.CategoryID = *req.CategoryID
		updates["category_id"] = gig.CategoryID
	}
	if req.BudgetCents != nil {
		gig.BudgetCents = *req.BudgetCents
		updates["budget_cents"] = gig.BudgetCents
	}
	if req.City != nil {
		gig.City = trimmedOrNil(req.City)
		updates["city"] = gig.City
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lat and lng must be provided together")
	}
	if req.Lat != nil {
		gig.Lat, gig.Lng = req.Lat, req.Lng
		updates["lat"] = *req.Lat
		updates["lng"] = *req.Lng
	}
	if req.IsUrgent != nil {
		gig.IsUrgent = *req.IsUrgent
		updates["is_urgent"] = gig.IsUrgent
	}
	return updates, nil
}

func (s *service) requireActiveCategory(ctx context.Context, categoryID uuid.UUID) error {
	count, err := s.categories.CountActiveByIDs(ctx, []uuid.UUID{categoryID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check category")
	}
	if count != 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "category not found or inactive")
	}
	return nil
}

func (s *service) recordView(ctx context.Context, viewer Viewer, gig *models.Gig) {
	var viewerID *uuid.UUID
	if !viewer.isAnonymous() {
		id := viewer.UserID
		viewerID = &id
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventGigViewed,
		AggregateType: enums.AggregateGig,
		AggregateID:   gig.ID,
		Data: payloads.GigViewedEvent{
			GigID:      gig.ID,
			CategoryID: gig.CategoryID,
			ViewerID:   viewerID,
			City:       deref(gig.City),
			ViewedAt:   time.Now().UTC(),
		},
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"gig_id": gig.ID.String(), "error": err.Error()}), "gigs.view_event_failed")
	}
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, gig *models.Gig, actorID uuid.UUID, role enums.UserRole) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateGig,
		AggregateID:   gig.ID,
		Actor:         &outbox.ActorRef{UserID: actorID, Role: string(role)},
		Data: payloads.GigEvent{
			GigID:       gig.ID,
			ClientID:    gig.ClientID,
			ProviderID:  gig.ProviderID,
			CategoryID:  gig.CategoryID,
			Title:       gig.Title,
			Status:      gig.Status,
			City:        deref(gig.City),
			BudgetCents: gig.BudgetCents,
			Reason:      deref(gig.RejectionReason),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit gig event")
	}
	return nil
}

func (s *service) load(ctx context.Context, gigID uuid.UUID) (*models.Gig, error) {
	gig, err := s.repo.FindByID(ctx, gigID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return gig, nil
}

func (s *service) loadOwned(ctx context.Context, repo gigRepository, clientID, gigID uuid.UUID) (*models.Gig, error) {
	gig, err := repo.FindByIDForUpdate(ctx, gigID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if gig.ClientID != clientID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
	}
	return gig, nil
}

func canSeePrivate(viewer Viewer, gig *models.Gig) bool {
	if viewer.isAnonymous() {
		return false
	}
	if viewer.Role == enums.UserRoleAdmin || viewer.UserID == gig.ClientID {
		return true
	}
	return gig.ProviderID != nil && *gig.ProviderID == viewer.UserID
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gig")
}

func listError(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list gigs")
}

func checkCursor(filter ListFilter) error {
	if _, err := pagination.ParseCursor(filter.Cursor); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return nil
}

func toPage(rows []models.Gig, limit int) pagination.Page[GigDTO] {
	dtos := make([]GigDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	return pagination.BuildPage(dtos, limit, func(g GigDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: g.CreatedAt, ID: g.ID}
	})
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
