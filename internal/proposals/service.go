package proposals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/chat"
	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// Service handles provider offers on gigs and the client's choice among them.
type Service interface {
	Submit(ctx context.Context, providerID, gigID uuid.UUID, req SubmitRequest) (*ProposalDTO, error)
	ListForGig(ctx context.Context, userID uuid.UUID, role enums.UserRole, gigID uuid.UUID) ([]ProposalDTO, error)
	ListMine(ctx context.Context, providerID uuid.UUID, params pagination.Params) (pagination.Page[ProposalDTO], error)
	Accept(ctx context.Context, clientID, proposalID uuid.UUID) (*AcceptResult, error)
	Withdraw(ctx context.Context, providerID, proposalID uuid.UUID) (*ProposalDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type proposalRepository interface {
	Create(ctx context.Context, proposal *models.Proposal) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	ListForGig(ctx context.Context, gigID uuid.UUID) ([]models.Proposal, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, params pagination.Params) ([]models.Proposal, error)
	Transition(ctx context.Context, id uuid.UUID, from, next enums.ProposalStatus) (bool, error)
	DeclineOthers(ctx context.Context, gigID, keep uuid.UUID) ([]models.Proposal, error)
}

type gigStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Gig, error)
	Transition(ctx context.Context, id uuid.UUID, from []enums.GigStatus, next enums.GigStatus, extra map[string]any) (bool, error)
}

type conversationOpener interface {
	GetOrCreate(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error)
}

type profileLookup interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error)
}

type quotaConsumer interface {
	Consume(ctx context.Context, tx *gorm.DB, profileID uuid.UUID, kind enums.QuotaKind) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams bundles proposal dependencies. Factories left nil use the
// Postgres repositories bound to the transaction.
type ServiceParams struct {
	TxRunner            txRunner
	Repo                proposalRepository
	Gigs                gigStore
	Profiles            profileLookup
	Quotas              quotaConsumer
	Outbox              outboxEmitter
	Logger              *logger.Logger
	RepoFactory         func(tx *gorm.DB) proposalRepository
	GigRepoFactory      func(tx *gorm.DB) gigStore
	ConversationFactory func(tx *gorm.DB) conversationOpener
}

type service struct {
	tx          txRunner
	repo        proposalRepository
	gigs        gigStore
	profiles    profileLookup
	quotas      quotaConsumer
	outbox      outboxEmitter
	logg        *logger.Logger
	repoFactory func(tx *gorm.DB) proposalRepository
	gigFactory  func(tx *gorm.DB) gigStore
	convFactory func(tx *gorm.DB) conversationOpener
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, fmt.Errorf("tx runner is required")
	case params.Repo == nil:
		return nil, fmt.Errorf("proposal repository is required")
	case params.Gigs == nil:
		return nil, fmt.Errorf("gig store is required")
	case params.Profiles == nil:
		return nil, fmt.Errorf("profile lookup is required")
	case params.Quotas == nil:
		return nil, fmt.Errorf("quota consumer is required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if params.RepoFactory == nil {
		params.RepoFactory = func(tx *gorm.DB) proposalRepository { return NewRepository(tx) }
	}
	if params.GigRepoFactory == nil {
		params.GigRepoFactory = func(tx *gorm.DB) gigStore { return gigs.NewRepository(tx) }
	}
	if params.ConversationFactory == nil {
		params.ConversationFactory = func(tx *gorm.DB) conversationOpener { return chat.NewRepository(tx) }
	}
	return &service{
		tx:          params.TxRunner,
		repo:        params.Repo,
		gigs:        params.Gigs,
		profiles:    params.Profiles,
		quotas:      params.Quotas,
		outbox:      params.Outbox,
		logg:        params.Logger,
		repoFactory: params.RepoFactory,
		gigFactory:  params.GigRepoFactory,
		convFactory: params.ConversationFactory,
	}, nil
}

// Submit records an offer and charges one proposal credit in the same transaction.
func (s *service) Submit(ctx context.Context, providerID, gigID uuid.UUID, req SubmitRequest) (*ProposalDTO, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message is required")
	}
	if req.PriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}

	var proposal *models.Proposal
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		gig, err := s.loadGig(ctx, s.gigFactory(tx), gigID, false)
		if err != nil {
			return err
		}
		if gig.ClientID == providerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "cannot propose on your own gig")
		}
		if gig.Status != enums.GigStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "gig is not accepting proposals").
				WithDetails(map[string]any{"status": gig.Status})
		}

		proposal = &models.Proposal{
			ID:         uuid.New(),
			GigID:      gig.ID,
			ProviderID: providerID,
			Message:    message,
			PriceCents: req.PriceCents,
			Status:     enums.ProposalStatusSubmitted,
		}
		if err := s.repoFactory(tx).Create(ctx, proposal); err != nil {
			if db.IsUniqueViolation(err, UniqueGigProvider) {
				return pkgerrors.New(pkgerrors.CodeConflict, "you already submitted a proposal for this gig")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create proposal")
		}
		if err := s.quotas.Consume(ctx, tx, providerID, enums.QuotaKindProposal); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventProposalSubmitted, proposal, gig, providerID, enums.UserRoleProvider)
	})
	if err != nil {
		return nil, err
	}

	dto := FromModel(*proposal)
	return &dto, nil
}

// ListForGig is visible to the gig owner and admins.
func (s *service) ListForGig(ctx context.Context, userID uuid.UUID, role enums.UserRole, gigID uuid.UUID) ([]ProposalDTO, error) {
	gig, err := s.loadGig(ctx, s.gigs, gigID, false)
	if err != nil {
		return nil, err
	}
	if gig.ClientID != userID && role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the gig owner can view its proposals")
	}

	rows, err := s.repo.ListForGig(ctx, gigID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list proposals")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProviderID)
	}
	providers, err := s.profiles.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load providers")
	}

	out := make([]ProposalDTO, 0, len(rows))
	for _, row := range rows {
		dto := FromModel(row)
		if p, ok := providers[row.ProviderID]; ok {
			dto.Provider = summaryFromProfile(p)
		}
		out = append(out, dto)
	}
	return out, nil
}

func (s *service) ListMine(ctx context.Context, providerID uuid.UUID, params pagination.Params) (pagination.Page[ProposalDTO], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[ProposalDTO]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByProvider(ctx, providerID, params)
	if err != nil {
		return pagination.Page[ProposalDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list proposals")
	}
	dtos := make([]ProposalDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	return pagination.BuildPage(dtos, params.Limit, func(p ProposalDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}

// Accept assigns the provider, moves the gig to in_progress, declines the
// remaining offers and opens the client/provider conversation atomically.
func (s *service) Accept(ctx context.Context, clientID, proposalID uuid.UUID) (*AcceptResult, error) {
	var result AcceptResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repoFactory(tx)
		gigRepo := s.gigFactory(tx)

		proposal, err := s.loadProposal(ctx, repo, proposalID, true)
		if err != nil {
			return err
		}
		gig, err := s.loadGig(ctx, gigRepo, proposal.GigID, true)
		if err != nil {
			return err
		}
		if gig.ClientID != clientID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the gig owner can accept proposals")
		}
		if gig.Status != enums.GigStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "gig is no longer open").
				WithDetails(map[string]any{"status": gig.Status})
		}
		if proposal.Status != enums.ProposalStatusSubmitted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proposal can no longer be accepted").
				WithDetails(map[string]any{"status": proposal.Status})
		}

		ok, err := repo.Transition(ctx, proposal.ID, enums.ProposalStatusSubmitted, enums.ProposalStatusAccepted)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "accept proposal")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proposal was modified concurrently")
		}
		proposal.Status = enums.ProposalStatusAccepted

		declined, err := repo.DeclineOthers(ctx, gig.ID, proposal.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decline other proposals")
		}

		ok, err = gigRepo.Transition(ctx, gig.ID, []enums.GigStatus{enums.GigStatusOpen}, enums.GigStatusInProgress, map[string]any{
			"provider_id":  proposal.ProviderID,
			"agreed_cents": proposal.PriceCents,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign provider")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "gig was modified concurrently")
		}

		gigID := gig.ID
		conv, _, err := s.convFactory(tx).GetOrCreate(ctx, &models.Conversation{
			ID:         uuid.New(),
			GigID:      &gigID,
			ClientID:   clientID,
			ProviderID: proposal.ProviderID,
			StartedBy:  clientID,
			CreatedAt:  time.Now().UTC(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open conversation")
		}

		if err := s.emit(ctx, tx, enums.EventProposalAccepted, proposal, gig, clientID, enums.UserRoleClient); err != nil {
			return err
		}

		result = AcceptResult{
			Proposal:       FromModel(*proposal),
			ConversationID: conv.ID,
			DeclinedCount:  len(declined),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"proposal_id":     proposalID.String(),
		"conversation_id": result.ConversationID.String(),
		"declined":        result.DeclinedCount,
	}), "proposals.accepted")
	return &result, nil
}

// Withdraw pulls back a submitted proposal. The consumed credit is not returned.
func (s *service) Withdraw(ctx context.Context, providerID, proposalID uuid.UUID) (*ProposalDTO, error) {
	var proposal *models.Proposal
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repoFactory(tx)
		var err error
		proposal, err = s.loadProposal(ctx, repo, proposalID, true)
		if err != nil {
			return err
		}
		if proposal.ProviderID != providerID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "proposal not found")
		}
		if proposal.Status != enums.ProposalStatusSubmitted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only submitted proposals can be withdrawn").
				WithDetails(map[string]any{"status": proposal.Status})
		}
		ok, err := repo.Transition(ctx, proposal.ID, enums.ProposalStatusSubmitted, enums.ProposalStatusWithdrawn)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "withdraw proposal")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proposal was modified concurrently")
		}
		proposal.Status = enums.ProposalStatusWithdrawn
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(*proposal)
	return &dto, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, proposal *models.Proposal, gig *models.Gig, actorID uuid.UUID, role enums.UserRole) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateProposal,
		AggregateID:   proposal.ID,
		Actor:         &outbox.ActorRef{UserID: actorID, Role: string(role)},
		Data: payloads.ProposalEvent{
			ProposalID: proposal.ID,
			GigID:      gig.ID,
			GigTitle:   gig.Title,
			ProviderID: proposal.ProviderID,
			ClientID:   gig.ClientID,
			PriceCents: proposal.PriceCents,
			Status:     proposal.Status,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit proposal event")
	}
	return nil
}

func (s *service) loadGig(ctx context.Context, repo gigStore, id uuid.UUID, lock bool) (*models.Gig, error) {
	var (
		gig *models.Gig
		err error
	)
	if lock {
		gig, err = repo.FindByIDForUpdate(ctx, id)
	} else {
		gig, err = repo.FindByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gig")
	}
	return gig, nil
}

func (s *service) loadProposal(ctx context.Context, repo proposalRepository, id uuid.UUID, lock bool) (*models.Proposal, error) {
	var (
		proposal *models.Proposal
		err      error
	)
	if lock {
		proposal, err = repo.FindByIDForUpdate(ctx, id)
	} else {
		proposal, err = repo.FindByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "proposal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load proposal")
	}
	return proposal, nil
}
