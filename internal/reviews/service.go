package reviews

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// Service records ratings between the parties of a completed gig.
type Service interface {
	Create(ctx context.Context, reviewerID, gigID uuid.UUID, req CreateRequest) (*ReviewDTO, error)
	ListForProfile(ctx context.Context, profileID uuid.UUID, params pagination.Params) (pagination.Page[ReviewDTO], error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	ListForReviewee(ctx context.Context, revieweeID uuid.UUID, params pagination.Params) ([]models.Review, error)
	Aggregate(ctx context.Context, revieweeID uuid.UUID) (float64, int, error)
}

type gigReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
}

type ratingWriter interface {
	UpdateRating(ctx context.Context, id uuid.UUID, avg float64, count int) error
}

type profileLookup interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	TxRunner       txRunner
	Repo           reviewRepository
	Profiles       profileLookup
	Outbox         outboxEmitter
	Logger         *logger.Logger
	RepoFactory    func(tx *gorm.DB) reviewRepository
	GigFactory     func(tx *gorm.DB) gigReader
	RatingsFactory func(tx *gorm.DB) ratingWriter
}

type service struct {
	tx             txRunner
	repo           reviewRepository
	profiles       profileLookup
	outbox         outboxEmitter
	logg           *logger.Logger
	repoFactory    func(tx *gorm.DB) reviewRepository
	gigFactory     func(tx *gorm.DB) gigReader
	ratingsFactory func(tx *gorm.DB) ratingWriter
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, fmt.Errorf("tx runner is required")
	case params.Repo == nil:
		return nil, fmt.Errorf("review repository is required")
	case params.Profiles == nil:
		return nil, fmt.Errorf("profile lookup is required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if params.RepoFactory == nil {
		params.RepoFactory = func(tx *gorm.DB) reviewRepository { return NewRepository(tx) }
	}
	if params.GigFactory == nil {
		params.GigFactory = func(tx *gorm.DB) gigReader { return gigs.NewRepository(tx) }
	}
	if params.RatingsFactory == nil {
		params.RatingsFactory = func(tx *gorm.DB) ratingWriter { return profiles.NewRepository(tx) }
	}
	return &service{
		tx:             params.TxRunner,
		repo:           params.Repo,
		profiles:       params.Profiles,
		outbox:         params.Outbox,
		logg:           params.Logger,
		repoFactory:    params.RepoFactory,
		gigFactory:     params.GigFactory,
		ratingsFactory: params.RatingsFactory,
	}, nil
}

// Create stores the review and refreshes the reviewee's rating aggregate in
// the same transaction.
func (s *service) Create(ctx context.Context, reviewerID, gigID uuid.UUID, req CreateRequest) (*ReviewDTO, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	var comment *string
	if trimmed := strings.TrimSpace(req.Comment); trimmed != "" {
		comment = &trimmed
	}

	var review *models.Review
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		gig, err := s.gigFactory(tx).FindByID(ctx, gigID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gig")
		}
		if gig.Status != enums.GigStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed gigs can be reviewed")
		}
		revieweeID, ok := counterpart(gig, reviewerID)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only gig participants can leave a review")
		}

		review = &models.Review{
			ID:         uuid.New(),
			GigID:      gig.ID,
			ReviewerID: reviewerID,
			RevieweeID: revieweeID,
			Rating:     req.Rating,
			Comment:    comment,
		}
		repo := s.repoFactory(tx)
		if err := repo.Create(ctx, review); err != nil {
			if db.IsUniqueViolation(err, UniqueGigReviewer) {
				return pkgerrors.New(pkgerrors.CodeConflict, "you already reviewed this gig")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create review")
		}

		avg, count, err := repo.Aggregate(ctx, revieweeID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate ratings")
		}
		if err := s.ratingsFactory(tx).UpdateRating(ctx, revieweeID, math.Round(avg*100)/100, count); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update rating")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReviewCreated,
			AggregateType: enums.AggregateReview,
			AggregateID:   review.ID,
			Actor:         &outbox.ActorRef{UserID: reviewerID},
			Data: payloads.ReviewCreatedEvent{
				ReviewID:   review.ID,
				GigID:      gig.ID,
				ReviewerID: reviewerID,
				RevieweeID: revieweeID,
				Rating:     review.Rating,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit review event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"review_id": review.ID.String(),
		"gig_id":    gigID.String(),
		"rating":    review.Rating,
	}), "reviews.created")
	dto := FromModel(*review)
	return &dto, nil
}

func (s *service) ListForProfile(ctx context.Context, profileID uuid.UUID, params pagination.Params) (pagination.Page[ReviewDTO], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[ReviewDTO]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListForReviewee(ctx, profileID, params)
	if err != nil {
		return pagination.Page[ReviewDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list reviews")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ReviewerID)
	}
	reviewers, err := s.profiles.FindByIDs(ctx, ids)
	if err != nil {
		return pagination.Page[ReviewDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load reviewers")
	}

	dtos := make([]ReviewDTO, 0, len(rows))
	for _, row := range rows {
		dto := FromModel(row)
		if p, ok := reviewers[row.ReviewerID]; ok {
			dto.ReviewerName = p.DisplayName
		}
		dtos = append(dtos, dto)
	}
	return pagination.BuildPage(dtos, params.Limit, func(r ReviewDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	}), nil
}

func counterpart(gig *models.Gig, reviewerID uuid.UUID) (uuid.UUID, bool) {
	if gig.ProviderID == nil {
		return uuid.Nil, false
	}
	switch reviewerID {
	case gig.ClientID:
		return *gig.ProviderID, true
	case *gig.ProviderID:
		return gig.ClientID, true
	}
	return uuid.Nil, false
}
