package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
	pkgstripe "github.com/angelmondragon/gigmarket-backend/pkg/stripe"
)

// Service runs gig escrow on Stripe Connect: authorize on hire, capture on
// release, cancel or refund on dispute.
type Service interface {
	CreateEscrow(ctx context.Context, clientID, gigID uuid.UUID) (*EscrowDTO, error)
	Release(ctx context.Context, clientID, paymentID uuid.UUID) (*PaymentDTO, error)
	Refund(ctx context.Context, actor Actor, paymentID uuid.UUID, reason string) (*PaymentDTO, error)
	OnboardProvider(ctx context.Context, profileID uuid.UUID, returnURL, refreshURL string) (*OnboardingDTO, error)
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[PaymentDTO], error)
	ApplyIntentUpdate(ctx context.Context, update IntentUpdate) (bool, error)
	SyncConnectedAccount(ctx context.Context, accountID string, payoutsEnabled bool) error
	AutoRelease(ctx context.Context, now time.Time, limit int) (int, error)
}

// IntentUpdate is a processor-confirmed state change for a PaymentIntent.
type IntentUpdate struct {
	IntentID string
	Status   enums.PaymentStatus
	Reason   string
	RefundID string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByIntentForUpdate(ctx context.Context, intentID string) (*models.Payment, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Transition(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus, next enums.PaymentStatus, extra map[string]any) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Payment, error)
	ListHeldForCompletedGigs(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
}

type gigReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
}

type profileStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	SetPayoutsEnabledByAccount(ctx context.Context, accountID string, enabled bool) (int64, error)
}

type gateway interface {
	CreateEscrowIntent(ctx context.Context, in pkgstripe.EscrowIntentInput) (*pkgstripe.IntentResult, error)
	CaptureIntent(ctx context.Context, intentID string) (*pkgstripe.IntentResult, error)
	CancelIntent(ctx context.Context, intentID string) (*pkgstripe.IntentResult, error)
	RefundIntent(ctx context.Context, intentID string) (string, error)
	CreateExpressAccount(ctx context.Context, email string, metadata map[string]string) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams bundles payment dependencies.
type ServiceParams struct {
	TxRunner         txRunner
	Repo             paymentRepository
	Gigs             gigReader
	Profiles         profileStore
	Gateway          gateway
	Outbox           outboxEmitter
	Logger           *logger.Logger
	Fees             FeePolicy
	Currency         string
	AutoReleaseAfter time.Duration
	RepoFactory      func(tx *gorm.DB) paymentRepository
	ProfileFactory   func(tx *gorm.DB) profileStore
}

type service struct {
	tx               txRunner
	repo             paymentRepository
	gigs             gigReader
	profiles         profileStore
	gateway          gateway
	outbox           outboxEmitter
	logg             *logger.Logger
	fees             FeePolicy
	currency         string
	autoReleaseAfter time.Duration
	repoFactory      func(tx *gorm.DB) paymentRepository
	profileFactory   func(tx *gorm.DB) profileStore
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, fmt.Errorf("tx runner is required")
	case params.Repo == nil:
		return nil, fmt.Errorf("payment repository is required")
	case params.Gigs == nil:
		return nil, fmt.Errorf("gig reader is required")
	case params.Profiles == nil:
		return nil, fmt.Errorf("profile store is required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway is required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if params.Currency == "" {
		params.Currency = "usd"
	}
	if params.RepoFactory == nil {
		params.RepoFactory = func(tx *gorm.DB) paymentRepository { return NewRepository(tx) }
	}
	if params.ProfileFactory == nil {
		params.ProfileFactory = func(tx *gorm.DB) profileStore { return profiles.NewRepository(tx) }
	}
	return &service{
		tx:               params.TxRunner,
		repo:             params.Repo,
		gigs:             params.Gigs,
		profiles:         params.Profiles,
		gateway:          params.Gateway,
		outbox:           params.Outbox,
		logg:             params.Logger,
		fees:             params.Fees,
		currency:         params.Currency,
		autoReleaseAfter: params.AutoReleaseAfter,
		repoFactory:      params.RepoFactory,
		profileFactory:   params.ProfileFactory,
	}, nil
}

// CreateEscrow authorizes the agreed price of an in-progress gig against the
// provider's connected account. The row is written before calling Stripe so
// the partial unique index rejects a concurrent second escrow.
func (s *service) CreateEscrow(ctx context.Context, clientID, gigID uuid.UUID) (*EscrowDTO, error) {
	gig, err := s.gigs.FindByID(ctx, gigID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gig")
	}
	if gig.ClientID != clientID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the gig owner can fund escrow")
	}
	if gig.Status != enums.GigStatusInProgress || gig.ProviderID == nil || gig.AgreedCents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow requires a gig in progress with an accepted proposal")
	}

	provider, err := s.profiles.FindByID(ctx, *gig.ProviderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load provider")
	}
	if provider.StripeAccountID == nil || !provider.PayoutsEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "provider cannot receive payouts yet")
	}

	amount := *gig.AgreedCents
	payment := &models.Payment{
		ID:          uuid.New(),
		GigID:       gig.ID,
		PayerID:     clientID,
		PayeeID:     provider.ID,
		AmountCents: amount,
		FeeCents:    s.fees.Fee(amount),
		Currency:    gig.Currency,
		Status:      enums.PaymentStatusRequiresPayment,
	}
	if payment.Currency == "" {
		payment.Currency = s.currency
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, UniqueActiveGig) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "gig already has an active escrow")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
	}

	intent, err := s.gateway.CreateEscrowIntent(ctx, pkgstripe.EscrowIntentInput{
		AmountCents:        payment.AmountCents,
		FeeCents:           payment.FeeCents,
		Currency:           payment.Currency,
		DestinationAccount: *provider.StripeAccountID,
		Description:        "Escrow for gig: " + gig.Title,
		IdempotencyKey:     "escrow-" + payment.ID.String(),
		Metadata: map[string]string{
			"payment_id": payment.ID.String(),
			"gig_id":     gig.ID.String(),
		},
	})
	if err != nil {
		reason := "intent creation failed"
		if _, terr := s.repo.Transition(ctx, payment.ID, []enums.PaymentStatus{enums.PaymentStatusRequiresPayment}, enums.PaymentStatusFailed, map[string]any{"failure_reason": reason}); terr != nil {
			s.logg.Error(ctx, "payments.escrow.mark_failed", terr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	if err := s.repo.Update(ctx, payment.ID, map[string]any{"stripe_payment_intent_id": intent.ID}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payment intent")
	}
	payment.StripePaymentIntentID = &intent.ID

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"gig_id":     gig.ID.String(),
		"amount":     payment.AmountCents,
		"fee":        payment.FeeCents,
	}), "payments.escrow.created")

	return &EscrowDTO{Payment: FromModel(*payment), ClientSecret: intent.ClientSecret}, nil
}

// Release captures held funds. Stripe confirms with payment_intent.succeeded;
// a synchronous success is applied right away and the webhook becomes a no-op.
func (s *service) Release(ctx context.Context, clientID, paymentID uuid.UUID) (*PaymentDTO, error) {
	payment, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.PayerID != clientID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return s.capture(ctx, payment)
}

func (s *service) capture(ctx context.Context, payment *models.Payment) (*PaymentDTO, error) {
	if payment.Status != enums.PaymentStatusHeld || payment.StripePaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only held payments can be released").
			WithDetails(map[string]any{"status": payment.Status})
	}
	intent, err := s.gateway.CaptureIntent(ctx, *payment.StripePaymentIntentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePayment, err, "capture payment")
	}
	if intent.Status == "succeeded" {
		if _, err := s.ApplyIntentUpdate(ctx, IntentUpdate{IntentID: intent.ID, Status: enums.PaymentStatusReleased}); err != nil {
			return nil, err
		}
	}
	return s.reload(ctx, payment.ID)
}

// Refund voids a held authorization (payer or admin) or refunds a released
// payment (admin only).
func (s *service) Refund(ctx context.Context, actor Actor, paymentID uuid.UUID, reason string) (*PaymentDTO, error) {
	payment, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	isAdmin := actor.Role == enums.UserRoleAdmin
	if payment.PayerID != actor.UserID && !isAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if reason == "" {
		reason = "refund requested"
	}

	switch payment.Status {
	case enums.PaymentStatusRequiresPayment, enums.PaymentStatusHeld:
		if payment.StripePaymentIntentID != nil {
			if _, err := s.gateway.CancelIntent(ctx, *payment.StripePaymentIntentID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodePayment, err, "cancel payment intent")
			}
		}
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.repoFactory(tx).Transition(ctx, payment.ID,
				[]enums.PaymentStatus{enums.PaymentStatusRequiresPayment, enums.PaymentStatusHeld},
				enums.PaymentStatusCancelled,
				map[string]any{"failure_reason": reason})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel payment")
			}
			if !ok {
				return nil
			}
			payment.Status = enums.PaymentStatusCancelled
			return s.emit(ctx, tx, enums.EventPaymentFailed, payment, reason)
		})
		if err != nil {
			return nil, err
		}
	case enums.PaymentStatusReleased:
		if !isAdmin {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "released payments can only be refunded by support")
		}
		refundID, err := s.gateway.RefundIntent(ctx, *payment.StripePaymentIntentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePayment, err, "refund payment")
		}
		if err := s.repo.Update(ctx, payment.ID, map[string]any{"stripe_refund_id": refundID, "failure_reason": reason}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store refund")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment cannot be refunded").
			WithDetails(map[string]any{"status": payment.Status})
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"actor_id":   actor.UserID.String(),
		"reason":     reason,
	}), "payments.refund.requested")
	return s.reload(ctx, payment.ID)
}

// OnboardProvider creates the Express account once and returns a fresh onboarding link.
func (s *service) OnboardProvider(ctx context.Context, profileID uuid.UUID, returnURL, refreshURL string) (*OnboardingDTO, error) {
	var (
		accountID string
		enabled   bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.profileFactory(tx)
		profile, err := store.FindByIDForUpdate(ctx, profileID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
		}
		if !profile.IsProvider() {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only providers can receive payouts")
		}
		enabled = profile.PayoutsEnabled
		if profile.StripeAccountID != nil && *profile.StripeAccountID != "" {
			accountID = *profile.StripeAccountID
			return nil
		}
		accountID, err = s.gateway.CreateExpressAccount(ctx, profile.Email, map[string]string{"profile_id": profile.ID.String()})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create connected account")
		}
		if err := store.Update(ctx, profile.ID, map[string]any{"stripe_account_id": accountID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store connected account")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	url, err := s.gateway.CreateOnboardingLink(ctx, accountID, refreshURL, returnURL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create onboarding link")
	}
	return &OnboardingDTO{AccountID: accountID, URL: url, PayoutsEnabled: enabled}, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[PaymentDTO], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[PaymentDTO]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return pagination.Page[PaymentDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	dtos := make([]PaymentDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	return pagination.BuildPage(dtos, params.Limit, func(p PaymentDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}

// allowedFrom lists, per target status, the states a webhook may move a payment out of.
var allowedFrom = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusHeld:      {enums.PaymentStatusRequiresPayment},
	enums.PaymentStatusReleased:  {enums.PaymentStatusHeld},
	enums.PaymentStatusFailed:    {enums.PaymentStatusRequiresPayment},
	enums.PaymentStatusCancelled: {enums.PaymentStatusRequiresPayment, enums.PaymentStatusHeld},
	enums.PaymentStatusRefunded:  {enums.PaymentStatusReleased},
}

var eventFor = map[enums.PaymentStatus]enums.OutboxEventType{
	enums.PaymentStatusHeld:      enums.EventPaymentHeld,
	enums.PaymentStatusReleased:  enums.EventPaymentReleased,
	enums.PaymentStatusFailed:    enums.EventPaymentFailed,
	enums.PaymentStatusCancelled: enums.EventPaymentFailed,
	enums.PaymentStatusRefunded:  enums.EventPaymentRefunded,
}

// ApplyIntentUpdate moves the payment behind an intent to the confirmed status.
// Unknown intents and replays are acknowledged without change.
func (s *service) ApplyIntentUpdate(ctx context.Context, update IntentUpdate) (bool, error) {
	sources, ok := allowedFrom[update.Status]
	if !ok {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment status").
			WithDetails(map[string]any{"status": update.Status})
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"intent_id": update.IntentID,
		"status":    string(update.Status),
	})

	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repoFactory(tx)
		payment, err := repo.FindByIntentForUpdate(ctx, update.IntentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.logg.Warn(ctx, "payments.intent.unknown")
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
		}
		if payment.Status == update.Status || !containsStatus(sources, payment.Status) {
			s.logg.Info(s.logg.WithField(ctx, "current", string(payment.Status)), "payments.intent.skipped")
			return nil
		}

		now := time.Now().UTC()
		extra := map[string]any{}
		switch update.Status {
		case enums.PaymentStatusHeld:
			extra["held_at"] = now
			payment.HeldAt = &now
		case enums.PaymentStatusReleased:
			extra["released_at"] = now
			payment.ReleasedAt = &now
		case enums.PaymentStatusRefunded:
			extra["refunded_at"] = now
			payment.RefundedAt = &now
			if update.RefundID != "" {
				extra["stripe_refund_id"] = update.RefundID
			}
		case enums.PaymentStatusFailed, enums.PaymentStatusCancelled:
			if update.Reason != "" {
				extra["failure_reason"] = update.Reason
			}
		}

		ok, err := repo.Transition(ctx, payment.ID, sources, update.Status, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment")
		}
		if !ok {
			return nil
		}
		payment.Status = update.Status
		applied = true
		return s.emit(ctx, tx, eventFor[update.Status], payment, update.Reason)
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.logg.Info(ctx, "payments.intent.applied")
	}
	return applied, nil
}

func (s *service) SyncConnectedAccount(ctx context.Context, accountID string, payoutsEnabled bool) error {
	n, err := s.profiles.SetPayoutsEnabledByAccount(ctx, accountID, payoutsEnabled)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payouts flag")
	}
	if n == 0 {
		s.logg.Warn(s.logg.WithField(ctx, "account_id", accountID), "payments.account.unknown")
	}
	return nil
}

// AutoRelease captures escrows whose gig was completed longer ago than the
// configured grace period and the client never released.
func (s *service) AutoRelease(ctx context.Context, now time.Time, limit int) (int, error) {
	if s.autoReleaseAfter <= 0 {
		return 0, nil
	}
	due, err := s.repo.ListHeldForCompletedGigs(ctx, now.Add(-s.autoReleaseAfter), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list due escrows")
	}
	released := 0
	for i := range due {
		if _, err := s.capture(ctx, &due[i]); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "payment_id", due[i].ID.String()), "payments.auto_release.failed", err)
			continue
		}
		released++
	}
	return released, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payment *models.Payment, reason string) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentEvent{
			PaymentID:   payment.ID,
			GigID:       payment.GigID,
			PayerID:     payment.PayerID,
			PayeeID:     payment.PayeeID,
			AmountCents: payment.AmountCents,
			FeeCents:    payment.FeeCents,
			Currency:    payment.Currency,
			Status:      payment.Status,
			Reason:      reason,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payment event")
	}
	return nil
}

func (s *service) loadPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	return payment, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*PaymentDTO, error) {
	payment, err := s.loadPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(*payment)
	return &dto, nil
}

func containsStatus(list []enums.PaymentStatus, status enums.PaymentStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}
