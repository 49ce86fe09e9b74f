package payments

import (
	"context"
	"errors"
	"io"
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
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
	pkgstripe "github.com/angelmondragon/gigmarket-backend/pkg/stripe"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type memoryPaymentRepo struct {
	rows map[uuid.UUID]*models.Payment
}

func (m *memoryPaymentRepo) Create(_ context.Context, p *models.Payment) error {
	for _, row := range m.rows {
		if row.GigID == p.GigID && (row.Status == enums.PaymentStatusRequiresPayment || row.Status == enums.PaymentStatusHeld || row.Status == enums.PaymentStatusReleased) {
			return errors.New(`duplicate key value violates unique constraint "payments_active_gig_key"`)
		}
	}
	p.CreatedAt = time.Now().UTC()
	cp := *p
	m.rows[p.ID] = &cp
	return nil
}

func (m *memoryPaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memoryPaymentRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return m.FindByID(ctx, id)
}

func (m *memoryPaymentRepo) FindByIntentForUpdate(_ context.Context, intentID string) (*models.Payment, error) {
	for _, row := range m.rows {
		if row.StripePaymentIntentID != nil && *row.StripePaymentIntentID == intentID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryPaymentRepo) Update(_ context.Context, id uuid.UUID, updates map[string]any) error {
	row, ok := m.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["stripe_payment_intent_id"].(string); ok {
		row.StripePaymentIntentID = &v
	}
	if v, ok := updates["stripe_refund_id"].(string); ok {
		row.StripeRefundID = &v
	}
	return nil
}

func (m *memoryPaymentRepo) Transition(_ context.Context, id uuid.UUID, from []enums.PaymentStatus, next enums.PaymentStatus, extra map[string]any) (bool, error) {
	row, ok := m.rows[id]
	if !ok || !containsStatus(from, row.Status) {
		return false, nil
	}
	row.Status = next
	if v, ok := extra["held_at"].(time.Time); ok {
		row.HeldAt = &v
	}
	if v, ok := extra["released_at"].(time.Time); ok {
		row.ReleasedAt = &v
	}
	if v, ok := extra["failure_reason"].(string); ok {
		row.FailureReason = &v
	}
	return true, nil
}

func (m *memoryPaymentRepo) ListForUser(_ context.Context, userID uuid.UUID, _ pagination.Params) ([]models.Payment, error) {
	out := []models.Payment{}
	for _, row := range m.rows {
		if row.PayerID == userID || row.PayeeID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memoryPaymentRepo) ListHeldForCompletedGigs(_ context.Context, _ time.Time, _ int) ([]models.Payment, error) {
	out := []models.Payment{}
	for _, row := range m.rows {
		if row.Status == enums.PaymentStatusHeld {
			out = append(out, *row)
		}
	}
	return out, nil
}

type stubGigs map[uuid.UUID]models.Gig

func (s stubGigs) FindByID(_ context.Context, id uuid.UUID) (*models.Gig, error) {
	g, ok := s[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &g, nil
}

type memoryProfiles struct {
	rows map[uuid.UUID]*models.Profile
}

func (m *memoryProfiles) FindByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	p, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryProfiles) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return m.FindByID(ctx, id)
}

func (m *memoryProfiles) Update(_ context.Context, id uuid.UUID, updates map[string]any) error {
	if v, ok := updates["stripe_account_id"].(string); ok {
		m.rows[id].StripeAccountID = &v
	}
	return nil
}

func (m *memoryProfiles) SetPayoutsEnabledByAccount(_ context.Context, accountID string, enabled bool) (int64, error) {
	var n int64
	for _, p := range m.rows {
		if p.StripeAccountID != nil && *p.StripeAccountID == accountID {
			p.PayoutsEnabled = enabled
			n++
		}
	}
	return n, nil
}

type fakeGateway struct {
	intents       []pkgstripe.EscrowIntentInput
	captured      []string
	cancelled     []string
	refunded      []string
	accounts      int
	captureStatus string
	failCreate    bool
}

func (f *fakeGateway) CreateEscrowIntent(_ context.Context, in pkgstripe.EscrowIntentInput) (*pkgstripe.IntentResult, error) {
	if f.failCreate {
		return nil, errors.New("card_declined")
	}
	f.intents = append(f.intents, in)
	return &pkgstripe.IntentResult{ID: "pi_" + in.IdempotencyKey, ClientSecret: "secret_" + in.IdempotencyKey, Status: "requires_payment_method"}, nil
}

func (f *fakeGateway) CaptureIntent(_ context.Context, id string) (*pkgstripe.IntentResult, error) {
	f.captured = append(f.captured, id)
	return &pkgstripe.IntentResult{ID: id, Status: f.captureStatus}, nil
}

func (f *fakeGateway) CancelIntent(_ context.Context, id string) (*pkgstripe.IntentResult, error) {
	f.cancelled = append(f.cancelled, id)
	return &pkgstripe.IntentResult{ID: id, Status: "canceled"}, nil
}

func (f *fakeGateway) RefundIntent(_ context.Context, id string) (string, error) {
	f.refunded = append(f.refunded, id)
	return "re_" + id, nil
}

func (f *fakeGateway) CreateExpressAccount(_ context.Context, _ string, _ map[string]string) (string, error) {
	f.accounts++
	return "acct_new", nil
}

func (f *fakeGateway) CreateOnboardingLink(_ context.Context, accountID, _, _ string) (string, error) {
	return "https://connect.stripe.com/setup/" + accountID, nil
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type paymentFixture struct {
	svc      Service
	repo     *memoryPaymentRepo
	profiles *memoryProfiles
	gateway  *fakeGateway
	outbox   *recordingOutbox
	clientID uuid.UUID
	provider *models.Profile
	gig      models.Gig
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	clientID := uuid.New()
	acct := "acct_provider"
	provider := &models.Profile{ID: uuid.New(), Role: enums.UserRoleProvider, Email: "pro@example.com", StripeAccountID: &acct, PayoutsEnabled: true}
	agreed := int64(20000)
	gig := models.Gig{ID: uuid.New(), ClientID: clientID, ProviderID: &provider.ID, AgreedCents: &agreed, Status: enums.GigStatusInProgress, Currency: "usd", Title: "Roof repair"}

	repo := &memoryPaymentRepo{rows: map[uuid.UUID]*models.Payment{}}
	profiles := &memoryProfiles{rows: map[uuid.UUID]*models.Profile{provider.ID: provider}}
	gw := &fakeGateway{captureStatus: "processing"}
	box := &recordingOutbox{}
	fees, err := NewFeePolicy("10")
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		TxRunner:         stubTxRunner{},
		Repo:             repo,
		Gigs:             stubGigs{gig.ID: gig},
		Profiles:         profiles,
		Gateway:          gw,
		Outbox:           box,
		Logger:           logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Fees:             fees,
		AutoReleaseAfter: 72 * time.Hour,
		RepoFactory:      func(*gorm.DB) paymentRepository { return repo },
		ProfileFactory:   func(*gorm.DB) profileStore { return profiles },
	})
	require.NoError(t, err)
	return &paymentFixture{svc: svc, repo: repo, profiles: profiles, gateway: gw, outbox: box, clientID: clientID, provider: provider, gig: gig}
}

func (f *paymentFixture) held(t *testing.T) *EscrowDTO {
	t.Helper()
	escrow, err := f.svc.CreateEscrow(context.Background(), f.clientID, f.gig.ID)
	require.NoError(t, err)
	applied, err := f.svc.ApplyIntentUpdate(context.Background(), IntentUpdate{IntentID: "pi_escrow-" + escrow.Payment.ID.String(), Status: enums.PaymentStatusHeld})
	require.NoError(t, err)
	require.True(t, applied)
	return escrow
}

func TestCreateEscrow(t *testing.T) {
	f := newPaymentFixture(t)
	escrow, err := f.svc.CreateEscrow(context.Background(), f.clientID, f.gig.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusRequiresPayment, escrow.Payment.Status)
	assert.EqualValues(t, 20000, escrow.Payment.AmountCents)
	assert.EqualValues(t, 2000, escrow.Payment.FeeCents)
	assert.EqualValues(t, 18000, escrow.Payment.PayoutCents)
	assert.Equal(t, "secret_escrow-"+escrow.Payment.ID.String(), escrow.ClientSecret)

	require.Len(t, f.gateway.intents, 1)
	assert.Equal(t, "acct_provider", f.gateway.intents[0].DestinationAccount)
	assert.EqualValues(t, 2000, f.gateway.intents[0].FeeCents)

	_, err = f.svc.CreateEscrow(context.Background(), f.clientID, f.gig.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "one active escrow per gig")
}

func TestCreateEscrowPreconditions(t *testing.T) {
	f := newPaymentFixture(t)
	_, err := f.svc.CreateEscrow(context.Background(), uuid.New(), f.gig.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	f.provider.PayoutsEnabled = false
	_, err = f.svc.CreateEscrow(context.Background(), f.clientID, f.gig.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCreateEscrowGatewayFailureMarksFailed(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.failCreate = true

	_, err := f.svc.CreateEscrow(context.Background(), f.clientID, f.gig.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Len(t, f.repo.rows, 1)
	for _, row := range f.repo.rows {
		assert.Equal(t, enums.PaymentStatusFailed, row.Status)
	}

	f.gateway.failCreate = false
	_, err = f.svc.CreateEscrow(context.Background(), f.clientID, f.gig.ID)
	assert.NoError(t, err, "a failed attempt does not block a retry")
}

func TestWebhookLifecycleIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t)
	escrow := f.held(t)
	intentID := "pi_escrow-" + escrow.Payment.ID.String()

	applied, err := f.svc.ApplyIntentUpdate(context.Background(), IntentUpdate{IntentID: intentID, Status: enums.PaymentStatusHeld})
	require.NoError(t, err)
	assert.False(t, applied, "replayed webhook is a no-op")

	applied, err = f.svc.ApplyIntentUpdate(context.Background(), IntentUpdate{IntentID: intentID, Status: enums.PaymentStatusRefunded})
	require.NoError(t, err)
	assert.False(t, applied, "held payments cannot jump to refunded")

	applied, err = f.svc.ApplyIntentUpdate(context.Background(), IntentUpdate{IntentID: "pi_unknown", Status: enums.PaymentStatusHeld})
	require.NoError(t, err)
	assert.False(t, applied)

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventPaymentHeld, f.outbox.events[0].EventType)
	payload := f.outbox.events[0].Data.(payloads.PaymentEvent)
	assert.Equal(t, f.provider.ID, payload.PayeeID)
}

func TestReleaseCapturesAndAppliesSyncSuccess(t *testing.T) {
	f := newPaymentFixture(t)
	escrow := f.held(t)

	_, err := f.svc.Release(context.Background(), uuid.New(), escrow.Payment.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	f.gateway.captureStatus = "succeeded"
	out, err := f.svc.Release(context.Background(), f.clientID, escrow.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusReleased, out.Status)
	assert.NotNil(t, out.ReleasedAt)
	assert.Len(t, f.gateway.captured, 1)

	_, err = f.svc.Release(context.Background(), f.clientID, escrow.Payment.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRefundHeldCancelsIntent(t *testing.T) {
	f := newPaymentFixture(t)
	escrow := f.held(t)

	out, err := f.svc.Refund(context.Background(), Actor{UserID: f.clientID, Role: enums.UserRoleClient}, escrow.Payment.ID, "provider no-show")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCancelled, out.Status)
	assert.Len(t, f.gateway.cancelled, 1)
	last := f.outbox.events[len(f.outbox.events)-1]
	assert.Equal(t, enums.EventPaymentFailed, last.EventType)
	assert.Equal(t, "provider no-show", last.Data.(payloads.PaymentEvent).Reason)
}

func TestRefundReleasedRequiresAdmin(t *testing.T) {
	f := newPaymentFixture(t)
	escrow := f.held(t)
	f.gateway.captureStatus = "succeeded"
	_, err := f.svc.Release(context.Background(), f.clientID, escrow.Payment.ID)
	require.NoError(t, err)

	_, err = f.svc.Refund(context.Background(), Actor{UserID: f.clientID, Role: enums.UserRoleClient}, escrow.Payment.ID, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	out, err := f.svc.Refund(context.Background(), Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}, escrow.Payment.ID, "chargeback risk")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusReleased, out.Status, "refund is confirmed by webhook")
	require.Len(t, f.gateway.refunded, 1)

	intentID := "pi_escrow-" + escrow.Payment.ID.String()
	applied, err := f.svc.ApplyIntentUpdate(context.Background(), IntentUpdate{IntentID: intentID, Status: enums.PaymentStatusRefunded, RefundID: "re_" + intentID})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, enums.PaymentStatusRefunded, f.repo.rows[escrow.Payment.ID].Status)
}

func TestOnboardProviderCreatesAccountOnce(t *testing.T) {
	f := newPaymentFixture(t)
	f.provider.StripeAccountID = nil

	out, err := f.svc.OnboardProvider(context.Background(), f.provider.ID, "https://app/return", "https://app/refresh")
	require.NoError(t, err)
	assert.Equal(t, "acct_new", out.AccountID)
	assert.Contains(t, out.URL, "acct_new")

	_, err = f.svc.OnboardProvider(context.Background(), f.provider.ID, "https://app/return", "https://app/refresh")
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.accounts)

	require.NoError(t, f.svc.SyncConnectedAccount(context.Background(), "acct_new", false))
	assert.False(t, f.profiles.rows[f.provider.ID].PayoutsEnabled)
}

func TestOnboardRejectsClients(t *testing.T) {
	f := newPaymentFixture(t)
	client := &models.Profile{ID: f.clientID, Role: enums.UserRoleClient}
	f.profiles.rows[client.ID] = client
	_, err := f.svc.OnboardProvider(context.Background(), client.ID, "https://app/r", "https://app/r")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestAutoReleaseCapturesDueEscrows(t *testing.T) {
	f := newPaymentFixture(t)
	f.held(t)
	f.gateway.captureStatus = "succeeded"

	n, err := f.svc.AutoRelease(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.gateway.captured, 1)
}
