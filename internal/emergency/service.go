package emergency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/internal/realtime"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/maps"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// Service dispatches urgent jobs to nearby providers and tracks them to
// completion.
type Service interface {
	Create(ctx context.Context, clientID uuid.UUID, req CreateRequest) (*RequestDTO, error)
	Get(ctx context.Context, userID uuid.UUID, role enums.UserRole, requestID uuid.UUID) (*RequestDTO, error)
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[RequestDTO], error)
	Accept(ctx context.Context, providerID, requestID uuid.UUID) (*RequestDTO, error)
	MarkEnRoute(ctx context.Context, providerID, requestID uuid.UUID) (*RequestDTO, error)
	Arrive(ctx context.Context, providerID, requestID uuid.UUID) (*RequestDTO, error)
	Complete(ctx context.Context, providerID, requestID uuid.UUID) (*RequestDTO, error)
	Cancel(ctx context.Context, clientID, requestID uuid.UUID) (*RequestDTO, error)
	UpdateLocation(ctx context.Context, providerID uuid.UUID, req LocationRequest) error
	Tracking(ctx context.Context, userID, requestID uuid.UUID) (*TrackingDTO, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type requestRepository interface {
	Create(ctx context.Context, req *models.EmergencyRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.EmergencyRequest, error)
	Transition(ctx context.Context, id uuid.UUID, from []enums.EmergencyStatus, next enums.EmergencyStatus, extra map[string]any) (bool, error)
	Claim(ctx context.Context, id, providerID uuid.UUID, at time.Time) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.EmergencyRequest, error)
	ListSearchingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.EmergencyRequest, error)
}

type providerDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	ListEmergencyProviders(ctx context.Context, categoryID uuid.UUID, candidateIDs []uuid.UUID) ([]models.Profile, error)
}

type completionCounter interface {
	IncrementCompletedEmergencies(ctx context.Context, id uuid.UUID) error
}

type categoryReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
}

type locationStore interface {
	Save(ctx context.Context, loc ProviderLocation) error
	Get(ctx context.Context, providerID uuid.UUID) (*ProviderLocation, error)
	Nearby(ctx context.Context, lat, lng, radiusKM float64) ([]Nearby, error)
}

type router interface {
	Directions(ctx context.Context, origin, destination maps.LatLng) (*maps.Route, error)
}

type realtimePublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event realtime.Event) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

const (
	expireBatch    = 100
	candidateBatch = 200
)

type ServiceParams struct {
	TxRunner       txRunner
	Repo           requestRepository
	Providers      providerDirectory
	Categories     categoryReader
	Locations      locationStore
	Routes         router
	Realtime       realtimePublisher
	Outbox         outboxEmitter
	Logger         *logger.Logger
	Config         config.EmergencyConfig
	RepoFactory    func(tx *gorm.DB) requestRepository
	CounterFactory func(tx *gorm.DB) completionCounter
}

type service struct {
	tx             txRunner
	repo           requestRepository
	providers      providerDirectory
	categories     categoryReader
	locations      locationStore
	routes         router
	realtime       realtimePublisher
	outbox         outboxEmitter
	logg           *logger.Logger
	cfg            config.EmergencyConfig
	repoFactory    func(tx *gorm.DB) requestRepository
	counterFactory func(tx *gorm.DB) completionCounter
	now            func() time.Time
}

// NewService wires the dispatcher. Routes and Realtime are optional: without
// a maps key tracking falls back to straight-line distance.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, fmt.Errorf("tx runner is required")
	case params.Repo == nil:
		return nil, fmt.Errorf("emergency repository is required")
	case params.Providers == nil:
		return nil, fmt.Errorf("provider directory is required")
	case params.Categories == nil:
		return nil, fmt.Errorf("category reader is required")
	case params.Locations == nil:
		return nil, fmt.Errorf("location store is required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case params.Config.RadiusKM <= 0 || params.Config.MaxCandidates <= 0:
		return nil, fmt.Errorf("emergency radius and candidate cap must be positive")
	case params.Config.ExpireAfter <= 0:
		return nil, fmt.Errorf("emergency expiry must be positive")
	}
	if params.RepoFactory == nil {
		params.RepoFactory = func(tx *gorm.DB) requestRepository { return NewRepository(tx) }
	}
	if params.CounterFactory == nil {
		params.CounterFactory = func(tx *gorm.DB) completionCounter { return profiles.NewRepository(tx) }
	}
	return &service{
		tx:             params.TxRunner,
		repo:           params.Repo,
		providers:      params.Providers,
		categories:     params.Categories,
		locations:      params.Locations,
		routes:         params.Routes,
		realtime:       params.Realtime,
		outbox:         params.Outbox,
		logg:           params.Logger,
		cfg:            params.Config,
		repoFactory:    params.RepoFactory,
		counterFactory: params.CounterFactory,
		now:            time.Now,
	}, nil
}

// Create opens a request and notifies the nearest available providers.
func (s *service) Create(ctx context.Context, clientID uuid.UUID, req CreateRequest) (*RequestDTO, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}
	category, err := s.categories.FindByID(ctx, req.CategoryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load category")
	}
	if !category.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category is not active")
	}

	candidates, err := s.candidates(ctx, clientID, req.CategoryID, req.Lat, req.Lng)
	if err != nil {
		return nil, err
	}

	row := &models.EmergencyRequest{
		ID:          uuid.New(),
		ClientID:    clientID,
		CategoryID:  req.CategoryID,
		Description: description,
		Lat:         req.Lat,
		Lng:         req.Lng,
		Status:      enums.EmergencyStatusSearching,
	}
	if addr := strings.TrimSpace(req.Address); addr != "" {
		row.Address = &addr
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repoFactory(tx).Create(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create emergency request")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEmergencyRequested,
			AggregateType: enums.AggregateEmergency,
			AggregateID:   row.ID,
			Actor:         &outbox.ActorRef{UserID: clientID, Role: string(enums.UserRoleClient)},
			Data: payloads.EmergencyRequestedEvent{
				RequestID:    row.ID,
				ClientID:     clientID,
				CategoryID:   row.CategoryID,
				CandidateIDs: candidates,
				Lat:          row.Lat,
				Lng:          row.Lng,
				Description:  description,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit emergency request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"emergency_id": row.ID.String(),
		"category_id":  row.CategoryID.String(),
		"candidates":   len(candidates),
	}), "emergency.created")
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now().UTC()
	}
	dto := FromModel(*row)
	dto.Candidates = len(candidates)
	return &dto, nil
}

// candidates ranks nearby providers and keeps those available for the
// category, nearest first.
func (s *service) candidates(ctx context.Context, clientID, categoryID uuid.UUID, lat, lng float64) ([]uuid.UUID, error) {
	nearby, err := s.locations.Nearby(ctx, lat, lng, s.cfg.RadiusKM)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search nearby providers")
	}
	ids := make([]uuid.UUID, 0, len(nearby))
	for _, n := range nearby {
		if n.ProviderID != clientID {
			ids = append(ids, n.ProviderID)
		}
	}
	out := make([]uuid.UUID, 0, s.cfg.MaxCandidates)
	// Filter nearest-first in batches and cap only eligible providers.
	for start := 0; start < len(ids) && len(out) < s.cfg.MaxCandidates; start += candidateBatch {
		batch := ids[start:min(start+candidateBatch, len(ids))]
		available, err := s.providers.ListEmergencyProviders(ctx, categoryID, batch)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "filter emergency providers")
		}
		ok := make(map[uuid.UUID]struct{}, len(available))
		for _, p := range available {
			ok[p.ID] = struct{}{}
		}
		for _, id := range batch {
			if _, found := ok[id]; !found {
				continue
			}
			out = append(out, id)
			if len(out) == s.cfg.MaxCandidates {
				break
			}
		}
	}
	return out, nil
}

// Get is visible to the client, the assigned provider, and any provider
// while the request is still searching.
func (s *service) Get(ctx context.Context, userID uuid.UUID, role enums.UserRole, requestID uuid.UUID) (*RequestDTO, error) {
	row, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch {
	case row.ClientID == userID, row.ProviderID != nil && *row.ProviderID == userID:
	case role == enums.UserRoleAdmin:
	case role == enums.UserRoleProvider && row.Status == enums.EmergencyStatusSearching:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "emergency request not found")
	}
	dto := FromModel(*row)
	return &dto, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[RequestDTO], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[RequestDTO]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	params.Limit = pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return pagination.Page[RequestDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list emergency requests")
	}
	dtos := make([]RequestDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	return pagination.BuildPage(dtos, params.Limit, func(d RequestDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	}), nil
}

// Accept assigns the first provider to claim the request. Later callers get a
// state conflict.
func (s *service) Accept(ctx context.Context, providerID, requestID uuid.UUID) (*RequestDTO, error) {
	profile, err := s.providers.FindByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}
	if !profile.IsProvider() || !profile.EmergencyAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only providers available for emergencies can accept")
	}

	var row *models.EmergencyRequest
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repoFactory(tx)
		current, err := repo.FindByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "emergency request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load emergency request")
		}
		if current.ClientID == providerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "you cannot accept your own request")
		}
		now := s.now().UTC()
		claimed, err := repo.Claim(ctx, requestID, providerID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim emergency request")
		}
		if !claimed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "emergency request is no longer available")
		}
		current.Status = enums.EmergencyStatusAccepted
		current.ProviderID = &providerID
		current.AcceptedAt = &now
		row = current
		return s.emitStatus(ctx, tx, row, providerID)
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, row)
	dto := FromModel(*row)
	return &dto, nil
}

func (s *service) MarkEnRoute(ctx context.Context, providerID, requestID uuid.UUID) (*RequestDTO, error) {
	return s.providerTransition(ctx, providerID, requestID, enums.EmergencyStatusEnRoute, nil)
}

func (s *service) Arrive(ctx context.Context, providerID, requestID uuid.UUID) (*RequestDTO, error) {
	return s.providerTransition(ctx, providerID, requestID, enums.EmergencyStatusArrived, func(row *models.EmergencyRequest, now time.Time, extra map[string]any) {
		extra["arrived_at"] = now
		row.ArrivedAt = &now
	})
}

// Complete closes the job and credits the provider's emergency count.
func (s *service) Complete(ctx context.Context, providerID, requestID uuid.UUID) (*RequestDTO, error) {
	return s.providerTransition(ctx, providerID, requestID, enums.EmergencyStatusCompleted, func(row *models.EmergencyRequest, now time.Time, extra map[string]any) {
		extra["completed_at"] = now
		row.CompletedAt = &now
	})
}

func (s *service) providerTransition(ctx context.Context, providerID, requestID uuid.UUID, next enums.EmergencyStatus, stamp func(*models.EmergencyRequest, time.Time, map[string]any)) (*RequestDTO, error) {
	var row *models.EmergencyRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repoFactory(tx)
		current, err := repo.FindByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "emergency request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load emergency request")
		}
		if current.ProviderID == nil || *current.ProviderID != providerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the assigned provider can update this request")
		}
		if !CanTransition(current.Status, next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move from %s to %s", current.Status, next))
		}
		now := s.now().UTC()
		extra := map[string]any{}
		if stamp != nil {
			stamp(current, now, extra)
		}
		moved, err := repo.Transition(ctx, requestID, sourcesFor(next), next, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update emergency request")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "emergency request changed concurrently")
		}
		current.Status = next
		if next == enums.EmergencyStatusCompleted {
			if err := s.counterFactory(tx).IncrementCompletedEmergencies(ctx, providerID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count completed emergency")
			}
		}
		row = current
		return s.emitStatus(ctx, tx, row, providerID)
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, row)
	dto := FromModel(*row)
	return &dto, nil
}

// Cancel is allowed for the client until the job completes.
func (s *service) Cancel(ctx context.Context, clientID, requestID uuid.UUID) (*RequestDTO, error) {
	var row *models.EmergencyRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repoFactory(tx)
		current, err := repo.FindByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "emergency request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load emergency request")
		}
		if current.ClientID != clientID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "emergency request not found")
		}
		if !CanTransition(current.Status, enums.EmergencyStatusCancelled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("a %s request cannot be cancelled", current.Status))
		}
		now := s.now().UTC()
		moved, err := repo.Transition(ctx, requestID, sourcesFor(enums.EmergencyStatusCancelled), enums.EmergencyStatusCancelled, map[string]any{"cancelled_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel emergency request")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "emergency request changed concurrently")
		}
		current.Status = enums.EmergencyStatusCancelled
		current.CancelledAt = &now
		row = current
		return s.emitStatus(ctx, tx, row, clientID)
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, row)
	dto := FromModel(*row)
	return &dto, nil
}

// UpdateLocation records the provider position. When tied to an active job the
// client receives it live, and the first fix after accepting marks the
// provider en route.
func (s *service) UpdateLocation(ctx context.Context, providerID uuid.UUID, req LocationRequest) error {
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		return pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}
	var row *models.EmergencyRequest
	if req.EmergencyID != nil {
		var err error
		row, err = s.load(ctx, *req.EmergencyID)
		if err != nil {
			return err
		}
		if row.ProviderID == nil || *row.ProviderID != providerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the assigned provider can share location for this request")
		}
		if !isActive(row.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "emergency request is not active")
		}
	}

	now := s.now().UTC()
	if err := s.locations.Save(ctx, ProviderLocation{
		ProviderID: providerID,
		Lat:        req.Lat,
		Lng:        req.Lng,
		Heading:    req.Heading,
		UpdatedAt:  now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store provider location")
	}
	if row == nil {
		return nil
	}

	s.publish(ctx, row.ClientID, realtime.NewEvent(realtime.EventEmergencyLocation, locationSignal{
		RequestID: row.ID,
		Lat:       req.Lat,
		Lng:       req.Lng,
		Heading:   req.Heading,
		At:        now,
	}))
	if row.Status == enums.EmergencyStatusAccepted {
		if _, err := s.MarkEnRoute(ctx, providerID, row.ID); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return err
		}
	}
	return nil
}

// Tracking returns the provider's last position and the route to the
// client. Route failures degrade to the straight-line distance.
func (s *service) Tracking(ctx context.Context, userID, requestID uuid.UUID) (*TrackingDTO, error) {
	row, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	isProvider := row.ProviderID != nil && *row.ProviderID == userID
	if row.ClientID != userID && !isProvider {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "emergency request not found")
	}
	out := &TrackingDTO{RequestID: row.ID, Status: row.Status}
	if row.ProviderID == nil || !isActive(row.Status) {
		return out, nil
	}

	loc, err := s.locations.Get(ctx, *row.ProviderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider location")
	}
	if loc == nil {
		return out, nil
	}
	out.ProviderLocation = &LocationDTO{Lat: loc.Lat, Lng: loc.Lng, Heading: loc.Heading, UpdatedAt: loc.UpdatedAt}
	straight := haversineKM(loc.Lat, loc.Lng, row.Lat, row.Lng)
	out.StraightLineKM = &straight

	if s.routes == nil || row.Status == enums.EmergencyStatusArrived {
		return out, nil
	}
	route, err := s.routes.Directions(ctx,
		maps.LatLng{Latitude: loc.Lat, Longitude: loc.Lng},
		maps.LatLng{Latitude: row.Lat, Longitude: row.Lng})
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"emergency_id": row.ID.String(),
			"error":        err.Error(),
		}), "emergency.route_unavailable")
		return out, nil
	}
	out.Route = &RouteDTO{
		Polyline:        route.Polyline,
		DistanceMeters:  route.DistanceMeters,
		DurationSeconds: int(route.Duration / time.Second),
		ETA:             s.now().UTC().Add(route.Duration),
	}
	return out, nil
}

// ExpireStale closes searching requests older than the configured window.
func (s *service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.cfg.ExpireAfter)
	rows, err := s.repo.ListSearchingBefore(ctx, cutoff, expireBatch)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale emergency requests")
	}
	expired := 0
	for i := range rows {
		row := rows[i]
		var moved bool
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			moved, err = s.repoFactory(tx).Transition(ctx, row.ID, []enums.EmergencyStatus{enums.EmergencyStatusSearching}, enums.EmergencyStatusExpired, nil)
			if err != nil || !moved {
				return err
			}
			row.Status = enums.EmergencyStatusExpired
			return s.emitStatus(ctx, tx, &row, uuid.Nil)
		})
		if err != nil {
			return expired, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire emergency request")
		}
		if moved {
			expired++
			s.afterTransition(ctx, &row)
		}
	}
	return expired, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.EmergencyRequest, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "emergency request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load emergency request")
	}
	return row, nil
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, row *models.EmergencyRequest, actorID uuid.UUID) error {
	var actor *outbox.ActorRef
	if actorID != uuid.Nil {
		actor = &outbox.ActorRef{UserID: actorID}
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEmergencyStatusChanged,
		AggregateType: enums.AggregateEmergency,
		AggregateID:   row.ID,
		Actor:         actor,
		Data: payloads.EmergencyStatusChangedEvent{
			RequestID:  row.ID,
			ClientID:   row.ClientID,
			ProviderID: row.ProviderID,
			Status:     row.Status,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit emergency status")
	}
	return nil
}

// afterTransition pushes the new status to both parties' sockets. Delivery is
// best effort; the outbox event drives durable notifications.
func (s *service) afterTransition(ctx context.Context, row *models.EmergencyRequest) {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"emergency_id": row.ID.String(),
		"status":       string(row.Status),
	}), "emergency.status_changed")
	event := realtime.NewEvent(realtime.EventEmergencyStatus, statusSignal{
		RequestID:  row.ID,
		Status:     row.Status,
		ProviderID: row.ProviderID,
	})
	s.publish(ctx, row.ClientID, event)
	if row.ProviderID != nil {
		s.publish(ctx, *row.ProviderID, event)
	}
}

func (s *service) publish(ctx context.Context, userID uuid.UUID, event realtime.Event) {
	if s.realtime == nil {
		return
	}
	if err := s.realtime.Publish(ctx, userID, event); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"user_id":    userID.String(),
			"event_type": event.Type,
			"error":      err.Error(),
		}), "emergency.realtime_publish_failed")
	}
}
