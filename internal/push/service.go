package push

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/fcm"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

type RegisterRequest struct {
	Token    string `json:"token" validate:"required,max=4096"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}

type Service interface {
	RegisterToken(ctx context.Context, userID uuid.UUID, req RegisterRequest) error
	UnregisterToken(ctx context.Context, userID uuid.UUID, token string) error
	SendToUser(ctx context.Context, userID uuid.UUID, msg fcm.Message) error
	PruneStale(ctx context.Context, now time.Time) (int64, error)
}

type tokenStore interface {
	Upsert(ctx context.Context, token *models.PushToken) error
	Delete(ctx context.Context, userID uuid.UUID, token string) (int64, error)
	TokensForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
	DeleteTokens(ctx context.Context, tokens []string) (int64, error)
	DeleteStaleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type sender interface {
	SendMulticast(ctx context.Context, tokens []string, msg fcm.Message) (*fcm.Result, error)
}

type ServiceParams struct {
	Repo       tokenStore
	Sender     sender
	// Enabled gates delivery; registration works either way.
	Enabled    bool
	StaleAfter time.Duration
	Logger     *logger.Logger
}

type service struct {
	repo       tokenStore
	sender     sender
	enabled    bool
	staleAfter time.Duration
	logg       *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("push token repository is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case params.Enabled && params.Sender == nil:
		return nil, fmt.Errorf("push sender is required when push is enabled")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 90 * 24 * time.Hour
	}
	return &service{
		repo:       params.Repo,
		sender:     params.Sender,
		enabled:    params.Enabled,
		staleAfter: staleAfter,
		logg:       params.Logger,
	}, nil
}

func (s *service) RegisterToken(ctx context.Context, userID uuid.UUID, req RegisterRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}
	platform := enums.PushPlatform(strings.ToLower(strings.TrimSpace(req.Platform)))
	if !platform.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported platform")
	}

	row := &models.PushToken{
		ID:         uuid.New(),
		UserID:     userID,
		Token:      token,
		Platform:   platform,
		LastSeenAt: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register push token")
	}
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{"user_id": userID.String(), "platform": platform}), "push.token.registered")
	return nil
}

func (s *service) UnregisterToken(ctx context.Context, userID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}
	n, err := s.repo.Delete(ctx, userID, token)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unregister push token")
	}
	if n == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "push token not found")
	}
	return nil
}

// SendToUser delivers msg to every device of userID and forgets tokens FCM
// reports as unregistered. A user with no devices is not an error.
func (s *service) SendToUser(ctx context.Context, userID uuid.UUID, msg fcm.Message) error {
	if !s.enabled {
		return nil
	}
	tokens, err := s.repo.TokensForUser(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load push tokens")
	}
	if len(tokens) == 0 {
		return nil
	}

	logCtx := s.logg.WithField(ctx, "user_id", userID.String())
	result, err := s.sender.SendMulticast(ctx, tokens, msg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send push")
	}
	if len(result.InvalidTokens) > 0 {
		pruned, err := s.repo.DeleteTokens(ctx, result.InvalidTokens)
		if err != nil {
			s.logg.Error(logCtx, "push.tokens.prune_failed", err)
		} else {
			s.logg.Info(s.logg.WithField(logCtx, "pruned", pruned), "push.tokens.pruned")
		}
	}
	s.logg.Debug(s.logg.WithFields(logCtx, map[string]any{"sent": result.Sent, "failed": result.Failed}), "push.sent")
	return nil
}

func (s *service) PruneStale(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.DeleteStaleBefore(ctx, now.Add(-s.staleAfter))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "prune stale push tokens")
	}
	return n, nil
}
