package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

const processedMarker = "1"

// Manager claims ids in Redis with SETNX so each id is handled at most once
// per TTL. Event consumers claim under `evt:processed:<consumer>`; other
// callers such as the Stripe webhook claim under their own scope.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Claim marks id under scope. It reports true when the id was already claimed.
func (m *Manager) Claim(ctx context.Context, scope, id string) (bool, error) {
	key, err := m.key(scope, id)
	if err != nil {
		return false, err
	}
	fresh, err := m.store.SetNX(ctx, key, processedMarker, m.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// Release drops a claim so a retry can run.
func (m *Manager) Release(ctx context.Context, scope, id string) error {
	key, err := m.key(scope, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	scope, id, err := consumerScope(consumer, eventID)
	if err != nil {
		return false, err
	}
	return m.Claim(ctx, scope, id)
}

func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	scope, id, err := consumerScope(consumer, eventID)
	if err != nil {
		return err
	}
	return m.Release(ctx, scope, id)
}

// Scoped pins the manager to one scope for callers keyed by opaque strings.
func (m *Manager) Scoped(scope string) *ScopedGuard {
	return &ScopedGuard{manager: m, scope: scope}
}

func (m *Manager) key(scope, id string) (string, error) {
	scope = strings.TrimSpace(scope)
	id = strings.TrimSpace(id)
	if scope == "" {
		return "", errors.New("idempotency scope is required")
	}
	if id == "" {
		return "", errors.New("idempotency id is required")
	}
	return m.store.IdempotencyKey(scope, id), nil
}

func consumerScope(consumer string, eventID uuid.UUID) (string, string, error) {
	if consumer == "" {
		return "", "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", "", errors.New("event id is required")
	}
	return "evt:processed:" + consumer, eventID.String(), nil
}

// ScopedGuard is a Manager bound to a single scope.
type ScopedGuard struct {
	manager *Manager
	scope   string
}

func (g *ScopedGuard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	return g.manager.Claim(ctx, g.scope, id)
}

func (g *ScopedGuard) Delete(ctx context.Context, id string) error {
	return g.manager.Release(ctx, g.scope, id)
}
