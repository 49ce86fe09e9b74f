// Package session keeps refresh sessions in Redis. Each access token's jti
// names one session; the session holds a digest of the refresh token that
// may be exchanged for the next access/refresh pair exactly once.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	redisclient "github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

const refreshTokenBytes = 32

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error
}

type keyer interface {
	AccessSessionKey(accessID string) string
	UserSessionsKey(userID string) string
}

// AccessSessionChecker is what the auth middleware needs.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type Manager struct {
	store store
	keys  keyer
	ttl   time.Duration
}

// NewManager requires the refresh TTL to outlive the access token, otherwise
// a client could never refresh.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := cfg.RefreshTokenTTL()
	access := time.Duration(cfg.ExpirationMinutes) * time.Minute
	switch {
	case ttl <= 0:
		return nil, errors.New("refresh token ttl must be positive")
	case ttl <= access:
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, access)
	}
	return &Manager{store: client, keys: client, ttl: ttl}, nil
}

// NewAccessID mints the jti that keys a session.
func NewAccessID() string { return uuid.NewString() }

// Generate opens a session for accessID and returns its refresh token.
func (m *Manager) Generate(ctx context.Context, userID uuid.UUID, accessID string) (string, error) {
	switch {
	case userID == uuid.Nil:
		return "", errors.New("user id is required")
	case strings.TrimSpace(accessID) == "":
		return "", errors.New("access id is required")
	}
	return m.open(ctx, userID, accessID)
}

// Rotate consumes the session oldAccessID if refresh matches it and opens a
// successor. Replaying a consumed token fails with ErrInvalidRefreshToken,
// including when two rotations race.
func (m *Manager) Rotate(ctx context.Context, userID uuid.UUID, oldAccessID, refresh string) (string, string, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(refresh) == "" {
		return "", "", ErrInvalidRefreshToken
	}
	consumed, err := m.store.DelIfValue(ctx, m.keys.AccessSessionKey(oldAccessID), digest(refresh))
	if err != nil {
		return "", "", fmt.Errorf("consume session: %w", err)
	}
	if !consumed {
		return "", "", ErrInvalidRefreshToken
	}

	nextID := NewAccessID()
	token, err := m.open(ctx, userID, nextID)
	if err != nil {
		return "", "", err
	}
	if userID != uuid.Nil {
		if err := m.store.SRem(ctx, m.keys.UserSessionsKey(userID.String()), oldAccessID); err != nil {
			return "", "", fmt.Errorf("unindex session: %w", err)
		}
	}
	return nextID, token, nil
}

func (m *Manager) open(ctx context.Context, userID uuid.UUID, accessID string) (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	if err := m.store.Set(ctx, m.keys.AccessSessionKey(accessID), digest(token), m.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if userID != uuid.Nil {
		if err := m.store.SAdd(ctx, m.keys.UserSessionsKey(userID.String()), m.ttl, accessID); err != nil {
			return "", fmt.Errorf("index session: %w", err)
		}
	}
	return token, nil
}

func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return errors.New("access id is required")
	}
	return m.store.Del(ctx, m.keys.AccessSessionKey(accessID))
}

// RevokeAll ends every session of userID, e.g. on suspension or password
// change.
func (m *Manager) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return errors.New("user id is required")
	}
	index := m.keys.UserSessionsKey(userID.String())
	ids, err := m.store.SMembers(ctx, index)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, m.keys.AccessSessionKey(id))
	}
	return m.store.Del(ctx, append(keys, index)...)
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errors.New("access id is required")
	}
	_, err := m.store.Get(ctx, m.keys.AccessSessionKey(accessID))
	switch {
	case errors.Is(err, redislib.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// digest is what Redis stores, so a leaked dump holds no usable token.
func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
