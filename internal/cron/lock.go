package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = 10 * time.Minute

var errLeaseLost = errors.New("cron lease lost")

// Lock is an exclusive lease shared by every cron-worker instance.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

// leaseStore is the slice of pkg/redis the lease needs.
type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// RedisLock stores "<holder>/<token>" under key so a stuck lease names the
// process that took it. Extend and Release are no-ops against a lease that
// expired and was taken by someone else.
type RedisLock struct {
	store  leaseStore
	key    string
	ttl    time.Duration
	holder string

	mu    sync.Mutex
	token string
}

func NewRedisLock(store leaseStore, key, holder string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	if holder == "" {
		holder = "cron"
	}
	return &RedisLock{store: store, key: key, ttl: ttl, holder: holder}, nil
}

// TTL is the lease length; holders should extend well before it runs out.
func (l *RedisLock) TTL() time.Duration { return l.ttl }

// Holder reports who holds the lease, or "" when it is free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	value, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := l.holder + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Extend pushes the expiry out by another TTL. It returns errLeaseLost once
// the key no longer carries this holder's token.
func (l *RedisLock) Extend(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.mu.Unlock()
	if token == "" {
		return errLeaseLost
	}
	ok, err := l.store.ExpireIfValue(ctx, l.key, token, l.ttl)
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if !ok {
		l.forget(token)
		return errLeaseLost
	}
	return nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	if _, err := l.store.DelIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	l.forget(token)
	return nil
}

func (l *RedisLock) forget(token string) {
	l.mu.Lock()
	if l.token == token {
		l.token = ""
	}
	l.mu.Unlock()
}
