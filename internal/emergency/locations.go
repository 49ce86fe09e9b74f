package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

const (
	providerGeoSet      = "providers"
	providerLocationKey = "provider"
)

type locationBackend interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GeoAdd(ctx context.Context, key, member string, lat, lng float64) error
	GeoRemove(ctx context.Context, key string, members ...string) error
	GeoWithin(ctx context.Context, key string, lat, lng, radiusKM float64, limit int) ([]redis.GeoHit, error)
	GeoKey(name string) string
	LocationKey(scope, id string) string
}

// ProviderLocation is the last reported position of a provider.
type ProviderLocation struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Heading    *float64  `json:"heading,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Nearby is a provider found around a point.
type Nearby struct {
	ProviderID uuid.UUID
	DistanceKM float64
}

// LocationStore keeps live provider positions in Redis. The per-provider key
// expires after ttl; the geo set is only an index over it.
type LocationStore struct {
	backend locationBackend
	ttl     time.Duration
}

func NewLocationStore(backend locationBackend, ttl time.Duration) (*LocationStore, error) {
	if backend == nil {
		return nil, errors.New("redis backend is required")
	}
	if ttl <= 0 {
		return nil, errors.New("location ttl must be positive")
	}
	return &LocationStore{backend: backend, ttl: ttl}, nil
}

func (s *LocationStore) Save(ctx context.Context, loc ProviderLocation) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	member := loc.ProviderID.String()
	if err := s.backend.Set(ctx, s.backend.LocationKey(providerLocationKey, member), payload, s.ttl); err != nil {
		return fmt.Errorf("store location: %w", err)
	}
	if err := s.backend.GeoAdd(ctx, s.backend.GeoKey(providerGeoSet), member, loc.Lat, loc.Lng); err != nil {
		return fmt.Errorf("index location: %w", err)
	}
	return nil
}

// Get returns nil when the provider has not reported within the ttl.
func (s *LocationStore) Get(ctx context.Context, providerID uuid.UUID) (*ProviderLocation, error) {
	raw, err := s.backend.Get(ctx, s.backend.LocationKey(providerLocationKey, providerID.String()))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load location: %w", err)
	}
	var loc ProviderLocation
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	return &loc, nil
}

// Nearby returns every fresh provider within radiusKM, nearest first. The
// geo set indexes all providers regardless of category, so callers filter
// before capping. Distances are recomputed from the stored payload so a stale
// geo entry never wins.
func (s *LocationStore) Nearby(ctx context.Context, lat, lng, radiusKM float64) ([]Nearby, error) {
	hits, err := s.backend.GeoWithin(ctx, s.backend.GeoKey(providerGeoSet), lat, lng, radiusKM, 0)
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}
	out := make([]Nearby, 0, len(hits))
	var stale []string
	for _, hit := range hits {
		id, err := uuid.Parse(hit.Member)
		if err != nil {
			stale = append(stale, hit.Member)
			continue
		}
		loc, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if loc == nil {
			stale = append(stale, hit.Member)
			continue
		}
		dist := haversineKM(lat, lng, loc.Lat, loc.Lng)
		if dist > radiusKM {
			continue
		}
		out = append(out, Nearby{ProviderID: id, DistanceKM: dist})
	}
	if len(stale) > 0 {
		// best effort; the next Save re-adds a live provider
		_ = s.backend.GeoRemove(ctx, s.backend.GeoKey(providerGeoSet), stale...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKM < out[j].DistanceKM })
	return out, nil
}
