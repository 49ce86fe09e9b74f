package emergency

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

// fakeRedis keeps values and geo members in memory. Expiry is simulated by
// deleting keys directly.
type fakeRedis struct {
	values map[string]string
	geo    map[string]map[string][2]float64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, geo: map[string]map[string][2]float64{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	return nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeRedis) GeoAdd(_ context.Context, key, member string, lat, lng float64) error {
	if f.geo[key] == nil {
		f.geo[key] = map[string][2]float64{}
	}
	f.geo[key][member] = [2]float64{lat, lng}
	return nil
}

func (f *fakeRedis) GeoRemove(_ context.Context, key string, members ...string) error {
	for _, m := range members {
		delete(f.geo[key], m)
	}
	return nil
}

func (f *fakeRedis) GeoWithin(_ context.Context, key string, lat, lng, radiusKM float64, limit int) ([]redis.GeoHit, error) {
	var hits []redis.GeoHit
	for member, pos := range f.geo[key] {
		d := haversineKM(lat, lng, pos[0], pos[1])
		if d <= radiusKM {
			hits = append(hits, redis.GeoHit{Member: member, DistanceKM: d, Lat: pos[0], Lng: pos[1]})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].DistanceKM < hits[j].DistanceKM })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeRedis) GeoKey(name string) string           { return "test:geo:" + name }
func (f *fakeRedis) LocationKey(scope, id string) string { return "test:loc:" + scope + ":" + id }

func TestHaversineKnownDistance(t *testing.T) {
	// Times Square to the Empire State Building is a little over a kilometre.
	d := haversineKM(40.7580, -73.9855, 40.7484, -73.9857)
	assert.InDelta(t, 1.07, d, 0.02)
	assert.Zero(t, haversineKM(10, 10, 10, 10))
}

func TestLocationStoreNearbySkipsStaleAndFar(t *testing.T) {
	backend := newFakeRedis()
	store, err := NewLocationStore(backend, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	near, nearer, stale, far := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, store.Save(ctx, ProviderLocation{ProviderID: near, Lat: 40.75, Lng: -73.99}))
	require.NoError(t, store.Save(ctx, ProviderLocation{ProviderID: nearer, Lat: 40.7485, Lng: -73.9858}))
	require.NoError(t, store.Save(ctx, ProviderLocation{ProviderID: stale, Lat: 40.749, Lng: -73.986}))
	require.NoError(t, store.Save(ctx, ProviderLocation{ProviderID: far, Lat: 41.5, Lng: -73.9}))
	delete(backend.values, backend.LocationKey(providerLocationKey, stale.String()))

	got, err := store.Nearby(ctx, 40.7484, -73.9857, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, nearer, got[0].ProviderID)
	assert.Equal(t, near, got[1].ProviderID)
	assert.NotContains(t, backend.geo[backend.GeoKey(providerGeoSet)], stale.String())

	loc, err := store.Get(ctx, stale)
	require.NoError(t, err)
	assert.Nil(t, loc)
}
