package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/gigmarket-backend/internal/analytics/query"
	"github.com/angelmondragon/gigmarket-backend/internal/analytics/types"
	"github.com/angelmondragon/gigmarket-backend/pkg/bigquery"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheEntries = 256
)

// Service answers dashboard queries from BigQuery. Identical requests made
// within cacheTTL share one query; concurrent ones share one in-flight call.
type Service interface {
	Query(ctx context.Context, req types.MarketplaceQueryRequest) (*types.MarketplaceQueryResponse, error)
	// CategoryViews counts gig page views per category since the given
	// instant, truncated to the hour.
	CategoryViews(ctx context.Context, since time.Time) (map[uuid.UUID]int64, error)
}

type marketplaceQuerier interface {
	Query(ctx context.Context, req types.MarketplaceQueryRequest) (*types.MarketplaceQueryResponse, error)
	CategoryViews(ctx context.Context, since time.Time) (map[uuid.UUID]int64, error)
}

type service struct {
	marketplace marketplaceQuerier
	kpis        *expirable.LRU[string, *types.MarketplaceQueryResponse]
	views       *expirable.LRU[string, map[uuid.UUID]int64]
	flight      singleflight.Group
}

func NewService(client *bigquery.Client, project, dataset, table, viewsTable string) (Service, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	marketplace, err := query.NewMarketplaceService(client, project, dataset, table, viewsTable)
	if err != nil {
		return nil, err
	}
	return newService(marketplace), nil
}

func newService(m marketplaceQuerier) *service {
	return &service{
		marketplace: m,
		kpis:        expirable.NewLRU[string, *types.MarketplaceQueryResponse](cacheEntries, nil, cacheTTL),
		views:       expirable.NewLRU[string, map[uuid.UUID]int64](cacheEntries, nil, cacheTTL),
	}
}

func (s *service) Query(ctx context.Context, req types.MarketplaceQueryRequest) (*types.MarketplaceQueryResponse, error) {
	req = req.Normalized()
	key := req.CacheKey()
	if hit, ok := s.kpis.Get(key); ok {
		return hit, nil
	}
	v, err, _ := s.flight.Do(key, func() (any, error) {
		resp, err := s.marketplace.Query(context.WithoutCancel(ctx), req)
		if err != nil {
			return nil, err
		}
		s.kpis.Add(key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.MarketplaceQueryResponse), nil
}

func (s *service) CategoryViews(ctx context.Context, since time.Time) (map[uuid.UUID]int64, error) {
	since = since.UTC().Truncate(time.Hour)
	key := "views:" + since.Format(time.RFC3339)
	if hit, ok := s.views.Get(key); ok {
		return hit, nil
	}
	v, err, _ := s.flight.Do(key, func() (any, error) {
		counts, err := s.marketplace.CategoryViews(context.WithoutCancel(ctx), since)
		if err != nil {
			return nil, err
		}
		s.views.Add(key, counts)
		return counts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[uuid.UUID]int64), nil
}
