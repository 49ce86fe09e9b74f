package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/internal/analytics/types"
)

type stubAnalytics struct {
	calls     int
	last      types.MarketplaceQueryRequest
	lastSince time.Time
	response  *types.MarketplaceQueryResponse
	views     map[uuid.UUID]int64
	err       error
}

func (s *stubAnalytics) Query(_ context.Context, req types.MarketplaceQueryRequest) (*types.MarketplaceQueryResponse, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	if s.response == nil {
		return &types.MarketplaceQueryResponse{}, nil
	}
	return s.response, nil
}

func (s *stubAnalytics) CategoryViews(_ context.Context, since time.Time) (map[uuid.UUID]int64, error) {
	s.calls++
	s.lastSince = since
	return s.views, s.err
}

func (s *stubAnalytics) span() time.Duration {
	return s.last.End.Sub(s.last.Start)
}

func freezeNow(t testing.TB, now time.Time) {
	prev := timeNowUTC
	timeNowUTC = func() time.Time { return now }
	t.Cleanup(func() { timeNowUTC = prev })
}
