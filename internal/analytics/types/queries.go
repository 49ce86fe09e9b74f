package types

import (
	"time"

	"github.com/google/uuid"
)

// queryResolution is the coarsest time step dashboard windows are kept at.
// Windows ending at "now" would otherwise never repeat.
const queryResolution = time.Minute

// MarketplaceQueryRequest selects the dashboard window. A nil CategoryID
// covers the whole marketplace.
type MarketplaceQueryRequest struct {
	CategoryID *uuid.UUID
	Start      time.Time
	End        time.Time
}

// Normalized returns the request in UTC with both bounds floored to the
// minute.
func (r MarketplaceQueryRequest) Normalized() MarketplaceQueryRequest {
	r.Start = r.Start.UTC().Truncate(queryResolution)
	r.End = r.End.UTC().Truncate(queryResolution)
	return r
}

// CacheKey identifies the request; call it on a normalized request.
func (r MarketplaceQueryRequest) CacheKey() string {
	scope := "all"
	if r.CategoryID != nil {
		scope = r.CategoryID.String()
	}
	return "kpi:" + scope + ":" + r.Start.Format(time.RFC3339) + ":" + r.End.Format(time.RFC3339)
}

type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LabelValue is one entry of a top-N list.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// MarketplaceQueryResponse is the admin dashboard payload. Money is in
// cents; series are one point per UTC day with activity.
type MarketplaceQueryResponse struct {
	GigsPosted        []TimeSeriesPoint `json:"gigs_posted"`
	GigsCompleted     []TimeSeriesPoint `json:"gigs_completed"`
	Proposals         []TimeSeriesPoint `json:"proposals"`
	ReleasedVolume    []TimeSeriesPoint `json:"released_volume"`
	PlatformFees      []TimeSeriesPoint `json:"platform_fees"`
	TopCategories     []LabelValue      `json:"top_categories"`
	TopCities         []LabelValue      `json:"top_cities"`
	AvgReleasedCents  float64           `json:"avg_released_cents"`
	AvgRating         float64           `json:"avg_rating"`
	EmergencyRequests int64             `json:"emergency_requests"`
}
