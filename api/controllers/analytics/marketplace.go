package analytics

import (
	"cmp"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/api/responses"
	"github.com/angelmondragon/gigmarket-backend/api/validators"
	"github.com/angelmondragon/gigmarket-backend/internal/analytics"
	"github.com/angelmondragon/gigmarket-backend/internal/analytics/types"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// MarketplaceAnalytics serves the admin KPI dashboard. categoryId narrows
// every series to one category.
func MarketplaceAnalytics(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := marketplaceRequest(r, timeNowUTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Query(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func marketplaceRequest(r *http.Request, now time.Time) (types.MarketplaceQueryRequest, error) {
	categoryID, err := validators.ParseQueryUUIDPtr(r, "categoryId")
	if err != nil {
		return types.MarketplaceQueryRequest{}, err
	}
	start, end, err := resolveAnalyticsRange(r, now)
	if err != nil {
		return types.MarketplaceQueryRequest{}, err
	}
	return types.MarketplaceQueryRequest{CategoryID: categoryID, Start: start, End: end}, nil
}

type categoryViewCount struct {
	CategoryID uuid.UUID `json:"category_id"`
	Views      int64     `json:"views"`
}

type categoryViewsResponse struct {
	Since      time.Time           `json:"since"`
	Categories []categoryViewCount `json:"categories"`
}

// CategoryViews ranks categories by gig page views since the start of the
// requested range, busiest first.
func CategoryViews(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since, _, err := resolveAnalyticsRange(r, timeNowUTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		counts, err := svc.CategoryViews(r.Context(), since)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := categoryViewsResponse{Since: since, Categories: make([]categoryViewCount, 0, len(counts))}
		for id, views := range counts {
			out.Categories = append(out.Categories, categoryViewCount{CategoryID: id, Views: views})
		}
		slices.SortFunc(out.Categories, func(a, b categoryViewCount) int {
			if c := cmp.Compare(b.Views, a.Views); c != 0 {
				return c
			}
			return cmp.Compare(a.CategoryID.String(), b.CategoryID.String())
		})
		responses.WriteSuccess(w, out)
	}
}
