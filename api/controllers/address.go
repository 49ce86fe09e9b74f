package controllers

import (
	"net/http"

	"github.com/angelmondragon/gigmarket-backend/api/responses"
	"github.com/angelmondragon/gigmarket-backend/api/validators"
	"github.com/angelmondragon/gigmarket-backend/internal/address"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

type resolveAddressPayload struct {
	PlaceID string `json:"place_id" validate:"required"`
}

// AddressSuggest returns place autocomplete suggestions for gig and
// emergency location pickers.
func AddressSuggest(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		resp, err := svc.Suggest(r.Context(), address.SuggestRequest{
			Query:    validators.SanitizeString(q.Get("query"), 200),
			Country:  validators.SanitizeString(q.Get("country"), 2),
			Language: validators.SanitizeString(q.Get("language"), 10),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"suggestions": resp})
	}
}

// AddressResolve turns a place id into a city and coordinates.
func AddressResolve(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload resolveAddressPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loc, err := svc.Resolve(r.Context(), address.ResolveRequest{PlaceID: payload.PlaceID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loc)
	}
}
