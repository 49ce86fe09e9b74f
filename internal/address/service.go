package address

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/maps"
)

// Service turns free-text places into the city and coordinates that gigs,
// profiles and emergency requests store.
type Service interface {
	Suggest(ctx context.Context, req SuggestRequest) ([]Suggestion, error)
	Resolve(ctx context.Context, req ResolveRequest) (Location, error)
}

type placesClient interface {
	Autocomplete(ctx context.Context, req maps.AutocompleteRequest) ([]maps.AutocompleteSuggestion, error)
	ResolvePlace(ctx context.Context, placeID string) (*maps.PlaceDetails, error)
}

type service struct {
	places placesClient
}

func NewService(client placesClient) Service {
	return &service{places: client}
}

const minQueryLength = 3

func (s *service) Suggest(ctx context.Context, req SuggestRequest) ([]Suggestion, error) {
	query := strings.TrimSpace(req.Query)
	if len(query) < minQueryLength {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("query needs at least %d characters", minQueryLength))
	}

	payload := maps.AutocompleteRequest{Input: query}
	if country := strings.TrimSpace(req.Country); country != "" {
		payload.IncludedRegionCodes = []string{strings.ToUpper(country)}
	}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		payload.LanguageCode = lang
	}

	resp, err := s.places.Autocomplete(ctx, payload)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "address autocomplete failed")
	}

	suggestions := make([]Suggestion, 0, len(resp))
	for _, item := range resp {
		if item.PlaceID == "" {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			PlaceID:     item.PlaceID,
			Description: item.Description,
		})
	}
	return suggestions, nil
}

func (s *service) Resolve(ctx context.Context, req ResolveRequest) (Location, error) {
	placeID := strings.TrimSpace(req.PlaceID)
	if placeID == "" {
		return Location{}, errors.New(errors.CodeValidation, "place_id is required")
	}

	details, err := s.places.ResolvePlace(ctx, placeID)
	if err != nil {
		return Location{}, errors.Wrap(errors.CodeDependency, err, "place lookup failed")
	}
	return toLocation(details)
}

// toLocation keeps what a gig listing needs. Street level detail is optional
// because clients often pick a neighbourhood rather than a street address.
func toLocation(details *maps.PlaceDetails) (Location, error) {
	if details == nil {
		return Location{}, errors.New(errors.CodeDependency, "place details missing")
	}
	if details.Location.Latitude == 0 && details.Location.Longitude == 0 {
		return Location{}, errors.New(errors.CodeDependency, "place location missing")
	}

	find := func(kinds ...string) string {
		for _, kind := range kinds {
			for _, comp := range details.AddressComponents {
				for _, typ := range comp.Types {
					if typ == kind && comp.LongName != "" {
						return comp.LongName
					}
				}
			}
		}
		return ""
	}

	city := find("locality", "postal_town", "sublocality", "administrative_area_level_2")
	if city == "" {
		return Location{}, errors.New(errors.CodeValidation, "place does not resolve to a city")
	}

	street := strings.TrimSpace(strings.Join([]string{find("street_number"), find("route")}, " "))

	return Location{
		PlaceID:          details.PlaceID,
		FormattedAddress: strings.TrimSpace(details.FormattedAddress),
		Street:           optional(street),
		City:             city,
		Region:           optional(find("administrative_area_level_1")),
		PostalCode:       optional(find("postal_code")),
		Country:          find("country"),
		Lat:              details.Location.Latitude,
		Lng:              details.Location.Longitude,
	}, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

type SuggestRequest struct {
	Query    string
	Country  string
	Language string
}

type ResolveRequest struct {
	PlaceID string
}

type Suggestion struct {
	PlaceID     string `json:"place_id"`
	Description string `json:"description"`
}

// Location is a resolved place, ready to copy onto a gig or emergency request.
type Location struct {
	PlaceID          string  `json:"place_id"`
	FormattedAddress string  `json:"formatted_address"`
	Street           *string `json:"street,omitempty"`
	City             string  `json:"city"`
	Region           *string `json:"region,omitempty"`
	PostalCode       *string `json:"postal_code,omitempty"`
	Country          string  `json:"country"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
}
