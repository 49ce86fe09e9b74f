package maps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

type captured struct {
	method string
	path   string
	key    string
	mask   string
	body   map[string]any
}

func fakeGoogle(t *testing.T, status int, reply string) (*Client, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.key = r.Header.Get("X-Goog-Api-Key")
		got.mask = r.Header.Get("X-Goog-FieldMask")
		if r.Body != nil && r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&got.body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(" maps-key ",
		WithBaseURL(srv.URL+"/v1/"),
		WithRoutesURL(srv.URL+"/directions/v2:computeRoutes"),
		WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return client, got
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient("  ")
	assert.Error(t, err)
}

func TestAutocomplete(t *testing.T) {
	client, got := fakeGoogle(t, http.StatusOK,
		`{"suggestions":[{"placePrediction":{"placeId":"p1","text":{"text":"12 Harbour Rd"}}},{"queryPrediction":{}}]}`)

	out, err := client.Autocomplete(context.Background(), AutocompleteRequest{Input: "12 harb", IncludedRegionCodes: []string{"IE"}})
	require.NoError(t, err)

	assert.Equal(t, []AutocompleteSuggestion{{PlaceID: "p1", Description: "12 Harbour Rd"}}, out)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/v1/places:autocomplete", got.path)
	assert.Equal(t, "maps-key", got.key)
	assert.Equal(t, autocompleteMask, got.mask)
	assert.Equal(t, "12 harb", got.body["input"])
	assert.Equal(t, []any{"IE"}, got.body["includedRegionCodes"])
}

func TestAutocompleteEmptyInput(t *testing.T) {
	client, _ := fakeGoogle(t, http.StatusOK, `{}`)
	_, err := client.Autocomplete(context.Background(), AutocompleteRequest{Input: " "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	out, err := client.Autocomplete(context.Background(), AutocompleteRequest{Input: "x"})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestResolvePlace(t *testing.T) {
	client, got := fakeGoogle(t, http.StatusOK, `{
		"id":"p1","formattedAddress":"12 Harbour Rd, Dublin",
		"location":{"latitude":53.34,"longitude":-6.26},
		"addressComponents":[{"longText":"Dublin","shortText":"D","types":["locality","political"]}]}`)

	details, err := client.ResolvePlace(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/v1/places/p1", got.path)
	assert.Equal(t, placeMask, got.mask)
	assert.Equal(t, "12 Harbour Rd, Dublin", details.FormattedAddress)
	assert.Equal(t, LatLng{Latitude: 53.34, Longitude: -6.26}, details.Location)
	require.Len(t, details.AddressComponents, 1)
	assert.Equal(t, []string{"locality", "political"}, details.AddressComponents[0].Types)
}

func TestUpstreamErrorIsDependency(t *testing.T) {
	client, _ := fakeGoogle(t, http.StatusForbidden, `{"error":{"code":403,"message":"API key not valid"}}`)

	_, err := client.ResolvePlace(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestDirections(t *testing.T) {
	client, got := fakeGoogle(t, http.StatusOK,
		`{"routes":[{"distanceMeters":4210,"duration":"754s","polyline":{"encodedPolyline":"a~l~Fjk~uOwHJy@P"}}]}`)

	route, err := client.Directions(context.Background(), LatLng{Latitude: 40.71, Longitude: -74.0}, LatLng{Latitude: 40.73, Longitude: -73.99})
	require.NoError(t, err)

	assert.Equal(t, "/directions/v2:computeRoutes", got.path)
	assert.Equal(t, routeMask, got.mask)
	assert.Equal(t, "DRIVE", got.body["travelMode"])
	origin := got.body["origin"].(map[string]any)["location"].(map[string]any)["latLng"].(map[string]any)
	assert.Equal(t, 40.71, origin["latitude"])
	assert.Equal(t, &Route{Polyline: "a~l~Fjk~uOwHJy@P", DistanceMeters: 4210, Duration: 754 * time.Second}, route)
}

func TestDirectionsNoRoute(t *testing.T) {
	client, _ := fakeGoogle(t, http.StatusOK, `{}`)
	_, err := client.Directions(context.Background(), LatLng{}, LatLng{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var unset *Client
	_, err = unset.Directions(context.Background(), LatLng{}, LatLng{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestInvalidJSONIsDependency(t *testing.T) {
	client, _ := fakeGoogle(t, http.StatusOK, `{"routes":[`)
	_, err := client.Directions(context.Background(), LatLng{}, LatLng{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
