// Package maps is a thin client for the Google Places (new) and Routes APIs.
// Every failure surfaces as a pkg/errors value so callers can pass it
// straight to the response writer.
package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

const (
	placesBase = "https://places.googleapis.com/v1"
	routesURL  = "https://routes.googleapis.com/directions/v2:computeRoutes"
	timeout    = 10 * time.Second
	errorPeek  = 1024

	autocompleteMask = "suggestions.placePrediction.placeId,suggestions.placePrediction.text"
	placeMask        = "id,formattedAddress,location,addressComponents"
	routeMask        = "routes.distanceMeters,routes.duration,routes.polyline.encodedPolyline"
)

type Client struct {
	http   *http.Client
	key    string
	places string
	routes string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBaseURL points Places calls somewhere else, typically a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.places = base
		}
	}
}

func WithRoutesURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimSpace(u); u != "" {
			c.routes = u
		}
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("google maps api key is required")
	}
	c := &Client{
		http:   &http.Client{Timeout: timeout},
		key:    apiKey,
		places: placesBase,
		routes: routesURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type AutocompleteRequest struct {
	Input               string   `json:"input"`
	IncludedRegionCodes []string `json:"includedRegionCodes,omitempty"`
	LanguageCode        string   `json:"languageCode,omitempty"`
}

type AutocompleteSuggestion struct {
	PlaceID     string
	Description string
}

type LatLng struct {
	Latitude  float64
	Longitude float64
}

type AddressComponent struct {
	LongName  string
	ShortName string
	Types     []string
}

type PlaceDetails struct {
	PlaceID           string
	FormattedAddress  string
	Location          LatLng
	AddressComponents []AddressComponent
}

// Route is the traffic-aware driving route between two points.
type Route struct {
	Polyline       string
	DistanceMeters int
	Duration       time.Duration
}

func (c *Client) Autocomplete(ctx context.Context, req AutocompleteRequest) ([]AutocompleteSuggestion, error) {
	if c == nil {
		return nil, notConfigured()
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "autocomplete input is required")
	}
	doc, err := c.call(ctx, "autocomplete", http.MethodPost, c.placesURL("places:autocomplete"), autocompleteMask, req)
	if err != nil {
		return nil, err
	}

	var out []AutocompleteSuggestion
	doc.Get("suggestions.#.placePrediction").ForEach(func(_, p gjson.Result) bool {
		out = append(out, AutocompleteSuggestion{
			PlaceID:     p.Get("placeId").String(),
			Description: p.Get("text.text").String(),
		})
		return true
	})
	if out == nil {
		out = []AutocompleteSuggestion{}
	}
	return out, nil
}

func (c *Client) ResolvePlace(ctx context.Context, placeID string) (*PlaceDetails, error) {
	if c == nil {
		return nil, notConfigured()
	}
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "place ID is required")
	}
	doc, err := c.call(ctx, "place details", http.MethodGet, c.placesURL("places/"+url.PathEscape(placeID)), placeMask, nil)
	if err != nil {
		return nil, err
	}

	details := &PlaceDetails{
		PlaceID:          doc.Get("id").String(),
		FormattedAddress: doc.Get("formattedAddress").String(),
		Location:         latLngOf(doc.Get("location")),
	}
	for _, comp := range doc.Get("addressComponents").Array() {
		var types []string
		for _, t := range comp.Get("types").Array() {
			types = append(types, t.String())
		}
		details.AddressComponents = append(details.AddressComponents, AddressComponent{
			LongName:  comp.Get("longText").String(),
			ShortName: comp.Get("shortText").String(),
			Types:     types,
		})
	}
	return details, nil
}

func (c *Client) Directions(ctx context.Context, origin, destination LatLng) (*Route, error) {
	if c == nil {
		return nil, notConfigured()
	}
	body := map[string]any{
		"origin":            waypoint(origin),
		"destination":       waypoint(destination),
		"travelMode":        "DRIVE",
		"routingPreference": "TRAFFIC_AWARE",
	}
	doc, err := c.call(ctx, "routes", http.MethodPost, c.routes, routeMask, body)
	if err != nil {
		return nil, err
	}

	first := doc.Get("routes.0")
	if !first.Exists() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no route found")
	}
	route := &Route{
		Polyline:       first.Get("polyline.encodedPolyline").String(),
		DistanceMeters: int(first.Get("distanceMeters").Int()),
	}
	// Durations arrive as protobuf strings such as "754s".
	if raw := first.Get("duration").String(); raw != "" {
		if route.Duration, err = time.ParseDuration(raw); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse route duration")
		}
	}
	return route, nil
}

func notConfigured() error {
	return pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
}

func waypoint(p LatLng) map[string]any {
	return map[string]any{"location": map[string]any{"latLng": map[string]float64{
		"latitude":  p.Latitude,
		"longitude": p.Longitude,
	}}}
}

func latLngOf(r gjson.Result) LatLng {
	return LatLng{Latitude: r.Get("latitude").Float(), Longitude: r.Get("longitude").Float()}
}

func (c *Client) placesURL(path string) string {
	return c.places + "/" + path
}

// call sends one field-masked request and returns the parsed JSON body.
func (c *Client) call(ctx context.Context, op, method, target, fieldMask string, body any) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode "+op+" request")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return gjson.Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+op+" request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Goog-Api-Key", c.key)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+" request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		peek, _ := io.ReadAll(io.LimitReader(resp.Body, errorPeek))
		msg := gjson.GetBytes(peek, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(peek))
		}
		return gjson.Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, msg), op+" request failed")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read "+op+" response")
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, pkgerrors.New(pkgerrors.CodeDependency, "decode "+op+" response: invalid json")
	}
	return gjson.ParseBytes(raw), nil
}
