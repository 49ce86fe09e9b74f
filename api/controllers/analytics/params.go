package analytics

import (
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

const (
	defaultPreset = "30d"
	maxRangeSpan  = 366 * 24 * time.Hour
	dateOnly      = "2006-01-02"
)

var presets = map[string]time.Duration{
	"24h":  24 * time.Hour,
	"7d":   7 * 24 * time.Hour,
	"30d":  30 * 24 * time.Hour,
	"90d":  90 * 24 * time.Hour,
	"365d": 365 * 24 * time.Hour,
}

var timeNowUTC = func() time.Time {
	return time.Now().UTC()
}

// resolveAnalyticsRange reads either an explicit from/to pair or a preset
// ending at now. A date-only `to` covers that whole day.
func resolveAnalyticsRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	query := r.URL.Query()
	from := strings.TrimSpace(query.Get("from"))
	to := strings.TrimSpace(query.Get("to"))

	if from == "" && to == "" {
		name := strings.ToLower(strings.TrimSpace(query.Get("preset")))
		if name == "" {
			name = defaultPreset
		}
		span, ok := presets[name]
		if !ok {
			return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid preset").
				WithDetails(map[string]any{"field": "preset", "allowed": []string{"24h", "7d", "30d", "90d", "365d"}})
		}
		return now.Add(-span), now, nil
	}
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "from and to must be provided together")
	}

	start, _, err := parseBound("from", from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, wholeDay, err := parseBound("to", to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if wholeDay {
		end = end.AddDate(0, 0, 1)
	}
	switch {
	case !end.After(start):
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "to must be after from")
	case end.Sub(start) > maxRangeSpan:
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "range may not exceed 366 days")
	}
	return start, end, nil
}

func parseBound(field, raw string) (time.Time, bool, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), false, nil
	}
	if day, err := time.Parse(dateOnly, raw); err == nil {
		return day, true, nil
	}
	return time.Time{}, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+field+" timestamp").
		WithDetails(map[string]any{"field": field})
}
