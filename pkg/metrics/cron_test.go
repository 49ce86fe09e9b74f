package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronMetricsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_780_000_000, 0) }

	m.Observe("escrow_release", 2*time.Second, nil)
	m.Observe("escrow_release", time.Second, errors.New("stripe down"))
	m.Skipped("escrow_release")
	m.Skipped("")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	for outcome, want := range map[string]float64{OutcomeSuccess: 1, OutcomeFailure: 1, OutcomeSkipped: 1} {
		series := findMetric(mfs, "gigmarket_cron_job_runs_total", "job", "escrow_release", "outcome", outcome)
		require.NotNil(t, series, outcome)
		assert.Equal(t, want, series.GetCounter().GetValue(), outcome)
	}
	assert.NotNil(t, findMetric(mfs, "gigmarket_cron_job_runs_total", "job", "unknown", "outcome", OutcomeSkipped))

	hist := findMetric(mfs, "gigmarket_cron_job_duration_seconds", "job", "escrow_release")
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.GetHistogram().GetSampleCount())
	assert.InDelta(t, 3.0, hist.GetHistogram().GetSampleSum(), 1e-9)

	last := findMetric(mfs, "gigmarket_cron_job_last_success_timestamp_seconds", "job", "escrow_release")
	require.NotNil(t, last)
	assert.Equal(t, float64(1_780_000_000), last.GetGauge().GetValue())
}

func TestCronMetricsNilSafe(t *testing.T) {
	m := NewCronMetrics(nil)
	assert.Nil(t, m)
	m.Observe("job", time.Second, nil)
	m.Skipped("job")
}

// findMetric returns the series of family name whose labels include every
// name/value pair in kv.
func findMetric(mfs []*dto.MetricFamily, name string, kv ...string) *dto.Metric {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabels(metric.GetLabel(), kv) {
				return metric
			}
		}
	}
	return nil
}

func hasLabels(labels []*dto.LabelPair, kv []string) bool {
	for i := 0; i+1 < len(kv); i += 2 {
		found := false
		for _, l := range labels {
			if l.GetName() == kv[i] && l.GetValue() == kv[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	m := findMetric(mfs, name, label, value)
	if m == nil {
		return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
	}
	return m.GetCounter().GetValue(), nil
}
