package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sentinel-ops/sentinel-backend-go/internal/core/metrics"
)

func samplesAt(now time.Time, values ...float64) []metrics.Sample {
	samples := make([]metrics.Sample, len(values))
	for i, v := range values {
		samples[i] = metrics.Sample{
			ResourceID: "res-1",
			Metric:     "cpu_percent",
			Value:      v,
			Timestamp:  now.Add(time.Duration(i-len(values)) * time.Minute),
		}
	}
	return samples
}

func TestEvaluateComparators(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name       string
		comparator string
		threshold  float64
		value      float64
		want       Outcome
	}{
		{"gt breach", ">", 90, 92, OutcomeBreach},
		{"gt clear at threshold", ">", 90, 90, OutcomeClear},
		{"lt breach", "<", 10, 5, OutcomeBreach},
		{"lt clear", "<", 10, 15, OutcomeClear},
		{"gte breach at threshold", ">=", 90, 90, OutcomeBreach},
		{"lte breach at threshold", "<=", 10, 10, OutcomeBreach},
		{"eq breach exact", "==", 50, 50, OutcomeBreach},
		{"eq breach within tolerance", "==", 50, 50 + 1e-12, OutcomeBreach},
		{"eq clear", "==", 50, 50.001, OutcomeClear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &Rule{
				ID:         "r1",
				Metric:     "cpu_percent",
				Comparator: tt.comparator,
				Threshold:  tt.threshold,
			}
			decision := Evaluate(samplesAt(now, tt.value), rule, now)
			assert.Equal(t, tt.want, decision.Outcome)
			assert.Equal(t, tt.value, decision.Observed)
		})
	}
}

func TestEvaluateEmptyWindowIsIndeterminate(t *testing.T) {
	now := time.Now().UTC()
	rule := &Rule{ID: "r1", Metric: "cpu_percent", Comparator: ">", Threshold: 90}

	decision := Evaluate(nil, rule, now)
	assert.Equal(t, OutcomeIndeterminate, decision.Outcome)
}

func TestEvaluateWindowExcludesStaleSamples(t *testing.T) {
	now := time.Now().UTC()
	rule := &Rule{
		ID:         "r1",
		Metric:     "cpu_percent",
		Comparator: ">",
		Threshold:  90,
		Window:     Duration(5 * time.Minute),
	}

	// Only samples older than the window
	stale := []metrics.Sample{
		{Value: 99, Timestamp: now.Add(-10 * time.Minute)},
		{Value: 98, Timestamp: now.Add(-8 * time.Minute)},
	}
	decision := Evaluate(stale, rule, now)
	assert.Equal(t, OutcomeIndeterminate, decision.Outcome)

	// Fresh sample inside the window dominates
	fresh := append(stale, metrics.Sample{Value: 95, Timestamp: now.Add(-1 * time.Minute)})
	decision = Evaluate(fresh, rule, now)
	assert.Equal(t, OutcomeBreach, decision.Outcome)
	assert.Equal(t, 95.0, decision.Observed)
}

func TestEvaluateAggregations(t *testing.T) {
	now := time.Now().UTC()
	samples := samplesAt(now, 10, 20, 90)

	tests := []struct {
		aggregation string
		want        float64
	}{
		{AggregationLatest, 90},
		{AggregationMean, 40},
		{AggregationMax, 90},
		{"", 90}, // default is latest
	}

	for _, tt := range tests {
		rule := &Rule{
			ID:          "r1",
			Metric:      "cpu_percent",
			Comparator:  ">",
			Threshold:   0,
			Aggregation: tt.aggregation,
		}
		decision := Evaluate(samples, rule, now)
		assert.Equal(t, tt.want, decision.Observed, "aggregation %q", tt.aggregation)
	}
}

func TestEvaluateDecisionTimestampIsLatestSample(t *testing.T) {
	now := time.Now().UTC()
	samples := samplesAt(now, 10, 20, 30)

	rule := &Rule{ID: "r1", Metric: "cpu_percent", Comparator: ">", Threshold: 5}
	decision := Evaluate(samples, rule, now)

	assert.Equal(t, samples[len(samples)-1].Timestamp, decision.At)
}

func TestSelectorMatching(t *testing.T) {
	resource := testResource()

	tests := []struct {
		name     string
		selector Selector
		want     bool
	}{
		{"empty matches all", Selector{}, true},
		{"provider match", Selector{Providers: []string{"aws"}}, true},
		{"provider mismatch", Selector{Providers: []string{"prometheus"}}, false},
		{"type match", Selector{Types: []string{"ec2_instance"}}, true},
		{"resource id match", Selector{ResourceIDs: []string{"i-abc123"}}, true},
		{"resource id mismatch", Selector{ResourceIDs: []string{"i-other"}}, false},
		{"tag match", Selector{Tags: map[string]string{"env": "prod"}}, true},
		{"tag value mismatch", Selector{Tags: map[string]string{"env": "staging"}}, false},
		{"tag missing", Selector{Tags: map[string]string{"team": "core"}}, false},
		{"combined all match", Selector{Providers: []string{"aws"}, Tags: map[string]string{"env": "prod"}}, true},
		{"combined one mismatch", Selector{Providers: []string{"aws"}, Types: []string{"rds"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.selector.Matches(resource))
		})
	}
}
