package rules

import (
	"math"
	"time"

	"github.com/sentinel-ops/sentinel-backend-go/internal/core/metrics"
)

// Outcome of a single-cycle rule evaluation
type Outcome int

const (
	// OutcomeIndeterminate means no samples fell inside the evaluation
	// window. It neither raises nor resolves an alert, which prevents a
	// false resolve during a metric source gap.
	OutcomeIndeterminate Outcome = iota
	OutcomeClear
	OutcomeBreach
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBreach:
		return "breach"
	case OutcomeClear:
		return "clear"
	default:
		return "indeterminate"
	}
}

// Decision is the result of evaluating one rule against one resource's
// samples for one cycle. Consecutive-cycle counting is the state machine's
// concern, not the evaluator's.
type Decision struct {
	Outcome  Outcome
	Observed float64
	At       time.Time
}

// floatEq tolerance for the == comparator
const epsilon = 1e-9

// Evaluate aggregates the samples inside the rule's window and compares the
// aggregate against the threshold. Pure function, no I/O.
func Evaluate(samples []metrics.Sample, rule *Rule, now time.Time) Decision {
	windowed := samples
	if window := rule.Window.Std(); window > 0 {
		cutoff := now.Add(-window)
		windowed = windowed[:0:0]
		for _, s := range samples {
			if !s.Timestamp.Before(cutoff) {
				windowed = append(windowed, s)
			}
		}
	}

	if len(windowed) == 0 {
		return Decision{Outcome: OutcomeIndeterminate, At: now}
	}

	observed, at := aggregate(windowed, rule.Aggregation)

	outcome := OutcomeClear
	if compare(observed, rule.Comparator, rule.Threshold) {
		outcome = OutcomeBreach
	}

	return Decision{Outcome: outcome, Observed: observed, At: at}
}

func aggregate(samples []metrics.Sample, policy string) (float64, time.Time) {
	latest := samples[len(samples)-1]

	switch policy {
	case AggregationMean:
		sum := 0.0
		for _, s := range samples {
			sum += s.Value
		}
		return sum / float64(len(samples)), latest.Timestamp
	case AggregationMax:
		max := samples[0].Value
		for _, s := range samples[1:] {
			if s.Value > max {
				max = s.Value
			}
		}
		return max, latest.Timestamp
	default:
		// Instantaneous rules use the latest value
		return latest.Value, latest.Timestamp
	}
}

func compare(observed float64, comparator string, threshold float64) bool {
	switch comparator {
	case ">":
		return observed > threshold
	case "<":
		return observed < threshold
	case ">=":
		return observed >= threshold
	case "<=":
		return observed <= threshold
	case "==":
		return math.Abs(observed-threshold) < epsilon
	default:
		return false
	}
}
