package rules

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
)

// Aggregation policies for windowed rules
const (
	AggregationLatest = "latest"
	AggregationMean   = "mean"
	AggregationMax    = "max"
)

// Duration wraps time.Duration with YAML string parsing ("5m", "30s")
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Selector matches a rule against resources by provider, type, tags, or
// explicit resource IDs. An empty selector matches every resource.
type Selector struct {
	Providers   []string          `yaml:"providers"`
	Types       []string          `yaml:"types"`
	ResourceIDs []string          `yaml:"resource_ids"`
	Tags        map[string]string `yaml:"tags"`
}

// Matches reports whether the selector applies to the resource
func (s Selector) Matches(resource *models.Resource) bool {
	if len(s.Providers) > 0 && !contains(s.Providers, resource.Provider) {
		return false
	}
	if len(s.Types) > 0 && !contains(s.Types, resource.Type) {
		return false
	}
	if len(s.ResourceIDs) > 0 && !contains(s.ResourceIDs, resource.ResourceID) {
		return false
	}
	for key, want := range s.Tags {
		if resource.Tags[key] != want {
			return false
		}
	}
	return true
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// Rule is a declarative threshold condition bound to a metric and a resource
// selector. Rules are immutable once loaded for a cycle; the loader swaps the
// whole set between cycles.
type Rule struct {
	ID                  string   `yaml:"id" validate:"required"`
	Metric              string   `yaml:"metric" validate:"required"`
	Selector            Selector `yaml:"selector"`
	Comparator          string   `yaml:"comparator" validate:"required,oneof=> < >= <= =="`
	Threshold           float64  `yaml:"threshold"`
	Window              Duration `yaml:"window"`
	Aggregation         string   `yaml:"aggregation" validate:"omitempty,oneof=latest mean max"`
	ConsecutiveBreaches int      `yaml:"consecutive_breaches" validate:"omitempty,min=1"`
	Severity            string   `yaml:"severity" validate:"omitempty,oneof=info warning critical security"`
	RenotifyInterval    Duration `yaml:"renotify_interval"`
	Channels            []string `yaml:"channels" validate:"dive,oneof=email slack teams webhook"`
}

// String implements fmt.Stringer for log output
func (r *Rule) String() string {
	return fmt.Sprintf("%s: %s %s %g", r.ID, r.Metric, r.Comparator, r.Threshold)
}
