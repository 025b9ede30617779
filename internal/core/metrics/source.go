package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
)

// Sample is one metric observation for a resource. Samples are ephemeral and
// produced per evaluation cycle; the core never persists them.
type Sample struct {
	ResourceID string    `json:"resource_id"`
	Metric     string    `json:"metric_name"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}

// Source pulls current metric samples for a resource from a backend. A fetch
// is one finite call per evaluation cycle and may return an empty slice when
// the backend has no fresh data. Transport and auth failures wrap
// errors.ErrSourceUnavailable; retry policy belongs to the scheduler's
// per-source circuit breaker, not here.
type Source interface {
	Name() string
	Fetch(ctx context.Context, resource *models.Resource, metric string, window time.Duration) ([]Sample, error)
}

// Registry resolves a Source by resource provider
type Registry struct {
	sources map[string]Source
}

// NewRegistry creates an empty source registry
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register binds a provider name to a source
func (r *Registry) Register(provider string, source Source) {
	r.sources[provider] = source
}

// ForProvider returns the source registered for a provider
func (r *Registry) ForProvider(provider string) (Source, bool) {
	source, ok := r.sources[provider]
	return source, ok
}

// Providers lists the registered provider names
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortSamples(samples []Sample) {
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
}
