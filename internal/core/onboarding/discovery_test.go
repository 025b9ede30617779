package onboarding

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
)

type stubDiscoverer struct {
	ids []string
	err error
}

func (s *stubDiscoverer) DiscoverResourceIDs(ctx context.Context) ([]string, error) {
	return s.ids, s.err
}

type memoryResourceRepo struct {
	resources map[string]*models.Resource
}

func newMemoryResourceRepo() *memoryResourceRepo {
	return &memoryResourceRepo{resources: make(map[string]*models.Resource)}
}

func (m *memoryResourceRepo) Create(ctx context.Context, resource *models.Resource) error {
	if _, ok := m.resources[resource.ResourceID]; ok {
		return errors.New("duplicate resource")
	}
	m.resources[resource.ResourceID] = resource
	return nil
}

func (m *memoryResourceRepo) GetByResourceID(ctx context.Context, resourceID string) (*models.Resource, error) {
	return m.resources[resourceID], nil
}

func (m *memoryResourceRepo) List(ctx context.Context, filter repositories.ResourceFilter) ([]*models.Resource, error) {
	out := []*models.Resource{}
	for _, r := range m.resources {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryResourceRepo) Update(ctx context.Context, resource *models.Resource) error { return nil }
func (m *memoryResourceRepo) Delete(ctx context.Context, resourceID string) error        { return nil }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func serviceWith(repo repositories.ResourceRepository, sources ...discoverySource) *Service {
	s := NewService(config.OnboardingConfig{Enabled: true}, repo, testLogger())
	s.sources = sources
	return s
}

func TestRunOnboardsUnknownResources(t *testing.T) {
	repo := newMemoryResourceRepo()
	s := serviceWith(repo, discoverySource{
		provider:     "prometheus",
		resourceType: "scrape_target",
		discoverer:   &stubDiscoverer{ids: []string{"node-1:9100", "node-2:9100"}},
	})

	onboarded := s.Run(context.Background())
	assert.Equal(t, 2, onboarded)

	resource := repo.resources["node-1:9100"]
	require.NotNil(t, resource)
	assert.Equal(t, "prometheus", resource.Provider)
	assert.Equal(t, "scrape_target", resource.Type)
	assert.True(t, resource.Onboarded)
	assert.True(t, resource.MonitoringEnabled)
}

func TestRunSkipsKnownResources(t *testing.T) {
	repo := newMemoryResourceRepo()
	repo.resources["node-1:9100"] = &models.Resource{ResourceID: "node-1:9100", MonitoringEnabled: false}

	s := serviceWith(repo, discoverySource{
		provider:   "prometheus",
		discoverer: &stubDiscoverer{ids: []string{"node-1:9100"}},
	})

	onboarded := s.Run(context.Background())
	assert.Equal(t, 0, onboarded)
	// Existing resource is untouched, including the operator's monitoring toggle
	assert.False(t, repo.resources["node-1:9100"].MonitoringEnabled)
}

func TestRunContinuesPastFailingBackend(t *testing.T) {
	repo := newMemoryResourceRepo()
	s := serviceWith(repo,
		discoverySource{provider: "aws", discoverer: &stubDiscoverer{err: errors.New("throttled")}},
		discoverySource{provider: "local", resourceType: "host", discoverer: &stubDiscoverer{ids: []string{"host-1"}}},
	)

	onboarded := s.Run(context.Background())
	assert.Equal(t, 1, onboarded)
	assert.NotNil(t, repo.resources["host-1"])
}

func TestRegistrationHonorsConfigToggles(t *testing.T) {
	s := NewService(config.OnboardingConfig{Enabled: true, LocalDiscovery: false}, newMemoryResourceRepo(), testLogger())
	s.RegisterLocal(nil)
	assert.Empty(t, s.sources)
}
