package onboarding

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/metrics"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
)

// Discoverer enumerates resource identifiers visible to a metric backend
type Discoverer interface {
	DiscoverResourceIDs(ctx context.Context) ([]string, error)
}

type discoverySource struct {
	provider     string
	resourceType string
	discoverer   Discoverer
}

// Service periodically discovers resources from the configured metric
// backends and onboards any it has not seen before. Discovered resources are
// created with monitoring enabled; operators can turn individual resources
// off through the resource API.
type Service struct {
	cfg       config.OnboardingConfig
	resources repositories.ResourceRepository
	logger    *logrus.Logger
	sources   []discoverySource
	cron      *cron.Cron
}

// NewService creates the onboarding discovery service
func NewService(cfg config.OnboardingConfig, resources repositories.ResourceRepository, logger *logrus.Logger) *Service {
	return &Service{
		cfg:       cfg,
		resources: resources,
		logger:    logger,
	}
}

// RegisterAWS enables EC2 instance discovery through CloudWatch metadata
func (s *Service) RegisterAWS(source *metrics.CloudWatchSource) {
	if !s.cfg.AWSDiscovery {
		return
	}
	s.sources = append(s.sources, discoverySource{provider: "aws", resourceType: "ec2_instance", discoverer: source})
}

// RegisterPrometheus enables discovery of healthy Prometheus scrape targets
func (s *Service) RegisterPrometheus(source *metrics.PrometheusSource) {
	if !s.cfg.PrometheusDiscovery {
		return
	}
	s.sources = append(s.sources, discoverySource{provider: "prometheus", resourceType: "scrape_target", discoverer: source})
}

// RegisterLocal enables discovery of the local host
func (s *Service) RegisterLocal(source *metrics.LocalSource) {
	if !s.cfg.LocalDiscovery {
		return
	}
	s.sources = append(s.sources, discoverySource{provider: "local", resourceType: "host", discoverer: source})
}

// Start schedules periodic discovery runs
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled || len(s.sources) == 0 {
		s.logger.Info("Resource discovery disabled")
		return nil
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))

	schedule := s.cfg.Schedule
	if schedule == "" {
		schedule = "@every 10m"
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		s.Run(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule resource discovery: %w", err)
	}

	s.cron.Start()

	// First pass immediately so a fresh install has resources before the
	// first evaluation cycle.
	go s.Run(ctx)

	return nil
}

// Stop halts the discovery schedule
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Run performs one discovery pass across all registered backends and returns
// the number of newly onboarded resources
func (s *Service) Run(ctx context.Context) int {
	onboarded := 0
	for _, src := range s.sources {
		ids, err := src.discoverer.DiscoverResourceIDs(ctx)
		if err != nil {
			s.logger.WithError(err).WithField("provider", src.provider).Warn("Resource discovery failed")
			continue
		}

		for _, id := range ids {
			created, err := s.onboard(ctx, src, id)
			if err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"provider":    src.provider,
					"resource_id": id,
				}).Error("Failed to onboard discovered resource")
				continue
			}
			if created {
				onboarded++
			}
		}
	}

	if onboarded > 0 {
		s.logger.WithField("onboarded", onboarded).Info("Discovery onboarded new resources")
	}
	return onboarded
}

// onboard creates the resource if it is not already known. Returns true when
// a new resource was created.
func (s *Service) onboard(ctx context.Context, src discoverySource, resourceID string) (bool, error) {
	existing, err := s.resources.GetByResourceID(ctx, resourceID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	resource := &models.Resource{
		ResourceID:        resourceID,
		Name:              resourceID,
		Type:              src.resourceType,
		Provider:          src.provider,
		Onboarded:         true,
		MonitoringEnabled: true,
	}
	if err := s.resources.Create(ctx, resource); err != nil {
		return false, err
	}

	s.logger.WithFields(logrus.Fields{
		"provider":    src.provider,
		"resource_id": resourceID,
		"type":        src.resourceType,
	}).Info("Onboarded discovered resource")

	return true, nil
}
