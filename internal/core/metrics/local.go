package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	pkgerrors "github.com/sentinel-ops/sentinel-backend-go/pkg/errors"
)

// Local metric names served by the host source
const (
	MetricCPUPercent    = "cpu_percent"
	MetricMemoryPercent = "memory_percent"
	MetricDiskPercent   = "disk_percent"
)

// LocalSource samples the host the service runs on. It backs the "local"
// provider for single-node deployments without a cloud metrics backend.
type LocalSource struct {
	logger *logrus.Logger
}

// NewLocalSource creates a host-backed metric source
func NewLocalSource(logger *logrus.Logger) *LocalSource {
	return &LocalSource{logger: logger}
}

// Name returns the provider name this source serves
func (s *LocalSource) Name() string {
	return "local"
}

// Fetch returns a single current sample for the requested host metric
func (s *LocalSource) Fetch(ctx context.Context, resource *models.Resource, metric string, window time.Duration) ([]Sample, error) {
	var value float64

	switch metric {
	case MetricCPUPercent:
		percents, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil || len(percents) == 0 {
			return nil, fmt.Errorf("%w: host cpu: %v", pkgerrors.ErrSourceUnavailable, err)
		}
		value = percents[0]
	case MetricMemoryPercent:
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: host memory: %v", pkgerrors.ErrSourceUnavailable, err)
		}
		value = vm.UsedPercent
	case MetricDiskPercent:
		usage, err := disk.UsageWithContext(ctx, "/")
		if err != nil {
			return nil, fmt.Errorf("%w: host disk: %v", pkgerrors.ErrSourceUnavailable, err)
		}
		value = usage.UsedPercent
	default:
		// Unknown host metric: no data this cycle
		return nil, nil
	}

	return []Sample{{
		ResourceID: resource.ResourceID,
		Metric:     metric,
		Value:      value,
		Timestamp:  time.Now().UTC(),
	}}, nil
}

// DiscoverResourceIDs returns the local hostname as the sole discoverable
// resource. Used by onboarding discovery.
func (s *LocalSource) DiscoverResourceIDs(ctx context.Context) ([]string, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: host info: %v", pkgerrors.ErrSourceUnavailable, err)
	}
	return []string{info.Hostname}, nil
}
