package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sirupsen/logrus"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	pkgerrors "github.com/sentinel-ops/sentinel-backend-go/pkg/errors"
)

// CloudWatchSource fetches metric statistics from AWS CloudWatch
type CloudWatchSource struct {
	client    *cloudwatch.Client
	namespace string
	period    int32
	logger    *logrus.Logger
}

// NewCloudWatchSource creates a CloudWatch-backed metric source using the
// default AWS credential chain
func NewCloudWatchSource(ctx context.Context, cfg config.AWSSourceConfig, logger *logrus.Logger) (*CloudWatchSource, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	period := int32(cfg.Period)
	if period <= 0 {
		period = 300
	}

	return &CloudWatchSource{
		client:    cloudwatch.NewFromConfig(awsCfg),
		namespace: cfg.Namespace,
		period:    period,
		logger:    logger,
	}, nil
}

// Name returns the provider name this source serves
func (s *CloudWatchSource) Name() string {
	return "aws"
}

// Fetch pulls averaged datapoints for the resource over the evaluation window
func (s *CloudWatchSource) Fetch(ctx context.Context, resource *models.Resource, metric string, window time.Duration) ([]Sample, error) {
	end := time.Now().UTC()
	start := end.Add(-window)

	out, err := s.client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(s.namespace),
		MetricName: aws.String(metric),
		Dimensions: []types.Dimension{
			{Name: aws.String("InstanceId"), Value: aws.String(resource.ResourceID)},
		},
		StartTime:  aws.Time(start),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(s.period),
		Statistics: []types.Statistic{types.StatisticAverage},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: cloudwatch %s for %s: %v",
			pkgerrors.ErrSourceUnavailable, metric, resource.ResourceID, err)
	}

	samples := make([]Sample, 0, len(out.Datapoints))
	for _, dp := range out.Datapoints {
		if dp.Average == nil || dp.Timestamp == nil {
			continue
		}
		samples = append(samples, Sample{
			ResourceID: resource.ResourceID,
			Metric:     metric,
			Value:      *dp.Average,
			Timestamp:  *dp.Timestamp,
		})
	}
	sortSamples(samples)

	s.logger.WithFields(logrus.Fields{
		"resource_id": resource.ResourceID,
		"metric":      metric,
		"samples":     len(samples),
	}).Debug("Fetched CloudWatch metrics")

	return samples, nil
}

// DiscoverResourceIDs lists instance IDs that currently publish metrics in
// the configured namespace. Used by onboarding discovery.
func (s *CloudWatchSource) DiscoverResourceIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	ids := []string{}

	paginator := cloudwatch.NewListMetricsPaginator(s.client, &cloudwatch.ListMetricsInput{
		Namespace: aws.String(s.namespace),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: cloudwatch list metrics: %v", pkgerrors.ErrSourceUnavailable, err)
		}
		for _, m := range page.Metrics {
			for _, dim := range m.Dimensions {
				if dim.Name != nil && *dim.Name == "InstanceId" && dim.Value != nil && !seen[*dim.Value] {
					seen[*dim.Value] = true
					ids = append(ids, *dim.Value)
				}
			}
		}
	}

	return ids, nil
}
