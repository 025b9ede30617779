package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	pkgerrors "github.com/sentinel-ops/sentinel-backend-go/pkg/errors"
)

// PrometheusSource fetches samples from a Prometheus query endpoint
type PrometheusSource struct {
	baseURL string
	step    time.Duration
	client  *http.Client
	logger  *logrus.Logger
}

// NewPrometheusSource creates a Prometheus-backed metric source
func NewPrometheusSource(cfg config.PrometheusSourceConfig, logger *logrus.Logger) *PrometheusSource {
	step := config.Duration(cfg.Step, time.Minute)
	return &PrometheusSource{
		baseURL: cfg.URL,
		step:    step,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Name returns the provider name this source serves
func (s *PrometheusSource) Name() string {
	return "prometheus"
}

type promQueryResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string       `json:"resultType"`
		Result     model.Matrix `json:"result"`
	} `json:"data"`
	Error string `json:"error"`
}

// Fetch runs a range query for the metric scoped to the resource instance
func (s *PrometheusSource) Fetch(ctx context.Context, resource *models.Resource, metric string, window time.Duration) ([]Sample, error) {
	end := time.Now().UTC()
	start := end.Add(-window)

	params := url.Values{}
	params.Set("query", fmt.Sprintf("%s{instance=%q}", metric, resource.ResourceID))
	params.Set("start", strconv.FormatInt(start.Unix(), 10))
	params.Set("end", strconv.FormatInt(end.Unix(), 10))
	params.Set("step", strconv.FormatInt(int64(s.step.Seconds()), 10))

	endpoint := s.baseURL + "/api/v1/query_range?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build prometheus request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: prometheus query: %v", pkgerrors.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: prometheus returned status %d", pkgerrors.ErrSourceUnavailable, resp.StatusCode)
	}

	var decoded promQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding prometheus response: %v", pkgerrors.ErrSourceUnavailable, err)
	}
	if decoded.Status != "success" {
		return nil, fmt.Errorf("%w: prometheus query failed: %s", pkgerrors.ErrSourceUnavailable, decoded.Error)
	}

	samples := []Sample{}
	for _, series := range decoded.Data.Result {
		for _, pair := range series.Values {
			samples = append(samples, Sample{
				ResourceID: resource.ResourceID,
				Metric:     metric,
				Value:      float64(pair.Value),
				Timestamp:  pair.Timestamp.Time(),
			})
		}
	}
	sortSamples(samples)

	s.logger.WithFields(logrus.Fields{
		"resource_id": resource.ResourceID,
		"metric":      metric,
		"samples":     len(samples),
	}).Debug("Fetched Prometheus metrics")

	return samples, nil
}

type promTargetsResponse struct {
	Status string `json:"status"`
	Data   struct {
		ActiveTargets []struct {
			Labels map[string]string `json:"labels"`
			Health string            `json:"health"`
		} `json:"activeTargets"`
	} `json:"data"`
}

// DiscoverResourceIDs lists healthy scrape target instances. Used by
// onboarding discovery.
func (s *PrometheusSource) DiscoverResourceIDs(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v1/targets", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build targets request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: prometheus targets: %v", pkgerrors.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: prometheus targets returned status %d", pkgerrors.ErrSourceUnavailable, resp.StatusCode)
	}

	var decoded promTargetsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding targets response: %v", pkgerrors.ErrSourceUnavailable, err)
	}

	seen := make(map[string]bool)
	ids := []string{}
	for _, target := range decoded.Data.ActiveTargets {
		if target.Health != "up" {
			continue
		}
		instance := target.Labels["instance"]
		if instance != "" && !seen[instance] {
			seen[instance] = true
			ids = append(ids, instance)
		}
	}

	return ids, nil
}
