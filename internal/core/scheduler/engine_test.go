package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/alerting"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/audit"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/delivery"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/metrics"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/rules"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
	pkgerrors "github.com/sentinel-ops/sentinel-backend-go/pkg/errors"
)

// stubSource serves canned values per resource, or fails
type stubSource struct {
	name string

	mu      sync.Mutex
	values  map[string]float64
	failing bool
	fetches int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, resource *models.Resource, metric string, window time.Duration) ([]metrics.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.failing {
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrSourceUnavailable, "timeout")
	}
	value, ok := s.values[resource.ResourceID]
	if !ok {
		return nil, nil
	}
	return []metrics.Sample{{
		ResourceID: resource.ResourceID,
		Metric:     metric,
		Value:      value,
		Timestamp:  time.Now().UTC(),
	}}, nil
}

func (s *stubSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type memoryResourceRepo struct {
	resources []*models.Resource
}

func (m *memoryResourceRepo) Create(ctx context.Context, resource *models.Resource) error {
	m.resources = append(m.resources, resource)
	return nil
}

func (m *memoryResourceRepo) GetByResourceID(ctx context.Context, resourceID string) (*models.Resource, error) {
	for _, r := range m.resources {
		if r.ResourceID == resourceID {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memoryResourceRepo) List(ctx context.Context, filter repositories.ResourceFilter) ([]*models.Resource, error) {
	out := []*models.Resource{}
	for _, r := range m.resources {
		if filter.OnlyMonitored && !r.MonitoringEnabled {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryResourceRepo) Update(ctx context.Context, resource *models.Resource) error { return nil }
func (m *memoryResourceRepo) Delete(ctx context.Context, resourceID string) error        { return nil }

type memoryAlertRepo struct {
	mu     sync.Mutex
	alerts map[string]*models.AlertInstance
}

func newMemoryAlertRepo() *memoryAlertRepo {
	return &memoryAlertRepo{alerts: make(map[string]*models.AlertInstance)}
}

func (m *memoryAlertRepo) Create(ctx context.Context, alert *models.AlertInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *alert
	m.alerts[alert.ID] = &stored
	return nil
}

func (m *memoryAlertRepo) GetByID(ctx context.Context, id string) (*models.AlertInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[id]
	if !ok {
		return nil, errors.New("alert not found")
	}
	copied := *alert
	return &copied, nil
}

func (m *memoryAlertRepo) GetOpenByPair(ctx context.Context, ruleID, resourceID string) (*models.AlertInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, alert := range m.alerts {
		if alert.RuleID == ruleID && alert.ResourceID == resourceID && alert.State != models.AlertStateResolved {
			copied := *alert
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memoryAlertRepo) Update(ctx context.Context, alert *models.AlertInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *alert
	m.alerts[alert.ID] = &stored
	return nil
}

func (m *memoryAlertRepo) List(ctx context.Context, filter repositories.AlertFilter) ([]*models.AlertInstance, int, error) {
	return nil, 0, nil
}

func (m *memoryAlertRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryAlertRepo) byPair(ruleID, resourceID string) *models.AlertInstance {
	alert, _ := m.GetOpenByPair(context.Background(), ruleID, resourceID)
	return alert
}

type memoryAuditRepo struct {
	mu      sync.Mutex
	records []*models.AuditRecord
}

func (m *memoryAuditRepo) Append(ctx context.Context, record *models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.EventKey != "" {
		for _, existing := range m.records {
			if existing.EventKey == record.EventKey {
				*record = *existing
				return nil
			}
		}
	}
	record.SequenceNo = int64(len(m.records) + 1)
	stored := *record
	m.records = append(m.records, &stored)
	return nil
}

func (m *memoryAuditRepo) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditRecord, int, error) {
	return m.records, len(m.records), nil
}

func (m *memoryAuditRepo) Last(ctx context.Context) (*models.AuditRecord, error) { return nil, nil }

func (m *memoryAuditRepo) ListRange(ctx context.Context, afterSeq int64, limit int) ([]*models.AuditRecord, error) {
	return nil, nil
}

func (m *memoryAuditRepo) byType(eventType string) []*models.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.AuditRecord{}
	for _, r := range m.records {
		if r.EventType == eventType {
			out = append(out, r)
		}
	}
	return out
}

type memoryDeliveryRepo struct{}

func (memoryDeliveryRepo) Create(ctx context.Context, attempt *models.DeliveryAttempt) error {
	return nil
}

func (memoryDeliveryRepo) ListByAlert(ctx context.Context, alertID string) ([]*models.DeliveryAttempt, error) {
	return nil, nil
}

func (memoryDeliveryRepo) SucceededChannels(ctx context.Context, alertID string) ([]string, error) {
	return nil, nil
}

// fixedLoader cannot hot-reload; tests inject rules through the file API
func loaderWith(t *testing.T, ruleSet ...*rules.Rule) *rules.Loader {
	t.Helper()
	// Build a loader with a throwaway file, then rely on the validated set
	// written by Load. Easier to construct the YAML than to poke internals.
	var yaml string
	yaml = "rules:\n"
	for _, r := range ruleSet {
		yaml += fmt.Sprintf("  - id: %s\n    metric: %s\n    comparator: \"%s\"\n    threshold: %g\n    consecutive_breaches: %d\n",
			r.ID, r.Metric, r.Comparator, r.Threshold, r.ConsecutiveBreaches)
		if len(r.Selector.Providers) > 0 {
			yaml += "    selector:\n      providers: [" + r.Selector.Providers[0] + "]\n"
		}
	}

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	loader := rules.NewLoader(config.AlertingConfig{
		RulesPath:                  path,
		DefaultEvaluationWindow:    "5m",
		DefaultRenotifyInterval:    "15m",
		DefaultConsecutiveBreaches: 3,
	}, testLogger())
	require.NoError(t, loader.Load())
	return loader
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

type engineFixture struct {
	engine    *Engine
	alerts    *memoryAlertRepo
	auditRepo *memoryAuditRepo
	source    *stubSource
}

func newEngineFixture(t *testing.T, cfg config.SchedulerConfig, loader *rules.Loader, resources []*models.Resource, source *stubSource) *engineFixture {
	t.Helper()
	log := testLogger()

	alerts := newMemoryAlertRepo()
	auditRepo := &memoryAuditRepo{}
	auditor := audit.NewLogger(auditRepo, log)
	dispatcher := delivery.NewDispatcher(config.DeliveryConfig{
		RetryBaseDelay:   "1ms",
		RetryMaxAttempts: 1,
	}, memoryDeliveryRepo{}, auditor, log)
	suppressor := alerting.NewSuppressor(nil, log)
	machine := alerting.NewMachine(alerts, memoryDeliveryRepo{}, auditor, dispatcher, suppressor, nil, log)

	registry := metrics.NewRegistry()
	registry.Register(source.name, source)

	resourceRepo := &memoryResourceRepo{resources: resources}

	return &engineFixture{
		engine:    NewEngine(cfg, registry, loader, machine, resourceRepo, alerts, auditor, log),
		alerts:    alerts,
		auditRepo: auditRepo,
		source:    source,
	}
}

func defaultSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Interval:      "30s",
		Workers:       4,
		FetchTimeout:  "1s",
		CycleDeadline: "5s",
		SourceBreaker: config.BreakerConfig{MaxFailures: 2, Cooldown: "5m"},
	}
}

func TestRunCycleEvaluatesMatchingPairs(t *testing.T) {
	loader := loaderWith(t, &rules.Rule{
		ID: "cpu-high", Metric: "cpu_percent", Comparator: ">", Threshold: 90,
		ConsecutiveBreaches: 1,
		Selector:            rules.Selector{Providers: []string{"stub"}},
	})
	source := &stubSource{name: "stub", values: map[string]float64{
		"res-hot":  95,
		"res-cool": 40,
	}}
	resources := []*models.Resource{
		{ResourceID: "res-hot", Name: "hot", Provider: "stub", Type: "host", MonitoringEnabled: true},
		{ResourceID: "res-cool", Name: "cool", Provider: "stub", Type: "host", MonitoringEnabled: true},
		{ResourceID: "res-off", Name: "off", Provider: "stub", Type: "host", MonitoringEnabled: false},
	}
	f := newEngineFixture(t, defaultSchedulerConfig(), loader, resources, source)

	f.engine.RunCycle(context.Background())

	// Only monitored resources are evaluated
	assert.Equal(t, 2, source.fetchCount())

	hot := f.alerts.byPair("cpu-high", "res-hot")
	require.NotNil(t, hot)
	assert.Equal(t, models.AlertStateActive, hot.State)
	assert.Nil(t, f.alerts.byPair("cpu-high", "res-cool"))
	assert.Nil(t, f.alerts.byPair("cpu-high", "res-off"))
}

func TestSourceFailureTripsBreakerAndRecordsGap(t *testing.T) {
	loader := loaderWith(t, &rules.Rule{
		ID: "cpu-high", Metric: "cpu_percent", Comparator: ">", Threshold: 90,
		ConsecutiveBreaches: 1,
	})
	source := &stubSource{name: "stub", failing: true}
	resources := []*models.Resource{
		{ResourceID: "res-1", Provider: "stub", Type: "host", MonitoringEnabled: true},
	}
	f := newEngineFixture(t, defaultSchedulerConfig(), loader, resources, source)

	// Breaker threshold is 2 consecutive failures
	f.engine.RunCycle(context.Background())
	f.engine.RunCycle(context.Background())
	require.Equal(t, 2, source.fetchCount())

	// Breaker open: the source is not consulted, the gap is still recorded
	f.engine.RunCycle(context.Background())
	assert.Equal(t, 2, source.fetchCount())

	gaps := f.auditRepo.byType(models.AuditCoverageGap)
	assert.Len(t, gaps, 3)

	// No alert was raised or resolved from the gap
	assert.Nil(t, f.alerts.byPair("cpu-high", "res-1"))
}

func TestSourceFailureNeverResolvesActiveAlert(t *testing.T) {
	loader := loaderWith(t, &rules.Rule{
		ID: "cpu-high", Metric: "cpu_percent", Comparator: ">", Threshold: 90,
		ConsecutiveBreaches: 1,
	})
	source := &stubSource{name: "stub", values: map[string]float64{"res-1": 95}}
	resources := []*models.Resource{
		{ResourceID: "res-1", Provider: "stub", Type: "host", MonitoringEnabled: true},
	}
	f := newEngineFixture(t, defaultSchedulerConfig(), loader, resources, source)

	f.engine.RunCycle(context.Background())
	require.Equal(t, models.AlertStateActive, f.alerts.byPair("cpu-high", "res-1").State)

	source.mu.Lock()
	source.failing = true
	source.mu.Unlock()

	f.engine.RunCycle(context.Background())

	// Indeterminate: the alert stays active
	alert := f.alerts.byPair("cpu-high", "res-1")
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertStateActive, alert.State)
	assert.Equal(t, 0, alert.ClearCount)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("pair")
			defer km.Unlock("pair")

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestKeyedMutexAllowsDistinctKeys(t *testing.T) {
	km := newKeyedMutex()
	km.Lock("a")
	defer km.Unlock("a")

	done := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a distinct key blocked")
	}
}
