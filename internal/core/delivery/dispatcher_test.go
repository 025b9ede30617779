package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/audit"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
	pkgerrors "github.com/sentinel-ops/sentinel-backend-go/pkg/errors"
)

// stubChannel fails a configurable number of times before succeeding
type stubChannel struct {
	name string

	mu       sync.Mutex
	failures int
	calls    int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("connection refused")
	}
	return nil
}

func (s *stubChannel) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memoryDeliveryRepo struct {
	mu       sync.Mutex
	attempts []*models.DeliveryAttempt
}

func (m *memoryDeliveryRepo) Create(ctx context.Context, attempt *models.DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *attempt
	m.attempts = append(m.attempts, &stored)
	return nil
}

func (m *memoryDeliveryRepo) ListByAlert(ctx context.Context, alertID string) ([]*models.DeliveryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.DeliveryAttempt{}, m.attempts...), nil
}

func (m *memoryDeliveryRepo) SucceededChannels(ctx context.Context, alertID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	channels := []string{}
	for _, a := range m.attempts {
		if a.AlertID == alertID && a.Status == models.DeliverySent && !seen[a.Channel] {
			seen[a.Channel] = true
			channels = append(channels, a.Channel)
		}
	}
	return channels, nil
}

func (m *memoryDeliveryRepo) byStatus(status string) []*models.DeliveryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.DeliveryAttempt{}
	for _, a := range m.attempts {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}

type memoryAuditRepo struct {
	mu      sync.Mutex
	records []*models.AuditRecord
}

func (m *memoryAuditRepo) Append(ctx context.Context, record *models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.SequenceNo = int64(len(m.records) + 1)
	stored := *record
	m.records = append(m.records, &stored)
	return nil
}

func (m *memoryAuditRepo) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditRecord, int, error) {
	return m.records, len(m.records), nil
}

func (m *memoryAuditRepo) Last(ctx context.Context) (*models.AuditRecord, error) {
	if len(m.records) == 0 {
		return nil, nil
	}
	return m.records[len(m.records)-1], nil
}

func (m *memoryAuditRepo) ListRange(ctx context.Context, afterSeq int64, limit int) ([]*models.AuditRecord, error) {
	return m.records, nil
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

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func testEvent() *Event {
	alert := &models.AlertInstance{
		ID:            "alert-1",
		RuleID:        "cpu-high",
		ResourceID:    "i-abc123",
		State:         models.AlertStateActive,
		Severity:      models.SeverityCritical,
		Message:       "cpu_percent > 90 (observed 95.00)",
		ObservedValue: 95,
		FirstBreachAt: time.Now().UTC(),
	}
	resource := &models.Resource{ResourceID: "i-abc123", Name: "web-1"}
	return NewEvent(EventRaised, alert, resource)
}

func testDispatcher(deliveryRepo *memoryDeliveryRepo, auditRepo *memoryAuditRepo, maxAttempts int) *Dispatcher {
	log := testLogger()
	return &Dispatcher{
		channels: make(map[string]Channel),
		repo:     deliveryRepo,
		audit:    audit.NewLogger(auditRepo, log),
		policy: &pkgerrors.RetryPolicy{
			MaxAttempts:   maxAttempts,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
			BackoffFactor: 1.0,
		},
		logger:     log,
		breakerCfg: config.BreakerConfig{MaxFailures: 3, Cooldown: "10m"},
		breakers:   make(map[string]*pkgerrors.CircuitBreaker),
	}
}

func TestDispatchSucceedsFirstAttempt(t *testing.T) {
	deliveryRepo := &memoryDeliveryRepo{}
	auditRepo := &memoryAuditRepo{}
	d := testDispatcher(deliveryRepo, auditRepo, 3)
	d.SetChannel(&stubChannel{name: "slack"})

	results := d.Dispatch(context.Background(), testEvent(), []string{"slack"})

	require.Len(t, results, 1)
	assert.True(t, results[0].Delivered)
	assert.Equal(t, 1, results[0].Attempts)
	assert.Len(t, deliveryRepo.byStatus(models.DeliverySent), 1)
}

func TestDispatchRetriesUntilSuccess(t *testing.T) {
	deliveryRepo := &memoryDeliveryRepo{}
	auditRepo := &memoryAuditRepo{}
	d := testDispatcher(deliveryRepo, auditRepo, 5)
	ch := &stubChannel{name: "slack", failures: 2}
	d.SetChannel(ch)

	results := d.Dispatch(context.Background(), testEvent(), []string{"slack"})

	require.Len(t, results, 1)
	assert.True(t, results[0].Delivered)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, 3, ch.callCount())
	assert.Len(t, deliveryRepo.byStatus(models.DeliveryFailed), 2)
	assert.Len(t, deliveryRepo.byStatus(models.DeliverySent), 1)
}

func TestDispatchChannelIndependence(t *testing.T) {
	deliveryRepo := &memoryDeliveryRepo{}
	auditRepo := &memoryAuditRepo{}
	d := testDispatcher(deliveryRepo, auditRepo, 3)
	d.SetChannel(&stubChannel{name: "email", failures: 100})
	d.SetChannel(&stubChannel{name: "slack"})

	results := d.Dispatch(context.Background(), testEvent(), []string{"email", "slack"})

	byChannel := map[string]Result{}
	for _, r := range results {
		byChannel[r.Channel] = r
	}

	assert.True(t, byChannel["slack"].Delivered)
	assert.False(t, byChannel["email"].Delivered)
	assert.True(t, byChannel["email"].Abandoned)
}

func TestDispatchAbandonmentAuditsAndFallsBack(t *testing.T) {
	deliveryRepo := &memoryDeliveryRepo{}
	auditRepo := &memoryAuditRepo{}
	d := testDispatcher(deliveryRepo, auditRepo, 3)
	d.SetChannel(&stubChannel{name: "slack", failures: 100})
	fallback := &stubChannel{name: "fallback"}
	d.fallback = fallback

	results := d.Dispatch(context.Background(), testEvent(), []string{"slack"})

	require.Len(t, results, 1)
	assert.True(t, results[0].Abandoned)
	assert.Equal(t, 3, results[0].Attempts)

	// Final attempt is recorded as abandoned, and the failure is audited
	assert.Len(t, deliveryRepo.byStatus(models.DeliveryAbandoned), 1)
	require.Len(t, auditRepo.byType(models.AuditDeliveryFailed), 1)
	assert.Equal(t, 1, fallback.callCount())
}

func TestDispatchBreakerOpensAfterConsecutiveAbandonments(t *testing.T) {
	deliveryRepo := &memoryDeliveryRepo{}
	auditRepo := &memoryAuditRepo{}
	d := testDispatcher(deliveryRepo, auditRepo, 2)
	ch := &stubChannel{name: "slack", failures: 1000}
	d.SetChannel(ch)

	// Breaker threshold is 3 abandonments
	for i := 0; i < 3; i++ {
		d.Dispatch(context.Background(), testEvent(), []string{"slack"})
	}
	callsBeforeOpen := ch.callCount()
	assert.Equal(t, 6, callsBeforeOpen)

	results := d.Dispatch(context.Background(), testEvent(), []string{"slack"})

	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.ErrorIs(t, results[0].Err, pkgerrors.ErrChannelOpen)
	// No further sends while the breaker is open
	assert.Equal(t, callsBeforeOpen, ch.callCount())

	// Skipped sends still leave an audit trail
	skipped := auditRepo.byType(models.AuditDeliveryFailed)
	require.NotEmpty(t, skipped)
	assert.Contains(t, skipped[len(skipped)-1].Payload, "circuit breaker open")
}

func TestDispatchUnknownChannel(t *testing.T) {
	d := testDispatcher(&memoryDeliveryRepo{}, &memoryAuditRepo{}, 3)

	results := d.Dispatch(context.Background(), testEvent(), []string{"pager"})

	require.Len(t, results, 1)
	assert.False(t, results[0].Delivered)
	assert.Error(t, results[0].Err)
}
