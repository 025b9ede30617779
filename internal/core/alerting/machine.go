package alerting

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sentinel-ops/sentinel-backend-go/internal/core/audit"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/delivery"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/rules"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/telemetry"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
)

// Broadcaster pushes alert lifecycle events to connected clients
type Broadcaster interface {
	BroadcastAlert(eventType string, alert *models.AlertInstance)
}

// NopBroadcaster discards broadcasts
type NopBroadcaster struct{}

// BroadcastAlert implements Broadcaster
func (NopBroadcaster) BroadcastAlert(string, *models.AlertInstance) {}

// Machine owns every AlertInstance mutation. It enforces the lifecycle
// Pending -> Active -> Resolved, the consecutive-cycle counting that absorbs
// transient spikes, the re-notify dedup interval, and the contract that no
// state transition advances past a failed audit write.
//
// The scheduler serializes calls per (rule, resource) pair, so the machine
// itself needs no locking beyond the repositories' guarantees.
type Machine struct {
	alerts     repositories.AlertRepository
	deliveries repositories.DeliveryRepository
	audit      *audit.Logger
	dispatcher *delivery.Dispatcher
	suppressor *Suppressor
	hub        Broadcaster
	logger     *logrus.Logger
	now        func() time.Time
}

// NewMachine creates the alert state machine
func NewMachine(
	alerts repositories.AlertRepository,
	deliveries repositories.DeliveryRepository,
	auditLog *audit.Logger,
	dispatcher *delivery.Dispatcher,
	suppressor *Suppressor,
	hub Broadcaster,
	logger *logrus.Logger,
) *Machine {
	if hub == nil {
		hub = NopBroadcaster{}
	}
	return &Machine{
		alerts:     alerts,
		deliveries: deliveries,
		audit:      auditLog,
		dispatcher: dispatcher,
		suppressor: suppressor,
		hub:        hub,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the machine's clock. Used by tests.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Apply processes one cycle's evaluation decision for a (rule, resource)
// pair. An error return means the transition did not complete and the same
// decision must be retried on the next tick.
func (m *Machine) Apply(ctx context.Context, rule *rules.Rule, resource *models.Resource, decision rules.Decision) error {
	if decision.Outcome == rules.OutcomeIndeterminate {
		// No data: neither raise nor resolve
		return nil
	}

	instance, err := m.alerts.GetOpenByPair(ctx, rule.ID, resource.ResourceID)
	if err != nil {
		return fmt.Errorf("failed to load open alert for pair: %w", err)
	}

	// Stale cycle guard: the later observation wins, earlier ones are
	// discarded. Should not trigger under per-pair serialization.
	if instance != nil && decision.At.Before(instance.LastBreachAt) {
		m.logger.WithFields(logrus.Fields{
			"rule_id":     rule.ID,
			"resource_id": resource.ResourceID,
			"decision_at": decision.At,
		}).Debug("Discarding stale evaluation decision")
		return nil
	}

	switch decision.Outcome {
	case rules.OutcomeBreach:
		return m.applyBreach(ctx, rule, resource, instance, decision)
	case rules.OutcomeClear:
		return m.applyClear(ctx, rule, resource, instance, decision)
	}
	return nil
}

func (m *Machine) applyBreach(ctx context.Context, rule *rules.Rule, resource *models.Resource, instance *models.AlertInstance, decision rules.Decision) error {
	telemetry.BreachesTotal.WithLabelValues(rule.ID).Inc()

	if instance == nil {
		instance = &models.AlertInstance{
			ID:            uuid.New().String(),
			RuleID:        rule.ID,
			ResourceID:    resource.ResourceID,
			State:         models.AlertStatePending,
			Severity:      rule.Severity,
			Message:       breachMessage(rule, decision),
			ObservedValue: decision.Observed,
			FirstBreachAt: decision.At,
			LastBreachAt:  decision.At,
			BreachCount:   1,
		}
		if err := m.alerts.Create(ctx, instance); err != nil {
			return fmt.Errorf("failed to create pending alert: %w", err)
		}
	} else {
		instance.BreachCount++
		instance.ClearCount = 0
		instance.LastBreachAt = decision.At
		instance.ObservedValue = decision.Observed
		instance.Message = breachMessage(rule, decision)
		if err := m.alerts.Update(ctx, instance); err != nil {
			return fmt.Errorf("failed to update alert on breach: %w", err)
		}
	}

	switch instance.State {
	case models.AlertStatePending:
		if instance.BreachCount >= rule.ConsecutiveBreaches {
			return m.activate(ctx, rule, resource, instance)
		}
	case models.AlertStateActive:
		return m.renotify(ctx, rule, resource, instance)
	}
	return nil
}

// activate raises the alert. The Raised audit record is written before the
// state advances; if the write fails the instance stays pending and the
// promotion is retried next cycle (the audit event key makes that retry
// idempotent).
func (m *Machine) activate(ctx context.Context, rule *rules.Rule, resource *models.Resource, instance *models.AlertInstance) error {
	now := m.now().UTC()
	reason, suppressed := m.suppressor.Match(rule.ID, resource.ResourceID, now)

	_, err := m.audit.Append(ctx, audit.Event{
		Type:    models.AuditRaised,
		AlertID: instance.ID,
		Key:     "raised|" + instance.ID,
		Payload: map[string]interface{}{
			"rule_id":        rule.ID,
			"resource_id":    resource.ResourceID,
			"severity":       instance.Severity,
			"observed_value": instance.ObservedValue,
			"breach_count":   instance.BreachCount,
		},
	})
	if err != nil {
		return err
	}
	telemetry.AuditAppendsTotal.WithLabelValues(models.AuditRaised).Inc()

	instance.State = models.AlertStateActive
	instance.Suppressed = suppressed
	if err := m.alerts.Update(ctx, instance); err != nil {
		return fmt.Errorf("failed to activate alert: %w", err)
	}

	telemetry.AlertsRaisedTotal.Inc()
	m.hub.BroadcastAlert(delivery.EventRaised, instance)

	m.logger.WithFields(logrus.Fields{
		"alert_id":     instance.ID,
		"rule_id":      rule.ID,
		"resource_id":  resource.ResourceID,
		"severity":     instance.Severity,
		"breach_count": instance.BreachCount,
		"suppressed":   suppressed,
	}).Info("Alert raised")

	if suppressed {
		m.auditSuppression(ctx, instance, reason)
		return nil
	}

	return m.notify(ctx, resource, instance, rule.Channels, delivery.EventRaised)
}

// renotify re-sends a still-active alert, but never more frequently than the
// rule's re-notify interval. This is the dedup/flap-suppression policy.
func (m *Machine) renotify(ctx context.Context, rule *rules.Rule, resource *models.Resource, instance *models.AlertInstance) error {
	now := m.now().UTC()

	// Suppression windows are re-checked each cycle so an operator window
	// takes effect on already-active alerts.
	reason, suppressed := m.suppressor.Match(rule.ID, resource.ResourceID, now)
	if suppressed != instance.Suppressed {
		instance.Suppressed = suppressed
		if err := m.alerts.Update(ctx, instance); err != nil {
			return fmt.Errorf("failed to update suppression flag: %w", err)
		}
		if suppressed {
			m.auditSuppression(ctx, instance, reason)
		}
	}
	if suppressed {
		return nil
	}

	interval := rule.RenotifyInterval.Std()
	if interval <= 0 {
		return nil
	}
	if instance.LastNotifiedAt.Valid && now.Sub(instance.LastNotifiedAt.Time) < interval {
		return nil
	}

	return m.notify(ctx, resource, instance, rule.Channels, delivery.EventRaised)
}

func (m *Machine) applyClear(ctx context.Context, rule *rules.Rule, resource *models.Resource, instance *models.AlertInstance, decision rules.Decision) error {
	if instance == nil {
		return nil
	}

	switch instance.State {
	case models.AlertStatePending:
		// The breach never reached the consecutive-count threshold:
		// discard the pending instance without raising.
		instance.State = models.AlertStateResolved
		instance.ResolvedAt = sql.NullTime{Time: m.now().UTC(), Valid: true}
		if err := m.alerts.Update(ctx, instance); err != nil {
			return fmt.Errorf("failed to discard pending alert: %w", err)
		}
		return nil

	case models.AlertStateActive:
		instance.ClearCount++
		if instance.ClearCount < rule.ConsecutiveBreaches {
			if err := m.alerts.Update(ctx, instance); err != nil {
				return fmt.Errorf("failed to update clear count: %w", err)
			}
			return nil
		}
		return m.resolve(ctx, rule, resource, instance, "system")
	}
	return nil
}

// resolve transitions an active alert to resolved. The Resolved audit record
// is written first; on failure the alert stays active and the resolve is
// retried next cycle.
func (m *Machine) resolve(ctx context.Context, rule *rules.Rule, resource *models.Resource, instance *models.AlertInstance, actor string) error {
	now := m.now().UTC()

	_, err := m.audit.Append(ctx, audit.Event{
		Type:    models.AuditResolved,
		AlertID: instance.ID,
		Actor:   actor,
		Key:     "resolved|" + instance.ID,
		Payload: map[string]interface{}{
			"rule_id":     instance.RuleID,
			"resource_id": instance.ResourceID,
			"message":     instance.Message,
		},
	})
	if err != nil {
		return err
	}
	telemetry.AuditAppendsTotal.WithLabelValues(models.AuditResolved).Inc()

	instance.State = models.AlertStateResolved
	instance.ResolvedAt = sql.NullTime{Time: now, Valid: true}
	if err := m.alerts.Update(ctx, instance); err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}

	telemetry.AlertsResolvedTotal.Inc()
	m.hub.BroadcastAlert(delivery.EventResolved, instance)

	m.logger.WithFields(logrus.Fields{
		"alert_id":    instance.ID,
		"rule_id":     instance.RuleID,
		"resource_id": instance.ResourceID,
		"actor":       actor,
	}).Info("Alert resolved")

	if !instance.Suppressed && rule != nil {
		event := delivery.NewEvent(delivery.EventResolved, instance, resource)
		m.dispatcher.Dispatch(ctx, event, rule.Channels)
	}

	return nil
}

// securityRuleID groups externally raised security alerts. No threshold rule
// carries this ID, so the scheduler never touches them; they resolve manually.
const securityRuleID = "security"

// RaiseSecurity raises an immediately-active security alert outside the
// threshold evaluation path, for externally detected events (intrusion
// findings, anomalous access). Raising again while an instance is open for
// the same resource returns the open instance instead of duplicating it.
func (m *Machine) RaiseSecurity(ctx context.Context, resourceID, message, actor string, channels []string) (*models.AlertInstance, error) {
	existing, err := m.alerts.GetOpenByPair(ctx, securityRuleID, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for open security alert: %w", err)
	}
	if existing != nil {
		if existing.State == models.AlertStateActive {
			return existing, nil
		}
		// A pending security instance means an earlier raise failed its
		// audit write. No scheduler cycle retries the reserved security
		// rule, so the raise itself resumes the activation; the raised|<id>
		// event key keeps the retried append idempotent.
		if err := m.activateSecurity(ctx, existing, actor, channels); err != nil {
			return nil, err
		}
		return existing, nil
	}

	now := m.now().UTC()
	instance := &models.AlertInstance{
		ID:            uuid.New().String(),
		RuleID:        securityRuleID,
		ResourceID:    resourceID,
		State:         models.AlertStatePending,
		Severity:      models.SeveritySecurity,
		Message:       message,
		FirstBreachAt: now,
		LastBreachAt:  now,
		BreachCount:   1,
	}
	if err := m.alerts.Create(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to create security alert: %w", err)
	}

	if err := m.activateSecurity(ctx, instance, actor, channels); err != nil {
		return nil, err
	}
	return instance, nil
}

// activateSecurity promotes a pending security instance to active. The
// Raised audit record is written before the state advances, matching the
// threshold activation path.
func (m *Machine) activateSecurity(ctx context.Context, instance *models.AlertInstance, actor string, channels []string) error {
	now := m.now().UTC()
	reason, suppressed := m.suppressor.Match(securityRuleID, instance.ResourceID, now)

	_, err := m.audit.Append(ctx, audit.Event{
		Type:    models.AuditRaised,
		AlertID: instance.ID,
		Actor:   actor,
		Key:     "raised|" + instance.ID,
		Payload: map[string]interface{}{
			"rule_id":     securityRuleID,
			"resource_id": instance.ResourceID,
			"severity":    models.SeveritySecurity,
			"message":     instance.Message,
		},
	})
	if err != nil {
		return err
	}
	telemetry.AuditAppendsTotal.WithLabelValues(models.AuditRaised).Inc()

	instance.State = models.AlertStateActive
	instance.Suppressed = suppressed
	if err := m.alerts.Update(ctx, instance); err != nil {
		return fmt.Errorf("failed to activate security alert: %w", err)
	}

	telemetry.AlertsRaisedTotal.Inc()
	m.hub.BroadcastAlert(delivery.EventRaised, instance)

	m.logger.WithFields(logrus.Fields{
		"alert_id":    instance.ID,
		"resource_id": instance.ResourceID,
		"actor":       actor,
		"suppressed":  suppressed,
	}).Warn("Security alert raised")

	if suppressed {
		m.auditSuppression(ctx, instance, reason)
		return nil
	}

	resource := &models.Resource{ResourceID: instance.ResourceID, Name: instance.ResourceID}
	if err := m.notify(ctx, resource, instance, channels, delivery.EventRaised); err != nil {
		m.logger.WithError(err).WithField("alert_id", instance.ID).Error("Failed to record security alert notification")
	}
	return nil
}

// ResolveManual resolves an alert through the same transition and audit path
// as automatic resolution. Called from the REST surface.
func (m *Machine) ResolveManual(ctx context.Context, alertID, actor string) (*models.AlertInstance, error) {
	instance, err := m.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if instance.State == models.AlertStateResolved {
		return instance, nil
	}

	resource := &models.Resource{ResourceID: instance.ResourceID, Name: instance.ResourceID}
	if err := m.resolve(ctx, nil, resource, instance, actor); err != nil {
		return nil, err
	}
	return instance, nil
}

// notify dispatches the event and records the notification outcome. Delivery
// outcomes never fail the transition: the audit trail for the transition is
// already durable by the time notify runs.
func (m *Machine) notify(ctx context.Context, resource *models.Resource, instance *models.AlertInstance, channels []string, eventType string) error {
	event := delivery.NewEvent(eventType, instance, resource)
	results := m.dispatcher.Dispatch(ctx, event, channels)

	delivered := []string{}
	for _, r := range results {
		if r.Delivered {
			delivered = append(delivered, r.Channel)
		}
	}
	if len(delivered) == 0 {
		return nil
	}

	now := m.now().UTC()
	instance.LastNotifiedAt = sql.NullTime{Time: now, Valid: true}
	// delivered_via is derived from the attempt rows the dispatcher has
	// already persisted, so it survives restarts and partial failures.
	if succeeded, err := m.deliveries.SucceededChannels(ctx, instance.ID); err == nil {
		instance.DeliveredVia = strings.Join(succeeded, ",")
	} else {
		m.logger.WithError(err).WithField("alert_id", instance.ID).Warn("Failed to derive delivered channels from attempt history")
		instance.DeliveredVia = mergeChannels(instance.DeliveredVia, delivered)
	}
	if err := m.alerts.Update(ctx, instance); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	if _, err := m.audit.Append(ctx, audit.Event{
		Type:    models.AuditNotified,
		AlertID: instance.ID,
		Payload: map[string]interface{}{"channels": delivered},
	}); err != nil {
		// The notification is already out; surface the failure without
		// rolling back the alert state.
		m.logger.WithError(err).WithField("alert_id", instance.ID).Error("Failed to audit notification")
		return nil
	}
	telemetry.AuditAppendsTotal.WithLabelValues(models.AuditNotified).Inc()

	return nil
}

func (m *Machine) auditSuppression(ctx context.Context, instance *models.AlertInstance, reason string) {
	_, err := m.audit.Append(ctx, audit.Event{
		Type:    models.AuditSuppressionApplied,
		AlertID: instance.ID,
		Payload: map[string]interface{}{"reason": reason},
	})
	if err != nil {
		m.logger.WithError(err).WithField("alert_id", instance.ID).Error("Failed to audit suppression")
		return
	}
	telemetry.AuditAppendsTotal.WithLabelValues(models.AuditSuppressionApplied).Inc()
}

func breachMessage(rule *rules.Rule, decision rules.Decision) string {
	return fmt.Sprintf("%s %s %g (observed %.2f)", rule.Metric, rule.Comparator, rule.Threshold, decision.Observed)
}

func mergeChannels(existing string, delivered []string) string {
	seen := map[string]bool{}
	merged := []string{}
	for _, c := range strings.Split(existing, ",") {
		if c != "" && !seen[c] {
			seen[c] = true
			merged = append(merged, c)
		}
	}
	for _, c := range delivered {
		if !seen[c] {
			seen[c] = true
			merged = append(merged, c)
		}
	}
	return strings.Join(merged, ",")
}
