package delivery

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/audit"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/telemetry"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
	pkgerrors "github.com/sentinel-ops/sentinel-backend-go/pkg/errors"
)

// Result is the outcome of delivery on one channel
type Result struct {
	Channel   string
	Delivered bool
	Attempts  int
	Abandoned bool
	Skipped   bool
	Err       error
}

// Dispatcher fans an alert event out to channel adapters. Each channel runs
// its own retry/backoff loop behind its own circuit breaker, so one failing
// channel never blocks another.
type Dispatcher struct {
	channels map[string]Channel
	fallback Channel
	repo     repositories.DeliveryRepository
	audit    *audit.Logger
	policy   *pkgerrors.RetryPolicy
	logger   *logrus.Logger

	breakerCfg config.BreakerConfig
	mu         sync.Mutex
	breakers   map[string]*pkgerrors.CircuitBreaker
}

// NewDispatcher builds the dispatcher and its channel registry from
// configuration. Channel variants are fixed: email, slack, teams, webhook.
func NewDispatcher(cfg config.DeliveryConfig, repo repositories.DeliveryRepository, auditLog *audit.Logger, logger *logrus.Logger) *Dispatcher {
	channels := make(map[string]Channel)
	if cfg.Email.Enabled {
		channels["email"] = NewEmailChannel(cfg.Email)
	}
	if cfg.Slack.Enabled && cfg.Slack.URL != "" {
		channels["slack"] = NewSlackChannel(cfg.Slack.URL)
	}
	if cfg.Teams.Enabled && cfg.Teams.URL != "" {
		channels["teams"] = NewTeamsChannel(cfg.Teams.URL)
	}
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		channels["webhook"] = NewWebhookChannel(cfg.Webhook.URL)
	}

	var fallback Channel
	if cfg.Fallback.Enabled && cfg.Fallback.URL != "" {
		fallback = NewFallbackChannel(cfg.Fallback.URL)
	}

	policy := &pkgerrors.RetryPolicy{
		MaxAttempts:   cfg.RetryMaxAttempts,
		InitialDelay:  config.Duration(cfg.RetryBaseDelay, pkgerrors.DefaultRetryPolicy().InitialDelay),
		MaxDelay:      pkgerrors.DefaultRetryPolicy().MaxDelay,
		BackoffFactor: 2.0,
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = pkgerrors.DefaultRetryPolicy().MaxAttempts
	}

	return &Dispatcher{
		channels:   channels,
		fallback:   fallback,
		repo:       repo,
		audit:      auditLog,
		policy:     policy,
		logger:     logger,
		breakerCfg: cfg.Breaker,
		breakers:   make(map[string]*pkgerrors.CircuitBreaker),
	}
}

// ChannelNames lists the configured channel names
func (d *Dispatcher) ChannelNames() []string {
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	return names
}

// SetChannel registers or replaces a channel adapter. Used by tests and by
// deployments that inject custom adapters.
func (d *Dispatcher) SetChannel(ch Channel) {
	d.channels[ch.Name()] = ch
}

func (d *Dispatcher) breaker(channel string) *pkgerrors.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	br, ok := d.breakers[channel]
	if !ok {
		br = pkgerrors.NewCircuitBreaker(pkgerrors.CircuitBreakerConfig{
			Name:         "channel:" + channel,
			MaxFailures:  d.breakerCfg.MaxFailures,
			ResetTimeout: config.Duration(d.breakerCfg.Cooldown, 0),
			Logger:       d.logger,
		})
		d.breakers[channel] = br
	}
	return br
}

// Dispatch sends the event to the named channels (all configured channels
// when names is empty) and returns the per-channel results. Retries continue
// on a context detached from the cycle deadline so that an expiring cycle
// never leaves an incomplete audit trail.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event, names []string) []Result {
	if len(names) == 0 {
		names = d.ChannelNames()
	}

	// Cycle cancellation must not cut off in-flight retries or their audit
	// records.
	detached := context.WithoutCancel(ctx)

	results := make([]Result, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		ch, ok := d.channels[name]
		if !ok {
			results[i] = Result{Channel: name, Err: pkgerrors.ErrChannelSend}
			d.logger.WithField("channel", name).Warn("Dispatch requested on unknown channel")
			continue
		}

		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			results[i] = d.sendWithRetry(detached, ch, event)
		}(i, ch)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, ch Channel, event *Event) Result {
	name := ch.Name()
	br := d.breaker(name)

	if !br.Allow() {
		// Suppressed send: skipped, but still audited as a delivery failure
		d.recordAttempt(ctx, event.Alert.ID, name, 0, models.DeliveryFailed, "circuit breaker open")
		telemetry.DeliveriesTotal.WithLabelValues(name, "suppressed").Inc()
		d.auditDeliveryFailed(ctx, event, name, 0, "circuit breaker open")
		return Result{Channel: name, Skipped: true, Err: pkgerrors.ErrChannelOpen}
	}

	var lastErr error
	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		err := ch.Send(ctx, event)
		if err == nil {
			d.recordAttempt(ctx, event.Alert.ID, name, attempt, models.DeliverySent, "")
			telemetry.DeliveriesTotal.WithLabelValues(name, "sent").Inc()
			br.RecordSuccess()
			return Result{Channel: name, Delivered: true, Attempts: attempt}
		}

		lastErr = err
		status := models.DeliveryFailed
		if attempt == d.policy.MaxAttempts {
			status = models.DeliveryAbandoned
		}
		d.recordAttempt(ctx, event.Alert.ID, name, attempt, status, err.Error())
		telemetry.DeliveriesTotal.WithLabelValues(name, status).Inc()

		d.logger.WithError(err).WithFields(logrus.Fields{
			"channel":  name,
			"alert_id": event.Alert.ID,
			"attempt":  attempt,
		}).Warn("Delivery attempt failed")

		if attempt < d.policy.MaxAttempts {
			if err := d.policy.Sleep(ctx, attempt); err != nil {
				break
			}
		}
	}

	// Retries exhausted: abandoned
	br.RecordFailure()
	d.auditDeliveryFailed(ctx, event, name, d.policy.MaxAttempts, errDetail(lastErr))
	d.notifyFallback(ctx, event, name)

	return Result{Channel: name, Attempts: d.policy.MaxAttempts, Abandoned: true, Err: lastErr}
}

func (d *Dispatcher) recordAttempt(ctx context.Context, alertID, channel string, attempt int, status, detail string) {
	record := &models.DeliveryAttempt{
		AlertID:       alertID,
		Channel:       channel,
		AttemptNumber: attempt,
		Status:        status,
		ErrorDetail:   detail,
	}
	if err := d.repo.Create(ctx, record); err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"channel":  channel,
			"alert_id": alertID,
		}).Error("Failed to record delivery attempt")
	}
}

func (d *Dispatcher) auditDeliveryFailed(ctx context.Context, event *Event, channel string, attempts int, detail string) {
	_, err := d.audit.Append(ctx, audit.Event{
		Type:    models.AuditDeliveryFailed,
		AlertID: event.Alert.ID,
		Payload: map[string]interface{}{
			"channel":  channel,
			"attempts": attempts,
			"error":    detail,
		},
	})
	if err != nil {
		// Delivery failures are audited best-effort; the alert transition
		// itself was already durably recorded.
		d.logger.WithError(err).WithFields(logrus.Fields{
			"channel":  channel,
			"alert_id": event.Alert.ID,
		}).Error("Failed to audit delivery failure")
	}
}

func (d *Dispatcher) notifyFallback(ctx context.Context, event *Event, failedChannel string) {
	if d.fallback == nil {
		return
	}

	// Best effort, single attempt, no retry
	if err := d.fallback.Send(ctx, event); err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"alert_id":       event.Alert.ID,
			"failed_channel": failedChannel,
		}).Error("Fallback notification failed")
		return
	}
	d.recordAttempt(ctx, event.Alert.ID, d.fallback.Name(), 1, models.DeliverySent, "")
	telemetry.DeliveriesTotal.WithLabelValues(d.fallback.Name(), "sent").Inc()
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
