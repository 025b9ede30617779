package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/alerting"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/audit"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/metrics"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/rules"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/telemetry"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
	pkgerrors "github.com/sentinel-ops/sentinel-backend-go/pkg/errors"
)

// pairJob is one (rule, resource) evaluation unit of work
type pairJob struct {
	rule     *rules.Rule
	resource *models.Resource
}

// Engine runs the periodic evaluation loop: snapshot rules, fan (rule,
// resource) pairs out to a fixed worker pool, fetch samples behind per-source
// circuit breakers, evaluate, and hand decisions to the state machine.
//
// Cycles never overlap: cron skips a tick while the previous run is still
// going, and a per-pair mutex additionally serializes each pair against
// concurrent API-triggered work.
type Engine struct {
	cfg       config.SchedulerConfig
	sources   *metrics.Registry
	loader    *rules.Loader
	machine   *alerting.Machine
	resources repositories.ResourceRepository
	alerts    repositories.AlertRepository
	auditLog  *audit.Logger
	logger    *logrus.Logger

	cron      *cron.Cron
	pairLocks *keyedMutex

	mu       sync.Mutex
	breakers map[string]*pkgerrors.CircuitBreaker
}

// NewEngine creates the evaluation engine
func NewEngine(
	cfg config.SchedulerConfig,
	sources *metrics.Registry,
	loader *rules.Loader,
	machine *alerting.Machine,
	resources repositories.ResourceRepository,
	alerts repositories.AlertRepository,
	auditLog *audit.Logger,
	logger *logrus.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		sources:   sources,
		loader:    loader,
		machine:   machine,
		resources: resources,
		alerts:    alerts,
		auditLog:  auditLog,
		logger:    logger,
		pairLocks: newKeyedMutex(),
		breakers:  make(map[string]*pkgerrors.CircuitBreaker),
	}
}

// Start schedules the evaluation cycle and the retention sweep. Blocks only
// while registering the jobs; the cron scheduler runs in its own goroutines.
func (e *Engine) Start(ctx context.Context) error {
	e.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))

	interval := config.Duration(e.cfg.Interval, 30*time.Second)
	if _, err := e.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		e.RunCycle(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule evaluation cycle: %w", err)
	}

	if _, err := e.cron.AddFunc("@every 1h", func() {
		e.runRetentionSweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	e.cron.Start()
	e.logger.WithFields(logrus.Fields{
		"interval": interval.String(),
		"workers":  e.workerCount(),
	}).Info("Evaluation engine started")

	return nil
}

// Stop halts the cron scheduler and waits for a running cycle to finish
func (e *Engine) Stop() {
	if e.cron == nil {
		return
	}
	stopCtx := e.cron.Stop()
	<-stopCtx.Done()
	e.logger.Info("Evaluation engine stopped")
}

func (e *Engine) workerCount() int {
	if e.cfg.Workers > 0 {
		return e.cfg.Workers
	}
	return 8
}

// RunCycle performs one full evaluation pass under the cycle deadline.
// Exported so the REST surface can trigger an immediate pass.
func (e *Engine) RunCycle(ctx context.Context) {
	started := time.Now()

	deadline := config.Duration(e.cfg.CycleDeadline, 25*time.Second)
	cycleCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ruleSet := e.loader.Rules()
	resources, err := e.resources.List(cycleCtx, repositories.ResourceFilter{OnlyMonitored: true})
	if err != nil {
		e.logger.WithError(err).Error("Failed to list resources for evaluation cycle")
		return
	}

	jobs := make([]pairJob, 0, len(ruleSet)*len(resources))
	for _, rule := range ruleSet {
		for _, resource := range resources {
			if rule.Selector.Matches(resource) {
				jobs = append(jobs, pairJob{rule: rule, resource: resource})
			}
		}
	}

	// One coverage-gap audit note per provider per cycle, not per pair
	gaps := &gapTracker{cycle: started.UTC()}

	jobCh := make(chan pairJob)
	var wg sync.WaitGroup
	for i := 0; i < e.workerCount(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				e.evaluatePair(cycleCtx, job, gaps)
			}
		}()
	}

	for _, job := range jobs {
		select {
		case jobCh <- job:
		case <-cycleCtx.Done():
			e.logger.WithField("remaining", len(jobs)).Warn("Cycle deadline reached, dropping remaining pairs")
			close(jobCh)
			wg.Wait()
			return
		}
	}
	close(jobCh)
	wg.Wait()

	elapsed := time.Since(started)
	telemetry.CyclesTotal.Inc()
	telemetry.CycleDuration.Observe(elapsed.Seconds())

	e.logger.WithFields(logrus.Fields{
		"pairs":       len(jobs),
		"resources":   len(resources),
		"rules":       len(ruleSet),
		"duration_ms": elapsed.Milliseconds(),
	}).Info("Evaluation cycle completed")
}

func (e *Engine) evaluatePair(ctx context.Context, job pairJob, gaps *gapTracker) {
	key := job.rule.ID + "|" + job.resource.ResourceID
	e.pairLocks.Lock(key)
	defer e.pairLocks.Unlock(key)

	telemetry.PairsEvaluated.Inc()

	samples, ok := e.fetch(ctx, job, gaps)
	if !ok {
		// Source unavailable: indeterminate, never a false resolve
		return
	}

	decision := rules.Evaluate(samples, job.rule, time.Now().UTC())
	if err := e.machine.Apply(ctx, job.rule, job.resource, decision); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"rule_id":     job.rule.ID,
			"resource_id": job.resource.ResourceID,
			"outcome":     decision.Outcome.String(),
		}).Error("Failed to apply evaluation decision")
	}
}

// fetch pulls samples for the pair behind the provider's circuit breaker.
// The bool return is false when the source could not be consulted at all.
func (e *Engine) fetch(ctx context.Context, job pairJob, gaps *gapTracker) ([]metrics.Sample, bool) {
	provider := job.resource.Provider
	source, ok := e.sources.ForProvider(provider)
	if !ok {
		e.logger.WithFields(logrus.Fields{
			"provider":    provider,
			"resource_id": job.resource.ResourceID,
		}).Warn("No metric source registered for provider")
		return nil, false
	}

	br := e.breaker(provider)
	if !br.Allow() {
		e.recordCoverageGap(ctx, gaps, provider, "circuit breaker open")
		return nil, false
	}

	fetchTimeout := config.Duration(e.cfg.FetchTimeout, 10*time.Second)
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	samples, err := source.Fetch(fetchCtx, job.resource, job.rule.Metric, job.rule.Window.Std())
	if err != nil {
		br.RecordFailure()
		telemetry.SourceFailuresTotal.WithLabelValues(provider).Inc()
		e.recordCoverageGap(ctx, gaps, provider, err.Error())
		e.logger.WithError(err).WithFields(logrus.Fields{
			"provider":    provider,
			"rule_id":     job.rule.ID,
			"resource_id": job.resource.ResourceID,
		}).Warn("Metric fetch failed")
		return nil, false
	}

	br.RecordSuccess()
	return samples, true
}

func (e *Engine) breaker(provider string) *pkgerrors.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	br, ok := e.breakers[provider]
	if !ok {
		br = pkgerrors.NewCircuitBreaker(pkgerrors.CircuitBreakerConfig{
			Name:         "source:" + provider,
			MaxFailures:  e.cfg.SourceBreaker.MaxFailures,
			ResetTimeout: config.Duration(e.cfg.SourceBreaker.Cooldown, 5*time.Minute),
			Logger:       e.logger,
		})
		e.breakers[provider] = br
	}
	return br
}

// gapTracker deduplicates coverage-gap audit notes within one cycle
type gapTracker struct {
	cycle time.Time
	mu    sync.Mutex
	seen  map[string]bool
}

func (g *gapTracker) first(provider string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	if g.seen[provider] {
		return false
	}
	g.seen[provider] = true
	return true
}

func (e *Engine) recordCoverageGap(ctx context.Context, gaps *gapTracker, provider, reason string) {
	if !gaps.first(provider) {
		return
	}

	_, err := e.auditLog.Append(ctx, audit.Event{
		Type: models.AuditCoverageGap,
		Key:  fmt.Sprintf("coverage_gap|%s|%d", provider, gaps.cycle.UnixNano()),
		Payload: map[string]interface{}{
			"provider": provider,
			"reason":   reason,
			"cycle_at": gaps.cycle,
		},
	})
	if err != nil {
		e.logger.WithError(err).WithField("provider", provider).Error("Failed to audit coverage gap")
		return
	}
	telemetry.AuditAppendsTotal.WithLabelValues(models.AuditCoverageGap).Inc()
}

func (e *Engine) runRetentionSweep(ctx context.Context) {
	retention := config.Duration(e.cfg.RetentionWindow, 72*time.Hour)
	cutoff := time.Now().UTC().Add(-retention)

	deleted, err := e.alerts.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		e.logger.WithError(err).Error("Retention sweep failed")
		return
	}
	if deleted > 0 {
		e.logger.WithFields(logrus.Fields{
			"deleted": deleted,
			"cutoff":  cutoff,
		}).Info("Retention sweep removed resolved alerts")
	}
}
