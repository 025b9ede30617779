package errors

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker suppresses calls to a failing dependency after a failure
// threshold, with a cooldown before retrying. Used per delivery channel and
// per metric source.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu           sync.Mutex
	state        CircuitBreakerState
	failures     int
	lastFailTime time.Time

	onStateChange func(name string, from, to CircuitBreakerState)
	logger        *logrus.Logger
}

// CircuitBreakerConfig contains configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name          string
	MaxFailures   int
	ResetTimeout  time.Duration
	OnStateChange func(name string, from, to CircuitBreakerState)
	Logger        *logrus.Logger
}

// NewCircuitBreaker creates a circuit breaker in the closed state
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 5 * time.Minute
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		state:         StateClosed,
		onStateChange: cfg.OnStateChange,
		logger:        cfg.Logger,
	}
}

// Allow reports whether a call may proceed. An open breaker transitions to
// half-open once the reset timeout has elapsed, admitting a single probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.lastFailTime) > cb.resetTimeout {
			cb.setState(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != StateClosed {
		cb.setState(StateClosed)
	}
}

// RecordFailure records a failed call and opens the breaker once the
// consecutive failure threshold is reached
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailTime = time.Now()

	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.setState(StateOpen)
	}
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	oldState := cb.state
	if oldState == newState {
		return
	}
	cb.state = newState

	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, oldState, newState)
	}

	if cb.logger != nil {
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"old_state":       oldState.String(),
			"new_state":       newState.String(),
			"failures":        cb.failures,
		}).Info("Circuit breaker state changed")
	}
}

// RetryPolicy defines exponential backoff retry behavior
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy returns the delivery retry defaults: base 2s, factor 2,
// capped at 5 attempts
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2.0,
	}
}

// GetDelay calculates the delay before the next retry attempt
func (rp *RetryPolicy) GetDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return rp.InitialDelay
	}

	delay := float64(rp.InitialDelay) * math.Pow(rp.BackoffFactor, float64(attempt-1))
	if time.Duration(delay) > rp.MaxDelay {
		return rp.MaxDelay
	}
	return time.Duration(delay)
}

// Sleep waits for the backoff delay of the given attempt, honoring context
// cancellation
func (rp *RetryPolicy) Sleep(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(rp.GetDelay(attempt)):
		return nil
	}
}
