package circuitbreaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
}

const (
	defaultFailureThreshold = 3
	defaultCooldown         = 60 * time.Second
)

// ConfigFrom converts the YAML-facing configuration, applying defaults
func ConfigFrom(cfg models.CircuitBreakerConfig) Config {
	c := Config{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown(),
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	return c
}

type LocalMetrics struct {
	TotalRequests  int64
	SkippedCalls   int64
	FailedRequests int64
	CircuitOpens   int64
	CircuitCloses  int64
}

// CircuitBreaker guards one primary dependency. State lives in process
// memory and is only mutated through CanExecute/RecordSuccess/RecordFailure.
type CircuitBreaker struct {
	mu            sync.Mutex
	serviceName   string
	config        Config
	clock         utils.Clock
	state         State
	failureCount  int
	lastFailureAt time.Time
	probeInFlight bool
	metrics       LocalMetrics
}

func New(serviceName string) *CircuitBreaker {
	return NewWithConfig(serviceName, Config{
		FailureThreshold: defaultFailureThreshold,
		Cooldown:         defaultCooldown,
	}, nil)
}

func NewWithConfig(serviceName string, config Config, clock utils.Clock) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaultFailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = defaultCooldown
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}

	fiberlog.Debugf("CircuitBreaker: Initialized %s (threshold=%d, cooldown=%s)",
		serviceName, config.FailureThreshold, config.Cooldown)
	return &CircuitBreaker{
		serviceName: serviceName,
		config:      config,
		clock:       clock,
		state:       Closed,
	}
}

// currentLocked applies the lazy Open -> HalfOpen transition. Callers hold mu.
func (cb *CircuitBreaker) currentLocked(now time.Time) State {
	if cb.state == Open && utils.Elapsed(cb.lastFailureAt, now, cb.config.Cooldown) {
		cb.state = HalfOpen
		cb.probeInFlight = false
		fiberlog.Infof("CircuitBreaker: %s cooldown elapsed, transitioned to HalfOpen", cb.serviceName)
	}
	return cb.state
}

// CanExecute reports whether the primary call should be attempted. In
// HalfOpen exactly one caller is admitted until its outcome is recorded.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.metrics.TotalRequests++
	switch cb.currentLocked(cb.clock.Now()) {
	case Closed:
		return true
	case HalfOpen:
		if cb.probeInFlight {
			cb.metrics.SkippedCalls++
			return false
		}
		cb.probeInFlight = true
		fiberlog.Debugf("CircuitBreaker: %s admitting half-open probe", cb.serviceName)
		return true
	default:
		cb.metrics.SkippedCalls++
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	previous := cb.state
	cb.state = Closed
	cb.failureCount = 0
	cb.probeInFlight = false

	if previous != Closed {
		cb.metrics.CircuitCloses++
		fiberlog.Infof("CircuitBreaker: %s transitioned to Closed state after success", cb.serviceName)
	} else {
		fiberlog.Debugf("CircuitBreaker: %s recorded success", cb.serviceName)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock.Now()
	state := cb.currentLocked(now)
	cb.failureCount++
	cb.lastFailureAt = now
	cb.probeInFlight = false
	cb.metrics.FailedRequests++

	if state == HalfOpen || (state == Closed && cb.failureCount >= cb.config.FailureThreshold) {
		cb.state = Open
		cb.metrics.CircuitOpens++
		fiberlog.Warnf("CircuitBreaker: %s transitioned to Open state after %d failures", cb.serviceName, cb.failureCount)
		return
	}
	fiberlog.Debugf("CircuitBreaker: %s recorded failure (%d/%d)", cb.serviceName, cb.failureCount, cb.config.FailureThreshold)
}

// Abandon releases a half-open probe whose outcome is unknown, for example
// because the caller went away. No success or failure is recorded.
func (cb *CircuitBreaker) Abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentLocked(cb.clock.Now())
}

// FailureCount returns the failures recorded since the last success
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

func (cb *CircuitBreaker) ServiceName() string { return cb.serviceName }

func (cb *CircuitBreaker) Metrics() LocalMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.metrics
}

// Snapshot returns a serializable view for health and stats endpoints
func (cb *CircuitBreaker) Snapshot() models.CircuitBreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := models.CircuitBreakerSnapshot{
		Service:      cb.serviceName,
		State:        cb.currentLocked(cb.clock.Now()).String(),
		FailureCount: cb.failureCount,
		Threshold:    cb.config.FailureThreshold,
		Cooldown:     cb.config.Cooldown.String(),
		Opens:        cb.metrics.CircuitOpens,
		Closes:       cb.metrics.CircuitCloses,
		Skipped:      cb.metrics.SkippedCalls,
	}
	if !cb.lastFailureAt.IsZero() {
		t := cb.lastFailureAt
		snap.LastFailureAt = &t
	}
	return snap
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = Closed
	cb.failureCount = 0
	cb.lastFailureAt = time.Time{}
	cb.probeInFlight = false
	fiberlog.Infof("CircuitBreaker: Reset circuit breaker for service %s", cb.serviceName)
}
