package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/services/cache"
	"github.com/Egham-7/support-resilience/internal/services/circuitbreaker"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// PrimaryFunc is the authoritative data access. It must return an error on
// failure rather than a sentinel value, and should honour ctx.
type PrimaryFunc[T any] func(ctx context.Context) (T, error)

// Result is what Execute hands back. Source is "primary", a cache layer
// name, or "default". Err holds the primary failure, if any, for logging by
// the caller; it never means the call failed.
type Result[T any] struct {
	Success      bool
	Data         T
	Source       string
	FallbackUsed bool
	Err          error
}

// Executor binds a circuit breaker and a tiered cache for one system of record
type Executor struct {
	name    string
	breaker *circuitbreaker.CircuitBreaker
	cache   *cache.TieredCache
	config  models.FallbackConfig
}

// NewExecutor creates an executor. A nil breaker gets a default one named
// after the executor.
func NewExecutor(name string, breaker *circuitbreaker.CircuitBreaker, tc *cache.TieredCache, cfg models.FallbackConfig) *Executor {
	defaults := models.DefaultFallbackConfig()
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = defaults.TimeoutMs
	}
	if cfg.CacheTTLSeconds <= 0 {
		cfg.CacheTTLSeconds = defaults.CacheTTLSeconds
	}
	if breaker == nil {
		breaker = circuitbreaker.NewWithConfig(name, circuitbreaker.ConfigFrom(cfg.CircuitBreaker), nil)
	}
	return &Executor{
		name:    name,
		breaker: breaker,
		cache:   tc,
		config:  cfg,
	}
}

func (e *Executor) Name() string { return e.name }

// Breaker exposes the executor's breaker for health reporting
func (e *Executor) Breaker() *circuitbreaker.CircuitBreaker { return e.breaker }

// Execute runs primary under the breaker and timeout and falls back to the
// tiered cache, then to def. Dependency failures never surface as an error;
// a non-nil error means the call itself was malformed. A zero timeout uses
// the configured default.
func Execute[T any](ctx context.Context, e *Executor, primary PrimaryFunc[T], cacheKey string, def T, timeout time.Duration) (Result[T], error) {
	if e == nil {
		return Result[T]{}, models.NewValidationError("executor is required", nil)
	}
	if primary == nil {
		return Result[T]{}, models.NewValidationError("primary operation is required", nil)
	}
	if cacheKey == "" {
		return Result[T]{}, models.NewValidationError("cache key must not be empty", models.ErrInvalidKey)
	}
	if timeout < 0 {
		return Result[T]{}, models.NewValidationError(fmt.Sprintf("timeout must not be negative, got %s", timeout), nil)
	}
	if timeout == 0 {
		timeout = e.config.Timeout()
	}

	if !e.breaker.CanExecute() {
		fiberlog.Infof("FallbackExecutor: %s circuit open, skipping primary for %s", e.name, cacheKey)
		return fromFallback(ctx, e, cacheKey, def, models.NewCircuitBreakerError(e.name), true), nil
	}

	data, err := runPrimary(ctx, primary, timeout)
	if err == nil {
		e.breaker.RecordSuccess()
		if e.cache != nil {
			// The caller's cancellation must not cut the cache write short.
			if setErr := cache.SetJSON(context.WithoutCancel(ctx), e.cache, cacheKey, data, e.config.CacheTTL()); setErr != nil {
				fiberlog.Warnf("FallbackExecutor: %s could not cache %s: %v", e.name, cacheKey, setErr)
			}
		}
		fiberlog.Debugf("FallbackExecutor: %s primary succeeded for %s", e.name, cacheKey)
		return Result[T]{Success: true, Data: data, Source: models.SourcePrimary}, nil
	}

	if ctx.Err() != nil && !errors.Is(err, errPrimaryTimeout) {
		// The caller gave up; that says nothing about the dependency.
		e.breaker.Abandon()
		fiberlog.Debugf("FallbackExecutor: %s caller cancelled during %s: %v", e.name, cacheKey, ctx.Err())
	} else {
		e.breaker.RecordFailure()
		fiberlog.Warnf("FallbackExecutor: %s primary failed for %s: %v", e.name, cacheKey, err)
	}
	return fromFallback(ctx, e, cacheKey, def, err, false), nil
}

var errPrimaryTimeout = errors.New("primary operation timed out")

// runPrimary races primary against timeout. A panic in primary is turned
// into an error.
func runPrimary[T any](ctx context.Context, primary PrimaryFunc[T], timeout time.Duration) (T, error) {
	type outcome struct {
		data T
		err  error
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("primary operation panicked: %v", r)}
			}
		}()
		data, err := primary(callCtx)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		return out.data, out.err
	case <-callCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, models.NewTimeoutError(fmt.Sprintf("primary exceeded %s", timeout), errPrimaryTimeout)
	}
}

func fromFallback[T any](ctx context.Context, e *Executor, cacheKey string, def T, cause error, circuitOpen bool) Result[T] {
	if e.cache != nil {
		value, layer, ok, err := cache.GetJSON[T](context.WithoutCancel(ctx), e.cache, cacheKey)
		if err != nil {
			fiberlog.Warnf("FallbackExecutor: %s cache lookup failed for %s: %v", e.name, cacheKey, err)
		}
		if ok {
			fiberlog.Infof("FallbackExecutor: %s served %s from %s cache", e.name, cacheKey, layer)
			return Result[T]{Success: true, Data: value, Source: string(layer), FallbackUsed: true, Err: cause}
		}
	}

	if circuitOpen {
		fiberlog.Warnf("FallbackExecutor: %s has no cached value for %s, returning default", e.name, cacheKey)
	} else {
		fiberlog.Errorf("FallbackExecutor: %s primary and cache exhausted for %s, returning default: %v", e.name, cacheKey, cause)
	}
	return Result[T]{Success: true, Data: def, Source: models.SourceDefault, FallbackUsed: true, Err: cause}
}
