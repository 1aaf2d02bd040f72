package utils

import (
	"sync"
	"time"
)

// Clock abstracts time so TTL and cooldown logic can be driven by tests
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }

// Elapsed reports whether at least d has passed between since and now.
// All "time since last event" checks in the stores go through here.
func Elapsed(since, now time.Time, d time.Duration) bool {
	return !now.Before(since.Add(d))
}

// Expired reports whether a deadline has been reached at now
func Expired(deadline, now time.Time) bool {
	return Elapsed(deadline, now, 0)
}

// MinDuration returns the smaller positive duration; a non-positive cap is
// treated as "no cap"
func MinDuration(d, limit time.Duration) time.Duration {
	if limit > 0 && limit < d {
		return limit
	}
	return d
}

// ManualClock is a Clock that only moves when told to
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current frozen time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
