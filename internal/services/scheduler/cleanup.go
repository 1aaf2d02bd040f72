package scheduler

import (
	"context"
	"sync"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Cleaner is a store with a periodic expiry sweep
type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

type job struct {
	name     string
	cleaner  Cleaner
	interval time.Duration
}

// CleanupScheduler runs each registered Cleaner on its own interval
type CleanupScheduler struct {
	mu       sync.Mutex
	jobs     []job
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewCleanupScheduler() *CleanupScheduler {
	return &CleanupScheduler{
		stopChan: make(chan struct{}),
	}
}

// Register adds a cleaner. A zero interval means hourly. Registering after
// Start has no effect on the running loops.
func (s *CleanupScheduler) Register(name string, cleaner Cleaner, interval time.Duration) {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job{name: name, cleaner: cleaner, interval: interval})
}

// Start runs every registered cleaner until Stop is called or ctx is done.
// It blocks.
func (s *CleanupScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	jobs := append([]job(nil), s.jobs...)
	s.mu.Unlock()

	for _, j := range jobs {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, j)
		}()
	}
	s.wg.Wait()
}

func (s *CleanupScheduler) loop(ctx context.Context, j job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	fiberlog.Infof("Scheduler: %s cleanup started, running every %s", j.name, j.interval)

	for {
		select {
		case <-ticker.C:
			s.run(ctx, j)
		case <-s.stopChan:
			fiberlog.Infof("Scheduler: %s cleanup stopped", j.name)
			return
		case <-ctx.Done():
			fiberlog.Infof("Scheduler: %s cleanup stopped due to context cancellation", j.name)
			return
		}
	}
}

func (s *CleanupScheduler) run(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			fiberlog.Errorf("Scheduler: panic in %s cleanup: %v", j.name, r)
		}
	}()

	removed, err := j.cleaner.Cleanup(ctx)
	if err != nil {
		fiberlog.Warnf("Scheduler: %s cleanup failed after removing %d entries: %v", j.name, removed, err)
		return
	}
	fiberlog.Debugf("Scheduler: %s cleanup removed %d entries", j.name, removed)
}

// RunOnce runs every registered cleaner immediately and returns the total
// number of entries removed
func (s *CleanupScheduler) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	jobs := append([]job(nil), s.jobs...)
	s.mu.Unlock()

	total := 0
	for _, j := range jobs {
		removed, err := j.cleaner.Cleanup(ctx)
		if err != nil {
			fiberlog.Warnf("Scheduler: %s cleanup failed: %v", j.name, err)
		}
		total += removed
	}
	return total
}

// Stop ends all loops. It is safe to call more than once.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
