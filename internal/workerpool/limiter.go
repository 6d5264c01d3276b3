// Package workerpool bounds the number of jobs the orchestrator fleet
// drives concurrently (spec §5: target O(25-100) in-flight jobs).
package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// Limiter caps concurrent job executions with a semaphore, mirroring
// the teacher's GoroutineLimiter but running one full job lifecycle
// per acquired slot instead of a single queue task.
type Limiter struct {
	maxConcurrency int
	semaphore      chan struct{}
	logger         *logger.Logger
	mu             sync.RWMutex
	active         int
	wg             sync.WaitGroup
}

// NewLimiter creates a limiter bounding concurrency to max.
func NewLimiter(max int, log *logger.Logger) *Limiter {
	if max <= 0 {
		max = 1
	}
	return &Limiter{
		maxConcurrency: max,
		semaphore:      make(chan struct{}, max),
		logger:         log,
	}
}

// Go runs fn in a new goroutine once a slot is available, or returns
// immediately without running fn if ctx is cancelled first. Panics
// inside fn are recovered and logged so one bad job never takes down
// the worker fleet.
func (l *Limiter) Go(ctx context.Context, fn func(ctx context.Context)) error {
	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	l.active++
	current := l.active
	l.mu.Unlock()

	if current > l.maxConcurrency*80/100 {
		l.logger.Warn("high worker pool utilization",
			"active", current,
			"max", l.maxConcurrency,
		)
	}

	l.wg.Add(1)
	go func() {
		defer func() {
			<-l.semaphore
			l.mu.Lock()
			l.active--
			l.mu.Unlock()
			l.wg.Done()

			if r := recover(); r != nil {
				l.logger.Error("worker panic recovered",
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
			}
		}()

		fn(ctx)
	}()

	return nil
}

// Active returns the number of currently executing jobs.
func (l *Limiter) Active() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *Limiter) Available() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.maxConcurrency - l.active
}

// Wait blocks until all in-flight jobs finish. Intended for graceful
// shutdown.
func (l *Limiter) Wait() {
	l.wg.Wait()
}
