package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tucentropdf/engine-v2/internal/api"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// ShutdownManager drives the API server's graceful shutdown: stop
// accepting new work, close the HTTP listener, then run cleanup
// callbacks (closing the database pool, the dispatcher's Redis
// connection).
// state is the same api.ShutdownState NewServer installed its 503
// middleware against, so marking it here actually stops traffic
// instead of flipping a flag nothing reads.
type ShutdownManager struct {
	logger            *logger.Logger
	server            *api.Server
	state             *api.ShutdownState
	shutdownTimeout   time.Duration
	shutdownCallbacks []func(context.Context) error
	mu                sync.Mutex
	shutdownStarted   bool
}

func NewShutdownManager(log *logger.Logger, server *api.Server, state *api.ShutdownState) *ShutdownManager {
	return &ShutdownManager{
		logger:          log,
		server:          server,
		state:           state,
		shutdownTimeout: 30 * time.Second,
	}
}

// RegisterShutdownCallback registers a cleanup function to run during
// phase 2 of Shutdown, e.g. closing the database pool or the dispatcher.
func (sm *ShutdownManager) RegisterShutdownCallback(fn func(context.Context) error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownCallbacks = append(sm.shutdownCallbacks, fn)
}

func (sm *ShutdownManager) IsShuttingDown() bool {
	return sm.state.IsShuttingDown()
}

// Shutdown runs the three-phase graceful shutdown and returns once the
// HTTP listener and every registered callback have completed. Callbacks
// receive ctx capped at shutdownTimeout; Shutdown itself waits for all
// of them to return and does not stop waiting when that deadline
// expires.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	if sm.shutdownStarted {
		sm.mu.Unlock()
		return errors.New("shutdown already in progress")
	}
	sm.shutdownStarted = true
	sm.mu.Unlock()

	sm.state.MarkShuttingDown()
	sm.logger.Info("starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
	defer cancel()

	sm.logger.Info("phase 1: closing HTTP listener")
	if err := sm.server.Shutdown(); err != nil {
		sm.logger.Error("failed to shut down HTTP server", "error", err.Error())
	}

	sm.logger.Info("phase 2: running shutdown callbacks", "count", len(sm.shutdownCallbacks))
	if err := sm.runShutdownCallbacks(shutdownCtx); err != nil {
		sm.logger.Error("shutdown callbacks failed", "error", err.Error())
		return err
	}

	sm.logger.Info("graceful shutdown completed")
	return nil
}

func (sm *ShutdownManager) runShutdownCallbacks(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, len(sm.shutdownCallbacks))

	for i, callback := range sm.shutdownCallbacks {
		wg.Add(1)
		go func(idx int, fn func(context.Context) error) {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errChan <- fmt.Errorf("callback %d: %w", idx, err)
			}
		}(i, callback)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown callbacks failed: %v", errs)
	}
	return nil
}
