package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager drains HTTP servers and releases resources once the
// process context is cancelled. Servers are stopped first, then resources
// in reverse registration order.
type ShutdownManager struct {
	logger          *Logger
	shutdownTimeout time.Duration

	mu        sync.Mutex
	servers   []*http.Server
	resources []namedShutdown
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		shutdownTimeout: timeout,
	}
}

// RegisterServer adds an HTTP server to drain on shutdown
func (sm *ShutdownManager) RegisterServer(server *http.Server) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.servers = append(sm.servers, server)
}

// Register adds a named resource release function
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.resources = append(sm.resources, namedShutdown{name: name, fn: fn})
}

// Wait blocks until ctx is done and then runs Shutdown
func (sm *ShutdownManager) Wait(ctx context.Context) error {
	<-ctx.Done()
	sm.logger.Info("Shutdown signal received, starting graceful shutdown")
	return sm.Shutdown()
}

// Shutdown stops servers and releases resources within the configured timeout
func (sm *ShutdownManager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	sm.mu.Lock()
	servers := append([]*http.Server(nil), sm.servers...)
	resources := append([]namedShutdown(nil), sm.resources...)
	sm.mu.Unlock()

	var errs []error

	var wg sync.WaitGroup
	var errMu sync.Mutex
	for _, server := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				sm.logger.WithError(err).WithField("addr", srv.Addr).Error("HTTP server shutdown error")
				errMu.Lock()
				errs = append(errs, fmt.Errorf("server %s: %w", srv.Addr, err))
				errMu.Unlock()
				return
			}
			sm.logger.WithField("addr", srv.Addr).Info("HTTP server stopped")
		}(server)
	}
	wg.Wait()

	for i := len(resources) - 1; i >= 0; i-- {
		res := resources[i]
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("shutdown timeout reached before %s", res.name))
			break
		}
		if err := res.fn(ctx); err != nil {
			sm.logger.WithError(err).WithField("resource", res.name).Error("Shutdown function failed")
			errs = append(errs, fmt.Errorf("%s: %w", res.name, err))
			continue
		}
		sm.logger.WithField("resource", res.name).Debug("Resource released")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}
