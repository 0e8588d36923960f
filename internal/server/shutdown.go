// Package server coordinates graceful shutdown of the HTTP and gRPC front ends.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// DrainTimeout bounds the wait for in-flight requests. Default: 15 seconds
	DrainTimeout time.Duration
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{DrainTimeout: 15 * time.Second}
}

type namedCloser struct {
	name string
	io.Closer
}

// ShutdownManager counts in-flight requests, refuses new ones once shutdown
// starts, and then closes registered resources newest first.
type ShutdownManager struct {
	drainTimeout time.Duration

	mu       sync.Mutex
	draining bool
	active   int
	idle     chan struct{} // closed once draining with no active requests
	closers  []namedCloser

	done chan struct{}
	once sync.Once
	err  error
}

// NewShutdownManager creates a shutdown manager.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultShutdownConfig().DrainTimeout
	}
	return &ShutdownManager{
		drainTimeout: cfg.DrainTimeout,
		idle:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// RegisterCloser adds a named resource to close during shutdown.
func (sm *ShutdownManager) RegisterCloser(name string, c io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, Closer: c})
}

// ListenForSignals blocks until SIGTERM, SIGINT, ctx cancellation or another
// caller's Shutdown, then shuts down.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(context.Background(), "signal "+sig.String())
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.done:
		return nil
	}
}

// Shutdown drains in-flight requests and closes every registered resource.
// Later calls return the first call's result.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	sm.once.Do(func() {
		log.Printf("server: shutting down (%s)", reason)
		close(sm.done)

		sm.mu.Lock()
		sm.draining = true
		if sm.active == 0 {
			close(sm.idle)
		}
		closers := sm.closers
		sm.mu.Unlock()

		if err := sm.drain(ctx); err != nil {
			sm.err = err
		}

		for i := len(closers) - 1; i >= 0; i-- {
			c := closers[i]
			if err := c.Close(); err != nil {
				log.Printf("server: failed to close %s: %v", c.name, err)
				if sm.err == nil {
					sm.err = fmt.Errorf("server: failed to close %s: %w", c.name, err)
				}
			}
		}
		log.Printf("server: shutdown complete")
	})
	return sm.err
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	timer := time.NewTimer(sm.drainTimeout)
	defer timer.Stop()

	select {
	case <-sm.idle:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	if n := sm.InFlight(); n > 0 {
		return fmt.Errorf("server: gave up waiting for %d in-flight requests", n)
	}
	return nil
}

// TrackRequest registers a request. It returns false once shutdown has
// started; the caller must then reject the request.
func (sm *ShutdownManager) TrackRequest() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.draining {
		return false
	}
	sm.active++
	return true
}

// UntrackRequest marks a tracked request finished.
func (sm *ShutdownManager) UntrackRequest() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.active--
	if sm.draining && sm.active == 0 {
		close(sm.idle)
	}
}

// InFlight returns the number of tracked requests.
func (sm *ShutdownManager) InFlight() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Done is closed when shutdown begins.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}

// ShutdownMiddleware answers 503 once shutdown has started and counts the
// requests it lets through.
func ShutdownMiddleware(sm *ShutdownManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sm.TrackRequest() {
				w.Header().Set("Connection", "close")
				http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
				return
			}
			defer sm.UntrackRequest()
			next.ServeHTTP(w, r)
		})
	}
}

// UnaryShutdownInterceptor is the gRPC counterpart of ShutdownMiddleware.
func UnaryShutdownInterceptor(sm *ShutdownManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !sm.TrackRequest() {
			return nil, status.Error(codes.Unavailable, "server is shutting down")
		}
		defer sm.UntrackRequest()
		return handler(ctx, req)
	}
}

// HTTPServerCloser closes srv gracefully, waiting at most timeout.
func HTTPServerCloser(srv *http.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// GRPCServerCloser stops srv gracefully, forcing it after timeout.
func GRPCServerCloser(srv *grpc.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(timeout):
			srv.Stop()
		}
		return nil
	})
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }
