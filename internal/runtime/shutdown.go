// Package runtime provides graceful shutdown handling for the monitor
// process. Each run owns its own manager; there is no process-global state.
package runtime

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joss/hawtch/internal/logging"
)

// ShutdownFunc is a cleanup function called during shutdown.
type ShutdownFunc func(ctx context.Context) error

// DefaultShutdownTimeout bounds cleanup work once shutdown begins.
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownManager coordinates graceful shutdown of one monitor run.
type ShutdownManager struct {
	mu          sync.Mutex
	handlers    []namedHandler
	timeout     time.Duration
	log         *logging.Logger
	shutdownCtx context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	once        sync.Once
}

type namedHandler struct {
	name string
	fn   ShutdownFunc
}

// NewShutdownManager creates a shutdown manager with the given cleanup timeout.
func NewShutdownManager(timeout time.Duration, log *logging.Logger) *ShutdownManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownManager{
		handlers:    make([]namedHandler, 0),
		timeout:     timeout,
		log:         log,
		shutdownCtx: ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Register adds a cleanup handler to be called during shutdown.
// Handlers are launched in reverse registration order, so later
// registrations tear down first.
func (m *ShutdownManager) Register(name string, fn ShutdownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, namedHandler{name: name, fn: fn})
}

// RegisterSimple adds a cleanup function with no error return.
func (m *ShutdownManager) RegisterSimple(name string, fn func()) {
	m.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Context returns a context that is cancelled when shutdown begins.
func (m *ShutdownManager) Context() context.Context {
	return m.shutdownCtx
}

// Done returns a channel that's closed when shutdown is complete.
func (m *ShutdownManager) Done() <-chan struct{} {
	return m.done
}

// ListenForSignals starts listening for SIGTERM and SIGINT. Non-blocking;
// call once at startup.
func (m *ShutdownManager) ListenForSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigChan
		m.log.Info("shutdown_signal", map[string]interface{}{"signal": sig.String()})
		m.Shutdown()
	}()
}

// Shutdown initiates graceful shutdown; subsequent calls are no-ops.
func (m *ShutdownManager) Shutdown() {
	m.once.Do(func() {
		m.performShutdown()
	})
}

func (m *ShutdownManager) performShutdown() {
	defer close(m.done)

	// Signal all in-flight operations to stop.
	m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	handlers := make([]namedHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	m.log.Info("shutdown_started", map[string]interface{}{"handlers": len(handlers)})

	var wg sync.WaitGroup
	for i := len(handlers) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(handler namedHandler) {
			defer wg.Done()

			start := time.Now()
			if err := handler.fn(ctx); err != nil {
				m.log.Warn("shutdown_handler_failed", map[string]interface{}{
					"handler": handler.name,
				}, err)
				return
			}
			m.log.TimedEvent("shutdown_handler_done", start, map[string]interface{}{
				"handler": handler.name,
			})
		}(handlers[i])
	}

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		m.log.Info("shutdown_complete", nil)
	case <-ctx.Done():
		m.log.Warn("shutdown_timeout", map[string]interface{}{
			"timeout": m.timeout.String(),
		}, nil)
	}
}

// WaitForShutdown blocks until shutdown is complete.
func (m *ShutdownManager) WaitForShutdown() {
	<-m.done
}
