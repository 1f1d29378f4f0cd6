package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/CodeMonkeyCybersecurity/owaspray/internal/logger"
)

type shutdownFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// Handler runs cleanup when the process is interrupted or the run finishes,
// whichever comes first.
type Handler struct {
	shutdownFuncs []shutdownFunc
	mu            sync.Mutex
	once          sync.Once
	done          chan struct{}
	err           error
	logger        *logger.Logger
	notify        func(c chan<- os.Signal, sig ...os.Signal)
}

// NewHandler creates a new graceful shutdown handler
func NewHandler(log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		done:   make(chan struct{}),
		logger: log.WithComponent("shutdown"),
		notify: signal.Notify,
	}
}

// RegisterShutdownFunc registers a function to be called during shutdown
func (h *Handler) RegisterShutdownFunc(name string, fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdownFuncs = append(h.shutdownFuncs, shutdownFunc{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT/SIGTERM or ctx is done, then shuts
// down. It returns the signal received, or nil if ctx ended first.
func (h *Handler) WaitForShutdown(ctx context.Context) os.Signal {
	sigChan := make(chan os.Signal, 1)
	h.notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var sig os.Signal
	select {
	case sig = <-sigChan:
		h.logger.Infow("Received signal, starting graceful shutdown", "signal", sig.String())
	case <-ctx.Done():
		h.logger.Debugw("Context finished, starting graceful shutdown")
	case <-h.done:
		return nil
	}

	_ = h.Shutdown(context.Background())
	return sig
}

// Shutdown runs the registered functions once, most recent first. Later calls
// wait for the first to finish and return its error.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.once.Do(func() {
		h.mu.Lock()
		funcs := append([]shutdownFunc(nil), h.shutdownFuncs...)
		h.mu.Unlock()

		var errs []error
		for i := len(funcs) - 1; i >= 0; i-- {
			if err := funcs[i].fn(ctx); err != nil {
				h.logger.Errorw("Error during shutdown", "func", funcs[i].name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", funcs[i].name, err))
			}
		}
		h.err = errors.Join(errs...)
		close(h.done)
	})

	<-h.done
	return h.err
}

// ShutdownWithTimeout executes shutdown with a timeout
func (h *Handler) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- h.Shutdown(ctx)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}
