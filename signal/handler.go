// Package signal implements the Signal Handler (§4.16): a first SIGINT/
// SIGTERM transitions the run to cancelling and cancels its context; a
// second signal force-exits without waiting for in-flight work to unwind.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/itsneelabh/taskctl/core"
)

// State is the handler's view of the run's lifecycle relative to signals
// received so far.
type State int

const (
	StateRunning State = iota
	StateCancelling
	StateTerminated
)

// OnCancelling is invoked once, synchronously, on the first SIGINT/SIGTERM.
// Implementations should be fast and non-blocking — it runs on the signal
// goroutine.
type OnCancelling func()

// Handler installs a SIGINT/SIGTERM listener over a cancellable context.
// Install is idempotent: calling it twice without an intervening Uninstall
// is a no-op. The first signal cancels Context() and calls onCancelling;
// the second calls os.Exit(1) directly, for operators who need the process
// gone NOW rather than waiting on a graceful unwind that isn't happening.
type Handler struct {
	logger core.Logger

	mu     sync.Mutex
	state  State
	sigCh  chan os.Signal
	cancel context.CancelFunc
	done   chan struct{}
	ctx    context.Context
}

// NewHandler returns an uninstalled Handler.
func NewHandler(logger core.Logger) *Handler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Handler{logger: logger, state: StateRunning}
}

// Install derives a cancellable context from parent and starts listening
// for SIGINT/SIGTERM. onCancelling (may be nil) runs once when the first
// signal arrives, before the derived context is cancelled.
func (h *Handler) Install(parent context.Context, onCancelling OnCancelling) context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sigCh != nil {
		return h.ctx
	}

	ctx, cancel := context.WithCancel(parent)
	h.ctx = ctx
	h.cancel = cancel
	h.sigCh = make(chan os.Signal, 2)
	h.done = make(chan struct{})
	signal.Notify(h.sigCh, syscall.SIGINT, syscall.SIGTERM)

	go h.loop(onCancelling)

	return ctx
}

func (h *Handler) loop(onCancelling OnCancelling) {
	sig, ok := <-h.sigCh
	if !ok {
		return
	}

	h.mu.Lock()
	h.state = StateCancelling
	cancel := h.cancel
	h.mu.Unlock()

	h.logger.Warn("received signal, cancelling", map[string]interface{}{"signal": sig.String()})
	if onCancelling != nil {
		onCancelling()
	}
	if cancel != nil {
		cancel()
	}

	select {
	case sig, ok := <-h.sigCh:
		if !ok {
			return
		}
		h.mu.Lock()
		h.state = StateTerminated
		h.mu.Unlock()
		h.logger.Error("received second signal, terminating immediately", map[string]interface{}{"signal": sig.String()})
		os.Exit(1)
	case <-h.done:
	}
}

// State reports the handler's current lifecycle state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Uninstall stops listening for signals and lets Install be called again.
// Safe to call on a Handler that was never installed.
func (h *Handler) Uninstall() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sigCh == nil {
		return
	}
	signal.Stop(h.sigCh)
	close(h.done)
	close(h.sigCh)
	h.sigCh = nil
	h.cancel = nil
	h.ctx = nil
	h.state = StateRunning
}
