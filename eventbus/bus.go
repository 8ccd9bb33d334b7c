// Package eventbus fans out structured lifecycle events to subscribers
// (§4.17). The event set is closed; handlers that panic or return an error
// are logged and never stop delivery to the rest.
package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/taskctl/core"
)

// Kind is one of the closed set of lifecycle events the orchestrator emits.
type Kind string

const (
	KindLoopStarted          Kind = "loop_started"
	KindLoopCompleted        Kind = "loop_completed"
	KindLoopFailed           Kind = "loop_failed"
	KindLoopCancelling       Kind = "loop_cancelling"
	KindTaskStarted          Kind = "task_started"
	KindTaskCompleted        Kind = "task_completed"
	KindTaskFailed           Kind = "task_failed"
	KindAttemptStarted       Kind = "attempt_started"
	KindValidationCompleted  Kind = "validation_completed"
	KindCostUpdate           Kind = "cost_update"
	KindCircuitBreakerTripped Kind = "circuit_breaker_tripped"
)

// Event is one structured record delivered to subscribers. Timestamp is
// ISO-8601 (RFC 3339) per §4.17; Payload is event-kind-specific and left as
// an opaque map so callers decode only the fields they expect.
type Event struct {
	Kind      Kind
	Timestamp string
	TaskID    string
	RunID     string
	Payload   map[string]interface{}
}

// Handler receives delivered events. A returned error is logged, not
// propagated; a panicking handler is recovered and logged the same way.
type Handler func(Event) error

// Bus is a synchronous, panic-safe fan-out point. Publish blocks until every
// subscriber has been invoked (a subscriber that blocks indefinitely blocks
// the loop too — handlers are expected to be fast, matching the teacher's
// circuit breaker listener contract).
type Bus struct {
	logger core.Logger

	mu       sync.RWMutex
	handlers []Handler
}

// New returns an empty Bus.
func New(logger core.Logger) *Bus {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Bus{logger: logger}
}

// On registers a subscriber. Returns an Unsubscribe func.
func (b *Bus) On(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := len(b.handlers)
	b.handlers = append(b.handlers, h)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.handlers) {
			b.handlers[idx] = nil
		}
	}
}

// Publish stamps evt with a timestamp if unset and delivers it to every
// subscriber in registration order, recovering any panic and logging any
// returned error without aborting delivery to the rest.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp == "" {
		evt.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		if h == nil {
			continue
		}
		b.dispatch(h, evt)
	}
}

func (b *Bus) dispatch(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", map[string]interface{}{
				"kind": string(evt.Kind), "panic": fmt.Sprint(r),
			})
		}
	}()

	if err := h(evt); err != nil {
		b.logger.Warn("event subscriber returned an error", map[string]interface{}{
			"kind": string(evt.Kind), "error": err.Error(),
		})
	}
}
