package llm

import (
	"context"

	"github.com/itsneelabh/taskctl/core"
)

// MockBackend is a test double with scripted events and error injection; it
// simulates no latency. Grounded on ai/providers/mock's scripted-response
// Client.
type MockBackend struct {
	Events     []core.Event
	Err        *PortError
	CallCount  int
	LastReq    Request
}

// NewMockBackend returns a MockBackend that emits events in order across
// successive calls (one event per Generate call, consumed round-robin from
// the scripted Events slice).
func NewMockBackend(events ...core.Event) *MockBackend {
	return &MockBackend{Events: events}
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Generate(ctx context.Context, req Request) EventSequence {
	out := make(chan EventOrError, 1)
	go func() {
		defer close(out)
		m.CallCount++
		m.LastReq = req

		select {
		case <-ctx.Done():
			out <- EventOrError{Err: &PortError{Kind: ErrorKindTimeout, Message: "cancelled", Err: ctx.Err()}}
			return
		default:
		}

		if m.Err != nil {
			out <- EventOrError{Err: m.Err}
			return
		}
		if len(m.Events) == 0 {
			return // zero events: backend "hung" per §4.12 success classification
		}
		idx := (m.CallCount - 1) % len(m.Events)
		evt := m.Events[idx]
		out <- EventOrError{Event: &evt}
	}()
	return out
}

func (m *MockBackend) Connect(ctx context.Context, req Request) (EventSequence, error) {
	return nil, &PortError{Kind: ErrorKindProviderError, Message: "not supported"}
}

// SetEvents replaces the scripted events and resets the call count.
func (m *MockBackend) SetEvents(events ...core.Event) {
	m.Events = events
	m.CallCount = 0
}

// SetError configures Generate to always fail with err.
func (m *MockBackend) SetError(err *PortError) {
	m.Err = err
}
