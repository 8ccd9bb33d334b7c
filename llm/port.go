// Package llm is the narrow abstraction over model backends: a request goes
// in, a lazy, cancellable sequence of events comes out. See §4.1.
package llm

import (
	"context"

	"github.com/itsneelabh/taskctl/core"
)

// ErrorKind classifies why a backend failed to produce (more) events.
type ErrorKind string

const (
	ErrorKindProviderUnavailable ErrorKind = "provider_unavailable"
	ErrorKindTimeout             ErrorKind = "timeout"
	ErrorKindProviderError       ErrorKind = "provider_error"
	ErrorKindContextLimit        ErrorKind = "context_limit"
	ErrorKindRateLimited         ErrorKind = "rate_limited"
)

// PortError reports a backend failure classified by ErrorKind.
type PortError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PortError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *PortError) Unwrap() error { return e.Err }

// Content is one turn of conversation passed to the backend.
type Content struct {
	Role  string // "user", "model", "system"
	Parts []core.ContentPart
}

// RequestConfig carries generation settings.
type RequestConfig struct {
	SystemInstruction string
	Tools             []string
	Temperature       float32
	MaxOutputTokens   int
}

// Request is what the orchestrator asks the LLM Port to generate from.
type Request struct {
	Model    string
	Contents []Content
	Config   RequestConfig
}

// EventSequence is the finite, non-restartable, cancellable sequence of
// events a backend produces for one Request. Callers must either fully
// drain it or cancel the context that produced it; between two consecutive
// receives the session store may be safely mutated.
type EventSequence <-chan EventOrError

// EventOrError is one element of an EventSequence: either an Event or a
// terminal error (after which the channel closes).
type EventOrError struct {
	Event *core.Event
	Err   error
}

// Backend is the interface every LLM Port implementation satisfies.
type Backend interface {
	// Generate returns a lazy sequence of events for request. The sequence
	// is closed when generation completes or ctx is cancelled.
	Generate(ctx context.Context, req Request) EventSequence

	// Connect opens a streaming connection for request. Backends that do
	// not support bidirectional streaming return an error classified
	// ErrorKindProviderError with message "not supported".
	Connect(ctx context.Context, req Request) (EventSequence, error)

	// Name identifies the backend kind ("cli", "api", "proxy", "mock").
	Name() string
}

// Per-invocation timeout bands. Trivial/simple tasks get the short window,
// moderate gets medium, complex/epic get the long window.
const (
	TimeoutShort  = 60  // seconds
	TimeoutMedium = 180 // seconds
	TimeoutLong   = 600 // seconds
)

// TimeoutForComplexity maps task complexity to a per-invocation deadline in
// seconds, per §4.1.
func TimeoutForComplexity(c core.Complexity) int {
	switch c {
	case core.ComplexityTrivial, core.ComplexitySimple:
		return TimeoutShort
	case core.ComplexityModerate:
		return TimeoutMedium
	case core.ComplexityComplex, core.ComplexityEpic:
		return TimeoutLong
	default:
		return TimeoutMedium
	}
}
