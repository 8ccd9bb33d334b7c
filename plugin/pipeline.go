// Package plugin implements the Plugin Pipeline (§4.5) and its six plugins
// (§4.6-§4.11): ordered middleware around the LLM Port's event stream, with
// a documented, closed set of state-bag keys each plugin may publish.
package plugin

import (
	"context"
	"fmt"

	"github.com/itsneelabh/taskctl/core"
	"github.com/itsneelabh/taskctl/llm"
)

// Documented state-bag keys, per §4.5: plugins must not read or write keys
// outside this closed namespace.
const (
	KeyValidation     = "__validation"
	KeyCost           = "__cost"
	KeyRetry          = "__retry"
	KeyCircuitBreaker = "__circuit_breaker"
	KeyContext        = "__context"
)

// Context carries per-invocation metadata and the mutable state delta that
// gets flushed into the session's state bag between model calls.
type Context struct {
	Ctx        context.Context
	AgentName  string
	TaskID     string
	SessionID  string
	StateDelta map[string]interface{}
}

// NewContext returns a Context with an initialized, empty StateDelta.
func NewContext(ctx context.Context, agentName, taskID, sessionID string) *Context {
	return &Context{Ctx: ctx, AgentName: agentName, TaskID: taskID, SessionID: sessionID, StateDelta: make(map[string]interface{})}
}

// Set publishes a value under key into the state delta.
func (c *Context) Set(key string, value interface{}) { c.StateDelta[key] = value }

// Get reads a value previously published under key.
func (c *Context) Get(key string) (interface{}, bool) {
	v, ok := c.StateDelta[key]
	return v, ok
}

// Plugin is the interface every pipeline stage satisfies. A plugin
// implements only the hooks it cares about by embedding BasePlugin and
// overriding the rest, per §4.5.
type Plugin interface {
	Name() string
	BeforeModel(pctx *Context, req *llm.Request) (response *core.Event, shortCircuit bool, err error)
	AfterModel(pctx *Context, resp *core.Event) (*core.Event, error)
	OnModelError(pctx *Context, req *llm.Request, modelErr error) (response *core.Event, handled bool)
	AfterRun(pctx *Context)
}

// BasePlugin supplies no-op defaults for every hook so concrete plugins need
// only override what they use.
type BasePlugin struct{}

func (BasePlugin) BeforeModel(*Context, *llm.Request) (*core.Event, bool, error) { return nil, false, nil }
func (BasePlugin) AfterModel(_ *Context, resp *core.Event) (*core.Event, error)  { return resp, nil }
func (BasePlugin) OnModelError(*Context, *llm.Request, error) (*core.Event, bool) { return nil, false }
func (BasePlugin) AfterRun(*Context)                                             {}

// Pipeline runs a fixed-order chain of plugins around one model call.
type Pipeline struct {
	plugins []Plugin
	logger  core.Logger
}

// NewPipeline returns a Pipeline invoking plugins in the given order.
func NewPipeline(logger core.Logger, plugins ...Plugin) *Pipeline {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Pipeline{plugins: plugins, logger: logger}
}

// BeforeModel invokes each plugin's BeforeModel in order. The first plugin
// that returns shortCircuit=true stops further BeforeModel calls; its
// response is still run through AfterModel (§4.5), and the result of that is
// returned instead of proceeding to the model.
func (p *Pipeline) BeforeModel(pctx *Context, req *llm.Request) (resp *core.Event, shortCircuited bool, err error) {
	for _, pl := range p.plugins {
		r, stop, perr := p.safeBeforeModel(pl, pctx, req)
		if perr != nil {
			return nil, false, perr
		}
		if stop {
			final, aerr := p.AfterModel(pctx, r)
			return final, true, aerr
		}
	}
	return nil, false, nil
}

// AfterModel runs resp through each plugin's AfterModel in order; each
// plugin sees the previous plugin's (possibly rewritten) result.
func (p *Pipeline) AfterModel(pctx *Context, resp *core.Event) (*core.Event, error) {
	current := resp
	for _, pl := range p.plugins {
		next, err := p.safeAfterModel(pl, pctx, current)
		if err != nil {
			return current, err
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

// OnModelError gives each plugin a chance to substitute a response for a
// model-level error; the first plugin to handle it wins.
func (p *Pipeline) OnModelError(pctx *Context, req *llm.Request, modelErr error) (*core.Event, bool) {
	for _, pl := range p.plugins {
		if resp, handled := p.safeOnModelError(pl, pctx, req, modelErr); handled {
			return resp, true
		}
	}
	return nil, false
}

// AfterRun invokes every plugin's terminal hook; a panicking plugin is
// logged and does not stop delivery to the rest, matching
// resilience.CircuitBreaker's recovered-listener-dispatch idiom.
func (p *Pipeline) AfterRun(pctx *Context) {
	for _, pl := range p.plugins {
		p.safeAfterRun(pl, pctx)
	}
}

func (p *Pipeline) safeBeforeModel(pl Plugin, pctx *Context, req *llm.Request) (resp *core.Event, stop bool, err error) {
	defer p.recoverInto(pl, "beforeModel", &err)
	resp, stop, err = pl.BeforeModel(pctx, req)
	return
}

func (p *Pipeline) safeAfterModel(pl Plugin, pctx *Context, resp *core.Event) (out *core.Event, err error) {
	defer p.recoverInto(pl, "afterModel", &err)
	out, err = pl.AfterModel(pctx, resp)
	return
}

func (p *Pipeline) safeOnModelError(pl Plugin, pctx *Context, req *llm.Request, modelErr error) (resp *core.Event, handled bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("plugin onModelError panicked", map[string]interface{}{"plugin": pl.Name(), "panic": fmt.Sprint(r)})
			handled = false
		}
	}()
	resp, handled = pl.OnModelError(pctx, req, modelErr)
	return
}

func (p *Pipeline) safeAfterRun(pl Plugin, pctx *Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("plugin afterRun panicked", map[string]interface{}{"plugin": pl.Name(), "panic": fmt.Sprint(r)})
		}
	}()
	pl.AfterRun(pctx)
}

func (p *Pipeline) recoverInto(pl Plugin, hook string, errOut *error) {
	if r := recover(); r != nil {
		p.logger.Error("plugin panicked", map[string]interface{}{"plugin": pl.Name(), "hook": hook, "panic": fmt.Sprint(r)})
		*errOut = fmt.Errorf("plugin %s panicked in %s: %v", pl.Name(), hook, r)
	}
}
