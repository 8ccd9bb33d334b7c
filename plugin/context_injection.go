package plugin

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/itsneelabh/taskctl/core"
	"github.com/itsneelabh/taskctl/llm"
)

// ContextSource supplies the compact, external data ContextInjectionPlugin
// embeds into the first user message (§4.11). The core consumes only the
// strings it returns; discovering schema/routes/memories is the caller's
// concern.
type ContextSource interface {
	SchemaNames() []string
	RouteSummaries() []string
	Memories(agentName string) []string
}

// ContextInfo is published under __context.
type ContextInfo struct {
	Injected    bool
	HasSchema   bool
	HasRoutes   bool
	HasMemories bool
}

const contextSectionBudget = 2000 // characters, per §4.11's "fixed character budget"

// ContextInjectionPlugin prepends a synthetic context message once per
// (agent, cache TTL).
type ContextInjectionPlugin struct {
	BasePlugin
	source  ContextSource
	ttl     time.Duration
	logger  core.Logger

	mu        sync.Mutex
	cachedAt  map[string]time.Time
}

// NewContextInjectionPlugin returns a ContextInjectionPlugin refreshing its
// injected context at most once per ttl for a given agent.
func NewContextInjectionPlugin(source ContextSource, ttl time.Duration, logger core.Logger) *ContextInjectionPlugin {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ContextInjectionPlugin{source: source, ttl: ttl, logger: logger, cachedAt: make(map[string]time.Time)}
}

func (p *ContextInjectionPlugin) Name() string { return "context" }

func (p *ContextInjectionPlugin) BeforeModel(pctx *Context, req *llm.Request) (*core.Event, bool, error) {
	if p.source == nil || !p.due(pctx.AgentName) {
		return nil, false, nil
	}

	schema := p.source.SchemaNames()
	routes := p.source.RouteSummaries()
	memories := p.source.Memories(pctx.AgentName)
	if len(memories) > 5 {
		memories = memories[:5]
	}

	var sb strings.Builder
	info := ContextInfo{}
	if len(schema) > 0 {
		info.HasSchema = true
		sb.WriteString(wrapSection("schema", strings.Join(schema, ", ")))
	}
	if len(routes) > 0 {
		info.HasRoutes = true
		sb.WriteString(wrapSection("routes", strings.Join(routes, "; ")))
	}
	if len(memories) > 0 {
		info.HasMemories = true
		sb.WriteString(wrapSection("memories", strings.Join(memories, "; ")))
	}

	if sb.Len() == 0 {
		pctx.Set(KeyContext, info)
		return nil, false, nil
	}

	info.Injected = true
	pctx.Set(KeyContext, info)

	req.Contents = append([]llm.Content{{Role: "user", Parts: []core.ContentPart{{Text: sb.String()}}}}, req.Contents...)
	return nil, false, nil
}

func (p *ContextInjectionPlugin) due(agentName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	last, ok := p.cachedAt[agentName]
	if ok && time.Since(last) < p.ttl {
		return false
	}
	p.cachedAt[agentName] = time.Now()
	return true
}

func wrapSection(tag, body string) string {
	if len(body) > contextSectionBudget {
		body = body[:contextSectionBudget]
	}
	return fmt.Sprintf("<%s>%s</%s>", tag, body, tag)
}
