package plugin

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/itsneelabh/taskctl/llm"
)

type fakeContextSource struct {
	schema   []string
	routes   []string
	memories []string
}

func (f *fakeContextSource) SchemaNames() []string        { return f.schema }
func (f *fakeContextSource) RouteSummaries() []string      { return f.routes }
func (f *fakeContextSource) Memories(agent string) []string { return f.memories }

func TestContextInjectionPluginPrependsSections(t *testing.T) {
	source := &fakeContextSource{schema: []string{"orders"}, routes: []string{"billing -> pay"}, memories: []string{"prefers concise replies"}}
	p := NewContextInjectionPlugin(source, time.Minute, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	req2 := &llm.Request{}
	if _, _, err := p.BeforeModel(pctx, req2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(req2.Contents) != 1 {
		t.Fatalf("expected one synthetic content prepended, got %d", len(req2.Contents))
	}
	text := req2.Contents[0].Parts[0].Text
	if !strings.Contains(text, "<schema>orders</schema>") {
		t.Fatalf("expected schema section, got %s", text)
	}
	if !strings.Contains(text, "<routes>") || !strings.Contains(text, "<memories>") {
		t.Fatalf("expected routes and memories sections, got %s", text)
	}

	v, ok := pctx.Get(KeyContext)
	if !ok {
		t.Fatal("expected __context published")
	}
	info := v.(ContextInfo)
	if !info.Injected || !info.HasSchema || !info.HasRoutes || !info.HasMemories {
		t.Fatalf("unexpected context info: %+v", info)
	}
}

func TestContextInjectionPluginSkipsWhenNothingToInject(t *testing.T) {
	p := NewContextInjectionPlugin(&fakeContextSource{}, time.Minute, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")
	req := &llm.Request{}

	if _, _, err := p.BeforeModel(pctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Contents) != 0 {
		t.Fatal("expected no content prepended when all sections are empty")
	}

	v, ok := pctx.Get(KeyContext)
	if !ok {
		t.Fatal("expected __context published even when empty")
	}
	if v.(ContextInfo).Injected {
		t.Fatal("expected Injected=false when nothing was added")
	}
}

func TestContextInjectionPluginRespectsTTL(t *testing.T) {
	source := &fakeContextSource{schema: []string{"orders"}}
	p := NewContextInjectionPlugin(source, time.Hour, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	req1 := &llm.Request{}
	if _, _, err := p.BeforeModel(pctx, req1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req1.Contents) != 1 {
		t.Fatal("expected injection on first call")
	}

	req2 := &llm.Request{}
	if _, _, err := p.BeforeModel(pctx, req2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req2.Contents) != 0 {
		t.Fatal("expected no injection within the TTL window")
	}
}

func TestContextInjectionPluginNoSourceIsNoOp(t *testing.T) {
	p := NewContextInjectionPlugin(nil, time.Minute, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")
	req := &llm.Request{}

	if _, _, err := p.BeforeModel(pctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Contents) != 0 {
		t.Fatal("expected no-op with a nil source")
	}
}
