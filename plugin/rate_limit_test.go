package plugin

import (
	"context"
	"testing"
	"time"

	"github.com/itsneelabh/taskctl/llm"
)

func TestRateLimitPluginAllowsWithinCapacity(t *testing.T) {
	p := NewRateLimitPlugin(1, 100, 100*time.Millisecond, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	resp, stop, err := p.BeforeModel(pctx, &llm.Request{Model: "claude-haiku"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stop || resp != nil {
		t.Fatalf("expected first request to pass through, got resp=%+v stop=%v", resp, stop)
	}
}

func TestRateLimitPluginRejectsBeyondMaxWait(t *testing.T) {
	p := NewRateLimitPlugin(1, 0.001, 10*time.Millisecond, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	if _, _, err := p.BeforeModel(pctx, &llm.Request{Model: "claude-haiku"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, stop, err := p.BeforeModel(pctx, &llm.Request{Model: "claude-haiku"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stop {
		t.Fatal("expected second request to be rate limited within maxWait")
	}
	if resp.ErrorCode != string(llm.ErrorKindRateLimited) {
		t.Fatalf("expected rate limited error code, got %s", resp.ErrorCode)
	}
}

func TestRateLimitPluginTracksProvidersIndependently(t *testing.T) {
	p := NewRateLimitPlugin(1, 0.001, 10*time.Millisecond, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	if _, _, err := p.BeforeModel(pctx, &llm.Request{Model: "claude-haiku"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, stop, err := p.BeforeModel(pctx, &llm.Request{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stop {
		t.Fatal("expected a different provider's bucket to be independent")
	}
}
