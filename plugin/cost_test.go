package plugin

import (
	"context"
	"testing"

	"github.com/itsneelabh/taskctl/core"
)

func TestCostPluginAccumulatesAndPublishesTotals(t *testing.T) {
	p := NewCostPlugin(DefaultPricingTable(), 0, 0, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	resp := &core.Event{
		Author:        "claude-haiku",
		UsageMetadata: &core.UsageMetadata{PromptTokenCount: 1_000_000, CandidatesTokenCount: 1_000_000, TotalTokenCount: 2_000_000},
	}

	out, err := p.AfterModel(pctx, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ErrorCode != "" {
		t.Fatalf("expected no budget error, got %s", out.ErrorCode)
	}

	v, ok := pctx.Get(KeyCost)
	if !ok {
		t.Fatal("expected __cost published")
	}
	totals := v.(CostTotals)
	if totals.TotalUSD != 0.25+1.25 {
		t.Fatalf("expected cost 1.5, got %f", totals.TotalUSD)
	}
}

func TestCostPluginRewritesResponseOnBudgetExceeded(t *testing.T) {
	p := NewCostPlugin(DefaultPricingTable(), 0.01, 0, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	resp := &core.Event{
		Author:        "claude-opus",
		UsageMetadata: &core.UsageMetadata{PromptTokenCount: 1_000_000, CandidatesTokenCount: 0, TotalTokenCount: 1_000_000},
	}

	out, err := p.AfterModel(pctx, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ErrorCode != "BUDGET_EXCEEDED" {
		t.Fatalf("expected BUDGET_EXCEEDED, got %s", out.ErrorCode)
	}
}

func TestCostPluginSkipsPartialEvents(t *testing.T) {
	p := NewCostPlugin(DefaultPricingTable(), 0, 0, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	resp := &core.Event{Author: "claude-haiku", Partial: true, UsageMetadata: &core.UsageMetadata{TotalTokenCount: 100}}
	_, err := p.AfterModel(pctx, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := pctx.Get(KeyCost); ok {
		t.Fatal("expected no cost published for a partial event")
	}
}

func TestCostPluginUnknownModelPricesZero(t *testing.T) {
	p := NewCostPlugin(DefaultPricingTable(), 0, 0, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	resp := &core.Event{Author: "unknown-model", UsageMetadata: &core.UsageMetadata{PromptTokenCount: 1_000_000, TotalTokenCount: 1_000_000}}
	_, err := p.AfterModel(pctx, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	totals := mustGetCost(t, pctx)
	if totals.TotalUSD != 0 {
		t.Fatalf("expected zero cost for unknown model, got %f", totals.TotalUSD)
	}
}

func mustGetCost(t *testing.T, pctx *Context) CostTotals {
	t.Helper()
	v, ok := pctx.Get(KeyCost)
	if !ok {
		t.Fatal("expected __cost published")
	}
	return v.(CostTotals)
}
