package plugin

import (
	"fmt"
	"sync"

	"github.com/itsneelabh/taskctl/core"
)

// ModelPricing is per-million-token pricing for one model, USD.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// PricingTable is the closed, by-model-name pricing table §4.6 scores
// against. An unrecognized model name prices at zero with a logged warning.
type PricingTable map[string]ModelPricing

// DefaultPricingTable is a representative closed table; callers pass their
// own PricingTable to NewCostPlugin for the models their router actually
// serves.
func DefaultPricingTable() PricingTable {
	return PricingTable{
		"claude-haiku":  {InputPerMillion: 0.25, OutputPerMillion: 1.25},
		"claude-sonnet": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
		"claude-opus":   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
		"gpt-4o-mini":   {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"gpt-4o":        {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	}
}

// CostTotals is the running accumulation CostPlugin publishes under __cost.
type CostTotals struct {
	CurrentUSD float64
	TotalUSD   float64
	TotalTokens int
}

// CostPlugin enforces a cost/token budget across a run (§4.6).
type CostPlugin struct {
	BasePlugin
	pricing    PricingTable
	maxCostUSD float64
	maxTokens  int
	logger     core.Logger

	mu          sync.Mutex
	totalCost   float64
	totalTokens int
}

// NewCostPlugin returns a CostPlugin enforcing maxCostUSD and maxTokens
// (either 0 disables that limit), pricing models from pricing.
func NewCostPlugin(pricing PricingTable, maxCostUSD float64, maxTokens int, logger core.Logger) *CostPlugin {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &CostPlugin{pricing: pricing, maxCostUSD: maxCostUSD, maxTokens: maxTokens, logger: logger}
}

func (p *CostPlugin) Name() string { return "cost" }

func (p *CostPlugin) AfterModel(pctx *Context, resp *core.Event) (*core.Event, error) {
	if resp == nil || resp.Partial || resp.UsageMetadata == nil {
		return resp, nil
	}

	pricing, known := p.pricing[resp.Author]
	if !known {
		p.logger.Warn("unknown model in pricing table, costing at zero", map[string]interface{}{"model": resp.Author})
	}

	in := resp.UsageMetadata.PromptTokenCount
	out := resp.UsageMetadata.CandidatesTokenCount
	cost := float64(in)/1e6*pricing.InputPerMillion + float64(out)/1e6*pricing.OutputPerMillion

	p.mu.Lock()
	p.totalCost += cost
	p.totalTokens += resp.UsageMetadata.TotalTokenCount
	totals := CostTotals{CurrentUSD: cost, TotalUSD: p.totalCost, TotalTokens: p.totalTokens}
	exceeded := (p.maxCostUSD > 0 && p.totalCost > p.maxCostUSD) || (p.maxTokens > 0 && p.totalTokens > p.maxTokens)
	p.mu.Unlock()

	pctx.Set(KeyCost, totals)

	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Gauge("taskctl.budget.cost_usd", totals.TotalUSD)
		registry.Gauge("taskctl.budget.tokens_used", float64(totals.TotalTokens))
	}

	if !exceeded {
		return resp, nil
	}

	out2 := *resp
	if p.maxCostUSD > 0 && p.totalCost > p.maxCostUSD {
		out2.ErrorCode = "BUDGET_EXCEEDED"
		out2.ErrorMessage = fmt.Sprintf("total cost %.4f exceeds budget %.4f", p.totalCost, p.maxCostUSD)
	} else {
		out2.ErrorCode = "TOKEN_LIMIT_EXCEEDED"
		out2.ErrorMessage = fmt.Sprintf("total tokens %d exceeds limit %d", p.totalTokens, p.maxTokens)
	}

	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("taskctl.budget.exceeded", "code", out2.ErrorCode)
	}

	return &out2, nil
}
