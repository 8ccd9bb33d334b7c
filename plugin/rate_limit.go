package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/itsneelabh/taskctl/core"
	"github.com/itsneelabh/taskctl/llm"
	"golang.org/x/time/rate"
)

// RateLimitPlugin throttles requests per provider with a token bucket
// (§4.10): capacity N, refill r per second. beforeModel blocks up to
// maxWait, failing with ErrorKindRateLimited beyond that.
type RateLimitPlugin struct {
	BasePlugin
	maxWait time.Duration
	logger  core.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	capacity int
	refill   rate.Limit
}

// NewRateLimitPlugin returns a RateLimitPlugin with capacity tokens,
// refilling at refillPerSecond, waiting up to maxWait before failing.
func NewRateLimitPlugin(capacity int, refillPerSecond float64, maxWait time.Duration, logger core.Logger) *RateLimitPlugin {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RateLimitPlugin{
		maxWait:  maxWait,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
		capacity: capacity,
		refill:   rate.Limit(refillPerSecond),
	}
}

func (p *RateLimitPlugin) Name() string { return "rate_limit" }

func (p *RateLimitPlugin) limiterFor(provider string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[provider]
	if !ok {
		l = rate.NewLimiter(p.refill, p.capacity)
		p.limiters[provider] = l
	}
	return l
}

func (p *RateLimitPlugin) BeforeModel(pctx *Context, req *llm.Request) (*core.Event, bool, error) {
	limiter := p.limiterFor(req.Model)

	ctx := pctx.Ctx
	if p.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.maxWait)
		defer cancel()
	}

	if err := limiter.Wait(ctx); err != nil {
		p.logger.Warn("rate limit wait exceeded maxWait", map[string]interface{}{"provider": req.Model, "error": err.Error()})
		if registry := core.GetGlobalMetricsRegistry(); registry != nil {
			registry.Counter("taskctl.provider.exhausted", "provider", req.Model, "reason", "rate_limited")
		}
		return &core.Event{ErrorCode: string(llm.ErrorKindRateLimited), ErrorMessage: "rate limit exceeded"}, true, nil
	}
	return nil, false, nil
}
