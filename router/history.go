package router

import (
	"sync"

	"github.com/itsneelabh/taskctl/core"
)

// historyOverrideMinAttempts is N in §4.2's "≥ N attempts for this
// signatureHash" override rule.
const historyOverrideMinAttempts = 5

// historyConfidenceThreshold is the minimum success-rate delta between the
// signature's best model and the tier default before the router overrides
// tier selection.
const historyConfidenceThreshold = 0.5

// HistoryStore keeps per-signature Routing Patterns, grounded on the
// teacher's SimpleCache (map + mutex, read-mostly after warm-up).
type HistoryStore struct {
	mu       sync.RWMutex
	patterns map[string][]core.RoutingPattern // signatureHash -> one pattern per model tried
}

// NewHistoryStore returns an empty in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{patterns: make(map[string][]core.RoutingPattern)}
}

// Record updates (or creates) the pattern for signature+model after a task
// outcome.
func (h *HistoryStore) Record(signature, model string, success bool, costUSD float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	patterns := h.patterns[signature]
	for i := range patterns {
		if patterns[i].Model == model {
			if success {
				patterns[i].SuccessCount++
			} else {
				patterns[i].FailCount++
			}
			total := patterns[i].SuccessCount + patterns[i].FailCount
			patterns[i].AvgCost = (patterns[i].AvgCost*float64(total-1) + costUSD) / float64(total)
			h.patterns[signature] = patterns
			return
		}
	}

	p := core.RoutingPattern{SignatureHash: signature, Model: model, AvgCost: costUSD}
	if success {
		p.SuccessCount = 1
	} else {
		p.FailCount = 1
	}
	h.patterns[signature] = append(patterns, p)
}

// Override decides whether history should change the tier/model selection
// for signature, per §4.2 selection order item 2. Returns ok=false when
// there isn't enough history to be confident.
func (h *HistoryStore) Override(signature string, defaultTier core.ModelTier) (model string, tier core.ModelTier, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	patterns := h.patterns[signature]
	var totalAttempts int
	var best *core.RoutingPattern
	var bestRate float64

	for i := range patterns {
		p := &patterns[i]
		attempts := p.SuccessCount + p.FailCount
		totalAttempts += attempts
		if attempts == 0 {
			continue
		}
		rate := float64(p.SuccessCount) / float64(attempts)
		if best == nil || rate > bestRate {
			best = p
			bestRate = rate
		}
	}

	if totalAttempts < historyOverrideMinAttempts || best == nil {
		return "", "", false
	}

	defaultAttempts := 0
	defaultSuccess := 0
	for i := range patterns {
		p := &patterns[i]
		if p.Model == best.Model {
			continue
		}
		defaultAttempts += p.SuccessCount + p.FailCount
		defaultSuccess += p.SuccessCount
	}
	defaultRate := 0.0
	if defaultAttempts > 0 {
		defaultRate = float64(defaultSuccess) / float64(defaultAttempts)
	}

	if bestRate-defaultRate <= historyConfidenceThreshold {
		return "", "", false
	}

	return best.Model, defaultTier, true
}

// Patterns returns a snapshot of all recorded routing patterns; checkpoints
// do not include them.
func (h *HistoryStore) Patterns() map[string][]core.RoutingPattern {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := make(map[string][]core.RoutingPattern, len(h.patterns))
	for k, v := range h.patterns {
		snap[k] = append([]core.RoutingPattern(nil), v...)
	}
	return snap
}
