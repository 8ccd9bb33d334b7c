// Package router selects a model tier/name for a task (Model Router) and
// wraps that selection with liveness-probed provider failover (Fallback
// Router). See spec §4.2-§4.3.
package router

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/itsneelabh/taskctl/core"
)

// tagWeights is the closed table of tag score adjustments (§4.2). Read-only
// after init, per the Concurrency & Resource Model's shared-resource policy.
var tagWeights = map[string]int{
	"architecture": 20,
	"security":     15,
	"performance":  10,
	"refactor":     10,
	"migration":    15,
	"database":     10,
	"api":          5,
	"lint":         -15,
	"typo":         -25,
	"formatting":   -20,
	"docs":         -10,
	"comment":      -15,
	"rename":       -10,
	"cleanup":      -5,
}

var complexityBase = map[core.Complexity]int{
	core.ComplexityTrivial:  10,
	core.ComplexitySimple:   25,
	core.ComplexityModerate: 50,
	core.ComplexityComplex:  75,
	core.ComplexityEpic:     95,
}

// TierModels lists the models available in each tier, ordered cheapest (or
// most preferred) first within the tier. This is a closed, read-only table
// the caller passes to NewModelRouter at startup.
type TierModels map[core.ModelTier][]string

// ModelPreference overrides the router's scoring-based selection (§4.2
// selection order item 1).
type ModelPreference struct {
	Model    string
	MinTier  core.ModelTier
	NoCascade bool
}

// TaskAttributes is the subset of a Task the router scores on.
type TaskAttributes struct {
	TaskID      string
	Complexity  core.Complexity
	FilesCount  int
	CriteriaCount int
	Tags        []string
}

// ModelRouter maps a task to a model tier/name via rule scoring, history,
// and explicit preference (§4.2).
type ModelRouter struct {
	tiers   TierModels
	history *HistoryStore
	logger  core.Logger
}

// NewModelRouter constructs a ModelRouter over tiers, consulting history
// for override decisions.
func NewModelRouter(tiers TierModels, history *HistoryStore, logger core.Logger) *ModelRouter {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ModelRouter{tiers: tiers, history: history, logger: logger}
}

// Score computes the 0-100 score for attrs per §4.2's closed formula.
func Score(attrs TaskAttributes) int {
	base := complexityBase[attrs.Complexity]
	if base == 0 {
		base = complexityBase[core.ComplexityModerate]
	}
	filesBoost := 0
	if attrs.FilesCount > 2 {
		filesBoost = (attrs.FilesCount - 2) * 5
	}
	criteriaBoost := 0
	if attrs.CriteriaCount > 2 {
		criteriaBoost = (attrs.CriteriaCount - 2) * 3
	}
	tagsBoost := 0
	for _, t := range attrs.Tags {
		tagsBoost += tagWeights[strings.ToLower(t)]
	}
	score := base + filesBoost + criteriaBoost + tagsBoost
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// TierForScore maps a score to its tier per §4.2.
func TierForScore(score int) core.ModelTier {
	switch {
	case score <= 35:
		return core.TierCheap
	case score <= 65:
		return core.TierMid
	default:
		return core.TierPremium
	}
}

// Signature derives the compact routing-history key from a task's
// complexity, sorted tags, and files-affected bucket (§3).
func Signature(complexity core.Complexity, tags []string, filesCount int) string {
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)

	var filesRange core.FilesRange
	switch {
	case filesCount <= 2:
		filesRange = core.FilesFew
	case filesCount <= 5:
		filesRange = core.FilesSome
	default:
		filesRange = core.FilesMany
	}

	raw := string(complexity) + "|" + strings.Join(sorted, ",") + "|" + string(filesRange)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}

// Select implements the §4.2 selection order: explicit preference, then
// history override, then rule-based tier default.
func (r *ModelRouter) Select(attrs TaskAttributes, pref *ModelPreference) core.RoutingDecision {
	score := Score(attrs)
	tier := TierForScore(score)
	sig := Signature(attrs.Complexity, attrs.Tags, attrs.FilesCount)

	if pref != nil && pref.Model != "" {
		decision := core.RoutingDecision{
			TaskID:        attrs.TaskID,
			SelectedModel: pref.Model,
			Tier:          tier,
			Source:        core.SourcePreference,
			Score:         100,
			CanEscalate:   !pref.NoCascade,
		}
		decision.EscalationPath = r.escalationPath(tier, decision.CanEscalate)
		decision.Execution = executionPlan(tier, score, pref)
		return decision
	}

	if r.history != nil {
		if model, overrideTier, ok := r.history.Override(sig, tier); ok {
			tier = overrideTier
			decision := core.RoutingDecision{
				TaskID:        attrs.TaskID,
				SelectedModel: model,
				Tier:          tier,
				Source:        core.SourceHistory,
				Score:         score,
				CanEscalate:   tier != core.TierPremium,
			}
			decision.EscalationPath = r.escalationPath(tier, decision.CanEscalate)
			decision.Execution = executionPlan(tier, score, nil)
			return decision
		}
	}

	model := r.defaultOfTier(tier)
	decision := core.RoutingDecision{
		TaskID:        attrs.TaskID,
		SelectedModel: model,
		Tier:          tier,
		Source:        core.SourceRule,
		Score:         score,
		CanEscalate:   tier != core.TierPremium,
	}
	decision.EscalationPath = r.escalationPath(tier, decision.CanEscalate)
	decision.Execution = executionPlan(tier, score, nil)
	return decision
}

// defaultOfTier returns the first (cheapest/preferred) model configured for
// tier.
func (r *ModelRouter) defaultOfTier(tier core.ModelTier) string {
	models := r.tiers[tier]
	if len(models) == 0 {
		return ""
	}
	return models[0]
}

var tierOrder = []core.ModelTier{core.TierCheap, core.TierMid, core.TierPremium}

// escalationPath lists models in the current tier (excluding current) then
// all models of strictly higher tiers, in fixed order. Premium cannot
// escalate.
func (r *ModelRouter) escalationPath(tier core.ModelTier, canEscalate bool) []string {
	if !canEscalate || tier == core.TierPremium {
		return nil
	}
	return escalationOrder(r.tiers, tier, r.defaultOfTier(tier))
}

// escalationOrder builds escalation order: remaining models of the current
// tier, then every model of strictly higher tiers.
func escalationOrder(tiers TierModels, tier core.ModelTier, current string) []string {
	var path []string
	for _, m := range tiers[tier] {
		if m != current {
			path = append(path, m)
		}
	}
	higher := false
	for _, t := range tierOrder {
		if t == tier {
			higher = true
			continue
		}
		if higher {
			path = append(path, tiers[t]...)
		}
	}
	return path
}

// executionPlan derives the ExecutionPlan from tier/score per §4.2: cheap
// and mid run single-agent; premium fans out to min(5, ceil(score/25))
// agents. An explicit preference always wins.
func executionPlan(tier core.ModelTier, score int, pref *ModelPreference) core.ExecutionPlan {
	if pref != nil && pref.Model != "" {
		return core.ExecutionPlan{Mode: core.ExecutionSingle, Parallelizable: false, SuggestedAgentCount: 1, Reason: "forced by preference"}
	}
	if tier != core.TierPremium {
		return core.ExecutionPlan{Mode: core.ExecutionSingle, Parallelizable: false, SuggestedAgentCount: 1}
	}
	count := (score + 24) / 25
	if count > 5 {
		count = 5
	}
	if count < 1 {
		count = 1
	}
	return core.ExecutionPlan{
		Mode:                core.ExecutionMulti,
		Parallelizable:      true,
		SuggestedAgentCount: count,
		Reason:              "parallel subtasks",
	}
}
