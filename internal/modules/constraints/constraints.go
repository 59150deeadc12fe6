// Package constraints evaluates hard policy limits against snapshot metrics
// and publishes tiered rule findings. Absence of a finding means the metric
// passed.
package constraints

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/rules"
)

// Evaluator applies the active policy profile's limits
type Evaluator struct {
	rules *rules.Store
}

// New creates a constraints evaluator
func New(store *rules.Store) *Evaluator {
	return &Evaluator{rules: store}
}

// Evaluate checks every limit in the profile against the snapshot metrics.
// The compliance blocklist, when non-empty, overrides the profile blocklist.
// Floor limits use strict less-than and a zero floor disables the check.
func (e *Evaluator) Evaluate(normalized *domain.NormalizedState, metrics domain.SnapshotMetrics, complianceBlocklist []string) []domain.RuleFinding {
	profile, _ := e.rules.Load(normalized.PolicyProfile)
	t := profile.Thresholds

	var findings []domain.RuleFinding
	add := func(ruleID string, severity domain.RuleTier, metric string, value, limit float64, message string) {
		findings = append(findings, domain.RuleFinding{
			RuleID:   ruleID,
			Severity: severity,
			Level:    severity.Level(),
			Metric:   metric,
			Value:    value,
			Limit:    limit,
			Message:  message,
			Evidence: []domain.Evidence{{Ref: "snapshot_metrics." + metric, Value: value}},
		})
	}

	if limit := t.Value("max_single_weight", 1.0); metrics.TopWeight > limit {
		add("max_single_weight", domain.TierRestrict, "top_weight", metrics.TopWeight, limit,
			"single position exceeds maximum weight")
	}
	if limit := t.Value("max_hhi", 1.0); metrics.HHI > limit {
		add("max_hhi", domain.TierWarn, "hhi", metrics.HHI, limit,
			"concentration exceeds target")
	}
	if limit := t.Value("max_portfolio_volatility", 1.0); metrics.PortfolioVolatility > limit {
		add("max_portfolio_volatility", domain.TierRestrict, "portfolio_volatility", metrics.PortfolioVolatility, limit,
			"portfolio volatility above limit")
	}
	if limit := t.Value("max_weighted_spread_bps", 1e9); metrics.WeightedSpreadBPS > limit {
		add("max_weighted_spread_bps", domain.TierWarn, "weighted_spread_bps", metrics.WeightedSpreadBPS, limit,
			"liquidity spread above threshold")
	}
	if floor := t.Value("min_weighted_adv", 0); floor > 0 && metrics.WeightedADV < floor {
		add("min_weighted_adv", domain.TierWarn, "weighted_adv", metrics.WeightedADV, floor,
			"average daily value below minimum")
	}
	if floor := t.Value("min_effective_n", 0); floor > 0 && metrics.EffectiveN < floor {
		add("min_effective_n", domain.TierWarn, "effective_n", metrics.EffectiveN, floor,
			"effective holdings below minimum")
	}
	if limit := t.Value("max_turnover", 1.0); metrics.Turnover > limit {
		add("max_turnover", domain.TierWarn, "turnover", metrics.Turnover, limit,
			"turnover above threshold")
	}
	if limit := t.Value("max_position_delta", 1.0); metrics.MaxPositionDelta > limit {
		add("max_position_delta", domain.TierWarn, "max_position_delta", metrics.MaxPositionDelta, limit,
			"single position change above threshold")
	}
	if limit := t.Value("max_adv_ratio", 1.0); metrics.MaxADVRatio != nil && *metrics.MaxADVRatio > limit {
		add("max_adv_ratio", domain.TierWarn, "max_adv_ratio", *metrics.MaxADVRatio, limit,
			"trade size above adv ratio threshold")
	}
	if limit := t.Value("max_delta_hhi", 1.0); metrics.DeltaHHI > limit {
		add("max_delta_hhi", domain.TierWarn, "delta_hhi", metrics.DeltaHHI, limit,
			"hhi increase above threshold")
	}
	if limit := t.Value("max_delta_volatility", 1.0); metrics.DeltaPortfolioVolatility > limit {
		add("max_delta_volatility", domain.TierWarn, "delta_portfolio_volatility", metrics.DeltaPortfolioVolatility, limit,
			"volatility increase above threshold")
	}

	blocklist := complianceBlocklist
	if len(blocklist) == 0 {
		blocklist = profile.Blocklist
	}
	if blocked := blockedHoldings(normalized.TargetWeights, blocklist); len(blocked) > 0 {
		add("blocklist", domain.TierBlock, "blocked_assets", float64(len(blocked)), 0,
			fmt.Sprintf("blocked assets present: %s", strings.Join(blocked, ", ")))
	}

	return findings
}

// blockedHoldings returns block-listed symbols held at positive target weight
func blockedHoldings(targetWeights map[string]float64, blocklist []string) []string {
	blocked := make(map[string]bool, len(blocklist))
	for _, s := range blocklist {
		blocked[s] = true
	}
	var out []string
	for symbol, w := range targetWeights {
		if blocked[symbol] && w > 0 {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}
