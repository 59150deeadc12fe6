// Package chains implements the deterministic rule chains. Each chain reads
// snapshot metrics, compares them against the active policy thresholds and
// emits exactly one finding with severity 0..2.
package chains

import (
	"github.com/rs/zerolog"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/rules"
	"github.com/aristath/risk-sentry/internal/skills"
)

// direction says which side of a threshold is unhealthy
type direction int

const (
	highIsBad direction = iota // breach when value >= threshold
	lowIsBad                   // breach when value <= threshold
)

// check is a single metric-versus-threshold comparison inside a chain
type check struct {
	metric      string
	warnKey     string
	warnDef     float64
	restrictKey string
	restrictDef float64
	dir         direction
}

// chainSpec declares one rule chain: its checks plus the summary wording for
// each severity level
type chainSpec struct {
	agent     string
	riskType  string
	skill     string
	checks    []check
	summaries [3]string
}

var chainSpecs = map[domain.Node]chainSpec{
	domain.NodeMarket: {
		agent:    "MarketRiskChain",
		riskType: "market",
		skill:    skills.MarketAssessor,
		checks: []check{
			{metric: "portfolio_volatility", warnKey: "volatility_warn", warnDef: 0.15, restrictKey: "volatility_restrict", restrictDef: 0.25, dir: highIsBad},
		},
		summaries: [3]string{
			"portfolio volatility within target range",
			"portfolio volatility above comfort band",
			"portfolio volatility elevated",
		},
	},
	domain.NodeConcentration: {
		agent:    "ConcentrationChain",
		riskType: "concentration",
		skill:    skills.MarketAssessor,
		checks: []check{
			{metric: "hhi", warnKey: "hhi_warn", warnDef: 0.25, restrictKey: "hhi_restrict", restrictDef: 0.35, dir: highIsBad},
			{metric: "top_weight", warnKey: "top_weight_warn", warnDef: 0.3, restrictKey: "top_weight_restrict", restrictDef: 0.4, dir: highIsBad},
		},
		summaries: [3]string{
			"portfolio concentration within reasonable range",
			"portfolio concentration above target level",
			"portfolio concentration high",
		},
	},
	domain.NodeDiversification: {
		agent:    "DiversificationChain",
		riskType: "diversification",
		skill:    skills.MarketAssessor,
		checks: []check{
			{metric: "effective_n", warnKey: "effective_n_warn", warnDef: 5, restrictKey: "effective_n_restrict", restrictDef: 3, dir: lowIsBad},
		},
		summaries: [3]string{
			"diversification healthy",
			"diversification has room to improve",
			"effective holdings count low",
		},
	},
	domain.NodeLiquidity: {
		agent:    "LiquidityChain",
		riskType: "liquidity",
		skill:    skills.LiquidityAssessor,
		checks: []check{
			{metric: "weighted_spread_bps", warnKey: "spread_warn", warnDef: 40, restrictKey: "spread_restrict", restrictDef: 60, dir: highIsBad},
			{metric: "weighted_adv", warnKey: "adv_warn", warnDef: 5_000_000, restrictKey: "adv_restrict", restrictDef: 2_000_000, dir: lowIsBad},
		},
		summaries: [3]string{
			"liquidity acceptable",
			"liquidity tight",
			"liquidity weak",
		},
	},
}

// Runner evaluates rule chains against a run's snapshot metrics
type Runner struct {
	rules *rules.Store
	log   zerolog.Logger
}

// New creates a chain runner
func New(store *rules.Store, log zerolog.Logger) *Runner {
	return &Runner{
		rules: store,
		log:   log.With().Str("component", "chains").Logger(),
	}
}

// Run evaluates the chain for a node. Severity is the maximum breach across
// the chain's checks: 2 for a restrict breach, 1 for warn, 0 otherwise.
// Schema validation failures are logged, never fatal. Advisory nodes have no
// chain and return nil.
func (r *Runner) Run(node domain.Node, metrics domain.SnapshotMetrics, profile string) *domain.Finding {
	spec, ok := chainSpecs[node]
	if !ok {
		r.log.Error().Str("chain", node.String()).Msg("No rule chain for node")
		return nil
	}

	policy, _ := r.rules.Load(profile)

	severity := 0
	evidence := make([]domain.Evidence, 0, len(spec.checks))
	chainMetrics := make(map[string]float64, len(spec.checks))
	for _, c := range spec.checks {
		value, ok := metrics.Value(c.metric)
		if !ok {
			value = 0
		}
		chainMetrics[c.metric] = value
		evidence = append(evidence, domain.Evidence{
			Ref:   "snapshot_metrics." + c.metric,
			Value: value,
		})

		warn := policy.Thresholds.Value(c.warnKey, c.warnDef)
		restrict := policy.Thresholds.Value(c.restrictKey, c.restrictDef)
		level := 0
		if c.dir == highIsBad {
			switch {
			case value >= restrict:
				level = 2
			case value >= warn:
				level = 1
			}
		} else {
			switch {
			case value <= restrict:
				level = 2
			case value <= warn:
				level = 1
			}
		}
		if level > severity {
			severity = level
		}
	}

	finding := &domain.Finding{
		Agent:    spec.agent,
		RiskType: spec.riskType,
		Severity: severity,
		Summary:  spec.summaries[severity],
		Metrics:  chainMetrics,
		Evidence: evidence,
	}

	if sk, ok := skills.Lookup(spec.skill); ok {
		if errs := sk.ValidateOutput(finding); len(errs) > 0 {
			r.log.Warn().Str("chain", node.String()).Strs("errors", errs).Msg("Chain finding failed skill schema validation")
		}
	}

	return finding
}
