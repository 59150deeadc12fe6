package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/rules"
	"github.com/aristath/risk-sentry/pkg/formulas"
	"github.com/aristath/risk-sentry/pkg/logger"
)

func newTestSolver() *Solver {
	return New(rules.NewStore("", logger.Nop()), "CASH", 0.1, nil, nil, logger.Nop())
}

func intPtr(v int) *int { return &v }

func restrictDecision() domain.Decision {
	return domain.Decision{Decision: domain.DecisionRestrict, RuleLevel: 2}
}

func sumWeights(weights map[string]float64) float64 {
	var total float64
	for _, v := range weights {
		total += v
	}
	return total
}

func TestSolver_Solve_OnlyRestrictGetsActions(t *testing.T) {
	s := newTestSolver()
	normalized := &domain.NormalizedState{
		PolicyProfile: "default",
		TargetWeights: map[string]float64{"AAA": 0.6, "BBB": 0.4},
	}

	for _, tier := range []domain.DecisionTier{domain.DecisionPass, domain.DecisionWarn, domain.DecisionBlock} {
		actions := s.Solve(normalized, domain.SnapshotMetrics{}, domain.Decision{Decision: tier}, domain.RiskReport{})
		assert.Nil(t, actions, string(tier))
	}
}

func TestSolver_Solve_OverweightPositionGetsRebalance(t *testing.T) {
	s := newTestSolver()
	normalized := &domain.NormalizedState{
		PolicyProfile:    "default",
		TargetWeights:    map[string]float64{"AAA": 0.6, "BBB": 0.4},
		CurrentPositions: map[string]float64{"AAA": 0.5, "BBB": 0.5},
	}
	report := domain.RiskReport{Findings: []domain.Finding{
		{Agent: "ConcentrationChain", RiskType: "concentration", Severity: 2, Summary: "concentration high"},
	}}

	actions := s.Solve(normalized, domain.SnapshotMetrics{}, restrictDecision(), report)

	require.Len(t, actions, 1)
	action := actions[0]
	assert.Equal(t, domain.ActionRebalance, action.Action)
	assert.Equal(t, []string{"concentration"}, action.Drivers)
	require.NotEmpty(t, action.TargetWeights)

	// Proposed weights respect the single-position cap and stay fully invested
	assert.InDelta(t, 1.0, sumWeights(action.TargetWeights), 1e-6)
	for symbol, w := range action.TargetWeights {
		assert.LessOrEqual(t, w, 0.41, symbol)
	}
}

func TestSolver_Solve_NoHoldingsGetsGuidance(t *testing.T) {
	s := newTestSolver()
	// A restriction with no weights to adjust falls through to guidance
	normalized := &domain.NormalizedState{PolicyProfile: "default"}

	actions := s.Solve(normalized, domain.SnapshotMetrics{}, restrictDecision(), domain.RiskReport{})

	require.Len(t, actions, 1)
	action := actions[0]
	assert.Equal(t, domain.ActionReviewTargets, action.Action)
	assert.Empty(t, action.TargetWeights)
	assert.InDelta(t, 0.4, action.Guidance["max_single_weight"], 1e-9)
	assert.Equal(t, []string{"risk_report"}, action.Drivers)
}

func TestCapAndFill_RedistributesExcess(t *testing.T) {
	out := capAndFill(map[string]float64{"AAA": 0.6, "BBB": 0.3, "CCC": 0.1}, 0.4, "CASH")

	assert.InDelta(t, 0.4, out["AAA"], 1e-9)
	assert.InDelta(t, 1.0, sumWeights(out), 1e-6)
	for symbol, w := range out {
		assert.LessOrEqual(t, w, 0.4+1e-9, symbol)
	}
}

func TestCapAndFill_OverflowGoesToCash(t *testing.T) {
	// Two holdings capped at 0.4 can only absorb 0.8; the rest is cash
	out := capAndFill(map[string]float64{"AAA": 0.7, "BBB": 0.3}, 0.4, "CASH")

	assert.InDelta(t, 0.4, out["AAA"], 1e-9)
	assert.InDelta(t, 0.4, out["BBB"], 1e-9)
	assert.InDelta(t, 0.2, out["CASH"], 1e-6)
}

func TestCapAndFill_ZeroCapIsNoOp(t *testing.T) {
	in := map[string]float64{"AAA": 0.6, "BBB": 0.4}

	out := capAndFill(in, 0, "CASH")

	assert.InDelta(t, 0.6, out["AAA"], 1e-9)
	assert.InDelta(t, 0.4, out["BBB"], 1e-9)
}

func TestCapAndFill_DropsNonPositiveWeights(t *testing.T) {
	out := capAndFill(map[string]float64{"AAA": 1.0, "BBB": 0, "CCC": -0.1}, 0.4, "CASH")

	_, hasBBB := out["BBB"]
	_, hasCCC := out["CCC"]
	assert.False(t, hasBBB)
	assert.False(t, hasCCC)
}

func TestBlendEqual(t *testing.T) {
	weights := map[string]float64{"AAA": 0.8, "BBB": 0.2}

	full := blendEqual(weights, 1.0)
	assert.InDelta(t, 0.5, full["AAA"], 1e-9)
	assert.InDelta(t, 0.5, full["BBB"], 1e-9)

	partial := blendEqual(weights, 0.5)
	assert.InDelta(t, 0.65, partial["AAA"], 1e-9)
	assert.InDelta(t, 0.35, partial["BBB"], 1e-9)

	lower := formulas.HHI(partial)
	assert.Less(t, lower, formulas.HHI(weights))
}

func TestLimitHoldings_TrimsToTopN(t *testing.T) {
	weights := map[string]float64{"AAA": 0.4, "BBB": 0.3, "CCC": 0.2, "DDD": 0.1}

	out, limited := limitHoldings(weights, intPtr(2), "CASH")

	assert.True(t, limited)
	require.Len(t, out, 2)
	assert.InDelta(t, 1.0, sumWeights(out), 1e-9)
	_, hasAAA := out["AAA"]
	_, hasBBB := out["BBB"]
	assert.True(t, hasAAA)
	assert.True(t, hasBBB)
}

func TestLimitHoldings_KeepsCashSlot(t *testing.T) {
	weights := map[string]float64{"AAA": 0.3, "BBB": 0.3, "CCC": 0.2, "CASH": 0.2}

	out, limited := limitHoldings(weights, intPtr(2), "CASH")

	assert.True(t, limited)
	_, hasCash := out["CASH"]
	assert.True(t, hasCash)
	_, hasCCC := out["CCC"]
	assert.False(t, hasCCC)
}

func TestLimitHoldings_TiesBrokenBySymbol(t *testing.T) {
	weights := map[string]float64{"BBB": 0.25, "AAA": 0.25, "CCC": 0.25, "DDD": 0.25}

	out, limited := limitHoldings(weights, intPtr(2), "CASH")

	assert.True(t, limited)
	_, hasAAA := out["AAA"]
	_, hasBBB := out["BBB"]
	assert.True(t, hasAAA)
	assert.True(t, hasBBB)
}

func TestLimitHoldings_NoLimit(t *testing.T) {
	weights := map[string]float64{"AAA": 0.5, "BBB": 0.5}

	out, limited := limitHoldings(weights, nil, "CASH")

	assert.False(t, limited)
	assert.Equal(t, weights, out)
}

func TestSeverityDrivers(t *testing.T) {
	findings := []domain.Finding{
		{RiskType: "market", Severity: 1},
		{RiskType: "concentration", Severity: 2},
		{RiskType: "concentration", Severity: 2},
		{Agent: "MacroToolCallingAgent", Severity: 3},
	}

	drivers := severityDrivers(findings)

	assert.Equal(t, []string{"concentration", "MacroToolCallingAgent"}, drivers)
}

func TestSeverityDrivers_DefaultLabel(t *testing.T) {
	assert.Equal(t, []string{"risk_report"}, severityDrivers(nil))
}

func TestWeightsDiffer(t *testing.T) {
	a := map[string]float64{"AAA": 0.5, "BBB": 0.5}

	assert.False(t, weightsDiffer(a, map[string]float64{"AAA": 0.5, "BBB": 0.5}))
	assert.True(t, weightsDiffer(a, map[string]float64{"AAA": 0.6, "BBB": 0.4}))
	assert.True(t, weightsDiffer(a, map[string]float64{"AAA": 0.5}))
}
