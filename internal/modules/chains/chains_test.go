package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/rules"
	"github.com/aristath/risk-sentry/pkg/logger"
)

func newTestRunner() *Runner {
	return New(rules.NewStore("", logger.Nop()), logger.Nop())
}

func TestRunner_Run_MarketSeverityLevels(t *testing.T) {
	tests := []struct {
		name         string
		volatility   float64
		wantSeverity int
	}{
		{name: "calm", volatility: 0.10, wantSeverity: 0},
		{name: "warn at threshold", volatility: 0.15, wantSeverity: 1},
		{name: "restrict breach", volatility: 0.30, wantSeverity: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newTestRunner()

			finding := runner.Run(domain.NodeMarket, domain.SnapshotMetrics{PortfolioVolatility: tt.volatility}, "default")

			require.NotNil(t, finding)
			assert.Equal(t, "MarketRiskChain", finding.Agent)
			assert.Equal(t, "market", finding.RiskType)
			assert.Equal(t, tt.wantSeverity, finding.Severity)
		})
	}
}

func TestRunner_Run_ConcentrationTakesWorstCheck(t *testing.T) {
	runner := newTestRunner()

	// HHI fine, top weight breaches restrict
	finding := runner.Run(domain.NodeConcentration, domain.SnapshotMetrics{
		HHI:       0.10,
		TopWeight: 0.45,
	}, "default")

	require.NotNil(t, finding)
	assert.Equal(t, 2, finding.Severity)
	assert.Equal(t, "portfolio concentration high", finding.Summary)
	assert.Len(t, finding.Evidence, 2)
}

func TestRunner_Run_DiversificationLowIsBad(t *testing.T) {
	tests := []struct {
		name         string
		effectiveN   float64
		wantSeverity int
	}{
		{name: "healthy", effectiveN: 10, wantSeverity: 0},
		{name: "warn", effectiveN: 4, wantSeverity: 1},
		{name: "restrict", effectiveN: 2, wantSeverity: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newTestRunner()

			finding := runner.Run(domain.NodeDiversification, domain.SnapshotMetrics{EffectiveN: tt.effectiveN}, "default")

			require.NotNil(t, finding)
			assert.Equal(t, tt.wantSeverity, finding.Severity)
		})
	}
}

func TestRunner_Run_LiquidityThinADV(t *testing.T) {
	runner := newTestRunner()

	finding := runner.Run(domain.NodeLiquidity, domain.SnapshotMetrics{
		WeightedSpreadBPS: 20,
		WeightedADV:       1_000_000,
	}, "default")

	require.NotNil(t, finding)
	assert.Equal(t, 2, finding.Severity)
	assert.Equal(t, "liquidity weak", finding.Summary)
}

func TestRunner_Run_EvidenceCarriesLiveValues(t *testing.T) {
	runner := newTestRunner()

	finding := runner.Run(domain.NodeMarket, domain.SnapshotMetrics{PortfolioVolatility: 0.18}, "default")

	require.NotNil(t, finding)
	require.Len(t, finding.Evidence, 1)
	assert.Equal(t, "snapshot_metrics.portfolio_volatility", finding.Evidence[0].Ref)
	assert.InDelta(t, 0.18, finding.Evidence[0].Value.(float64), 1e-9)
	assert.InDelta(t, 0.18, finding.Metrics["portfolio_volatility"], 1e-9)
}

func TestRunner_Run_AdvisoryNodesHaveNoChain(t *testing.T) {
	runner := newTestRunner()

	assert.Nil(t, runner.Run(domain.NodeMacro, domain.SnapshotMetrics{}, "default"))
	assert.Nil(t, runner.Run(domain.NodeCompliance, domain.SnapshotMetrics{}, "default"))
}

func TestRunner_Run_EveryRuleChainNodeMapped(t *testing.T) {
	runner := newTestRunner()

	for _, node := range domain.RuleChainNodes() {
		require.NotNil(t, runner.Run(node, domain.SnapshotMetrics{}, "default"), node.String())
	}
}
