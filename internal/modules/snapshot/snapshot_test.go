package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/marketdata"
	"github.com/aristath/risk-sentry/pkg/logger"
)

type stubStore struct {
	metrics map[string]marketdata.Metrics
}

func (s stubStore) Metrics(symbols []string, startDate, endDate string) (map[string]marketdata.Metrics, error) {
	return s.metrics, nil
}

func floatPtr(v float64) *float64 { return &v }

func TestCalculator_Compute_WeightedMetrics(t *testing.T) {
	store := stubStore{metrics: map[string]marketdata.Metrics{
		"AAA": {Volatility: 0.10, ADV: 1_000_000, SpreadBPS: 10},
		"BBB": {Volatility: 0.30, ADV: 4_000_000, SpreadBPS: 30},
	}}
	calc := New(store, 30, nil, logger.Nop())

	metrics := calc.Compute(&domain.NormalizedState{
		AsOfDate:         "2024-03-15",
		TargetWeights:    map[string]float64{"AAA": 0.5, "BBB": 0.5},
		CurrentPositions: map[string]float64{"AAA": 1.0},
	})

	assert.InDelta(t, 0.20, metrics.PortfolioVolatility, 1e-9)
	assert.InDelta(t, 0.10, metrics.CurrentPortfolioVolatility, 1e-9)
	assert.InDelta(t, 0.10, metrics.DeltaPortfolioVolatility, 1e-9)
	assert.InDelta(t, 20.0, metrics.WeightedSpreadBPS, 1e-9)
	assert.InDelta(t, 2_500_000, metrics.WeightedADV, 1e-3)
	assert.InDelta(t, 0.5, metrics.HHI, 1e-9)
	assert.InDelta(t, 2.0, metrics.EffectiveN, 1e-9)
	assert.InDelta(t, 0.5, metrics.TopWeight, 1e-9)
	assert.InDelta(t, 0.5, metrics.Turnover, 1e-9)
	assert.InDelta(t, 0.5, metrics.MaxPositionDelta, 1e-9)
	assert.Empty(t, metrics.MissingMarketRows)
}

func TestCalculator_Compute_MissingRowsContributeZero(t *testing.T) {
	store := stubStore{metrics: map[string]marketdata.Metrics{
		"AAA": {Volatility: 0.10, ADV: 1_000_000, SpreadBPS: 10},
	}}
	calc := New(store, 30, nil, logger.Nop())

	metrics := calc.Compute(&domain.NormalizedState{
		AsOfDate:      "2024-03-15",
		TargetWeights: map[string]float64{"AAA": 0.5, "ZZZ": 0.5},
	})

	assert.Equal(t, []string{"ZZZ"}, metrics.MissingMarketRows)
	assert.InDelta(t, 0.05, metrics.PortfolioVolatility, 1e-9)
	assert.InDelta(t, 5.0, metrics.WeightedSpreadBPS, 1e-9)
}

func TestCalculator_Compute_MaxADVRatio(t *testing.T) {
	store := stubStore{metrics: map[string]marketdata.Metrics{
		"AAA": {Volatility: 0.10, ADV: 1_000_000, SpreadBPS: 10},
		"BBB": {Volatility: 0.20, ADV: 10_000_000, SpreadBPS: 20},
	}}
	calc := New(store, 30, floatPtr(10_000_000), logger.Nop())

	metrics := calc.Compute(&domain.NormalizedState{
		AsOfDate:         "2024-03-15",
		TargetWeights:    map[string]float64{"AAA": 0.3, "BBB": 0.7},
		CurrentPositions: map[string]float64{"AAA": 0.5, "BBB": 0.5},
	})

	// AAA trades 0.2 of a 10M book against 1M ADV
	require.NotNil(t, metrics.MaxADVRatio)
	assert.InDelta(t, 2.0, *metrics.MaxADVRatio, 1e-9)
}

func TestCalculator_Compute_ContextAUMOverridesDefault(t *testing.T) {
	store := stubStore{metrics: map[string]marketdata.Metrics{
		"AAA": {Volatility: 0.10, ADV: 1_000_000, SpreadBPS: 10},
	}}
	calc := New(store, 30, floatPtr(10_000_000), logger.Nop())

	metrics := calc.Compute(&domain.NormalizedState{
		AsOfDate:      "2024-03-15",
		TargetWeights: map[string]float64{"AAA": 1.0},
		AUM:           floatPtr(1_000_000),
	})

	require.NotNil(t, metrics.MaxADVRatio)
	assert.InDelta(t, 1.0, *metrics.MaxADVRatio, 1e-9)
}

func TestCalculator_Compute_NoAUMDisablesParticipation(t *testing.T) {
	store := stubStore{metrics: map[string]marketdata.Metrics{
		"AAA": {Volatility: 0.10, ADV: 1_000_000, SpreadBPS: 10},
	}}
	calc := New(store, 30, nil, logger.Nop())

	metrics := calc.Compute(&domain.NormalizedState{
		AsOfDate:      "2024-03-15",
		TargetWeights: map[string]float64{"AAA": 1.0},
	})

	assert.Nil(t, metrics.MaxADVRatio)
}

func TestSnapshotMetrics_Value(t *testing.T) {
	metrics := domain.SnapshotMetrics{
		PortfolioVolatility: 0.2,
		HHI:                 0.5,
		MacroSeverity:       2,
	}

	v, ok := metrics.Value("portfolio_volatility")
	require.True(t, ok)
	assert.InDelta(t, 0.2, v, 1e-9)

	v, ok = metrics.Value("macro_severity")
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-9)

	_, ok = metrics.Value("unknown_metric")
	assert.False(t, ok)
}
