package domain

// SnapshotMetrics are the portfolio risk statistics derived purely from the
// normalized state and market-data lookups. The snapshot stage writes them
// once; the only later write is the pipeline folding the macro advisory's
// blended severity into MacroSeverity after the fan-in barrier.
type SnapshotMetrics struct {
	PortfolioVolatility        float64  `json:"portfolio_volatility"`
	CurrentPortfolioVolatility float64  `json:"current_portfolio_volatility"`
	DeltaPortfolioVolatility   float64  `json:"delta_portfolio_volatility"`
	WeightedSpreadBPS          float64  `json:"weighted_spread_bps"`
	WeightedADV                float64  `json:"weighted_adv"`
	HHI                        float64  `json:"hhi"`
	EffectiveN                 float64  `json:"effective_n"`
	TopWeight                  float64  `json:"top_weight"`
	CurrentHHI                 float64  `json:"current_hhi"`
	CurrentEffectiveN          float64  `json:"current_effective_n"`
	CurrentTopWeight           float64  `json:"current_top_weight"`
	DeltaHHI                   float64  `json:"delta_hhi"`
	DeltaEffectiveN            float64  `json:"delta_effective_n"`
	Turnover                   float64  `json:"turnover"`
	MaxPositionDelta           float64  `json:"max_position_delta"`
	MaxADVRatio                *float64 `json:"max_adv_ratio"`

	ADVBySymbol       map[string]float64 `json:"adv_by_symbol"`
	MissingMarketRows []string           `json:"missing_market_rows"`
	MacroSeverity     int                `json:"macro_severity"`
}

// Value resolves a scalar metric by its wire name. Used by the reducer to
// rehydrate snapshot_metrics evidence refs with live values.
func (m SnapshotMetrics) Value(key string) (float64, bool) {
	switch key {
	case "portfolio_volatility":
		return m.PortfolioVolatility, true
	case "current_portfolio_volatility":
		return m.CurrentPortfolioVolatility, true
	case "delta_portfolio_volatility":
		return m.DeltaPortfolioVolatility, true
	case "weighted_spread_bps":
		return m.WeightedSpreadBPS, true
	case "weighted_adv":
		return m.WeightedADV, true
	case "hhi":
		return m.HHI, true
	case "effective_n":
		return m.EffectiveN, true
	case "top_weight":
		return m.TopWeight, true
	case "current_hhi":
		return m.CurrentHHI, true
	case "current_effective_n":
		return m.CurrentEffectiveN, true
	case "current_top_weight":
		return m.CurrentTopWeight, true
	case "delta_hhi":
		return m.DeltaHHI, true
	case "delta_effective_n":
		return m.DeltaEffectiveN, true
	case "turnover":
		return m.Turnover, true
	case "max_position_delta":
		return m.MaxPositionDelta, true
	case "max_adv_ratio":
		if m.MaxADVRatio == nil {
			return 0, false
		}
		return *m.MaxADVRatio, true
	case "macro_severity":
		return float64(m.MacroSeverity), true
	default:
		return 0, false
	}
}
