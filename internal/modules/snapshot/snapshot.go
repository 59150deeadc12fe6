// Package snapshot computes the deterministic portfolio risk metrics every
// downstream stage reads. Pure math over the normalized weights plus
// market-data lookups; no advisory output feeds back into it.
package snapshot

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/marketdata"
	"github.com/aristath/risk-sentry/pkg/formulas"
)

// Store is the slice of the market-data repository the calculator reads
type Store interface {
	Metrics(symbols []string, startDate, endDate string) (map[string]marketdata.Metrics, error)
}

// Calculator builds snapshot metrics for a run
type Calculator struct {
	store        Store
	lookbackDays int
	defaultAUM   *float64
	log          zerolog.Logger
}

// New creates a snapshot calculator. defaultAUM is used when the portfolio
// context carries no AUM; nil disables participation-ratio metrics.
func New(store Store, lookbackDays int, defaultAUM *float64, log zerolog.Logger) *Calculator {
	return &Calculator{
		store:        store,
		lookbackDays: lookbackDays,
		defaultAUM:   defaultAUM,
		log:          log.With().Str("component", "snapshot").Logger(),
	}
}

// Compute derives the full metric set from the normalized state. Symbols
// without market data contribute zero to weighted sums and are listed in
// MissingMarketRows.
func (c *Calculator) Compute(normalized *domain.NormalizedState) domain.SnapshotMetrics {
	targetWeights := normalized.TargetWeights
	currentWeights := normalized.CurrentPositions
	asof := normalized.AsOfDate

	aum := normalized.AUM
	if aum == nil {
		aum = c.defaultAUM
	}

	symbols := unionSymbols(targetWeights, currentWeights)
	start := marketdata.LookbackStartDate(asof, c.lookbackDays)
	market, err := c.store.Metrics(symbols, start, asof)
	if err != nil {
		c.log.Warn().Err(err).Msg("Market metrics lookup failed, computing with empty market data")
		market = map[string]marketdata.Metrics{}
	}

	var missing []string
	for _, symbol := range sortedKeys(targetWeights) {
		if _, ok := market[symbol]; !ok {
			missing = append(missing, symbol)
		}
	}

	targetNorm := formulas.NormalizeWeights(targetWeights)
	currentNorm := formulas.NormalizeWeights(currentWeights)

	deltas := formulas.WeightDeltas(currentWeights, targetWeights)
	maxPositionDelta := 0.0
	for _, d := range deltas {
		if math.Abs(d) > maxPositionDelta {
			maxPositionDelta = math.Abs(d)
		}
	}

	advBySymbol := make(map[string]float64, len(market))
	for symbol, row := range market {
		advBySymbol[symbol] = row.ADV
	}

	var weightedVol, weightedSpread, weightedADV float64
	var maxADVRatio *float64
	for symbol, weight := range targetNorm {
		row, ok := market[symbol]
		if !ok {
			continue
		}
		weightedVol += weight * row.Volatility
		weightedSpread += weight * row.SpreadBPS
		weightedADV += weight * row.ADV
		if row.ADV > 0 && aum != nil && *aum > 0 {
			ratio := math.Abs(deltas[symbol]) * *aum / row.ADV
			if maxADVRatio == nil || ratio > *maxADVRatio {
				maxADVRatio = &ratio
			}
		}
	}

	currentVol := 0.0
	for symbol, weight := range currentNorm {
		if row, ok := market[symbol]; ok {
			currentVol += weight * row.Volatility
		}
	}

	hhi := formulas.HHI(targetNorm)
	effectiveN := formulas.EffectiveN(targetNorm)
	currentHHI := formulas.HHI(currentNorm)
	currentEffectiveN := formulas.EffectiveN(currentNorm)

	return domain.SnapshotMetrics{
		PortfolioVolatility:        weightedVol,
		CurrentPortfolioVolatility: currentVol,
		DeltaPortfolioVolatility:   weightedVol - currentVol,
		WeightedSpreadBPS:          weightedSpread,
		WeightedADV:                weightedADV,
		HHI:                        hhi,
		EffectiveN:                 effectiveN,
		TopWeight:                  formulas.TopWeight(targetNorm),
		CurrentHHI:                 currentHHI,
		CurrentEffectiveN:          currentEffectiveN,
		CurrentTopWeight:           formulas.TopWeight(currentNorm),
		DeltaHHI:                   hhi - currentHHI,
		DeltaEffectiveN:            effectiveN - currentEffectiveN,
		Turnover:                   formulas.Turnover(currentWeights, targetWeights),
		MaxPositionDelta:           maxPositionDelta,
		MaxADVRatio:                maxADVRatio,
		ADVBySymbol:                advBySymbol,
		MissingMarketRows:          missing,
		MacroSeverity:              0,
	}
}

func unionSymbols(a, b map[string]float64) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, m := range []map[string]float64{a, b} {
		for _, s := range sortedKeys(m) {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
