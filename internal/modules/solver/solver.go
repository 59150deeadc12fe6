// Package solver proposes a feasible allocation when the decision engine
// restricts a rebalance. It tries a penalized optimization first, falls back
// to deterministic cap-and-fill heuristics, and as a last resort returns the
// raw thresholds as guidance.
package solver

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/rules"
	"github.com/aristath/risk-sentry/pkg/formulas"
)

const redistributePasses = 5

// Solver computes recommended actions for restricted runs
type Solver struct {
	rules           *rules.Store
	cashSymbol      string
	turnoverWeight  float64
	defaultAUM      *float64
	defaultHoldings *int
	log             zerolog.Logger
}

// New creates a solver. turnoverWeight balances tracking error against
// turnover in the optimization objective.
func New(store *rules.Store, cashSymbol string, turnoverWeight float64, defaultAUM *float64, defaultHoldings *int, log zerolog.Logger) *Solver {
	if cashSymbol == "" {
		cashSymbol = "CASH"
	}
	return &Solver{
		rules:           store,
		cashSymbol:      cashSymbol,
		turnoverWeight:  turnoverWeight,
		defaultAUM:      defaultAUM,
		defaultHoldings: defaultHoldings,
		log:             log.With().Str("component", "solver").Logger(),
	}
}

// Solve produces recommended actions. Only restrict decisions get one; pass,
// warn and block return nothing. The result is either a rebalance with a
// materially different allocation or review_targets guidance, never both.
func (s *Solver) Solve(normalized *domain.NormalizedState, metrics domain.SnapshotMetrics, dec domain.Decision, report domain.RiskReport) []domain.RecommendedAction {
	if dec.Decision != domain.DecisionRestrict {
		return nil
	}

	profile, _ := s.rules.Load(normalized.PolicyProfile)
	t := profile.Thresholds

	drivers := severityDrivers(report.Findings)

	maxHoldings := normalized.TargetHoldings
	if maxHoldings == nil {
		maxHoldings = s.defaultHoldings
	}
	aum := normalized.AUM
	if aum == nil {
		aum = s.defaultAUM
	}

	targetWeights := normalized.TargetWeights
	currentWeights := normalized.CurrentPositions

	if adjusted := s.solveOptimized(targetWeights, currentWeights, t, metrics.ADVBySymbol, aum); adjusted != nil && weightsDiffer(adjusted, targetWeights) {
		adjusted, limited := limitHoldings(adjusted, maxHoldings, s.cashSymbol)
		rationale := "optimized target weights within policy constraints"
		if limited {
			rationale = fmt.Sprintf("%s; trimmed to %d holdings", rationale, *maxHoldings)
		}
		return []domain.RecommendedAction{{
			Action:        domain.ActionRebalance,
			Rationale:     rationale,
			Drivers:       drivers,
			TargetWeights: adjusted,
		}}
	}

	adjusted, notes := s.adjustHeuristic(targetWeights, t, drivers)
	if len(adjusted) > 0 && weightsDiffer(adjusted, targetWeights) {
		adjusted, _ = limitHoldings(adjusted, maxHoldings, s.cashSymbol)
		var parts []string
		if notes["cap_max_single_weight"] {
			parts = append(parts, "capped single positions at the maximum weight")
		}
		if notes["improve_diversification"] {
			parts = append(parts, "shifted toward a more even mix to reduce concentration")
		}
		if _, hadCash := targetWeights[s.cashSymbol]; !hadCash {
			if _, hasCash := adjusted[s.cashSymbol]; hasCash {
				parts = append(parts, "unallocated remainder parked in cash")
			}
		}
		rationale := "adjusted weights to satisfy thresholds"
		if len(parts) > 0 {
			rationale = strings.Join(parts, "; ")
		}
		return []domain.RecommendedAction{{
			Action:        domain.ActionRebalance,
			Rationale:     rationale,
			Drivers:       drivers,
			TargetWeights: adjusted,
		}}
	}

	guidance := map[string]float64{
		"max_single_weight":        t.Value("max_single_weight", 1.0),
		"max_hhi":                  t.Value("max_hhi", 1.0),
		"max_portfolio_volatility": t.Value("max_portfolio_volatility", 1.0),
		"max_weighted_spread_bps":  t.Value("max_weighted_spread_bps", 1e9),
		"min_weighted_adv":         t.Value("min_weighted_adv", 0),
		"hhi_restrict":             t.Value("hhi_restrict", 0),
		"top_weight_restrict":      t.Value("top_weight_restrict", 0),
		"effective_n_restrict":     t.Value("effective_n_restrict", 0),
		"volatility_restrict":      t.Value("volatility_restrict", 0),
		"spread_restrict":          t.Value("spread_restrict", 0),
		"adv_restrict":             t.Value("adv_restrict", 0),
	}
	return []domain.RecommendedAction{{
		Action:    domain.ActionReviewTargets,
		Rationale: "no feasible automatic adjustment found; review target weights against the thresholds",
		Drivers:   drivers,
		Guidance:  guidance,
	}}
}

// solveOptimized minimizes tracking error plus weighted turnover subject to
// the profile's limits, using a penalty method. Returns nil when the
// optimization fails or does not converge; the caller falls back to
// heuristics.
func (s *Solver) solveOptimized(targetWeights, currentWeights map[string]float64, t rules.Thresholds, advBySymbol map[string]float64, aum *float64) map[string]float64 {
	symbols := unionSymbols(targetWeights, currentWeights)
	n := len(symbols)
	if n == 0 {
		return nil
	}

	target := make([]float64, n)
	current := make([]float64, n)
	for i, sym := range symbols {
		target[i] = targetWeights[sym]
		current[i] = currentWeights[sym]
	}

	maxSingle := t.Value("max_single_weight", 1.0)
	maxTurnover := t.Value("max_turnover", 0)
	maxDelta := t.Value("max_position_delta", 0)
	maxADVRatio := t.Value("max_adv_ratio", 0)

	upper := 1.0
	if maxSingle > 0 {
		upper = maxSingle
	}
	project := func(x []float64) []float64 {
		proj := make([]float64, len(x))
		for i := range x {
			proj[i] = math.Max(0, math.Min(upper, x[i]))
		}
		return proj
	}

	penaltyWeight := 1000.0
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := project(x)

			var tracking, turnover float64
			for i := 0; i < n; i++ {
				tracking += math.Abs(xProj[i] - target[i])
				turnover += math.Abs(xProj[i] - current[i])
			}
			obj := tracking + s.turnoverWeight*turnover

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}
			obj += penaltyWeight * (sum - 1.0) * (sum - 1.0)

			if maxTurnover > 0 && 0.5*turnover > maxTurnover {
				excess := 0.5*turnover - maxTurnover
				obj += penaltyWeight * excess * excess
			}
			for i := 0; i < n; i++ {
				delta := math.Abs(xProj[i] - current[i])
				if maxDelta > 0 && delta > maxDelta {
					excess := delta - maxDelta
					obj += penaltyWeight * excess * excess
				}
				if maxADVRatio > 0 {
					limit := maxADVRatio
					if adv := advBySymbol[symbols[i]]; adv > 0 && aum != nil && *aum > 0 {
						limit = maxADVRatio * adv / *aum
					}
					if delta > limit {
						excess := delta - limit
						obj += penaltyWeight * excess * excess
					}
				}
			}
			return obj
		},
	}

	initial := make([]float64, n)
	copy(initial, target)

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
	if err != nil {
		s.log.Debug().Err(err).Msg("Weight optimization failed, falling back to heuristics")
		return nil
	}
	successStatuses := map[optimize.Status]bool{
		optimize.Success:             true,
		optimize.GradientThreshold:   true,
		optimize.FunctionConvergence: true,
	}
	if !successStatuses[result.Status] {
		s.log.Debug().Str("status", result.Status.String()).Msg("Weight optimization did not converge")
		return nil
	}

	xFinal := project(result.X)
	sum := 0.0
	for _, v := range xFinal {
		sum += v
	}
	if sum <= 0 {
		return nil
	}
	weights := make(map[string]float64, n)
	for i, sym := range symbols {
		w := math.Max(0, xFinal[i]/sum)
		if w > formulas.Epsilon {
			weights[sym] = w
		}
	}
	return formulas.NormalizeWeights(weights)
}

// adjustHeuristic caps positions at the single-weight limit and, when
// concentration or diversification drove the restriction, blends toward an
// equal-weight mix until the restrict thresholds are satisfied.
func (s *Solver) adjustHeuristic(targetWeights map[string]float64, t rules.Thresholds, drivers []string) (map[string]float64, map[string]bool) {
	notes := map[string]bool{}
	cap := t.Value("max_single_weight", 1.0)

	adjusted := capAndFill(targetWeights, cap, s.cashSymbol)
	if weightsDiffer(adjusted, targetWeights) {
		notes["cap_max_single_weight"] = true
	}

	needDiversify := false
	for _, d := range drivers {
		if d == "concentration" || d == "diversification" {
			needDiversify = true
		}
	}
	hhiTarget := t.Value("hhi_restrict", t.Value("max_hhi", 0))
	nTarget := t.Value("effective_n_restrict", 0)
	if needDiversify {
		base := stripCash(adjusted, s.cashSymbol)
		if (hhiTarget > 0 && formulas.HHI(base) > hhiTarget) || (nTarget > 0 && formulas.EffectiveN(base) < nTarget) {
			var candidate map[string]float64
			for _, alpha := range []float64{0.3, 0.6, 1.0} {
				blended := blendEqual(base, alpha)
				candidate = capAndFill(blended, cap, s.cashSymbol)
				candBase := stripCash(candidate, s.cashSymbol)
				hhiOK := hhiTarget <= 0 || formulas.HHI(candBase) <= hhiTarget
				nOK := nTarget <= 0 || formulas.EffectiveN(candBase) >= nTarget
				if hhiOK && nOK {
					break
				}
			}
			adjusted = candidate
			notes["improve_diversification"] = true
		}
	}
	return adjusted, notes
}

// capAndFill caps weights at cap and redistributes the excess to holdings
// with remaining capacity. Whatever cannot be placed after a bounded number
// of passes goes to the cash sentinel.
func capAndFill(weights map[string]float64, cap float64, cashSymbol string) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		if v > 0 {
			out[k] = v
		}
	}
	if cap <= 0 {
		return out
	}

	excess := 0.0
	for k, v := range out {
		if v > cap {
			excess += v - cap
			out[k] = cap
		}
	}

	for pass := 0; pass < redistributePasses; pass++ {
		if excess <= formulas.Epsilon {
			break
		}
		capacity := make(map[string]float64)
		totalCapacity := 0.0
		for k, v := range out {
			if k != cashSymbol && v < cap {
				capacity[k] = cap - v
				totalCapacity += cap - v
			}
		}
		if totalCapacity <= formulas.Epsilon {
			break
		}
		for k, room := range capacity {
			out[k] += excess * (room / totalCapacity)
		}
		excess = math.Max(0, 1.0-sumValues(out))
	}

	if excess > 1e-8 {
		out[cashSymbol] += excess
	}
	return out
}

// blendEqual mixes weights with an equal-weight allocation, alpha=1 meaning
// fully equal
func blendEqual(weights map[string]float64, alpha float64) map[string]float64 {
	n := len(weights)
	if n == 0 {
		return weights
	}
	equal := 1.0 / float64(n)
	out := make(map[string]float64, n)
	for k, v := range weights {
		out[k] = (1-alpha)*v + alpha*equal
	}
	return out
}

// limitHoldings keeps only the top-N non-cash holdings by weight, then
// renormalizes. Reports whether trimming happened.
func limitHoldings(weights map[string]float64, maxHoldings *int, cashSymbol string) (map[string]float64, bool) {
	if maxHoldings == nil || *maxHoldings <= 0 {
		return weights, false
	}
	nonCash := stripCash(weights, cashSymbol)
	if len(nonCash) <= *maxHoldings {
		return weights, false
	}

	type holding struct {
		symbol string
		weight float64
	}
	sorted := make([]holding, 0, len(nonCash))
	for k, v := range nonCash {
		sorted = append(sorted, holding{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].weight != sorted[j].weight {
			return sorted[i].weight > sorted[j].weight
		}
		return sorted[i].symbol < sorted[j].symbol
	})

	trimmed := make(map[string]float64, *maxHoldings+1)
	for _, h := range sorted[:*maxHoldings] {
		trimmed[h.symbol] = h.weight
	}
	if cash := weights[cashSymbol]; cash > 0 {
		trimmed[cashSymbol] = cash
	}
	return formulas.NormalizeWeights(trimmed), true
}

// severityDrivers collects risk types of findings at severity 2 or higher,
// deduped in finding order
func severityDrivers(findings []domain.Finding) []string {
	var drivers []string
	seen := map[string]bool{}
	for _, f := range findings {
		if f.Severity < 2 {
			continue
		}
		label := f.RiskType
		if label == "" {
			label = f.Agent
		}
		if label != "" && !seen[label] {
			seen[label] = true
			drivers = append(drivers, label)
		}
	}
	if len(drivers) == 0 {
		drivers = []string{"risk_report"}
	}
	return drivers
}

func stripCash(weights map[string]float64, cashSymbol string) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		if k != cashSymbol {
			out[k] = v
		}
	}
	return out
}

func weightsDiffer(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return true
	}
	for k, v := range a {
		if math.Abs(v-b[k]) > 1e-9 {
			return true
		}
	}
	return false
}

func unionSymbols(a, b map[string]float64) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, m := range []map[string]float64{a, b} {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

func sumValues(m map[string]float64) float64 {
	total := 0.0
	for _, v := range m {
		total += v
	}
	return total
}
