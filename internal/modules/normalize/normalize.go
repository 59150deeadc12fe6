// Package normalize validates a rebalancing instruction and produces the
// canonical weight/universe/date state the rest of the pipeline reads.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/pkg/formulas"
)

// Calendar resolves trading sessions. Backed by the market-data store.
type Calendar interface {
	PreviousTradingDate(date string) (string, error)
}

// Normalizer validates and canonicalizes instructions
type Normalizer struct {
	calendar Calendar
	log      zerolog.Logger
}

// New creates a normalizer
func New(calendar Calendar, log zerolog.Logger) *Normalizer {
	return &Normalizer{
		calendar: calendar,
		log:      log.With().Str("component", "normalize").Logger(),
	}
}

// Normalize validates the instruction against its context and derives the
// normalized state. All validation problems are accumulated before failing;
// the returned validation carries the complete error set. A nil normalized
// state is returned only alongside is_valid=false.
func (n *Normalizer) Normalize(instr domain.Instruction, pctx domain.PortfolioContext) (*domain.NormalizedState, domain.Validation) {
	var errs []string
	var warnings []string

	date := instr.Date
	if date == "" {
		errs = append(errs, "missing date")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		errs = append(errs, fmt.Sprintf("invalid date: %s", date))
	}

	mode := instr.Mode
	if mode == "" {
		mode = domain.ModeTarget
	}
	if mode != domain.ModeTarget && mode != domain.ModeDelta {
		errs = append(errs, "mode must be target or delta")
	}

	targets := coerceWeights(instr.Targets, "target", &errs)
	if len(targets) == 0 {
		errs = append(errs, "no targets provided")
	}
	current := coerceWeights(pctx.CurrentPositions, "current", &errs)

	var targetWeights map[string]float64
	if mode == domain.ModeDelta {
		// Deltas rebase onto current positions before normalizing
		merged := make(map[string]float64, len(targets))
		for symbol, delta := range targets {
			merged[symbol] = current[symbol] + delta
		}
		targetWeights = formulas.NormalizeWeights(merged)
	} else {
		targetWeights = make(map[string]float64, len(targets))
		for symbol, w := range targets {
			targetWeights[symbol] = w
		}
		if len(targetWeights) > 0 && !formulas.WeightsSumToOne(targetWeights) {
			warnings = append(warnings, "target weights do not sum to 1.0; normalized")
			targetWeights = formulas.NormalizeWeights(targetWeights)
		}
	}

	for _, symbol := range sortedKeys(targetWeights) {
		if targetWeights[symbol] < -formulas.WeightTolerance {
			errs = append(errs, fmt.Sprintf("target weight for %s is negative after normalization", symbol))
		}
	}

	universe := buildUniverse(pctx.Universe, current, targetWeights)

	asof := n.resolveAsOfDate(date, &warnings)

	validation := domain.Validation{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
	if !validation.IsValid {
		return nil, validation
	}

	profile := pctx.PolicyProfile
	if profile == "" {
		profile = "default"
	}

	normalized := &domain.NormalizedState{
		AsOfDate:             asof,
		Mode:                 mode,
		Targets:              targets,
		TargetWeights:        targetWeights,
		CurrentPositions:     current,
		CurrentPositionsDate: pctx.CurrentPositionsDate,
		Universe:             universe,
		AccountType:          pctx.AccountType,
		Jurisdiction:         pctx.Jurisdiction,
		PolicyProfile:        profile,
		AUM:                  pctx.AUM,
		TargetHoldings:       pctx.TargetHoldings,
	}
	return normalized, validation
}

func (n *Normalizer) resolveAsOfDate(date string, warnings *[]string) string {
	if date == "" {
		return ""
	}
	asof, err := n.calendar.PreviousTradingDate(date)
	if err != nil {
		n.log.Warn().Err(err).Str("date", date).Msg("Trading calendar lookup failed")
		*warnings = append(*warnings, "trading calendar unavailable; using instruction date as-is")
		return date
	}
	return asof
}

// coerceWeights filters out non-finite weights, accumulating errors
func coerceWeights(weights map[string]float64, label string, errs *[]string) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for _, symbol := range sortedKeys(weights) {
		v := weights[symbol]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			*errs = append(*errs, fmt.Sprintf("%s weight for %s is not a finite number", label, symbol))
			continue
		}
		out[symbol] = v
	}
	return out
}

// buildUniverse unions requested universe, current positions and target
// weights, preserving order of first appearance. Map-sourced symbols are
// appended in sorted order for determinism.
func buildUniverse(requested []string, current, targets map[string]float64) []string {
	seen := make(map[string]bool)
	var universe []string
	add := func(symbol string) {
		if symbol == "" || seen[symbol] {
			return
		}
		seen[symbol] = true
		universe = append(universe, symbol)
	}
	for _, s := range requested {
		add(s)
	}
	for _, s := range sortedKeys(current) {
		add(s)
	}
	for _, s := range sortedKeys(targets) {
		add(s)
	}
	return universe
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
