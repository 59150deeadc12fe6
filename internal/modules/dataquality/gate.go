// Package dataquality grades the data backing a run before any risk analysis
// happens. Missing or stale data becomes gaps, never errors.
package dataquality

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/marketdata"
)

// Store is the slice of the market-data repository the gate reads
type Store interface {
	MasterSymbols() (map[string]bool, error)
	Metrics(symbols []string, startDate, endDate string) (map[string]marketdata.Metrics, error)
	MacroSeriesAvailable() bool
	DocsAvailable(corpus string) bool
	LatestDocDate(corpus, asofDate string) string
}

// Gate checks completeness and freshness of run inputs
type Gate struct {
	store          Store
	lookbackDays   int
	macroStaleDays int
	log            zerolog.Logger
}

// New creates a data-quality gate
func New(store Store, lookbackDays, macroStaleDays int, log zerolog.Logger) *Gate {
	return &Gate{
		store:          store,
		lookbackDays:   lookbackDays,
		macroStaleDays: macroStaleDays,
		log:            log.With().Str("component", "data_quality").Logger(),
	}
}

// Check grades data quality for the normalized state. The returned status is
// monotone over the gaps: a block gap forces blocked, a warn gap lifts ok to
// degraded, and nothing ever lowers the status again.
func (g *Gate) Check(normalized *domain.NormalizedState) (domain.DataQuality, []domain.Gap) {
	var gaps []domain.Gap
	status := domain.QualityOK

	universe := normalized.Universe
	asof := normalized.AsOfDate

	masterSymbols, err := g.store.MasterSymbols()
	if err != nil {
		g.log.Warn().Err(err).Msg("Security master lookup failed")
		masterSymbols = nil
	}
	masterChecked := len(masterSymbols) > 0
	if !masterChecked {
		status = appendGap(&gaps, status, domain.Gap{
			Type:     "security_master",
			Severity: domain.GapWarn,
			Message:  "security master is empty",
		}, true)
	}

	var marketSymbols map[string]marketdata.Metrics
	marketChecked := false
	if len(universe) > 0 {
		start := marketdata.LookbackStartDate(asof, g.lookbackDays)
		marketSymbols, err = g.store.Metrics(universe, start, asof)
		if err != nil {
			g.log.Warn().Err(err).Msg("Market metrics lookup failed")
		} else {
			marketChecked = true
		}
	}

	var missingMaster, missingMarket []string
	for _, symbol := range universe {
		if masterChecked && !masterSymbols[symbol] {
			missingMaster = append(missingMaster, symbol)
		}
		if marketChecked {
			if _, ok := marketSymbols[symbol]; !ok {
				missingMarket = append(missingMarket, symbol)
			}
		}
	}

	if len(missingMaster) > 0 {
		status = appendGap(&gaps, status, domain.Gap{
			Type:     "security_master",
			Severity: domain.GapWarn,
			Message:  fmt.Sprintf("missing security master for: %s", strings.Join(missingMaster, ", ")),
		}, true)
	}
	if len(missingMarket) > 0 {
		status = appendGap(&gaps, status, domain.Gap{
			Type:     "market_data",
			Severity: domain.GapWarn,
			Message:  fmt.Sprintf("missing market data for: %s", strings.Join(missingMarket, ", ")),
		}, true)
	}
	if len(missingMarket) > 0 && len(missingMarket) == len(universe) {
		status = appendGap(&gaps, status, domain.Gap{
			Type:     "market_data",
			Severity: domain.GapBlock,
			Message:  "all universe instruments missing market data",
		}, true)
	}

	macroTextAvailable := g.store.DocsAvailable(marketdata.CorpusMacro)
	macroLatest := g.store.LatestDocDate(marketdata.CorpusMacro, asof)
	freshnessDays := dateDiffDays(asof, macroLatest)

	freshnessStatus := "unknown"
	if freshnessDays != nil {
		switch {
		case *freshnessDays < 0:
			freshnessStatus = "future"
		case *freshnessDays > g.macroStaleDays:
			freshnessStatus = "stale"
		default:
			freshnessStatus = "ok"
		}
	}

	// Freshness gaps are recorded for the audit trail but do not move the
	// aggregate status; the macro advisory downgrades itself instead.
	if macroTextAvailable && freshnessStatus == "future" {
		status = appendGap(&gaps, status, domain.Gap{
			Type:     "macro_text",
			Severity: domain.GapBlock,
			Message:  fmt.Sprintf("macro text data is from future date: %s", macroLatest),
		}, false)
	} else if macroTextAvailable && freshnessStatus == "stale" {
		status = appendGap(&gaps, status, domain.Gap{
			Type:     "macro_text",
			Severity: domain.GapWarn,
			Message:  fmt.Sprintf("macro text data is stale: %s", macroLatest),
		}, false)
	}

	dq := domain.DataQuality{
		Status: status,
		Market: domain.MarketQuality{
			MissingMaster: missingMaster,
			MissingMarket: missingMarket,
		},
		Macro: domain.MacroQuality{
			TimeseriesAvailable: g.store.MacroSeriesAvailable(),
			TextAvailable:       macroTextAvailable,
			LatestDate:          macroLatest,
			FreshnessDays:       freshnessDays,
			FreshnessStatus:     freshnessStatus,
		},
		Compliance: domain.ComplianceQuality{
			TextAvailable: g.store.DocsAvailable(marketdata.CorpusCompliance),
		},
		Positions: domain.PositionsQuality{
			FreshnessDays: dateDiffDays(asof, normalized.CurrentPositionsDate),
		},
	}
	return dq, gaps
}

// appendGap records a gap and advances the status monotonically
func appendGap(gaps *[]domain.Gap, status domain.QualityStatus, gap domain.Gap, affectStatus bool) domain.QualityStatus {
	*gaps = append(*gaps, gap)
	if !affectStatus {
		return status
	}
	if gap.Severity == domain.GapBlock {
		return domain.QualityBlocked
	}
	if gap.Severity == domain.GapWarn && status == domain.QualityOK {
		return domain.QualityDegraded
	}
	return status
}

// dateDiffDays returns asof minus other in whole days, nil when either date
// is missing or malformed
func dateDiffDays(asof, other string) *int {
	if asof == "" || other == "" {
		return nil
	}
	a, err := time.Parse("2006-01-02", asof)
	if err != nil {
		return nil
	}
	b, err := time.Parse("2006-01-02", other)
	if err != nil {
		return nil
	}
	days := int(a.Sub(b).Hours() / 24)
	return &days
}
