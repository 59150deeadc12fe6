// Package marketdata is the SQLite-backed store for prices, macro series and
// policy documents. Metric lookups return only the symbols that have data;
// missing symbols are absent from the result, never an error.
package marketdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/risk-sentry/internal/database"
	"github.com/aristath/risk-sentry/pkg/formulas"
)

// Document corpora
const (
	CorpusMacro      = "macro"
	CorpusCompliance = "compliance"
)

// Metrics are the per-symbol market statistics over a lookback window
type Metrics struct {
	Volatility float64 `json:"volatility"`
	ADV        float64 `json:"adv"`
	SpreadBPS  float64 `json:"spread_bps"`
}

// SeriesSpec configures change detection for one macro series
type SeriesSpec struct {
	Series         string
	ChangeMode     string // pct | abs
	ChangeScale    string // "" | bp
	WarnChange     *float64
	RestrictChange *float64
	StaleDays      *int
}

// Observation is one dated macro series value
type Observation struct {
	Date  string
	Value float64
}

// Document is one policy or macro text document
type Document struct {
	Date           string
	Title          string
	Content        string
	SentimentScore *float64
}

// Repository provides market, macro and policy-document lookups
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a market data repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "marketdata").Logger(),
	}
}

// Metrics computes volatility, ADV and spread per symbol over [startDate,
// endDate]. Symbols with no rows in the window are absent from the result.
func (r *Repository) Metrics(symbols []string, startDate, endDate string) (map[string]Metrics, error) {
	cleaned := dedupe(symbols)
	if len(cleaned) == 0 {
		return map[string]Metrics{}, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(cleaned)), ",")
	query := fmt.Sprintf(`
		SELECT symbol, high, low, close, amount, adj_factor
		FROM prices
		WHERE symbol IN (%s) AND date >= ? AND date <= ?
		ORDER BY symbol, date`, placeholders)

	args := make([]interface{}, 0, len(cleaned)+2)
	for _, s := range cleaned {
		args = append(args, s)
	}
	args = append(args, startDate, endDate)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	type symbolRows struct {
		adjCloses []float64
		spreads   []float64
		amounts   []float64
	}
	bySymbol := make(map[string]*symbolRows)

	for rows.Next() {
		var symbol string
		var high, low, close, amount, adjFactor *float64
		if err := rows.Scan(&symbol, &high, &low, &close, &amount, &adjFactor); err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		sr := bySymbol[symbol]
		if sr == nil {
			sr = &symbolRows{}
			bySymbol[symbol] = sr
		}
		if close != nil {
			adj := *close
			if adjFactor != nil && *adjFactor > 0 {
				adj = *close * *adjFactor
			}
			sr.adjCloses = append(sr.adjCloses, adj)
			if high != nil && low != nil && *close != 0 {
				spread := (*high - *low) / *close * 10000
				sr.spreads = append(sr.spreads, spread)
			}
		}
		if amount != nil {
			sr.amounts = append(sr.amounts, *amount)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}

	out := make(map[string]Metrics, len(bySymbol))
	for symbol, sr := range bySymbol {
		returns := formulas.CalculateReturns(sr.adjCloses)
		out[symbol] = Metrics{
			Volatility: formulas.StdDev(returns),
			ADV:        formulas.Mean(sr.amounts),
			SpreadBPS:  formulas.Mean(sr.spreads),
		}
	}
	return out, nil
}

// PreviousTradingDate returns the most recent price date strictly before the
// given date, or the date itself when no prior session is stored.
func (r *Repository) PreviousTradingDate(date string) (string, error) {
	var prev *string
	row := r.db.QueryRow(`SELECT MAX(date) FROM prices WHERE date < ?`, date)
	if err := row.Scan(&prev); err != nil {
		return "", fmt.Errorf("query previous trading date: %w", err)
	}
	if prev == nil || *prev == "" {
		return date, nil
	}
	return *prev, nil
}

// LookbackStartDate returns the calendar date lookbackDays before asofDate
func LookbackStartDate(asofDate string, lookbackDays int) string {
	t, err := time.Parse("2006-01-02", asofDate)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -lookbackDays).Format("2006-01-02")
}

// MasterSymbols returns the active security-master symbols
func (r *Repository) MasterSymbols() (map[string]bool, error) {
	rows, err := r.db.Query(`SELECT symbol FROM security_master WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("query security master: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scan security master row: %w", err)
		}
		out[symbol] = true
	}
	return out, rows.Err()
}

// MacroSeriesSpecs returns the configured macro series
func (r *Repository) MacroSeriesSpecs() ([]SeriesSpec, error) {
	rows, err := r.db.Query(`
		SELECT series, change_mode, change_scale, warn_change, restrict_change, stale_days
		FROM macro_series ORDER BY series`)
	if err != nil {
		return nil, fmt.Errorf("query macro series: %w", err)
	}
	defer rows.Close()

	var specs []SeriesSpec
	for rows.Next() {
		var spec SeriesSpec
		if err := rows.Scan(&spec.Series, &spec.ChangeMode, &spec.ChangeScale,
			&spec.WarnChange, &spec.RestrictChange, &spec.StaleDays); err != nil {
			return nil, fmt.Errorf("scan macro series row: %w", err)
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// MacroSeriesAvailable reports whether any macro series is configured.
// This gates the macro advisory node's candidacy.
func (r *Repository) MacroSeriesAvailable() bool {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM macro_series`).Scan(&count); err != nil {
		r.log.Warn().Err(err).Msg("Failed to check macro series availability")
		return false
	}
	return count > 0
}

// MacroObservations returns up to limit observations of a series dated at or
// before asofDate, oldest first.
func (r *Repository) MacroObservations(series, asofDate string, limit int) ([]Observation, error) {
	rows, err := r.db.Query(`
		SELECT date, value FROM macro_observations
		WHERE series = ? AND date <= ?
		ORDER BY date DESC LIMIT ?`, series, asofDate, limit)
	if err != nil {
		return nil, fmt.Errorf("query macro observations: %w", err)
	}
	defer rows.Close()

	var obs []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.Date, &o.Value); err != nil {
			return nil, fmt.Errorf("scan macro observation: %w", err)
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Oldest first
	for i, j := 0, len(obs)-1; i < j; i, j = i+1, j-1 {
		obs[i], obs[j] = obs[j], obs[i]
	}
	return obs, nil
}

// DocsAvailable reports whether a document corpus has any entries
func (r *Repository) DocsAvailable(corpus string) bool {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM policy_docs WHERE corpus = ?`, corpus).Scan(&count); err != nil {
		r.log.Warn().Err(err).Str("corpus", corpus).Msg("Failed to check document availability")
		return false
	}
	return count > 0
}

// LatestDocDate returns the latest document date in a corpus at or before
// asofDate; empty when none.
func (r *Repository) LatestDocDate(corpus, asofDate string) string {
	var latest *string
	query := `SELECT MAX(date) FROM policy_docs WHERE corpus = ? AND date != ''`
	args := []interface{}{corpus}
	if asofDate != "" {
		query += ` AND date <= ?`
		args = append(args, asofDate)
	}
	if err := r.db.QueryRow(query, args...).Scan(&latest); err != nil || latest == nil {
		return ""
	}
	return *latest
}

// SearchDocs returns documents of a corpus whose title or content contains
// the query, newest first, capped at limit. asofDate filters out documents
// dated after it.
func (r *Repository) SearchDocs(corpus, query, asofDate string, limit int) ([]Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	sqlQuery := `
		SELECT date, title, content, sentiment_score FROM policy_docs
		WHERE corpus = ? AND (title LIKE ? OR content LIKE ?)`
	pattern := "%" + query + "%"
	args := []interface{}{corpus, pattern, pattern}
	if asofDate != "" {
		sqlQuery += ` AND (date = '' OR date <= ?)`
		args = append(args, asofDate)
	}
	sqlQuery += ` ORDER BY date DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Date, &d.Title, &d.Content, &d.SentimentScore); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
