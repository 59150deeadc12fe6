package marketdata

import (
	"fmt"
	"time"
)

// PriceRow is one daily bar for a symbol
type PriceRow struct {
	Symbol    string
	Date      string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Amount    float64
	AdjFactor float64
}

// UpsertPrice inserts or replaces a daily price bar
func (r *Repository) UpsertPrice(row PriceRow) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO prices (symbol, date, open, high, low, close, amount, adj_factor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Symbol, row.Date, row.Open, row.High, row.Low, row.Close, row.Amount, row.AdjFactor)
	if err != nil {
		return fmt.Errorf("upsert price %s/%s: %w", row.Symbol, row.Date, err)
	}
	return nil
}

// UpsertMasterSymbol registers a symbol in the security master
func (r *Repository) UpsertMasterSymbol(symbol, name string) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO security_master (symbol, name, active) VALUES (?, ?, 1)`,
		symbol, name)
	if err != nil {
		return fmt.Errorf("upsert master symbol %s: %w", symbol, err)
	}
	return nil
}

// UpsertSeriesSpec configures a macro series
func (r *Repository) UpsertSeriesSpec(spec SeriesSpec) error {
	mode := spec.ChangeMode
	if mode == "" {
		mode = "pct"
	}
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO macro_series (series, change_mode, change_scale, warn_change, restrict_change, stale_days)
		VALUES (?, ?, ?, ?, ?, ?)`,
		spec.Series, mode, spec.ChangeScale, spec.WarnChange, spec.RestrictChange, spec.StaleDays)
	if err != nil {
		return fmt.Errorf("upsert series spec %s: %w", spec.Series, err)
	}
	return nil
}

// UpsertMacroObservation records one macro series value
func (r *Repository) UpsertMacroObservation(series, date string, value float64) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO macro_observations (series, date, value) VALUES (?, ?, ?)`,
		series, date, value)
	if err != nil {
		return fmt.Errorf("upsert macro observation %s/%s: %w", series, date, err)
	}
	return nil
}

// InsertPolicyDoc adds a document to a corpus
func (r *Repository) InsertPolicyDoc(corpus string, doc Document) error {
	_, err := r.db.Exec(`
		INSERT INTO policy_docs (corpus, date, title, content, sentiment_score)
		VALUES (?, ?, ?, ?, ?)`,
		corpus, doc.Date, doc.Title, doc.Content, doc.SentimentScore)
	if err != nil {
		return fmt.Errorf("insert policy doc: %w", err)
	}
	return nil
}

// RefreshAggregates precomputes per-symbol metric aggregates as of the latest
// stored trading date. Serving reads straight from the prices table stays
// correct without this; the aggregate table only speeds up reporting queries.
func (r *Repository) RefreshAggregates(lookbackDays int) error {
	var latest *string
	if err := r.db.QueryRow(`SELECT MAX(date) FROM prices`).Scan(&latest); err != nil {
		return fmt.Errorf("query latest price date: %w", err)
	}
	if latest == nil || *latest == "" {
		return nil
	}

	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM prices`)
	if err != nil {
		return fmt.Errorf("query symbols: %w", err)
	}
	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	start := LookbackStartDate(*latest, lookbackDays)
	metrics, err := r.Metrics(symbols, start, *latest)
	if err != nil {
		return fmt.Errorf("compute aggregates: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for symbol, m := range metrics {
		_, err := r.db.Exec(`
			INSERT OR REPLACE INTO market_aggregates (symbol, asof_date, lookback_days, volatility, adv, spread_bps, refreshed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			symbol, *latest, lookbackDays, m.Volatility, m.ADV, m.SpreadBPS, now)
		if err != nil {
			return fmt.Errorf("upsert aggregate %s: %w", symbol, err)
		}
	}

	r.log.Info().
		Int("symbols", len(metrics)).
		Str("asof_date", *latest).
		Msg("Refreshed market aggregates")
	return nil
}
