package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Use WAL mode for better concurrency
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	return &DB{
		conn: conn,
		path: dbPath,
	}, nil
}

// NewInMemory opens a transient in-memory database, useful in tests
func NewInMemory() (*DB, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// A single connection keeps every query on the same in-memory store.
	conn.SetMaxOpenConns(1)
	return &DB{conn: conn, path: ":memory:"}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Migrate creates the schema used by the risk pipeline stores
func (db *DB) Migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS security_master (
			symbol TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			exchange TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS prices (
			symbol TEXT NOT NULL,
			date TEXT NOT NULL,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			amount REAL,
			adj_factor REAL,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_date ON prices (date)`,
		`CREATE TABLE IF NOT EXISTS market_aggregates (
			symbol TEXT NOT NULL,
			asof_date TEXT NOT NULL,
			lookback_days INTEGER NOT NULL,
			volatility REAL NOT NULL,
			adv REAL NOT NULL,
			spread_bps REAL NOT NULL,
			refreshed_at TEXT NOT NULL,
			PRIMARY KEY (symbol, asof_date, lookback_days)
		)`,
		`CREATE TABLE IF NOT EXISTS macro_series (
			series TEXT PRIMARY KEY,
			change_mode TEXT NOT NULL DEFAULT 'pct',
			change_scale TEXT NOT NULL DEFAULT '',
			warn_change REAL,
			restrict_change REAL,
			stale_days INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS macro_observations (
			series TEXT NOT NULL,
			date TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (series, date)
		)`,
		`CREATE TABLE IF NOT EXISTS policy_docs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			corpus TEXT NOT NULL,
			date TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			sentiment_score REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_policy_docs_corpus ON policy_docs (corpus)`,
	}

	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}
