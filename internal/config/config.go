package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	RulesPath    string
	LogLevel     string
	Port         int
	DevMode      bool

	// Pipeline tuning
	MarketLookbackDays  int
	MacroStaleDays      int
	MacroSeverityWeight float64
	CashSymbol          string
	LPTurnoverWeight    float64
	PortfolioAUM        *float64
	TargetHoldings      *int

	// Supervisor / advisory LLM
	EnableSupervisor bool
	LLMBaseURL       string
	LLMAPIKey        string
	LLMModel         string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnvAsInt("GO_PORT", 8001),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		DatabasePath:        getEnv("DATABASE_PATH", "./data/risk.db"),
		RulesPath:           getEnv("RULES_PATH", "./data/rules.yaml"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		MarketLookbackDays:  getEnvAsInt("MARKET_LOOKBACK_DAYS", 60),
		MacroStaleDays:      getEnvAsInt("MACRO_STALE_DAYS", 30),
		MacroSeverityWeight: getEnvAsFloat("MACRO_SEVERITY_WEIGHT", 0.7),
		CashSymbol:          getEnv("CASH_SYMBOL", "CASH"),
		LPTurnoverWeight:    getEnvAsFloat("LP_TURNOVER_WEIGHT", 0.1),
		PortfolioAUM:        getEnvAsFloatPtr("PORTFOLIO_AUM"),
		TargetHoldings:      getEnvAsIntPtr("TARGET_HOLDINGS"),
		EnableSupervisor:    getEnvAsBool("ENABLE_SUPERVISOR", false),
		LLMBaseURL:          getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:           getEnv("LLM_API_KEY", ""),
		LLMModel:            getEnv("LLM_MODEL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.MarketLookbackDays <= 0 {
		return fmt.Errorf("MARKET_LOOKBACK_DAYS must be positive")
	}
	if c.MacroSeverityWeight < 0 || c.MacroSeverityWeight > 1 {
		return fmt.Errorf("MACRO_SEVERITY_WEIGHT must be in [0, 1]")
	}
	if c.CashSymbol == "" {
		c.CashSymbol = "CASH"
	}

	// LLM credentials are optional: without them the supervisor echoes
	// candidates and advisory agents use deterministic fallbacks.
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsFloatPtr(key string) *float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return &floatVal
		}
	}
	return nil
}

func getEnvAsIntPtr(key string) *int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return &intVal
		}
	}
	return nil
}
